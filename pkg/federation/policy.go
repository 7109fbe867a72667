package federation

import (
	"sort"
	"strconv"

	"github.com/sampledb/sampledb/pkg/permissions"
	"github.com/sampledb/sampledb/pkg/schemas"
	"github.com/sampledb/sampledb/pkg/store"
)

// Access selects which parts of an object are shared.
type Access struct {
	Data                      bool
	Action                    bool
	Users                     bool
	Files                     bool
	Comments                  bool
	ObjectLocationAssignments bool
}

func (a *Access) fields() map[string]*bool {
	return map[string]*bool{
		"data":                        &a.Data,
		"action":                      &a.Action,
		"users":                       &a.Users,
		"files":                       &a.Files,
		"comments":                    &a.Comments,
		"object_location_assignments": &a.ObjectLocationAssignments,
	}
}

// Grants are the permissions a policy grants on the receiving instance. Keys
// are ids local to the receiver.
type Grants struct {
	Users    map[int64]permissions.Level
	Groups   map[int64]permissions.Level
	Projects map[int64]permissions.Level
	AllUsers permissions.Level
}

// PropertyInsert adds a top-level property that the shared data lacks.
type PropertyInsert struct {
	Schema map[string]any
	Data   any
}

// Modification changes shared data on export.
type Modification struct {
	Insert map[string]PropertyInsert
	Update map[string]any
}

// Policy is the sharing policy of an object.
type Policy struct {
	Access       Access
	Permissions  Grants
	Modification Modification
	Raw          map[string]any
}

// ParsePolicy validates a policy payload.
func (e *Engine) ParsePolicy(wire any) (*Policy, error) {
	return e.parser.parsePolicy(wire, "policy")
}

func (p *Parser) parsePolicy(wire any, path string) (*Policy, error) {
	r, err := p.read(wire, path)
	if err != nil {
		return nil, err
	}
	policy := &Policy{Raw: r.m}

	access, err := r.optMap("access")
	if err != nil {
		return nil, err
	}
	if access != nil {
		a, _ := p.read(access, r.at("access"))
		for key, dest := range policy.Access.fields() {
			if *dest, err = a.optBool(key); err != nil {
				return nil, err
			}
		}
	}

	if policy.Permissions, err = p.parseGrants(r); err != nil {
		return nil, err
	}
	if policy.Modification, err = p.parseModification(r); err != nil {
		return nil, err
	}
	return policy, nil
}

func (p *Parser) parseGrants(r *reader) (Grants, error) {
	var g Grants
	raw, err := r.optMap("permissions")
	if err != nil || raw == nil {
		return g, err
	}
	pr, _ := p.read(raw, r.at("permissions"))
	for key, dest := range map[string]*map[int64]permissions.Level{
		"users":    &g.Users,
		"groups":   &g.Groups,
		"projects": &g.Projects,
	} {
		targets, err := pr.optMap(key)
		if err != nil {
			return g, err
		}
		*dest = map[int64]permissions.Level{}
		for rawID, rawLevel := range targets {
			path := joinPath(pr.at(key), rawID)
			id, err := strconv.ParseInt(rawID, 10, 64)
			if err != nil || id < 0 {
				return g, invalidf(path, "invalid id %q", rawID)
			}
			level, err := parseLevel(rawLevel, path)
			if err != nil {
				return g, err
			}
			(*dest)[id] = level
		}
	}
	if pr.present("all_users") {
		if g.AllUsers, err = parseLevel(pr.m["all_users"], pr.at("all_users")); err != nil {
			return g, err
		}
	}
	return g, nil
}

func parseLevel(v any, path string) (permissions.Level, error) {
	s, ok := v.(string)
	if !ok {
		return permissions.None, invalidf(path, "permission level must be a string")
	}
	level, err := permissions.ParseLevel(s)
	if err != nil {
		return permissions.None, invalidf(path, "%v", err)
	}
	return level, nil
}

func (p *Parser) parseModification(r *reader) (Modification, error) {
	var m Modification
	raw, err := r.optMap("modification")
	if err != nil || raw == nil {
		return m, err
	}
	mr, _ := p.read(raw, r.at("modification"))

	inserts, err := mr.optMap("insert")
	if err != nil {
		return m, err
	}
	if inserts != nil {
		m.Insert = map[string]PropertyInsert{}
		for prop, v := range inserts {
			path := joinPath(mr.at("insert"), prop)
			ir, err := p.read(v, path)
			if err != nil {
				return m, err
			}
			schema, err := ir.optMap("schema")
			if err != nil {
				return m, err
			}
			if schema == nil || !ir.present("data") {
				return m, invalidf(path, "insert requires schema and data")
			}
			if err := schemas.ValidateSubSchema(schema, nil); err != nil {
				return m, fromValidation(ir.at("schema"), err)
			}
			if err := schemas.ValidateData(ir.m["data"], schema); err != nil {
				return m, fromValidation(ir.at("data"), err)
			}
			m.Insert[prop] = PropertyInsert{Schema: schema, Data: ir.m["data"]}
		}
	}

	if m.Update, err = mr.optMap("update"); err != nil {
		return m, err
	}
	return m, nil
}

// apply changes an exported data/schema pair in place.
func (m Modification) apply(data, schema map[string]any) {
	if data == nil || schema == nil {
		return
	}
	props, _ := schema["properties"].(map[string]any)
	for prop, ins := range m.Insert {
		if _, ok := data[prop]; ok {
			continue
		}
		if props != nil {
			props[prop] = deepCopy(ins.Schema)
		}
		data[prop] = deepCopy(ins.Data)
	}
	for prop, v := range m.Update {
		if _, ok := data[prop]; ok {
			data[prop] = deepCopy(v)
		}
	}
}

// applyPolicies grants the permissions of every imported object's policy.
func (imp *importer) applyPolicies() error {
	for _, op := range imp.policies {
		if err := imp.e.applyPolicy(op.objectID, op.policy); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) applyPolicy(objectID int64, policy *Policy) error {
	g := policy.Permissions
	for _, userID := range sortedIDs(g.Users) {
		ok, err := e.store.Exists(store.KindUser, userID)
		if err != nil {
			return err
		}
		if !ok {
			e.logger.Warn("skipping permission for unknown user", "object", objectID, "user", userID)
			continue
		}
		if err := e.perms.SetUserObjectPermissions(objectID, userID, g.Users[userID]); err != nil {
			return err
		}
	}
	for _, groupID := range sortedIDs(g.Groups) {
		group, err := e.store.GetGroup(groupID)
		if err != nil {
			return err
		}
		if group == nil {
			e.logger.Warn("skipping permission for unknown group", "object", objectID, "group", groupID)
			continue
		}
		if err := e.perms.SetGroupObjectPermissions(objectID, groupID, g.Groups[groupID]); err != nil {
			return err
		}
	}
	for _, projectID := range sortedIDs(g.Projects) {
		project, err := e.store.GetProject(projectID)
		if err != nil {
			return err
		}
		if project == nil {
			e.logger.Warn("skipping permission for unknown project", "object", objectID, "project", projectID)
			continue
		}
		level := g.Projects[projectID]
		if project.PermissionCeiling != nil {
			ceiling, err := permissions.ParseLevel(*project.PermissionCeiling)
			if err != nil {
				return err
			}
			level = permissions.Min(level, ceiling)
		}
		if err := e.perms.SetProjectObjectPermissions(objectID, projectID, level); err != nil {
			return err
		}
	}
	if g.AllUsers != permissions.None {
		if err := e.perms.SetAllUserObjectPermissions(objectID, g.AllUsers); err != nil {
			return err
		}
	}
	return nil
}

func sortedIDs(m map[int64]permissions.Level) []int64 {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
