package federation

import (
	"fmt"
	"sort"
	"time"

	"github.com/sampledb/sampledb/pkg/schemas"
	"github.com/sampledb/sampledb/pkg/store"
)

// ParsedVersion is one version of a parsed object. Data and Schema are both
// nil when the data is not shared.
type ParsedVersion struct {
	VersionID   int64
	Data        map[string]any
	Schema      map[string]any
	User        *Ref
	UTCDatetime *time.Time
}

// ParsedObject is a validated object payload including the comments, files
// and location assignments shipped with it.
type ParsedObject struct {
	Header
	Versions                  []ParsedVersion
	Action                    *Ref
	Comments                  []*ParsedComment
	Files                     []*ParsedFile
	ObjectLocationAssignments []*ParsedObjectLocationAssignment
	Policy                    *Policy
}

type objectHandler struct{}

func (objectHandler) Kind() store.Kind { return store.KindObject }
func (objectHandler) IDKey() string    { return "object_id" }

func (h objectHandler) Parse(p *Parser, wire any, path string) (Parsed, error) {
	r, err := p.read(wire, path)
	if err != nil {
		return nil, err
	}
	head, err := r.header(h.IDKey())
	if err != nil {
		return nil, err
	}
	o := &ParsedObject{Header: head}
	if o.Versions, err = parseVersions(r, head.ComponentUUID); err != nil {
		return nil, err
	}
	if o.Action, err = r.ref("action", "action_id"); err != nil {
		return nil, err
	}

	self := Ref{FedID: head.FedID, ComponentUUID: head.ComponentUUID}
	if err := parseNested(r, "comments", commentHandler{}, self, func(parsed Parsed) {
		o.Comments = append(o.Comments, parsed.(*ParsedComment))
	}); err != nil {
		return nil, err
	}
	if err := parseNested(r, "files", fileHandler{}, self, func(parsed Parsed) {
		o.Files = append(o.Files, parsed.(*ParsedFile))
	}); err != nil {
		return nil, err
	}
	if err := parseNested(r, "object_location_assignments", olaHandler{}, self, func(parsed Parsed) {
		o.ObjectLocationAssignments = append(o.ObjectLocationAssignments, parsed.(*ParsedObjectLocationAssignment))
	}); err != nil {
		return nil, err
	}

	if !r.present("policy") {
		return nil, invalidf(r.at("policy"), "missing policy")
	}
	if o.Policy, err = p.parsePolicy(r.m["policy"], r.at("policy")); err != nil {
		return nil, err
	}
	return o, nil
}

// parseVersions reads the version list of an object owned by ownerUUID.
func parseVersions(r *reader, ownerUUID string) ([]ParsedVersion, error) {
	if !r.present("versions") {
		return nil, invalidf(r.at("versions"), "missing versions")
	}
	list, err := r.list("versions")
	if err != nil {
		return nil, err
	}
	seen := map[int64]bool{}
	versions := make([]ParsedVersion, 0, len(list))
	for i, item := range list {
		vr, err := r.p.read(item, joinPath(r.at("versions"), fmt.Sprint(i)))
		if err != nil {
			return nil, err
		}
		var v ParsedVersion
		if v.VersionID, err = vr.id("version_id"); err != nil {
			return nil, err
		}
		if seen[v.VersionID] {
			return nil, invalidf(vr.at("version_id"), "duplicate version %d", v.VersionID)
		}
		seen[v.VersionID] = true
		if v.Data, err = vr.optMap("data"); err != nil {
			return nil, err
		}
		if v.Schema, err = vr.optMap("schema"); err != nil {
			return nil, err
		}
		if (v.Data == nil) != (v.Schema == nil) {
			return nil, invalidf(vr.path, "data and schema must be given together")
		}
		if v.Schema != nil {
			if err := vr.p.validateSchema(v.Schema); err != nil {
				return nil, fromValidation(vr.at("schema"), err)
			}
			if err := schemas.ValidateDataFor(v.Data, v.Schema, ownerUUID); err != nil {
				return nil, fromValidation(vr.at("data"), err)
			}
		}
		if v.User, err = vr.ref("user", "user_id"); err != nil {
			return nil, err
		}
		if v.UTCDatetime, err = vr.datetime("utc_datetime", false); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, nil
}

// parseNested parses entities shipped inside an object. A nested entity may
// only refer to the object it ships in.
func parseNested(r *reader, key string, h EntityHandler, self Ref, add func(Parsed)) error {
	list, err := r.list(key)
	if err != nil {
		return err
	}
	for i, item := range list {
		path := joinPath(r.at(key), fmt.Sprint(i))
		parsed, err := h.Parse(r.p, item, path)
		if err != nil {
			return err
		}
		var object *Ref
		switch n := parsed.(type) {
		case *ParsedComment:
			object = n.Object
		case *ParsedFile:
			object = n.Object
		case *ParsedObjectLocationAssignment:
			object = n.Object
		}
		if object != nil && *object != self {
			return invalidf(joinPath(path, "object"), "nested entity refers to another object")
		}
		add(parsed)
	}
	return nil
}

// index adds the object and its nested entities to a batch index.
func (o *ParsedObject) index(batch map[Identity]Parsed) {
	batch[identityOf(store.KindObject, o)] = o
	for _, c := range o.Comments {
		batch[identityOf(store.KindComment, c)] = c
	}
	for _, f := range o.Files {
		batch[identityOf(store.KindFile, f)] = f
	}
	for _, a := range o.ObjectLocationAssignments {
		batch[identityOf(store.KindObjectLocationAssignment, a)] = a
	}
}

func (objectHandler) Import(imp *importer, parsed Parsed) (int64, error) {
	p := parsed.(*ParsedObject)
	comp, id, existed, err := imp.target(store.KindObject, p)
	if err != nil {
		return 0, err
	}
	row := &store.Object{}
	if id != nil {
		if row, err = imp.e.store.GetObject(*id); err != nil {
			return 0, err
		}
	}
	// the row is saved before references are resolved so that references
	// back to this object find it
	fedID, componentID := p.FedID, comp.ID
	row.FedID, row.ComponentID = &fedID, &componentID
	if err := imp.e.store.SaveObject(row); err != nil {
		return 0, err
	}
	if row.ActionID, err = imp.resolve(store.KindAction, p.Action, OptionalStub, "action"); err != nil {
		return 0, err
	}
	if err := imp.e.store.SaveObject(row); err != nil {
		return 0, err
	}

	before, err := imp.currentTags(row.ID)
	if err != nil {
		return 0, err
	}
	versions := append([]ParsedVersion(nil), p.Versions...)
	sort.Slice(versions, func(i, j int) bool { return versions[i].VersionID < versions[j].VersionID })
	for _, v := range versions {
		if err := imp.putVersion(row.ID, p.ComponentUUID, v); err != nil {
			return 0, err
		}
	}
	after, err := imp.currentTags(row.ID)
	if err != nil {
		return 0, err
	}
	if err := imp.e.store.AdjustTagUsage(before, after); err != nil {
		return 0, err
	}

	for _, c := range p.Comments {
		c.objectID = &row.ID
		if _, err := imp.importParsed(store.KindComment, c); err != nil {
			return 0, err
		}
	}
	for _, f := range p.Files {
		f.objectID = &row.ID
		if _, err := imp.importParsed(store.KindFile, f); err != nil {
			return 0, err
		}
	}
	for _, a := range p.ObjectLocationAssignments {
		a.objectID = &row.ID
		if _, err := imp.importParsed(store.KindObjectLocationAssignment, a); err != nil {
			return 0, err
		}
	}
	imp.policies = append(imp.policies, objectPolicy{objectID: row.ID, policy: p.Policy})
	return row.ID, imp.finish(store.KindObject, row.ID, p, existed)
}

func (imp *importer) currentTags(objectID int64) ([]string, error) {
	v, err := imp.e.store.GetCurrentObjectVersion(objectID)
	if err != nil || v == nil || v.Data == nil {
		return nil, err
	}
	return schemas.CollectTags(v.Schema, map[string]any(v.Data)), nil
}

func (imp *importer) putVersion(objectID int64, ownerUUID string, v ParsedVersion) error {
	path := fmt.Sprintf("versions.%d", v.VersionID)
	userID, err := imp.resolve(store.KindUser, v.User, OptionalStub, joinPath(path, "user"))
	if err != nil {
		return err
	}
	version := &store.ObjectVersion{
		ObjectID:  objectID,
		VersionID: v.VersionID,
		UserID:    userID,
	}
	if v.UTCDatetime != nil {
		at := v.UTCDatetime.UTC()
		version.UTCDatetime = &at
	}
	if v.Data != nil {
		data := deepCopy(v.Data).(map[string]any)
		schema := deepCopy(v.Schema).(map[string]any)
		if err := imp.localizeData(schema, data, ownerUUID, path); err != nil {
			return err
		}
		version.Data, version.Schema = data, schema
	}
	_, err = imp.e.store.PutObjectVersion(version)
	return err
}

// localizeData rewrites user and object references of data and of the
// schema's conditions to local ids and localizes markdown images.
func (imp *importer) localizeData(schema, data map[string]any, ownerUUID, path string) error {
	err := schemas.VisitReferences(schema, data, func(n *schemas.Node, leaf map[string]any, idKey string) error {
		localID, ok, err := imp.localizeRef(leaf, idKey, ownerUUID, joinPath(path, "data", n.PathString()))
		if err != nil || !ok {
			return err
		}
		if localID == nil {
			delete(leaf, idKey)
			return nil
		}
		leaf[idKey] = *localID
		return nil
	})
	if err != nil {
		return err
	}
	// conditions compare against the localized data, so they move to the
	// same id space
	err = schemas.VisitConditionReferences(schema, func(cond map[string]any, idKey string) error {
		localID, ok, err := imp.localizeRef(cond, idKey, ownerUUID, joinPath(path, "schema"))
		if err != nil || !ok {
			delete(cond, "component_uuid")
			return err
		}
		if localID == nil {
			cond[idKey] = nil
			return nil
		}
		cond[idKey] = *localID
		return nil
	})
	if err != nil {
		return err
	}
	return schemas.VisitMarkdown(schema, data, func(_ *schemas.Node, leaf map[string]any) error {
		switch text := leaf["text"].(type) {
		case string:
			out, err := imp.localizeMarkdown(text, ownerUUID)
			if err != nil {
				return err
			}
			leaf["text"] = out
		case map[string]any:
			for lang, v := range text {
				s, ok := v.(string)
				if !ok {
					continue
				}
				out, err := imp.localizeMarkdown(s, ownerUUID)
				if err != nil {
					return err
				}
				text[lang] = out
			}
		}
		return nil
	})
}

func (h objectHandler) Preprocess(ex *exporter, id int64) (map[string]any, error) {
	obj, err := ex.e.store.GetObject(id)
	if err != nil {
		return nil, err
	}
	policy, err := ex.policy(id)
	if err != nil {
		return nil, err
	}
	wire, err := ex.identity(store.KindObject, h.IDKey(), id, obj.FedID, obj.ComponentID)
	if err != nil {
		return nil, err
	}
	if policy.Access.Action {
		if err := ex.putRef(wire, "action", store.KindAction, obj.ActionID); err != nil {
			return nil, err
		}
	}

	versions, err := ex.e.store.GetObjectVersions(id)
	if err != nil {
		return nil, err
	}
	wireVersions := make([]any, 0, len(versions))
	for _, v := range versions {
		vw := map[string]any{"version_id": v.VersionID}
		if policy.Access.Data && v.Data != nil && v.Schema != nil {
			data := deepCopy(map[string]any(v.Data)).(map[string]any)
			schema := deepCopy(map[string]any(v.Schema)).(map[string]any)
			policy.Modification.apply(data, schema)
			if err := ex.exportData(schema, data, policy.Access.Users); err != nil {
				return nil, err
			}
			vw["data"], vw["schema"] = data, schema
		}
		if policy.Access.Users {
			if err := ex.putRef(vw, "user", store.KindUser, v.UserID); err != nil {
				return nil, err
			}
		}
		if v.UTCDatetime != nil {
			vw["utc_datetime"] = formatDatetime(*v.UTCDatetime)
		}
		wireVersions = append(wireVersions, vw)
	}
	wire["versions"] = wireVersions

	if policy.Access.Comments {
		comments, err := ex.e.store.GetComments(id)
		if err != nil {
			return nil, err
		}
		list := make([]any, 0, len(comments))
		for i := range comments {
			cw, err := commentHandler{}.wire(ex, &comments[i], policy.Access.Users)
			if err != nil {
				return nil, err
			}
			list = append(list, cw)
		}
		wire["comments"] = list
	}
	if policy.Access.Files {
		files, err := ex.e.store.GetFiles(id)
		if err != nil {
			return nil, err
		}
		list := make([]any, 0, len(files))
		for i := range files {
			fw, err := fileHandler{}.wire(ex, &files[i], policy.Access.Users)
			if err != nil {
				return nil, err
			}
			list = append(list, fw)
		}
		wire["files"] = list
	}
	if policy.Access.ObjectLocationAssignments {
		olas, err := ex.e.store.GetObjectLocationAssignments(id)
		if err != nil {
			return nil, err
		}
		list := make([]any, 0, len(olas))
		for i := range olas {
			aw, err := olaHandler{}.wire(ex, &olas[i], policy.Access.Users)
			if err != nil {
				return nil, err
			}
			list = append(list, aw)
		}
		wire["object_location_assignments"] = list
	}
	wire["policy"] = deepCopy(policy.Raw)
	return wire, nil
}

// localizeRef resolves the federation reference m[idKey], owned by
// m["component_uuid"] or ownerUUID, and drops the component_uuid. ok is false
// when m holds no id.
func (imp *importer) localizeRef(m map[string]any, idKey, ownerUUID, path string) (*int64, bool, error) {
	fedID, ok := schemas.Integer(m[idKey])
	if !ok {
		return nil, false, nil
	}
	ref := &Ref{FedID: fedID, ComponentUUID: ownerUUID}
	if u, ok := m["component_uuid"].(string); ok && u != "" {
		ref.ComponentUUID = u
	}
	kind := store.KindObject
	if idKey == "user_id" {
		kind = store.KindUser
	}
	localID, err := imp.resolve(kind, ref, OptionalStub, path)
	if err != nil {
		return nil, true, err
	}
	delete(m, "component_uuid")
	return localID, true, nil
}
