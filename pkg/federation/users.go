package federation

import (
	"github.com/sampledb/sampledb/pkg/store"
)

// ParsedUser is a validated user payload.
type ParsedUser struct {
	Header
	Name        *string
	Email       *string
	ORCID       *string
	Affiliation *string
	Role        *string
	ExtraFields store.JSONStringMap
}

type userHandler struct{}

func (userHandler) Kind() store.Kind { return store.KindUser }
func (userHandler) IDKey() string    { return "user_id" }

func (h userHandler) Parse(p *Parser, wire any, path string) (Parsed, error) {
	r, err := p.read(wire, path)
	if err != nil {
		return nil, err
	}
	head, err := r.header(h.IDKey())
	if err != nil {
		return nil, err
	}
	u := &ParsedUser{Header: head}
	for key, dest := range map[string]**string{
		"name":        &u.Name,
		"email":       &u.Email,
		"orcid":       &u.ORCID,
		"affiliation": &u.Affiliation,
		"role":        &u.Role,
	} {
		if *dest, err = r.optString(key); err != nil {
			return nil, err
		}
	}
	extra, err := r.optMap("extra_fields")
	if err != nil {
		return nil, err
	}
	if extra != nil {
		u.ExtraFields = store.JSONStringMap{}
		for k, v := range extra {
			s, ok := v.(string)
			if !ok {
				return nil, invalidf(joinPath(r.at("extra_fields"), k), "must be a string")
			}
			u.ExtraFields[k] = s
		}
	}
	return u, nil
}

func (userHandler) Import(imp *importer, parsed Parsed) (int64, error) {
	p := parsed.(*ParsedUser)
	comp, id, existed, err := imp.target(store.KindUser, p)
	if err != nil {
		return 0, err
	}
	row := &store.User{}
	if id != nil {
		if row, err = imp.e.store.GetUser(*id); err != nil {
			return 0, err
		}
	}
	fedID, componentID := p.FedID, comp.ID
	row.FedID, row.ComponentID = &fedID, &componentID
	row.Type = store.UserTypeFederationUser
	row.Name, row.Email, row.ORCID = p.Name, p.Email, p.ORCID
	row.Affiliation, row.Role = p.Affiliation, p.Role
	row.ExtraFields = p.ExtraFields
	if err := imp.e.store.SaveUser(row); err != nil {
		return 0, err
	}
	return row.ID, imp.finish(store.KindUser, row.ID, p, existed)
}

// Preprocess exports local users only; users imported from another component
// are not vouched for.
func (h userHandler) Preprocess(ex *exporter, id int64) (map[string]any, error) {
	u, err := ex.e.store.GetUser(id)
	if err != nil {
		return nil, err
	}
	if u.ComponentID != nil {
		ex.e.logger.Debug("not exporting foreign user", "id", id)
		return nil, nil
	}
	wire := map[string]any{
		h.IDKey():        u.ID,
		"component_uuid": ex.e.store.LocalUUID(),
	}
	putString(wire, "name", u.Name)
	putString(wire, "email", u.Email)
	putString(wire, "orcid", u.ORCID)
	putString(wire, "affiliation", u.Affiliation)
	putString(wire, "role", u.Role)
	if len(u.ExtraFields) > 0 {
		extra := make(map[string]any, len(u.ExtraFields))
		for k, v := range u.ExtraFields {
			extra[k] = v
		}
		wire["extra_fields"] = extra
	}
	return wire, nil
}
