package federation

import (
	"github.com/sampledb/sampledb/pkg/store"
)

// ParsedLocation is a validated location payload.
type ParsedLocation struct {
	Header
	Name             store.JSONStringMap
	Description      store.JSONStringMap
	Parent           *Ref
	Type             *Ref
	ResponsibleUsers []Ref
	IsHidden         bool
}

type locationHandler struct{}

func (locationHandler) Kind() store.Kind { return store.KindLocation }
func (locationHandler) IDKey() string    { return "location_id" }

func (h locationHandler) Parse(p *Parser, wire any, path string) (Parsed, error) {
	r, err := p.read(wire, path)
	if err != nil {
		return nil, err
	}
	head, err := r.header(h.IDKey())
	if err != nil {
		return nil, err
	}
	l := &ParsedLocation{Header: head}
	if l.Name, err = r.langMap("name"); err != nil {
		return nil, err
	}
	if l.Description, err = r.langMap("description"); err != nil {
		return nil, err
	}
	if l.Parent, err = r.ref("parent_location", "location_id"); err != nil {
		return nil, err
	}
	if l.Type, err = r.ref("location_type", "location_type_id"); err != nil {
		return nil, err
	}
	if l.ResponsibleUsers, err = r.refList("responsible_users", "user_id"); err != nil {
		return nil, err
	}
	if l.IsHidden, err = r.optBool("is_hidden"); err != nil {
		return nil, err
	}
	return l, nil
}

func (locationHandler) Import(imp *importer, parsed Parsed) (int64, error) {
	p := parsed.(*ParsedLocation)
	parentID, err := imp.resolve(store.KindLocation, p.Parent, OptionalStub, "parent_location")
	if err != nil {
		return 0, err
	}
	typeID, err := imp.resolve(store.KindLocationType, p.Type, OptionalStub, "location_type")
	if err != nil {
		return 0, err
	}
	var responsible []int64
	for i := range p.ResponsibleUsers {
		userID, err := imp.resolve(store.KindUser, &p.ResponsibleUsers[i], OptionalStub, "responsible_users")
		if err != nil {
			return 0, err
		}
		if userID != nil {
			responsible = append(responsible, *userID)
		}
	}

	comp, id, existed, err := imp.target(store.KindLocation, p)
	if err != nil {
		return 0, err
	}
	row := &store.Location{}
	if id != nil {
		if row, err = imp.e.store.GetLocation(*id); err != nil {
			return 0, err
		}
	}
	fedID, componentID := p.FedID, comp.ID
	row.FedID, row.ComponentID = &fedID, &componentID
	row.Name, row.Description = p.Name, p.Description
	row.ParentLocationID, row.TypeID = parentID, typeID
	row.IsHidden = p.IsHidden
	if err := imp.e.store.SaveLocation(row); err != nil {
		return 0, err
	}
	if err := imp.e.store.SetLocationResponsibleUsers(row.ID, responsible); err != nil {
		return 0, err
	}
	return row.ID, imp.finish(store.KindLocation, row.ID, p, existed)
}

func (h locationHandler) Preprocess(ex *exporter, id int64) (map[string]any, error) {
	l, err := ex.e.store.GetLocation(id)
	if err != nil {
		return nil, err
	}
	wire, err := ex.identity(store.KindLocation, h.IDKey(), id, l.FedID, l.ComponentID)
	if err != nil {
		return nil, err
	}
	putLangMap(wire, "name", l.Name)
	putLangMap(wire, "description", l.Description)
	if err := ex.putRef(wire, "parent_location", store.KindLocation, l.ParentLocationID); err != nil {
		return nil, err
	}
	if err := ex.putRef(wire, "location_type", store.KindLocationType, l.TypeID); err != nil {
		return nil, err
	}
	userIDs, err := ex.e.store.GetLocationResponsibleUsers(id)
	if err != nil {
		return nil, err
	}
	responsible := make([]any, 0, len(userIDs))
	for _, userID := range userIDs {
		ref, err := ex.ref(store.KindUser, userID)
		if err != nil {
			return nil, err
		}
		if ref != nil {
			responsible = append(responsible, ref)
		}
	}
	wire["responsible_users"] = responsible
	wire["is_hidden"] = l.IsHidden
	return wire, nil
}
