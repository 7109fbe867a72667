package federation

import (
	"github.com/sampledb/sampledb/pkg/store"
)

// ParsedLocationType is a validated location type payload.
type ParsedLocationType struct {
	Header
	Name                 store.JSONStringMap
	LocationNameSingular store.JSONStringMap
	LocationNamePlural   store.JSONStringMap
	Flags                map[string]bool
}

var locationTypeFlags = []string{
	"admin_only",
	"enable_parent_location",
	"enable_sub_locations",
	"enable_object_assignments",
	"enable_responsible_users",
	"show_location_log",
}

type locationTypeHandler struct{}

func (locationTypeHandler) Kind() store.Kind { return store.KindLocationType }
func (locationTypeHandler) IDKey() string    { return "location_type_id" }

func (h locationTypeHandler) Parse(p *Parser, wire any, path string) (Parsed, error) {
	r, err := p.read(wire, path)
	if err != nil {
		return nil, err
	}
	head, err := r.header(h.IDKey())
	if err != nil {
		return nil, err
	}
	lt := &ParsedLocationType{Header: head, Flags: make(map[string]bool, len(locationTypeFlags))}
	for key, dest := range map[string]*store.JSONStringMap{
		"name":                   &lt.Name,
		"location_name_singular": &lt.LocationNameSingular,
		"location_name_plural":   &lt.LocationNamePlural,
	} {
		if *dest, err = r.langMap(key); err != nil {
			return nil, err
		}
	}
	for _, flag := range locationTypeFlags {
		if lt.Flags[flag], err = r.optBool(flag); err != nil {
			return nil, err
		}
	}
	return lt, nil
}

func locationTypeFlagFields(l *store.LocationType) map[string]*bool {
	return map[string]*bool{
		"admin_only":                &l.AdminOnly,
		"enable_parent_location":    &l.EnableParentLocation,
		"enable_sub_locations":      &l.EnableSubLocations,
		"enable_object_assignments": &l.EnableObjectAssignments,
		"enable_responsible_users":  &l.EnableResponsibleUsers,
		"show_location_log":         &l.ShowLocationLog,
	}
}

func (locationTypeHandler) Import(imp *importer, parsed Parsed) (int64, error) {
	p := parsed.(*ParsedLocationType)
	comp, id, existed, err := imp.target(store.KindLocationType, p)
	if err != nil {
		return 0, err
	}
	row := &store.LocationType{}
	if id != nil {
		if row, err = imp.e.store.GetLocationType(*id); err != nil {
			return 0, err
		}
	}
	fedID, componentID := p.FedID, comp.ID
	row.FedID, row.ComponentID = &fedID, &componentID
	row.Name = p.Name
	row.LocationNameSingular = p.LocationNameSingular
	row.LocationNamePlural = p.LocationNamePlural
	for flag, dest := range locationTypeFlagFields(row) {
		*dest = p.Flags[flag]
	}
	if err := imp.e.store.SaveLocationType(row); err != nil {
		return 0, err
	}
	return row.ID, imp.finish(store.KindLocationType, row.ID, p, existed)
}

func (h locationTypeHandler) Preprocess(ex *exporter, id int64) (map[string]any, error) {
	lt, err := ex.e.store.GetLocationType(id)
	if err != nil {
		return nil, err
	}
	wire, err := ex.identity(store.KindLocationType, h.IDKey(), id, lt.FedID, lt.ComponentID)
	if err != nil {
		return nil, err
	}
	putLangMap(wire, "name", lt.Name)
	putLangMap(wire, "location_name_singular", lt.LocationNameSingular)
	putLangMap(wire, "location_name_plural", lt.LocationNamePlural)
	for flag, v := range locationTypeFlagFields(lt) {
		wire[flag] = *v
	}
	return wire, nil
}
