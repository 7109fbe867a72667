package federation

import (
	"github.com/sampledb/sampledb/pkg/store"
)

// actionTypeFlags lists the boolean wire fields of an action type.
var actionTypeFlags = []string{
	"admin_only",
	"show_on_frontpage",
	"show_in_navbar",
	"enable_labels",
	"enable_files",
	"enable_locations",
	"enable_publications",
	"enable_comments",
	"enable_activity_log",
	"enable_related_objects",
	"enable_project_link",
	"disable_create_objects",
	"is_template",
}

// ParsedActionType is a validated action type payload.
type ParsedActionType struct {
	Header
	Flags        map[string]bool
	Translations store.Translations
}

type actionTypeHandler struct{}

func (actionTypeHandler) Kind() store.Kind { return store.KindActionType }
func (actionTypeHandler) IDKey() string    { return "action_type_id" }

func (h actionTypeHandler) Parse(p *Parser, wire any, path string) (Parsed, error) {
	r, err := p.read(wire, path)
	if err != nil {
		return nil, err
	}
	head, err := r.header(h.IDKey())
	if err != nil {
		return nil, err
	}
	at := &ParsedActionType{Header: head, Flags: map[string]bool{}}
	for _, flag := range actionTypeFlags {
		if at.Flags[flag], err = r.optBool(flag); err != nil {
			return nil, err
		}
	}
	at.Translations, err = r.translations("translations",
		[]string{"name"},
		[]string{"description", "object_name", "object_name_plural", "view_text", "perform_text"})
	if err != nil {
		return nil, err
	}
	return at, nil
}

func actionTypeFlagFields(a *store.ActionType) map[string]*bool {
	return map[string]*bool{
		"admin_only":             &a.AdminOnly,
		"show_on_frontpage":      &a.ShowOnFrontpage,
		"show_in_navbar":         &a.ShowInNavbar,
		"enable_labels":          &a.EnableLabels,
		"enable_files":           &a.EnableFiles,
		"enable_locations":       &a.EnableLocations,
		"enable_publications":    &a.EnablePublications,
		"enable_comments":        &a.EnableComments,
		"enable_activity_log":    &a.EnableActivityLog,
		"enable_related_objects": &a.EnableRelatedObjects,
		"enable_project_link":    &a.EnableProjectLink,
		"disable_create_objects": &a.DisableCreateObjects,
		"is_template":            &a.IsTemplate,
	}
}

func (actionTypeHandler) Import(imp *importer, parsed Parsed) (int64, error) {
	p := parsed.(*ParsedActionType)
	comp, id, existed, err := imp.target(store.KindActionType, p)
	if err != nil {
		return 0, err
	}
	row := &store.ActionType{}
	if id != nil {
		if row, err = imp.e.store.GetActionType(*id); err != nil {
			return 0, err
		}
	}
	fedID, componentID := p.FedID, comp.ID
	row.FedID, row.ComponentID = &fedID, &componentID
	for flag, field := range actionTypeFlagFields(row) {
		*field = p.Flags[flag]
	}
	row.Translations = p.Translations
	if err := imp.e.store.SaveActionType(row); err != nil {
		return 0, err
	}
	return row.ID, imp.finish(store.KindActionType, row.ID, p, existed)
}

func (h actionTypeHandler) Preprocess(ex *exporter, id int64) (map[string]any, error) {
	a, err := ex.e.store.GetActionType(id)
	if err != nil {
		return nil, err
	}
	wire, err := ex.identity(store.KindActionType, h.IDKey(), id, a.FedID, a.ComponentID)
	if err != nil {
		return nil, err
	}
	for flag, field := range actionTypeFlagFields(a) {
		wire[flag] = *field
	}
	wire["translations"] = translationList(a.Translations)
	return wire, nil
}
