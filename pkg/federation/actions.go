package federation

import (
	"github.com/sampledb/sampledb/pkg/store"
)

// ParsedAction is a validated action payload.
type ParsedAction struct {
	Header
	ActionType                 Ref
	Instrument                 *Ref
	User                       *Ref
	Schema                     map[string]any
	DescriptionIsMarkdown      bool
	ShortDescriptionIsMarkdown bool
	IsHidden                   bool
	Translations               store.Translations
}

type actionHandler struct{}

func (actionHandler) Kind() store.Kind { return store.KindAction }
func (actionHandler) IDKey() string    { return "action_id" }

func (h actionHandler) Parse(p *Parser, wire any, path string) (Parsed, error) {
	r, err := p.read(wire, path)
	if err != nil {
		return nil, err
	}
	head, err := r.header(h.IDKey())
	if err != nil {
		return nil, err
	}
	a := &ParsedAction{Header: head}
	actionType, err := r.ref("action_type", "action_type_id")
	if err != nil {
		return nil, err
	}
	if actionType == nil {
		return nil, invalidf(r.at("action_type"), "missing action type")
	}
	a.ActionType = *actionType
	if a.Instrument, err = r.ref("instrument", "instrument_id"); err != nil {
		return nil, err
	}
	if a.User, err = r.ref("user", "user_id"); err != nil {
		return nil, err
	}
	if a.Schema, err = r.optMap("schema"); err != nil {
		return nil, err
	}
	if a.Schema != nil {
		if err := r.p.validateSchema(a.Schema); err != nil {
			return nil, fromValidation(r.at("schema"), err)
		}
	}
	if a.DescriptionIsMarkdown, err = r.optBool("description_is_markdown"); err != nil {
		return nil, err
	}
	if a.ShortDescriptionIsMarkdown, err = r.optBool("short_description_is_markdown"); err != nil {
		return nil, err
	}
	if a.IsHidden, err = r.optBool("is_hidden"); err != nil {
		return nil, err
	}
	a.Translations, err = r.translations("translations",
		[]string{"name"},
		[]string{"description", "short_description"})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (actionHandler) Import(imp *importer, parsed Parsed) (int64, error) {
	p := parsed.(*ParsedAction)
	actionTypeID, err := imp.resolve(store.KindActionType, &p.ActionType, Required, "action_type")
	if err != nil {
		return 0, err
	}
	instrumentID, err := imp.resolve(store.KindInstrument, p.Instrument, OptionalStub, "instrument")
	if err != nil {
		return 0, err
	}
	userID, err := imp.resolve(store.KindUser, p.User, OptionalStub, "user")
	if err != nil {
		return 0, err
	}
	fields := markdownFieldList(map[string]bool{
		"description":       p.DescriptionIsMarkdown,
		"short_description": p.ShortDescriptionIsMarkdown,
	})
	if err := imp.localizeTranslations(p.Translations, p.ComponentUUID, fields...); err != nil {
		return 0, err
	}

	comp, id, existed, err := imp.target(store.KindAction, p)
	if err != nil {
		return 0, err
	}
	row := &store.Action{}
	if id != nil {
		if row, err = imp.e.store.GetAction(*id); err != nil {
			return 0, err
		}
	}
	fedID, componentID := p.FedID, comp.ID
	row.FedID, row.ComponentID = &fedID, &componentID
	row.ActionTypeID, row.InstrumentID, row.UserID = actionTypeID, instrumentID, userID
	row.Schema = p.Schema
	row.DescriptionIsMarkdown = p.DescriptionIsMarkdown
	row.ShortDescriptionIsMarkdown = p.ShortDescriptionIsMarkdown
	row.IsHidden = p.IsHidden
	row.Translations = p.Translations
	if err := imp.e.store.SaveAction(row); err != nil {
		return 0, err
	}
	return row.ID, imp.finish(store.KindAction, row.ID, p, existed)
}

func (h actionHandler) Preprocess(ex *exporter, id int64) (map[string]any, error) {
	a, err := ex.e.store.GetAction(id)
	if err != nil {
		return nil, err
	}
	wire, err := ex.identity(store.KindAction, h.IDKey(), id, a.FedID, a.ComponentID)
	if err != nil {
		return nil, err
	}
	if err := ex.putRef(wire, "action_type", store.KindActionType, a.ActionTypeID); err != nil {
		return nil, err
	}
	if err := ex.putRef(wire, "instrument", store.KindInstrument, a.InstrumentID); err != nil {
		return nil, err
	}
	if err := ex.putRef(wire, "user", store.KindUser, a.UserID); err != nil {
		return nil, err
	}
	if a.Schema != nil {
		wire["schema"] = map[string]any(a.Schema)
	}
	wire["description_is_markdown"] = a.DescriptionIsMarkdown
	wire["short_description_is_markdown"] = a.ShortDescriptionIsMarkdown
	wire["is_hidden"] = a.IsHidden
	fields := markdownFieldList(map[string]bool{
		"description":       a.DescriptionIsMarkdown,
		"short_description": a.ShortDescriptionIsMarkdown,
	})
	tr, err := ex.qualifyTranslations(a.Translations, fields...)
	if err != nil {
		return nil, err
	}
	wire["translations"] = translationList(tr)
	return wire, nil
}
