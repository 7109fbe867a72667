package federation

import (
	"github.com/sampledb/sampledb/pkg/store"
)

// ParsedInstrument is a validated instrument payload.
type ParsedInstrument struct {
	Header
	DescriptionIsMarkdown      bool
	ShortDescriptionIsMarkdown bool
	NotesIsMarkdown            bool
	IsHidden                   bool
	Translations               store.Translations
}

type instrumentHandler struct{}

func (instrumentHandler) Kind() store.Kind { return store.KindInstrument }
func (instrumentHandler) IDKey() string    { return "instrument_id" }

func (h instrumentHandler) Parse(p *Parser, wire any, path string) (Parsed, error) {
	r, err := p.read(wire, path)
	if err != nil {
		return nil, err
	}
	head, err := r.header(h.IDKey())
	if err != nil {
		return nil, err
	}
	in := &ParsedInstrument{Header: head}
	for key, dest := range map[string]*bool{
		"description_is_markdown":       &in.DescriptionIsMarkdown,
		"short_description_is_markdown": &in.ShortDescriptionIsMarkdown,
		"notes_is_markdown":             &in.NotesIsMarkdown,
		"is_hidden":                     &in.IsHidden,
	} {
		if *dest, err = r.optBool(key); err != nil {
			return nil, err
		}
	}
	in.Translations, err = r.translations("translations",
		[]string{"name"},
		[]string{"description", "short_description", "notes"})
	if err != nil {
		return nil, err
	}
	return in, nil
}

// markdownFields lists the translation fields holding markdown.
func (p *ParsedInstrument) markdownFields() []string {
	return markdownFieldList(map[string]bool{
		"description":       p.DescriptionIsMarkdown,
		"short_description": p.ShortDescriptionIsMarkdown,
		"notes":             p.NotesIsMarkdown,
	})
}

func (instrumentHandler) Import(imp *importer, parsed Parsed) (int64, error) {
	p := parsed.(*ParsedInstrument)
	comp, id, existed, err := imp.target(store.KindInstrument, p)
	if err != nil {
		return 0, err
	}
	if err := imp.localizeTranslations(p.Translations, p.ComponentUUID, p.markdownFields()...); err != nil {
		return 0, err
	}
	row := &store.Instrument{}
	if id != nil {
		if row, err = imp.e.store.GetInstrument(*id); err != nil {
			return 0, err
		}
	}
	fedID, componentID := p.FedID, comp.ID
	row.FedID, row.ComponentID = &fedID, &componentID
	row.DescriptionIsMarkdown = p.DescriptionIsMarkdown
	row.ShortDescriptionIsMarkdown = p.ShortDescriptionIsMarkdown
	row.NotesIsMarkdown = p.NotesIsMarkdown
	row.IsHidden = p.IsHidden
	row.Translations = p.Translations
	if err := imp.e.store.SaveInstrument(row); err != nil {
		return 0, err
	}
	return row.ID, imp.finish(store.KindInstrument, row.ID, p, existed)
}

func (h instrumentHandler) Preprocess(ex *exporter, id int64) (map[string]any, error) {
	in, err := ex.e.store.GetInstrument(id)
	if err != nil {
		return nil, err
	}
	wire, err := ex.identity(store.KindInstrument, h.IDKey(), id, in.FedID, in.ComponentID)
	if err != nil {
		return nil, err
	}
	wire["description_is_markdown"] = in.DescriptionIsMarkdown
	wire["short_description_is_markdown"] = in.ShortDescriptionIsMarkdown
	wire["notes_is_markdown"] = in.NotesIsMarkdown
	wire["is_hidden"] = in.IsHidden
	fields := markdownFieldList(map[string]bool{
		"description":       in.DescriptionIsMarkdown,
		"short_description": in.ShortDescriptionIsMarkdown,
		"notes":             in.NotesIsMarkdown,
	})
	tr, err := ex.qualifyTranslations(in.Translations, fields...)
	if err != nil {
		return nil, err
	}
	wire["translations"] = translationList(tr)
	return wire, nil
}

func markdownFieldList(flags map[string]bool) []string {
	var fields []string
	for f, md := range flags {
		if md {
			fields = append(fields, f)
		}
	}
	return fields
}
