package federation

import (
	"context"
	"fmt"

	"github.com/sampledb/sampledb/pkg/fedlog"
	"github.com/sampledb/sampledb/pkg/markdown"
	"github.com/sampledb/sampledb/pkg/store"
)

// RefPolicy decides what happens when a referenced entity cannot be found.
type RefPolicy int

const (
	// Required references must resolve; a missing referent fails the import.
	Required RefPolicy = iota
	// OptionalStub references create a placeholder for unknown referents.
	OptionalStub
	// OptionalNull references are left unset for unknown referents.
	OptionalNull
)

func (p RefPolicy) String() string {
	switch p {
	case Required:
		return "required"
	case OptionalStub:
		return "optional_stub"
	case OptionalNull:
		return "optional_null"
	}
	return fmt.Sprintf("RefPolicy(%d)", int(p))
}

// importer holds the state of one import call. Each entity is imported at
// most once per call.
type importer struct {
	e          *Engine
	sender     *store.Component
	batch      map[Identity]Parsed
	images     map[string][]byte
	components map[string]*store.Component
	inProgress map[Identity]bool
	done       map[Identity]int64
	created    map[Identity]bool
	policies   []objectPolicy
	result     *UpdateResult
}

type objectPolicy struct {
	objectID int64
	policy   *Policy
}

func (e *Engine) newImporter(sender *store.Component, batch map[Identity]Parsed, images map[string][]byte) *importer {
	if batch == nil {
		batch = map[Identity]Parsed{}
	}
	return &importer{
		e:          e,
		sender:     sender,
		batch:      batch,
		images:     images,
		components: map[string]*store.Component{sender.UUID: sender},
		inProgress: map[Identity]bool{},
		done:       map[Identity]int64{},
		created:    map[Identity]bool{},
		result:     newUpdateResult(),
	}
}

func (imp *importer) component(componentUUID string) (*store.Component, error) {
	if c, ok := imp.components[componentUUID]; ok {
		return c, nil
	}
	c, err := imp.e.store.GetOrAddComponent(componentUUID)
	if err != nil {
		return nil, err
	}
	imp.components[componentUUID] = c
	return c, nil
}

// importParsed imports one entity unless it is local or was already imported
// during this call.
func (imp *importer) importParsed(kind store.Kind, parsed Parsed) (int64, error) {
	h := parsed.header()
	if imp.e.store.IsLocalUUID(h.ComponentUUID) {
		if err := imp.e.store.MustExist(kind, h.FedID); err != nil {
			return 0, err
		}
		return h.FedID, nil
	}
	ident := identityOf(kind, parsed)
	if id, ok := imp.done[ident]; ok {
		return id, nil
	}
	if imp.inProgress[ident] {
		// reached again through its own references
		return imp.existingOrStub(ident)
	}
	handler, err := imp.e.handler(kind)
	if err != nil {
		return 0, err
	}

	imp.inProgress[ident] = true
	id, err := handler.Import(imp, parsed)
	delete(imp.inProgress, ident)
	if err != nil {
		return 0, err
	}
	imp.done[ident] = id
	return id, nil
}

func (imp *importer) existingOrStub(ident Identity) (int64, error) {
	comp, err := imp.component(ident.ComponentUUID)
	if err != nil {
		return 0, err
	}
	id, err := imp.e.store.LocalID(ident.Kind, ident.FedID, comp.ID)
	if err != nil {
		return 0, err
	}
	if id != nil {
		return *id, nil
	}
	return imp.stub(ident, comp)
}

// resolve maps a wire reference to a local id according to policy.
func (imp *importer) resolve(kind store.Kind, ref *Ref, policy RefPolicy, path string) (*int64, error) {
	if ref == nil {
		if policy == Required {
			return nil, invalidf(path, "missing reference")
		}
		return nil, nil
	}

	if imp.e.store.IsLocalUUID(ref.ComponentUUID) {
		ok, err := imp.e.store.Exists(kind, ref.FedID)
		if err != nil {
			return nil, err
		}
		if ok {
			id := ref.FedID
			return &id, nil
		}
		if policy == Required {
			return nil, store.NotFound(kind, ref.FedID)
		}
		imp.e.logger.Warn("dropping reference to missing local entity",
			"kind", kind, "id", ref.FedID, "path", path)
		return nil, nil
	}

	ident := Identity{Kind: kind, FedID: ref.FedID, ComponentUUID: ref.ComponentUUID}
	if parsed, ok := imp.batch[ident]; ok {
		id, err := imp.importParsed(kind, parsed)
		if err != nil {
			return nil, err
		}
		return &id, nil
	}
	if id, ok := imp.done[ident]; ok {
		return &id, nil
	}

	comp, err := imp.component(ref.ComponentUUID)
	if err != nil {
		return nil, err
	}
	id, err := imp.e.store.LocalID(kind, ref.FedID, comp.ID)
	if err != nil {
		return nil, err
	}
	if id != nil {
		return id, nil
	}
	if policy == OptionalNull {
		return nil, nil
	}
	stubID, err := imp.stub(ident, comp)
	if err != nil {
		return nil, err
	}
	return &stubID, nil
}

// stub creates a placeholder row for a referenced entity without data.
func (imp *importer) stub(ident Identity, comp *store.Component) (int64, error) {
	id, err := imp.e.store.CreateStub(ident.Kind, ident.FedID, comp.ID)
	if err != nil {
		return 0, err
	}
	imp.created[ident] = true
	handler, err := imp.e.handler(ident.Kind)
	if err != nil {
		return 0, err
	}
	data := map[string]any{
		handler.IDKey():  ident.FedID,
		"component_uuid": ident.ComponentUUID,
	}
	if err := imp.e.fedlog.Record(ident.Kind, id, imp.sender.ID, fedlog.ActionCreateRef, data, nil); err != nil {
		return 0, err
	}
	imp.result.Stubs[ident.Kind]++
	imp.e.logger.Debug("created placeholder for federated reference",
		"kind", ident.Kind, "fed_id", ident.FedID, "component", ident.ComponentUUID)
	return id, nil
}

// target returns the component of a parsed entity and whether a row for it
// existed before this call.
func (imp *importer) target(kind store.Kind, parsed Parsed) (*store.Component, *int64, bool, error) {
	h := parsed.header()
	comp, err := imp.component(h.ComponentUUID)
	if err != nil {
		return nil, nil, false, err
	}
	id, err := imp.e.store.LocalID(kind, h.FedID, comp.ID)
	if err != nil {
		return nil, nil, false, err
	}
	existed := id != nil && !imp.created[identityOf(kind, parsed)]
	return comp, id, existed, nil
}

// finish writes the IMPORT or UPDATE log entry for an imported entity.
func (imp *importer) finish(kind store.Kind, id int64, parsed Parsed, existed bool) error {
	action := fedlog.ActionImport
	if existed {
		action = fedlog.ActionUpdate
	}
	h := parsed.header()
	if err := imp.e.fedlog.Record(kind, id, imp.sender.ID, action, h.Raw, nil); err != nil {
		return err
	}
	if existed {
		imp.result.Updated[kind]++
	} else {
		imp.result.Imported[kind]++
	}
	imp.e.logger.Info("imported federated entity",
		"kind", kind, "id", id, "fed_id", h.FedID, "component", h.ComponentUUID, "update", existed)
	return nil
}

// localizeMarkdown rewrites image paths of markdown received from
// ownerUUID and stores images shipped with the batch.
func (imp *importer) localizeMarkdown(src, ownerUUID string) (string, error) {
	out, names := markdown.Localize(src, ownerUUID, imp.e.store.LocalUUID())
	if len(names) == 0 {
		return out, nil
	}
	var permanent []string
	for _, name := range names {
		content, ok := imp.images[name]
		if !ok {
			_, file := markdown.SplitName(name)
			content, ok = imp.images[file]
		}
		if ok {
			if err := imp.e.store.StoreMarkdownImage(name, content, nil, imp.e.now(), true); err != nil {
				return "", err
			}
		}
		permanent = append(permanent, name)
	}
	if err := imp.e.store.MarkMarkdownImagesPermanent(permanent); err != nil {
		return "", err
	}
	return out, nil
}

// localizeTranslations rewrites markdown fields of every translation.
func (imp *importer) localizeTranslations(tr store.Translations, ownerUUID string, fields ...string) error {
	for _, t := range tr {
		for _, f := range fields {
			s, ok := t[f]
			if !ok {
				continue
			}
			out, err := imp.localizeMarkdown(s, ownerUUID)
			if err != nil {
				return err
			}
			t[f] = out
		}
	}
	return nil
}

// Import parses and imports a single entity received from componentID.
func (e *Engine) Import(ctx context.Context, kind store.Kind, wire map[string]any, componentID int64) (int64, error) {
	handler, err := e.handler(kind)
	if err != nil {
		return 0, err
	}
	parsed, err := handler.Parse(e.parser, wire, "")
	if err != nil {
		return 0, err
	}
	sender, err := e.store.GetComponent(componentID)
	if err != nil {
		return 0, err
	}
	batch := map[Identity]Parsed{}
	if obj, ok := parsed.(*ParsedObject); ok {
		obj.index(batch)
	}
	var id int64
	err = e.inTx(ctx, func(tx *Engine) error {
		if loc, ok := parsed.(*ParsedLocation); ok {
			if err := tx.checkLocationCycles([]*ParsedLocation{loc}); err != nil {
				return err
			}
		}
		imp := tx.newImporter(sender, batch, nil)
		id, err = imp.importParsed(kind, parsed)
		if err != nil {
			return err
		}
		return imp.applyPolicies()
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}
