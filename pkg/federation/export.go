package federation

import (
	"context"
	"encoding/base64"
	"errors"
	"sort"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/sampledb/sampledb/pkg/fedlog"
	"github.com/sampledb/sampledb/pkg/markdown"
	"github.com/sampledb/sampledb/pkg/schemas"
	"github.com/sampledb/sampledb/pkg/store"
)

// exporter holds the state of one export to a component: the worklist of
// referenced entities and the markdown images collected so far.
type exporter struct {
	e         *Engine
	component *store.Component
	queue     []store.Ref
	seen      mapset.Set[store.Ref]
	images    map[string]string
	policies  map[int64]*Policy
}

func (e *Engine) newExporter(component *store.Component) *exporter {
	return &exporter{
		e:         e,
		component: component,
		seen:      mapset.NewThreadUnsafeSet[store.Ref](),
		images:    map[string]string{},
		policies:  map[int64]*Policy{},
	}
}

// enqueue adds an entity to the worklist unless it was queued before.
func (ex *exporter) enqueue(kind store.Kind, id int64) {
	ref := store.Ref{Kind: kind, ID: id}
	if ex.seen.Add(ref) {
		ex.queue = append(ex.queue, ref)
	}
}

// policy returns the share policy of an object for the target component.
func (ex *exporter) policy(objectID int64) (*Policy, error) {
	if p, ok := ex.policies[objectID]; ok {
		return p, nil
	}
	share, err := ex.e.store.GetObjectShare(objectID, ex.component.ID)
	if err != nil {
		return nil, err
	}
	if share == nil {
		return nil, ErrObjectNotShared
	}
	p, err := ex.e.parser.parsePolicy(map[string]any(share.Policy), "policy")
	if err != nil {
		return nil, err
	}
	ex.policies[objectID] = p
	return p, nil
}

// identity starts the wire payload of an entity. Imported entities keep the
// identity they have on their origin component.
func (ex *exporter) identity(kind store.Kind, idKey string, id int64, fedID, componentID *int64) (map[string]any, error) {
	if componentID == nil || fedID == nil {
		return map[string]any{idKey: id, "component_uuid": ex.e.store.LocalUUID()}, nil
	}
	componentUUID, err := ex.e.store.ComponentUUID(componentID)
	if err != nil {
		return nil, err
	}
	return map[string]any{idKey: *fedID, "component_uuid": componentUUID}, nil
}

// ref returns the wire reference to a local entity and queues the entity.
func (ex *exporter) ref(kind store.Kind, id int64) (map[string]any, error) {
	r, err := ex.bareRef(kind, id)
	if err != nil {
		return nil, err
	}
	ex.enqueue(kind, id)
	return r, nil
}

// bareRef builds the federation reference of an entity without queuing the
// entity itself, so the peer only learns its identity.
func (ex *exporter) bareRef(kind store.Kind, id int64) (map[string]any, error) {
	h, err := ex.e.handler(kind)
	if err != nil {
		return nil, err
	}
	fedID, componentID, err := ex.e.store.FederationIdentity(kind, id)
	if err != nil {
		return nil, err
	}
	return ex.identity(kind, h.IDKey(), id, fedID, componentID)
}

func (ex *exporter) putRef(wire map[string]any, key string, kind store.Kind, id *int64) error {
	if id == nil {
		return nil
	}
	ref, err := ex.ref(kind, *id)
	if err != nil {
		return err
	}
	wire[key] = ref
	return nil
}

// putUserRef adds a user reference. The user record itself is exported only
// when users are shared.
func (ex *exporter) putUserRef(wire map[string]any, key string, id *int64, users bool) error {
	if id == nil {
		return nil
	}
	if users {
		return ex.putRef(wire, key, store.KindUser, id)
	}
	ref, err := ex.bareRef(store.KindUser, *id)
	if err != nil {
		return err
	}
	wire[key] = ref
	return nil
}

// sharesUsers reports whether the share of objectID grants access to users.
// Entities of objects without a share never export users.
func (ex *exporter) sharesUsers(objectID int64) (bool, error) {
	p, err := ex.policy(objectID)
	if errors.Is(err, ErrObjectNotShared) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return p.Access.Users, nil
}

// exportData rewrites local user and object references of data and of the
// schema's conditions to federation references and qualifies markdown
// images. Referenced users are exported only when users is set.
func (ex *exporter) exportData(schema, data map[string]any, users bool) error {
	err := schemas.VisitReferences(schema, data, func(_ *schemas.Node, leaf map[string]any, idKey string) error {
		return ex.exportRef(leaf, idKey, users)
	})
	if err != nil {
		return err
	}
	err = schemas.VisitConditionReferences(schema, func(cond map[string]any, idKey string) error {
		return ex.exportRef(cond, idKey, users)
	})
	if err != nil {
		return err
	}
	return schemas.VisitMarkdown(schema, data, func(_ *schemas.Node, leaf map[string]any) error {
		switch text := leaf["text"].(type) {
		case string:
			out, err := ex.qualifyMarkdown(text)
			if err != nil {
				return err
			}
			leaf["text"] = out
		case map[string]any:
			for lang, v := range text {
				if s, ok := v.(string); ok {
					out, err := ex.qualifyMarkdown(s)
					if err != nil {
						return err
					}
					text[lang] = out
				}
			}
		}
		return nil
	})
}

// qualifyMarkdown qualifies local image names with the local uuid and
// collects the image contents.
func (ex *exporter) qualifyMarkdown(src string) (string, error) {
	names := markdown.ImageNames(src)
	out, qualified := markdown.Qualify(src, ex.e.store.LocalUUID())
	for i, name := range names {
		img, err := ex.e.store.GetMarkdownImage(name)
		if err != nil {
			return "", err
		}
		if img == nil {
			ex.e.logger.Warn("markdown image not found", "name", name)
			continue
		}
		ex.images[qualified[i]] = base64.StdEncoding.EncodeToString(img.Content)
	}
	return out, nil
}

func (ex *exporter) qualifyTranslations(tr store.Translations, fields ...string) (store.Translations, error) {
	out := make(store.Translations, len(tr))
	for lang, t := range tr {
		copied := make(map[string]string, len(t))
		for k, v := range t {
			copied[k] = v
		}
		for _, f := range fields {
			s, ok := copied[f]
			if !ok {
				continue
			}
			q, err := ex.qualifyMarkdown(s)
			if err != nil {
				return nil, err
			}
			copied[f] = q
		}
		out[lang] = copied
	}
	return out, nil
}

// translationList converts translations to their wire list, ordered by
// language code.
func translationList(tr store.Translations) []any {
	langs := make([]string, 0, len(tr))
	for lang := range tr {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	list := make([]any, 0, len(langs))
	for _, lang := range langs {
		entry := map[string]any{"language_code": lang}
		for k, v := range tr[lang] {
			entry[k] = v
		}
		list = append(list, entry)
	}
	return list
}

func putString(wire map[string]any, key string, v *string) {
	if v != nil {
		wire[key] = *v
	}
}

func putLangMap(wire map[string]any, key string, m store.JSONStringMap) {
	if m == nil {
		return
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	wire[key] = out
}

func formatDatetime(t time.Time) string {
	return t.UTC().Format(DatetimeLayout)
}

// Preprocess serializes one local entity for componentID. It returns the wire
// payload, the entities it references and the markdown images it uses. A nil
// payload means the entity is not exported, e.g. a user owned by another
// component.
func (e *Engine) Preprocess(kind store.Kind, id, componentID int64) (map[string]any, []store.Ref, map[string]string, error) {
	h, err := e.handler(kind)
	if err != nil {
		return nil, nil, nil, err
	}
	comp, err := e.store.GetComponent(componentID)
	if err != nil {
		return nil, nil, nil, err
	}
	ex := e.newExporter(comp)
	ex.seen.Add(store.Ref{Kind: kind, ID: id})
	wire, err := h.Preprocess(ex, id)
	if err != nil {
		return nil, nil, nil, err
	}
	return wire, ex.queue, ex.images, nil
}

// ShareObject shares an object with a component under policy, or replaces the
// policy of an existing share.
func (e *Engine) ShareObject(ctx context.Context, objectID, componentID int64, policy map[string]any, userID *int64) error {
	if _, err := e.parser.parsePolicy(policy, "policy"); err != nil {
		return err
	}
	return e.inTx(ctx, func(tx *Engine) error {
		if err := tx.store.MustExist(store.KindObject, objectID); err != nil {
			return err
		}
		if _, err := tx.store.GetComponent(componentID); err != nil {
			return err
		}
		existed, err := tx.store.UpsertObjectShare(&store.ObjectShare{
			ObjectID:    objectID,
			ComponentID: componentID,
			Policy:      policy,
			UTCDatetime: tx.now().UTC(),
			UserID:      userID,
		})
		if err != nil {
			return err
		}
		action := fedlog.ActionShare
		if existed {
			action = fedlog.ActionUpdateShare
		}
		return tx.fedlog.Record(store.KindObject, objectID, componentID, action, policy, userID)
	})
}

// ExportShares builds the update batch for componentID: every object shared
// with it plus everything those objects reference.
func (e *Engine) ExportShares(ctx context.Context, componentID int64) (map[string]any, error) {
	var batch map[string]any
	err := e.inTx(ctx, func(tx *Engine) error {
		comp, err := tx.store.GetComponent(componentID)
		if err != nil {
			return err
		}
		shares, err := tx.store.ListObjectSharesForComponent(componentID)
		if err != nil {
			return err
		}
		ex := tx.newExporter(comp)
		for _, share := range shares {
			if _, err := ex.policy(share.ObjectID); err != nil {
				return err
			}
			ex.enqueue(store.KindObject, share.ObjectID)
		}

		batch = map[string]any{}
		for len(ex.queue) > 0 {
			ref := ex.queue[0]
			ex.queue = ex.queue[1:]
			if ref.Kind == store.KindObject {
				if _, shared := ex.policies[ref.ID]; !shared {
					// referenced but not shared; the peer keeps a placeholder
					continue
				}
			}
			h, err := tx.handler(ref.Kind)
			if err != nil {
				return err
			}
			wire, err := h.Preprocess(ex, ref.ID)
			if err != nil {
				return err
			}
			if wire == nil {
				continue
			}
			list, _ := batch[string(ref.Kind)].([]any)
			batch[string(ref.Kind)] = append(list, wire)
			if err := tx.logFirstShare(ref, componentID, wire); err != nil {
				return err
			}
		}
		if len(ex.images) > 0 {
			images := make(map[string]any, len(ex.images))
			for name, content := range ex.images {
				images[name] = content
			}
			batch["markdown_images"] = images
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return batch, nil
}

// logFirstShare records a SHARE entry the first time an entity is sent to a
// component. Objects are logged when they are shared.
func (e *Engine) logFirstShare(ref store.Ref, componentID int64, wire map[string]any) error {
	if ref.Kind == store.KindObject {
		return nil
	}
	logged, err := e.fedlog.HasEntry(ref.Kind, ref.ID, componentID, fedlog.ActionShare)
	if err != nil || logged {
		return err
	}
	return e.fedlog.Record(ref.Kind, ref.ID, componentID, fedlog.ActionShare, wire, nil)
}

// exportRef replaces the local id m[idKey] with its federation identity.
// References already owned by another component are left alone; ids that do
// not exist locally keep their value under the local component.
func (ex *exporter) exportRef(m map[string]any, idKey string, users bool) error {
	id, ok := schemas.Integer(m[idKey])
	if !ok {
		return nil
	}
	if u, ok := m["component_uuid"].(string); ok && u != "" && !ex.e.store.IsLocalUUID(u) {
		return nil
	}
	kind := store.KindObject
	if idKey == "user_id" {
		kind = store.KindUser
	}
	var ref map[string]any
	var err error
	if kind == store.KindUser && !users {
		ref, err = ex.bareRef(kind, id)
	} else {
		ref, err = ex.ref(kind, id)
	}
	if errors.Is(err, &store.DoesNotExistError{Kind: kind}) {
		m["component_uuid"] = ex.e.store.LocalUUID()
		return nil
	}
	if err != nil {
		return err
	}
	m[idKey] = ref[idKey]
	m["component_uuid"] = ref["component_uuid"]
	return nil
}
