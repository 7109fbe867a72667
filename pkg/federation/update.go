package federation

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/sampledb/sampledb/pkg/store"
)

// UpdateResult counts what an import changed, per kind.
type UpdateResult struct {
	Imported map[store.Kind]int `json:"imported"`
	Updated  map[store.Kind]int `json:"updated"`
	Stubs    map[store.Kind]int `json:"stubs"`
}

func newUpdateResult() *UpdateResult {
	return &UpdateResult{
		Imported: map[store.Kind]int{},
		Updated:  map[store.Kind]int{},
		Stubs:    map[store.Kind]int{},
	}
}

// Batch is a parsed update batch.
type Batch struct {
	Entities map[store.Kind][]Parsed
	Images   map[string][]byte
	index    map[Identity]Parsed
}

// Locations returns the parsed locations of the batch.
func (b *Batch) Locations() []*ParsedLocation {
	locs := make([]*ParsedLocation, 0, len(b.Entities[store.KindLocation]))
	for _, p := range b.Entities[store.KindLocation] {
		locs = append(locs, p.(*ParsedLocation))
	}
	return locs
}

// ParseBatch validates a complete update batch without touching storage.
func (e *Engine) ParseBatch(wire map[string]any) (*Batch, error) {
	b := &Batch{
		Entities: map[store.Kind][]Parsed{},
		Images:   map[string][]byte{},
		index:    map[Identity]Parsed{},
	}
	known := map[string]bool{"markdown_images": true}
	for _, kind := range store.FederatedKinds {
		key := string(kind)
		known[key] = true
		raw, ok := wire[key]
		if !ok || raw == nil {
			continue
		}
		list, ok := raw.([]any)
		if !ok {
			return nil, invalidf(key, "must be a list")
		}
		h, err := e.handler(kind)
		if err != nil {
			return nil, err
		}
		for i, item := range list {
			parsed, err := h.Parse(e.parser, item, joinPath(key, fmt.Sprint(i)))
			if err != nil {
				return nil, err
			}
			b.Entities[kind] = append(b.Entities[kind], parsed)
			if obj, ok := parsed.(*ParsedObject); ok {
				obj.index(b.index)
			} else {
				b.index[identityOf(kind, parsed)] = parsed
			}
		}
	}
	for key := range wire {
		if !known[key] {
			e.logger.Warn("ignoring unknown update batch key", "key", key)
		}
	}

	if raw, ok := wire["markdown_images"]; ok && raw != nil {
		images, ok := raw.(map[string]any)
		if !ok {
			return nil, invalidf("markdown_images", "must be a mapping")
		}
		for name, v := range images {
			s, ok := v.(string)
			if !ok {
				return nil, invalidf(joinPath("markdown_images", name), "must be a base64 string")
			}
			content, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				return nil, invalidf(joinPath("markdown_images", name), "invalid base64 content")
			}
			b.Images[name] = content
		}
	}
	return b, nil
}

// UpdateShares imports an update batch received from componentID. The batch
// is parsed completely before anything is written, and imported in one
// transaction: any error leaves storage untouched.
func (e *Engine) UpdateShares(ctx context.Context, componentID int64, wire map[string]any) (*UpdateResult, error) {
	sender, err := e.store.GetComponent(componentID)
	if err != nil {
		return nil, err
	}
	batch, err := e.ParseBatch(wire)
	if err != nil {
		return nil, err
	}

	var result *UpdateResult
	err = e.inTx(ctx, func(tx *Engine) error {
		if err := tx.checkLocationCycles(batch.Locations()); err != nil {
			return err
		}
		imp := tx.newImporter(sender, batch.index, batch.Images)
		for _, kind := range store.FederatedKinds {
			for _, parsed := range batch.Entities[kind] {
				if _, err := imp.importParsed(kind, parsed); err != nil {
					return err
				}
			}
		}
		if err := imp.applyPolicies(); err != nil {
			return err
		}
		if err := tx.store.TouchComponentSync(sender.ID, tx.now().UTC()); err != nil {
			return err
		}
		result = imp.result
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("processed update batch", "component", sender.UUID,
		"imported", result.Imported, "updated", result.Updated, "stubs", result.Stubs)
	return result, nil
}
