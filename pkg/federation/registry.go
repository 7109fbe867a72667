package federation

import (
	"fmt"

	"github.com/sampledb/sampledb/pkg/store"
)

// Parsed is the validated, normalized form of one wire entity.
type Parsed interface {
	header() *Header
}

func (h *Header) header() *Header { return h }

// Identity is the federation identity of an entity: its id on the originating
// component plus that component's uuid.
type Identity struct {
	Kind          store.Kind
	FedID         int64
	ComponentUUID string
}

func identityOf(kind store.Kind, p Parsed) Identity {
	h := p.header()
	return Identity{Kind: kind, FedID: h.FedID, ComponentUUID: h.ComponentUUID}
}

// EntityHandler implements federation for one entity kind.
type EntityHandler interface {
	Kind() store.Kind
	// IDKey is the wire field holding the entity id, e.g. "object_id".
	IDKey() string
	// Parse validates a wire payload found at path.
	Parse(p *Parser, wire any, path string) (Parsed, error)
	// Import upserts a parsed entity and returns its local id.
	Import(imp *importer, parsed Parsed) (int64, error)
	// Preprocess serializes a local entity for export. A nil payload means the
	// entity is not exported.
	Preprocess(ex *exporter, id int64) (map[string]any, error)
}

func newRegistry() map[store.Kind]EntityHandler {
	handlers := []EntityHandler{
		userHandler{},
		actionTypeHandler{},
		instrumentHandler{},
		locationTypeHandler{},
		locationHandler{},
		actionHandler{},
		objectHandler{},
		commentHandler{},
		fileHandler{},
		olaHandler{},
	}
	registry := make(map[store.Kind]EntityHandler, len(handlers))
	for _, h := range handlers {
		registry[h.Kind()] = h
	}
	return registry
}

func (e *Engine) handler(kind store.Kind) (EntityHandler, error) {
	h, ok := e.handlers[kind]
	if !ok {
		return nil, fmt.Errorf("no federation handler for kind %q", kind)
	}
	return h, nil
}

// Parse validates a single wire entity of the given kind.
func (e *Engine) Parse(kind store.Kind, wire any) (Parsed, error) {
	h, err := e.handler(kind)
	if err != nil {
		return nil, err
	}
	return h.Parse(e.parser, wire, "")
}
