package federation

import (
	"time"

	"github.com/sampledb/sampledb/pkg/store"
)

// ParsedFile is a validated file payload. Data is nil for files whose
// content is not shared.
type ParsedFile struct {
	Header
	Object      *Ref
	User        *Ref
	Data        map[string]any
	UTCDatetime time.Time
	Hidden      bool
	HideReason  *string

	objectID *int64
}

type fileHandler struct{}

func (fileHandler) Kind() store.Kind { return store.KindFile }
func (fileHandler) IDKey() string    { return "file_id" }

func (h fileHandler) Parse(p *Parser, wire any, path string) (Parsed, error) {
	r, err := p.read(wire, path)
	if err != nil {
		return nil, err
	}
	head, err := r.header(h.IDKey())
	if err != nil {
		return nil, err
	}
	f := &ParsedFile{Header: head}
	if f.Object, err = r.ref("object", "object_id"); err != nil {
		return nil, err
	}
	if f.User, err = r.ref("user", "user_id"); err != nil {
		return nil, err
	}
	if f.Data, err = parseFileData(r); err != nil {
		return nil, err
	}
	at, err := r.datetime("utc_datetime", true)
	if err != nil {
		return nil, err
	}
	f.UTCDatetime = *at
	if f.Hidden, err = r.optBool("hidden"); err != nil {
		return nil, err
	}
	if f.HideReason, err = r.optString("hide_reason"); err != nil {
		return nil, err
	}
	return f, nil
}

// parseFileData accepts {storage: url, url} and {storage: federation,
// original_file_name}.
func parseFileData(r *reader) (map[string]any, error) {
	raw, err := r.optMap("data")
	if err != nil || raw == nil {
		return nil, err
	}
	d, err := r.p.read(raw, r.at("data"))
	if err != nil {
		return nil, err
	}
	storage, err := d.str("storage", true)
	if err != nil {
		return nil, err
	}
	switch storage {
	case "url":
		url, err := d.str("url", true)
		if err != nil {
			return nil, err
		}
		return map[string]any{"storage": storage, "url": url}, nil
	case "federation":
		name, err := d.str("original_file_name", true)
		if err != nil {
			return nil, err
		}
		return map[string]any{"storage": storage, "original_file_name": name}, nil
	}
	return nil, invalidf(d.at("storage"), "unsupported file storage %q", storage)
}

func (fileHandler) Import(imp *importer, parsed Parsed) (int64, error) {
	p := parsed.(*ParsedFile)
	objectID := p.objectID
	if objectID == nil {
		var err error
		if objectID, err = imp.resolve(store.KindObject, p.Object, Required, "object"); err != nil {
			return 0, err
		}
	}
	userID, err := imp.resolve(store.KindUser, p.User, OptionalStub, "user")
	if err != nil {
		return 0, err
	}

	comp, id, existed, err := imp.target(store.KindFile, p)
	if err != nil {
		return 0, err
	}
	row := &store.File{}
	if id != nil {
		if row, err = imp.e.store.GetFile(*id); err != nil {
			return 0, err
		}
	}
	fedID, componentID := p.FedID, comp.ID
	row.FedID, row.ComponentID = &fedID, &componentID
	row.ObjectID, row.UserID = *objectID, userID
	row.Data = p.Data
	row.UTCDatetime = p.UTCDatetime
	row.Hidden, row.HideReason = p.Hidden, p.HideReason
	if err := imp.e.store.SaveFile(row); err != nil {
		return 0, err
	}
	return row.ID, imp.finish(store.KindFile, row.ID, p, existed)
}

func (h fileHandler) Preprocess(ex *exporter, id int64) (map[string]any, error) {
	f, err := ex.e.store.GetFile(id)
	if err != nil {
		return nil, err
	}
	users, err := ex.sharesUsers(f.ObjectID)
	if err != nil {
		return nil, err
	}
	wire, err := h.wire(ex, f, users)
	if err != nil {
		return nil, err
	}
	if err := ex.putRef(wire, "object", store.KindObject, &f.ObjectID); err != nil {
		return nil, err
	}
	return wire, nil
}

func (h fileHandler) wire(ex *exporter, f *store.File, users bool) (map[string]any, error) {
	wire, err := ex.identity(store.KindFile, h.IDKey(), f.ID, f.FedID, f.ComponentID)
	if err != nil {
		return nil, err
	}
	if err := ex.putUserRef(wire, "user", f.UserID, users); err != nil {
		return nil, err
	}
	wire["utc_datetime"] = formatDatetime(f.UTCDatetime)
	wire["hidden"] = f.Hidden
	putString(wire, "hide_reason", f.HideReason)
	if !f.Hidden {
		if data := exportFileData(f.Data); data != nil {
			wire["data"] = data
		}
	}
	return wire, nil
}

// exportFileData keeps url files as they are; content stored on this or
// another instance is announced by file name only.
func exportFileData(data store.JSONAny) map[string]any {
	if data == nil {
		return nil
	}
	if data["storage"] == "url" {
		return map[string]any{"storage": "url", "url": data["url"]}
	}
	name, _ := data["original_file_name"].(string)
	if name == "" {
		return nil
	}
	return map[string]any{"storage": "federation", "original_file_name": name}
}
