package federation

import (
	"time"

	"github.com/sampledb/sampledb/pkg/store"
)

// ParsedComment is a validated comment payload.
type ParsedComment struct {
	Header
	Object      *Ref
	User        *Ref
	Content     string
	UTCDatetime time.Time

	// objectID is set when the comment ships nested in its object.
	objectID *int64
}

type commentHandler struct{}

func (commentHandler) Kind() store.Kind { return store.KindComment }
func (commentHandler) IDKey() string    { return "comment_id" }

func (h commentHandler) Parse(p *Parser, wire any, path string) (Parsed, error) {
	r, err := p.read(wire, path)
	if err != nil {
		return nil, err
	}
	head, err := r.header(h.IDKey())
	if err != nil {
		return nil, err
	}
	c := &ParsedComment{Header: head}
	if c.Object, err = r.ref("object", "object_id"); err != nil {
		return nil, err
	}
	if c.User, err = r.ref("user", "user_id"); err != nil {
		return nil, err
	}
	if c.Content, err = r.str("content", true); err != nil {
		return nil, err
	}
	at, err := r.datetime("utc_datetime", true)
	if err != nil {
		return nil, err
	}
	c.UTCDatetime = *at
	return c, nil
}

func (commentHandler) Import(imp *importer, parsed Parsed) (int64, error) {
	p := parsed.(*ParsedComment)
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

	comp, id, existed, err := imp.target(store.KindComment, p)
	if err != nil {
		return 0, err
	}
	row := &store.Comment{}
	if id != nil {
		if row, err = imp.e.store.GetComment(*id); err != nil {
			return 0, err
		}
	}
	fedID, componentID := p.FedID, comp.ID
	row.FedID, row.ComponentID = &fedID, &componentID
	row.ObjectID, row.UserID = *objectID, userID
	row.Content = p.Content
	row.UTCDatetime = p.UTCDatetime
	if err := imp.e.store.SaveComment(row); err != nil {
		return 0, err
	}
	return row.ID, imp.finish(store.KindComment, row.ID, p, existed)
}

func (h commentHandler) Preprocess(ex *exporter, id int64) (map[string]any, error) {
	c, err := ex.e.store.GetComment(id)
	if err != nil {
		return nil, err
	}
	users, err := ex.sharesUsers(c.ObjectID)
	if err != nil {
		return nil, err
	}
	wire, err := h.wire(ex, c, users)
	if err != nil {
		return nil, err
	}
	if err := ex.putRef(wire, "object", store.KindObject, &c.ObjectID); err != nil {
		return nil, err
	}
	return wire, nil
}

// wire serializes a comment without its object reference.
func (h commentHandler) wire(ex *exporter, c *store.Comment, users bool) (map[string]any, error) {
	wire, err := ex.identity(store.KindComment, h.IDKey(), c.ID, c.FedID, c.ComponentID)
	if err != nil {
		return nil, err
	}
	if err := ex.putUserRef(wire, "user", c.UserID, users); err != nil {
		return nil, err
	}
	wire["content"] = c.Content
	wire["utc_datetime"] = formatDatetime(c.UTCDatetime)
	return wire, nil
}
