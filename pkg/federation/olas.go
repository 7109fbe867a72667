package federation

import (
	"time"

	"github.com/sampledb/sampledb/pkg/store"
)

// ParsedObjectLocationAssignment is a validated object location assignment.
type ParsedObjectLocationAssignment struct {
	Header
	Object          *Ref
	Location        *Ref
	ResponsibleUser *Ref
	User            *Ref
	Description     store.JSONStringMap
	UTCDatetime     time.Time
	Confirmed       bool
	Declined        bool

	objectID *int64
}

type olaHandler struct{}

func (olaHandler) Kind() store.Kind { return store.KindObjectLocationAssignment }
func (olaHandler) IDKey() string    { return "id" }

func (h olaHandler) Parse(p *Parser, wire any, path string) (Parsed, error) {
	r, err := p.read(wire, path)
	if err != nil {
		return nil, err
	}
	head, err := r.header(h.IDKey())
	if err != nil {
		return nil, err
	}
	a := &ParsedObjectLocationAssignment{Header: head}
	for key, ref := range map[string]struct {
		dest  **Ref
		idKey string
	}{
		"object":           {&a.Object, "object_id"},
		"location":         {&a.Location, "location_id"},
		"responsible_user": {&a.ResponsibleUser, "user_id"},
		"user":             {&a.User, "user_id"},
	} {
		if *ref.dest, err = r.ref(key, ref.idKey); err != nil {
			return nil, err
		}
	}
	if a.Description, err = r.langMap("description"); err != nil {
		return nil, err
	}
	at, err := r.datetime("utc_datetime", true)
	if err != nil {
		return nil, err
	}
	a.UTCDatetime = *at
	if a.Confirmed, err = r.optBool("confirmed"); err != nil {
		return nil, err
	}
	if a.Declined, err = r.optBool("declined"); err != nil {
		return nil, err
	}
	if a.Confirmed && a.Declined {
		return nil, invalidf(r.at("declined"), "assignment cannot be both confirmed and declined")
	}
	return a, nil
}

func (olaHandler) Import(imp *importer, parsed Parsed) (int64, error) {
	p := parsed.(*ParsedObjectLocationAssignment)
	objectID := p.objectID
	if objectID == nil {
		var err error
		if objectID, err = imp.resolve(store.KindObject, p.Object, Required, "object"); err != nil {
			return 0, err
		}
	}
	locationID, err := imp.resolve(store.KindLocation, p.Location, OptionalStub, "location")
	if err != nil {
		return 0, err
	}
	responsibleID, err := imp.resolve(store.KindUser, p.ResponsibleUser, OptionalStub, "responsible_user")
	if err != nil {
		return 0, err
	}
	userID, err := imp.resolve(store.KindUser, p.User, OptionalStub, "user")
	if err != nil {
		return 0, err
	}

	comp, id, existed, err := imp.target(store.KindObjectLocationAssignment, p)
	if err != nil {
		return 0, err
	}
	row := &store.ObjectLocationAssignment{}
	if id != nil {
		if row, err = imp.e.store.GetObjectLocationAssignment(*id); err != nil {
			return 0, err
		}
	}
	fedID, componentID := p.FedID, comp.ID
	row.FedID, row.ComponentID = &fedID, &componentID
	row.ObjectID = *objectID
	row.LocationID, row.ResponsibleUserID, row.UserID = locationID, responsibleID, userID
	row.Description = p.Description
	row.UTCDatetime = p.UTCDatetime
	row.Confirmed, row.Declined = p.Confirmed, p.Declined
	if err := imp.e.store.SaveObjectLocationAssignment(row); err != nil {
		return 0, err
	}
	return row.ID, imp.finish(store.KindObjectLocationAssignment, row.ID, p, existed)
}

func (h olaHandler) Preprocess(ex *exporter, id int64) (map[string]any, error) {
	a, err := ex.e.store.GetObjectLocationAssignment(id)
	if err != nil {
		return nil, err
	}
	users, err := ex.sharesUsers(a.ObjectID)
	if err != nil {
		return nil, err
	}
	wire, err := h.wire(ex, a, users)
	if err != nil {
		return nil, err
	}
	if err := ex.putRef(wire, "object", store.KindObject, &a.ObjectID); err != nil {
		return nil, err
	}
	return wire, nil
}

func (h olaHandler) wire(ex *exporter, a *store.ObjectLocationAssignment, users bool) (map[string]any, error) {
	wire, err := ex.identity(store.KindObjectLocationAssignment, h.IDKey(), a.ID, a.FedID, a.ComponentID)
	if err != nil {
		return nil, err
	}
	if err := ex.putRef(wire, "location", store.KindLocation, a.LocationID); err != nil {
		return nil, err
	}
	if err := ex.putUserRef(wire, "responsible_user", a.ResponsibleUserID, users); err != nil {
		return nil, err
	}
	if err := ex.putUserRef(wire, "user", a.UserID, users); err != nil {
		return nil, err
	}
	putLangMap(wire, "description", a.Description)
	wire["utc_datetime"] = formatDatetime(a.UTCDatetime)
	wire["confirmed"] = a.Confirmed
	wire["declined"] = a.Declined
	return wire, nil
}
