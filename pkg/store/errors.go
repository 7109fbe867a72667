package store

import (
	"errors"
	"fmt"
)

// DoesNotExistError reports that an entity of the given kind could not be found.
// Sentinels such as ErrObjectDoesNotExist match any DoesNotExistError of the same
// kind via errors.Is.
type DoesNotExistError struct {
	Kind Kind
	ID   int64
	UUID string
}

func (e *DoesNotExistError) Error() string {
	name := e.Kind.Singular()
	switch {
	case e.UUID != "":
		return fmt.Sprintf("%s with uuid %s does not exist", name, e.UUID)
	case e.ID != 0:
		return fmt.Sprintf("%s #%d does not exist", name, e.ID)
	default:
		return fmt.Sprintf("%s does not exist", name)
	}
}

// Is matches sentinels (zero ID and UUID) of the same kind.
func (e *DoesNotExistError) Is(target error) bool {
	t, ok := target.(*DoesNotExistError)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	if t.ID == 0 && t.UUID == "" {
		return true
	}
	return t.ID == e.ID && t.UUID == e.UUID
}

// NotFound builds a DoesNotExistError for a local id.
func NotFound(kind Kind, id int64) error {
	return &DoesNotExistError{Kind: kind, ID: id}
}

var (
	ErrObjectDoesNotExist                   = &DoesNotExistError{Kind: KindObject}
	ErrUserDoesNotExist                     = &DoesNotExistError{Kind: KindUser}
	ErrActionDoesNotExist                   = &DoesNotExistError{Kind: KindAction}
	ErrActionTypeDoesNotExist               = &DoesNotExistError{Kind: KindActionType}
	ErrInstrumentDoesNotExist               = &DoesNotExistError{Kind: KindInstrument}
	ErrLocationDoesNotExist                 = &DoesNotExistError{Kind: KindLocation}
	ErrLocationTypeDoesNotExist             = &DoesNotExistError{Kind: KindLocationType}
	ErrCommentDoesNotExist                  = &DoesNotExistError{Kind: KindComment}
	ErrFileDoesNotExist                     = &DoesNotExistError{Kind: KindFile}
	ErrObjectLocationAssignmentDoesNotExist = &DoesNotExistError{Kind: KindObjectLocationAssignment}
	ErrComponentDoesNotExist                = &DoesNotExistError{Kind: KindComponent}
)

// ErrInvalidComponentUUID is returned for malformed component UUIDs and for
// attempts to register the local instance as a component.
var ErrInvalidComponentUUID = errors.New("invalid component uuid")
