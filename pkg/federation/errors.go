package federation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sampledb/sampledb/pkg/schemas"
)

// ErrInvalidDataExport matches every InvalidDataExportError via errors.Is.
var ErrInvalidDataExport = errors.New("invalid data export")

// ErrObjectNotShared is returned when exporting an object that has no share
// with the target component.
var ErrObjectNotShared = errors.New("object is not shared with component")

// InvalidDataExportError reports a malformed federation payload. Path is the
// dotted location of the offending value inside the payload.
type InvalidDataExportError struct {
	Path    string
	Message string
}

func (e *InvalidDataExportError) Error() string {
	if e.Path == "" {
		return "invalid data export: " + e.Message
	}
	return fmt.Sprintf("invalid data export: %s: %s", e.Path, e.Message)
}

func (e *InvalidDataExportError) Unwrap() error { return ErrInvalidDataExport }

func invalidf(path, format string, args ...any) error {
	return &InvalidDataExportError{Path: path, Message: fmt.Sprintf(format, args...)}
}

// fromValidation converts a schema or data validation error found below prefix.
func fromValidation(prefix string, err error) error {
	var verr *schemas.ValidationError
	if !errors.As(err, &verr) {
		return err
	}
	return &InvalidDataExportError{Path: joinPath(prefix, verr.PathString()), Message: verr.Message}
}

func joinPath(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ".")
}
