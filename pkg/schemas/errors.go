// Package schemas validates object schemas and object data against them.
// Schema and data trees are walked by one visitor, Walk, which is also used
// to collect and rewrite typed leaves such as tags, references and markdown.
package schemas

import "strings"

// ValidationError reports the first violation found in a schema or data tree.
type ValidationError struct {
	Path    []string
	Message string
}

func (e *ValidationError) Error() string {
	if len(e.Path) == 0 {
		return e.Message
	}
	return strings.Join(e.Path, ".") + ": " + e.Message
}

// PathString returns the dotted path of the offending node.
func (e *ValidationError) PathString() string {
	return strings.Join(e.Path, ".")
}

func errorf(path []string, message string) error {
	return &ValidationError{Path: append([]string(nil), path...), Message: message}
}
