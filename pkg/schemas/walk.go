package schemas

import (
	"errors"
	"sort"
	"strconv"
	"strings"
)

// Node is one position of a schema tree, paired with the matching data if the
// data tree has a value there.
type Node struct {
	Path    []string
	Schema  map[string]any
	Data    any
	HasData bool
	// Parent is the enclosing object node, nil at the root and for array items.
	Parent *Node
}

// Type returns the schema type tag of the node.
func (n *Node) Type() string {
	t, _ := n.Schema["type"].(string)
	return t
}

// PathString returns the dotted path of the node, "" for the root.
func (n *Node) PathString() string {
	return strings.Join(n.Path, ".")
}

// DataMap returns the data as a mapping, or nil.
func (n *Node) DataMap() map[string]any {
	m, _ := n.Data.(map[string]any)
	return m
}

// Visitor is called for every node in pre-order.
type Visitor func(n *Node) error

// Callbacks maps a schema type tag to its visitor. The key "*" is used for
// types without their own entry.
type Callbacks map[string]Visitor

// SkipChildren can be returned by a visitor to skip the subtree of a node.
var SkipChildren = errors.New("skip children")

// Walk visits schema and data together. Object properties are visited in
// sorted order; array items once per data element, or once without data when
// there is no data array.
func Walk(schema map[string]any, data any, hasData bool, cb Callbacks) error {
	return walk(&Node{Schema: schema, Data: data, HasData: hasData}, cb)
}

func walk(n *Node, cb Callbacks) error {
	visit, ok := cb[n.Type()]
	if !ok {
		visit = cb["*"]
	}
	if visit != nil {
		if err := visit(n); err != nil {
			if errors.Is(err, SkipChildren) {
				return nil
			}
			return err
		}
	}

	switch n.Type() {
	case "object":
		props, ok := n.Schema["properties"].(map[string]any)
		if !ok {
			return nil
		}
		var data map[string]any
		if n.HasData {
			data, _ = n.Data.(map[string]any)
		}
		for _, name := range sortedKeys(props) {
			child, ok := props[name].(map[string]any)
			if !ok {
				return errorf(appendPath(n.Path, name), "property schema must be a mapping")
			}
			value, present := data[name]
			err := walk(&Node{
				Path:    appendPath(n.Path, name),
				Schema:  child,
				Data:    value,
				HasData: present,
				Parent:  n,
			}, cb)
			if err != nil {
				return err
			}
		}
	case "array":
		items, ok := n.Schema["items"].(map[string]any)
		if !ok {
			return nil
		}
		list, isList := n.Data.([]any)
		if !n.HasData || !isList {
			return walk(&Node{Path: appendPath(n.Path, "[]"), Schema: items}, cb)
		}
		for i, item := range list {
			err := walk(&Node{
				Path:    appendPath(n.Path, strconv.Itoa(i)),
				Schema:  items,
				Data:    item,
				HasData: true,
			}, cb)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func appendPath(path []string, elems ...string) []string {
	out := make([]string, len(path), len(path)+len(elems))
	copy(out, path)
	return append(out, elems...)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
