package schemas

import "sort"

// CollectTags returns the distinct tags used in data, sorted.
func CollectTags(schema map[string]any, data any) []string {
	seen := map[string]bool{}
	_ = Walk(schema, data, true, Callbacks{"tags": func(n *Node) error {
		value := n.DataMap()
		if value == nil {
			return nil
		}
		list, _ := value["tags"].([]any)
		for _, t := range list {
			if s, ok := t.(string); ok {
				seen[s] = true
			}
		}
		return nil
	}})
	tags := make([]string, 0, len(seen))
	for t := range seen {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

// VisitReferences calls fn for every present user or object reference leaf in
// data. fn may modify the leaf in place.
func VisitReferences(schema map[string]any, data any, fn func(n *Node, leaf map[string]any, idKey string) error) error {
	visit := func(n *Node) error {
		leaf := n.DataMap()
		if !n.HasData || leaf == nil {
			return nil
		}
		return fn(n, leaf, ReferenceIDKey(n.Type()))
	}
	return Walk(schema, data, true, Callbacks{
		"user":             visit,
		"object_reference": visit,
		"sample":           visit,
		"measurement":      visit,
	})
}

// VisitMarkdown calls fn for every present text leaf holding markdown. fn may
// replace leaf["text"].
func VisitMarkdown(schema map[string]any, data any, fn func(n *Node, leaf map[string]any) error) error {
	return Walk(schema, data, true, Callbacks{"text": func(n *Node) error {
		leaf := n.DataMap()
		if !n.HasData || leaf == nil {
			return nil
		}
		markdown, _ := leaf["is_markdown"].(bool)
		if schemaMarkdown, _ := n.Schema["markdown"].(bool); schemaMarkdown {
			markdown = true
		}
		if !markdown {
			return nil
		}
		return fn(n, leaf)
	}})
}

// VisitConditionReferences calls fn for every user_equals and object_equals
// condition in schema, including those nested in any, all and not. fn may
// modify the condition in place.
func VisitConditionReferences(schema map[string]any, fn func(cond map[string]any, idKey string) error) error {
	var visit func(c any) error
	visit = func(c any) error {
		cond, ok := c.(map[string]any)
		if !ok {
			return nil
		}
		switch cond["type"] {
		case "user_equals":
			return fn(cond, "user_id")
		case "object_equals":
			return fn(cond, "object_id")
		case "not":
			return visit(cond["condition"])
		case "any", "all":
			list, _ := cond["conditions"].([]any)
			for _, sub := range list {
				if err := visit(sub); err != nil {
					return err
				}
			}
		}
		return nil
	}
	return Walk(schema, nil, false, Callbacks{"*": func(n *Node) error {
		list, _ := n.Schema["conditions"].([]any)
		for _, c := range list {
			if err := visit(c); err != nil {
				return err
			}
		}
		return nil
	}})
}
