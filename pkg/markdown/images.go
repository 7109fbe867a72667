// Package markdown finds and rewrites references to markdown images stored by
// this instance, e.g. ![plot](/markdown_images/abc.png).
package markdown

import (
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

// ImagePrefix is the URL path under which markdown images are served.
const ImagePrefix = "/markdown_images/"

var (
	parserInstance goldmark.Markdown
	parserOnce     sync.Once
)

func parser() goldmark.Markdown {
	parserOnce.Do(func() {
		parserInstance = goldmark.New(goldmark.WithExtensions(extension.GFM))
	})
	return parserInstance
}

// ImageNames returns the names of all markdown images referenced in src, in
// order of appearance and without duplicates. A name may carry a component
// uuid prefix ("<uuid>/<file>").
func ImageNames(src string) []string {
	var names []string
	seen := map[string]bool{}
	for _, dest := range imageDestinations(src) {
		name, ok := strings.CutPrefix(dest, ImagePrefix)
		if !ok || name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

func imageDestinations(src string) []string {
	if src == "" {
		return nil
	}
	source := []byte(src)
	document := parser().Parser().Parse(text.NewReader(source))
	var dests []string
	_ = ast.Walk(document, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if img, ok := n.(*ast.Image); ok {
			dests = append(dests, string(img.Destination))
		}
		return ast.WalkContinue, nil
	})
	return dests
}

// RewriteImages replaces every image name with fn(name) and returns the new
// source and the rewritten names.
func RewriteImages(src string, fn func(name string) string) (string, []string) {
	names := ImageNames(src)
	if len(names) == 0 {
		return src, nil
	}
	replacements := make([]string, 0, 2*len(names))
	rewritten := make([]string, 0, len(names))
	for _, name := range names {
		newName := fn(name)
		rewritten = append(rewritten, newName)
		replacements = append(replacements, "]("+ImagePrefix+name, "]("+ImagePrefix+newName)
	}
	return strings.NewReplacer(replacements...).Replace(src), rewritten
}

// SplitName splits a qualified image name into component uuid and file name.
// Unqualified names return an empty uuid.
func SplitName(name string) (componentUUID, file string) {
	prefix, rest, ok := strings.Cut(name, "/")
	if !ok {
		return "", name
	}
	if _, err := uuid.Parse(prefix); err != nil {
		return "", name
	}
	return strings.ToLower(prefix), rest
}

// Qualify prefixes every unqualified image of src with componentUUID. It is
// used when exporting local content.
func Qualify(src, componentUUID string) (string, []string) {
	return RewriteImages(src, func(name string) string {
		if owner, _ := SplitName(name); owner != "" {
			return name
		}
		return componentUUID + "/" + name
	})
}

// Localize maps image names of content received from senderUUID to the names
// used by the instance localUUID: unqualified images belong to the sender, and
// images qualified with the local uuid are local again.
func Localize(src, senderUUID, localUUID string) (string, []string) {
	return RewriteImages(src, func(name string) string {
		owner, file := SplitName(name)
		switch {
		case owner == "":
			return senderUUID + "/" + name
		case owner == strings.ToLower(localUUID):
			return file
		}
		return name
	})
}
