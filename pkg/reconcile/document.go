package reconcile

import (
	"context"
	"strings"

	"github.com/vango-dev/reflex/pkg/dom"
	"golang.org/x/net/html"
)

// Element is the identity of a live element: its tag name and id. Parent
// is the tag of its parent element, the context new markup is parsed in.
type Element struct {
	Tag    string
	ID     string
	Parent string
}

// Same reports whether e and o name the same element.
func (e Element) Same(o Element) bool {
	return e.Tag == o.Tag && e.ID == o.ID
}

// Document answers which element currently matches a selector.
type Document interface {
	Lookup(selector string) (Element, bool, error)
}

// HTMLDocument is a Document backed by a parsed HTML tree.
type HTMLDocument struct {
	root *html.Node
}

// ParseDocument parses a full HTML page into an HTMLDocument.
func ParseDocument(src string) (*HTMLDocument, error) {
	root, err := dom.Parse(src)
	if err != nil {
		return nil, err
	}
	return &HTMLDocument{root: root}, nil
}

// NewDocument wraps an already parsed tree.
func NewDocument(root *html.Node) *HTMLDocument {
	return &HTMLDocument{root: root}
}

// Root returns the underlying tree.
func (d *HTMLDocument) Root() *html.Node {
	return d.root
}

// Lookup returns the identity of the first element matching selector.
func (d *HTMLDocument) Lookup(selector string) (Element, bool, error) {
	n, err := dom.QueryFirst(d.root, selector)
	if err != nil {
		return Element{}, false, err
	}
	if n == nil {
		return Element{}, false, nil
	}
	return identity(n), true, nil
}

// Render returns the outer HTML of the first element matching selector.
func (d *HTMLDocument) Render(_ context.Context, selector string) (string, bool, error) {
	n, err := dom.QueryFirst(d.root, selector)
	if err != nil || n == nil {
		return "", false, err
	}
	out, err := dom.OuterHTML(n)
	if err != nil {
		return "", false, err
	}
	return out, true, nil
}

// Body returns the inner HTML of the page body.
func (d *HTMLDocument) Body() (string, error) {
	body, err := dom.QueryFirst(d.root, "body")
	if err != nil {
		return "", err
	}
	if body == nil {
		return "", nil
	}
	return dom.InnerHTML(body)
}

func identity(n *html.Node) Element {
	return Element{
		Tag:    strings.ToLower(n.Data),
		ID:     dom.Attr(n, "id"),
		Parent: dom.ContextTag(n.Parent),
	}
}
