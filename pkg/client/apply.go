package client

import (
	"fmt"

	"github.com/andybalholm/cascadia"
	"github.com/vango-dev/reflex/pkg/dom"
	"github.com/vango-dev/reflex/pkg/protocol"
	"golang.org/x/net/html"
)

// Preserve selects the live elements a morph keeps. Kept elements need an
// id, which is how they are found again in the new markup.
type Preserve struct {
	// Attribute marks kept elements when the operation names no
	// permanent attribute.
	Attribute string

	// Selector matches further kept elements. Optional.
	Selector string
}

// Apply applies op to doc. Selectors matching nothing are not an error; the
// number of patched elements is returned.
func Apply(doc *html.Node, op protocol.Operation, keep Preserve) (int, error) {
	targets, err := dom.QueryAll(doc, op.Selector)
	if err != nil {
		return 0, err
	}

	var keepSel cascadia.Selector
	if op.Kind == protocol.KindMorph && keep.Selector != "" {
		if keepSel, err = dom.Compile(keep.Selector); err != nil {
			return 0, err
		}
	}

	for _, target := range targets {
		within := dom.ContextTag(target)
		if op.Kind == protocol.KindMorph && !op.ChildrenOnly {
			within = dom.ContextTag(target.Parent)
		}
		nodes, err := dom.ParseFragmentIn(op.HTML, within)
		if err != nil {
			return 0, fmt.Errorf("client: parse %s html for %q: %w", op.Kind, op.Selector, err)
		}

		switch op.Kind {
		case protocol.KindInnerHTML:
			dom.ReplaceChildren(target, nodes)

		case protocol.KindMorph:
			attr := op.PermanentAttributeName
			if attr == "" {
				attr = keep.Attribute
			}
			kept := permanentByID(target, attr, keepSel)
			for i, n := range nodes {
				if old, ok := kept[dom.Attr(n, "id")]; ok && n.Type == html.ElementNode {
					detach(old)
					nodes[i] = old
					continue
				}
				restorePermanent(n, kept)
			}
			if op.ChildrenOnly {
				dom.ReplaceChildren(target, nodes)
				continue
			}
			replacement := dom.FirstElement(nodes)
			if replacement == nil || target.Parent == nil {
				continue
			}
			detach(replacement)
			target.Parent.InsertBefore(replacement, target)
			target.Parent.RemoveChild(target)

		default:
			return 0, fmt.Errorf("client: unknown operation kind %q", op.Kind)
		}
	}
	return len(targets), nil
}

// permanentByID collects the elements under root that carry attr or match
// sel, and have an id.
func permanentByID(root *html.Node, attr string, sel cascadia.Selector) map[string]*html.Node {
	if attr == "" && sel == nil {
		return nil
	}
	var keep map[string]*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			if permanent(c, attr, sel) {
				if id := dom.Attr(c, "id"); id != "" {
					if keep == nil {
						keep = make(map[string]*html.Node)
					}
					keep[id] = c
					continue
				}
			}
			walk(c)
		}
	}
	walk(root)
	return keep
}

func permanent(n *html.Node, attr string, sel cascadia.Selector) bool {
	if attr != "" {
		if _, ok := dom.LookupAttr(n, attr); ok {
			return true
		}
	}
	return sel != nil && sel.Match(n)
}

// restorePermanent swaps every element of n's tree whose id is in keep for
// the kept element.
func restorePermanent(n *html.Node, keep map[string]*html.Node) {
	if len(keep) == 0 || n.Type != html.ElementNode {
		return
	}
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if old, ok := keep[dom.Attr(c, "id")]; ok && c.Type == html.ElementNode {
			detach(old)
			n.InsertBefore(old, c)
			n.RemoveChild(c)
		} else {
			restorePermanent(c, keep)
		}
		c = next
	}
}

func detach(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}
