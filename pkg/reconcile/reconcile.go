package reconcile

import (
	"context"
	"fmt"

	"golang.org/x/net/html"

	"github.com/vango-dev/reflex/pkg/dom"
	"github.com/vango-dev/reflex/pkg/protocol"
)

// Morph metadata values.
const (
	MorphSelector = "selector"
	MorphPage     = "page"
)

// RenderFunc returns the new markup for selector. It reports false when the
// selector no longer matches anything. It may be called once per selector.
type RenderFunc func(ctx context.Context, selector string) (string, bool, error)

// Correlation is copied onto every emitted operation.
type Correlation struct {
	Metadata map[string]any
	Payload  map[string]any
}

// Error reports a render or comparison failure for one selector.
type Error struct {
	Selector string
	Err      error
}

func (e *Error) Error() string {
	if e.Selector == "" {
		return fmt.Sprintf("reconcile: %v", e.Err)
	}
	return fmt.Sprintf("reconcile: %s: %v", e.Selector, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Reconciler decides the mutation strategy per selector.
type Reconciler struct {
	// PermanentAttributeName is attached to morph operations so clients keep
	// marked subtrees untouched.
	PermanentAttributeName string
}

// Reconcile renders every selector in order and compares the result with
// live. Operations are returned in selector order; skipped selectors leave
// no gap.
func (r *Reconciler) Reconcile(ctx context.Context, live Document, selectors []string, render RenderFunc, c Correlation) ([]protocol.Operation, error) {
	ops := make([]protocol.Operation, 0, len(selectors))
	for _, sel := range selectors {
		if err := ctx.Err(); err != nil {
			return nil, &Error{Selector: sel, Err: err}
		}

		markup, ok, err := render(ctx, sel)
		if err != nil {
			return nil, &Error{Selector: sel, Err: err}
		}
		if !ok {
			continue
		}

		op, err := r.decide(live, sel, markup, c)
		if err != nil {
			return nil, &Error{Selector: sel, Err: err}
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func (r *Reconciler) decide(live Document, sel, markup string, c Correlation) (protocol.Operation, error) {
	var current Element
	found := false
	if live != nil {
		var err error
		if current, found, err = live.Lookup(sel); err != nil {
			return protocol.Operation{}, err
		}
	}

	nodes, err := dom.ParseFragmentIn(markup, current.Parent)
	if err != nil {
		return protocol.Operation{}, err
	}
	root := dom.FirstElement(nodes)

	if root != nil {
		same, err := sameElement(live, sel, current, found, root)
		if err != nil {
			return protocol.Operation{}, err
		}
		if same {
			inner, err := dom.InnerHTML(root)
			if err != nil {
				return protocol.Operation{}, err
			}
			return protocol.Operation{
				Kind:                   protocol.KindMorph,
				Selector:               sel,
				HTML:                   inner,
				ChildrenOnly:           true,
				PermanentAttributeName: r.PermanentAttributeName,
				Payload:                copyMap(c.Payload),
				Metadata:               metadata(c, MorphSelector),
			}, nil
		}
	}

	return protocol.Operation{
		Kind:     protocol.KindInnerHTML,
		Selector: sel,
		HTML:     markup,
		Payload:  copyMap(c.Payload),
		Metadata: metadata(c, MorphSelector),
	}, nil
}

// sameElement reports whether root represents the element live holds for
// sel. Without a live document the fragment root must match sel itself.
func sameElement(live Document, sel string, current Element, found bool, root *html.Node) (bool, error) {
	if live == nil {
		compiled, err := dom.Compile(sel)
		if err != nil {
			return false, err
		}
		return compiled.Match(root), nil
	}
	return found && current.Same(identity(root)), nil
}

// Page builds the single operation of the page path: a children-only morph
// of the body with the rendered page's body content.
func (r *Reconciler) Page(page string, c Correlation) (protocol.Operation, error) {
	doc, err := ParseDocument(page)
	if err != nil {
		return protocol.Operation{}, &Error{Err: err}
	}
	body, err := doc.Body()
	if err != nil {
		return protocol.Operation{}, &Error{Selector: "body", Err: err}
	}
	return protocol.Operation{
		Kind:                   protocol.KindMorph,
		Selector:               "body",
		HTML:                   body,
		ChildrenOnly:           true,
		PermanentAttributeName: r.PermanentAttributeName,
		Payload:                copyMap(c.Payload),
		Metadata:               metadata(c, MorphPage),
	}, nil
}

func metadata(c Correlation, morph string) map[string]any {
	md := copyMap(c.Metadata)
	md["morph"] = morph
	return md
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}
