package dom

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/net/html"
)

var (
	// ErrNotFound is returned when no element matches an attribute snapshot.
	ErrNotFound = errors.New("dom: element not found")

	// ErrAmbiguous is returned when more than one element matches.
	ErrAmbiguous = errors.New("dom: element match is ambiguous")
)

// ResolveError reports a failed resolution with the selector that was tried.
type ResolveError struct {
	Selector string
	Matches  int
	Err      error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("%v: %q matched %d elements, add an id to the element", e.Err, e.Selector, e.Matches)
}

func (e *ResolveError) Unwrap() error {
	return e.Err
}

// TokenError reports a dataset token that could not be evaluated.
type TokenError struct {
	Token string
	Cause any
}

func (e *TokenError) Error() string {
	return fmt.Sprintf("dom: dataset token %q failed: %v", e.Token, e.Cause)
}

// transient keys describe element state rather than identity.
var transient = map[string]bool{
	"value":    true,
	"values":   true,
	"checked":  true,
	"selected": true,
	"tagName":  true,
}

// Selector builds the lookup selector for an attribute snapshot: an id
// selector when the snapshot has an id, otherwise a compound attribute
// equality selector over the remaining simple string keys, in key order.
func Selector(attrs Attributes) string {
	if id := attrs.String("id"); id != "" {
		return `[id="` + cssEscape(id) + `"]`
	}

	keys := make([]string, 0, len(attrs))
	for k, v := range attrs {
		if transient[k] || strings.Contains(k, ".") {
			continue
		}
		if _, ok := v.(string); !ok {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString("[")
		b.WriteString(k)
		b.WriteString(`="`)
		b.WriteString(cssEscape(attrs[k].(string)))
		b.WriteString(`"]`)
	}
	return b.String()
}

// Resolve finds the single element in doc matching attrs. Zero or multiple
// matches return a *ResolveError wrapping ErrNotFound or ErrAmbiguous.
func Resolve(doc *html.Node, attrs Attributes) (*html.Node, error) {
	sel := Selector(attrs)
	if sel == "" {
		return nil, &ResolveError{Err: ErrNotFound}
	}

	matches, err := QueryAll(doc, sel)
	if err != nil {
		return nil, &ResolveError{Selector: sel, Err: fmt.Errorf("%w: %v", ErrNotFound, err)}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return nil, &ResolveError{Selector: sel, Err: ErrNotFound}
	default:
		return nil, &ResolveError{Selector: sel, Matches: len(matches), Err: ErrAmbiguous}
	}
}

// cssEscape escapes a value for use inside a double-quoted CSS string.
func cssEscape(s string) string {
	if !strings.ContainsAny(s, `"\`+"\n") {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '"', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		case '\n':
			b.WriteString(`\a `)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
