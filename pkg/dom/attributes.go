package dom

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DefaultDatasetAttribute names the attribute holding dataset merge tokens.
const DefaultDatasetAttribute = "data-reflex-dataset"

// Attributes is a snapshot of an element's attributes. Values are strings,
// booleans (checked, selected) or []string (pluralized and grouped values).
type Attributes map[string]any

// String returns the value under key if it is a string.
func (a Attributes) String(key string) string {
	s, _ := a[key].(string)
	return s
}

// Values returns the value under key as a string slice. A single string is
// returned as a one-element slice.
func (a Attributes) Values(key string) []string {
	switch v := a[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, x := range v {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{v}
	default:
		return nil
	}
}

// Extractor snapshots element attributes and merged datasets.
type Extractor struct {
	// DatasetAttribute names the token-list attribute.
	// Default: DefaultDatasetAttribute.
	DatasetAttribute string

	// Logger receives skipped-token diagnostics. Default: slog.Default().
	Logger *slog.Logger

	combinedOnce sync.Once
}

// NewExtractor returns an Extractor with default settings.
func NewExtractor() *Extractor {
	return &Extractor{DatasetAttribute: DefaultDatasetAttribute}
}

func (e *Extractor) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e *Extractor) datasetAttribute() string {
	if e.DatasetAttribute != "" {
		return e.DatasetAttribute
	}
	return DefaultDatasetAttribute
}

// Attributes returns every attribute of el plus the derived keys "value",
// "checked", "selected" and "tagName". Grouped controls (select elements and
// checkbox/radio inputs sharing a name with other inputs in doc) also get
// "values" with every checked or selected value, and "value" holds them
// joined by ",".
func (e *Extractor) Attributes(doc, el *html.Node) Attributes {
	attrs := make(Attributes, len(el.Attr)+4)
	for _, a := range el.Attr {
		attrs[a.Key] = a.Val
	}

	_, checked := LookupAttr(el, "checked")
	_, selected := LookupAttr(el, "selected")
	attrs["checked"] = checked
	attrs["selected"] = selected
	attrs["tagName"] = strings.ToUpper(el.Data)

	if el.DataAtom == atom.Select || multipleInstances(doc, el) {
		values := collectCheckedOptions(doc, el)
		attrs["values"] = values
		attrs["value"] = strings.Join(values, ",")
	} else {
		attrs["value"] = elementValue(el)
	}
	return attrs
}

func elementValue(el *html.Node) string {
	switch el.DataAtom {
	case atom.Textarea:
		return TextContent(el)
	case atom.Option:
		if v, ok := LookupAttr(el, "value"); ok {
			return v
		}
		return strings.TrimSpace(TextContent(el))
	default:
		return Attr(el, "value")
	}
}

// groupSelector returns the selector for inputs sharing el's type and name.
func groupSelector(el *html.Node) string {
	return `input[type="` + cssEscape(Attr(el, "type")) + `"][name="` + cssEscape(Attr(el, "name")) + `"]`
}

func isGroupable(el *html.Node) bool {
	if el.DataAtom != atom.Input {
		return false
	}
	t := Attr(el, "type")
	return t == "checkbox" || t == "radio"
}

func multipleInstances(doc, el *html.Node) bool {
	if !isGroupable(el) {
		return false
	}
	group, err := QueryAll(doc, groupSelector(el))
	if err != nil {
		return false
	}
	return len(group) > 1
}

func collectCheckedOptions(doc, el *html.Node) []string {
	values := []string{}
	if options, err := QueryAll(el, "option"); err == nil {
		for _, o := range options {
			if _, ok := LookupAttr(o, "selected"); ok {
				values = append(values, elementValue(o))
			}
		}
	}
	if isGroupable(el) {
		if group, err := QueryAll(doc, groupSelector(el)); err == nil {
			for _, in := range group {
				if _, ok := LookupAttr(in, "checked"); ok {
					values = append(values, Attr(in, "value"))
				}
			}
		}
	}
	return values
}

// DataAttributes returns the data-* attributes of el.
func DataAttributes(el *html.Node) Attributes {
	attrs := Attributes{}
	if el == nil {
		return attrs
	}
	for _, a := range el.Attr {
		if strings.HasPrefix(a.Key, "data-") {
			attrs[a.Key] = a.Val
		}
	}
	return attrs
}

// axes maps traversal tokens to XPath expressions relative to the element.
var axes = map[string]string{
	"parent":      "parent::*",
	"ancestors":   "ancestor::*",
	"combined":    "ancestor::*",
	"siblings":    "preceding-sibling::*|following-sibling::*",
	"children":    "child::*",
	"descendants": "descendant::*",
}

// Dataset returns the data-* attributes of el merged with those of every
// element selected by the tokens in its dataset attribute. A token that
// fails to evaluate is logged and skipped.
func (e *Extractor) Dataset(doc, el *html.Node) Attributes {
	elements := []*html.Node{el}
	tokens := strings.Split(Attr(el, e.datasetAttribute()), " ")

	for _, token := range tokens {
		if token == "" {
			continue
		}
		selected, err := e.selectToken(doc, el, token)
		if err != nil {
			e.logger().Debug("dataset token skipped", "token", token, "error", err)
			continue
		}
		elements = append(elements, selected...)
	}

	merged := Attributes{}
	for _, n := range elements {
		for _, a := range n.Attr {
			if strings.HasPrefix(a.Key, "data-") {
				mergeValue(merged, a.Key, a.Val)
			}
		}
	}
	return merged
}

func (e *Extractor) selectToken(doc, el *html.Node, token string) (nodes []*html.Node, err error) {
	defer func() {
		if r := recover(); r != nil {
			nodes, err = nil, &TokenError{Token: token, Cause: r}
		}
	}()

	if expr, ok := axes[token]; ok {
		if token == "combined" {
			e.combinedOnce.Do(func() {
				e.logger().Warn(`dataset token "combined" is deprecated, use "ancestors"`)
			})
		}
		return htmlquery.QueryAll(el, expr)
	}
	return QueryAll(doc, token)
}

// mergeValue adds value under key, introducing the pluralized key on the
// second occurrence.
func mergeValue(attrs Attributes, key, value string) {
	existing, ok := attrs[key]
	if !ok {
		attrs[key] = value
		return
	}
	if list, isList := existing.([]string); isList {
		attrs[key] = append(list, value)
		return
	}

	plural := key + "s"
	switch p := attrs[plural].(type) {
	case nil:
		attrs[plural] = []string{existing.(string), value}
	case []string:
		attrs[plural] = append(p, value)
	case string:
		attrs[plural] = []string{p, existing.(string), value}
	}
}

// AttributeValue joins the non-blank trimmed values with single spaces.
// It returns false when nothing remains.
//
//	AttributeValue([]string{"", "one", "two", "three "}) // "one two three", true
func AttributeValue(values []string) (string, bool) {
	kept := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			kept = append(kept, v)
		}
	}
	if len(kept) == 0 {
		return "", false
	}
	return strings.Join(kept, " "), true
}

// AttributeValues splits value on spaces and drops blank entries.
//
//	AttributeValues("one two three ") // ["one", "two", "three"]
func AttributeValues(value string) []string {
	if value == "" {
		return []string{}
	}
	out := []string{}
	for _, v := range strings.Split(value, " ") {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}
