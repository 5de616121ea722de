package protocol

import (
	"strings"

	"golang.org/x/text/cases"
)

// Params is a decoded argument object. Get finds keys regardless of case,
// a leading ":" or "-" versus "_" spelling.
type Params map[string]any

// Get returns the value for key, trying an exact match before a folded one.
func (p Params) Get(key string) (any, bool) {
	if v, ok := p[key]; ok {
		return v, true
	}
	want := foldKey(key)
	for k, v := range p {
		if foldKey(k) == want {
			return v, true
		}
	}
	return nil, false
}

// String returns the value for key if it is a string.
func (p Params) String(key string) string {
	v, _ := p.Get(key)
	s, _ := v.(string)
	return s
}

// Int returns the value for key as an int. JSON numbers decode as float64.
func (p Params) Int(key string) (int, bool) {
	v, ok := p.Get(key)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}

// Params returns a nested object under key.
func (p Params) Params(key string) Params {
	v, _ := p.Get(key)
	nested, _ := v.(Params)
	return nested
}

func foldKey(key string) string {
	key = strings.TrimPrefix(key, ":")
	key = strings.ReplaceAll(key, "-", "_")
	return cases.Fold().String(key)
}

func normalizeArguments(args []any) ([]any, error) {
	if args == nil {
		return []any{}, nil
	}
	dc := newDepthContext(MaxArgumentDepth)
	out := make([]any, len(args))
	for i, a := range args {
		v, err := normalize(a, dc)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// normalize converts every JSON object in v into Params.
func normalize(v any, dc *depthContext) (any, error) {
	switch x := v.(type) {
	case map[string]any:
		if err := dc.enter(); err != nil {
			return nil, err
		}
		defer dc.leave()
		p := make(Params, len(x))
		for k, item := range x {
			n, err := normalize(item, dc)
			if err != nil {
				return nil, err
			}
			p[k] = n
		}
		return p, nil
	case []any:
		if err := dc.enter(); err != nil {
			return nil, err
		}
		defer dc.leave()
		out := make([]any, len(x))
		for i, item := range x {
			n, err := normalize(item, dc)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	default:
		return v, nil
	}
}
