package broadcast

import (
	"fmt"
	"strings"
)

// Identifiable is implemented by connection identifiers backed by a record
// with a stable id.
type Identifiable interface {
	ID() string
}

// StreamName derives the stream of a connection. Each identifier resolves to
// its ID when it implements Identifiable, otherwise to its formatted value.
// Blank values are dropped and the rest joined by ";". A non-blank channel is
// prefixed and joined by ":".
func StreamName(channel string, identifiers ...any) string {
	ids := make([]string, 0, len(identifiers))
	for _, ident := range identifiers {
		if s := identifierString(ident); strings.TrimSpace(s) != "" {
			ids = append(ids, s)
		}
	}

	parts := make([]string, 0, 2)
	if strings.TrimSpace(channel) != "" {
		parts = append(parts, channel)
	}
	if joined := strings.Join(ids, ";"); joined != "" {
		parts = append(parts, joined)
	}
	return strings.Join(parts, ":")
}

func identifierString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case Identifiable:
		return x.ID()
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
