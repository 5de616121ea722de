package errors

import (
	"encoding/json"
	stderrors "errors"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantMsg string
		wantCat Category
	}{
		{
			name:    "decode error",
			code:    "R001",
			wantMsg: "Malformed invocation payload",
			wantCat: CategoryProtocol,
		},
		{
			name:    "route error",
			code:    "R002",
			wantMsg: "Reflex handler not found",
			wantCat: CategoryDispatch,
		},
		{
			name:    "session commit",
			code:    "R006",
			wantMsg: "Failed to commit session",
			wantCat: CategorySession,
		},
		{
			name:    "unknown error code",
			code:    "R999",
			wantMsg: "Unknown error",
			wantCat: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code)
			if err.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", err.Message, tt.wantMsg)
			}
			if err.Category != tt.wantCat {
				t.Errorf("Category = %q, want %q", err.Category, tt.wantCat)
			}
			if err.Code != tt.code {
				t.Errorf("Code = %q, want %q", err.Code, tt.code)
			}
		})
	}
}

func TestNewf(t *testing.T) {
	err := Newf(CategoryConfig, "unknown store %q", "etcd")
	if err.Message != `unknown store "etcd"` {
		t.Errorf("Message = %q", err.Message)
	}
	if err.Code != "" {
		t.Errorf("Code = %q, want empty", err.Code)
	}
}

func TestWrapAndUnwrap(t *testing.T) {
	cause := stderrors.New("disk full")
	err := New("R006").Wrap(cause)

	if !stderrors.Is(err, cause) {
		t.Error("errors.Is should find wrapped cause")
	}
	if !strings.Contains(err.Error(), "disk full") {
		t.Errorf("Error() = %q, want cause included", err.Error())
	}

	var re *ReflexError
	if !stderrors.As(err, &re) || re.Code != "R006" {
		t.Error("errors.As should find ReflexError")
	}
}

func TestFromError(t *testing.T) {
	if FromError(nil, "R004") != nil {
		t.Error("FromError(nil) should be nil")
	}

	original := New("R002")
	if FromError(original, "R004") != original {
		t.Error("FromError should return existing ReflexError unchanged")
	}

	wrapped := FromError(stderrors.New("boom"), "R004")
	if wrapped.Code != "R004" {
		t.Errorf("Code = %q, want R004", wrapped.Code)
	}
}

func TestFormat(t *testing.T) {
	DisableColors()
	defer EnableColors()

	err := New("R002").
		WithDetail(`No handler is registered for "Counter#increment"`).
		WithSuggestion("Register the handler before starting the server").
		WithExample(`registry.Register("Counter", newCounter)`)

	out := err.Format()
	for _, want := range []string{
		"ERROR R002: Reflex handler not found",
		"Counter#increment",
		"Hint: Register the handler",
		"registry.Register",
		"Learn more: " + docBase + "R002",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Format() missing %q\n%s", want, out)
		}
	}
}

func TestFormatCompact(t *testing.T) {
	err := New("R041").WithDetail("looked in /srv/app")
	got := err.FormatCompact()
	want := "R041: Configuration file not found (looked in /srv/app)"
	if got != want {
		t.Errorf("FormatCompact() = %q, want %q", got, want)
	}
}

func TestFormatJSON(t *testing.T) {
	err := New("R003").Wrap(stderrors.New(`given 2, expected 0`))

	var decoded map[string]string
	if jerr := json.Unmarshal([]byte(err.FormatJSON()), &decoded); jerr != nil {
		t.Fatalf("FormatJSON produced invalid JSON: %v", jerr)
	}
	if decoded["code"] != "R003" {
		t.Errorf("code = %q", decoded["code"])
	}
	if decoded["cause"] != "given 2, expected 0" {
		t.Errorf("cause = %q", decoded["cause"])
	}
}

func TestWrapText(t *testing.T) {
	lines := wrapText("one two three four five six", 9)
	want := []string{"one two", "three", "four five", "six"}
	if len(lines) != len(want) {
		t.Fatalf("lines = %v, want %v", lines, want)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}
