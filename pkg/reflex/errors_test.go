package reflex

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"plain", errors.New("x"), ""},
		{"unknown handler", &RouteError{Target: "A#b", Err: ErrUnknownHandler}, "R002"},
		{"factory failure", &RouteError{Target: "A#b", Err: errors.New("db down")}, "R002"},
		{"page route", &RouteError{Target: "A#b", URL: "/x", Err: errors.New("No route matches")}, "R008"},
		{"unknown action", &HandlerError{Err: fmt.Errorf("%w %q", ErrUnknownAction, "b")}, "R002"},
		{"arity", &ArityError{Given: 2}, "R003"},
		{"handler", &HandlerError{Err: errors.New("boom")}, "R004"},
		{"panic", &HandlerError{Panic: "boom"}, "R004"},
		{"reconcile", &ReconcileError{Err: errors.New("x")}, "R005"},
		{"commit", &SessionCommitError{Err: errors.New("x")}, "R006"},
		{"wrapped", fmt.Errorf("outer: %w", &ArityError{}), "R003"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Code(tt.err))
		})
	}
}
