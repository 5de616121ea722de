package reflex

import (
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func args(n int) []any {
	out := make([]any, n)
	for i := range out {
		out[i] = float64(i)
	}
	return out
}

func TestBind(t *testing.T) {
	tests := []struct {
		name    string
		sig     Signature
		given   int
		want    Binding
		wantErr bool
	}{
		{"no params no args", Signature{}, 0, BindNone, false},
		{"no params with args", Signature{}, 1, BindNone, true},
		{"optional only no args", Signature{Optional: 2}, 0, BindNone, false},
		{"optional only within range", Signature{Optional: 2}, 2, BindPositional, false},
		{"optional only above range", Signature{Optional: 2}, 3, BindNone, true},
		{"required exact", Signature{Required: 2}, 2, BindPositional, false},
		{"required missing", Signature{Required: 2}, 1, BindNone, true},
		{"required none given", Signature{Required: 1}, 0, BindNone, true},
		{"required plus optional", Signature{Required: 1, Optional: 1}, 2, BindPositional, false},
		{"variadic tail", Signature{Required: 1, Variadic: true}, 5, BindPositional, false},
		{"variadic missing required", Signature{Required: 2, Variadic: true}, 1, BindNone, true},
		{"variadic only no args", Signature{Variadic: true}, 0, BindNone, false},
		{"variadic only with args", Signature{Variadic: true}, 3, BindPositional, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Bind(tt.sig, args(tt.given))
			if tt.wantErr {
				var ae *ArityError
				require.True(t, errors.As(err, &ae))
				assert.Equal(t, tt.given, ae.Given)
				assert.Equal(t, tt.sig.Required, ae.Required)
				assert.Equal(t, tt.sig.Optional, ae.Optional)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestArityErrorMessage(t *testing.T) {
	_, err := Bind(Signature{Required: 1, Optional: 2}, args(4))
	require.Error(t, err)
	assert.Equal(t, "wrong number of arguments (given 4, expected 1, optional 2)", err.Error())
}

func TestBindZeroParametersProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("zero parameters never bind a non-empty argument list", prop.ForAll(
		func(n int) bool {
			_, err := Bind(Signature{}, args(n))
			var ae *ArityError
			return errors.As(err, &ae) && ae.Given == n
		},
		gen.IntRange(1, 50),
	))

	properties.TestingRun(t)
}
