package reflex

// Signature is the declared parameter shape of an action.
type Signature struct {
	Required int
	Optional int
	Variadic bool
}

// Binding tells the dispatcher how to call an action.
type Binding int

const (
	// BindNone calls the action without arguments.
	BindNone Binding = iota
	// BindPositional passes the decoded arguments in order.
	BindPositional
)

func (b Binding) String() string {
	switch b {
	case BindNone:
		return "none"
	case BindPositional:
		return "positional"
	default:
		return "unknown"
	}
}

// takesNothing reports whether the signature declares no parameters at all.
func (s Signature) takesNothing() bool {
	return s.Required == 0 && s.Optional == 0 && !s.Variadic
}

// Bind decides how args are passed to an action with signature s. It returns
// an *ArityError when the count does not fit. An action declaring no
// parameters never receives arguments.
func Bind(s Signature, args []any) (Binding, error) {
	n := len(args)
	if n == 0 && s.Required == 0 {
		return BindNone, nil
	}
	if !s.takesNothing() && n >= s.Required && (s.Variadic || n <= s.Required+s.Optional) {
		return BindPositional, nil
	}
	return BindNone, &ArityError{
		Given:    n,
		Required: s.Required,
		Optional: s.Optional,
		Variadic: s.Variadic,
	}
}
