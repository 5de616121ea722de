package protocol

// MaxArgumentDepth limits the nesting depth of decoded argument values.
// Deeper payloads are rejected with a DecodeError.
const MaxArgumentDepth = 64

// MaxInvocationSize is the default upper bound for one inbound invocation
// payload in bytes. Transports enforce it before calling DecodeInvocation.
const MaxInvocationSize = 1 << 20

// depthContext tracks the current nesting depth while normalizing arguments.
type depthContext struct {
	current int
	max     int
}

func newDepthContext(max int) *depthContext {
	return &depthContext{max: max}
}

// enter increments the depth and returns an error if the limit would be exceeded.
// The depth is only incremented on success.
func (dc *depthContext) enter() error {
	if dc.current >= dc.max {
		return ErrMaxDepthExceeded
	}
	dc.current++
	return nil
}

func (dc *depthContext) leave() {
	dc.current--
}
