package wire

// Result is the envelope every invoke reply is decoded into. Exactly one of
// Value and Error is meaningful: Error is nil on success.
type Result[R any] struct {
	Value R            `json:"value"`
	Error *ErrorDetail `json:"error,omitempty"`
}

// Ok wraps a successful value.
func Ok[R any](v R) Result[R] {
	return Result[R]{Value: v}
}

// Fail wraps an error detail.
func Fail[R any](d *ErrorDetail) Result[R] {
	return Result[R]{Error: d}
}

// Failed reports whether r carries an error.
func (r Result[R]) Failed() bool {
	return r.Error != nil
}

// Unwrap returns the value, or the carried error.
func (r Result[R]) Unwrap() (R, error) {
	if r.Error != nil {
		var zero R
		return zero, r.Error
	}
	return r.Value, nil
}

// FailureEnvelope is a Result without a value. Its encoding decodes into a
// Result of any value type, so a replier can report failure without knowing
// what the caller expected.
type FailureEnvelope struct {
	Error *ErrorDetail `json:"error"`
}

// Failure builds the envelope for d.
func Failure(d *ErrorDetail) FailureEnvelope {
	return FailureEnvelope{Error: d}
}

// Call is one invoke request as seen by the host.
type Call struct {
	Name   string `json:"name"`
	Method string `json:"method"`
	Args   []byte `json:"args,omitempty"`
}
