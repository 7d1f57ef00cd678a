package querycache

type resultState uint8

const (
	// stateLoading is the zero state: a fetch is (or is about to be) in
	// flight and nothing has settled yet.
	stateLoading resultState = iota
	stateOk
	stateErr
)

// Result is the outcome of a query fetch. It is a tagged value: exactly one
// of Ok, Err, or Loading. A loading Result may carry the previous successful
// value so consumers can keep rendering stale data while a refetch runs.
//
// The zero value is Loading with no previous value, which matches the state
// of a query that has never produced anything.
type Result[T any] struct {
	state resultState
	value T
	err   error
	prev  *T
}

// Ok returns a successful Result carrying value.
func Ok[T any](value T) Result[T] {
	return Result[T]{state: stateOk, value: value}
}

// Err returns a failed Result carrying err.
func Err[T any](err error) Result[T] {
	return Result[T]{state: stateErr, err: err}
}

// Loading returns an in-flight Result with no previous value.
func Loading[T any]() Result[T] {
	return Result[T]{}
}

// LoadingFrom returns an in-flight Result. A non-nil prev is surfaced through
// Previous until the fetch settles.
func LoadingFrom[T any](prev *T) Result[T] {
	return Result[T]{state: stateLoading, prev: prev}
}

// From converts a conventional (value, error) pair into a Result. It is the
// bridge for fetch functions built on clients that report errors the usual
// Go way.
func From[T any](value T, err error) Result[T] {
	if err != nil {
		return Err[T](err)
	}
	return Ok(value)
}

// IsOk reports whether the Result settled successfully.
func (r Result[T]) IsOk() bool { return r.state == stateOk }

// IsErr reports whether the Result settled with an error.
func (r Result[T]) IsErr() bool { return r.state == stateErr }

// IsLoading reports whether a fetch is still in flight.
func (r Result[T]) IsLoading() bool { return r.state == stateLoading }

// Value returns the settled value. The boolean is false unless the Result
// is Ok.
func (r Result[T]) Value() (T, bool) {
	if r.state != stateOk {
		var zero T
		return zero, false
	}
	return r.value, true
}

// Error returns the settled error, or nil unless the Result is Err.
func (r Result[T]) Error() error {
	if r.state != stateErr {
		return nil
	}
	return r.err
}

// Previous returns the stale value carried by a loading Result. The boolean
// is false for settled Results and for loads with nothing to show.
func (r Result[T]) Previous() (T, bool) {
	if r.state != stateLoading || r.prev == nil {
		var zero T
		return zero, false
	}
	return *r.prev, true
}

// previous projects the Result into the value a subsequent loading state
// should carry: a settled Ok contributes its value, an in-flight Result
// passes its own previous value along, and an Err contributes nothing.
func (r Result[T]) previous() *T {
	switch r.state {
	case stateOk:
		v := r.value
		return &v
	case stateLoading:
		return r.prev
	default:
		return nil
	}
}

// stateName is used for log fields.
func (r Result[T]) stateName() string {
	switch r.state {
	case stateOk:
		return "ok"
	case stateErr:
		return "error"
	default:
		return "loading"
	}
}
