package mutation

type resultState uint8

const (
	// statePending is the zero state: the mutation has never been invoked.
	statePending resultState = iota
	stateLoading
	stateOk
	stateErr
)

// Result is the outcome of a mutation. It is a tagged value: exactly one of
// Pending, Loading, Ok, or Err. A loading Result may carry the previous
// successful value so consumers can keep showing it while the new run
// settles.
//
// The zero value is Pending, the state of a mutation that has never run.
type Result[T any] struct {
	state resultState
	value T
	err   error
	prev  *T
}

// Pending returns the never-invoked Result. It is the zero value, spelled
// out for call sites that want to reset a snapshot explicitly.
func Pending[T any]() Result[T] {
	return Result[T]{}
}

// Ok returns a successful Result carrying value.
func Ok[T any](value T) Result[T] {
	return Result[T]{state: stateOk, value: value}
}

// Err returns a failed Result carrying err.
func Err[T any](err error) Result[T] {
	return Result[T]{state: stateErr, err: err}
}

// LoadingFrom returns an in-flight Result. A non-nil prev is surfaced
// through Previous until the run settles.
func LoadingFrom[T any](prev *T) Result[T] {
	return Result[T]{state: stateLoading, prev: prev}
}

// From converts a conventional (value, error) pair into a Result. It is the
// bridge for mutation functions built on clients that report errors the
// usual Go way.
func From[T any](value T, err error) Result[T] {
	if err != nil {
		return Err[T](err)
	}
	return Ok(value)
}

// IsPending reports whether the mutation has never been invoked.
func (r Result[T]) IsPending() bool { return r.state == statePending }

// IsLoading reports whether a run is still in flight.
func (r Result[T]) IsLoading() bool { return r.state == stateLoading }

// IsOk reports whether the Result settled successfully.
func (r Result[T]) IsOk() bool { return r.state == stateOk }

// IsErr reports whether the Result settled with an error.
func (r Result[T]) IsErr() bool { return r.state == stateErr }

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
// is false for settled and pending Results and for loads with nothing to
// show.
func (r Result[T]) Previous() (T, bool) {
	if r.state != stateLoading || r.prev == nil {
		var zero T
		return zero, false
	}
	return *r.prev, true
}

// previous projects the Result into the value the next loading state should
// carry: a settled Ok contributes its value, an in-flight Result passes its
// own previous value along, and Err and Pending contribute nothing.
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
	case stateLoading:
		return "loading"
	default:
		return "pending"
	}
}
