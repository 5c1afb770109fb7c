package crdt

import "errors"

// Sentinel errors for the taxonomy of §7. A reported error is returned
// before the failing operation changes state, but operations applied
// earlier in the same Replica.Change batch are not rolled back; fatal
// integrity errors indicate a corrupted log.
var (
	// ErrInvalidPath is reported when no object exists at the supplied path.
	ErrInvalidPath = errors.New("crdt: no object at path")

	// ErrTypeMismatch is reported when an operation targets an object of
	// the wrong kind (e.g. a list op against a map).
	ErrTypeMismatch = errors.New("crdt: type mismatch")

	// ErrIndexOutOfBounds is reported when an insert/delete/mark range
	// exceeds the visible length of the sequence.
	ErrIndexOutOfBounds = errors.New("crdt: index out of bounds")

	// ErrUnknownElemID is a fatal integrity error: an internal op
	// referenced a slot that does not exist (violates I4).
	ErrUnknownElemID = errors.New("crdt: unknown element id")

	// ErrCausalityViolation is reported when a remote Change's seq has a
	// gap or its deps are not yet satisfied. The Change is not applied
	// yet; Replica.ApplyRemote buffers it and applies it once its
	// dependencies arrive.
	ErrCausalityViolation = errors.New("crdt: causality violation")

	// ErrAttrsMissing is reported when a mark-op that requires attrs
	// (link needs url, comment needs id) is submitted without them.
	ErrAttrsMissing = errors.New("crdt: required attrs missing")

	// ErrUnknownMarkType is reported for addMark/removeMark on a markType
	// not in the mark type table.
	ErrUnknownMarkType = errors.New("crdt: unknown mark type")

	// ErrUnknownAction is reported for an input operation with an
	// unrecognized action.
	ErrUnknownAction = errors.New("crdt: unknown action")
)

// IntegrityError wraps a fatal error that leaves the replica in a state
// that must not be trusted for further processing.
type IntegrityError struct {
	Err error
}

func (e *IntegrityError) Error() string {
	return "crdt: integrity error: " + e.Err.Error()
}

func (e *IntegrityError) Unwrap() error {
	return e.Err
}

func newIntegrityError(err error) *IntegrityError {
	return &IntegrityError{Err: err}
}
