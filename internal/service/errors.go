package service

import "errors"

// Kind classifies the errors returned by TaskService.
type Kind int

const (
	// KindValidation marks rejected input (only the deadline is validated).
	KindValidation Kind = iota + 1
	// KindStore marks a failure reported by the data store.
	KindStore
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindStore:
		return "store"
	default:
		return "unknown"
	}
}

// Validation messages returned to clients.
const (
	MsgDeadlineFormat  = "Deadline must be in the format dd/MM/yy HH:mm"
	MsgDeadlineInvalid = "Invalid deadline date"
)

// Error is the single error type crossing the service boundary.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Err == nil:
		return e.Message
	case e.Message == "":
		return e.Err.Error()
	default:
		return e.Message + ": " + e.Err.Error()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of err, or 0 when err is not a service error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func validationError(msg string, cause error) error {
	return &Error{Kind: KindValidation, Message: msg, Err: cause}
}

// storeError keeps the driver error message intact.
func storeError(err error) error {
	return &Error{Kind: KindStore, Err: err}
}
