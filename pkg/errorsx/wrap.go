package errorsx

import "errors"

// ReasonedError wraps an error with a reason code and the operation that
// produced it.
type ReasonedError struct {
	Err    error
	Reason ReasonCode
	Op     string
}

func (e ReasonedError) Error() string {
	msg := string(e.Reason)
	if e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e ReasonedError) Unwrap() error {
	return e.Err
}

// Wrap attaches a reason code to an error (no-op if err is nil or already reasoned).
func Wrap(err error, reason ReasonCode) error {
	return WrapOp(err, reason, "")
}

// WrapOp is Wrap with the name of the failing operation.
func WrapOp(err error, reason ReasonCode, op string) error {
	if err == nil {
		return nil
	}
	var re ReasonedError
	if errors.As(err, &re) {
		return err
	}
	return ReasonedError{Err: err, Reason: reason, Op: op}
}

// Reason extracts a reason code from an error, if present.
func Reason(err error) ReasonCode {
	var re ReasonedError
	if err != nil && errors.As(err, &re) {
		return re.Reason
	}
	return ReasonUnknown
}

// HasReason returns true if err contains the given reason code.
func HasReason(err error, reason ReasonCode) bool {
	return Reason(err) == reason
}
