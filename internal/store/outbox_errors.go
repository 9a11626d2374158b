package store

import "errors"

type permanentSendError struct {
	err error
}

func (e *permanentSendError) Error() string { return e.err.Error() }
func (e *permanentSendError) Unwrap() error { return e.err }

// Permanent marks a send error as one that no retry can fix, such as an
// invalid recipient. The sender fails such messages immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentSendError{err: err}
}

// IsPermanent reports whether err, or any error it wraps, was marked Permanent.
func IsPermanent(err error) bool {
	var p *permanentSendError
	return errors.As(err, &p)
}
