package session

import (
	"errors"
	"fmt"
)

// Kind classifies session failures.
type Kind string

const (
	KindInvalidInput       Kind = "INVALID_INPUT"
	KindChunkRecordMissing Kind = "CHUNK_RECORD_MISSING"
	KindTransferFailure    Kind = "TRANSFER_FAILURE"
	KindStoreUnavailable   Kind = "STORE_UNAVAILABLE"
)

// Error carries the kind of a failure and the operation it happened in.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return e.Op + ": " + e.Err.Error()
	case e.Err != nil:
		return e.Err.Error()
	case e.Op != "":
		return e.Op
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the bare sentinels below by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Op != "" || t.Err != nil {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrInvalidInput       = &Error{Kind: KindInvalidInput}
	ErrChunkRecordMissing = &Error{Kind: KindChunkRecordMissing}
	ErrTransferFailure    = &Error{Kind: KindTransferFailure}
	ErrStoreUnavailable   = &Error{Kind: KindStoreUnavailable}
)

// KindOf returns the kind of err, or "" when err is not a session error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func invalidInput(op, format string, args ...interface{}) error {
	return &Error{Kind: KindInvalidInput, Op: op, Err: fmt.Errorf(format, args...)}
}

func storeUnavailable(op string, err error) error {
	return &Error{Kind: KindStoreUnavailable, Op: op, Err: err}
}
