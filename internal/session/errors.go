package session

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced to the user.
type ErrorKind int

const (
	KindProviderUnavailable ErrorKind = iota + 1
	KindWrongNetwork
	KindConnectionRejected
	KindMintRejected
	KindMintReverted
	KindProviderFailure
	KindNotConnected
	KindBusy
)

var (
	ErrProviderUnavailable = errors.New("wallet provider unavailable")
	ErrWrongNetwork        = errors.New("wrong network")
	ErrConnectionRejected  = errors.New("connection rejected")
	ErrMintRejected        = errors.New("mint rejected")
	ErrMintReverted        = errors.New("mint reverted")
	ErrProviderFailure     = errors.New("unexpected provider error")
	ErrNotConnected        = errors.New("wallet not connected")
	ErrBusy                = errors.New("another request is in flight")

	// ErrClosed is the cause when a connection finishes after Close.
	ErrClosed = errors.New("session closed")
)

func (k ErrorKind) sentinel() error {
	switch k {
	case KindProviderUnavailable:
		return ErrProviderUnavailable
	case KindWrongNetwork:
		return ErrWrongNetwork
	case KindConnectionRejected:
		return ErrConnectionRejected
	case KindMintRejected:
		return ErrMintRejected
	case KindMintReverted:
		return ErrMintReverted
	case KindNotConnected:
		return ErrNotConnected
	case KindBusy:
		return ErrBusy
	default:
		return ErrProviderFailure
	}
}

func (k ErrorKind) String() string {
	switch k {
	case KindProviderUnavailable:
		return "provider_unavailable"
	case KindWrongNetwork:
		return "wrong_network"
	case KindConnectionRejected:
		return "connection_rejected"
	case KindMintRejected:
		return "mint_rejected"
	case KindMintReverted:
		return "mint_reverted"
	case KindNotConnected:
		return "not_connected"
	case KindBusy:
		return "busy"
	default:
		return "provider_failure"
	}
}

// Error is returned by every controller operation. errors.Is matches both the
// kind's sentinel and the underlying cause.
type Error struct {
	Op   string
	Kind ErrorKind
	Err  error
}

func newError(op string, kind ErrorKind, cause error) *Error {
	return &Error{Op: op, Kind: kind, Err: cause}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind.sentinel())
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind.sentinel(), e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind.sentinel()}
	}
	return []error{e.Kind.sentinel(), e.Err}
}

// KindOf extracts the ErrorKind of err, or 0 when err is not a session error.
func KindOf(err error) ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return 0
}
