package marketapi

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can branch without parsing messages.
type Kind int

const (
	KindUnknown Kind = iota
	// KindNotFound: the referenced account does not exist.
	KindNotFound
	// KindInvalidAmount: the budget is non-positive, or collapses to zero
	// after clamping.
	KindInvalidAmount
	// KindDomain: the trade would push the market outside [0, 1).
	KindDomain
	// KindBusy: locks were not acquired in time. Safe to retry.
	KindBusy
	// KindConflict: the username is taken.
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidAmount:
		return "invalid_amount"
	case KindDomain:
		return "domain_error"
	case KindBusy:
		return "busy"
	case KindConflict:
		return "conflict"
	}
	return "unknown"
}

// Error is the structured failure returned by the engine and the stores.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrBusy) works
// regardless of Op and Msg.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrInvalidAmount = &Error{Kind: KindInvalidAmount}
	ErrDomain        = &Error{Kind: KindDomain}
	ErrBusy          = &Error{Kind: KindBusy}
	ErrConflict      = &Error{Kind: KindConflict}
)

// E builds an *Error. err may be nil.
func E(kind Kind, op string, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
