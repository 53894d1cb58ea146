// Package errkind classifies pipeline errors into configuration mistakes,
// transient failures and fatal runtime failures.
package errkind

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUndefined = Kind(iota)

	// KindConfig is a caller mistake (bad sample rate, unknown device).
	// It is reported immediately and never retried.
	KindConfig

	// KindTransient is a failure which may go away if retried
	// (e.g. a render stream refusing a sample rate).
	KindTransient

	// KindFatal aborts the session.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindUndefined:
		return "undefined"
	case KindConfig:
		return "config"
	case KindTransient:
		return "transient"
	case KindFatal:
		return "fatal"
	default:
		return fmt.Sprintf("unknown_kind_%d", int(k))
	}
}

type Error struct {
	Kind Kind
	Err  error
}

var _ error = (*Error)(nil)

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String() + " error"
	}
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

func Config(err error) error {
	return New(KindConfig, err)
}

func Configf(format string, args ...any) error {
	return Config(fmt.Errorf(format, args...))
}

func Transient(err error) error {
	return New(KindTransient, err)
}

func Fatal(err error) error {
	return New(KindFatal, err)
}

// KindOf returns the kind of the outermost classified error in the chain.
// Unclassified errors are considered fatal.
func KindOf(err error) Kind {
	if err == nil {
		return KindUndefined
	}
	var kindErr *Error
	if errors.As(err, &kindErr) {
		return kindErr.Kind
	}
	return KindFatal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
