// Package errs implements the error taxonomy from the specification:
// transient, rate-limited, validation, precision, business, fatal and
// internal failures, with a Classify helper the Order Service and the
// Telegram dispatcher use to decide retry/backoff/notify behavior.
package errs

import (
	"errors"
	"fmt"
)

// Kind is one bucket of the error taxonomy.
type Kind int

const (
	KindUnknown Kind = iota
	KindTransient
	KindRateLimited
	KindValidation
	KindPrecision
	KindBusiness
	KindFatal
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindRateLimited:
		return "rate_limited"
	case KindValidation:
		return "validation"
	case KindPrecision:
		return "precision"
	case KindBusiness:
		return "business"
	case KindFatal:
		return "fatal"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// classified wraps an underlying error with its taxonomy Kind.
type classified struct {
	kind Kind
	err  error
}

func (c *classified) Error() string { return fmt.Sprintf("[%s] %v", c.kind, c.err) }
func (c *classified) Unwrap() error { return c.err }

func wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &classified{kind: kind, err: err}
}

func Transient(err error) error   { return wrap(KindTransient, err) }
func RateLimited(err error) error { return wrap(KindRateLimited, err) }
func Validation(err error) error  { return wrap(KindValidation, err) }
func Precision(err error) error   { return wrap(KindPrecision, err) }
func Business(err error) error    { return wrap(KindBusiness, err) }
func Fatal(err error) error       { return wrap(KindFatal, err) }
func Internal(err error) error    { return wrap(KindInternal, err) }

// Classify extracts the taxonomy Kind from an error produced by this
// package, or KindUnknown if err was not classified here.
func Classify(err error) Kind {
	var c *classified
	if errors.As(err, &c) {
		return c.kind
	}
	return KindUnknown
}

// Retryable reports whether the classified error should be retried with
// backoff (transient and rate-limited failures only).
func Retryable(err error) bool {
	switch Classify(err) {
	case KindTransient, KindRateLimited:
		return true
	default:
		return false
	}
}
