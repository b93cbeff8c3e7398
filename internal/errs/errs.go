// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package errs defines the error Kinds of spec.md §7 and the propagation
// policy that goes with them: verification and capacity errors are local
// (drop + score, or evict + retry); delivery errors are observable and
// returned to the DM caller.
package errs

import (
	"github.com/cockroachdb/errors"
)

// Kind tags an error with the §7 taxonomy so callers can branch on it
// without string-matching.
type Kind int

const (
	KindInvalidSignature Kind = iota
	KindInvalidVDF
	KindVDFTimeout
	KindSizeExceeded
	KindToxicContent
	KindIntegrityError
	KindNotFound
	KindUnreachable
	KindQuotaExceeded
	KindDuplicateClaim
)

func (k Kind) String() string {
	switch k {
	case KindInvalidSignature:
		return "InvalidSignature"
	case KindInvalidVDF:
		return "InvalidVDF"
	case KindVDFTimeout:
		return "VDFTimeout"
	case KindSizeExceeded:
		return "SizeExceeded"
	case KindToxicContent:
		return "ToxicContent"
	case KindIntegrityError:
		return "IntegrityError"
	case KindNotFound:
		return "NotFound"
	case KindUnreachable:
		return "Unreachable"
	case KindQuotaExceeded:
		return "QuotaExceeded"
	case KindDuplicateClaim:
		return "DuplicateClaim"
	default:
		return "Unknown"
	}
}

// kindedError pairs a Kind with an underlying error so errors.As can recover
// the Kind at any point the error is wrapped/propagated.
type kindedError struct {
	kind Kind
	err  error
}

func (e *kindedError) Error() string { return e.kind.String() + ": " + e.err.Error() }
func (e *kindedError) Unwrap() error { return e.err }
func (e *kindedError) Kind() Kind    { return e.kind }

// New returns an error tagged with kind.
func New(kind Kind, msg string) error {
	return &kindedError{kind: kind, err: errors.New(msg)}
}

// Wrap tags err with kind, preserving err's stack trace via cockroachdb/errors.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &kindedError{kind: kind, err: errors.Wrap(err, msg)}
}

// As recovers the Kind of err, if any component in its chain was tagged.
func As(err error) (Kind, bool) {
	var ke *kindedError
	if errors.As(err, &ke) {
		return ke.kind, true
	}
	return 0, false
}

// Is reports whether err is (wraps) an error of the given kind.
func Is(err error, kind Kind) bool {
	k, ok := As(err)
	return ok && k == kind
}
