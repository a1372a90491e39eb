// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ggerrors classifies the failures that decide an invocation's
// exit code: a small Kind enum wrapped with errors.As-compatible errors,
// so components signal usage, auth, scope, and quota failures with
// ordinary error returns.
package ggerrors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure, driving the exit-code mapping in resulttree.
type Kind int

const (
	KindUnexpected Kind = iota
	KindUsage
	KindAuth
	KindMissingScopes
	KindQuotaLimitReached
	KindContentTooLarge
)

// ExitCode returns the process exit code for k.
func (k Kind) ExitCode() int {
	switch k {
	case KindUsage:
		return 2
	case KindAuth, KindMissingScopes:
		return 3
	case KindQuotaLimitReached:
		return 128
	case KindContentTooLarge:
		return 128
	default:
		return 128
	}
}

// Error is a classified failure that propagates to the top of an
// invocation.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// ExitCode forwards to Kind.ExitCode, letting callers that only hold an
// error interface value (e.g. resulttree.ExitCode) compute the right exit
// code without importing ggerrors directly.
func (e *Error) ExitCode() int { return e.Kind.ExitCode() }

func New(kind Kind, msg string) *Error { return &Error{Kind: kind, Msg: msg} }

func Wrap(kind Kind, msg string, err error) *Error { return &Error{Kind: kind, Msg: msg, Err: err} }

// Usage, Auth, MissingScopes, QuotaLimitReached, and ContentTooLarge are
// small constructors, one per failure class.
func Usage(msg string) *Error             { return New(KindUsage, msg) }
func Auth(msg string) *Error              { return New(KindAuth, msg) }
func MissingScopes(scope string) *Error   { return New(KindMissingScopes, fmt.Sprintf("missing scope %q", scope)) }
func QuotaLimitReached(msg string) *Error { return New(KindQuotaLimitReached, msg) }
func ContentTooLarge(msg string) *Error   { return New(KindContentTooLarge, msg) }

// Is reports whether err (or anything it wraps) is a *Error of kind k.
func Is(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}
