// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package host

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrUsage      = errors.New("usage error")
	ErrValidation = errors.New("validation failure")
	ErrTimeout    = errors.New("timeout failure")
	ErrTransport  = errors.New("transport error")
)

// UsageError reports self-contradictory arguments.
// It is raised before any register traffic.
type UsageError struct {
	Op  string
	Msg string
}

// Usagef creates a new usage error.
func Usagef(op, format string, args ...any) *UsageError {
	return &UsageError{Op: op, Msg: fmt.Sprintf(format, args...)}
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Op, ErrUsage, e.Msg)
}

func (e *UsageError) Is(target error) bool { return target == ErrUsage }

// ValidationError reports received data, CRC or event bits that do not
// match what was expected.
type ValidationError struct {
	Op   string
	Msg  string
	Got  any
	Want any
}

// Validationf creates a new validation error.
func Validationf(op string, got, want any, format string, args ...any) *ValidationError {
	return &ValidationError{
		Op:   op,
		Msg:  fmt.Sprintf(format, args...),
		Got:  got,
		Want: want,
	}
}

func (e *ValidationError) Error() string {
	if e.Got == nil && e.Want == nil {
		return fmt.Sprintf("%s: %s: %s", e.Op, ErrValidation, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %s (got=%v, want=%v)", e.Op, ErrValidation, e.Msg, e.Got, e.Want)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// TimeoutError reports a packet or request deadline exceeded in simulated
// time.
type TimeoutError struct {
	Op       string
	Msg      string
	Now      time.Duration
	Deadline time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: %s: %s (now=%v, deadline=%v)", e.Op, ErrTimeout, e.Msg, e.Now, e.Deadline)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// TransportError reports a failed register access.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, ErrTransport, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }
