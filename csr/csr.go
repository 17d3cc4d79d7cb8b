// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package csr provides access to the control and status registers (CSR) of
// a device under test.
//
// Registers are addressed by name through a Map, loaded once from a LiteX
// csr.csv description, and accessed over a Bus.
package csr // import "github.com/go-lpc/usbbfm/csr"

import (
	"errors"
	"fmt"
)

// Bus is a 32-bit register transport.
type Bus interface {
	Read(addr uint32) (uint32, error)
	Write(addr, v uint32) error
}

var (
	ErrUnknown = errors.New("csr: unknown register")
	ErrClosed  = errors.New("csr: bus closed")
)

// Error records a failed register access.
type Error struct {
	Op   string // "read" or "write"
	Name string
	Addr uint32
	Err  error
}

func (e *Error) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("csr: could not %s register 0x%x: %v", e.Op, e.Addr, e.Err)
	}
	return fmt.Sprintf("csr: could not %s register %s (0x%x): %v", e.Op, e.Name, e.Addr, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
