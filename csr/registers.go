// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package csr

// Registers gives by-name access to the registers of a bus.
type Registers struct {
	bus Bus
	csr *Map
}

// NewRegisters binds a register map to a bus.
func NewRegisters(bus Bus, m *Map) *Registers {
	return &Registers{bus: bus, csr: m}
}

func (r *Registers) Bus() Bus  { return r.bus }
func (r *Registers) Map() *Map { return r.csr }

// Read reads the named register.
func (r *Registers) Read(name string) (uint32, error) {
	addr, err := r.csr.Addr(name)
	if err != nil {
		return 0, &Error{Op: "read", Name: name, Err: err}
	}
	v, err := r.bus.Read(addr)
	if err != nil {
		return 0, &Error{Op: "read", Name: name, Addr: addr, Err: err}
	}
	return v, nil
}

// Write writes v to the named register.
func (r *Registers) Write(name string, v uint32) error {
	addr, err := r.csr.Addr(name)
	if err != nil {
		return &Error{Op: "write", Name: name, Err: err}
	}
	err = r.bus.Write(addr, v)
	if err != nil {
		return &Error{Op: "write", Name: name, Addr: addr, Err: err}
	}
	return nil
}
