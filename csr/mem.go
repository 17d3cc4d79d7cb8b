// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package csr

import "sync"

// Mem is an in-process register file.
//
// Reads of a register return its scripted values first, in order, and then
// its last written value.
type Mem struct {
	mu     sync.Mutex
	regs   map[uint32]uint32
	script map[uint32][]uint32
}

// NewMem creates a new, zeroed, register file.
func NewMem() *Mem {
	return &Mem{
		regs:   make(map[uint32]uint32),
		script: make(map[uint32][]uint32),
	}
}

// Script queues values to be returned by the next reads of addr.
func (mem *Mem) Script(addr uint32, vs ...uint32) {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	mem.script[addr] = append(mem.script[addr], vs...)
}

func (mem *Mem) Read(addr uint32) (uint32, error) {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	if vs := mem.script[addr]; len(vs) > 0 {
		mem.script[addr] = vs[1:]
		return vs[0], nil
	}
	return mem.regs[addr], nil
}

func (mem *Mem) Write(addr, v uint32) error {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	mem.regs[addr] = v
	return nil
}

var _ Bus = (*Mem)(nil)
