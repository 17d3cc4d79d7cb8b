// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package csr

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/go-lpc/usbbfm/internal/mmap"
)

type rwer interface {
	io.ReaderAt
	io.WriterAt
}

// MemFile is a register window shared through a memory-mapped file, as
// exported by an external RTL simulator.
// Registers are 32-bit little-endian words located at addr-base.
type MemFile struct {
	mu   sync.Mutex
	rw   rwer
	base uint32
	buf  [4]byte
	h    io.Closer
}

// OpenMemFile maps size bytes of the named file as a register window
// starting at bus address base.
func OpenMemFile(fname string, base uint32, size int) (*MemFile, error) {
	h, err := mmap.Open(fname, size)
	if err != nil {
		return nil, fmt.Errorf("csr: could not open register window: %w", err)
	}
	mem := NewMemFile(h, base)
	mem.h = h
	return mem, nil
}

// NewMemFile creates a register window over rw, starting at bus address base.
func NewMemFile(rw rwer, base uint32) *MemFile {
	return &MemFile{rw: rw, base: base}
}

func (mem *MemFile) offset(addr uint32) (int64, error) {
	if addr < mem.base {
		return 0, fmt.Errorf("csr: address 0x%x below window base 0x%x", addr, mem.base)
	}
	return int64(addr - mem.base), nil
}

func (mem *MemFile) Read(addr uint32) (uint32, error) {
	off, err := mem.offset(addr)
	if err != nil {
		return 0, err
	}
	mem.mu.Lock()
	defer mem.mu.Unlock()
	if mem.rw == nil {
		return 0, ErrClosed
	}
	_, err = mem.rw.ReadAt(mem.buf[:], off)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(mem.buf[:]), nil
}

func (mem *MemFile) Write(addr, v uint32) error {
	off, err := mem.offset(addr)
	if err != nil {
		return err
	}
	mem.mu.Lock()
	defer mem.mu.Unlock()
	if mem.rw == nil {
		return ErrClosed
	}
	binary.LittleEndian.PutUint32(mem.buf[:], v)
	_, err = mem.rw.WriteAt(mem.buf[:], off)
	return err
}

// Close releases the underlying mapping, if any.
func (mem *MemFile) Close() error {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	mem.rw = nil
	if mem.h == nil {
		return nil
	}
	h := mem.h
	mem.h = nil
	return h.Close()
}

var _ Bus = (*MemFile)(nil)
