// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package csr

import "sync"

// Access is a recorded register write.
type Access struct {
	Addr  uint32
	Value uint32
}

// Monitor wraps a bus and records the traffic going through it.
// It can also inject transport failures.
type Monitor struct {
	bus Bus

	mu     sync.Mutex
	reads  int
	writes int
	log    []Access
	failr  map[uint32]error
	failw  map[uint32]error
}

// NewMonitor creates a monitor of the provided bus.
func NewMonitor(bus Bus) *Monitor {
	return &Monitor{
		bus:   bus,
		failr: make(map[uint32]error),
		failw: make(map[uint32]error),
	}
}

func (mon *Monitor) Read(addr uint32) (uint32, error) {
	mon.mu.Lock()
	mon.reads++
	err := mon.failr[addr]
	mon.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return mon.bus.Read(addr)
}

func (mon *Monitor) Write(addr, v uint32) error {
	mon.mu.Lock()
	mon.writes++
	mon.log = append(mon.log, Access{Addr: addr, Value: v})
	err := mon.failw[addr]
	mon.mu.Unlock()
	if err != nil {
		return err
	}
	return mon.bus.Write(addr, v)
}

// Reads returns the number of register reads seen so far.
func (mon *Monitor) Reads() int {
	mon.mu.Lock()
	defer mon.mu.Unlock()
	return mon.reads
}

// Writes returns the number of register writes seen so far.
func (mon *Monitor) Writes() int {
	mon.mu.Lock()
	defer mon.mu.Unlock()
	return mon.writes
}

// WriteLog returns the writes seen so far, in order.
func (mon *Monitor) WriteLog() []Access {
	mon.mu.Lock()
	defer mon.mu.Unlock()
	return append([]Access(nil), mon.log...)
}

// FailRead makes reads of addr fail with err.
// A nil error removes the failure.
func (mon *Monitor) FailRead(addr uint32, err error) {
	mon.mu.Lock()
	defer mon.mu.Unlock()
	if err == nil {
		delete(mon.failr, addr)
		return
	}
	mon.failr[addr] = err
}

// FailWrite makes writes to addr fail with err.
// A nil error removes the failure.
func (mon *Monitor) FailWrite(addr uint32, err error) {
	mon.mu.Lock()
	defer mon.mu.Unlock()
	if err == nil {
		delete(mon.failw, addr)
		return
	}
	mon.failw[addr] = err
}

// Reset clears the counters and the write log.
func (mon *Monitor) Reset() {
	mon.mu.Lock()
	defer mon.mu.Unlock()
	mon.reads = 0
	mon.writes = 0
	mon.log = nil
}

var _ Bus = (*Monitor)(nil)
