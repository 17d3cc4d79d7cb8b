// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package csr

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
)

func TestMemFile(t *testing.T) {
	const base = 0xe0004800
	fname := filepath.Join(t.TempDir(), "csr.mem")

	mem, err := OpenMemFile(fname, base, 0x100)
	if err != nil {
		t.Fatalf("could not open register window: %+v", err)
	}
	defer mem.Close()

	for _, tc := range []struct {
		addr uint32
		v    uint32
	}{
		{base + 0x00, 0x1},
		{base + 0x04, 0xdeadbeef},
		{base + 0xfc, 0xff},
	} {
		err := mem.Write(tc.addr, tc.v)
		if err != nil {
			t.Fatalf("could not write 0x%x: %+v", tc.addr, err)
		}
		got, err := mem.Read(tc.addr)
		if err != nil {
			t.Fatalf("could not read 0x%x: %+v", tc.addr, err)
		}
		if got != tc.v {
			t.Fatalf("invalid value at 0x%x: got=0x%x, want=0x%x", tc.addr, got, tc.v)
		}
	}

	_, err = mem.Read(base - 4)
	if err == nil {
		t.Fatalf("expected an error reading below the window")
	}
	err = mem.Write(base+0x100, 1)
	if err == nil {
		t.Fatalf("expected an error writing past the window")
	}

	// a second mapping of the same file sees the same registers.
	peer, err := OpenMemFile(fname, base, 0x100)
	if err != nil {
		t.Fatalf("could not open second register window: %+v", err)
	}
	defer peer.Close()

	v, err := peer.Read(base + 0x04)
	if err != nil {
		t.Fatalf("could not read from peer window: %+v", err)
	}
	if got, want := v, uint32(0xdeadbeef); got != want {
		t.Fatalf("invalid shared value: got=0x%x, want=0x%x", got, want)
	}

	err = mem.Close()
	if err != nil {
		t.Fatalf("could not close register window: %+v", err)
	}
	_, err = mem.Read(base)
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("invalid error after close: %+v", err)
	}
	err = mem.Write(base, 0)
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("invalid error after close: %+v", err)
	}
}

type fakeSMBus struct {
	addr   uint8
	regs   [256]uint8
	closed bool
}

func (bus *fakeSMBus) ReadReg(addr, reg uint8) (uint8, error) {
	if addr != bus.addr {
		return 0, fmt.Errorf("no device at 0x%x", addr)
	}
	return bus.regs[reg], nil
}

func (bus *fakeSMBus) WriteReg(addr, reg, v uint8) error {
	if addr != bus.addr {
		return fmt.Errorf("no device at 0x%x", addr)
	}
	bus.regs[reg] = v
	return nil
}

func (bus *fakeSMBus) Close() error {
	bus.closed = true
	return nil
}

func TestSMBus(t *testing.T) {
	fake := &fakeSMBus{addr: 0x42}
	defer func(f func(int, uint8) (smbusConn, error)) {
		smbusOpen = f
	}(smbusOpen)
	smbusOpen = func(bus int, addr uint8) (smbusConn, error) {
		if bus != 1 {
			return nil, fmt.Errorf("no such bus %d", bus)
		}
		return fake, nil
	}

	_, err := OpenSMBus(2, 0x42)
	if err == nil {
		t.Fatalf("expected an error opening an invalid bus")
	}

	dev, err := OpenSMBus(1, 0x42)
	if err != nil {
		t.Fatalf("could not open SMBus: %+v", err)
	}

	err = dev.Write(0x10, 0xab)
	if err != nil {
		t.Fatalf("could not write register: %+v", err)
	}
	if got, want := fake.regs[0x10], uint8(0xab); got != want {
		t.Fatalf("invalid register content: got=0x%x, want=0x%x", got, want)
	}
	v, err := dev.Read(0x10)
	if err != nil {
		t.Fatalf("could not read register: %+v", err)
	}
	if got, want := v, uint32(0xab); got != want {
		t.Fatalf("invalid register value: got=0x%x, want=0x%x", got, want)
	}

	if err := dev.Write(0x10, 0x100); err == nil {
		t.Fatalf("expected an error writing a 9-bit value")
	}
	if _, err := dev.Read(0x100); err == nil {
		t.Fatalf("expected an error reading an out-of-range register")
	}

	err = dev.Close()
	if err != nil {
		t.Fatalf("could not close SMBus: %+v", err)
	}
	if !fake.closed {
		t.Fatalf("connection was not closed")
	}
	if _, err := dev.Read(0x10); !errors.Is(err, ErrClosed) {
		t.Fatalf("invalid error after close: %+v", err)
	}
}
