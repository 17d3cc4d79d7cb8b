// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package csr

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const litexCSV = `#--------------------------------------------------------------------------------
# Auto-generated by Migen & LiteX
#--------------------------------------------------------------------------------
csr_base,usb,0xe0004800,,
csr_register,usb_pullup_out,0xe0004800,1,rw
csr_register,usb_address,0xe0004804,1,rw
csr_register,usb_setup_data,0xe0004808,1,ro
constant,config_clock_frequency,12000000,,
memory_region,rom,0x00000000,32768,cached
`

func TestParseCSV(t *testing.T) {
	m, err := ParseCSV(strings.NewReader(litexCSV))
	if err != nil {
		t.Fatalf("could not parse CSR file: %+v", err)
	}

	if got, want := m.Len(), 3; got != want {
		t.Fatalf("invalid number of registers: got=%d, want=%d", got, want)
	}

	for _, tc := range []struct {
		name string
		addr uint32
	}{
		{"usb_pullup_out", 0xe0004800},
		{"usb_address", 0xe0004804},
		{"usb_setup_data", 0xe0004808},
	} {
		addr, err := m.Addr(tc.name)
		if err != nil {
			t.Fatalf("could not find %q: %+v", tc.name, err)
		}
		if addr != tc.addr {
			t.Fatalf("invalid address for %q: got=0x%x, want=0x%x", tc.name, addr, tc.addr)
		}
		name, ok := m.Name(addr)
		if !ok || name != tc.name {
			t.Fatalf("invalid name for 0x%x: got=%q, want=%q", addr, name, tc.name)
		}
	}

	_, err = m.Addr("usb_in_ctrl")
	if !errors.Is(err, ErrUnknown) {
		t.Fatalf("invalid error for unknown register: %+v", err)
	}

	want := []string{"usb_pullup_out", "usb_address", "usb_setup_data"}
	if diff := cmp.Diff(want, m.Names()); diff != "" {
		t.Fatalf("invalid names (-want +got):\n%s", diff)
	}

	o := new(bytes.Buffer)
	err = m.WriteCSV(o)
	if err != nil {
		t.Fatalf("could not write CSR file: %+v", err)
	}
	rt, err := ParseCSV(o)
	if err != nil {
		t.Fatalf("could not re-parse CSR file: %+v", err)
	}
	if diff := cmp.Diff(m.Names(), rt.Names()); diff != "" {
		t.Fatalf("invalid round-trip (-want +got):\n%s", diff)
	}
}

func TestParseCSVErrors(t *testing.T) {
	for _, tc := range []struct {
		name string
		csv  string
		err  string
	}{
		{
			name: "empty",
			csv:  "# nothing\n",
			err:  "csr: no csr_register entry",
		},
		{
			name: "bad-address",
			csv:  "csr_register,usb_address,0xzz,1,rw\n",
			err:  `csr: could not parse address of "usb_address"`,
		},
		{
			name: "duplicate",
			csv:  "csr_register,usb_address,0x4,1,rw\ncsr_register,usb_address,0x8,1,rw\n",
			err:  `csr: duplicate register "usb_address"`,
		},
		{
			name: "alias",
			csv:  "csr_register,usb_address,0x4,1,rw\ncsr_register,usb_pullup_out,0x4,1,rw\n",
			err:  `csr: register "usb_pullup_out" aliases "usb_address" at 0x4`,
		},
		{
			name: "short",
			csv:  "csr_register,usb_address\n",
			err:  "csr: invalid csr_register record 1",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseCSV(strings.NewReader(tc.csv))
			if err == nil {
				t.Fatalf("expected an error")
			}
			if got, want := err.Error(), tc.err; !strings.HasPrefix(got, want) {
				t.Fatalf("invalid error:\ngot= %q\nwant=%q", got, want)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "csr.csv")
	err := os.WriteFile(fname, []byte(litexCSV), 0644)
	if err != nil {
		t.Fatalf("could not create CSR file: %+v", err)
	}

	m, err := Load(fname)
	if err != nil {
		t.Fatalf("could not load CSR file: %+v", err)
	}
	if got, want := m.Len(), 3; got != want {
		t.Fatalf("invalid number of registers: got=%d, want=%d", got, want)
	}

	_, err = Load(filepath.Join(t.TempDir(), "not-there.csv"))
	if err == nil {
		t.Fatalf("expected an error loading a missing file")
	}
}

func TestRegisters(t *testing.T) {
	m, err := ParseCSV(strings.NewReader(litexCSV))
	if err != nil {
		t.Fatalf("could not parse CSR file: %+v", err)
	}

	var (
		mem  = NewMem()
		mon  = NewMonitor(mem)
		regs = NewRegisters(mon, m)
	)

	err = regs.Write("usb_address", 42)
	if err != nil {
		t.Fatalf("could not write register: %+v", err)
	}
	v, err := regs.Read("usb_address")
	if err != nil {
		t.Fatalf("could not read register: %+v", err)
	}
	if got, want := v, uint32(42); got != want {
		t.Fatalf("invalid value: got=%d, want=%d", got, want)
	}

	mem.Script(0xe0004808, 1, 2, 3)
	for _, want := range []uint32{1, 2, 3, 0} {
		got, err := regs.Read("usb_setup_data")
		if err != nil {
			t.Fatalf("could not read scripted register: %+v", err)
		}
		if got != want {
			t.Fatalf("invalid scripted value: got=%d, want=%d", got, want)
		}
	}

	_, err = regs.Read("usb_in_ctrl")
	if !errors.Is(err, ErrUnknown) {
		t.Fatalf("invalid error for unknown register: %+v", err)
	}
	err = regs.Write("usb_in_ctrl", 1)
	if !errors.Is(err, ErrUnknown) {
		t.Fatalf("invalid error for unknown register: %+v", err)
	}

	errBus := fmt.Errorf("wishbone timeout")
	mon.FailWrite(0xe0004800, errBus)
	err = regs.Write("usb_pullup_out", 1)
	if !errors.Is(err, errBus) {
		t.Fatalf("invalid transport error: %+v", err)
	}
	var cerr *Error
	if !errors.As(err, &cerr) {
		t.Fatalf("transport error is not a *csr.Error: %T", err)
	}
	if got, want := cerr.Error(), "csr: could not write register usb_pullup_out (0xe0004800): wishbone timeout"; got != want {
		t.Fatalf("invalid error message:\ngot= %q\nwant=%q", got, want)
	}

	mon.FailRead(0xe0004804, errBus)
	_, err = regs.Read("usb_address")
	if !errors.Is(err, errBus) {
		t.Fatalf("invalid transport error: %+v", err)
	}
	mon.FailRead(0xe0004804, nil)
	mon.FailWrite(0xe0004800, nil)

	if got, want := mon.Reads(), 6; got != want {
		t.Fatalf("invalid number of reads: got=%d, want=%d", got, want)
	}
	if got, want := mon.Writes(), 2; got != want {
		t.Fatalf("invalid number of writes: got=%d, want=%d", got, want)
	}
	want := []Access{
		{Addr: 0xe0004804, Value: 42},
		{Addr: 0xe0004800, Value: 1},
	}
	if diff := cmp.Diff(want, mon.WriteLog()); diff != "" {
		t.Fatalf("invalid write log (-want +got):\n%s", diff)
	}

	mon.Reset()
	if got, want := mon.Writes()+mon.Reads()+len(mon.WriteLog()), 0; got != want {
		t.Fatalf("monitor was not reset")
	}

	if regs.Map() != m || regs.Bus() != Bus(mon) {
		t.Fatalf("invalid registers bindings")
	}
}
