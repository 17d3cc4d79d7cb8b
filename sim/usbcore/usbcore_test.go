// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package usbcore

import (
	"bytes"
	"context"
	"testing"

	"github.com/go-lpc/usbbfm/csr"
	"github.com/go-lpc/usbbfm/sim"
	"github.com/go-lpc/usbbfm/usb"
	"github.com/google/go-cmp/cmp"
)

type bench struct {
	t    *testing.T
	dev  *Device
	regs *csr.Registers
}

func newBench(t *testing.T, clk *sim.Clock, opts ...Option) *bench {
	t.Helper()
	dev := New(clk, opts...)
	return &bench{t: t, dev: dev, regs: csr.NewRegisters(dev, dev.Map())}
}

func (b *bench) r(name string) uint32 {
	b.t.Helper()
	v, err := b.regs.Read(name)
	if err != nil {
		b.t.Fatalf("could not read %q: %+v", name, err)
	}
	return v
}

func (b *bench) w(name string, v uint32) {
	b.t.Helper()
	err := b.regs.Write(name, v)
	if err != nil {
		b.t.Fatalf("could not write %q: %+v", name, err)
	}
}

func (b *bench) send(pkt []byte) {
	b.t.Helper()
	for _, v := range pkt {
		b.w("phy_tx_data", uint32(v))
	}
	b.w("phy_tx_ctrl", 1)
}

func (b *bench) recv() []byte {
	b.t.Helper()
	var out []byte
	for b.r("phy_rx_status")&StatusHave != 0 {
		out = append(out, byte(b.r("phy_rx_data")))
	}
	return out
}

func (b *bench) drain(status, data string) []byte {
	b.t.Helper()
	var out []byte
	for b.r(status)&StatusHave != 0 {
		out = append(out, byte(b.r(data)))
	}
	return out
}

func (b *bench) setup(addr uint8, data []byte) []byte {
	b.t.Helper()
	b.send(usb.TokenPacket(usb.SETUP, addr, 0))
	b.send(usb.DataPacket(usb.DATA0, data))
	return b.recv()
}

var (
	ack   = usb.HandshakePacket(usb.ACK)
	nak   = usb.HandshakePacket(usb.NAK)
	stall = usb.HandshakePacket(usb.STALL)
)

func withCRC(p []byte) []byte {
	crc := usb.CRC16(p)
	return append(append([]byte(nil), p...), crc[:]...)
}

func TestMap(t *testing.T) {
	dev := New(nil, WithBase(0x1000))
	m := dev.Map()

	if got, want := m.Len(), int(nRegs); got != want {
		t.Fatalf("invalid number of registers: got=%d, want=%d", got, want)
	}

	for _, tc := range []struct {
		name string
		addr uint32
	}{
		{"usb_pullup_out", 0x1000},
		{"usb_address", 0x1004},
		{"usb_setup_data", 0x1008},
		{"usb_out_ev_enable", 0x104c},
		{"phy_tx_data", 0x1800},
		{"phy_ctrl", 0x1810},
	} {
		addr, err := m.Addr(tc.name)
		if err != nil {
			t.Fatalf("could not find %q: %+v", tc.name, err)
		}
		if addr != tc.addr {
			t.Fatalf("invalid address for %q: got=0x%x, want=0x%x", tc.name, addr, tc.addr)
		}
	}

	_, err := dev.Read(0x2000)
	if err == nil {
		t.Fatalf("expected an error reading an unmapped address")
	}
	err = dev.Write(0x1001, 1)
	if err == nil {
		t.Fatalf("expected an error writing an unmapped address")
	}
	addr, _ := m.Addr("usb_out_status")
	err = dev.Write(addr, 1)
	if err == nil {
		t.Fatalf("expected an error writing a read-only register")
	}

	if got, want := reg(99).String(), "reg(99)"; got != want {
		t.Fatalf("invalid register name: got=%q, want=%q", got, want)
	}
}

func TestSetup(t *testing.T) {
	b := newBench(t, nil)
	data := []byte{0x00, 0x09, 0x01, 0, 0, 0, 0, 0}

	if got := b.setup(0, data); len(got) != 0 {
		t.Fatalf("disconnected device answered: % x", got)
	}

	b.w("usb_pullup_out", 1)
	if !b.dev.Connected() {
		t.Fatalf("device should be connected")
	}

	if got, want := b.setup(0, data), ack; !bytes.Equal(got, want) {
		t.Fatalf("invalid handshake: got=% x, want=% x", got, want)
	}
	if got, want := b.r("usb_setup_status"), uint32(StatusHave|StatusPend); got != want {
		t.Fatalf("invalid status: got=0x%x, want=0x%x", got, want)
	}
	if got, want := b.r("usb_setup_ev_status"), uint32(1); got != want {
		t.Fatalf("invalid event status: got=0x%x, want=0x%x", got, want)
	}

	got := b.drain("usb_setup_status", "usb_setup_data")
	if diff := cmp.Diff(withCRC(data), got); diff != "" {
		t.Fatalf("invalid SETUP data (-want +got):\n%s", diff)
	}

	if got, want := b.r("usb_setup_ev_pending"), uint32(1); got != want {
		t.Fatalf("invalid pending: got=0x%x, want=0x%x", got, want)
	}
	b.w("usb_setup_ev_pending", 1)
	if got, want := b.r("usb_setup_ev_pending"), uint32(0); got != want {
		t.Fatalf("invalid pending: got=0x%x, want=0x%x", got, want)
	}

	// handled strobe drops unread bytes.
	b.setup(0, data)
	b.w("usb_setup_ctrl", SetupHandled)
	if got, want := b.r("usb_setup_status")&StatusHave, uint32(0); got != want {
		t.Fatalf("SETUP buffer was not emptied")
	}

	// other device addresses are ignored.
	if got := b.setup(3, data); len(got) != 0 {
		t.Fatalf("device answered to another address: % x", got)
	}
	b.w("usb_address", 3)
	if got, want := b.dev.Address(), uint8(3); got != want {
		t.Fatalf("invalid address: got=%d, want=%d", got, want)
	}
	if got, want := b.setup(3, data), ack; !bytes.Equal(got, want) {
		t.Fatalf("invalid handshake: got=% x, want=% x", got, want)
	}

	// corrupted packets on the wire are ignored.
	b.send(usb.TokenPacket(usb.SETUP, 3, 0))
	pkt := usb.DataPacket(usb.DATA0, data)
	pkt[2] ^= 0xff
	b.send(pkt)
	if got := b.recv(); len(got) != 0 {
		t.Fatalf("device answered to a corrupted packet: % x", got)
	}

	if diff := cmp.Diff([]usb.PID{usb.DATA0, usb.DATA0, usb.DATA0}, b.dev.DataPIDs()); diff != "" {
		t.Fatalf("invalid data PIDs (-want +got):\n%s", diff)
	}
}

func TestOut(t *testing.T) {
	b := newBench(t, nil)
	b.w("usb_pullup_out", 1)

	out := func(ep uint8, pid usb.PID, data []byte) []byte {
		b.send(usb.TokenPacket(usb.OUT, 0, ep))
		b.send(usb.DataPacket(pid, data))
		return b.recv()
	}

	data := []byte{1, 2, 3, 4}
	if got, want := out(0, usb.DATA1, data), nak; !bytes.Equal(got, want) {
		t.Fatalf("disabled endpoint: got=% x, want=% x", got, want)
	}

	b.w("usb_out_ctrl", CtrlEnable|2)
	if got, want := b.r("usb_out_ctrl"), uint32(CtrlEnable|2); got != want {
		t.Fatalf("invalid control: got=0x%x, want=0x%x", got, want)
	}
	if got, want := out(0, usb.DATA1, data), nak; !bytes.Equal(got, want) {
		t.Fatalf("other endpoint: got=% x, want=% x", got, want)
	}
	if got, want := out(2, usb.DATA1, data), ack; !bytes.Equal(got, want) {
		t.Fatalf("enabled endpoint: got=% x, want=% x", got, want)
	}
	if got, want := b.r("usb_out_status"), uint32(StatusHave|StatusPend|2); got != want {
		t.Fatalf("invalid status: got=0x%x, want=0x%x", got, want)
	}

	// the endpoint is disabled until re-armed.
	if got, want := out(2, usb.DATA0, data), nak; !bytes.Equal(got, want) {
		t.Fatalf("re-used endpoint: got=% x, want=% x", got, want)
	}

	got := b.drain("usb_out_status", "usb_out_data")
	if diff := cmp.Diff(withCRC(data), got); diff != "" {
		t.Fatalf("invalid OUT data (-want +got):\n%s", diff)
	}
	if got, want := b.r("usb_out_ev_pending"), uint32(1); got != want {
		t.Fatalf("invalid pending: got=0x%x, want=0x%x", got, want)
	}
	b.w("usb_out_ev_pending", 0xff)

	b.w("usb_out_ctrl", CtrlStall|2)
	if got, want := out(2, usb.DATA0, data), stall; !bytes.Equal(got, want) {
		t.Fatalf("stalled endpoint: got=% x, want=% x", got, want)
	}

	b.w("usb_out_ctrl", CtrlEnable|2)
	if got, want := out(2, usb.DATA0, nil), ack; !bytes.Equal(got, want) {
		t.Fatalf("zero-length packet: got=% x, want=% x", got, want)
	}
	b.w("usb_out_ctrl", CtrlReset)
	if got, want := b.r("usb_out_status")&StatusHave, uint32(0); got != want {
		t.Fatalf("OUT buffer was not emptied")
	}

	if diff := cmp.Diff([]usb.PID{usb.DATA1, usb.DATA0}, b.dev.DataPIDs()); diff != "" {
		t.Fatalf("invalid data PIDs (-want +got):\n%s", diff)
	}
}

func TestIn(t *testing.T) {
	b := newBench(t, nil)
	b.w("usb_pullup_out", 1)

	in := func(ep uint8) []byte {
		b.send(usb.TokenPacket(usb.IN, 0, ep))
		return b.recv()
	}

	if got, want := in(0), nak; !bytes.Equal(got, want) {
		t.Fatalf("unarmed endpoint: got=% x, want=% x", got, want)
	}

	// SETUP resets the control pipe toggle to DATA1.
	b.setup(0, []byte{0x80, 0x06, 0, 1, 0, 0, 0x40, 0})

	data := []byte{0x12, 0x01, 0x00, 0x02}
	for _, v := range data {
		b.w("usb_in_data", uint32(v))
	}
	b.w("usb_in_ctrl", 0)
	if got, want := b.r("usb_in_status"), uint32(StatusHave); got != want {
		t.Fatalf("invalid status: got=0x%x, want=0x%x", got, want)
	}

	if got, want := in(1), nak; !bytes.Equal(got, want) {
		t.Fatalf("other endpoint: got=% x, want=% x", got, want)
	}
	want := usb.DataPacket(usb.DATA1, data)
	if got := in(0); !bytes.Equal(got, want) {
		t.Fatalf("armed endpoint: got=% x, want=% x", got, want)
	}
	// no ACK: the packet is sent again.
	if got := in(0); !bytes.Equal(got, want) {
		t.Fatalf("re-sent packet: got=% x, want=% x", got, want)
	}

	b.send(ack)
	if got, want := b.r("usb_in_status"), uint32(StatusPend); got != want {
		t.Fatalf("invalid status: got=0x%x, want=0x%x", got, want)
	}
	if got, want := b.r("usb_in_ev_pending"), uint32(1); got != want {
		t.Fatalf("invalid pending: got=0x%x, want=0x%x", got, want)
	}
	b.w("usb_in_ev_pending", 1)

	if got, want := in(0), nak; !bytes.Equal(got, want) {
		t.Fatalf("drained endpoint: got=% x, want=% x", got, want)
	}

	// zero-length packet, with the next toggle.
	b.w("usb_in_ctrl", 0)
	if got, want := in(0), usb.DataPacket(usb.DATA0, nil); !bytes.Equal(got, want) {
		t.Fatalf("zero-length packet: got=% x, want=% x", got, want)
	}
	b.send(ack)

	b.w("usb_in_ctrl", CtrlStall|1)
	if got, want := b.r("usb_in_ctrl"), uint32(CtrlStall|1); got != want {
		t.Fatalf("invalid control: got=0x%x, want=0x%x", got, want)
	}
	if got, want := in(1), stall; !bytes.Equal(got, want) {
		t.Fatalf("stalled endpoint: got=% x, want=% x", got, want)
	}

	b.w("usb_in_data", 0x42)
	b.w("usb_in_ctrl", CtrlReset)
	if got, want := b.r("usb_in_status")&StatusHave, uint32(0); got != want {
		t.Fatalf("IN buffer was not reset")
	}
	if got, want := in(1), nak; !bytes.Equal(got, want) {
		t.Fatalf("reset endpoint: got=% x, want=% x", got, want)
	}
}

func TestFaults(t *testing.T) {
	data := []byte{0x00, 0x05, 0x12, 0, 0, 0, 0, 0}
	for _, tc := range []struct {
		fault   Fault
		hshake  []byte
		fifo    []byte
		pending uint32
	}{
		{FaultNone, ack, withCRC(data), 1},
		{FaultCorruptCRC, ack, func() []byte {
			p := withCRC(data)
			p[len(p)-1] ^= 1
			return p
		}(), 1},
		{FaultShortPacket, ack, data[:1], 1},
		{FaultDoubleEvent, ack, withCRC(data), 3},
		{FaultDropPacket, nil, nil, 0},
	} {
		t.Run(tc.fault.String(), func(t *testing.T) {
			b := newBench(t, nil)
			b.w("usb_pullup_out", 1)
			b.dev.Inject(tc.fault)

			if got, want := b.setup(0, data), tc.hshake; !bytes.Equal(got, want) {
				t.Fatalf("invalid handshake: got=% x, want=% x", got, want)
			}
			got := b.drain("usb_setup_status", "usb_setup_data")
			if !bytes.Equal(got, tc.fifo) {
				t.Fatalf("invalid SETUP data: got=% x, want=% x", got, tc.fifo)
			}
			if got, want := b.r("usb_setup_ev_pending"), tc.pending; got != want {
				t.Fatalf("invalid pending: got=0x%x, want=0x%x", got, want)
			}

			// faults are one-shot.
			b.w("usb_setup_ev_pending", 0xff)
			if got, want := b.setup(0, data), ack; !bytes.Equal(got, want) {
				t.Fatalf("invalid handshake: got=% x, want=% x", got, want)
			}
			got = b.drain("usb_setup_status", "usb_setup_data")
			if !bytes.Equal(got, withCRC(data)) {
				t.Fatalf("fault applied twice: got=% x", got)
			}
		})
	}

	if got, want := Fault(42).String(), "Fault(42)"; got != want {
		t.Fatalf("invalid fault name: got=%q, want=%q", got, want)
	}
}

func TestLatency(t *testing.T) {
	var (
		ctx = context.Background()
		clk = sim.NewClock(0)
		b   = newBench(t, clk, WithLatency(3))
	)
	b.w("usb_pullup_out", 1)

	b.send(usb.TokenPacket(usb.IN, 0, 0))
	for i := 0; i < 3; i++ {
		if got := b.recv(); len(got) != 0 {
			t.Fatalf("early response at edge %d: % x", i, got)
		}
		if err := clk.Edge(ctx); err != nil {
			t.Fatalf("could not tick: %+v", err)
		}
	}
	if got, want := b.recv(), nak; !bytes.Equal(got, want) {
		t.Fatalf("invalid delayed response: got=% x, want=% x", got, want)
	}

	b.dev.SetLatency(0)
	b.send(usb.TokenPacket(usb.IN, 0, 0))
	if got, want := b.recv(), nak; !bytes.Equal(got, want) {
		t.Fatalf("invalid response: got=% x, want=% x", got, want)
	}
}

func TestBusReset(t *testing.T) {
	b := newBench(t, nil)
	b.w("usb_pullup_out", 1)
	b.w("usb_address", 0x12)
	b.w("usb_in_data", 1)
	b.w("usb_in_ctrl", 0)
	b.w("usb_out_ctrl", CtrlEnable)
	b.w("usb_setup_ev_enable", 0xff)

	b.w("phy_ctrl", 1)

	if got, want := b.dev.Address(), uint8(0); got != want {
		t.Fatalf("invalid address: got=%d, want=%d", got, want)
	}
	if got, want := b.r("usb_in_status"), uint32(0); got != want {
		t.Fatalf("invalid IN status: got=0x%x, want=0x%x", got, want)
	}
	if got, want := b.r("usb_out_ctrl")&CtrlEnable, uint32(0); got != want {
		t.Fatalf("OUT endpoint still enabled")
	}
	if got, want := b.r("usb_setup_ev_enable"), uint32(0xff); got != want {
		t.Fatalf("invalid event enable: got=0x%x, want=0x%x", got, want)
	}
	if got, want := b.r("usb_pullup_out"), uint32(1); got != want {
		t.Fatalf("invalid pull-up: got=%d, want=%d", got, want)
	}
}
