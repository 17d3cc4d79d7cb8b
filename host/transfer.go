// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package host

import (
	"context"
	"time"

	"github.com/go-lpc/usbbfm/sim"
	"github.com/go-lpc/usbbfm/usb"
)

// Transfer holds the state of a single transfer: its packet and request
// deadlines and its data toggle.
//
// A Transfer is created for each transfer and handed to every transaction
// of that transfer.
type Transfer struct {
	clk *sim.Clock
	msg Logger

	maxPacket  time.Duration
	maxRequest time.Duration

	packet  deadline
	request deadline

	toggle usb.PID
}

type deadline struct {
	t     time.Duration
	armed bool
}

// NewTransfer creates a new transfer context ticking with clk.
func NewTransfer(clk *sim.Clock, opts ...Option) *Transfer {
	cfg := newConfig()
	WithClock(clk)(&cfg)
	for _, opt := range opts {
		opt(&cfg)
	}
	return newTransfer(cfg)
}

func newTransfer(cfg config) *Transfer {
	if cfg.clk == nil {
		cfg.clk = sim.NewClock(0)
	}
	return &Transfer{
		clk:        cfg.clk,
		msg:        cfg.msg,
		maxPacket:  cfg.maxPacket,
		maxRequest: cfg.maxRequest,
		toggle:     usb.DATA1,
	}
}

func (tr *Transfer) Clock() *sim.Clock { return tr.clk }
func (tr *Transfer) Logger() Logger    { return tr.msg }

// Now returns the current simulated time.
func (tr *Transfer) Now() time.Duration { return tr.clk.Now() }

// Edge waits for the next rising edge of the transfer clock.
func (tr *Transfer) Edge(ctx context.Context) error { return tr.clk.Edge(ctx) }

// Edges waits for n rising edges of the transfer clock.
func (tr *Transfer) Edges(ctx context.Context, n int) error { return tr.clk.Edges(ctx, n) }

// ArmRequest sets the request deadline to now plus the maximum request time.
func (tr *Transfer) ArmRequest() {
	tr.request = deadline{t: tr.Now() + tr.maxRequest, armed: true}
}

// ArmPacket sets the packet deadline to now plus the maximum packet time.
func (tr *Transfer) ArmPacket() {
	tr.ArmPacketFor(tr.maxPacket)
}

// ArmPacketFor sets the packet deadline to now plus d.
func (tr *Transfer) ArmPacketFor(d time.Duration) {
	tr.packet = deadline{t: tr.Now() + d, armed: true}
}

func (tr *Transfer) RequestDeadline() time.Duration { return tr.request.t }
func (tr *Transfer) PacketDeadline() time.Duration  { return tr.packet.t }

// RequestExpired reports whether the request deadline is armed and elapsed.
func (tr *Transfer) RequestExpired() bool {
	return tr.request.armed && tr.Now() > tr.request.t
}

// PacketExpired reports whether the packet deadline is armed and elapsed.
func (tr *Transfer) PacketExpired() bool {
	return tr.packet.armed && tr.Now() > tr.packet.t
}

// CheckRequest returns a timeout error if the request deadline elapsed.
func (tr *Transfer) CheckRequest(op, msg string) error {
	if !tr.RequestExpired() {
		return nil
	}
	return &TimeoutError{Op: op, Msg: msg, Now: tr.Now(), Deadline: tr.request.t}
}

// CheckPacket returns a timeout error if the packet deadline elapsed.
func (tr *Transfer) CheckPacket(op, msg string) error {
	if !tr.PacketExpired() {
		return nil
	}
	return &TimeoutError{Op: op, Msg: msg, Now: tr.Now(), Deadline: tr.packet.t}
}

// Toggle returns the data PID of the next data packet.
func (tr *Transfer) Toggle() usb.PID { return tr.toggle }

// SetToggle sets the data PID of the next data packet.
func (tr *Transfer) SetToggle(pid usb.PID) { tr.toggle = pid }

// Flip flips the data toggle.
func (tr *Transfer) Flip() { tr.toggle = tr.toggle.Toggle() }
