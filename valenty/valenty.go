// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package valenty drives a ValentyUSB-style register-mapped USB device core
// and the simulated host sending packets on its wire.
package valenty // import "github.com/go-lpc/usbbfm/valenty"

import (
	"context"
	"time"

	"github.com/go-lpc/usbbfm/csr"
	"github.com/go-lpc/usbbfm/host"
	"github.com/go-lpc/usbbfm/usb"
)

// CSR names of the device core.
const (
	regPullup  = "usb_pullup_out"
	regAddress = "usb_address"

	regSetupData      = "usb_setup_data"
	regSetupCtrl      = "usb_setup_ctrl"
	regSetupStatus    = "usb_setup_status"
	regSetupEvPending = "usb_setup_ev_pending"
	regSetupEvEnable  = "usb_setup_ev_enable"

	regInData      = "usb_in_data"
	regInCtrl      = "usb_in_ctrl"
	regInStatus    = "usb_in_status"
	regInEvPending = "usb_in_ev_pending"
	regInEvEnable  = "usb_in_ev_enable"

	regOutData      = "usb_out_data"
	regOutCtrl      = "usb_out_ctrl"
	regOutStatus    = "usb_out_status"
	regOutEvPending = "usb_out_ev_pending"
	regOutEvEnable  = "usb_out_ev_enable"
)

// Register bits.
const (
	statusHave = 1 << 4
	statusPend = 1 << 5
	statusEP   = 0x0f

	ctrlEnable = 1 << 4
	ctrlReset  = 1 << 5
	ctrlStall  = 1 << 6

	setupHandled = 2
)

// Budgets holds the polling budgets of the transaction engine, in clock
// edges.
type Budgets struct {
	Prime    int // wait for the first byte of a packet
	Setup    int // drain a SETUP packet
	Out      int // drain an OUT packet
	DrainOut int // flush the OUT buffer
}

// DefaultBudgets are the budgets used by a new Driver.
var DefaultBudgets = Budgets{
	Prime:    128,
	Setup:    48,
	Out:      256,
	DrainOut: 70,
}

// DefaultInPacketTime bounds each chunk of an IN data stage.
const DefaultInPacketTime = 500 * time.Microsecond

// Driver drives the registers of the device core.
type Driver struct {
	regs *csr.Registers
	peer *Peer
	msg  host.Logger

	budget   Budgets
	inPacket time.Duration
}

// Option configures a Driver.
type Option func(*Driver)

// WithLogger sets the message stream of the driver.
func WithLogger(msg host.Logger) Option {
	return func(drv *Driver) {
		if msg == nil {
			msg = host.Discard
		}
		drv.msg = msg
	}
}

// WithPeer sets the simulated host emitting packets on the wire.
func WithPeer(peer *Peer) Option {
	return func(drv *Driver) {
		drv.peer = peer
	}
}

// WithBudgets sets the polling budgets of the transaction engine.
func WithBudgets(b Budgets) Option {
	return func(drv *Driver) {
		drv.budget = b
	}
}

// WithInPacketTime sets the packet deadline of each chunk of an IN data
// stage.
func WithInPacketTime(d time.Duration) Option {
	return func(drv *Driver) {
		drv.inPacket = d
	}
}

// New creates a new driver of the device core behind regs.
// Unless configured otherwise, the wire is driven through the PHY
// registers of the same register map.
func New(regs *csr.Registers, opts ...Option) *Driver {
	drv := &Driver{
		regs:     regs,
		msg:      host.Discard,
		budget:   DefaultBudgets,
		inPacket: DefaultInPacketTime,
	}
	for _, opt := range opts {
		opt(drv)
	}
	if drv.peer == nil {
		drv.peer = NewPeer(regs, drv.msg)
	}
	return drv
}

// Peer returns the simulated host of the driver.
func (drv *Driver) Peer() *Peer { return drv.peer }

func (drv *Driver) read(name string) (uint32, error) {
	v, err := drv.regs.Read(name)
	if err != nil {
		return 0, &host.TransportError{Op: "read " + name, Err: err}
	}
	return v, nil
}

func (drv *Driver) write(name string, v uint32) error {
	err := drv.regs.Write(name, v)
	if err != nil {
		return &host.TransportError{Op: "write " + name, Err: err}
	}
	return nil
}

// seq runs a sequence of register accesses, stopping at the first failure.
type seq struct {
	drv *Driver
	err error
}

func (s *seq) write(name string, v uint32) {
	if s.err != nil {
		return
	}
	s.err = s.drv.write(name, v)
}

// Reset signals a bus reset, enables all events, clears the pending ones
// and sets the device address to zero.
func (drv *Driver) Reset(ctx context.Context) error {
	err := drv.peer.BusReset(ctx)
	if err != nil {
		return err
	}

	s := seq{drv: drv}
	s.write(regSetupEvEnable, 0xff)
	s.write(regInEvEnable, 0xff)
	s.write(regOutEvEnable, 0xff)

	s.write(regSetupEvPending, 0xff)
	s.write(regInEvPending, 0xff)
	s.write(regOutEvPending, 0xff)
	s.write(regAddress, 0)
	return s.err
}

// Connect enables the pull-up of the device.
func (drv *Driver) Connect(ctx context.Context) error {
	return drv.write(regPullup, 1)
}

// Disconnect disables the pull-up of the device.
func (drv *Driver) Disconnect(ctx context.Context) error {
	return drv.write(regPullup, 0)
}

// SetDeviceAddress sets the address the device core answers to.
func (drv *Driver) SetDeviceAddress(ctx context.Context, addr uint8) error {
	return drv.write(regAddress, uint32(addr))
}

// SetResponse sets the handshake policy of an endpoint.
//
// ACK arms an IN endpoint or enables an OUT endpoint, NAK resets an IN
// endpoint or disables an OUT endpoint, STALL halts the endpoint.
func (drv *Driver) SetResponse(ctx context.Context, ep usb.EndpointAddress, resp usb.Response) error {
	num := uint32(ep.Number())
	switch resp {
	case usb.RespACK:
		if ep.IsIn() {
			return drv.write(regInCtrl, num)
		}
		return drv.write(regOutCtrl, ctrlEnable|num)
	case usb.RespNAK:
		if ep.IsIn() {
			return drv.write(regInCtrl, ctrlReset)
		}
		return drv.write(regOutCtrl, num)
	case usb.RespStall:
		if ep.IsIn() {
			return drv.write(regInCtrl, ctrlStall|num)
		}
		return drv.write(regOutCtrl, ctrlStall|num)
	default:
		return host.Usagef("set-response", "unsupported response %v for %v", resp, ep)
	}
}

func evPending(src usb.PID) (string, error) {
	switch src {
	case usb.SETUP:
		return regSetupEvPending, nil
	case usb.IN:
		return regInEvPending, nil
	case usb.OUT:
		return regOutEvPending, nil
	default:
		return "", host.Usagef("events", "invalid event source %v", src)
	}
}

// Events returns the event-pending mask of an event source.
func (drv *Driver) Events(ctx context.Context, src usb.PID) (uint32, error) {
	name, err := evPending(src)
	if err != nil {
		return 0, err
	}
	return drv.read(name)
}

// AckEvents clears the mask bits of an event source.
func (drv *Driver) AckEvents(ctx context.Context, src usb.PID, mask uint32) error {
	name, err := evPending(src)
	if err != nil {
		return err
	}
	return drv.write(name, mask)
}

// ResetFIFO empties the buffer of an endpoint.
func (drv *Driver) ResetFIFO(ctx context.Context, ep usb.EndpointAddress) error {
	if ep.IsIn() {
		return drv.write(regInCtrl, ctrlReset)
	}
	return drv.write(regOutCtrl, ctrlReset)
}

var _ host.Driver = (*Driver)(nil)
