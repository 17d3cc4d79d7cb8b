// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package host sequences USB control and bulk transfers on top of a
// register-level driver of a USB device core.
package host // import "github.com/go-lpc/usbbfm/host"

import (
	"context"
	"fmt"

	"github.com/go-lpc/usbbfm/sim"
	"github.com/go-lpc/usbbfm/usb"
)

// Driver drives the registers of a USB device core under test, and the
// simulated peer emitting packets on its wire.
type Driver interface {
	Reset(ctx context.Context) error
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	SetDeviceAddress(ctx context.Context, addr uint8) error

	// SetResponse sets the handshake policy of an endpoint.
	SetResponse(ctx context.Context, ep usb.EndpointAddress, resp usb.Response) error

	// Events returns the event-pending mask of the SETUP, IN or OUT
	// event source.
	Events(ctx context.Context, src usb.PID) (uint32, error)
	// AckEvents clears the mask bits of an event source.
	AckEvents(ctx context.Context, src usb.PID, mask uint32) error
	// ResetFIFO empties the buffer of an endpoint.
	ResetFIFO(ctx context.Context, ep usb.EndpointAddress) error

	TransactionSetup(ctx context.Context, tr *Transfer, addr uint8, data []byte) error
	TransactionDataOut(ctx context.Context, tr *Transfer, addr uint8, ep usb.EndpointAddress, data []byte, chunk int, expected usb.PID) error
	TransactionDataIn(ctx context.Context, tr *Transfer, addr uint8, ep usb.EndpointAddress, data []byte, chunk int) error
	TransactionStatusIn(ctx context.Context, tr *Transfer, addr uint8, ep usb.EndpointAddress) error
	TransactionStatusOut(ctx context.Context, tr *Transfer, addr uint8, ep usb.EndpointAddress) error
}

// Host runs transfers against a device core through a Driver.
type Host struct {
	drv  Driver
	cfg  config
	msg  Logger
	addr uint8
}

// New creates a new host driving drv.
func New(drv Driver, opts ...Option) (*Host, error) {
	cfg := newConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.clk == nil {
		cfg.clk = sim.NewClock(0)
	}
	if cfg.chunk <= 0 {
		return nil, fmt.Errorf("host: invalid chunk size %d", cfg.chunk)
	}
	if cfg.maxPacket <= 0 || cfg.maxRequest <= 0 {
		return nil, fmt.Errorf(
			"host: invalid deadlines (packet=%v, request=%v)",
			cfg.maxPacket, cfg.maxRequest,
		)
	}

	return &Host{
		drv: drv,
		cfg: cfg,
		msg: cfg.msg,
	}, nil
}

func (h *Host) Driver() Driver    { return h.drv }
func (h *Host) Clock() *sim.Clock { return h.cfg.clk }
func (h *Host) Logger() Logger    { return h.msg }
func (h *Host) ChunkSize() int    { return h.cfg.chunk }

// Address returns the current device address.
func (h *Host) Address() uint8 { return h.addr }

// NewTransfer creates a new transfer context.
func (h *Host) NewTransfer() *Transfer {
	return newTransfer(h.cfg)
}

// Reset resets the device core and enables its events.
func (h *Host) Reset(ctx context.Context) error {
	h.addr = 0
	err := h.drv.Reset(ctx)
	if err != nil {
		return fmt.Errorf("host: could not reset device: %w", err)
	}
	return nil
}

// Connect attaches the device to the bus.
func (h *Host) Connect(ctx context.Context) error {
	err := h.drv.Connect(ctx)
	if err != nil {
		return fmt.Errorf("host: could not connect device: %w", err)
	}
	return nil
}

// Disconnect detaches the device from the bus.
func (h *Host) Disconnect(ctx context.Context) error {
	h.addr = 0
	err := h.drv.Disconnect(ctx)
	if err != nil {
		return fmt.Errorf("host: could not disconnect device: %w", err)
	}
	return nil
}

// SetDeviceAddress programs the address the device core answers to.
func (h *Host) SetDeviceAddress(ctx context.Context, addr uint8) error {
	if addr > 0x7f {
		return Usagef("set-device-address", "invalid device address %d", addr)
	}
	err := h.drv.SetDeviceAddress(ctx, addr)
	if err != nil {
		return fmt.Errorf("host: could not set device address: %w", err)
	}
	h.addr = addr
	return nil
}

// SetResponse sets the handshake policy of an endpoint.
func (h *Host) SetResponse(ctx context.Context, ep usb.EndpointAddress, resp usb.Response) error {
	err := h.drv.SetResponse(ctx, ep, resp)
	if err != nil {
		return fmt.Errorf("host: could not set %v response of %v: %w", resp, ep, err)
	}
	return nil
}

func checkSetup(op string, setup, data []byte, in bool) error {
	if len(setup) != usb.SetupSize {
		return Usagef(op, "invalid SETUP packet size (got=%d, want=%d)", len(setup), usb.SetupSize)
	}
	switch dir := setup[0]&usb.RequestDirMask != 0; {
	case dir && !in:
		return Usagef(op, "setup data indicates an IN transfer, but an OUT transfer was requested")
	case !dir && in:
		return Usagef(op, "setup data indicates an OUT transfer, but an IN transfer was requested")
	}
	wlen := setup[6] != 0 || setup[7] != 0
	switch {
	case wlen && data == nil:
		return Usagef(op, "setup data indicates data, but no descriptor data was specified")
	case !wlen && data != nil:
		return Usagef(op, "setup data indicates no data, but descriptor data was specified")
	}
	return nil
}

// setupStage runs the SETUP stage of a control transfer and arms the
// request deadline.
func (h *Host) setupStage(ctx context.Context, tr *Transfer, addr uint8, setup []byte) error {
	_, err := h.drv.Events(ctx, usb.SETUP)
	if err != nil {
		return err
	}

	h.msg.Infof("setup stage")
	tr.ArmPacket()
	err = h.drv.TransactionSetup(ctx, tr, addr, setup)
	if err != nil {
		return err
	}
	tr.ArmRequest()

	return h.ackEvents(ctx, usb.SETUP)
}

func (h *Host) ackEvents(ctx context.Context, src usb.PID) error {
	ev, err := h.drv.Events(ctx, src)
	if err != nil {
		return err
	}
	return h.drv.AckEvents(ctx, src, ev)
}

// ControlTransferOut runs a host-to-device control transfer.
// data is the payload of the data stage, nil when there is no data stage.
func (h *Host) ControlTransferOut(ctx context.Context, addr uint8, setup, data []byte) error {
	const op = "control-transfer-out"
	err := checkSetup(op, setup, data, false)
	if err != nil {
		return err
	}

	tr := h.NewTransfer()

	err = h.setupStage(ctx, tr, addr, setup)
	if err != nil {
		return fmt.Errorf("host: setup stage failed: %w", err)
	}

	if data != nil {
		h.msg.Infof("data stage")
		err = h.drv.TransactionDataOut(ctx, tr, addr, usb.EP0Out, data, h.cfg.chunk, usb.ACK)
		if err != nil {
			return fmt.Errorf("host: data stage failed: %w", err)
		}
	}

	h.msg.Infof("status stage")
	err = h.statusIn(ctx, tr, addr)
	if err != nil {
		return fmt.Errorf("host: status stage failed: %w", err)
	}

	return tr.CheckRequest(op, "could not process the OUT request in time")
}

func (h *Host) statusIn(ctx context.Context, tr *Transfer, addr uint8) error {
	tr.ArmPacket()
	// empty IN packet.
	err := h.drv.SetResponse(ctx, usb.EP0In, usb.RespACK)
	if err != nil {
		return err
	}
	err = h.drv.TransactionStatusIn(ctx, tr, addr, usb.EP0In)
	if err != nil {
		return err
	}
	err = tr.Edges(ctx, 2)
	if err != nil {
		return err
	}
	err = h.ackEvents(ctx, usb.IN)
	if err != nil {
		return err
	}
	return h.drv.ResetFIFO(ctx, usb.EP0In)
}

// ControlTransferIn runs a device-to-host control transfer.
// data is the payload the device returns during the data stage, nil when
// there is no data stage.
func (h *Host) ControlTransferIn(ctx context.Context, addr uint8, setup, data []byte) error {
	const op = "control-transfer-in"
	err := checkSetup(op, setup, data, true)
	if err != nil {
		return err
	}

	tr := h.NewTransfer()

	err = h.setupStage(ctx, tr, addr, setup)
	if err != nil {
		return fmt.Errorf("host: setup stage failed: %w", err)
	}

	_, err = h.drv.Events(ctx, usb.IN)
	if err != nil {
		return fmt.Errorf("host: data stage failed: %w", err)
	}
	if data != nil {
		h.msg.Infof("data stage")
		err = h.dataIn(ctx, tr, addr, usb.EP0In, data)
		if err != nil {
			return fmt.Errorf("host: data stage failed: %w", err)
		}
	}

	err = h.statusOut(ctx, tr, addr)
	if err != nil {
		return fmt.Errorf("host: status stage failed: %w", err)
	}

	return tr.CheckRequest(op, "could not process the IN request in time")
}

func (h *Host) dataIn(ctx context.Context, tr *Transfer, addr uint8, ep usb.EndpointAddress, data []byte) error {
	err := h.drv.TransactionDataIn(ctx, tr, addr, ep, data, h.cfg.chunk)
	if err != nil {
		return err
	}
	// let the event percolate through the event manager.
	err = tr.Edges(ctx, 2)
	if err != nil {
		return err
	}
	return h.ackEvents(ctx, usb.IN)
}

func (h *Host) statusOut(ctx context.Context, tr *Transfer, addr uint8) error {
	tr.ArmPacket()
	// empty OUT packet.
	err := h.drv.SetResponse(ctx, usb.EP0Out, usb.RespACK)
	if err != nil {
		return err
	}
	h.msg.Infof("status stage")
	_, err = h.drv.Events(ctx, usb.OUT)
	if err != nil {
		return err
	}
	err = h.drv.TransactionStatusOut(ctx, tr, addr, usb.EP0Out)
	if err != nil {
		return err
	}
	err = tr.Edge(ctx)
	if err != nil {
		return err
	}
	ev, err := h.drv.Events(ctx, usb.OUT)
	if err != nil {
		return err
	}
	err = h.drv.ResetFIFO(ctx, usb.EP0Out)
	if err != nil {
		return err
	}
	return h.drv.AckEvents(ctx, usb.OUT, ev)
}

// BulkOut sends data to a bulk OUT endpoint, starting with the data toggle
// pid. It returns the data toggle of the next transfer on that endpoint.
func (h *Host) BulkOut(ctx context.Context, addr uint8, ep usb.EndpointAddress, data []byte, pid usb.PID) (usb.PID, error) {
	const op = "bulk-out"
	if ep.IsIn() {
		return pid, Usagef(op, "endpoint %v is not an OUT endpoint", ep)
	}
	if !pid.IsData() {
		return pid, Usagef(op, "invalid data toggle %v", pid)
	}

	tr := h.NewTransfer()
	tr.SetToggle(pid)
	tr.ArmRequest()
	err := h.drv.TransactionDataOut(ctx, tr, addr, ep, data, h.cfg.chunk, usb.ACK)
	if err != nil {
		return tr.Toggle(), fmt.Errorf("host: bulk OUT transfer failed: %w", err)
	}
	return tr.Toggle(), tr.CheckRequest(op, "could not process the bulk OUT transfer in time")
}

// BulkIn has the device send data from a bulk IN endpoint, starting with
// the data toggle pid. It returns the data toggle of the next transfer on
// that endpoint.
func (h *Host) BulkIn(ctx context.Context, addr uint8, ep usb.EndpointAddress, data []byte, pid usb.PID) (usb.PID, error) {
	const op = "bulk-in"
	if !ep.IsIn() {
		return pid, Usagef(op, "endpoint %v is not an IN endpoint", ep)
	}
	if !pid.IsData() {
		return pid, Usagef(op, "invalid data toggle %v", pid)
	}

	tr := h.NewTransfer()
	tr.SetToggle(pid)
	tr.ArmRequest()
	err := h.dataIn(ctx, tr, addr, ep, data)
	if err != nil {
		return tr.Toggle(), fmt.Errorf("host: bulk IN transfer failed: %w", err)
	}
	return tr.Toggle(), tr.CheckRequest(op, "could not process the bulk IN transfer in time")
}
