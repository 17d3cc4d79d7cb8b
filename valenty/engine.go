// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package valenty

import (
	"context"
	"errors"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/go-lpc/usbbfm/host"
	"github.com/go-lpc/usbbfm/usb"
)

// fork runs stimulus in its own goroutine while check runs on the calling
// one, both in lock-step with the transfer clock, and waits for both to
// complete. A nil check only waits for the stimulus.
//
// Transport errors of the stimulus take precedence, then the check error.
func fork(ctx context.Context, tr *host.Transfer, stimulus, check func(ctx context.Context) error) error {
	clk := tr.Clock()

	var detach func()
	if check != nil {
		detach = clk.Attach()
	}
	stop := clk.Attach()

	var grp errgroup.Group
	grp.Go(func() error {
		defer stop()
		return stimulus(ctx)
	})

	var cerr error
	if check != nil {
		cerr = check(ctx)
		detach()
	}

	serr := grp.Wait()
	if errors.Is(serr, host.ErrTransport) {
		return serr
	}
	if cerr != nil {
		return cerr
	}
	return serr
}

// chunks splits IN data into packets of at most size bytes.
// Empty data yields a single zero-length packet.
func chunks(data []byte, size int) [][]byte {
	if len(data) == 0 {
		return [][]byte{{}}
	}
	return lo.Chunk(data, size)
}

// TransactionSetup sends a SETUP packet to device addr and checks the core
// received it.
func (drv *Driver) TransactionSetup(ctx context.Context, tr *host.Transfer, addr uint8, data []byte) error {
	return fork(ctx, tr,
		func(ctx context.Context) error {
			return drv.peer.Setup(ctx, tr, addr, 0, data)
		},
		func(ctx context.Context) error {
			return drv.expectSetup(ctx, tr, data)
		},
	)
}

func (drv *Driver) expectSetup(ctx context.Context, tr *host.Transfer, want []byte) error {
	const op = "transaction-setup"
	raw, err := drv.collect(ctx, tr, regSetupStatus, regSetupData, drv.budget.Setup)
	if err != nil {
		return err
	}
	drv.msg.Debugf("EP0OUT got: % x (expected: % x)", raw, want)
	err = splitCRC16(op, "SETUP", raw, want)
	if err != nil {
		return err
	}
	// acknowledge the SETUP packet was handled.
	return drv.write(regSetupCtrl, setupHandled)
}

// TransactionDataOut sends data to endpoint ep of device addr, in packets
// of at most chunk bytes, starting with the data toggle of tr.
// Each packet is expected to be answered with the expected handshake. Its
// content is only checked when that handshake is ACK.
func (drv *Driver) TransactionDataOut(ctx context.Context, tr *host.Transfer, addr uint8, ep usb.EndpointAddress, data []byte, chunk int, expected usb.PID) error {
	const op = "transaction-data-out"
	if chunk <= 0 {
		return host.Usagef(op, "invalid chunk size %d", chunk)
	}
	resp := usb.ResponseOf(expected)
	if resp == usb.RespNone {
		return host.Usagef(op, "invalid expected handshake %v", expected)
	}

	for _, pkt := range lo.Chunk(data, chunk) {
		drv.msg.Debugf("sending %d bytes to %v (%v)", len(pkt), ep, tr.Toggle())
		tr.ArmPacket()
		err := drv.SetResponse(ctx, ep, resp)
		if err != nil {
			return err
		}

		pid := tr.Toggle()
		err = fork(ctx, tr,
			func(ctx context.Context) error {
				return drv.peer.Send(ctx, tr, addr, ep.Number(), pid, pkt, expected)
			},
			func(ctx context.Context) error {
				return drv.expectData(ctx, tr, ep, pkt, expected)
			},
		)
		if err != nil {
			return err
		}
		tr.Flip()
	}
	return nil
}

func (drv *Driver) expectData(ctx context.Context, tr *host.Transfer, ep usb.EndpointAddress, want []byte, expected usb.PID) error {
	const op = "transaction-data-out"
	raw, err := drv.collect(ctx, tr, regOutStatus, regOutData, drv.budget.Out)
	if err != nil {
		return err
	}

	if expected != usb.ACK {
		if len(raw) > 0 {
			drv.msg.Warnf("discarding %d bytes from %v", len(raw), ep)
			return drv.write(regOutCtrl, ctrlReset)
		}
		return nil
	}

	drv.msg.Debugf("%v got: % x (expected: % x)", ep, raw, want)
	err = splitCRC16(op, "DATA", raw, want)
	if err != nil {
		return err
	}

	pending, err := drv.read(regOutEvPending)
	if err != nil {
		return err
	}
	if pending != 1 {
		return host.Validationf(op, pending, uint32(1), "event not generated")
	}
	return drv.write(regOutEvPending, pending)
}

// TransactionDataIn has endpoint ep of device addr send data, in packets of
// at most chunk bytes, and checks the peer receives them with the data
// toggle of tr.
// Empty data is sent as a single zero-length packet.
func (drv *Driver) TransactionDataIn(ctx context.Context, tr *host.Transfer, addr uint8, ep usb.EndpointAddress, data []byte, chunk int) error {
	const op = "transaction-data-in"
	if chunk <= 0 {
		return host.Usagef(op, "invalid chunk size %d", chunk)
	}

	for i, pkt := range chunks(data, chunk) {
		err := tr.CheckRequest(op, "failed to get all data in time")
		if err != nil {
			return err
		}

		drv.msg.Debugf("expecting chunk %d: % x", i, pkt)
		tr.ArmPacketFor(drv.inPacket)

		err = drv.SendData(ctx, ep, pkt)
		if err != nil {
			return err
		}

		pid := tr.Toggle()
		err = fork(ctx, tr,
			func(ctx context.Context) error {
				return drv.peer.Recv(ctx, tr, addr, ep.Number(), pid, pkt)
			},
			nil,
		)
		if err != nil {
			return err
		}
		tr.Flip()
	}
	return nil
}

// TransactionStatusIn runs the zero-length IN handshake of a status stage.
func (drv *Driver) TransactionStatusIn(ctx context.Context, tr *host.Transfer, addr uint8, ep usb.EndpointAddress) error {
	return fork(ctx, tr,
		func(ctx context.Context) error {
			return drv.peer.Recv(ctx, tr, addr, ep.Number(), usb.DATA1, nil)
		},
		nil,
	)
}

// TransactionStatusOut runs the zero-length OUT handshake of a status stage.
func (drv *Driver) TransactionStatusOut(ctx context.Context, tr *host.Transfer, addr uint8, ep usb.EndpointAddress) error {
	return fork(ctx, tr,
		func(ctx context.Context) error {
			return drv.peer.Send(ctx, tr, addr, ep.Number(), usb.DATA1, nil, usb.ACK)
		},
		nil,
	)
}
