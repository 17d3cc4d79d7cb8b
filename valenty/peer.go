// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package valenty

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/go-lpc/usbbfm/csr"
	"github.com/go-lpc/usbbfm/host"
	"github.com/go-lpc/usbbfm/usb"
)

// CSR names of the device-facing side of the core.
const (
	regPhyTxData   = "phy_tx_data"
	regPhyTxCtrl   = "phy_tx_ctrl"
	regPhyRxStatus = "phy_rx_status"
	regPhyRxData   = "phy_rx_data"
	regPhyCtrl     = "phy_ctrl"
)

const (
	// maxPacketSize is the largest packet the peer reads back: PID,
	// full-speed isochronous payload and CRC16.
	maxPacketSize = 1 + 1023 + 2

	// DefaultMaxWait bounds the number of edges the peer waits for a
	// response when no packet deadline is armed.
	DefaultMaxWait = 100000
)

// Peer is the simulated remote USB host. It emits packets on the wire of
// the device core through its PHY registers and checks the responses.
type Peer struct {
	regs *csr.Registers
	msg  host.Logger

	maxWait int

	mu   sync.Mutex
	sent []usb.PID
}

// NewPeer creates a new peer driving the PHY registers of regs.
func NewPeer(regs *csr.Registers, msg host.Logger) *Peer {
	if msg == nil {
		msg = host.Discard
	}
	return &Peer{
		regs:    regs,
		msg:     msg,
		maxWait: DefaultMaxWait,
	}
}

// Sent returns the PIDs of the data packets emitted so far.
func (p *Peer) Sent() []usb.PID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]usb.PID(nil), p.sent...)
}

func (p *Peer) read(name string) (uint32, error) {
	v, err := p.regs.Read(name)
	if err != nil {
		return 0, &host.TransportError{Op: "read " + name, Err: err}
	}
	return v, nil
}

func (p *Peer) write(name string, v uint32) error {
	err := p.regs.Write(name, v)
	if err != nil {
		return &host.TransportError{Op: "write " + name, Err: err}
	}
	return nil
}

// BusReset signals a reset condition on the bus.
func (p *Peer) BusReset(ctx context.Context) error {
	return p.write(regPhyCtrl, 1)
}

// emit puts a packet on the wire.
func (p *Peer) emit(pkt []byte) error {
	for _, b := range pkt {
		err := p.write(regPhyTxData, uint32(b))
		if err != nil {
			return err
		}
	}
	err := p.write(regPhyTxCtrl, 1)
	if err != nil {
		return err
	}

	pid, err := usb.ParsePID(pkt[0])
	if err == nil && pid.IsData() {
		p.mu.Lock()
		p.sent = append(p.sent, pid)
		p.mu.Unlock()
	}
	return nil
}

// response waits for the next packet emitted by the device, until the
// packet deadline of tr elapses.
func (p *Peer) response(ctx context.Context, tr *host.Transfer, op string) ([]byte, error) {
	for n := 0; ; n++ {
		v, err := p.read(regPhyRxStatus)
		if err != nil {
			return nil, err
		}
		if v&statusHave != 0 {
			return p.readPacket()
		}
		err = tr.CheckPacket(op, "no response from device")
		if err != nil {
			return nil, err
		}
		if n >= p.maxWait {
			return nil, &host.TimeoutError{
				Op:       op,
				Msg:      fmt.Sprintf("no response from device after %d edges", n),
				Now:      tr.Now(),
				Deadline: tr.PacketDeadline(),
			}
		}
		err = tr.Edge(ctx)
		if err != nil {
			return nil, err
		}
	}
}

func (p *Peer) readPacket() ([]byte, error) {
	var pkt []byte
	for len(pkt) < maxPacketSize {
		v, err := p.read(regPhyRxStatus)
		if err != nil {
			return nil, err
		}
		if v&statusHave == 0 {
			break
		}
		b, err := p.read(regPhyRxData)
		if err != nil {
			return nil, err
		}
		pkt = append(pkt, byte(b))
	}
	if len(pkt) == 0 {
		return nil, host.Validationf("peer-read", 0, ">0", "empty response packet")
	}
	return pkt, nil
}

// handshake waits for a handshake packet and checks it is the expected one.
func (p *Peer) handshake(ctx context.Context, tr *host.Transfer, op string, expected usb.PID) error {
	pkt, err := p.response(ctx, tr, op)
	if err != nil {
		return err
	}
	pid, err := usb.ParsePID(pkt[0])
	if err != nil {
		return host.Validationf(op, pkt, expected, "invalid response packet")
	}
	if pid != expected {
		return host.Validationf(op, pid, expected, "unexpected handshake")
	}
	return nil
}

// Setup sends a SETUP transaction to endpoint ep of device addr.
func (p *Peer) Setup(ctx context.Context, tr *host.Transfer, addr, ep uint8, data []byte) error {
	const op = "peer-setup"
	p.msg.Debugf("SETUP addr=%d ep=%d data=% x", addr, ep, data)

	err := p.emit(usb.TokenPacket(usb.SETUP, addr, ep))
	if err != nil {
		return err
	}
	err = p.emit(usb.DataPacket(usb.DATA0, data))
	if err != nil {
		return err
	}
	return p.handshake(ctx, tr, op, usb.ACK)
}

// Send sends an OUT transaction with data packet pid to endpoint ep of
// device addr, and checks the device answers with the expected handshake.
func (p *Peer) Send(ctx context.Context, tr *host.Transfer, addr, ep uint8, pid usb.PID, data []byte, expected usb.PID) error {
	const op = "peer-send"
	p.msg.Debugf("OUT addr=%d ep=%d %v data=% x", addr, ep, pid, data)

	err := p.emit(usb.TokenPacket(usb.OUT, addr, ep))
	if err != nil {
		return err
	}
	err = p.emit(usb.DataPacket(pid, data))
	if err != nil {
		return err
	}
	return p.handshake(ctx, tr, op, expected)
}

// Recv sends IN tokens to endpoint ep of device addr until the device
// returns a data packet, and checks the packet carries the pid data
// toggle and the want payload.
// NAK responses are retried until the packet deadline elapses.
func (p *Peer) Recv(ctx context.Context, tr *host.Transfer, addr, ep uint8, pid usb.PID, want []byte) error {
	const op = "peer-recv"
	for {
		err := p.emit(usb.TokenPacket(usb.IN, addr, ep))
		if err != nil {
			return err
		}
		pkt, err := p.response(ctx, tr, op)
		if err != nil {
			return err
		}
		got, err := usb.ParsePID(pkt[0])
		if err != nil {
			return host.Validationf(op, pkt, pid, "invalid response packet")
		}

		switch {
		case got == usb.NAK:
			err = tr.CheckPacket(op, "device kept NAKing")
			if err != nil {
				return err
			}
			err = tr.Edge(ctx)
			if err != nil {
				return err
			}
			continue

		case got == usb.STALL:
			return host.Validationf(op, got, pid, "endpoint %d stalled", ep)

		case !got.IsData():
			return host.Validationf(op, got, pid, "unexpected response")
		}

		payload, crc, ok := usb.SplitCRC16(pkt[1:])
		if !ok || !usb.CheckCRC16(payload, crc) {
			return host.Validationf(op, pkt, want, "CRC16 not valid")
		}

		err = p.emit(usb.HandshakePacket(usb.ACK))
		if err != nil {
			return err
		}

		p.msg.Debugf("IN addr=%d ep=%d %v data=% x", addr, ep, got, payload)
		if got != pid {
			return host.Validationf(op, got, pid, "invalid data toggle")
		}
		if !bytes.Equal(payload, want) {
			return host.Validationf(op, payload, want, "DATA packet not correctly received")
		}
		return nil
	}
}
