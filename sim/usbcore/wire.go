// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package usbcore

import (
	"github.com/go-lpc/usbbfm/usb"
)

// busReset puts the device in its default state. dev.mu must be held.
func (dev *Device) busReset() {
	dev.addr = 0
	dev.tok = token{}
	dev.rx = nil
	dev.tx = nil
	dev.queue = nil

	dev.setup.fifo = nil
	dev.out.fifo = nil
	dev.out.enable = false
	dev.out.stall = false
	dev.in.fifo = nil
	dev.in.armed = false
	dev.in.stall = false
	dev.in.inflight = false

	for i := range dev.toggle {
		dev.toggle[i] = usb.DATA0
	}
}

// receive handles a packet emitted on the wire. dev.mu must be held.
func (dev *Device) receive(pkt []byte) {
	if len(pkt) == 0 {
		return
	}
	pid, err := usb.ParsePID(pkt[0])
	if err != nil {
		return
	}
	if pid.IsHandshake() || dev.latency <= 0 || dev.clk == nil {
		dev.process(pkt)
		return
	}
	dev.queue = append(dev.queue, delayed{
		due: dev.clk.Cycle() + uint64(dev.latency),
		pkt: pkt,
	})
}

// step processes the delayed packets due at cycle.
func (dev *Device) step(cycle uint64) {
	dev.mu.Lock()
	defer dev.mu.Unlock()

	for len(dev.queue) > 0 && dev.queue[0].due <= cycle {
		pkt := dev.queue[0].pkt
		dev.queue = dev.queue[1:]
		dev.process(pkt)
	}
}

func (dev *Device) respond(pkt []byte) {
	dev.tx = append(dev.tx[:0], pkt...)
}

// process decodes a packet and updates the device state.
// dev.mu must be held.
func (dev *Device) process(pkt []byte) {
	if !dev.pullup {
		return
	}

	pid, _ := usb.ParsePID(pkt[0])
	switch {
	case pid.IsToken():
		dev.tok = token{}
		_, addr, ep, err := usb.ParseToken(pkt)
		if err != nil || addr != dev.addr {
			return
		}
		dev.tok = token{pid: pid, ep: ep, valid: true}
		if pid == usb.IN {
			dev.handleIn(ep)
		}

	case pid.IsData():
		tok := dev.tok
		dev.tok = token{}
		if !tok.valid {
			return
		}
		switch tok.pid {
		case usb.SETUP:
			dev.handleSetup(tok.ep, pid, pkt[1:])
		case usb.OUT:
			dev.handleOut(tok.ep, pid, pkt[1:])
		}

	case pid == usb.ACK:
		tok := dev.tok
		dev.tok = token{}
		if !tok.valid || tok.pid != usb.IN || !dev.in.inflight {
			return
		}
		dev.in.inflight = false
		dev.in.armed = false
		dev.in.fifo = nil
		dev.toggle[tok.ep] = dev.toggle[tok.ep].Toggle()
		dev.in.ev.raise(FaultNone)
	}
}

// accept checks the CRC16 of a received data packet and applies the
// pending fault, if any. It returns the bytes to buffer.
func (dev *Device) accept(raw []byte) ([]byte, Fault, bool) {
	payload, crc, ok := usb.SplitCRC16(raw)
	if !ok || !usb.CheckCRC16(payload, crc) {
		return nil, FaultNone, false
	}

	f := FaultNone
	if len(dev.faults) > 0 {
		f = dev.faults[0]
		dev.faults = dev.faults[1:]
	}

	buf := append([]byte(nil), raw...)
	switch f {
	case FaultDropPacket:
		return nil, f, false
	case FaultCorruptCRC:
		buf[len(buf)-1] ^= 0x01
	case FaultShortPacket:
		buf = buf[:1]
	}
	return buf, f, true
}

func (dev *Device) handleSetup(ep uint8, pid usb.PID, raw []byte) {
	buf, f, ok := dev.accept(raw)
	if !ok {
		return
	}
	dev.seen = append(dev.seen, pid)

	// SETUP packets are always acknowledged and clear any halt condition.
	dev.setup.fifo = buf
	dev.setup.ep = ep
	dev.setup.ev.raise(f)
	dev.toggle[ep] = usb.DATA1
	dev.in.stall = false
	dev.out.stall = false
	dev.respond(usb.HandshakePacket(usb.ACK))
}

func (dev *Device) handleOut(ep uint8, pid usb.PID, raw []byte) {
	switch {
	case dev.out.stall && dev.out.ctl == ep:
		dev.respond(usb.HandshakePacket(usb.STALL))
		return
	case !dev.out.enable || dev.out.ctl != ep || len(dev.out.fifo) > 0:
		dev.respond(usb.HandshakePacket(usb.NAK))
		return
	}

	buf, f, ok := dev.accept(raw)
	if !ok {
		return
	}
	dev.seen = append(dev.seen, pid)

	dev.out.fifo = buf
	dev.out.ep = ep
	dev.out.enable = false
	dev.out.ev.raise(f)
	dev.respond(usb.HandshakePacket(usb.ACK))
}

func (dev *Device) handleIn(ep uint8) {
	switch {
	case dev.in.stall && dev.in.ep == ep:
		dev.respond(usb.HandshakePacket(usb.STALL))
	case !dev.in.armed || dev.in.ep != ep:
		dev.respond(usb.HandshakePacket(usb.NAK))
	default:
		dev.in.inflight = true
		dev.respond(usb.DataPacket(dev.toggle[ep], dev.in.fifo))
	}
}
