// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package usbcore is a behavioural model of a register-mapped USB device
// core, in the style of the ValentyUSB CSR interface.
//
// The host-facing registers (usb_*) are driven by the firmware side of a
// test bench. The device-facing registers (phy_*) are driven by the
// simulated host emitting and receiving packets on the USB wire:
//  - phy_tx_data queues a byte of the packet being emitted,
//  - phy_tx_ctrl bit 0 marks the end of the packet,
//  - phy_rx_status bit 4 flags a pending response byte,
//  - phy_rx_data pops a byte of the response,
//  - phy_ctrl bit 0 signals a bus reset.
package usbcore // import "github.com/go-lpc/usbbfm/sim/usbcore"

import (
	"fmt"
	"sync"

	"github.com/go-lpc/usbbfm/csr"
	"github.com/go-lpc/usbbfm/sim"
	"github.com/go-lpc/usbbfm/usb"
)

// Status and control register bits.
const (
	StatusHave = 1 << 4 // data available
	StatusPend = 1 << 5 // event pending
	StatusEP   = 0x0f

	CtrlEnable = 1 << 4 // OUT: accept packets
	CtrlReset  = 1 << 5 // empty the endpoint buffer
	CtrlStall  = 1 << 6

	SetupHandled = 1 << 1
)

// Fault is a one-shot fault applied to the next data packet received on
// the SETUP or OUT pipe.
type Fault int

const (
	FaultNone        Fault = iota
	FaultCorruptCRC        // flip a bit of the buffered CRC16
	FaultShortPacket       // only buffer the first received byte
	FaultDoubleEvent       // raise two event-pending bits
	FaultDropPacket        // ignore the packet altogether
)

func (f Fault) String() string {
	switch f {
	case FaultNone:
		return "none"
	case FaultCorruptCRC:
		return "corrupt-crc"
	case FaultShortPacket:
		return "short-packet"
	case FaultDoubleEvent:
		return "double-event"
	case FaultDropPacket:
		return "drop-packet"
	default:
		return fmt.Sprintf("Fault(%d)", int(f))
	}
}

type evsrc struct {
	pending uint32
	enable  uint32
}

func (ev *evsrc) raise(f Fault) {
	ev.pending |= 1
	if f == FaultDoubleEvent {
		ev.pending |= 2
	}
}

type token struct {
	pid   usb.PID
	ep    uint8
	valid bool
}

type delayed struct {
	due uint64
	pkt []byte
}

// Device is the model of a USB device core.
type Device struct {
	mu sync.Mutex

	base uint32
	csr  *csr.Map
	regs map[uint32]reg
	clk  *sim.Clock

	latency int
	faults  []Fault
	queue   []delayed

	pullup bool
	addr   uint8

	setup struct {
		fifo []byte
		ep   uint8
		ev   evsrc
	}
	out struct {
		fifo   []byte
		ep     uint8 // endpoint of the last received packet
		ctl    uint8 // endpoint the pipe is enabled for
		enable bool
		stall  bool
		ev     evsrc
	}
	in struct {
		fifo     []byte
		ep       uint8
		armed    bool
		stall    bool
		inflight bool
		ev       evsrc
	}
	toggle [16]usb.PID

	tok token
	rx  []byte // packet being received from the wire
	tx  []byte // response to the wire

	seen []usb.PID
}

// Option configures a Device.
type Option func(*Device)

// WithBase sets the base address of the register banks.
func WithBase(base uint32) Option {
	return func(dev *Device) {
		dev.base = base
	}
}

// WithLatency delays the processing of token and data packets by n clock
// edges.
func WithLatency(n int) Option {
	return func(dev *Device) {
		dev.latency = n
	}
}

// New creates a new device core clocked by clk.
func New(clk *sim.Clock, opts ...Option) *Device {
	dev := &Device{
		base: DefaultBase,
		clk:  clk,
	}
	for _, opt := range opts {
		opt(dev)
	}
	dev.csr = newMap(dev.base)
	dev.regs = make(map[uint32]reg, nRegs)
	for r := reg(0); r < nRegs; r++ {
		dev.regs[r.addr(dev.base)] = r
	}
	dev.busReset()

	if clk != nil {
		clk.OnEdge(dev.step)
	}
	return dev
}

// Map returns the register map of the device.
func (dev *Device) Map() *csr.Map { return dev.csr }

// SetLatency sets the processing latency of token and data packets.
// A non-zero latency needs a clock.
func (dev *Device) SetLatency(n int) {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	dev.latency = n
}

// Inject queues a fault for the next data packet.
func (dev *Device) Inject(f Fault) {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	dev.faults = append(dev.faults, f)
}

// DataPIDs returns the data PIDs of the data packets received so far.
func (dev *Device) DataPIDs() []usb.PID {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return append([]usb.PID(nil), dev.seen...)
}

// Connected reports whether the pull-up is enabled.
func (dev *Device) Connected() bool {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return dev.pullup
}

// Address returns the current device address.
func (dev *Device) Address() uint8 {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return dev.addr
}

func (dev *Device) lookup(addr uint32) (reg, error) {
	r, ok := dev.regs[addr]
	if !ok {
		return 0, fmt.Errorf("usbcore: no register at 0x%x", addr)
	}
	return r, nil
}

func pop(fifo *[]byte) uint32 {
	if len(*fifo) == 0 {
		return 0
	}
	v := (*fifo)[0]
	*fifo = (*fifo)[1:]
	return uint32(v)
}

func (dev *Device) Read(addr uint32) (uint32, error) {
	r, err := dev.lookup(addr)
	if err != nil {
		return 0, err
	}

	dev.mu.Lock()
	defer dev.mu.Unlock()

	switch r {
	case regPullup:
		if dev.pullup {
			return 1, nil
		}
		return 0, nil
	case regAddress:
		return uint32(dev.addr), nil

	case regSetupData:
		return pop(&dev.setup.fifo), nil
	case regSetupStatus:
		return status(len(dev.setup.fifo) > 0, dev.setup.ev, dev.setup.ep), nil
	case regSetupEvStatus:
		return b2u(len(dev.setup.fifo) > 0), nil
	case regSetupEvPending:
		return dev.setup.ev.pending, nil
	case regSetupEvEnable:
		return dev.setup.ev.enable, nil

	case regInStatus:
		return status(dev.in.armed, dev.in.ev, dev.in.ep), nil
	case regInCtrl:
		v := uint32(dev.in.ep)
		if dev.in.stall {
			v |= CtrlStall
		}
		return v, nil
	case regInEvStatus:
		return b2u(dev.in.armed), nil
	case regInEvPending:
		return dev.in.ev.pending, nil
	case regInEvEnable:
		return dev.in.ev.enable, nil

	case regOutData:
		return pop(&dev.out.fifo), nil
	case regOutStatus:
		return status(len(dev.out.fifo) > 0, dev.out.ev, dev.out.ep), nil
	case regOutCtrl:
		v := uint32(dev.out.ctl)
		if dev.out.enable {
			v |= CtrlEnable
		}
		if dev.out.stall {
			v |= CtrlStall
		}
		return v, nil
	case regOutEvStatus:
		return b2u(len(dev.out.fifo) > 0), nil
	case regOutEvPending:
		return dev.out.ev.pending, nil
	case regOutEvEnable:
		return dev.out.ev.enable, nil

	case regPhyRxStatus:
		if len(dev.tx) > 0 {
			return StatusHave, nil
		}
		return 0, nil
	case regPhyRxData:
		return pop(&dev.tx), nil
	}

	// write-only and strobe registers.
	return 0, nil
}

func (dev *Device) Write(addr, v uint32) error {
	r, err := dev.lookup(addr)
	if err != nil {
		return err
	}

	dev.mu.Lock()
	defer dev.mu.Unlock()

	switch r {
	case regPullup:
		dev.pullup = v&1 != 0
	case regAddress:
		dev.addr = uint8(v & 0x7f)

	case regSetupCtrl:
		if v&SetupHandled != 0 {
			dev.setup.fifo = nil
		}
	case regSetupEvPending:
		dev.setup.ev.pending &^= v
	case regSetupEvEnable:
		dev.setup.ev.enable = v

	case regInData:
		dev.in.fifo = append(dev.in.fifo, byte(v))
	case regInCtrl:
		switch {
		case v&CtrlReset != 0:
			dev.in.fifo = nil
			dev.in.armed = false
			dev.in.stall = false
			dev.in.inflight = false
		default:
			dev.in.ep = uint8(v & StatusEP)
			dev.in.stall = v&CtrlStall != 0
			dev.in.armed = !dev.in.stall
		}
	case regInEvPending:
		dev.in.ev.pending &^= v
	case regInEvEnable:
		dev.in.ev.enable = v

	case regOutCtrl:
		if v&CtrlReset != 0 {
			dev.out.fifo = nil
		}
		dev.out.ctl = uint8(v & StatusEP)
		dev.out.enable = v&CtrlEnable != 0
		dev.out.stall = v&CtrlStall != 0
	case regOutEvPending:
		dev.out.ev.pending &^= v
	case regOutEvEnable:
		dev.out.ev.enable = v

	case regPhyTxData:
		dev.rx = append(dev.rx, byte(v))
	case regPhyTxCtrl:
		if v&1 == 0 {
			return nil
		}
		pkt := dev.rx
		dev.rx = nil
		dev.receive(pkt)
	case regPhyCtrl:
		if v&1 != 0 {
			dev.busReset()
		}

	default:
		return fmt.Errorf("usbcore: register %v is read-only", r)
	}
	return nil
}

func status(have bool, ev evsrc, ep uint8) uint32 {
	v := uint32(ep & StatusEP)
	if have {
		v |= StatusHave
	}
	if ev.pending != 0 {
		v |= StatusPend
	}
	return v
}

func b2u(v bool) uint32 {
	if v {
		return 1
	}
	return 0
}

var _ csr.Bus = (*Device)(nil)
