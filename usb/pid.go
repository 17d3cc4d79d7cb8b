// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package usb

import "fmt"

// PID is a 4-bit USB packet identifier.
type PID uint8

// Packet identifiers (USB 2.0, Table 8-1).
const (
	// tokens
	OUT   PID = 0x1
	IN    PID = 0x9
	SOF   PID = 0x5
	SETUP PID = 0xd

	// data
	DATA0 PID = 0x3
	DATA1 PID = 0xb
	DATA2 PID = 0x7
	MDATA PID = 0xf

	// handshakes
	ACK   PID = 0x2
	NAK   PID = 0xa
	STALL PID = 0xe
	NYET  PID = 0x6
)

// Byte returns the on-the-wire PID byte: the PID in the low nibble and
// its one's complement in the high nibble.
func (pid PID) Byte() byte {
	v := byte(pid) & 0x0f
	return v | (^v << 4)
}

// ParsePID decodes a PID byte, checking its complement nibble.
func ParsePID(b byte) (PID, error) {
	lo := b & 0x0f
	hi := b >> 4
	if lo^hi != 0x0f {
		return 0, fmt.Errorf("usb: invalid PID byte 0x%02x", b)
	}
	return PID(lo), nil
}

// IsToken reports whether pid is a token PID.
func (pid PID) IsToken() bool {
	switch pid {
	case OUT, IN, SOF, SETUP:
		return true
	}
	return false
}

// IsData reports whether pid is a data PID.
func (pid PID) IsData() bool {
	switch pid {
	case DATA0, DATA1, DATA2, MDATA:
		return true
	}
	return false
}

// IsHandshake reports whether pid is a handshake PID.
func (pid PID) IsHandshake() bool {
	switch pid {
	case ACK, NAK, STALL, NYET:
		return true
	}
	return false
}

// Toggle returns the next data toggle: DATA0 for DATA1 and DATA1 otherwise.
func (pid PID) Toggle() PID {
	if pid == DATA1 {
		return DATA0
	}
	return DATA1
}

func (pid PID) String() string {
	switch pid {
	case OUT:
		return "OUT"
	case IN:
		return "IN"
	case SOF:
		return "SOF"
	case SETUP:
		return "SETUP"
	case DATA0:
		return "DATA0"
	case DATA1:
		return "DATA1"
	case DATA2:
		return "DATA2"
	case MDATA:
		return "MDATA"
	case ACK:
		return "ACK"
	case NAK:
		return "NAK"
	case STALL:
		return "STALL"
	case NYET:
		return "NYET"
	default:
		return fmt.Sprintf("PID(0x%x)", uint8(pid))
	}
}

// Response is the handshake policy of an endpoint.
type Response uint8

const (
	RespACK Response = iota
	RespNAK
	RespStall
	RespNone
)

// ResponseOf returns the endpoint response matching a handshake PID.
func ResponseOf(pid PID) Response {
	switch pid {
	case ACK:
		return RespACK
	case NAK:
		return RespNAK
	case STALL:
		return RespStall
	default:
		return RespNone
	}
}

// PID returns the handshake PID a device answers with under this policy.
func (r Response) PID() PID {
	switch r {
	case RespACK:
		return ACK
	case RespNAK:
		return NAK
	case RespStall:
		return STALL
	default:
		return 0
	}
}

func (r Response) String() string {
	switch r {
	case RespACK:
		return "ACK"
	case RespNAK:
		return "NAK"
	case RespStall:
		return "STALL"
	case RespNone:
		return "NONE"
	default:
		return fmt.Sprintf("Response(%d)", uint8(r))
	}
}
