// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package usb

import (
	"fmt"

	"github.com/go-lpc/usbbfm/internal/crc16"
)

// CRC16 returns the USB CRC16 of p, in transmission order.
func CRC16(p []byte) [2]byte {
	return crc16.Wire(p)
}

// CRC5 returns the USB CRC5 of the low 11 bits of v, as sent on the wire.
func CRC5(v uint16) uint8 {
	crc := uint8(0x1f)
	for i := 0; i < 11; i++ {
		bit := uint8(v>>i) & 1
		if (crc^bit)&1 != 0 {
			crc = (crc >> 1) ^ 0x14
		} else {
			crc >>= 1
		}
	}
	return ^crc & 0x1f
}

// TokenPacket encodes a token packet for the device address addr and
// endpoint number ep.
func TokenPacket(pid PID, addr, ep uint8) []byte {
	v := uint16(addr&0x7f) | uint16(ep&0x0f)<<7
	v |= uint16(CRC5(v)) << 11
	return []byte{pid.Byte(), byte(v), byte(v >> 8)}
}

// ParseToken decodes a token packet and checks its CRC5.
func ParseToken(p []byte) (pid PID, addr, ep uint8, err error) {
	if len(p) != 3 {
		return 0, 0, 0, fmt.Errorf("usb: invalid token size %d", len(p))
	}
	pid, err = ParsePID(p[0])
	if err != nil {
		return 0, 0, 0, err
	}
	if !pid.IsToken() {
		return 0, 0, 0, fmt.Errorf("usb: PID %v is not a token", pid)
	}
	v := uint16(p[1]) | uint16(p[2])<<8
	addr = uint8(v & 0x7f)
	ep = uint8(v>>7) & 0x0f
	if got, want := uint8(v>>11), CRC5(v&0x7ff); got != want {
		return 0, 0, 0, fmt.Errorf("usb: invalid token CRC5 (got=0x%02x, want=0x%02x)", got, want)
	}
	return pid, addr, ep, nil
}

// DataPacket encodes a data packet: PID, payload and CRC16.
func DataPacket(pid PID, payload []byte) []byte {
	crc := CRC16(payload)
	out := make([]byte, 0, len(payload)+3)
	out = append(out, pid.Byte())
	out = append(out, payload...)
	out = append(out, crc[:]...)
	return out
}

// HandshakePacket encodes a handshake packet.
func HandshakePacket(pid PID) []byte {
	return []byte{pid.Byte()}
}

// SplitCRC16 splits the trailing CRC16 off p.
// It reports false when p is too short to hold a CRC.
func SplitCRC16(p []byte) (payload []byte, crc [2]byte, ok bool) {
	if len(p) < 2 {
		return p, crc, false
	}
	n := len(p) - 2
	copy(crc[:], p[n:])
	return p[:n], crc, true
}

// CheckCRC16 reports whether crc is the CRC16 of payload.
func CheckCRC16(payload []byte, crc [2]byte) bool {
	return CRC16(payload) == crc
}
