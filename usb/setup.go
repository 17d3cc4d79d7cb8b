// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package usb

import (
	"encoding/binary"
	"fmt"
)

// SetupSize is the size in bytes of a SETUP packet payload.
const SetupSize = 8

// bmRequestType fields.
const (
	RequestDirMask = 0x80 // 1: device-to-host

	RequestTypeStandard = 0x00
	RequestTypeClass    = 0x20
	RequestTypeVendor   = 0x40

	RecipientDevice    = 0x00
	RecipientInterface = 0x01
	RecipientEndpoint  = 0x02
)

// Standard requests (USB 2.0, Table 9-4).
const (
	ReqGetStatus        = 0x00
	ReqClearFeature     = 0x01
	ReqSetFeature       = 0x03
	ReqSetAddress       = 0x05
	ReqGetDescriptor    = 0x06
	ReqSetDescriptor    = 0x07
	ReqGetConfiguration = 0x08
	ReqSetConfiguration = 0x09
	ReqGetInterface     = 0x0a
	ReqSetInterface     = 0x0b
)

// Descriptor types.
const (
	DescDevice        = 0x01
	DescConfiguration = 0x02
	DescString        = 0x03
	DescInterface     = 0x04
	DescEndpoint      = 0x05
)

// SetupPacket is the 8-byte payload of a SETUP transaction.
type SetupPacket struct {
	RequestType uint8
	Request     uint8
	Value       uint16
	Index       uint16
	Length      uint16
}

// Bytes returns the wire encoding of the SETUP packet.
func (p SetupPacket) Bytes() []byte {
	buf := make([]byte, SetupSize)
	buf[0] = p.RequestType
	buf[1] = p.Request
	binary.LittleEndian.PutUint16(buf[2:4], p.Value)
	binary.LittleEndian.PutUint16(buf[4:6], p.Index)
	binary.LittleEndian.PutUint16(buf[6:8], p.Length)
	return buf
}

// ParseSetup decodes an 8-byte SETUP payload.
func ParseSetup(p []byte) (SetupPacket, error) {
	if len(p) != SetupSize {
		return SetupPacket{}, fmt.Errorf("usb: invalid SETUP packet size (got=%d, want=%d)", len(p), SetupSize)
	}
	return SetupPacket{
		RequestType: p[0],
		Request:     p[1],
		Value:       binary.LittleEndian.Uint16(p[2:4]),
		Index:       binary.LittleEndian.Uint16(p[4:6]),
		Length:      binary.LittleEndian.Uint16(p[6:8]),
	}, nil
}

// DeviceToHost reports whether the request has an IN data stage.
func (p SetupPacket) DeviceToHost() bool {
	return p.RequestType&RequestDirMask != 0
}

func (p SetupPacket) String() string {
	return fmt.Sprintf(
		"SETUP{type=0x%02x req=0x%02x value=0x%04x index=0x%04x len=%d}",
		p.RequestType, p.Request, p.Value, p.Index, p.Length,
	)
}

// GetDescriptor builds a standard GET_DESCRIPTOR request.
func GetDescriptor(typ, idx uint8, length uint16) SetupPacket {
	return SetupPacket{
		RequestType: RequestDirMask | RequestTypeStandard | RecipientDevice,
		Request:     ReqGetDescriptor,
		Value:       uint16(typ)<<8 | uint16(idx),
		Length:      length,
	}
}

// SetAddress builds a standard SET_ADDRESS request.
func SetAddress(addr uint8) SetupPacket {
	return SetupPacket{
		Request: ReqSetAddress,
		Value:   uint16(addr & 0x7f),
	}
}

// SetConfiguration builds a standard SET_CONFIGURATION request.
func SetConfiguration(cfg uint8) SetupPacket {
	return SetupPacket{
		Request: ReqSetConfiguration,
		Value:   uint16(cfg),
	}
}

// GetStatus builds a standard GET_STATUS request addressed to the device.
func GetStatus() SetupPacket {
	return SetupPacket{
		RequestType: RequestDirMask,
		Request:     ReqGetStatus,
		Length:      2,
	}
}
