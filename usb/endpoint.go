// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package usb

import "fmt"

// Direction is the direction of an endpoint, as encoded in bit 7 of an
// endpoint address.
type Direction uint8

// Endpoint directions.
const (
	DirOut Direction = 0x00 // host to device
	DirIn  Direction = 0x80 // device to host
)

func (dir Direction) String() string {
	switch dir {
	case DirOut:
		return "OUT"
	case DirIn:
		return "IN"
	default:
		return fmt.Sprintf("Direction(0x%x)", uint8(dir))
	}
}

// EndpointType is the transfer type of an endpoint (USB 2.0, Table 9-13).
type EndpointType uint8

// Endpoint transfer types.
const (
	Control     EndpointType = 0x00
	Isochronous EndpointType = 0x01
	Bulk        EndpointType = 0x02
	Interrupt   EndpointType = 0x03
)

func (typ EndpointType) String() string {
	switch typ {
	case Control:
		return "control"
	case Isochronous:
		return "isochronous"
	case Bulk:
		return "bulk"
	case Interrupt:
		return "interrupt"
	default:
		return fmt.Sprintf("EndpointType(%d)", uint8(typ))
	}
}

// EndpointAddress is a combined endpoint number and direction.
// Bits 0-3 hold the endpoint number, bit 7 the direction.
type EndpointAddress uint8

// EndpointAddr encodes the endpoint number num and direction dir into an
// endpoint address.
func EndpointAddr(num uint8, dir Direction) EndpointAddress {
	return EndpointAddress(num&0x0f) | EndpointAddress(dir&DirIn)
}

// Number returns the endpoint number (0-15).
func (ep EndpointAddress) Number() uint8 { return uint8(ep) & 0x0f }

// Direction returns the endpoint direction.
func (ep EndpointAddress) Direction() Direction { return Direction(ep) & DirIn }

// IsIn reports whether ep is a device-to-host endpoint.
func (ep EndpointAddress) IsIn() bool { return ep.Direction() == DirIn }

func (ep EndpointAddress) String() string {
	return fmt.Sprintf("EP%d%s", ep.Number(), ep.Direction())
}

// Endpoint describes an endpoint of the device under test.
// Endpoints are immutable once constructed.
type Endpoint struct {
	addr EndpointAddress
	typ  EndpointType
}

// NewEndpoint creates a new endpoint description.
func NewEndpoint(num uint8, dir Direction, typ EndpointType) Endpoint {
	return Endpoint{addr: EndpointAddr(num, dir), typ: typ}
}

func (ep Endpoint) Address() EndpointAddress { return ep.addr }
func (ep Endpoint) Type() EndpointType       { return ep.typ }
func (ep Endpoint) Number() uint8            { return ep.addr.Number() }
func (ep Endpoint) Direction() Direction     { return ep.addr.Direction() }

func (ep Endpoint) String() string {
	return fmt.Sprintf("%v/%v", ep.addr, ep.typ)
}

var (
	// EP0Out is the OUT half of the default control pipe.
	EP0Out = EndpointAddr(0, DirOut)
	// EP0In is the IN half of the default control pipe.
	EP0In = EndpointAddr(0, DirIn)
)
