// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package host

import (
	"context"
	"fmt"

	"github.com/go-lpc/usbbfm/usb"
)

// GetDescriptor runs a GET_DESCRIPTOR request on the current device
// address, with the device answering desc.
func (h *Host) GetDescriptor(ctx context.Context, typ, idx uint8, desc []byte) error {
	if len(desc) == 0 || len(desc) > 0xffff {
		return Usagef("get-descriptor", "invalid descriptor size %d", len(desc))
	}
	req := usb.GetDescriptor(typ, idx, uint16(len(desc)))
	err := h.ControlTransferIn(ctx, h.addr, req.Bytes(), desc)
	if err != nil {
		return fmt.Errorf("host: could not get descriptor 0x%x/%d: %w", typ, idx, err)
	}
	return nil
}

// SetAddress runs a SET_ADDRESS request and then moves the device core to
// the new address.
func (h *Host) SetAddress(ctx context.Context, addr uint8) error {
	if addr > 0x7f {
		return Usagef("set-address", "invalid device address %d", addr)
	}
	err := h.ControlTransferOut(ctx, h.addr, usb.SetAddress(addr).Bytes(), nil)
	if err != nil {
		return fmt.Errorf("host: could not set address %d: %w", addr, err)
	}
	return h.SetDeviceAddress(ctx, addr)
}

// SetConfiguration runs a SET_CONFIGURATION request.
func (h *Host) SetConfiguration(ctx context.Context, cfg uint8) error {
	err := h.ControlTransferOut(ctx, h.addr, usb.SetConfiguration(cfg).Bytes(), nil)
	if err != nil {
		return fmt.Errorf("host: could not set configuration %d: %w", cfg, err)
	}
	return nil
}
