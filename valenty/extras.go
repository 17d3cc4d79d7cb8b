// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package valenty

import (
	"context"

	"github.com/go-lpc/usbbfm/host"
	"github.com/go-lpc/usbbfm/usb"
)

// Pending reports whether endpoint ep has data waiting to be handled.
func (drv *Driver) Pending(ctx context.Context, ep usb.EndpointAddress) (bool, error) {
	if ep.IsIn() {
		v, err := drv.read(regInStatus)
		if err != nil {
			return false, err
		}
		return v&statusHave != 0, nil
	}

	v, err := drv.read(regOutStatus)
	if err != nil {
		return false, err
	}
	return v&(statusPend|statusHave) != 0 && uint8(v&statusEP) == ep.Number(), nil
}

// ClearPending resets the buffer of endpoint ep and clears its events.
func (drv *Driver) ClearPending(ctx context.Context, ep usb.EndpointAddress) error {
	s := seq{drv: drv}
	if ep.IsIn() {
		drv.msg.Infof("clearing IN_EV_PENDING")
		s.write(regInCtrl, ctrlReset)
		s.write(regInEvPending, 0xff)
		return s.err
	}

	drv.msg.Infof("clearing OUT_EV_PENDING")
	s.write(regOutEvPending, 0xff)
	s.write(regOutCtrl, ctrlReset)
	return s.err
}

// DrainSetup empties the SETUP buffer and clears the SETUP events.
// It returns the drained bytes, CRC16 included.
func (drv *Driver) DrainSetup(ctx context.Context, tr *host.Transfer) ([]byte, error) {
	raw, err := drv.drain(ctx, tr, regSetupStatus, regSetupData, drv.budget.Setup)
	if err != nil {
		return raw, err
	}

	s := seq{drv: drv}
	s.write(regSetupCtrl, setupHandled)
	s.write(regSetupEvPending, 0xff)
	return raw, s.err
}

// DrainOut empties the OUT buffer, clears the OUT events and re-enables
// endpoint 0. It returns the drained payload, without its CRC16.
func (drv *Driver) DrainOut(ctx context.Context, tr *host.Transfer) ([]byte, error) {
	raw, err := drv.drain(ctx, tr, regOutStatus, regOutData, drv.budget.DrainOut)
	if err != nil {
		return raw, err
	}

	s := seq{drv: drv}
	s.write(regOutEvPending, 0xff)
	s.write(regOutCtrl, ctrlEnable)
	if s.err != nil {
		return nil, s.err
	}
	if len(raw) < 2 {
		return nil, nil
	}
	return raw[:len(raw)-2], nil
}

// SetData fills the IN buffer with data.
func (drv *Driver) SetData(ctx context.Context, data []byte) error {
	s := seq{drv: drv}
	for _, b := range data {
		s.write(regInData, uint32(b))
	}
	return s.err
}

// SendData fills the IN buffer with data and arms endpoint ep.
func (drv *Driver) SendData(ctx context.Context, ep usb.EndpointAddress, data []byte) error {
	err := drv.SetData(ctx, data)
	if err != nil {
		return err
	}
	return drv.write(regInCtrl, uint32(ep.Number()))
}
