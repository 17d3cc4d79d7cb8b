// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package valenty

import (
	"bytes"
	"context"

	"github.com/go-lpc/usbbfm/host"
	"github.com/go-lpc/usbbfm/usb"
)

// PollResult is the outcome of a bounded register poll.
type PollResult struct {
	Found bool   // whether the flag was observed
	Last  uint32 // last value read from the register
}

// PollUntil reads reg once per clock edge until one of the mask bits is
// set, for at most max edges.
func (drv *Driver) PollUntil(ctx context.Context, tr *host.Transfer, reg string, mask uint32, max int) (PollResult, error) {
	var res PollResult
	for i := 0; i < max; i++ {
		v, err := drv.read(reg)
		if err != nil {
			return res, err
		}
		res.Last = v
		if v&mask != 0 {
			res.Found = true
			return res, nil
		}
		err = tr.Edge(ctx)
		if err != nil {
			return res, err
		}
	}
	return res, nil
}

// drain reads one byte per clock edge out of the data register while the
// status register reports available data, for at most max edges.
func (drv *Driver) drain(ctx context.Context, tr *host.Transfer, status, data string, max int) ([]byte, error) {
	var out []byte
	for i := 0; i < max; i++ {
		v, err := drv.read(status)
		if err != nil {
			return out, err
		}
		if v&statusHave == 0 {
			break
		}
		v, err = drv.read(data)
		if err != nil {
			return out, err
		}
		out = append(out, byte(v))
		err = tr.Edge(ctx)
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

// collect waits for a packet to show up in the status register and drains
// it.
func (drv *Driver) collect(ctx context.Context, tr *host.Transfer, status, data string, max int) ([]byte, error) {
	_, err := drv.PollUntil(ctx, tr, status, statusHave, drv.budget.Prime)
	if err != nil {
		return nil, err
	}
	return drv.drain(ctx, tr, status, data, max)
}

// splitCRC16 splits the trailing CRC16 off a drained packet and checks it
// against the expected payload.
func splitCRC16(op, kind string, raw, want []byte) error {
	if len(raw) < 2 {
		return host.Validationf(op, len(raw), 2, "data was short (got=%v, expected=%v)", raw, want)
	}
	got, crc := raw[:len(raw)-2], raw[len(raw)-2:]
	if !bytes.Equal(got, want) {
		return host.Validationf(op, got, want, "%s packet not correctly received", kind)
	}
	exp := usb.CRC16(want)
	if crc[0] != exp[0] || crc[1] != exp[1] {
		return host.Validationf(op, crc, exp[:], "CRC16 not valid")
	}
	return nil
}
