// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package csr

import (
	"fmt"
	"sync"

	"github.com/go-daq/smbus"
)

type smbusConn interface {
	ReadReg(addr, reg uint8) (uint8, error)
	WriteReg(addr, reg, v uint8) error
	Close() error
}

var smbusOpen = func(bus int, addr uint8) (smbusConn, error) {
	conn, err := smbus.Open(bus, addr)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// SMBus gives access to the 8-bit registers of a device core bridged on
// an I2C/SMBus bus, for hardware-in-the-loop runs.
type SMBus struct {
	mu   sync.Mutex
	conn smbusConn
	addr uint8
}

// OpenSMBus opens the I2C bus number bus and targets the bridge at
// slave address addr.
func OpenSMBus(bus int, addr uint8) (*SMBus, error) {
	conn, err := smbusOpen(bus, addr)
	if err != nil {
		return nil, fmt.Errorf("csr: could not open SMBus %d: %w", bus, err)
	}
	return &SMBus{conn: conn, addr: addr}, nil
}

func (dev *SMBus) reg(addr uint32) (uint8, error) {
	if addr > 0xff {
		return 0, fmt.Errorf("csr: address 0x%x out of SMBus register range", addr)
	}
	return uint8(addr), nil
}

func (dev *SMBus) Read(addr uint32) (uint32, error) {
	reg, err := dev.reg(addr)
	if err != nil {
		return 0, err
	}
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if dev.conn == nil {
		return 0, ErrClosed
	}
	v, err := dev.conn.ReadReg(dev.addr, reg)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

func (dev *SMBus) Write(addr, v uint32) error {
	reg, err := dev.reg(addr)
	if err != nil {
		return err
	}
	if v > 0xff {
		return fmt.Errorf("csr: value 0x%x overflows 8-bit register 0x%x", v, addr)
	}
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if dev.conn == nil {
		return ErrClosed
	}
	return dev.conn.WriteReg(dev.addr, reg, uint8(v))
}

func (dev *SMBus) Close() error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if dev.conn == nil {
		return nil
	}
	conn := dev.conn
	dev.conn = nil
	return conn.Close()
}

var _ Bus = (*SMBus)(nil)
