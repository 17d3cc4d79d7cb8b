// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package scenario holds the test bench and the built-in transfer
// scenarios run by the usb-bfm commands.
package scenario // import "github.com/go-lpc/usbbfm/internal/scenario"

import (
	"fmt"
	"io"
	"time"

	"github.com/go-lpc/usbbfm/csr"
	"github.com/go-lpc/usbbfm/host"
	"github.com/go-lpc/usbbfm/sim"
	"github.com/go-lpc/usbbfm/sim/usbcore"
	"github.com/go-lpc/usbbfm/valenty"
)

// Config describes how to build a test bench.
type Config struct {
	// CSR is the LiteX csr.csv file describing the register map of an
	// external device core. When empty, the in-process device model is
	// used.
	CSR string

	// MemFile is the shared-memory register window of an external
	// simulator, mapped from Base and Size bytes long.
	MemFile string
	Base    uint32
	Size    int

	// SMBus selects the I2C bus of a hardware bridge, when >= 0.
	SMBus     int
	SMBusAddr uint8

	Latency    int // processing latency of the in-process model, in edges
	Chunk      int
	MaxPacket  time.Duration
	MaxRequest time.Duration

	Msg host.Logger
}

// DefaultConfig returns the configuration of a bench running against the
// in-process device model.
func DefaultConfig() Config {
	return Config{
		SMBus:      -1,
		Size:       0x1000,
		Chunk:      host.DefaultChunkSize,
		MaxPacket:  host.DefaultMaxPacketTime,
		MaxRequest: host.DefaultMaxRequestTime,
		Msg:        host.Discard,
	}
}

// Bench bundles a host with the driver and register bus it runs on.
type Bench struct {
	Clock  *sim.Clock
	Device *usbcore.Device // nil for an external device core
	Bus    *csr.Monitor
	Regs   *csr.Registers
	Driver *valenty.Driver
	Host   *host.Host

	closer io.Closer
}

// New creates a new test bench.
func New(cfg Config) (*Bench, error) {
	if cfg.Msg == nil {
		cfg.Msg = host.Discard
	}

	var (
		b   = &Bench{Clock: sim.NewClock(0)}
		bus csr.Bus
		m   *csr.Map
		err error
	)

	switch {
	case cfg.CSR == "":
		if cfg.MemFile != "" || cfg.SMBus >= 0 {
			return nil, fmt.Errorf("scenario: external register bus requires a CSR map")
		}
		b.Device = usbcore.New(b.Clock, usbcore.WithLatency(cfg.Latency))
		bus = b.Device
		m = b.Device.Map()

	default:
		m, err = csr.Load(cfg.CSR)
		if err != nil {
			return nil, fmt.Errorf("scenario: could not load CSR map: %w", err)
		}
		switch {
		case cfg.MemFile != "":
			mem, err := csr.OpenMemFile(cfg.MemFile, cfg.Base, cfg.Size)
			if err != nil {
				return nil, fmt.Errorf("scenario: could not open register window: %w", err)
			}
			bus = mem
			b.closer = mem
		case cfg.SMBus >= 0:
			dev, err := csr.OpenSMBus(cfg.SMBus, cfg.SMBusAddr)
			if err != nil {
				return nil, fmt.Errorf("scenario: could not open SMBus bridge: %w", err)
			}
			bus = dev
			b.closer = dev
		default:
			return nil, fmt.Errorf("scenario: no register bus for CSR map %q", cfg.CSR)
		}
	}

	b.Bus = csr.NewMonitor(bus)
	b.Regs = csr.NewRegisters(b.Bus, m)
	b.Driver = valenty.New(b.Regs, valenty.WithLogger(cfg.Msg))
	b.Host, err = host.New(b.Driver,
		host.WithClock(b.Clock),
		host.WithLogger(cfg.Msg),
		host.WithChunkSize(cfg.Chunk),
		host.WithMaxPacketTime(cfg.MaxPacket),
		host.WithMaxRequestTime(cfg.MaxRequest),
	)
	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("scenario: could not create host: %w", err)
	}

	return b, nil
}

// Close releases the register bus of the bench.
func (b *Bench) Close() error {
	if b.closer == nil {
		return nil
	}
	err := b.closer.Close()
	b.closer = nil
	return err
}
