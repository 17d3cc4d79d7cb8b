// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package host

import (
	"time"

	"github.com/go-lpc/usbbfm/sim"
)

const (
	// DefaultMaxPacketTime bounds a single packet exchange.
	DefaultMaxPacketTime = 2 * time.Millisecond
	// DefaultMaxRequestTime bounds a whole control transfer.
	DefaultMaxRequestTime = 50 * time.Millisecond
	// DefaultChunkSize is the maximum packet size of the default pipe.
	DefaultChunkSize = 64
)

type config struct {
	clk        *sim.Clock
	msg        Logger
	maxPacket  time.Duration
	maxRequest time.Duration
	chunk      int
}

func newConfig() config {
	return config{
		msg:        Discard,
		maxPacket:  DefaultMaxPacketTime,
		maxRequest: DefaultMaxRequestTime,
		chunk:      DefaultChunkSize,
	}
}

// Option configures a Host.
type Option func(*config)

// WithClock sets the simulated clock transfers tick with.
func WithClock(clk *sim.Clock) Option {
	return func(cfg *config) {
		cfg.clk = clk
	}
}

// WithLogger sets the message stream of the host.
func WithLogger(msg Logger) Option {
	return func(cfg *config) {
		if msg == nil {
			msg = Discard
		}
		cfg.msg = msg
	}
}

// WithMaxPacketTime sets the budget of a single packet exchange.
func WithMaxPacketTime(d time.Duration) Option {
	return func(cfg *config) {
		cfg.maxPacket = d
	}
}

// WithMaxRequestTime sets the budget of a whole transfer.
func WithMaxRequestTime(d time.Duration) Option {
	return func(cfg *config) {
		cfg.maxRequest = d
	}
}

// WithChunkSize sets the maximum size of a data packet.
func WithChunkSize(n int) Option {
	return func(cfg *config) {
		cfg.chunk = n
	}
}
