// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package report records the outcome and simulated duration of transfers
// run by the bus-functional model.
package report // import "github.com/go-lpc/usbbfm/report"

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-daq/tdaq"

	"github.com/go-lpc/usbbfm/host"
	"github.com/go-lpc/usbbfm/sim"
)

// Status classifies the outcome of a transfer.
type Status uint8

const (
	StatusOK Status = iota
	StatusUsage
	StatusValidation
	StatusTimeout
	StatusTransport
	StatusFailure
	nStatus
)

// StatusOf classifies err.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, host.ErrUsage):
		return StatusUsage
	case errors.Is(err, host.ErrValidation):
		return StatusValidation
	case errors.Is(err, host.ErrTimeout):
		return StatusTimeout
	case errors.Is(err, host.ErrTransport):
		return StatusTransport
	default:
		return StatusFailure
	}
}

func (st Status) String() string {
	switch st {
	case StatusOK:
		return "ok"
	case StatusUsage:
		return "usage"
	case StatusValidation:
		return "validation"
	case StatusTimeout:
		return "timeout"
	case StatusTransport:
		return "transport"
	case StatusFailure:
		return "failure"
	default:
		return fmt.Sprintf("Status(%d)", uint8(st))
	}
}

// Record describes a transfer run by the bus-functional model.
type Record struct {
	Name     string        // scenario name
	Kind     string        // transfer kind (control-in, bulk-out, ...)
	Start    time.Duration // simulated time at the start of the transfer
	Duration time.Duration // simulated duration of the transfer
	Status   Status
	Err      string
}

func (rec Record) String() string {
	o := fmt.Sprintf("%s/%s: %v (start=%v, duration=%v)",
		rec.Name, rec.Kind, rec.Status, rec.Start, rec.Duration,
	)
	if rec.Err != "" {
		o += ": " + rec.Err
	}
	return o
}

// MarshalTDAQ encodes the record into a tdaq frame body.
func (rec Record) MarshalTDAQ() ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := tdaq.NewEncoder(buf)
	enc.WriteStr(rec.Name)
	enc.WriteStr(rec.Kind)
	enc.WriteI64(int64(rec.Start))
	enc.WriteI64(int64(rec.Duration))
	enc.WriteU8(uint8(rec.Status))
	enc.WriteStr(rec.Err)
	return buf.Bytes(), enc.Err()
}

// UnmarshalTDAQ decodes the record from a tdaq frame body.
func (rec *Record) UnmarshalTDAQ(p []byte) error {
	dec := tdaq.NewDecoder(bytes.NewReader(p))
	rec.Name = dec.ReadStr()
	rec.Kind = dec.ReadStr()
	rec.Start = time.Duration(dec.ReadI64())
	rec.Duration = time.Duration(dec.ReadI64())
	rec.Status = Status(dec.ReadU8())
	rec.Err = dec.ReadStr()
	return dec.Err()
}

// Recorder runs transfers and records their outcome.
type Recorder struct {
	clk *sim.Clock

	mu    sync.Mutex
	recs  []Record
	stats *Stats
	sinks []func(Record)
}

// NewRecorder creates a new recorder timing transfers with clk.
func NewRecorder(clk *sim.Clock, stats *Stats) *Recorder {
	return &Recorder{clk: clk, stats: stats}
}

// Notify registers a function called with every new record.
func (r *Recorder) Notify(f func(Record)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks = append(r.sinks, f)
}

// Do runs the transfer f and records its outcome.
// Do returns the error of f.
func (r *Recorder) Do(ctx context.Context, name, kind string, f func(ctx context.Context) error) error {
	start := r.clk.Now()
	err := f(ctx)
	rec := Record{
		Name:     name,
		Kind:     kind,
		Start:    start,
		Duration: r.clk.Now() - start,
		Status:   StatusOf(err),
	}
	if err != nil {
		rec.Err = err.Error()
	}

	r.mu.Lock()
	r.recs = append(r.recs, rec)
	if r.stats != nil {
		r.stats.Add(rec)
	}
	sinks := r.sinks
	r.mu.Unlock()

	for _, sink := range sinks {
		sink(rec)
	}
	return err
}

// Records returns the records collected so far.
func (r *Recorder) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Record(nil), r.recs...)
}

// Failures returns the number of failed transfers.
func (r *Recorder) Failures() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, rec := range r.recs {
		if rec.Status != StatusOK {
			n++
		}
	}
	return n
}
