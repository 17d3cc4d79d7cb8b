// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package report

import (
	"fmt"
	"io"
	"math"
	"time"

	"go-hep.org/x/hep/hbook"
)

// Stats accumulates transfer durations, in simulated microseconds.
type Stats struct {
	h *hbook.H1D
	n [nStatus]int
}

// NewStats creates a new histogram of transfer durations with nbins bins
// between 0 and max.
func NewStats(nbins int, max time.Duration) *Stats {
	return &Stats{
		h: hbook.NewH1D(nbins, 0, us(max)),
	}
}

func us(d time.Duration) float64 {
	return float64(d) / float64(time.Microsecond)
}

// Add accumulates the record.
func (s *Stats) Add(rec Record) {
	s.n[rec.Status]++
	if rec.Status != StatusOK {
		return
	}
	s.h.Fill(us(rec.Duration), 1)
}

// Hist returns the histogram of the durations of successful transfers.
func (s *Stats) Hist() *hbook.H1D { return s.h }

// Count returns the number of records with the provided status.
func (s *Stats) Count(st Status) int {
	if st >= nStatus {
		return 0
	}
	return s.n[st]
}

// Mean returns the mean duration of successful transfers.
func (s *Stats) Mean() time.Duration {
	if s.h.Entries() == 0 {
		return 0
	}
	return dur(s.h.XMean())
}

// StdDev returns the standard deviation of the duration of successful
// transfers.
func (s *Stats) StdDev() time.Duration {
	if s.h.Entries() < 2 {
		return 0
	}
	return dur(s.h.XStdDev())
}

func dur(v float64) time.Duration {
	if math.IsNaN(v) {
		return 0
	}
	return time.Duration(v * float64(time.Microsecond))
}

// WriteTo writes a summary of the statistics to w.
func (s *Stats) WriteTo(w io.Writer) (int64, error) {
	var n int64
	o, err := fmt.Fprintf(w, "transfers: %d (mean=%v, stddev=%v)\n",
		s.h.Entries(), s.Mean(), s.StdDev(),
	)
	n += int64(o)
	if err != nil {
		return n, err
	}
	for st := StatusOK; st < nStatus; st++ {
		if s.n[st] == 0 {
			continue
		}
		o, err = fmt.Fprintf(w, "  %-10s %d\n", st.String()+":", s.n[st])
		n += int64(o)
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
