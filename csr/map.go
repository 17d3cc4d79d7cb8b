// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package csr

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

// Map resolves register names into bus addresses.
type Map struct {
	addrs map[string]uint32
	names map[uint32]string
}

// NewMap creates an empty register map.
func NewMap() *Map {
	return &Map{
		addrs: make(map[string]uint32),
		names: make(map[uint32]string),
	}
}

// Add declares a new register.
func (m *Map) Add(name string, addr uint32) error {
	if name == "" {
		return fmt.Errorf("csr: empty register name")
	}
	if _, dup := m.addrs[name]; dup {
		return fmt.Errorf("csr: duplicate register %q", name)
	}
	if old, dup := m.names[addr]; dup {
		return fmt.Errorf("csr: register %q aliases %q at 0x%x", name, old, addr)
	}
	m.addrs[name] = addr
	m.names[addr] = name
	return nil
}

// Addr returns the address of the named register.
func (m *Map) Addr(name string) (uint32, error) {
	addr, ok := m.addrs[name]
	if !ok {
		return 0, fmt.Errorf("%w %q", ErrUnknown, name)
	}
	return addr, nil
}

// Name returns the name of the register at addr.
func (m *Map) Name(addr uint32) (string, bool) {
	name, ok := m.names[addr]
	return name, ok
}

// Len returns the number of registers in the map.
func (m *Map) Len() int { return len(m.addrs) }

// Names returns the register names, sorted by address.
func (m *Map) Names() []string {
	names := make([]string, 0, len(m.addrs))
	for name := range m.addrs {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return m.addrs[names[i]] < m.addrs[names[j]]
	})
	return names
}

// Load reads a LiteX csr.csv file.
func Load(fname string) (*Map, error) {
	f, err := os.Open(fname)
	if err != nil {
		return nil, fmt.Errorf("csr: could not open CSR file: %w", err)
	}
	defer f.Close()

	m, err := ParseCSV(f)
	if err != nil {
		return nil, fmt.Errorf("csr: could not parse %q: %w", fname, err)
	}
	return m, nil
}

// ParseCSV parses a LiteX csr.csv description.
// Only csr_register lines are retained.
func ParseCSV(r io.Reader) (*Map, error) {
	var (
		m    = NewMap()
		rr   = csv.NewReader(r)
		line = 0
	)
	rr.Comment = '#'
	rr.FieldsPerRecord = -1
	rr.TrimLeadingSpace = true

	for {
		rec, err := rr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("csr: could not read CSV record: %w", err)
		}
		line++
		if len(rec) == 0 || rec[0] != "csr_register" {
			continue
		}
		if len(rec) < 3 {
			return nil, fmt.Errorf("csr: invalid csr_register record %d: %q", line, rec)
		}
		addr, err := strconv.ParseUint(strings.TrimSpace(rec[2]), 0, 32)
		if err != nil {
			return nil, fmt.Errorf("csr: could not parse address of %q: %w", rec[1], err)
		}
		err = m.Add(strings.TrimSpace(rec[1]), uint32(addr))
		if err != nil {
			return nil, err
		}
	}

	if m.Len() == 0 {
		return nil, fmt.Errorf("csr: no csr_register entry")
	}

	return m, nil
}

// WriteCSV writes the map as csr_register lines of a LiteX csr.csv file.
func (m *Map) WriteCSV(w io.Writer) error {
	ww := csv.NewWriter(w)
	for _, name := range m.Names() {
		err := ww.Write([]string{
			"csr_register", name,
			fmt.Sprintf("0x%08x", m.addrs[name]),
			"1", "rw",
		})
		if err != nil {
			return fmt.Errorf("csr: could not write register %q: %w", name, err)
		}
	}
	ww.Flush()
	return ww.Error()
}
