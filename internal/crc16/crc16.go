// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package crc16 implements the 16-bit cyclic redundancy check used by USB
// data packets (CRC-16/USB: x^16 + x^15 + x^2 + 1, reflected, initial value
// 0xffff, final value inverted).
package crc16 // import "github.com/go-lpc/usbbfm/internal/crc16"

import (
	"hash"
)

// Size of a CRC-16 checksum in bytes.
const Size = 2

// USB is the reversed representation of the USB CRC-16 polynomial.
const USB = 0xa001

// Table is a 256-word table representing the polynomial for efficient processing.
type Table [256]uint16

var usbTable = MakeTable(USB)

// MakeTable returns a Table constructed from the specified reversed polynomial.
func MakeTable(poly uint16) *Table {
	t := new(Table)
	for i := range t {
		crc := uint16(i)
		for j := 0; j < 8; j++ {
			if crc&1 == 1 {
				crc = (crc >> 1) ^ poly
			} else {
				crc >>= 1
			}
		}
		t[i] = crc
	}
	return t
}

// Hash16 is the common interface implemented by all 16-bit hash functions.
type Hash16 interface {
	hash.Hash
	Sum16() uint16
}

type digest struct {
	crc uint16
	tbl *Table
}

// New creates a new Hash16 computing the CRC-16 checksum using the
// polynomial represented by the Table.
// A nil table selects the USB polynomial.
func New(tbl *Table) Hash16 {
	if tbl == nil {
		tbl = usbTable
	}
	return &digest{crc: 0xffff, tbl: tbl}
}

func (d *digest) Size() int      { return Size }
func (d *digest) BlockSize() int { return 1 }
func (d *digest) Reset()         { d.crc = 0xffff }

func (d *digest) Write(p []byte) (int, error) {
	d.crc = update(d.crc, d.tbl, p)
	return len(p), nil
}

func (d *digest) Sum16() uint16 { return ^d.crc }

func (d *digest) Sum(in []byte) []byte {
	s := d.Sum16()
	return append(in, byte(s>>8), byte(s))
}

func update(crc uint16, tbl *Table, p []byte) uint16 {
	for _, v := range p {
		crc = tbl[byte(crc)^v] ^ (crc >> 8)
	}
	return crc
}

// Checksum returns the USB CRC-16 checksum of p.
func Checksum(p []byte) uint16 {
	return ^update(0xffff, usbTable, p)
}

// Wire returns the USB CRC-16 checksum of p in transmission order
// (least significant byte first).
func Wire(p []byte) [Size]byte {
	crc := Checksum(p)
	return [Size]byte{byte(crc), byte(crc >> 8)}
}

var _ Hash16 = (*digest)(nil)
