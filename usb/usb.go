// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package usb holds the USB 2.0 protocol vocabulary used by the bus-functional
// model: endpoint addresses, packet identifiers, handshake responses,
// SETUP packets and the byte-level encoding of token, data and handshake
// packets.
package usb // import "github.com/go-lpc/usbbfm/usb"
