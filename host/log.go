// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package host

import (
	"io"
	"os"

	"github.com/go-daq/tdaq/log"
)

// Logger is the message stream used by the bus-functional model.
// It is satisfied by github.com/go-daq/tdaq/log.MsgStream.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// NewLogger creates a new named message stream writing to w.
func NewLogger(name string, lvl log.Level, w io.Writer) Logger {
	if w == nil {
		w = os.Stdout
	}
	return log.NewMsgStream(name, lvl, w)
}

// Discard is a logger dropping all messages.
var Discard Logger = log.NewMsgStream("", log.LvlError, io.Discard)
