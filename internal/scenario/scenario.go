// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scenario

import (
	"context"
	"fmt"
	"sort"

	"github.com/go-lpc/usbbfm/report"
	"github.com/go-lpc/usbbfm/usb"
)

// Scenario is a named sequence of transfers.
type Scenario struct {
	Name string
	Doc  string
	Run  func(ctx context.Context, b *Bench, rec *report.Recorder) error
}

var scenarios = map[string]Scenario{}

func register(sc Scenario) {
	if _, dup := scenarios[sc.Name]; dup {
		panic(fmt.Errorf("scenario: duplicate scenario %q", sc.Name))
	}
	scenarios[sc.Name] = sc
}

// Names returns the names of the built-in scenarios, sorted.
func Names() []string {
	names := make([]string, 0, len(scenarios))
	for name := range scenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the named scenario.
func Lookup(name string) (Scenario, bool) {
	sc, ok := scenarios[name]
	return sc, ok
}

// Run resets and connects the device of the bench and runs the named
// scenarios, or all of them when names is empty.
// Run stops at the first failing scenario.
func Run(ctx context.Context, b *Bench, rec *report.Recorder, names ...string) error {
	if len(names) == 0 {
		names = Names()
	}
	for _, name := range names {
		sc, ok := Lookup(name)
		if !ok {
			return fmt.Errorf("scenario: unknown scenario %q", name)
		}

		err := rec.Do(ctx, name, "reset", func(ctx context.Context) error {
			err := b.Host.Reset(ctx)
			if err != nil {
				return err
			}
			return b.Host.Connect(ctx)
		})
		if err != nil {
			return fmt.Errorf("scenario: could not reset device for %q: %w", name, err)
		}

		err = sc.Run(ctx, b, rec)
		if err != nil {
			return fmt.Errorf("scenario: %q failed: %w", name, err)
		}
	}
	return nil
}

// Device descriptor answered during enumeration.
var deviceDesc = []byte{
	0x12, 0x01, 0x00, 0x02, 0x00, 0x00, 0x00, 0x40,
	0x09, 0x12, 0xf0, 0x5b, 0x01, 0x01, 0x01, 0x02,
	0x00, 0x01,
}

// Configuration descriptor header answered during enumeration.
var configDesc = []byte{
	0x09, 0x02, 0x20, 0x00, 0x01, 0x01, 0x00, 0x80, 0x32,
}

func payload(n int) []byte {
	o := make([]byte, n)
	for i := range o {
		o[i] = byte(i)
	}
	return o
}

func init() {
	register(Scenario{
		Name: "enumerate",
		Doc:  "standard enumeration: descriptors, address and configuration",
		Run: func(ctx context.Context, b *Bench, rec *report.Recorder) error {
			h := b.Host
			err := rec.Do(ctx, "enumerate", "get-device-descriptor", func(ctx context.Context) error {
				return h.GetDescriptor(ctx, usb.DescDevice, 0, deviceDesc)
			})
			if err != nil {
				return err
			}
			err = rec.Do(ctx, "enumerate", "set-address", func(ctx context.Context) error {
				return h.SetAddress(ctx, 5)
			})
			if err != nil {
				return err
			}
			err = rec.Do(ctx, "enumerate", "get-config-descriptor", func(ctx context.Context) error {
				return h.GetDescriptor(ctx, usb.DescConfiguration, 0, configDesc)
			})
			if err != nil {
				return err
			}
			return rec.Do(ctx, "enumerate", "set-configuration", func(ctx context.Context) error {
				return h.SetConfiguration(ctx, 1)
			})
		},
	})

	register(Scenario{
		Name: "control-out",
		Doc:  "vendor request with a multi-packet OUT data stage",
		Run: func(ctx context.Context, b *Bench, rec *report.Recorder) error {
			data := payload(130)
			req := usb.SetupPacket{
				RequestType: usb.RequestTypeVendor,
				Request:     0x01,
				Length:      uint16(len(data)),
			}
			return rec.Do(ctx, "control-out", "control-out", func(ctx context.Context) error {
				return b.Host.ControlTransferOut(ctx, b.Host.Address(), req.Bytes(), data)
			})
		},
	})

	register(Scenario{
		Name: "bulk",
		Doc:  "bulk OUT and IN transfers on endpoints 2 and 1",
		Run: func(ctx context.Context, b *Bench, rec *report.Recorder) error {
			var (
				out    = usb.EndpointAddr(2, usb.DirOut)
				in     = usb.EndpointAddr(1, usb.DirIn)
				toggle = usb.DATA0
			)
			err := rec.Do(ctx, "bulk", "bulk-out", func(ctx context.Context) error {
				var err error
				toggle, err = b.Host.BulkOut(ctx, b.Host.Address(), out, payload(200), toggle)
				return err
			})
			if err != nil {
				return err
			}
			return rec.Do(ctx, "bulk", "bulk-in", func(ctx context.Context) error {
				_, err := b.Host.BulkIn(ctx, b.Host.Address(), in, payload(100), usb.DATA0)
				return err
			})
		},
	})

	register(Scenario{
		Name: "handshakes",
		Doc:  "OUT transactions answered with NAK and STALL",
		Run: func(ctx context.Context, b *Bench, rec *report.Recorder) error {
			ep := usb.EndpointAddr(1, usb.DirOut)
			for _, pid := range []usb.PID{usb.NAK, usb.STALL} {
				err := rec.Do(ctx, "handshakes", "data-out-"+pid.String(), func(ctx context.Context) error {
					tr := b.Host.NewTransfer()
					return b.Driver.TransactionDataOut(ctx, tr, b.Host.Address(), ep, payload(8), b.Host.ChunkSize(), pid)
				})
				if err != nil {
					return err
				}
			}
			return rec.Do(ctx, "handshakes", "clear", func(ctx context.Context) error {
				return b.Driver.ClearPending(ctx, ep)
			})
		},
	})
}
