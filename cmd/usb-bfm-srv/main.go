// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command usb-bfm-srv starts a TDAQ server running USB transfer scenarios
// against the in-process device core model.
//
// The first argument names the server. The remaining arguments name the
// scenarios to run (all of them by default).
// Each transfer record is published on the /report output.
package main // import "github.com/go-lpc/usbbfm/cmd/usb-bfm-srv"

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/flags"

	"github.com/go-lpc/usbbfm/internal/scenario"
	"github.com/go-lpc/usbbfm/report"
)

func main() {
	cmd := flags.New()

	dev := newBFM(cmd.Args[0], cmd.Args[1:])

	srv := tdaq.New(cmd, os.Stdout)
	srv.CmdHandle("/config", dev.OnConfig)
	srv.CmdHandle("/init", dev.OnInit)
	srv.CmdHandle("/reset", dev.OnReset)
	srv.CmdHandle("/start", dev.OnStart)
	srv.CmdHandle("/stop", dev.OnStop)
	srv.CmdHandle("/quit", dev.OnQuit)

	srv.OutputHandle("/report", dev.report)

	srv.RunHandle(dev.run)

	err := srv.Run(context.Background())
	if err != nil {
		log.Panicf("error: %+v", err)
	}
}

type bfm struct {
	name  string
	names []string
	pause time.Duration

	cfg   scenario.Config
	bench *scenario.Bench
	stats *report.Stats
	rec   *report.Recorder

	n    int // number of scenario iterations
	recs chan []byte
}

func newBFM(name string, names []string) *bfm {
	return &bfm{
		name:  name,
		names: names,
		pause: 100 * time.Millisecond,
		cfg:   scenario.DefaultConfig(),
	}
}

func (dev *bfm) OnConfig(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /config command...")
	for _, name := range dev.names {
		if _, ok := scenario.Lookup(name); !ok {
			return fmt.Errorf("unknown scenario %q", name)
		}
	}
	return nil
}

func (dev *bfm) OnInit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /init command...")
	return dev.setup(ctx)
}

func (dev *bfm) OnReset(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /reset command...")
	return dev.setup(ctx)
}

func (dev *bfm) setup(ctx tdaq.Context) error {
	if dev.bench != nil {
		err := dev.bench.Close()
		if err != nil {
			ctx.Msg.Warnf("could not close bench: %+v", err)
		}
	}

	dev.cfg.Msg = ctx.Msg
	b, err := scenario.New(dev.cfg)
	if err != nil {
		return fmt.Errorf("could not create bench: %w", err)
	}

	dev.bench = b
	dev.stats = report.NewStats(100, dev.cfg.MaxRequest)
	dev.rec = report.NewRecorder(b.Clock, dev.stats)
	dev.recs = make(chan []byte, 1024)
	dev.n = 0

	recs := dev.recs
	dev.rec.Notify(func(rec report.Record) {
		raw, err := rec.MarshalTDAQ()
		if err != nil {
			ctx.Msg.Errorf("could not marshal record %v: %+v", rec, err)
			return
		}
		select {
		case recs <- raw:
		default:
			ctx.Msg.Warnf("report queue full: dropping record %v", rec)
		}
	})
	return nil
}

func (dev *bfm) OnStart(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /start command...")
	if dev.bench == nil {
		return fmt.Errorf("bench not initialized")
	}
	return nil
}

func (dev *bfm) OnStop(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	n := dev.n
	ctx.Msg.Debugf("received /stop command... -> n=%d", n)
	if dev.stats != nil {
		ctx.Msg.Infof(
			"transfers: ok=%d, failures=%d, mean=%v",
			dev.stats.Count(report.StatusOK), dev.rec.Failures(), dev.stats.Mean(),
		)
	}
	return nil
}

func (dev *bfm) OnQuit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /quit command...")
	if dev.bench == nil {
		return nil
	}
	err := dev.bench.Close()
	dev.bench = nil
	return err
}

func (dev *bfm) report(ctx tdaq.Context, dst *tdaq.Frame) error {
	select {
	case <-ctx.Ctx.Done():
		dst.Body = nil
		return nil
	case raw := <-dev.recs:
		dst.Body = raw
	}
	return nil
}

func (dev *bfm) run(ctx tdaq.Context) error {
	for {
		select {
		case <-ctx.Ctx.Done():
			return nil
		default:
			err := scenario.Run(ctx.Ctx, dev.bench, dev.rec, dev.names...)
			switch {
			case err == nil:
				dev.n++
			case ctx.Ctx.Err() != nil:
				return nil
			default:
				ctx.Msg.Errorf("iteration %d: %+v", dev.n, err)
			}
		}
		time.Sleep(dev.pause)
	}
}
