// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command usb-bfm runs USB transfer scenarios against a register-mapped
// USB device core.
//
// Usage: usb-bfm [global options] command [options] [args...]
//
// Example:
//
//	$> usb-bfm list
//	$> usb-bfm run enumerate bulk
//	$> usb-bfm --csr ./csr.csv --mmap /dev/shm/usb-regs run
//	$> usb-bfm --csr ./csr.csv --mmap /dev/shm/usb-regs peek usb_address
//	$> usb-bfm shell
package main // import "github.com/go-lpc/usbbfm/cmd/usb-bfm"

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"

	tlog "github.com/go-daq/tdaq/log"
	"github.com/urfave/cli/v3"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/go-lpc/usbbfm"
	"github.com/go-lpc/usbbfm/host"
	"github.com/go-lpc/usbbfm/internal/scenario"
)

func main() {
	log.SetPrefix("usb-bfm: ")
	log.SetFlags(0)

	err := newApp().Run(context.Background(), os.Args)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func newApp() *cli.Command {
	version, _ := usbbfm.Version()
	return &cli.Command{
		Name:    "usb-bfm",
		Usage:   "bus-functional model of a USB host driving a ValentyUSB device core",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "csr",
				Usage: "LiteX csr.csv register map of an external device core",
			},
			&cli.StringFlag{
				Name:  "mmap",
				Usage: "shared-memory register window of an external simulator",
			},
			&cli.StringFlag{
				Name:  "base",
				Usage: "bus address of the register window",
				Value: "0x0",
			},
			&cli.IntFlag{
				Name:  "size",
				Usage: "size in bytes of the register window",
				Value: 0x1000,
			},
			&cli.IntFlag{
				Name:  "smbus",
				Usage: "I2C bus of a hardware register bridge",
				Value: -1,
			},
			&cli.StringFlag{
				Name:  "smbus-addr",
				Usage: "I2C address of the hardware register bridge",
				Value: "0x42",
			},
			&cli.IntFlag{
				Name:  "latency",
				Usage: "packet processing latency of the in-process device model, in clock edges",
			},
			&cli.IntFlag{
				Name:  "chunk",
				Usage: "maximum data packet size",
				Value: host.DefaultChunkSize,
			},
			&cli.DurationFlag{
				Name:  "max-packet",
				Usage: "simulated time budget of a packet exchange",
				Value: host.DefaultMaxPacketTime,
			},
			&cli.DurationFlag{
				Name:  "max-request",
				Usage: "simulated time budget of a transfer",
				Value: host.DefaultMaxRequestTime,
			},
			&cli.StringFlag{
				Name:    "log-file",
				Usage:   "rotated log file of the bus-functional model",
				Sources: cli.EnvVars("USBBFM_LOG"),
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "enable verbose mode",
			},
		},
		Commands: []*cli.Command{
			cmdRun(),
			cmdList(),
			cmdPeek(),
			cmdPoke(),
			cmdShell(),
		},
	}
}

func cmdList() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "list the available scenarios",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			w := cmd.Root().Writer
			for _, name := range scenario.Names() {
				sc, _ := scenario.Lookup(name)
				fmt.Fprintf(w, "%-12s %s\n", name, sc.Doc)
			}
			return nil
		},
	}
}

func cmdPeek() *cli.Command {
	return &cli.Command{
		Name:      "peek",
		Usage:     "read device core registers",
		ArgsUsage: "REGISTER [REGISTER...]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if !cmd.Args().Present() {
				return fmt.Errorf("missing register name")
			}
			b, closer, err := newBench(cmd)
			if err != nil {
				return err
			}
			defer closer()

			w := cmd.Root().Writer
			for _, name := range cmd.Args().Slice() {
				v, err := b.Regs.Read(name)
				if err != nil {
					return fmt.Errorf("could not read %q: %w", name, err)
				}
				fmt.Fprintf(w, "%s = 0x%x\n", name, v)
			}
			return nil
		},
	}
}

func cmdPoke() *cli.Command {
	return &cli.Command{
		Name:      "poke",
		Usage:     "write a device core register",
		ArgsUsage: "REGISTER VALUE",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 2 {
				return fmt.Errorf("invalid number of arguments (got=%d, want=2)", cmd.Args().Len())
			}
			name := cmd.Args().Get(0)
			v, err := strconv.ParseUint(cmd.Args().Get(1), 0, 32)
			if err != nil {
				return fmt.Errorf("could not parse value %q: %w", cmd.Args().Get(1), err)
			}

			b, closer, err := newBench(cmd)
			if err != nil {
				return err
			}
			defer closer()

			err = b.Regs.Write(name, uint32(v))
			if err != nil {
				return fmt.Errorf("could not write %q: %w", name, err)
			}
			return nil
		},
	}
}

// benchConfig creates the bench configuration from the command line.
func benchConfig(cmd *cli.Command, msg host.Logger) (scenario.Config, error) {
	cfg := scenario.DefaultConfig()
	cfg.CSR = cmd.String("csr")
	cfg.MemFile = cmd.String("mmap")
	cfg.Size = int(cmd.Int("size"))
	cfg.SMBus = int(cmd.Int("smbus"))
	cfg.Latency = int(cmd.Int("latency"))
	cfg.Chunk = int(cmd.Int("chunk"))
	cfg.MaxPacket = cmd.Duration("max-packet")
	cfg.MaxRequest = cmd.Duration("max-request")
	cfg.Msg = msg

	base, err := strconv.ParseUint(cmd.String("base"), 0, 32)
	if err != nil {
		return cfg, fmt.Errorf("could not parse register window base: %w", err)
	}
	cfg.Base = uint32(base)

	addr, err := strconv.ParseUint(cmd.String("smbus-addr"), 0, 7)
	if err != nil {
		return cfg, fmt.Errorf("could not parse SMBus address: %w", err)
	}
	cfg.SMBusAddr = uint8(addr)

	return cfg, nil
}

// newLogger creates the message stream of the bus-functional model.
// Messages go to the rotated log file and, in verbose mode, to stderr.
func newLogger(cmd *cli.Command) (host.Logger, func()) {
	var (
		ws   []io.Writer
		done = func() {}
	)
	if fname := cmd.String("log-file"); fname != "" {
		lj := &lumberjack.Logger{
			Filename:   fname,
			MaxSize:    10, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
		}
		ws = append(ws, lj)
		done = func() {
			err := lj.Close()
			if err != nil {
				log.Printf("could not close log file: %+v", err)
			}
		}
	}
	if cmd.Bool("verbose") {
		ws = append(ws, os.Stderr)
	}

	if len(ws) == 0 {
		return host.Discard, done
	}
	return host.NewLogger("usb-bfm", tlog.LvlDebug, io.MultiWriter(ws...)), done
}

// newBench creates the test bench described by the command line.
func newBench(cmd *cli.Command) (*scenario.Bench, func(), error) {
	msg, closeLog := newLogger(cmd)
	cfg, err := benchConfig(cmd, msg)
	if err != nil {
		closeLog()
		return nil, nil, err
	}

	b, err := scenario.New(cfg)
	if err != nil {
		closeLog()
		return nil, nil, err
	}

	return b, func() {
		err := b.Close()
		if err != nil {
			log.Printf("could not close bench: %+v", err)
		}
		closeLog()
	}, nil
}
