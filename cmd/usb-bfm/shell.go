// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/peterh/liner"
	"github.com/urfave/cli/v3"

	"github.com/go-lpc/usbbfm/internal/scenario"
	"github.com/go-lpc/usbbfm/report"
)

func cmdShell() *cli.Command {
	return &cli.Command{
		Name:  "shell",
		Usage: "interactive session against the device core",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			b, closer, err := newBench(cmd)
			if err != nil {
				return err
			}
			defer closer()

			sh := newShell(b, cmd.Root().Writer, cmd.Duration("max-request"))
			return sh.loop(ctx)
		},
	}
}

type shell struct {
	b     *scenario.Bench
	w     io.Writer
	stats *report.Stats
	rec   *report.Recorder

	cmds map[string]shellCmd
}

type shellCmd struct {
	help string
	run  func(ctx context.Context, args []string) error
}

var errQuit = errors.New("quit")

func newShell(b *scenario.Bench, w io.Writer, max time.Duration) *shell {
	sh := &shell{
		b:     b,
		w:     w,
		stats: report.NewStats(100, max),
	}
	sh.rec = report.NewRecorder(b.Clock, sh.stats)
	sh.cmds = map[string]shellCmd{
		"help":       {"print this help", sh.help},
		"quit":       {"leave the shell", func(context.Context, []string) error { return errQuit }},
		"list":       {"list the available scenarios", sh.list},
		"run":        {"run scenarios: run [SCENARIO...]", sh.run},
		"stats":      {"print transfer statistics", sh.summary},
		"regs":       {"list the device core registers", sh.regs},
		"peek":       {"read registers: peek REGISTER...", sh.peek},
		"poke":       {"write a register: poke REGISTER VALUE", sh.poke},
		"reset":      {"reset the device core", sh.reset},
		"connect":    {"enable the device pull-up", sh.connect},
		"disconnect": {"disable the device pull-up", sh.disconnect},
		"addr":       {"set the device address: addr ADDRESS", sh.addr},
	}
	return sh
}

func (sh *shell) names() []string {
	names := make([]string, 0, len(sh.cmds))
	for name := range sh.cmds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (sh *shell) complete(line string) []string {
	var (
		words = strings.Fields(line)
		cands []string
	)
	switch {
	case len(words) == 0 || (len(words) == 1 && !strings.HasSuffix(line, " ")):
		cands = sh.names()
	case words[0] == "run":
		cands = scenario.Names()
	case words[0] == "peek" || words[0] == "poke":
		cands = sh.b.Regs.Map().Names()
	default:
		return nil
	}

	var (
		prefix = line
		last   = ""
	)
	if !strings.HasSuffix(line, " ") && len(words) > 0 {
		last = words[len(words)-1]
		prefix = line[:len(line)-len(last)]
	}

	var o []string
	for _, c := range cands {
		if strings.HasPrefix(c, last) {
			o = append(o, prefix+c)
		}
	}
	return o
}

func (sh *shell) loop(ctx context.Context) error {
	term := liner.NewLiner()
	defer term.Close()

	term.SetCtrlCAborts(true)
	term.SetCompleter(sh.complete)

	for {
		line, err := term.Prompt("usb-bfm> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("could not read command: %w", err)
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		term.AppendHistory(line)

		err = sh.exec(ctx, line)
		switch {
		case errors.Is(err, errQuit):
			return nil
		case err != nil:
			fmt.Fprintf(sh.w, "error: %+v\n", err)
		}
	}
}

func (sh *shell) exec(ctx context.Context, line string) error {
	words := strings.Fields(line)
	if len(words) == 0 {
		return nil
	}
	cmd, ok := sh.cmds[words[0]]
	if !ok {
		return fmt.Errorf("unknown command %q", words[0])
	}
	return cmd.run(ctx, words[1:])
}

func (sh *shell) help(ctx context.Context, args []string) error {
	for _, name := range sh.names() {
		fmt.Fprintf(sh.w, "%-12s %s\n", name, sh.cmds[name].help)
	}
	return nil
}

func (sh *shell) list(ctx context.Context, args []string) error {
	for _, name := range scenario.Names() {
		sc, _ := scenario.Lookup(name)
		fmt.Fprintf(sh.w, "%-12s %s\n", name, sc.Doc)
	}
	return nil
}

func (sh *shell) run(ctx context.Context, args []string) error {
	n := len(sh.rec.Records())
	err := scenario.Run(ctx, sh.b, sh.rec, args...)
	for _, rec := range sh.rec.Records()[n:] {
		fmt.Fprintf(sh.w, "%v\n", rec)
	}
	return err
}

func (sh *shell) summary(ctx context.Context, args []string) error {
	_, err := sh.stats.WriteTo(sh.w)
	return err
}

func (sh *shell) regs(ctx context.Context, args []string) error {
	m := sh.b.Regs.Map()
	for _, name := range m.Names() {
		addr, _ := m.Addr(name)
		fmt.Fprintf(sh.w, "0x%08x %s\n", addr, name)
	}
	return nil
}

func (sh *shell) peek(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("missing register name")
	}
	for _, name := range args {
		v, err := sh.b.Regs.Read(name)
		if err != nil {
			return fmt.Errorf("could not read %q: %w", name, err)
		}
		fmt.Fprintf(sh.w, "%s = 0x%x\n", name, v)
	}
	return nil
}

func (sh *shell) poke(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("invalid number of arguments (got=%d, want=2)", len(args))
	}
	v, err := strconv.ParseUint(args[1], 0, 32)
	if err != nil {
		return fmt.Errorf("could not parse value %q: %w", args[1], err)
	}
	err = sh.b.Regs.Write(args[0], uint32(v))
	if err != nil {
		return fmt.Errorf("could not write %q: %w", args[0], err)
	}
	return nil
}

func (sh *shell) reset(ctx context.Context, args []string) error {
	return sh.rec.Do(ctx, "shell", "reset", sh.b.Host.Reset)
}

func (sh *shell) connect(ctx context.Context, args []string) error {
	return sh.rec.Do(ctx, "shell", "connect", sh.b.Host.Connect)
}

func (sh *shell) disconnect(ctx context.Context, args []string) error {
	return sh.rec.Do(ctx, "shell", "disconnect", sh.b.Host.Disconnect)
}

func (sh *shell) addr(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("invalid number of arguments (got=%d, want=1)", len(args))
	}
	v, err := strconv.ParseUint(args[0], 0, 7)
	if err != nil {
		return fmt.Errorf("could not parse address %q: %w", args[0], err)
	}
	return sh.rec.Do(ctx, "shell", "set-address", func(ctx context.Context) error {
		return sh.b.Host.SetDeviceAddress(ctx, uint8(v))
	})
}
