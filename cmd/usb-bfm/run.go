// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/sbinet/pmon"
	"github.com/urfave/cli/v3"

	"github.com/go-lpc/usbbfm/internal/scenario"
	"github.com/go-lpc/usbbfm/report"
)

func cmdRun() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "run transfer scenarios (all of them by default)",
		ArgsUsage: "[SCENARIO...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "sim",
				Usage: "simulator command to start before running the scenarios",
			},
			&cli.DurationFlag{
				Name:  "sim-wait",
				Usage: "time to wait for the simulator to come up",
				Value: 2 * time.Second,
			},
			&cli.BoolFlag{
				Name:  "pmon",
				Usage: "enable pmon monitoring of the simulator",
			},
			&cli.DurationFlag{
				Name:  "pmon-freq",
				Usage: "pmon frequency",
				Value: 1 * time.Second,
			},
			&cli.StringFlag{
				Name:    "db-addr",
				Usage:   "[ip]:port of the MySQL server storing transfer records",
				Sources: cli.EnvVars("USBBFM_DB_ADDR"),
			},
			&cli.StringFlag{
				Name:    "db-user",
				Usage:   "MySQL user name",
				Value:   "usbbfm",
				Sources: cli.EnvVars("USBBFM_DB_USER"),
			},
			&cli.StringFlag{
				Name:    "db-pass",
				Usage:   "MySQL password",
				Sources: cli.EnvVars("USBBFM_DB_PASSWORD"),
			},
			&cli.StringFlag{
				Name:  "db-name",
				Usage: "MySQL database name",
				Value: "usbbfm",
			},
			&cli.BoolFlag{
				Name:  "alert",
				Usage: "send a mail alert when a scenario fails",
			},
			&cli.StringFlag{
				Name:    "mail-user",
				Sources: cli.EnvVars("MAIL_USERNAME"),
			},
			&cli.StringFlag{
				Name:    "mail-pass",
				Sources: cli.EnvVars("MAIL_PASSWORD"),
			},
			&cli.StringFlag{
				Name:    "mail-srv",
				Sources: cli.EnvVars("MAIL_SERVER"),
			},
			&cli.IntFlag{
				Name:    "mail-port",
				Sources: cli.EnvVars("MAIL_PORT"),
			},
			&cli.StringFlag{
				Name:    "mail-tgts",
				Usage:   "comma-separated list of alert recipients",
				Sources: cli.EnvVars("MAIL_TGTS"),
			},
		},
		Action: runScenarios,
	}
}

func runScenarios(ctx context.Context, cmd *cli.Command) error {
	if sim := cmd.String("sim"); sim != "" {
		stop, err := startSim(sim, cmd.Bool("pmon"), cmd.Duration("pmon-freq"))
		if err != nil {
			return err
		}
		defer stop()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cmd.Duration("sim-wait")):
		}
	}

	b, closer, err := newBench(cmd)
	if err != nil {
		return err
	}
	defer closer()

	var (
		w     = cmd.Root().Writer
		stats = report.NewStats(100, cmd.Duration("max-request"))
		rec   = report.NewRecorder(b.Clock, stats)
	)

	rec.Notify(func(r report.Record) {
		if r.Status != report.StatusOK {
			fmt.Fprintf(w, "%v\n", r)
		}
	})

	if addr := cmd.String("db-addr"); addr != "" {
		db, err := report.Open(report.DSN(
			cmd.String("db-user"), cmd.String("db-pass"),
			addr, cmd.String("db-name"),
		))
		if err != nil {
			return fmt.Errorf("could not open transfers DB: %w", err)
		}
		defer db.Close()

		rec.Notify(func(r report.Record) {
			err := db.Insert(ctx, r)
			if err != nil {
				log.Printf("%+v", err)
			}
		})
	}

	names := cmd.Args().Slice()
	err = scenario.Run(ctx, b, rec, names...)

	_, werr := stats.WriteTo(w)
	if werr != nil {
		log.Printf("could not write summary: %+v", werr)
	}

	if err != nil && cmd.Bool("alert") {
		a := alerter{
			usr:  cmd.String("mail-user"),
			pwd:  cmd.String("mail-pass"),
			srv:  cmd.String("mail-srv"),
			port: int(cmd.Int("mail-port")),
			tgts: splitList(cmd.String("mail-tgts")),
		}
		a.send(names, rec.Records(), err)
	}

	return err
}

func splitList(s string) []string {
	var o []string
	for _, v := range strings.Split(s, ",") {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		o = append(o, v)
	}
	return o
}

// startSim starts the simulator command line, optionally monitored by pmon.
// The returned function kills the simulator.
func startSim(cmdline string, doMon bool, freq time.Duration) (func(), error) {
	args := strings.Fields(cmdline)
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	name := filepath.Base(cmd.Path)
	log.Printf("starting %q...", name)
	err := cmd.Start()
	if err != nil {
		return nil, fmt.Errorf("could not start simulator %q: %w", name, err)
	}

	unmon := func() {}
	if doMon {
		p, err := pmon.Monitor(cmd.Process.Pid)
		if err != nil {
			_ = cmd.Process.Kill()
			return nil, fmt.Errorf("could not start monitoring %q (pid=%d): %w", name, cmd.Process.Pid, err)
		}
		p.W = os.Stderr
		p.Freq = freq

		go func() {
			err := p.Run()
			if err != nil {
				log.Printf("could not run pmon on %q: %+v", name, err)
			}
		}()

		unmon = func() {
			err := p.Kill()
			if err != nil {
				log.Printf("could not stop monitoring %q: %+v", name, err)
			}
		}
	}

	return func() {
		unmon()
		err := cmd.Process.Kill()
		if err != nil {
			log.Printf("could not kill %q: %+v", name, err)
		}
		// make sure the process is eventually reaped.
		go func() { _ = cmd.Wait() }()
	}, nil
}
