// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command usb-bfm-sql summarizes the transfer records stored by usb-bfm.
package main // import "github.com/go-lpc/usbbfm/cmd/usb-bfm-sql"

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/go-lpc/usbbfm/host"
	"github.com/go-lpc/usbbfm/internal/scenario"
	"github.com/go-lpc/usbbfm/report"
)

func main() {
	log.SetPrefix("usb-bfm-sql: ")
	log.SetFlags(0)

	var (
		addr = flag.String("addr", os.Getenv("USBBFM_DB_ADDR"), "[ip]:port of the MySQL server")
		usr  = flag.String("user", "usbbfm", "MySQL user name")
		name = flag.String("db", "usbbfm", "MySQL database name")
		max  = flag.Duration("max", host.DefaultMaxRequestTime, "upper edge of the durations histogram")
		all  = flag.Bool("v", false, "print all records")
	)

	flag.Parse()

	names := flag.Args()
	if len(names) == 0 {
		names = scenario.Names()
	}

	db, err := report.Open(report.DSN(*usr, os.Getenv("USBBFM_DB_PASSWORD"), *addr, *name))
	if err != nil {
		log.Fatalf("could not open transfers db: %+v", err)
	}
	defer db.Close()

	err = doQuery(os.Stdout, db, names, *max, *all)
	if err != nil {
		log.Fatalf("could not do query: %+v", err)
	}
}

type recordser interface {
	Records(ctx context.Context, name string) ([]report.Record, error)
}

func doQuery(w io.Writer, db recordser, names []string, max time.Duration, all bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, name := range names {
		recs, err := db.Records(ctx, name)
		if err != nil {
			return fmt.Errorf("could not get records of %q: %w", name, err)
		}

		stats := report.NewStats(100, max)
		for _, rec := range recs {
			stats.Add(rec)
			if all || rec.Status != report.StatusOK {
				fmt.Fprintf(w, "%v\n", rec)
			}
		}

		fmt.Fprintf(w, "scenario %q: %d records\n", name, len(recs))
		_, err = stats.WriteTo(w)
		if err != nil {
			return fmt.Errorf("could not write summary of %q: %w", name, err)
		}
	}

	return nil
}
