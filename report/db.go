// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package report

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

var drvName = "mysql"

// DSN returns the data source name of the transfers database dbname
// hosted at addr.
func DSN(usr, pwd, addr, dbname string) string {
	cfg := mysql.NewConfig()
	cfg.User = usr
	cfg.Passwd = pwd
	cfg.Net = "tcp"
	cfg.Addr = addr
	cfg.DBName = dbname
	return cfg.FormatDSN()
}

// DB stores transfer records into a SQL database.
type DB struct {
	db *sql.DB
}

// Open opens a connection to the transfers database.
func Open(dsn string) (*DB, error) {
	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, fmt.Errorf("report: could not open db: %w", err)
	}

	err = ping(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &DB{db: db}, nil
}

func ping(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("report: could not ping db: %w", err)
	}

	return nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

// Insert stores a record.
func (db *DB) Insert(ctx context.Context, rec Record) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := db.db.ExecContext(
		ctx,
		"INSERT INTO transfers (name, kind, start, duration, status, error) VALUES (?, ?, ?, ?, ?, ?)",
		rec.Name, rec.Kind,
		int64(rec.Start), int64(rec.Duration),
		rec.Status.String(), rec.Err,
	)
	if err != nil {
		return fmt.Errorf("report: could not insert record %s/%s: %w", rec.Name, rec.Kind, err)
	}
	return nil
}

// Records retrieves the records of the named scenario.
func (db *DB) Records(ctx context.Context, name string) ([]Record, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := db.db.QueryContext(
		ctx,
		"SELECT name, kind, start, duration, status, error FROM transfers WHERE name=? ORDER BY start",
		name,
	)
	if err != nil {
		return nil, fmt.Errorf("report: could not query records of %q: %w", name, err)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var (
			rec    Record
			start  int64
			dur    int64
			status string
		)
		err = rows.Scan(&rec.Name, &rec.Kind, &start, &dur, &status, &rec.Err)
		if err != nil {
			return recs, fmt.Errorf("report: could not scan row %d of %q: %w", len(recs), name, err)
		}
		rec.Start = time.Duration(start)
		rec.Duration = time.Duration(dur)
		rec.Status, err = parseStatus(status)
		if err != nil {
			return recs, fmt.Errorf("report: could not parse row %d of %q: %w", len(recs), name, err)
		}
		recs = append(recs, rec)
	}

	if err := rows.Err(); err != nil {
		return recs, fmt.Errorf("report: could not scan db for %q: %w", name, err)
	}

	if err := ctx.Err(); err != nil {
		return recs, fmt.Errorf("report: context error while retrieving %q: %w", name, err)
	}

	return recs, nil
}

func parseStatus(s string) (Status, error) {
	for st := StatusOK; st < nStatus; st++ {
		if st.String() == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("invalid status %q", s)
}
