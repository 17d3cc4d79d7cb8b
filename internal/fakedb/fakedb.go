// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fakedb holds types to fake an in-memory DB.
package fakedb // import "github.com/go-lpc/usbbfm/internal/fakedb"

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"io"
	"sync"
)

var state struct {
	mu    sync.Mutex
	rows  Rows
	execs []Exec
}

// Run runs f with queries returning rows.
func Run(ctx context.Context, rows Rows, f func(ctx context.Context) error) error {
	state.mu.Lock()
	state.rows = rows
	state.mu.Unlock()

	return f(ctx)
}

// Exec is a statement executed against the fake DB.
type Exec struct {
	Query string
	Args  []driver.Value
}

// Execs returns the statements executed so far.
func Execs() []Exec {
	state.mu.Lock()
	defer state.mu.Unlock()
	return append([]Exec(nil), state.execs...)
}

// Reset forgets the executed statements.
func Reset() {
	state.mu.Lock()
	defer state.mu.Unlock()
	state.execs = nil
	state.rows = Rows{}
}

func init() {
	sql.Register("fakedb", &Driver{})
}

type Driver struct{}

// Open returns a new connection to the database.
func (drv *Driver) Open(name string) (driver.Conn, error) {
	return &Conn{}, nil
}

type Conn struct{}

// Prepare returns a prepared statement, bound to this connection.
func (c *Conn) Prepare(query string) (driver.Stmt, error) {
	return &Stmt{query: query}, nil
}

func (c *Conn) Close() error {
	return nil
}

func (c *Conn) Begin() (driver.Tx, error) {
	panic("not implemented")
}

type Stmt struct {
	query string
}

func (stmt *Stmt) Close() error {
	return nil
}

// NumInput returns -1: the number of placeholders is not checked.
func (stmt *Stmt) NumInput() int {
	return -1
}

// Exec records the statement and its arguments.
func (stmt *Stmt) Exec(args []driver.Value) (driver.Result, error) {
	state.mu.Lock()
	defer state.mu.Unlock()
	state.execs = append(state.execs, Exec{
		Query: stmt.query,
		Args:  append([]driver.Value(nil), args...),
	})
	return driver.RowsAffected(1), nil
}

// Query returns the rows registered with Run.
func (stmt *Stmt) Query(args []driver.Value) (driver.Rows, error) {
	state.mu.Lock()
	defer state.mu.Unlock()
	rows := state.rows
	return &rows, nil
}

type Rows struct {
	Names  []string
	Values [][]driver.Value
}

func (rows *Rows) Columns() []string {
	return rows.Names
}

func (rows *Rows) Close() error {
	return nil
}

// Next populates dest with the next row, or returns io.EOF.
func (rows *Rows) Next(dest []driver.Value) error {
	if len(rows.Values) == 0 {
		return io.EOF
	}
	copy(dest, rows.Values[0])
	rows.Values = rows.Values[1:]
	return nil
}

var (
	_ driver.Driver = (*Driver)(nil)
	_ driver.Conn   = (*Conn)(nil)
	_ driver.Stmt   = (*Stmt)(nil)
	_ driver.Rows   = (*Rows)(nil)
)
