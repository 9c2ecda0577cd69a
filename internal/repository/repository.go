// Package repository contains the hand-written database access layer.
//
// Queries follow the one-method-per-statement convention: each method wraps a
// single SQL statement, takes a params struct when it has more than two
// arguments, and returns row structs that mirror the table shape (sql.Null*
// for nullable columns). Conversion to domain types happens in the service
// layer, never here.
package repository

import (
	"context"
	"database/sql"
)

// DBTX is the subset of *sql.DB / *sql.Tx the queries need.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

// Queries holds the database handle all query methods run against.
type Queries struct {
	db DBTX
}

// New creates a Queries bound to the given database or transaction.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns a Queries bound to the given transaction.
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}
