package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyResult marks a successful response that carried no records.
	ErrEmptyResult = errors.New("no data for requested range")
	// ErrEmptyJoin marks a join that produced zero rows.
	ErrEmptyJoin = errors.New("join produced no rows")
)

// FetchError is a non-success provider response or an expired deadline.
type FetchError struct {
	Endpoint string
	Status   int
	Timeout  bool
	Err      error
}

func (e *FetchError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("fetch %s: deadline exceeded", e.Endpoint)
	case e.Status != 0:
		return fmt.Sprintf("fetch %s: status %d", e.Endpoint, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("fetch %s: %v", e.Endpoint, e.Err)
	default:
		return fmt.Sprintf("fetch %s: failed", e.Endpoint)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// RecordShapeError is a single provider result missing an expected field.
type RecordShapeError struct {
	Ticker string
	Index  int
	Field  string
}

func (e *RecordShapeError) Error() string {
	return fmt.Sprintf("%s result %d: missing or invalid field %q", e.Ticker, e.Index, e.Field)
}

// StrategyColumnError reports a table lacking columns a strategy requires.
type StrategyColumnError struct {
	Strategy string
	Table    string
	Missing  []string
}

func (e *StrategyColumnError) Error() string {
	return fmt.Sprintf("strategy %s skipped for %s: missing columns %s",
		e.Strategy, e.Table, strings.Join(e.Missing, ", "))
}

// StorageError means a database could not be opened or prepared at all.
type StorageError struct {
	Database string
	Err      error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Database, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
