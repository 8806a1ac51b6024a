// Package store persists per-symbol bar series.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"DataHub/internal/model"
)

// ErrNotFound is wrapped by Load when no series exists for the symbol.
var ErrNotFound = errors.New("series not found")

// ErrInvalidSymbol is returned for symbols that cannot name a series, such as
// ones containing a path separator or "..".
var ErrInvalidSymbol = errors.New("invalid symbol")

// CheckSymbol rejects symbols that would escape or nest below the store root.
func CheckSymbol(symbol string) error {
	if symbol == "" || strings.ContainsAny(symbol, "/\\\x00") || strings.Contains(symbol, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidSymbol, symbol)
	}
	return nil
}

// Store is durable per-symbol storage of a full bar series. Save replaces the
// stored series wholesale.
type Store interface {
	Name() string
	Exists(ctx context.Context, symbol string) (bool, error)
	Load(ctx context.Context, symbol string) (model.Series, error)
	Save(ctx context.Context, symbol string, series model.Series) error
}

// ReadError reports a series that could not be read or decoded.
type ReadError struct {
	Symbol   string
	Location string
	Err      error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read series %s from %s: %v", e.Symbol, e.Location, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// WriteError reports a series that could not be persisted.
type WriteError struct {
	Symbol   string
	Location string
	Err      error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write series %s to %s: %v", e.Symbol, e.Location, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// FilterRange returns the bars of s dated within r, bounds included. The
// result is a fresh slice; s is not modified.
func FilterRange(s model.Series, r model.DateRange) model.Series {
	out := make(model.Series, 0)
	for _, b := range s {
		if r.Contains(b.Date) {
			out = append(out, b)
		}
	}
	return out
}
