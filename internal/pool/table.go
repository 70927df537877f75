// Package pool holds the in-memory working copy of one shard: a set of pools
// keyed by their integer id, each carrying its values and a flag recording
// whether those values are currently in ascending order.
//
// A Table is not safe for concurrent use. It is owned by whoever holds the
// shard lock for the duration of a single command.
package pool

import (
	"cmp"
	"errors"
	"fmt"

	"golang.org/x/exp/slices"
)

var (
	// ErrKeyNotFound is returned by Append and SortIfNeeded when the pool
	// does not exist. Callers are expected to check Has first, so seeing
	// this error means the orchestration is broken.
	ErrKeyNotFound = errors.New("pool: key not found")

	// ErrKeyExists is returned by Insert when the pool already exists.
	ErrKeyExists = errors.New("pool: key already exists")

	// ErrEmptyPool is returned when a pool would be created without values.
	ErrEmptyPool = errors.New("pool: no values")
)

// Row is one pool as stored in a shard.
type Row struct {
	Values []float64 // Insertion order until sorted
	Key    int64     // Pool key, unique across the store
	Sorted bool      // True iff Values is in non-decreasing order
}

// Table is the row set of a single shard.
type Table struct {
	index map[int64]int // key -> position in rows
	rows  []Row         // insertion order
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{index: make(map[int64]int)}
}

// Restore builds a table from persisted rows, keeping their sorted flags as
// they were stored. Duplicate keys and empty rows are rejected.
func Restore(rows []Row) (*Table, error) {
	t := &Table{
		index: make(map[int64]int, len(rows)),
		rows:  make([]Row, 0, len(rows)),
	}
	for _, r := range rows {
		if _, ok := t.index[r.Key]; ok {
			return nil, fmt.Errorf("%w: %d", ErrKeyExists, r.Key)
		}
		if len(r.Values) == 0 {
			return nil, fmt.Errorf("%w: %d", ErrEmptyPool, r.Key)
		}
		t.index[r.Key] = len(t.rows)
		t.rows = append(t.rows, Row{Key: r.Key, Values: slices.Clone(r.Values), Sorted: r.Sorted})
	}
	return t, nil
}

// Len returns the number of pools in the table.
func (t *Table) Len() int {
	return len(t.rows)
}

// Has reports whether the pool exists.
func (t *Table) Has(key int64) bool {
	_, ok := t.index[key]
	return ok
}

// Row returns a copy of the pool's row.
func (t *Table) Row(key int64) (Row, bool) {
	i, ok := t.index[key]
	if !ok {
		return Row{}, false
	}
	r := t.rows[i]
	r.Values = slices.Clone(r.Values)
	return r, true
}

// Rows returns copies of all rows in insertion order.
func (t *Table) Rows() []Row {
	out := make([]Row, len(t.rows))
	for i, r := range t.rows {
		r.Values = slices.Clone(r.Values)
		out[i] = r
	}
	return out
}

// Insert creates a new pool. A single value is trivially sorted; anything
// longer starts unsorted.
func (t *Table) Insert(key int64, values []float64) error {
	if t.Has(key) {
		return fmt.Errorf("%w: %d", ErrKeyExists, key)
	}
	if len(values) == 0 {
		return fmt.Errorf("%w: %d", ErrEmptyPool, key)
	}
	t.index[key] = len(t.rows)
	t.rows = append(t.rows, Row{
		Key:    key,
		Values: slices.Clone(values),
		Sorted: len(values) == 1,
	})
	return nil
}

// Append adds values after the existing ones, in the order given. The pool
// is marked unsorted even if the result happens to still be in order.
func (t *Table) Append(key int64, values []float64) error {
	i, ok := t.index[key]
	if !ok {
		return fmt.Errorf("%w: %d", ErrKeyNotFound, key)
	}
	r := &t.rows[i]
	r.Values = append(r.Values, values...)
	r.Sorted = false
	return nil
}

// SortIfNeeded returns the pool's values in ascending order. If the pool was
// already sorted nothing changes and changed is false. The returned slice
// is the table's own storage and must not be modified.
func (t *Table) SortIfNeeded(key int64) (values []float64, changed bool, err error) {
	i, ok := t.index[key]
	if !ok {
		return nil, false, fmt.Errorf("%w: %d", ErrKeyNotFound, key)
	}
	r := &t.rows[i]
	if r.Sorted {
		return r.Values, false, nil
	}
	// Stable so equal values (0 and -0) keep their relative order.
	slices.SortStableFunc(r.Values, cmp.Compare[float64])
	r.Sorted = true
	return r.Values, true, nil
}
