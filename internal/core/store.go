package core

import (
	"errors"
	"fmt"
)

// Document is a single stored record. Values are one of: nil, string, bool,
// int64, float64, time.Time, []any or a nested Document/map.
type Document map[string]any

// Reserved keys maintained by every DbClient implementation.
const (
	FieldID        = "_id"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
)

var (
	// ErrNotFound is returned by FindOne when no document matches.
	ErrNotFound = errors.New("document not found")
	// ErrDuplicateKey is returned when a unique index rejects a write.
	ErrDuplicateKey = errors.New("duplicate key")
)

// MatchOp selects how a Condition compares a field.
type MatchOp int

const (
	// MatchContains is a case-insensitive literal substring match on string values.
	MatchContains MatchOp = iota
	// MatchEquals is exact equality; numbers compare numerically across int/float.
	MatchEquals
)

func (op MatchOp) String() string {
	switch op {
	case MatchContains:
		return "contains"
	case MatchEquals:
		return "equals"
	default:
		return fmt.Sprintf("MatchOp(%d)", int(op))
	}
}

// Condition is a single field predicate.
type Condition struct {
	Field string
	Op    MatchOp
	Value any
}

// Contains builds a case-insensitive substring condition.
func Contains(field, value string) Condition {
	return Condition{Field: field, Op: MatchContains, Value: value}
}

// Equals builds an exact-match condition.
func Equals(field string, value any) Condition {
	return Condition{Field: field, Op: MatchEquals, Value: value}
}

// Filter ORs its conditions. A filter with no conditions matches every document.
type Filter struct {
	Any []Condition
}

// MatchAll returns the empty filter.
func MatchAll() Filter { return Filter{} }

// Or combines conditions into a filter.
func Or(conds ...Condition) Filter { return Filter{Any: conds} }

// IsEmpty reports whether the filter matches everything.
func (f Filter) IsEmpty() bool { return len(f.Any) == 0 }

// FindOptions tunes Find and FindOne.
type FindOptions struct {
	// NewestFirst orders by last write time, most recent first. Otherwise
	// documents come back in insertion order.
	NewestFirst bool
	Skip        int64
	Limit       int64
}

// IndexSpec describes an index on one or more fields. Text indexes cover
// every listed field as a single combined index.
type IndexSpec struct {
	Name   string
	Fields []string
	Unique bool
	Text   bool
}

// DocumentError is a per-document insert failure.
type DocumentError struct {
	Index int
	Err   error
}

func (e DocumentError) Error() string {
	return fmt.Sprintf("document %d: %v", e.Index, e.Err)
}

// InsertResult reports the outcome of InsertMany.
type InsertResult struct {
	Inserted int
	Failed   []DocumentError
}
