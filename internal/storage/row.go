// Package storage is BuildPulse's schema layer: per-entity table
// definitions, row<->record mapping, and the CRUD primitives derived from
// them (insert, select_one, select_all, delete_all, and for upsertable
// entities, upsert).
package storage

// Row wraps a persisted value alongside its assigned database id so
// downstream code can carry foreign keys without a second lookup. Row
// identity is its ID: two Rows with equal ids are the same row regardless
// of whether Value has since diverged in memory. Go's == on a Row compares
// Value too, so identity checks compare ID directly.
type Row[T any] struct {
	ID    int64
	Value T
}

// Less orders rows by id only.
func Less[T any](a, b Row[T]) bool { return a.ID < b.ID }
