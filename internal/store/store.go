// Package store is the data access layer for tasks, items and tags.
// Everything goes through the serialized store: writes return before they
// are applied, and a read issued afterwards from the same goroutine sees them.
package store

import (
	"errors"

	"github.com/archoctopus/archoctopus-go/internal/sqlstore"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Store provides all functions to interact with the database.
type Store struct {
	sql *sqlstore.Store
}

// New creates a new Store on top of the serialized executor.
func New(s *sqlstore.Store) *Store {
	return &Store{sql: s}
}

// SQL exposes the underlying executor.
func (s *Store) SQL() *sqlstore.Store {
	return s.sql
}

// Flush waits until all previously issued writes are applied.
func (s *Store) Flush() {
	s.sql.Flush()
}

// Ping reports whether the executor still answers queries.
func (s *Store) Ping() error {
	if _, ok := s.sql.SelectOne("SELECT 1"); !ok {
		return errors.New("database executor is not responding")
	}
	return nil
}
