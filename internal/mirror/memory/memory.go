// Package memory is an in-process mirror used by tests and by local
// setups that run without a remote mirror configured.
package memory

import (
	"context"
	"errors"
	"sync"
)

type Store struct {
	mu     sync.Mutex
	tables map[string]map[string]map[string]any

	// FailNext makes the next call return an error, for retry tests.
	FailNext error
}

func NewStore() *Store {
	return &Store{tables: make(map[string]map[string]map[string]any)}
}

func (s *Store) UpsertRow(ctx context.Context, table string, row map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}
	id, ok := row["id"].(string)
	if !ok || id == "" {
		return errors.New("row has no id")
	}
	if s.tables[table] == nil {
		s.tables[table] = make(map[string]map[string]any)
	}
	s.tables[table][id] = row
	return nil
}

func (s *Store) DeleteRow(ctx context.Context, table, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}
	delete(s.tables[table], id)
	return nil
}

// Row returns a stored row and whether it exists.
func (s *Store) Row(table, id string) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.tables[table][id]
	return row, ok
}

// Count returns the number of rows in a table.
func (s *Store) Count(table string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tables[table])
}

func (s *Store) takeFailure() error {
	if s.FailNext != nil {
		err := s.FailNext
		s.FailNext = nil
		return err
	}
	return nil
}
