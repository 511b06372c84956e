package pricing

import "context"

// MemoryStore serves a table held in process, typically loaded from the
// config file.
type MemoryStore struct {
	table Table
}

func NewMemoryStore(table Table) *MemoryStore {
	return &MemoryStore{table: table}
}

func (s *MemoryStore) Table(_ context.Context) (Table, error) {
	return s.table, nil
}
