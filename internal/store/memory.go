package store

import (
	"context"
	"strconv"
	"sync"

	"github.com/noah-nozomu/gacha-app/internal/models"
)

type memoryTable struct {
	table    models.Table
	revision int64
}

// Memory is an in-process TableStore. It backs tests and the demo mode
// where no sheet endpoint or sqlite path is configured.
type Memory struct {
	mu     sync.Mutex
	tables map[string]*memoryTable
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{tables: make(map[string]*memoryTable)}
}

// Seed replaces a table without any version check. Intended for test
// setup and initial demo data.
func (m *Memory) Seed(table string, t models.Table) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := m.tables[table]
	if entry == nil {
		entry = &memoryTable{}
		m.tables[table] = entry
	}
	entry.table = cloneTable(t)
	entry.revision++
}

func (m *Memory) Read(_ context.Context, table string) (models.Table, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := m.tables[table]
	if entry == nil {
		entry = &memoryTable{}
		m.tables[table] = entry
	}
	return cloneTable(entry.table), strconv.FormatInt(entry.revision, 10), nil
}

func (m *Memory) Write(_ context.Context, table string, t models.Table, version string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := m.tables[table]
	if entry == nil {
		entry = &memoryTable{}
		m.tables[table] = entry
	}
	if version != "" && version != strconv.FormatInt(entry.revision, 10) {
		return ErrVersionConflict
	}
	entry.table = cloneTable(t)
	entry.revision++
	return nil
}

func cloneTable(t models.Table) models.Table {
	clone := models.Table{
		Header:  append([]string(nil), t.Header...),
		Records: make([][]string, 0, len(t.Records)),
	}
	for _, rec := range t.Records {
		clone.Records = append(clone.Records, append([]string(nil), rec...))
	}
	return clone
}
