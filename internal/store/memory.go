package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// Memory is the memory backend. Records live only as long as the value.
type Memory struct {
	mu   sync.RWMutex
	recs []TxRecord
}

// NewMemory returns an empty in-memory log.
func NewMemory() *Memory {
	return &Memory{}
}

// Append adds a record.
func (m *Memory) Append(ctx context.Context, rec TxRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if n := len(m.recs); n > 0 && m.recs[n-1].TxID >= rec.TxID {
		return fmt.Errorf("append tx %d: not after tx %d", rec.TxID, m.recs[n-1].TxID)
	}
	rec.Datoms = slices.Clone(rec.Datoms)
	m.recs = append(m.recs, rec)
	return nil
}

// Load returns a copy of every record.
func (m *Memory) Load(ctx context.Context) ([]TxRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := slices.Clone(m.recs)
	if out == nil {
		out = []TxRecord{}
	}
	for i := range out {
		if err := out[i].Verify(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Close is a no-op; the records stay readable until the value is dropped.
func (m *Memory) Close() error {
	return nil
}
