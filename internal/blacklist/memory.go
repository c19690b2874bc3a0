package blacklist

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/sells-group/supplier-verify/internal/model"
)

type memorySet struct {
	rfcs   map[string]struct{}
	record *model.ImportRecord
}

// MemoryStore is an in-process Store. Readers load the current set through
// an atomic pointer and never block on a replace.
type MemoryStore struct {
	mu      sync.Mutex
	version int64
	current atomic.Pointer[memorySet]
}

// NewMemory returns an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Replace(_ context.Context, snap Snapshot) (*model.ImportRecord, error) {
	if err := snap.validate(); err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(snap.RFCs))
	for _, rfc := range snap.RFCs {
		set[rfc] = struct{}{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.version++
	rec := snap.record(uuid.NewString(), m.version)
	m.current.Store(&memorySet{rfcs: set, record: rec})
	return rec, nil
}

func (m *MemoryStore) Contains(_ context.Context, rfc string) (bool, error) {
	cur := m.current.Load()
	if cur == nil {
		return false, nil
	}
	_, ok := cur.rfcs[model.NormalizeRFC(rfc)]
	return ok, nil
}

func (m *MemoryStore) Count(_ context.Context) (int, error) {
	cur := m.current.Load()
	if cur == nil {
		return 0, nil
	}
	return len(cur.rfcs), nil
}

func (m *MemoryStore) LastImport(_ context.Context) (*model.ImportRecord, error) {
	cur := m.current.Load()
	if cur == nil {
		return nil, nil
	}
	rec := *cur.record
	return &rec, nil
}
