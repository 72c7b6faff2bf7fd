package history

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store
type MemoryStore struct {
	mu     sync.Mutex
	visits []Visit
	now    func() time.Time
}

func NewMemoryStore(visits ...Visit) *MemoryStore {
	return &MemoryStore{visits: visits, now: time.Now}
}

func (m *MemoryStore) Add(visits ...Visit) {
	m.mu.Lock()
	m.visits = append(m.visits, visits...)
	m.mu.Unlock()
}

func (m *MemoryStore) QueryRecentVisits(ctx context.Context, maxCount, dayRange int) ([]Visit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	since := m.now().AddDate(0, 0, -dayRange)
	var out []Visit
	for _, v := range m.visits {
		if v.VisitTime.IsZero() || !v.VisitTime.Before(since) {
			out = append(out, v)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].VisitTime.After(out[j].VisitTime)
	})
	if maxCount > 0 && len(out) > maxCount {
		out = out[:maxCount]
	}
	return out, nil
}
