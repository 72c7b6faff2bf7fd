package history

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bilgisen/feedcore/internal/logger"
)

// Visit is a single history entry
type Visit struct {
	URL       string
	VisitTime time.Time
}

// Store is the history database the bridge reads from
type Store interface {
	QueryRecentVisits(ctx context.Context, maxCount, dayRange int) ([]Visit, error)
}

// Bridge runs bounded history queries off the caller's goroutine and hands
// the result back on a channel. Exactly one value is always delivered.
type Bridge struct {
	mu       sync.RWMutex
	store    Store
	maxCount int
	dayRange int
}

func NewBridge(store Store, maxCount, dayRange int) *Bridge {
	return &Bridge{
		store:    store,
		maxCount: maxCount,
		dayRange: dayRange,
	}
}

// Detach drops the store; later queries resolve to an empty result
func (b *Bridge) Detach() {
	b.mu.Lock()
	b.store = nil
	b.mu.Unlock()
}

func (b *Bridge) current() Store {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.store
}

// Query starts a lookup of the most recent visits. The returned channel is
// buffered and receives exactly one slice, empty when the store is gone,
// fails, or ctx is cancelled first.
func (b *Bridge) Query(ctx context.Context) <-chan []Visit {
	out := make(chan []Visit, 1)

	go func() {
		store := b.current()
		if store == nil {
			out <- []Visit{}
			return
		}

		visits, err := store.QueryRecentVisits(ctx, b.maxCount, b.dayRange)
		if err != nil {
			logger.Get().Warn().
				Err(err).
				Msg("History query failed, continuing without history")
			out <- []Visit{}
			return
		}
		if visits == nil {
			visits = []Visit{}
		}
		out <- visits
	}()

	return out
}

// Hosts returns the set of hostnames present in visits
func Hosts(visits []Visit) map[string]struct{} {
	hosts := make(map[string]struct{}, len(visits))
	for _, v := range visits {
		if host := Hostname(v.URL); host != "" {
			hosts[host] = struct{}{}
		}
	}
	return hosts
}

// Hostname returns the lower-cased host of rawURL, or "" if it cannot be parsed
func Hostname(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
