package generic

import (
	"context"
	"fmt"
	"sync"
)

// CachedHolidayProvider memoizes ListHolidaysForEntityAndYear. Concurrent
// callers asking for the same key share one provider call. Errors are not
// cached, so a failed lookup is retried by the next caller.
type CachedHolidayProvider struct {
	next HolidayProvider

	mu      sync.Mutex
	entries map[string]*cacheEntry
}

type cacheEntry struct {
	once     sync.Once
	holidays []Holiday
	err      error
}

func NewCachedHolidayProvider(next HolidayProvider) *CachedHolidayProvider {
	return &CachedHolidayProvider{next: next, entries: make(map[string]*cacheEntry)}
}

func (c *CachedHolidayProvider) ListHolidaysForEntityAndYear(ctx context.Context, locality, entityID string, year int) ([]Holiday, error) {
	k := fmt.Sprintf("%s|%s|%d", locality, entityID, year)

	c.mu.Lock()
	e, ok := c.entries[k]
	if !ok {
		e = &cacheEntry{}
		c.entries[k] = e
	}
	c.mu.Unlock()

	e.once.Do(func() {
		e.holidays, e.err = c.next.ListHolidaysForEntityAndYear(ctx, locality, entityID, year)
	})
	if e.err != nil {
		c.mu.Lock()
		if c.entries[k] == e {
			delete(c.entries, k)
		}
		c.mu.Unlock()
		return nil, e.err
	}

	out := make([]Holiday, len(e.holidays))
	copy(out, e.holidays)
	return out, nil
}

// Len reports how many keys are cached.
func (c *CachedHolidayProvider) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
