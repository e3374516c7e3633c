package engine

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/koperasi/anomaly-engine/internal/cache"
)

// AlertHistory remembers when each metric last emitted an alert and arbitrates the cooldown.
type AlertHistory interface {
	// TryAcquire records now as the metric's last alert time and returns true, unless the
	// previous alert is younger than cooldown, in which case nothing changes.
	TryAcquire(ctx context.Context, metric string, now time.Time, cooldown time.Duration) (bool, error)
	Last(ctx context.Context, metric string) (time.Time, bool, error)
	Clear(ctx context.Context, metric string) error
}

// MemoryHistory keeps alert times in process.
type MemoryHistory struct {
	mu   sync.Mutex
	last map[string]time.Time
}

// NewMemoryHistory returns an empty history.
func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{last: make(map[string]time.Time)}
}

// TryAcquire implements AlertHistory.
func (h *MemoryHistory) TryAcquire(_ context.Context, metric string, now time.Time, cooldown time.Duration) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if last, ok := h.last[metric]; ok && now.Sub(last) < cooldown {
		return false, nil
	}
	h.last[metric] = now
	return true, nil
}

// Last implements AlertHistory.
func (h *MemoryHistory) Last(_ context.Context, metric string) (time.Time, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	last, ok := h.last[metric]
	return last, ok, nil
}

// Clear implements AlertHistory.
func (h *MemoryHistory) Clear(_ context.Context, metric string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.last, metric)
	return nil
}

// CacheHistory shares the cooldown between engine replicas through a cache provider. The
// cooldown key carries the alert time and expires with the cooldown in force when it was
// written; the last-alert key is kept until cleared. Both are compared against the current
// cooldown, so UpdateConfig takes effect for keys written under the old value.
type CacheHistory struct {
	provider cache.Provider
}

// NewCacheHistory wraps provider. A nil provider falls back to the noop cache, which never
// suppresses.
func NewCacheHistory(provider cache.Provider) *CacheHistory {
	if provider == nil {
		provider = cache.NoopProvider{}
	}
	return &CacheHistory{provider: provider}
}

// TryAcquire implements AlertHistory.
func (h *CacheHistory) TryAcquire(ctx context.Context, metric string, now time.Time, cooldown time.Duration) (bool, error) {
	stamp := []byte(strconv.FormatInt(now.UnixMilli(), 10))
	if cooldown > 0 {
		// A longer cooldown outlives the TTL of keys written before it was raised.
		last, ok, err := h.Last(ctx, metric)
		if err != nil {
			return false, err
		}
		if ok && now.Sub(last) < cooldown {
			return false, nil
		}
		acquired, err := h.acquire(ctx, cooldownKey(metric), stamp, now, cooldown)
		if err != nil || !acquired {
			return false, err
		}
	}
	if err := h.provider.Set(ctx, lastAlertKey(metric), stamp, 0); err != nil {
		return true, err
	}
	return true, nil
}

// acquire claims key for cooldown. A held key older than cooldown was written under a
// longer cooldown; it is dropped and claimed once more.
func (h *CacheHistory) acquire(ctx context.Context, key string, stamp []byte, now time.Time, cooldown time.Duration) (bool, error) {
	ok, err := h.provider.SetNX(ctx, key, stamp, cooldown)
	if err != nil || ok {
		return ok, err
	}

	held, err := h.provider.Get(ctx, key)
	switch {
	case errors.Is(err, cache.ErrCacheMiss):
	case err != nil:
		return false, err
	default:
		at, perr := parseStamp(held)
		if perr == nil && now.Sub(at) < cooldown {
			return false, nil
		}
		if err := h.provider.Del(ctx, key); err != nil {
			return false, err
		}
	}
	return h.provider.SetNX(ctx, key, stamp, cooldown)
}

// Last implements AlertHistory.
func (h *CacheHistory) Last(ctx context.Context, metric string) (time.Time, bool, error) {
	payload, err := h.provider.Get(ctx, lastAlertKey(metric))
	if errors.Is(err, cache.ErrCacheMiss) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	last, err := parseStamp(payload)
	if err != nil {
		return time.Time{}, false, err
	}
	return last, true, nil
}

// Clear implements AlertHistory.
func (h *CacheHistory) Clear(ctx context.Context, metric string) error {
	if err := h.provider.Del(ctx, cooldownKey(metric)); err != nil {
		return err
	}
	return h.provider.Del(ctx, lastAlertKey(metric))
}

func cooldownKey(metric string) string { return "anomaly:cooldown:" + metric }

func lastAlertKey(metric string) string { return "anomaly:last:" + metric }

func parseStamp(payload []byte) (time.Time, error) {
	ms, err := strconv.ParseInt(string(payload), 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}
