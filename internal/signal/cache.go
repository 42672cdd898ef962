package signal

import "sync"

// Cache memoizes moving averages per window length so cost-parameter
// variation in an optimizer batch does not recompute them. A cache is
// scoped to a single series and a single batch; it is injected, never
// shared process-wide.
type Cache struct {
	mu      sync.RWMutex
	windows map[int][]float64
}

// NewCache creates an empty moving-average cache.
func NewCache() *Cache {
	return &Cache{windows: make(map[int][]float64)}
}

// SMA returns the memoized simple moving average for the window,
// computing it on first use. Safe for concurrent workers.
func (c *Cache) SMA(closes []float64, window int) []float64 {
	if c == nil {
		return SMA(closes, window)
	}

	c.mu.RLock()
	ma, ok := c.windows[window]
	c.mu.RUnlock()
	if ok {
		return ma
	}

	ma = SMA(closes, window)

	c.mu.Lock()
	c.windows[window] = ma
	c.mu.Unlock()

	return ma
}
