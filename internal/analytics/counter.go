package analytics

import (
	"cmp"
	"slices"
)

// Counter accumulates non-negative counts per key. The zero value is ready
// to use. Counters are built per query and are not safe for concurrent use.
type Counter[K cmp.Ordered] struct {
	counts map[K]int
}

// NewCounter returns an empty counter.
func NewCounter[K cmp.Ordered]() *Counter[K] {
	return &Counter[K]{counts: make(map[K]int)}
}

// Inc increments the count for key by one.
func (c *Counter[K]) Inc(key K) {
	c.Add(key, 1)
}

// Add increments the count for key by n. Non-positive n is ignored, so counts
// never decrease.
func (c *Counter[K]) Add(key K, n int) {
	if n <= 0 {
		return
	}
	if c.counts == nil {
		c.counts = make(map[K]int)
	}
	c.counts[key] += n
}

// Get returns the count for key, zero when the key was never incremented.
func (c *Counter[K]) Get(key K) int {
	return c.counts[key]
}

// Len returns the number of distinct keys.
func (c *Counter[K]) Len() int {
	return len(c.counts)
}

// Total returns the sum of all counts.
func (c *Counter[K]) Total() int {
	total := 0
	for _, n := range c.counts {
		total += n
	}
	return total
}

// Keys returns the counted keys in ascending order.
func (c *Counter[K]) Keys() []K {
	keys := make([]K, 0, len(c.counts))
	for k := range c.counts {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Map returns a copy of the counts.
func (c *Counter[K]) Map() map[K]int {
	out := make(map[K]int, len(c.counts))
	for k, n := range c.counts {
		out[k] = n
	}
	return out
}
