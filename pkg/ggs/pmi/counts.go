package pmi

import "sort"

// Counter maintains window counts for PMI calculation.
type Counter struct {
	N   int64                // number of non-empty windows
	Nx  map[string]int64     // windows containing each entity
	Nxy map[EntityPair]int64 // windows containing each pair
}

// EntityPair is an ordered pair of entity ids (A < B).
type EntityPair struct {
	A, B string
}

// NewPair returns the canonical pair for two ids.
func NewPair(a, b string) EntityPair {
	if a > b {
		a, b = b, a
	}
	return EntityPair{A: a, B: b}
}

// NewCounter creates a new co-occurrence counter.
func NewCounter() *Counter {
	return &Counter{
		Nx:  make(map[string]int64),
		Nxy: make(map[EntityPair]int64),
	}
}

// AddWindow records one window. Duplicate ids are counted once. Empty
// windows are ignored and do not contribute to N.
func (c *Counter) AddWindow(ids []string) {
	unique := dedupe(ids)
	if len(unique) == 0 {
		return
	}
	c.N++
	for _, id := range unique {
		c.Nx[id]++
	}
	for i := 0; i < len(unique); i++ {
		for j := i + 1; j < len(unique); j++ {
			c.Nxy[EntityPair{A: unique[i], B: unique[j]}]++
		}
	}
}

// PairCount returns the joint window count for a pair in either order.
func (c *Counter) PairCount(a, b string) int64 {
	return c.Nxy[NewPair(a, b)]
}

// Count returns the number of windows containing id.
func (c *Counter) Count(id string) int64 {
	return c.Nx[id]
}

// TotalWindows returns the number of non-empty windows seen.
func (c *Counter) TotalWindows() int64 {
	return c.N
}

// Vocabulary returns the number of distinct entities seen.
func (c *Counter) Vocabulary() int {
	return len(c.Nx)
}

// Pairs returns all pairs in (A, B) order.
func (c *Counter) Pairs() []EntityPair {
	out := make([]EntityPair, 0, len(c.Nxy))
	for p := range c.Nxy {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].A != out[j].A {
			return out[i].A < out[j].A
		}
		return out[i].B < out[j].B
	})
	return out
}

func dedupe(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	out := sorted[:1]
	for _, id := range sorted[1:] {
		if id != out[len(out)-1] {
			out = append(out, id)
		}
	}
	return out
}
