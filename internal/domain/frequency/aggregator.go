package frequency

import (
	"sort"
	"sync"
)

// Canonicalizer maps a code identifier to its cluster representative.
type Canonicalizer interface {
	Canonical(code string) string
}

// Count is a tally for one code within a category.
type Count struct {
	Code  string `json:"code"`
	Count int    `json:"count"`
}

// Aggregator tallies (category, canonical code) occurrences. The
// canonicalizer must reflect a finished clustering pass. Aggregator is safe
// for concurrent use.
type Aggregator struct {
	canon Canonicalizer

	mu     sync.Mutex
	counts map[string]map[string]int
}

// NewAggregator creates an aggregator that canonicalizes through canon.
func NewAggregator(canon Canonicalizer) *Aggregator {
	return &Aggregator{canon: canon, counts: make(map[string]map[string]int)}
}

// Add records one occurrence of code in category.
func (a *Aggregator) Add(category, code string) {
	rep := a.canon.Canonical(code)

	a.mu.Lock()
	defer a.mu.Unlock()
	m, ok := a.counts[category]
	if !ok {
		m = make(map[string]int)
		a.counts[category] = m
	}
	m[rep]++
}

// Categories returns the categories seen, sorted.
func (a *Aggregator) Categories() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.counts))
	for k := range a.counts {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Counts returns the tallies for category, most common first.
func (a *Aggregator) Counts(category string) []Count {
	a.mu.Lock()
	defer a.mu.Unlock()
	return sorted(a.counts[category])
}

// Total returns the number of occurrences recorded for category.
func (a *Aggregator) Total(category string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, c := range a.counts[category] {
		n += c
	}
	return n
}

func sorted(m map[string]int) []Count {
	out := make([]Count, 0, len(m))
	for code, n := range m {
		out = append(out, Count{Code: code, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Code < out[j].Code
	})
	return out
}
