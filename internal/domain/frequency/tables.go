package frequency

import (
	"sort"
	"sync"

	"github.com/ehr/coderecon/internal/domain/coding"
)

// SystemCounts tallies how many codings of each coding system appear per
// category, e.g. the share of SNOMED versus LOINC codes among Conditions.
type SystemCounts struct {
	mu     sync.Mutex
	counts map[string]map[string]int
}

// NewSystemCounts returns an empty tally.
func NewSystemCounts() *SystemCounts {
	return &SystemCounts{counts: make(map[string]map[string]int)}
}

// Add records one coding of system in category.
func (s *SystemCounts) Add(category, system string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.counts[category]
	if !ok {
		m = make(map[string]int)
		s.counts[category] = m
	}
	m[system]++
}

// For returns the system tallies of category, most common first.
func (s *SystemCounts) For(category string) []Count {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sorted(s.counts[category])
}

// Categories returns the categories seen, sorted.
func (s *SystemCounts) Categories() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.counts))
	for k := range s.counts {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Row is one line of a coding table.
type Row struct {
	System  string `json:"system"`
	Code    string `json:"code"`
	Display string `json:"display"`
	Count   int    `json:"count"`
}

type rowKey struct {
	system string
	code   string
}

// CodingTable counts raw codings per category and keeps one display text
// for each (system, code). A present display beats an absent one; among
// present ones the smallest wins, so the choice does not depend on the
// order codings arrive in.
type CodingTable struct {
	mu      sync.Mutex
	counts  map[string]map[rowKey]int
	display map[rowKey]string
}

// NewCodingTable returns an empty table.
func NewCodingTable() *CodingTable {
	return &CodingTable{
		counts:  make(map[string]map[rowKey]int),
		display: make(map[rowKey]string),
	}
}

// Add records one coding in category.
func (t *CodingTable) Add(category, system, code, display string) {
	k := rowKey{system: system, code: code}
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.counts[category]
	if !ok {
		m = make(map[rowKey]int)
		t.counts[category] = m
	}
	m[k]++
	if cur, ok := t.display[k]; !ok || preferDisplay(display, cur) {
		t.display[k] = display
	}
}

func preferDisplay(candidate, current string) bool {
	if hasDisplay(candidate) != hasDisplay(current) {
		return hasDisplay(candidate)
	}
	return candidate < current
}

func hasDisplay(d string) bool {
	return d != "" && d != coding.Absent
}

// Rows returns the rows of category, most common first.
func (t *CodingTable) Rows(category string) []Row {
	t.mu.Lock()
	defer t.mu.Unlock()
	m := t.counts[category]
	out := make([]Row, 0, len(m))
	for k, n := range m {
		out = append(out, Row{System: k.system, Code: k.code, Display: t.display[k], Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		if out[i].System != out[j].System {
			return out[i].System < out[j].System
		}
		return out[i].Code < out[j].Code
	})
	return out
}
