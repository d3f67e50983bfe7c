package vocabulary

import (
	"sort"
	"sync"
)

// Catalog answers concept lookups across an ordered list of tables. The
// first table holding a non-empty row for an id wins. A Catalog is
// read-only after construction and safe for concurrent use.
type Catalog struct {
	tables []ConceptTable

	mu      sync.RWMutex
	cache   map[string]LookupResult
	missing map[string]struct{}
}

// NewCatalog creates a catalog probing tables in the given order.
func NewCatalog(tables ...ConceptTable) *Catalog {
	return &Catalog{
		tables:  tables,
		cache:   make(map[string]LookupResult),
		missing: make(map[string]struct{}),
	}
}

// Tables returns the names of the searched tables in priority order.
func (c *Catalog) Tables() []string {
	names := make([]string, len(c.tables))
	for i, t := range c.tables {
		names[i] = t.Name()
	}
	return names
}

// Lookup resolves a concept id. A miss yields StatusNotFound, not an error.
func (c *Catalog) Lookup(id string) LookupResult {
	c.mu.RLock()
	res, ok := c.cache[id]
	c.mu.RUnlock()
	if ok {
		return res
	}

	res = c.resolve(id)

	c.mu.Lock()
	c.cache[id] = res
	c.mu.Unlock()
	return res
}

func (c *Catalog) resolve(id string) LookupResult {
	for _, t := range c.tables {
		concept, ok := t.Lookup(id)
		if !ok || concept == nil || *concept == (Concept{}) {
			continue
		}
		status := StatusFound
		if !concept.HasVocabulary() {
			status = StatusNoVocabulary
		}
		return LookupResult{Concept: concept, Table: t.Name(), Status: status}
	}
	return LookupResult{Status: StatusNotFound}
}

// LookupCode is the reverse lookup by (code, vocabulary), probing tables in
// the same priority order. It is not memoized.
func (c *Catalog) LookupCode(code, vocabulary string) (*Concept, bool) {
	for _, t := range c.tables {
		if concept, ok := t.LookupCode(code, vocabulary); ok && concept != nil {
			return concept, true
		}
	}
	return nil, false
}

// SourceCode returns the concept code for id. Misses are remembered and
// reported by Missing.
func (c *Catalog) SourceCode(id string) (string, bool) {
	res := c.Lookup(id)
	if res.Status == StatusNotFound {
		c.mu.Lock()
		c.missing[id] = struct{}{}
		c.mu.Unlock()
		return "", false
	}
	return res.Concept.Code, true
}

// VocabularyID returns the vocabulary of id, if the concept has one.
func (c *Catalog) VocabularyID(id string) (string, bool) {
	res := c.Lookup(id)
	if res.Status != StatusFound {
		return "", false
	}
	return res.Concept.Vocabulary, true
}

// Name returns the display name of id.
func (c *Catalog) Name(id string) (string, bool) {
	res := c.Lookup(id)
	if res.Status == StatusNotFound {
		return "", false
	}
	return res.Concept.Name, true
}

// Missing returns the concept ids SourceCode could not resolve, sorted.
func (c *Catalog) Missing() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.missing))
	for id := range c.missing {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Pair is a (vocabulary, code) pair resolved from a concept id column.
// Vocabulary is NoVocabulary when the concept has none; both fields are
// empty when the id was not found.
type Pair struct {
	Column     string
	Vocabulary string
	Code       string
	Display    string
	Status     Status
}

// ToCoding resolves the concept id columns of an OMOP row. Columns absent
// from the row are skipped; order follows columns.
func (c *Catalog) ToCoding(row map[string]string, columns []string) []Pair {
	var out []Pair
	for _, col := range columns {
		id, ok := row[col]
		if !ok {
			continue
		}
		res := c.Lookup(id)
		p := Pair{Column: col, Status: res.Status}
		switch res.Status {
		case StatusFound:
			p.Vocabulary = res.Concept.Vocabulary
			p.Code = res.Concept.Code
			p.Display = res.Concept.Name
		case StatusNoVocabulary:
			p.Vocabulary = NoVocabulary
			p.Code = res.Concept.Code
			p.Display = res.Concept.Name
		default:
			c.mu.Lock()
			c.missing[id] = struct{}{}
			c.mu.Unlock()
		}
		out = append(out, p)
	}
	return out
}
