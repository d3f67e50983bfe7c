package vocabulary

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ConceptTable is one reference concept extract. Implementations must be
// immutable once built.
type ConceptTable interface {
	Name() string
	Lookup(id string) (*Concept, bool)
	LookupCode(code, vocabulary string) (*Concept, bool)
}

type codeKey struct {
	code       string
	vocabulary string
}

// MemTable is an in-memory ConceptTable.
type MemTable struct {
	name   string
	byID   map[string]*Concept
	byCode map[codeKey]*Concept
}

// NewMemTable builds a table from concepts. Later rows with a duplicate id
// replace earlier ones; rows without an id are ignored.
func NewMemTable(name string, concepts []Concept) *MemTable {
	t := &MemTable{
		name:   name,
		byID:   make(map[string]*Concept, len(concepts)),
		byCode: make(map[codeKey]*Concept, len(concepts)),
	}
	for i := range concepts {
		c := concepts[i]
		if c.ID == "" {
			continue
		}
		t.byID[c.ID] = &c
		if c.Code != "" {
			t.byCode[codeKey{code: c.Code, vocabulary: c.Vocabulary}] = &c
		}
	}
	return t
}

func (t *MemTable) Name() string { return t.name }

// Len returns the number of concepts held.
func (t *MemTable) Len() int { return len(t.byID) }

func (t *MemTable) Lookup(id string) (*Concept, bool) {
	c, ok := t.byID[id]
	return c, ok
}

func (t *MemTable) LookupCode(code, vocabulary string) (*Concept, bool) {
	c, ok := t.byCode[codeKey{code: code, vocabulary: vocabulary}]
	return c, ok
}

// Column names of an OMOP CONCEPT extract.
const (
	ColumnConceptID   = "concept_id"
	ColumnConceptCode = "concept_code"
	ColumnVocabulary  = "vocabulary_id"
	ColumnConceptName = "concept_name"
)

// ErrMissingColumn is returned by LoadDelimited when the header lacks a
// required concept column.
var ErrMissingColumn = errors.New("concept table missing required column")

// LoadTSV reads a tab separated OMOP CONCEPT extract.
func LoadTSV(name string, r io.Reader) (*MemTable, error) {
	return LoadDelimited(name, r, '\t')
}

// LoadDelimited reads a concept extract with a header row. Extra columns are
// ignored.
func LoadDelimited(name string, r io.Reader, delim rune) (*MemTable, error) {
	cr := csv.NewReader(r)
	cr.Comma = delim
	// Concept names in the vocabulary dumps contain stray quotes.
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", name, err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, col := range []string{ColumnConceptID, ColumnConceptCode, ColumnVocabulary} {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("%s: %w: %s", name, ErrMissingColumn, col)
		}
	}

	field := func(rec []string, col string) string {
		i, ok := idx[col]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var concepts []Concept
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		concepts = append(concepts, Concept{
			ID:         field(rec, ColumnConceptID),
			Code:       field(rec, ColumnConceptCode),
			Vocabulary: field(rec, ColumnVocabulary),
			Name:       field(rec, ColumnConceptName),
		})
	}
	return NewMemTable(name, concepts), nil
}
