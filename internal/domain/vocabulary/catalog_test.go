package vocabulary

import (
	"errors"
	"strings"
	"testing"
)

func newTestCatalog() *Catalog {
	primary := NewMemTable("CONCEPT", []Concept{
		{ID: "0", Code: "No matching concept", Vocabulary: "None", Name: "No matching concept"},
		{ID: "3004410", Code: "4548-4", Vocabulary: VocabLOINC, Name: "Hemoglobin A1c"},
		{ID: "201826", Code: "44054006", Vocabulary: VocabSNOMED, Name: "Type 2 diabetes mellitus"},
		{ID: "45552385", Code: "E11.9", Vocabulary: VocabICD10CM, Name: "Type 2 diabetes mellitus without complications"},
		{ID: "777", Code: "X", Vocabulary: "", Name: "Unvocabularied"},
	})
	cpt4 := NewMemTable("CONCEPT_CPT4", []Concept{
		{ID: "2108115", Code: "99213", Vocabulary: VocabCPT4, Name: "Office visit"},
		{ID: "201826", Code: "SHADOWED", Vocabulary: VocabCPT4, Name: "never returned"},
	})
	ppi := NewMemTable("CONCEPT_AOUPPI", []Concept{
		{ID: "1585375", Code: "Income_AnnualIncome", Vocabulary: "PPI", Name: "Annual income"},
	})
	return NewCatalog(primary, cpt4, ppi)
}

func TestCatalog_Lookup_PriorityOrder(t *testing.T) {
	c := newTestCatalog()

	res := c.Lookup("201826")
	if res.Status != StatusFound {
		t.Fatalf("expected found, got %s", res.Status)
	}
	if res.Table != "CONCEPT" {
		t.Errorf("expected primary table to win, got %s", res.Table)
	}
	if res.Concept.Code != "44054006" {
		t.Errorf("expected SNOMED code, got %s", res.Concept.Code)
	}
}

func TestCatalog_Lookup_SupplementaryTable(t *testing.T) {
	c := newTestCatalog()

	res := c.Lookup("2108115")
	if res.Status != StatusFound || res.Table != "CONCEPT_CPT4" {
		t.Fatalf("expected CONCEPT_CPT4 hit, got %+v", res)
	}
	res = c.Lookup("1585375")
	if res.Status != StatusFound || res.Concept.Vocabulary != "PPI" {
		t.Fatalf("expected PPI hit, got %+v", res)
	}
}

func TestCatalog_Lookup_ThreeOutcomes(t *testing.T) {
	c := newTestCatalog()

	tests := []struct {
		id   string
		want Status
	}{
		{"3004410", StatusFound},
		{"0", StatusNoVocabulary},
		{"777", StatusNoVocabulary},
		{"999999999", StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			res := c.Lookup(tt.id)
			if res.Status != tt.want {
				t.Errorf("Lookup(%s) = %s, want %s", tt.id, res.Status, tt.want)
			}
			if tt.want == StatusNotFound && res.Concept != nil {
				t.Error("expected nil concept for not-found")
			}
		})
	}
}

func TestCatalog_Lookup_Memoized(t *testing.T) {
	c := newTestCatalog()

	first := c.Lookup("3004410")
	second := c.Lookup("3004410")
	if first.Concept != second.Concept {
		t.Error("expected repeated lookups to return the cached concept")
	}
	if len(c.cache) != 1 {
		t.Errorf("expected 1 cache entry, got %d", len(c.cache))
	}
}

func TestCatalog_LookupCode(t *testing.T) {
	c := newTestCatalog()

	concept, ok := c.LookupCode("99213", VocabCPT4)
	if !ok {
		t.Fatal("expected reverse lookup hit")
	}
	if concept.ID != "2108115" {
		t.Errorf("expected id 2108115, got %s", concept.ID)
	}
	if _, ok := c.LookupCode("99213", VocabLOINC); ok {
		t.Error("expected miss for wrong vocabulary")
	}
}

func TestCatalog_Helpers(t *testing.T) {
	c := newTestCatalog()

	if code, ok := c.SourceCode("45552385"); !ok || code != "E11.9" {
		t.Errorf("SourceCode = %q, %v", code, ok)
	}
	if _, ok := c.SourceCode("42"); ok {
		t.Error("expected SourceCode miss")
	}
	if v, ok := c.VocabularyID("3004410"); !ok || v != VocabLOINC {
		t.Errorf("VocabularyID = %q, %v", v, ok)
	}
	if _, ok := c.VocabularyID("0"); ok {
		t.Error("expected VocabularyID miss for concept without vocabulary")
	}
	if n, ok := c.Name("2108115"); !ok || n != "Office visit" {
		t.Errorf("Name = %q, %v", n, ok)
	}

	missing := c.Missing()
	if len(missing) != 1 || missing[0] != "42" {
		t.Errorf("expected missing [42], got %v", missing)
	}
}

func TestCatalog_ToCoding(t *testing.T) {
	c := newTestCatalog()

	row := map[string]string{
		"person_id":                   "p1",
		"condition_concept_id":        "201826",
		"condition_source_concept_id": "45552385",
	}
	pairs := c.ToCoding(row, []string{"condition_concept_id", "condition_source_concept_id", "absent_column"})
	if len(pairs) != 2 {
		t.Fatalf("expected 2 pairs, got %d", len(pairs))
	}
	if pairs[0].Vocabulary != VocabSNOMED || pairs[0].Code != "44054006" {
		t.Errorf("unexpected first pair: %+v", pairs[0])
	}
	if pairs[1].Vocabulary != VocabICD10CM || pairs[1].Code != "E11.9" {
		t.Errorf("unexpected second pair: %+v", pairs[1])
	}

	pairs = c.ToCoding(map[string]string{"condition_concept_id": "0"}, []string{"condition_concept_id"})
	if pairs[0].Status != StatusNoVocabulary || pairs[0].Vocabulary != NoVocabulary {
		t.Errorf("expected no-vocabulary pair, got %+v", pairs[0])
	}
}

func TestCatalog_NoTables(t *testing.T) {
	c := NewCatalog()
	if res := c.Lookup("1"); res.Status != StatusNotFound {
		t.Errorf("expected not found with no tables, got %s", res.Status)
	}
}

func TestLoadTSV(t *testing.T) {
	data := "concept_id\tconcept_name\tdomain_id\tvocabulary_id\tconcept_code\n" +
		"3004410\tHemoglobin A1c \"total\"\tMeasurement\tLOINC\t4548-4\n" +
		"\tno id\tMeasurement\tLOINC\t0000-0\n" +
		"201826\tType 2 diabetes mellitus\tCondition\tSNOMED\t44054006\n"

	table, err := LoadTSV("CONCEPT", strings.NewReader(data))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if table.Len() != 2 {
		t.Fatalf("expected 2 concepts, got %d", table.Len())
	}
	c, ok := table.Lookup("3004410")
	if !ok {
		t.Fatal("expected concept 3004410")
	}
	if c.Code != "4548-4" || c.Vocabulary != VocabLOINC {
		t.Errorf("unexpected concept: %+v", c)
	}
	if !strings.Contains(c.Name, "total") {
		t.Errorf("expected lazy-quoted name to survive, got %q", c.Name)
	}
}

func TestLoadTSV_MissingColumn(t *testing.T) {
	_, err := LoadTSV("CONCEPT", strings.NewReader("concept_id\tconcept_name\n1\tx\n"))
	if err == nil {
		t.Fatal("expected error for missing columns")
	}
	if !errors.Is(err, ErrMissingColumn) {
		t.Errorf("expected ErrMissingColumn, got %v", err)
	}
}

func TestLoadDelimited_Comma(t *testing.T) {
	data := "concept_id,concept_code,vocabulary_id\n1,A,CPT4\n"
	table, err := LoadDelimited("CONCEPT_CPT4", strings.NewReader(data), ',')
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := table.LookupCode("A", "CPT4"); !ok {
		t.Error("expected reverse lookup hit")
	}
}
