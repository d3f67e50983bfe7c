package vocabulary

// Concept is a reference concept row from an OMOP vocabulary extract.
type Concept struct {
	ID         string `db:"concept_id" json:"concept_id"`
	Code       string `db:"concept_code" json:"concept_code"`
	Vocabulary string `db:"vocabulary_id" json:"vocabulary_id"`
	Name       string `db:"concept_name" json:"concept_name"`
}

// HasVocabulary reports whether the concept carries a usable vocabulary id.
func (c *Concept) HasVocabulary() bool {
	return c != nil && c.Vocabulary != "" && c.Vocabulary != NoVocabulary
}

// Status classifies the outcome of a catalog lookup.
type Status int

const (
	// StatusNotFound means no table holds the concept id.
	StatusNotFound Status = iota
	// StatusNoVocabulary means the concept exists but has no vocabulary recorded.
	StatusNoVocabulary
	// StatusFound means the concept exists and has a vocabulary.
	StatusFound
)

func (s Status) String() string {
	switch s {
	case StatusFound:
		return "found"
	case StatusNoVocabulary:
		return "no-vocabulary"
	default:
		return "not-found"
	}
}

// LookupResult is the outcome of Catalog.Lookup. Concept is nil when Status
// is StatusNotFound.
type LookupResult struct {
	Concept *Concept `json:"concept,omitempty"`
	Table   string   `json:"table,omitempty"`
	Status  Status   `json:"status"`
}

// Well-known vocabulary abbreviations produced by the normalizer.
const (
	VocabLOINC           = "LOINC"
	VocabSNOMED          = "SNOMED"
	VocabICD9CM          = "ICD9CM"
	VocabICD10CM         = "ICD10CM"
	VocabCPT4            = "CPT4"
	VocabHCPCS           = "HCPCS"
	VocabRxNorm          = "RxNorm"
	VocabNDC             = "NDC"
	VocabCVX             = "CVX"
	VocabObservationType = "Observation Type"

	// NoVocabulary marks systems that are intentionally left unmapped.
	NoVocabulary = "None"
)
