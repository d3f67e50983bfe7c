package vocabulary

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Absent is the value a coding carries for a missing system field. It is
// kept in sync with coding.Absent.
const Absent = "None"

// defaultSystems maps FHIR coding system identifiers (URIs and OIDs) to the
// vocabulary ids used by the OMOP concept tables.
var defaultSystems = map[string]string{
	"http://loinc.org":                            VocabLOINC,
	"http://snomed.info/sct":                      VocabSNOMED,
	"http://hl7.org/fhir/sid/icd-9-cm/diagnosis":  VocabICD9CM,
	"http://hl7.org/fhir/sid/icd-9-cm":            VocabICD9CM,
	"http://hl7.org/fhir/sid/icd-10-cm":           VocabICD10CM,
	"urn:oid:2.16.840.1.113883.6.90":              VocabICD10CM,
	"http://www.ama-assn.org/go/cpt":              VocabCPT4,
	"urn:oid:2.16.840.1.113883.6.14":              VocabHCPCS,
	"http://www.nlm.nih.gov/research/umls/rxnorm": VocabRxNorm,
	"http://hl7.org/fhir/sid/ndc":                 VocabNDC,
	"http://hl7.org/fhir/sid/cvx":                 VocabCVX,
	"http://hl7.org/fhir/observation-category":    VocabObservationType,

	"http://hl7.org/fhir/ndfrt":                           NoVocabulary,
	"http://fdasis.nlm.nih.gov":                           NoVocabulary,
	"https://apis.followmyhealth.com/fhir/id/translation": NoVocabulary,
	"http://argonautwiki.hl7.org/extension-codes":         NoVocabulary,
	"http://hl7.org/fhir/condition-category":              NoVocabulary,
	"http://argonaut.hl7.org":                             NoVocabulary,

	// Epic client-specific code systems.
	"urn:oid:1.2.840.114350.1.13.362.2.7.2.696580": NoVocabulary,
	"urn:oid:1.2.840.114350.1.13.202.2.7.2.696580": NoVocabulary,
	"urn:oid:1.2.840.114350.1.13.71.2.7.2.696580":  NoVocabulary,
	"urn:oid:1.2.840.114350.1.13.324.2.7.2.696580": NoVocabulary,
}

// DefaultSystems returns a copy of the built-in system table.
func DefaultSystems() map[string]string {
	out := make(map[string]string, len(defaultSystems))
	for k, v := range defaultSystems {
		out[k] = v
	}
	return out
}

// SystemNormalizer maps coding system identifiers to vocabulary ids.
// Unrecognized identifiers pass through unchanged and are collected so the
// table can be extended.
type SystemNormalizer struct {
	systems map[string]string
	logger  zerolog.Logger

	mu      sync.Mutex
	unknown map[string]int
}

// NewSystemNormalizer creates a normalizer over the built-in table with
// extra entries layered on top.
func NewSystemNormalizer(logger zerolog.Logger, extra map[string]string) *SystemNormalizer {
	systems := DefaultSystems()
	for k, v := range extra {
		systems[k] = v
	}
	return &SystemNormalizer{
		systems: systems,
		logger:  logger,
		unknown: make(map[string]int),
	}
}

// Normalize returns the vocabulary id for system. It never fails. Only the
// Absent sentinel maps to NoVocabulary; an empty system is an unknown one.
func (n *SystemNormalizer) Normalize(system string) string {
	if v, ok := n.systems[system]; ok {
		return v
	}
	if system == Absent {
		return NoVocabulary
	}

	n.mu.Lock()
	n.unknown[system]++
	first := n.unknown[system] == 1
	n.mu.Unlock()

	if first {
		n.logger.Warn().Str("system", system).Msg("unrecognized coding system")
	}
	return system
}

// Known returns a copy of the active system table.
func (n *SystemNormalizer) Known() map[string]string {
	out := make(map[string]string, len(n.systems))
	for k, v := range n.systems {
		out[k] = v
	}
	return out
}

// Unknown returns every unrecognized system seen so far, sorted.
func (n *SystemNormalizer) Unknown() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.unknown))
	for s := range n.unknown {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// UnknownCount returns how often an unrecognized system was normalized.
func (n *SystemNormalizer) UnknownCount(system string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.unknown[system]
}

// ParseSystems reads a YAML mapping of system identifiers to vocabulary
// ids. A null value maps the system to NoVocabulary.
func ParseSystems(r io.Reader) (map[string]string, error) {
	var raw map[string]*string
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		if err == io.EOF {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("decode systems: %w", err)
	}
	out := make(map[string]string, len(raw))
	for system, vocab := range raw {
		if vocab == nil || *vocab == "" {
			out[system] = NoVocabulary
			continue
		}
		out[system] = *vocab
	}
	return out, nil
}

// LoadSystems reads extra system entries from a YAML file. An empty
// filename yields no entries.
func LoadSystems(filename string) (map[string]string, error) {
	if filename == "" {
		return nil, nil
	}
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open systems file: %w", err)
	}
	defer f.Close()
	return ParseSystems(f)
}
