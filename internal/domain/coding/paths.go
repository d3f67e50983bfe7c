package coding

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Paths maps a record category (FHIR resourceType) to the field path of its
// coding array.
type Paths map[string][]string

// DefaultPaths returns the built-in category table.
func DefaultPaths() Paths {
	return Paths{
		"OperationOutcome":    {"issue", "details", "coding"},
		"MedicationOrder":     {"medicationCodeableConcept", "coding"},
		"MedicationStatement": {"medicationCodeableConcept", "coding"},
		"MedicationRequest":   {"medicationCodeableConcept", "coding"},
		"AllergyIntolerance":  {"substance", "coding"},
		"Observation":         {"code", "coding"},
		"Immunization":        {"vaccineCode", "coding"},
		"Condition":           {"code", "coding"},
		"DocumentReference":   {"class", "coding"},
		"Procedure":           {"code", "coding"},
	}
}

// For returns the coding path for category.
func (p Paths) For(category string) ([]string, bool) {
	path, ok := p[category]
	return path, ok && len(path) > 0
}

// Categories returns the configured categories, sorted.
func (p Paths) Categories() []string {
	out := make([]string, 0, len(p))
	for k := range p {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Merge returns a copy of p with other's entries layered on top.
func (p Paths) Merge(other Paths) Paths {
	out := make(Paths, len(p)+len(other))
	for k, v := range p {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// ParsePaths reads a YAML document mapping categories to paths. A path may
// be written as a list or as a dotted string:
//
//	Observation: code.coding
//	Condition: [code, coding]
func ParsePaths(r io.Reader) (Paths, error) {
	var raw map[string]yaml.Node
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		if err == io.EOF {
			return Paths{}, nil
		}
		return nil, fmt.Errorf("decode paths: %w", err)
	}

	out := make(Paths, len(raw))
	for category, node := range raw {
		switch node.Kind {
		case yaml.ScalarNode:
			out[category] = strings.Split(node.Value, ".")
		case yaml.SequenceNode:
			var path []string
			if err := node.Decode(&path); err != nil {
				return nil, fmt.Errorf("decode path for %s: %w", category, err)
			}
			out[category] = path
		default:
			return nil, fmt.Errorf("path for %s must be a string or list", category)
		}
	}
	return out, nil
}

// LoadPaths reads a YAML path file and layers it over DefaultPaths. An
// empty filename returns the defaults.
func LoadPaths(filename string) (Paths, error) {
	if filename == "" {
		return DefaultPaths(), nil
	}
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open paths file: %w", err)
	}
	defer f.Close()

	extra, err := ParsePaths(f)
	if err != nil {
		return nil, err
	}
	return DefaultPaths().Merge(extra), nil
}
