package coding

import "sort"

// Absent is the value of a Coding field that was missing from the source
// record. It is never the empty string, so "absent" and "present but empty"
// stay distinguishable.
const Absent = "None"

// Coding is a raw (system, code, display) triple pulled from a record.
type Coding struct {
	System  string `json:"system"`
	Code    string `json:"code"`
	Display string `json:"display"`
}

// Normalizer maps a coding system identifier to a vocabulary id.
type Normalizer interface {
	Normalize(system string) string
}

// Identifier builds the code identifier used as the clustering key.
func Identifier(vocabulary, code string) string {
	return vocabulary + " " + code
}

// Observation builds the de-duplicated, sorted identifier set for one
// record's codings. Codings without a code would join every record they
// appear in, so they are left out and counted in skipped.
func Observation(codings []Coding, n Normalizer) (ids []string, skipped int) {
	if len(codings) == 0 {
		return nil, 0
	}
	seen := make(map[string]struct{}, len(codings))
	ids = make([]string, 0, len(codings))
	for _, c := range codings {
		if c.Code == Absent {
			skipped++
			continue
		}
		id := Identifier(n.Normalize(c.System), c.Code)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, skipped
}
