package source

import "sort"

// Origin names the representation a record came from.
type Origin string

const (
	OriginFHIR Origin = "fhir"
	OriginOMOP Origin = "omop"
)

// Record is one clinical record. FHIR records carry the decoded resource in
// Data; OMOP records carry the table row in Row.
type Record struct {
	Person   string
	Category string
	Origin   Origin
	Data     map[string]any
	Row      map[string]string
}

// GroupByPerson indexes records by person and category.
func GroupByPerson(records []Record) map[string]map[string][]Record {
	out := make(map[string]map[string][]Record)
	for _, r := range records {
		byCat, ok := out[r.Person]
		if !ok {
			byCat = make(map[string][]Record)
			out[r.Person] = byCat
		}
		byCat[r.Category] = append(byCat[r.Category], r)
	}
	return out
}

// CategoryCounts returns, per category, the number of records each person
// has. People without records in a category count as zero, so every slice
// has one entry per person, ordered by person id.
func CategoryCounts(records []Record) map[string][]int {
	byPerson := GroupByPerson(records)
	people := make([]string, 0, len(byPerson))
	categories := make(map[string]struct{})
	for p, cats := range byPerson {
		people = append(people, p)
		for c := range cats {
			categories[c] = struct{}{}
		}
	}
	sort.Strings(people)

	out := make(map[string][]int, len(categories))
	for c := range categories {
		counts := make([]int, len(people))
		for i, p := range people {
			counts[i] = len(byPerson[p][c])
		}
		out[c] = counts
	}
	return out
}
