package source

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// ConceptColumns lists, per OMOP table file, the concept id columns whose
// codes describe the same clinical fact: the standard concept first, then
// the source concept.
var ConceptColumns = map[string][]string{
	"condition.csv":     {"condition_concept_id", "condition_source_concept_id"},
	"observation.csv":   {"observation_concept_id", "observation_source_concept_id"},
	"observation_1.csv": {"observation_concept_id", "observation_source_concept_id"},
	"observation_2.csv": {"observation_concept_id", "observation_source_concept_id"},
	"procedure.csv":     {"procedure_concept_id", "procedure_source_concept_id"},
	"drug_summary.csv":  {"drug_concept_id", "drug_source_concept_id"},
	"drug.csv":          {"drug_concept_id", "drug_source_concept_id"},
	"measurement.csv":   {"measurement_concept_id", "measurement_source_concept_id"},
}

// ColumnsFor returns the concept columns of an OMOP table file.
func ColumnsFor(table string) ([]string, bool) {
	cols, ok := ConceptColumns[strings.ToLower(table)]
	return cols, ok
}

const personColumn = "person_id"

// ReadOMOPTable reads one delimited OMOP table with a header row. Rows
// without a person_id are skipped; the number skipped is returned.
func ReadOMOPTable(table string, r io.Reader, delim rune) ([]Record, int, error) {
	cr := csv.NewReader(r)
	cr.Comma = delim
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("read header of %s: %w", table, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	var records []Record
	skipped := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("read %s: %w", table, err)
		}
		row := make(map[string]string, len(header))
		for i, h := range header {
			if i < len(rec) {
				row[h] = strings.TrimSpace(rec[i])
			}
		}
		person, ok := row[personColumn]
		if !ok || person == "" {
			skipped++
			continue
		}
		records = append(records, Record{Person: person, Category: table, Origin: OriginOMOP, Row: row})
	}
	return records, skipped, nil
}

// ReadOMOPDir reads every known OMOP table file in dir. Files whose name is
// not in ConceptColumns are ignored.
func ReadOMOPDir(ctx context.Context, dir string, delim rune, logger zerolog.Logger) ([]Record, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, fmt.Errorf("list omop tables: %w", err)
	}
	sort.Strings(matches)

	var records []Record
	for _, path := range matches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		table := strings.ToLower(filepath.Base(path))
		if _, ok := ConceptColumns[table]; !ok {
			logger.Debug().Str("file", table).Msg("skipping omop file without concept columns")
			continue
		}

		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		recs, skipped, err := ReadOMOPTable(table, f, delim)
		f.Close()
		if err != nil {
			return nil, err
		}
		if skipped > 0 {
			logger.Debug().Str("file", table).Int("skipped", skipped).Msg("found lines without patient")
		}
		records = append(records, recs...)
	}

	people := make(map[string]struct{})
	for _, r := range records {
		people[r.Person] = struct{}{}
	}
	logger.Info().Int("participants", len(people)).Int("records", len(records)).Msg("read omop tables")
	return records, nil
}
