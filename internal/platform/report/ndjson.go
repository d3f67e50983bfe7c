package report

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/ehr/coderecon/internal/domain/frequency"
	"github.com/ehr/coderecon/internal/domain/synonym"
	"github.com/ehr/coderecon/internal/platform/pipeline"
)

// NDJSONWriter writes one JSON value per line.
type NDJSONWriter struct {
	w *bufio.Writer
}

// NewNDJSONWriter creates a new NDJSONWriter that writes to w.
func NewNDJSONWriter(w io.Writer) *NDJSONWriter {
	return &NDJSONWriter{
		w: bufio.NewWriter(w),
	}
}

// Write serialises v as a single JSON line.
func (n *NDJSONWriter) Write(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := n.w.Write(data); err != nil {
		return err
	}
	return n.w.WriteByte('\n')
}

// Flush flushes any buffered data to the underlying writer.
func (n *NDJSONWriter) Flush() error {
	return n.w.Flush()
}

// CountLine is one (category, canonical code) tally.
type CountLine struct {
	Category string `json:"category"`
	Code     string `json:"code"`
	Count    int    `json:"count"`
}

// CodingLine is one coding table row tagged with its category.
type CodingLine struct {
	Category string `json:"category"`
	frequency.Row
}

// WriteClusters writes one line per cluster, largest first.
func WriteClusters(w io.Writer, clusters []synonym.Cluster) error {
	nw := NewNDJSONWriter(w)
	for _, c := range clusters {
		if err := nw.Write(c); err != nil {
			return err
		}
	}
	return nw.Flush()
}

// WriteCounts writes the canonical tallies of every category.
func WriteCounts(w io.Writer, agg *frequency.Aggregator) error {
	nw := NewNDJSONWriter(w)
	for _, cat := range agg.Categories() {
		for _, c := range agg.Counts(cat) {
			if err := nw.Write(CountLine{Category: cat, Code: c.Code, Count: c.Count}); err != nil {
				return err
			}
		}
	}
	return nw.Flush()
}

// WriteSystems writes the coding system tallies of every category.
func WriteSystems(w io.Writer, systems *frequency.SystemCounts) error {
	nw := NewNDJSONWriter(w)
	for _, cat := range systems.Categories() {
		for _, c := range systems.For(cat) {
			if err := nw.Write(CountLine{Category: cat, Code: c.Code, Count: c.Count}); err != nil {
				return err
			}
		}
	}
	return nw.Flush()
}

// WriteCodings writes the raw coding table of the given categories.
func WriteCodings(w io.Writer, table *frequency.CodingTable, categories []string) error {
	nw := NewNDJSONWriter(w)
	for _, cat := range categories {
		for _, r := range table.Rows(cat) {
			if err := nw.Write(CodingLine{Category: cat, Row: r}); err != nil {
				return err
			}
		}
	}
	return nw.Flush()
}

// CategoryLine describes how the records of one category spread over
// people. PerPerson holds one count per person, ordered by person id, with
// zeros for people who have no record in the category.
type CategoryLine struct {
	Category  string `json:"category"`
	People    int    `json:"people"`
	Records   int    `json:"records"`
	Max       int    `json:"max"`
	PerPerson []int  `json:"per_person"`
}

// CategoryLines builds one line per category, sorted by category.
func CategoryLines(perPerson map[string][]int) []CategoryLine {
	out := make([]CategoryLine, 0, len(perPerson))
	for cat, counts := range perPerson {
		line := CategoryLine{Category: cat, People: len(counts), PerPerson: counts}
		for _, n := range counts {
			line.Records += n
			line.Max = max(line.Max, n)
		}
		out = append(out, line)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out
}

// WriteCategories writes the per-person record counts of every category.
func WriteCategories(w io.Writer, perPerson map[string][]int) error {
	nw := NewNDJSONWriter(w)
	for _, line := range CategoryLines(perPerson) {
		if err := nw.Write(line); err != nil {
			return err
		}
	}
	return nw.Flush()
}

// Output file names written by WriteDir.
const (
	ClustersFile    = "clusters.ndjson"
	FrequenciesFile = "frequencies.ndjson"
	SystemsFile     = "systems.ndjson"
	CodingsFile     = "codings.ndjson"
	CategoriesFile  = "categories.ndjson"
	SummaryFile     = "summary.json"
)

// WriteDir writes every report of res into dir and returns the paths written.
func WriteDir(dir string, res *pipeline.Result) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	writers := []struct {
		name  string
		write func(io.Writer) error
	}{
		{ClustersFile, func(w io.Writer) error { return WriteClusters(w, res.Partition.Clusters()) }},
		{FrequenciesFile, func(w io.Writer) error { return WriteCounts(w, res.Aggregate) }},
		{SystemsFile, func(w io.Writer) error { return WriteSystems(w, res.Systems) }},
		{CodingsFile, func(w io.Writer) error { return WriteCodings(w, res.Codings, res.Systems.Categories()) }},
		{CategoriesFile, func(w io.Writer) error { return WriteCategories(w, res.PerPerson) }},
		{SummaryFile, func(w io.Writer) error {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(NewSummary(res))
		}},
	}

	var written []string
	for _, wr := range writers {
		path := filepath.Join(dir, wr.name)
		if err := writeFile(path, wr.write); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
