package report

import (
	"time"

	"github.com/ehr/coderecon/internal/platform/pipeline"
)

// Summary describes one pipeline run.
type Summary struct {
	RunID        string    `json:"run_id"`
	StartedAt    time.Time `json:"started_at"`
	DurationMS   int64     `json:"duration_ms"`
	Records      int       `json:"records"`
	Observations int       `json:"observations"`
	Dropped      int       `json:"dropped_codings"`
	Clusters     int       `json:"clusters"`
	Codes        int       `json:"codes"`
	Categories   []string  `json:"categories"`
	Unknown      []string  `json:"unknown_systems"`
	Missing      []string  `json:"missing_concepts"`
}

// NewSummary builds the summary of res.
func NewSummary(res *pipeline.Result) Summary {
	s := Summary{
		RunID:        res.RunID.String(),
		StartedAt:    res.StartedAt.UTC(),
		DurationMS:   res.Duration.Milliseconds(),
		Records:      res.Records,
		Observations: res.Observations,
		Dropped:      res.Dropped,
		Clusters:     res.Partition.Len(),
		Codes:        res.Partition.Known(),
		Categories:   res.Aggregate.Categories(),
		Unknown:      res.Unknown,
		Missing:      res.Missing,
	}
	if s.Unknown == nil {
		s.Unknown = []string{}
	}
	if s.Missing == nil {
		s.Missing = []string{}
	}
	return s
}
