package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ehr/coderecon/internal/domain/coding"
	"github.com/ehr/coderecon/internal/domain/frequency"
	"github.com/ehr/coderecon/internal/domain/synonym"
	"github.com/ehr/coderecon/internal/domain/vocabulary"
	"github.com/ehr/coderecon/internal/platform/metrics"
	"github.com/ehr/coderecon/internal/platform/source"
)

// ErrNoCatalog is returned when OMOP records are run without a concept
// catalog to resolve their concept ids.
var ErrNoCatalog = errors.New("pipeline: omop records need a concept catalog")

// Options configures a Pipeline.
type Options struct {
	Workers int
	Paths   coding.Paths
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

// Pipeline runs the two-pass reconciliation: extract and cluster, then
// canonicalize and aggregate.
type Pipeline struct {
	catalog    *vocabulary.Catalog
	normalizer *vocabulary.SystemNormalizer
	paths      coding.Paths
	workers    int
	logger     zerolog.Logger
	metrics    *metrics.Metrics
}

// New creates a pipeline. catalog may be nil when only FHIR records are run.
func New(catalog *vocabulary.Catalog, normalizer *vocabulary.SystemNormalizer, opts Options) *Pipeline {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Paths == nil {
		opts.Paths = coding.DefaultPaths()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if normalizer == nil {
		normalizer = vocabulary.NewSystemNormalizer(opts.Logger, nil)
	}
	return &Pipeline{
		catalog:    catalog,
		normalizer: normalizer,
		paths:      opts.Paths,
		workers:    opts.Workers,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
	}
}

// Result is the outcome of one run.
type Result struct {
	RunID        uuid.UUID
	StartedAt    time.Time
	Duration     time.Duration
	Records      int
	Observations int
	Dropped      int
	Partition    *synonym.Partition
	Aggregate    *frequency.Aggregator
	Systems      *frequency.SystemCounts
	Codings      *frequency.CodingTable
	Unknown      []string
	UnknownUses  []frequency.Count
	PerPerson    map[string][]int
	Missing      []string
}

type extraction struct {
	category string
	ids      []string
}

// Run processes records. The clusterer only sees observations from a
// single goroutine; aggregation starts after the partition is frozen.
func (p *Pipeline) Run(ctx context.Context, records []source.Record) (*Result, error) {
	res := &Result{
		RunID:     uuid.New(),
		StartedAt: time.Now(),
		Records:   len(records),
		Systems:   frequency.NewSystemCounts(),
		Codings:   frequency.NewCodingTable(),
	}
	log := p.logger.With().Str("run_id", res.RunID.String()).Logger()
	log.Info().Int("records", len(records)).Int("workers", p.workers).Msg("starting run")

	extracted := make([]extraction, len(records))
	clusterer := synonym.New()

	start := time.Now()
	dropped, observations, err := p.observe(ctx, records, extracted, clusterer, res)
	if err != nil {
		return nil, err
	}
	p.metrics.PassDuration.WithLabelValues("cluster").Observe(time.Since(start).Seconds())
	res.Dropped = dropped
	res.Observations = observations

	res.Partition = clusterer.Snapshot()
	p.metrics.Clusters.Set(float64(res.Partition.Len()))
	p.metrics.KnownCodes.Set(float64(res.Partition.Known()))

	start = time.Now()
	res.Aggregate, err = p.aggregate(ctx, extracted, res.Partition)
	if err != nil {
		return nil, err
	}
	p.metrics.PassDuration.WithLabelValues("aggregate").Observe(time.Since(start).Seconds())

	res.Unknown = p.normalizer.Unknown()
	res.UnknownUses = make([]frequency.Count, len(res.Unknown))
	for i, system := range res.Unknown {
		res.UnknownUses[i] = frequency.Count{Code: system, Count: p.normalizer.UnknownCount(system)}
	}
	res.PerPerson = source.CategoryCounts(records)
	if p.catalog != nil {
		res.Missing = p.catalog.Missing()
	}
	p.metrics.UnknownSystems.Set(float64(len(res.Unknown)))
	p.metrics.MissingConcepts.Set(float64(len(res.Missing)))

	res.Duration = time.Since(res.StartedAt)
	log.Info().
		Int("observations", res.Observations).
		Int("dropped", res.Dropped).
		Int("clusters", res.Partition.Len()).
		Int("codes", res.Partition.Known()).
		Int("unknown_systems", len(res.Unknown)).
		Int("missing_concepts", len(res.Missing)).
		Dur("duration", res.Duration).
		Msg("run complete")
	return res, nil
}

func (p *Pipeline) observe(ctx context.Context, records []source.Record, extracted []extraction, clusterer *synonym.Clusterer, res *Result) (int, int, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	ready := make(chan int, p.workers*2)
	done := make(chan struct{})
	observations := 0
	go func() {
		defer close(done)
		for i := range ready {
			clusterer.Observe(extracted[i].ids)
			observations++
			p.metrics.Observations.Inc()
		}
	}()

	dropped := make([]int, len(records))
	for i := range records {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			ext, n, err := p.extract(records[i], res)
			if err != nil {
				return err
			}
			extracted[i] = ext
			dropped[i] = n
			if len(ext.ids) == 0 {
				return nil
			}
			select {
			case ready <- i:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}
	err := g.Wait()
	close(ready)
	<-done
	if err != nil {
		return 0, 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}

	total := 0
	for _, n := range dropped {
		total += n
	}
	return total, observations, nil
}

func (p *Pipeline) extract(rec source.Record, res *Result) (extraction, int, error) {
	origin := string(rec.Origin)
	p.metrics.RecordsRead.WithLabelValues(origin, rec.Category).Inc()

	switch rec.Origin {
	case source.OriginFHIR:
		ext, dropped := p.extractFHIR(rec, res)
		p.metrics.CodingsDropped.WithLabelValues(origin).Add(float64(dropped))
		return ext, dropped, nil
	case source.OriginOMOP:
		if p.catalog == nil {
			return extraction{}, 0, ErrNoCatalog
		}
		ext, dropped := p.extractOMOP(rec, res)
		p.metrics.CodingsDropped.WithLabelValues(origin).Add(float64(dropped))
		return ext, dropped, nil
	default:
		return extraction{}, 0, fmt.Errorf("pipeline: unknown record origin %q", rec.Origin)
	}
}

func (p *Pipeline) extractFHIR(rec source.Record, res *Result) (extraction, int) {
	ext := extraction{category: rec.Category}
	path, ok := p.paths.For(rec.Category)
	if !ok {
		return ext, 0
	}
	codings, malformed := coding.Extract(rec.Data, path)
	for _, c := range codings {
		res.Systems.Add(rec.Category, c.System)
		res.Codings.Add(rec.Category, c.System, c.Code, c.Display)
	}
	ids, codeless := coding.Observation(codings, p.normalizer)
	p.metrics.CodingsExtracted.WithLabelValues(string(rec.Origin)).Add(float64(len(codings) - codeless))
	ext.ids = ids
	return ext, malformed + codeless
}

// extractOMOP resolves the row's concept columns. Unresolved ids and
// concepts without a vocabulary are tallied but kept out of the
// observation.
func (p *Pipeline) extractOMOP(rec source.Record, res *Result) (extraction, int) {
	ext := extraction{category: rec.Category}
	cols, ok := source.ColumnsFor(rec.Category)
	if !ok {
		return ext, 0
	}
	pairs := p.catalog.ToCoding(rec.Row, cols)

	dropped := 0
	seen := make(map[string]struct{}, len(pairs))
	for _, pair := range pairs {
		switch pair.Status {
		case vocabulary.StatusNotFound:
			dropped++
			continue
		case vocabulary.StatusNoVocabulary:
			res.Systems.Add(rec.Category, pair.Vocabulary)
			dropped++
			continue
		}
		res.Systems.Add(rec.Category, pair.Vocabulary)
		res.Codings.Add(rec.Category, pair.Vocabulary, pair.Code, pair.Display)
		id := coding.Identifier(pair.Vocabulary, pair.Code)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ext.ids = append(ext.ids, id)
	}
	p.metrics.CodingsExtracted.WithLabelValues(string(rec.Origin)).Add(float64(len(pairs) - dropped))
	return ext, dropped
}

func (p *Pipeline) aggregate(ctx context.Context, extracted []extraction, part *synonym.Partition) (*frequency.Aggregator, error) {
	agg := frequency.NewAggregator(part)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	chunk := (len(extracted) + p.workers - 1) / p.workers
	for lo := 0; lo < len(extracted); lo += chunk {
		lo, hi := lo, min(lo+chunk, len(extracted))
		g.Go(func() error {
			for _, ext := range extracted[lo:hi] {
				if err := gctx.Err(); err != nil {
					return err
				}
				for _, id := range ext.ids {
					agg.Add(ext.category, id)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return agg, nil
}
