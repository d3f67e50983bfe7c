package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/coderecon/internal/config"
	"github.com/ehr/coderecon/internal/domain/coding"
	"github.com/ehr/coderecon/internal/domain/vocabulary"
	"github.com/ehr/coderecon/internal/platform/db"
	"github.com/ehr/coderecon/internal/platform/metrics"
	"github.com/ehr/coderecon/internal/platform/pipeline"
	"github.com/ehr/coderecon/internal/platform/source"
)

// loadConfig reads the environment and applies command line overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	flags := cmd.Flags()
	if flags.Changed("fhir-dir") {
		cfg.FHIRDir, _ = flags.GetString("fhir-dir")
	}
	if flags.Changed("omop-dir") {
		cfg.OMOPDir, _ = flags.GetString("omop-dir")
	}
	if flags.Changed("workers") {
		cfg.Workers, _ = flags.GetInt("workers")
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stderr)
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return logger.Level(cfg.Level()).With().Timestamp().Logger()
}

func openPool(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*pgxpool.Pool, error) {
	if cfg.DatabaseURL == "" {
		return nil, nil
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Info().Msg("connected to database")
	return pool, nil
}

// tableName derives a concept table name from its file path:
// "vocab/CONCEPT.csv" becomes "CONCEPT".
func tableName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// loadCatalog builds the concept catalog. File tables come first, in
// CONCEPT_TABLES order, followed by CONCEPT_PG_TABLES.
func loadCatalog(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) (*vocabulary.Catalog, error) {
	var tables []vocabulary.ConceptTable
	for _, path := range cfg.ConceptTables {
		t, err := loadConceptFile(path)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("table", t.Name()).Int("concepts", t.Len()).Msg("loaded concept file")
		tables = append(tables, t)
	}
	for _, name := range cfg.ConceptPGTables {
		if pool == nil {
			return nil, fmt.Errorf("concept table %s: no database configured", name)
		}
		t, err := db.LoadConceptTable(ctx, pool, name)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("table", t.Name()).Int("concepts", t.Len()).Msg("loaded concept table")
		tables = append(tables, t)
	}
	return vocabulary.NewCatalog(tables...), nil
}

func loadConceptFile(path string) (*vocabulary.MemTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open concept file: %w", err)
	}
	defer f.Close()
	t, err := vocabulary.LoadTSV(tableName(path), f)
	if err != nil {
		return nil, fmt.Errorf("load concept file %s: %w", path, err)
	}
	return t, nil
}

func newNormalizer(cfg *config.Config, logger zerolog.Logger) (*vocabulary.SystemNormalizer, error) {
	extra, err := vocabulary.LoadSystems(cfg.SystemsFile)
	if err != nil {
		return nil, err
	}
	return vocabulary.NewSystemNormalizer(logger, extra), nil
}

// environment holds everything a pipeline run needs, loaded up front so
// configuration errors surface before any record is read.
type environment struct {
	cfg        *config.Config
	logger     zerolog.Logger
	pool       *pgxpool.Pool
	catalog    *vocabulary.Catalog
	normalizer *vocabulary.SystemNormalizer
	paths      coding.Paths
}

func setup(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*environment, error) {
	env := &environment{cfg: cfg, logger: logger}

	var err error
	if env.paths, err = coding.LoadPaths(cfg.PathsFile); err != nil {
		return nil, err
	}
	if env.normalizer, err = newNormalizer(cfg, logger); err != nil {
		return nil, err
	}
	if env.pool, err = openPool(ctx, cfg, logger); err != nil {
		return nil, err
	}
	if cfg.HasConceptSource() {
		if env.catalog, err = loadCatalog(ctx, cfg, env.pool, logger); err != nil {
			env.Close()
			return nil, err
		}
	}
	return env, nil
}

func (env *environment) Close() {
	if env.pool != nil {
		env.pool.Close()
	}
}

func (env *environment) readRecords(ctx context.Context) ([]source.Record, error) {
	var records []source.Record
	if env.cfg.FHIRDir != "" {
		fhir, err := source.ReadFHIRDir(ctx, env.cfg.FHIRDir, env.logger)
		if err != nil {
			return nil, fmt.Errorf("read fhir: %w", err)
		}
		records = append(records, fhir...)
	}
	if env.cfg.OMOPDir != "" {
		omop, err := source.ReadOMOPDir(ctx, env.cfg.OMOPDir, env.cfg.Delimiter(), env.logger)
		if err != nil {
			return nil, fmt.Errorf("read omop: %w", err)
		}
		records = append(records, omop...)
	}
	return records, nil
}

func (env *environment) run(ctx context.Context, m *metrics.Metrics) (*pipeline.Result, error) {
	records, err := env.readRecords(ctx)
	if err != nil {
		return nil, err
	}
	p := pipeline.New(env.catalog, env.normalizer, pipeline.Options{
		Workers: env.cfg.Workers,
		Paths:   env.paths,
		Logger:  env.logger,
		Metrics: m,
	})
	return p.Run(ctx, records)
}
