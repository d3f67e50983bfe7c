package config

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

type Config struct {
	Port            string   `mapstructure:"PORT"`
	Env             string   `mapstructure:"ENV"`
	LogLevel        string   `mapstructure:"LOG_LEVEL"`
	DatabaseURL     string   `mapstructure:"DATABASE_URL"`
	DBMaxConns      int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns      int32    `mapstructure:"DB_MIN_CONNS"`
	ConceptTables   []string `mapstructure:"CONCEPT_TABLES"`
	ConceptPGTables []string `mapstructure:"CONCEPT_PG_TABLES"`
	FHIRDir         string   `mapstructure:"FHIR_DIR"`
	OMOPDir         string   `mapstructure:"OMOP_DIR"`
	OMOPDelimiter   string   `mapstructure:"OMOP_DELIMITER"`
	Workers         int      `mapstructure:"WORKERS"`
	PathsFile       string   `mapstructure:"PATHS_FILE"`
	SystemsFile     string   `mapstructure:"SYSTEMS_FILE"`
	OutputDir       string   `mapstructure:"OUTPUT_DIR"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"CONCEPT_TABLES", "CONCEPT_PG_TABLES", "FHIR_DIR", "OMOP_DIR", "OMOP_DELIMITER",
	"WORKERS", "PATHS_FILE", "SYSTEMS_FILE", "OUTPUT_DIR",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_MAX_CONNS", 4)
	v.SetDefault("DB_MIN_CONNS", 1)
	v.SetDefault("OMOP_DELIMITER", ",")
	v.SetDefault("WORKERS", 4)
	v.SetDefault("OUTPUT_DIR", ".")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.ConceptTables = splitList(cfg.ConceptTables, v.GetString("CONCEPT_TABLES"))
	cfg.ConceptPGTables = splitList(cfg.ConceptPGTables, v.GetString("CONCEPT_PG_TABLES"))

	return cfg, nil
}

// splitList accepts either an already-decoded list or a comma separated
// environment value. Order is preserved; it is the catalog priority order.
func splitList(decoded []string, raw string) []string {
	if len(decoded) > 0 {
		raw = strings.Join(decoded, ",")
	}
	if raw == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// HasConceptSource reports whether any concept table is configured.
func (c *Config) HasConceptSource() bool {
	return len(c.ConceptTables) > 0 || len(c.ConceptPGTables) > 0
}

// Delimiter returns the OMOP field delimiter as a rune. "\t" and "tab" both
// select tab.
func (c *Config) Delimiter() rune {
	switch c.OMOPDelimiter {
	case `\t`, "tab", "\t":
		return '\t'
	case "":
		return ','
	default:
		return []rune(c.OMOPDelimiter)[0]
	}
}

// Level returns the configured zerolog level, falling back to info.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || c.LogLevel == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// Validate checks that a clustering run has something to read. OMOP tables
// reference concepts by id, so they need a concept source; PostgreSQL
// concept tables need DATABASE_URL.
func (c *Config) Validate() error {
	if c.FHIRDir == "" && c.OMOPDir == "" {
		return fmt.Errorf("at least one of FHIR_DIR or OMOP_DIR must be set")
	}
	if c.OMOPDir != "" && !c.HasConceptSource() {
		return fmt.Errorf("OMOP_DIR requires CONCEPT_TABLES or CONCEPT_PG_TABLES")
	}
	if len(c.ConceptPGTables) > 0 && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required when CONCEPT_PG_TABLES is set")
	}
	if c.Workers < 1 {
		return fmt.Errorf("WORKERS must be at least 1, got %d", c.Workers)
	}
	if len([]rune(c.OMOPDelimiter)) > 1 && c.Delimiter() != '\t' {
		return fmt.Errorf("OMOP_DELIMITER must be a single character, got %q", c.OMOPDelimiter)
	}
	return nil
}
