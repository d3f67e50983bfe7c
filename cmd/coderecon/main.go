package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"

	"github.com/ehr/coderecon/internal/config"
	"github.com/ehr/coderecon/internal/domain/coding"
	"github.com/ehr/coderecon/internal/domain/vocabulary"
	"github.com/ehr/coderecon/internal/platform/db"
	"github.com/ehr/coderecon/internal/platform/metrics"
	"github.com/ehr/coderecon/internal/platform/middleware"
	"github.com/ehr/coderecon/internal/platform/report"
	"github.com/ehr/coderecon/internal/platform/source"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "coderecon",
		Short:         "Reconcile FHIR codings and OMOP concepts into synonym clusters",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().String("fhir-dir", "", "FHIR input directory (overrides FHIR_DIR)")
	root.PersistentFlags().String("omop-dir", "", "OMOP input directory (overrides OMOP_DIR)")
	root.PersistentFlags().Int("workers", 0, "extraction workers (overrides WORKERS)")

	root.AddCommand(clusterCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(lookupCmd())
	root.AddCommand(systemsCmd())
	root.AddCommand(profileCmd())
	return root
}

func clusterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cluster",
		Short: "Run the clustering pipeline and write reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if out, _ := cmd.Flags().GetString("out"); out != "" {
				cfg.OutputDir = out
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger := newLogger(cfg)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			env, err := setup(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer env.Close()

			res, err := env.run(ctx, metrics.New())
			if err != nil {
				return err
			}

			written, err := report.WriteDir(cfg.OutputDir, res)
			if err != nil {
				return err
			}
			for _, path := range written {
				logger.Info().Str("file", path).Msg("wrote report")
			}
			return nil
		},
	}
	cmd.Flags().String("out", "", "report output directory (overrides OUTPUT_DIR)")
	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the pipeline and serve the results over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg)
		},
	}
}

func runServer(ctx context.Context, cfg *config.Config) error {
	logger := newLogger(cfg)

	env, err := setup(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer env.Close()

	m := metrics.New()
	reports := report.NewHandler(nil)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestID())
	e.Use(middleware.Recovery(logger, reports.RunID))
	e.Use(middleware.Logger(logger, reports.RunID))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	var pinger db.Pinger
	if env.pool != nil {
		pinger = env.pool
	}
	e.GET("/health/db", db.HealthHandler(pinger))
	e.GET("/metrics", echo.WrapHandler(m.Handler()))
	reports.RegisterRoutes(e.Group("/api/v1"))

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	go func() {
		res, err := env.run(runCtx, m)
		if err != nil {
			logger.Error().Err(err).Msg("pipeline run failed")
			return
		}
		reports.Set(res)
	}()

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	cancelRun()

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

func lookupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lookup [concept_id...]",
		Short: "Resolve concept ids against the configured concept tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			code, _ := cmd.Flags().GetString("code")
			vocab, _ := cmd.Flags().GetString("vocabulary")
			if len(args) == 0 && code == "" {
				return fmt.Errorf("give concept ids or --code")
			}

			pool, err := openPool(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			if pool != nil {
				defer pool.Close()
			}
			catalog, err := loadCatalog(cmd.Context(), cfg, pool, logger)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CONCEPT_ID\tSTATUS\tTABLE\tVOCABULARY\tCODE\tNAME")
			if code != "" {
				if c, ok := catalog.LookupCode(code, vocab); ok {
					fmt.Fprintf(w, "%s\t%s\t\t%s\t%s\t%s\n", c.ID, vocabulary.StatusFound, c.Vocabulary, c.Code, c.Name)
				} else {
					fmt.Fprintf(w, "\t%s\t\t%s\t%s\t\n", vocabulary.StatusNotFound, vocab, code)
				}
			}
			for _, id := range args {
				res := catalog.Lookup(id)
				code, _ := catalog.SourceCode(id)
				vocabID, ok := catalog.VocabularyID(id)
				if !ok && res.Status == vocabulary.StatusNoVocabulary {
					vocabID = vocabulary.NoVocabulary
				}
				name, _ := catalog.Name(id)
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", id, res.Status, res.Table, vocabID, code, name)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if missing := catalog.Missing(); len(missing) > 0 {
				logger.Warn().Strs("concept_ids", missing).Msg("concept ids not found in any table")
			}
			return nil
		},
	}
	cmd.Flags().String("code", "", "reverse lookup by concept code")
	cmd.Flags().String("vocabulary", "", "vocabulary id for --code")
	return cmd
}

func systemsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "systems",
		Short: "List the coding system identifier table",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			normalizer, err := newNormalizer(cfg, newLogger(cfg))
			if err != nil {
				return err
			}

			known := normalizer.Known()
			systems := make([]string, 0, len(known))
			for s := range known {
				systems = append(systems, s)
			}
			sort.Strings(systems)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SYSTEM\tVOCABULARY")
			for _, s := range systems {
				fmt.Fprintf(w, "%s\t%s\n", s, known[s])
			}
			return w.Flush()
		},
	}
}

func profileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profile [category...]",
		Short: "Print the field structure of FHIR records per category",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.FHIRDir == "" {
				return fmt.Errorf("FHIR_DIR must be set")
			}
			logger := newLogger(cfg)

			records, err := source.ReadFHIRDir(cmd.Context(), cfg.FHIRDir, logger)
			if err != nil {
				return err
			}
			profiles := buildProfiles(records, args)

			categories := make([]string, 0, len(profiles))
			for c := range profiles {
				categories = append(categories, c)
			}
			sort.Strings(categories)
			for _, c := range categories {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s\n", c, profiles[c])
			}
			return nil
		},
	}
}

// buildProfiles folds FHIR records into one profile per category. When
// only is non-empty, other categories are skipped.
func buildProfiles(records []source.Record, only []string) map[string]*coding.Node {
	want := make(map[string]bool, len(only))
	for _, c := range only {
		want[c] = true
	}
	out := make(map[string]*coding.Node)
	for _, r := range records {
		if r.Origin != source.OriginFHIR || (len(want) > 0 && !want[r.Category]) {
			continue
		}
		p, ok := out[r.Category]
		if !ok {
			p = coding.NewProfile()
			out[r.Category] = p
		}
		p.Add(r.Data)
	}
	return out
}
