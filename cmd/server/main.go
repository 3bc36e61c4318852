/*
main.go - Application entry point

PURPOSE:
  Command-line entry point of the payroll schedule service. Starts the HTTP
  server, and offers one-shot commands for generation, scenarios and
  templates against the same database.

COMMANDS:
  serve                     HTTP API, /metrics and the rolling scheduler
  generate <legal-entity>   Generate a range and print it as a table
  scenario list|load <id>   Demo data sets
  template apply <file>     Load a YAML/JSON legal-entity template
  template export <id>      Print a legal entity's configuration as YAML

STARTUP SEQUENCE (serve):
  1. Load configuration (flags > env > config file > defaults)
  2. Build the logger and initialize SQLite store
  3. Wire the generator, Kafka notifier and scheduler
  4. Configure HTTP router
  5. Start server with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close the publisher and database connection

EXAMPLES:
  # Run with file database
  ./server serve --db=./data/schedules.db

  # Generate a year without saving it
  ./server generate le-uk --start=2026-01-01 --end=2026-12-31

  # Same, persisted, with a workbook
  ./server generate le-uk --start=2026-01-01 --end=2026-12-31 --save --xlsx=uk.xlsx

ENVIRONMENT:
  Every setting also reads SCHEDULES_<KEY>, see config/config.go.

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Configuration keys
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/warp/payroll-schedules/api"
	"github.com/warp/payroll-schedules/config"
	"github.com/warp/payroll-schedules/events"
	"github.com/warp/payroll-schedules/export"
	"github.com/warp/payroll-schedules/factory"
	"github.com/warp/payroll-schedules/generic"
	"github.com/warp/payroll-schedules/logging"
	"github.com/warp/payroll-schedules/schedule"
	"github.com/warp/payroll-schedules/store/sqlite"
)

var (
	v       = config.New()
	cfgFile string
	cfg     config.Config
	logger  zerolog.Logger
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "server",
		Short:        "Payroll schedule generation service",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.ReadFile(v, cfgFile); err != nil {
				return err
			}
			if err := config.BindFlags(v, cmd.Flags()); err != nil {
				return err
			}
			var err error
			if cfg, err = config.Load(v); err != nil {
				return errors.Wrap(err, "invalid configuration")
			}
			logger = logging.New(cfg.Log, os.Stderr)
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "YAML config file")
	pf.Int("port", 8080, "HTTP server port")
	pf.String("db", "schedules.db", `SQLite database path (":memory:" for in-memory)`)
	pf.String("log-level", "info", "trace, debug, info, warn, error")
	pf.String("log-format", "console", "console or json")
	pf.String("log-file", "", "rotating log file")
	pf.Int("generation-concurrency", schedule.DefaultConcurrency, "periods projected in parallel")
	pf.Int("generation-max-walk-days", generic.DefaultMaxWalk, "working-day walk cap")
	pf.String("kafka-brokers", "", "comma-separated Kafka brokers, empty disables events")
	pf.String("kafka-topic", "payroll-schedules", "Kafka topic for schedule events")

	root.AddCommand(newServeCmd(), newGenerateCmd(), newScenarioCmd(), newTemplateCmd())
	return root
}

// =============================================================================
// WIRING
// =============================================================================

type app struct {
	store     *sqlite.Store
	generator *schedule.Generator
	publisher events.Publisher
}

func openApp() (*app, error) {
	store, err := sqlite.New(cfg.DB)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize database")
	}

	publisher := events.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)

	gen := schedule.NewGenerator(store, logger)
	gen.Concurrency = cfg.Generation.Concurrency
	gen.Resolver.MaxWalk = cfg.Generation.MaxWalkDays
	gen.Notifier = events.NewNotifier(publisher)

	return &app{store: store, generator: gen, publisher: publisher}, nil
}

func (a *app) Close() {
	if err := a.publisher.Close(); err != nil {
		logger.Warn().Err(err).Msg("close publisher")
	}
	if err := a.store.Close(); err != nil {
		logger.Warn().Err(err).Msg("close database")
	}
}

// =============================================================================
// SERVE
// =============================================================================

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
	cmd.Flags().Bool("scheduler-enabled", false, "regenerate schedules in the background")
	cmd.Flags().Duration("scheduler-interval", 24*time.Hour, "time between scheduler runs")
	cmd.Flags().Int("scheduler-horizon-months", 12, "months generated ahead")
	return cmd
}

func serve() error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	handler := api.NewHandler(a.store, a.generator, logger)
	router := api.NewRouter(handler)

	scheduler := api.NewScheduleScheduler(a.generator, logger)
	scheduler.Enabled = cfg.Scheduler.Enabled
	scheduler.Interval = cfg.Scheduler.Interval
	scheduler.HorizonMonths = cfg.Scheduler.HorizonMonths
	scheduler.Start()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Int("port", cfg.Port).Str("db", cfg.DB).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		scheduler.Stop()
		return errors.Wrap(err, "server failed")
	}

	logger.Info().Msg("shutting down server")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
	return nil
}

// =============================================================================
// GENERATE
// =============================================================================

func newGenerateCmd() *cobra.Command {
	var (
		start, end string
		save       bool
		asJSON     bool
		xlsxPath   string
	)
	cmd := &cobra.Command{
		Use:   "generate <legal-entity-id>",
		Short: "Generate schedules for a range and print them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rng, err := cliRange(start, end)
			if err != nil {
				return err
			}

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			in := schedule.GenerateInput{LegalEntityID: args[0], Start: rng.Start, End: rng.End}
			var set *schedule.GeneratedScheduleSet
			if save {
				set, err = a.generator.GenerateAndSave(cmd.Context(), in)
			} else {
				set, err = a.generator.Generate(cmd.Context(), in)
			}
			if err != nil {
				return err
			}

			if xlsxPath != "" {
				if err := writeWorkbook(xlsxPath, set); err != nil {
					return err
				}
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(api.NewScheduleSetDTO(set, save))
			}
			renderScheduleSet(cmd, set)
			return nil
		},
	}

	today := generic.Today()
	cmd.Flags().StringVar(&start, "start", generic.StartOfMonth(today).String(), "range start (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "range end (YYYY-MM-DD), default one year after start")
	cmd.Flags().BoolVar(&save, "save", false, "persist the schedules and publish an event")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	cmd.Flags().StringVar(&xlsxPath, "xlsx", "", "also write an xlsx workbook to this path")
	return cmd
}

func cliRange(start, end string) (generic.Range, error) {
	s, err := generic.ParseDate(start)
	if err != nil {
		return generic.Range{}, err
	}
	e := s.AddMonths(12).AddDays(-1)
	if end != "" {
		if e, err = generic.ParseDate(end); err != nil {
			return generic.Range{}, err
		}
	}
	rng := generic.Range{Start: s, End: e}
	return rng, rng.Validate()
}

func writeWorkbook(path string, set *schedule.GeneratedScheduleSet) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create workbook")
	}
	if err := export.WriteScheduleSet(f, set); err != nil {
		f.Close()
		return err
	}
	return errors.Wrap(f.Close(), "close workbook")
}

// renderScheduleSet prints one row per period with one column per milestone.
func renderScheduleSet(cmd *cobra.Command, set *schedule.GeneratedScheduleSet) {
	out := cmd.OutOrStdout()

	var identifiers []string
	if len(set.Schedules) > 0 {
		for _, sd := range set.Schedules[0].ScheduleDates {
			identifiers = append(identifiers, sd.Identifier)
		}
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	header := table.Row{"PERIOD", "START", "END", "TARGET"}
	for _, id := range identifiers {
		header = append(header, strings.ToUpper(id))
	}
	tw.AppendHeader(header)
	for _, s := range set.Schedules {
		row := table.Row{s.Name, s.Date.String(), s.End.String(), s.TargetDate.String()}
		for _, sd := range s.ScheduleDates {
			cell := sd.Date.String()
			if sd.Target {
				cell += " *"
			}
			row = append(row, cell)
		}
		tw.AppendRow(row)
	}
	tw.AppendFooter(table.Row{fmt.Sprintf("%d periods", len(set.Schedules)), "", "", string(set.Frequency)})
	tw.Render()

	for _, w := range set.Warnings {
		fmt.Fprintf(out, "warning: %v\n", w)
	}
}

// =============================================================================
// SCENARIOS AND TEMPLATES
// =============================================================================

func newScenarioCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scenario",
		Short: "List or load demo data sets",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List demo scenarios",
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := table.NewWriter()
			tw.SetOutputMirror(cmd.OutOrStdout())
			tw.AppendHeader(table.Row{"ID", "LEGAL ENTITY", "DESCRIPTION"})
			for _, s := range api.Scenarios() {
				tw.AppendRow(table.Row{s.ID, s.LegalEntityID, s.Description})
			}
			tw.Render()
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "load <scenario-id>",
		Short: "Reset the database and load a scenario",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			return api.NewHandler(a.store, a.generator, logger).LoadScenarioByID(cmd.Context(), args[0])
		},
	})
	return cmd
}

func newTemplateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Import or export legal-entity templates",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "apply <file>",
		Short: "Load a YAML or JSON template into the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return errors.Wrap(err, "read template")
			}
			tpl, err := factory.NewTemplateFactory().Parse(data, factory.FormatFromPath(args[0]))
			if err != nil {
				return err
			}

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := api.NewHandler(a.store, a.generator, logger).ApplyTemplate(cmd.Context(), tpl); err != nil {
				return err
			}
			logger.Info().Str("legal_entity_id", tpl.LegalEntity.ID).Int("milestones", len(tpl.Milestones)).Msg("template applied")
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "export <legal-entity-id>",
		Short: "Print a legal entity's configuration as a YAML template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			tpl, err := loadTemplate(cmd.Context(), a.store, args[0])
			if err != nil {
				return err
			}
			data, err := factory.MarshalYAML(tpl)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	})
	return cmd
}

// loadTemplate rebuilds a template from stored configuration. Holidays are
// shared between entities and are not exported.
func loadTemplate(ctx context.Context, store *sqlite.Store, legalEntityID string) (*factory.Template, error) {
	le, err := store.GetLegalEntity(ctx, legalEntityID)
	if err != nil {
		return nil, err
	}
	ms, err := store.ListMilestones(ctx, legalEntityID)
	if err != nil {
		return nil, err
	}
	orgs, err := store.ListOrganizations(ctx)
	if err != nil {
		return nil, err
	}

	tpl := &factory.Template{LegalEntity: le, Milestones: ms}
	for _, org := range orgs {
		if le.EntityIDFor(org.Type) == org.ID {
			tpl.Organizations = append(tpl.Organizations, org)
		}
	}
	return tpl, nil
}
