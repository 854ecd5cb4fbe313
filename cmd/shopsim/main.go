// Command shopsim runs the bookstore floor simulation.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/talgya/shopfloor/internal/api"
	"github.com/talgya/shopfloor/internal/config"
	"github.com/talgya/shopfloor/internal/engine"
	"github.com/talgya/shopfloor/internal/metrics"
	"github.com/talgya/shopfloor/internal/persistence"
)

type runFlags struct {
	config    string
	customers int
	employees int
	books     int
	hours     int
	steps     uint64
	seed      int64
	journal   string
	apiPort   int
	interval  time.Duration
	verbose   bool
	quick     bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "shopsim",
		Short:        "shopsim simulates a bookstore floor: books, customers and staff trading messages tick by tick.",
		SilenceUsage: true,
	}

	var f runFlags
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the store for a simulated shift",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, f)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}

	fl := runCmd.Flags()
	fl.StringVar(&f.config, "config", "", "YAML config file")
	fl.IntVar(&f.customers, "customers", 20, "initial customers")
	fl.IntVar(&f.employees, "employees", 5, "employees on shift")
	fl.IntVar(&f.books, "books", 100, "titles in the catalog")
	fl.IntVar(&f.hours, "hours", 8, "simulated hours to run")
	fl.Uint64Var(&f.steps, "steps", 0, "tick budget, overrides --hours")
	fl.Int64Var(&f.seed, "seed", 0, "random seed (0 picks one)")
	fl.StringVar(&f.journal, "journal", "", "SQLite journal path (empty disables)")
	fl.IntVar(&f.apiPort, "api-port", 0, "HTTP API port (0 disables)")
	fl.DurationVar(&f.interval, "interval", 0, "wall-clock time per tick")
	fl.BoolVarP(&f.verbose, "verbose", "v", false, "debug logging")
	fl.BoolVar(&f.quick, "quick", false, "one hour with a small store")

	rootCmd.AddCommand(runCmd)
	return rootCmd
}

// resolveConfig layers .env, the config file and SHOPSIM_* variables, then
// any flags set on the command line.
func resolveConfig(cmd *cobra.Command, f runFlags) (config.Config, error) {
	config.LoadDotEnv(".env", filepath.Join("..", "..", ".env"))

	cfg, err := config.Load(f.config)
	if err != nil {
		return config.Config{}, err
	}

	if f.quick {
		cfg.Store = config.StoreConfig{Customers: 10, Employees: 3, Books: 50}
		cfg.Run.Hours = 1
		cfg.Run.Steps = 0
	}

	fl := cmd.Flags()
	if fl.Changed("customers") {
		cfg.Store.Customers = f.customers
	}
	if fl.Changed("employees") {
		cfg.Store.Employees = f.employees
	}
	if fl.Changed("books") {
		cfg.Store.Books = f.books
	}
	if fl.Changed("hours") {
		cfg.Run.Hours = f.hours
	}
	if fl.Changed("steps") {
		cfg.Run.Steps = f.steps
	}
	if fl.Changed("seed") {
		cfg.Run.Seed = f.seed
	}
	if fl.Changed("journal") {
		cfg.Journal.Path = f.journal
	}
	if fl.Changed("api-port") {
		cfg.API.Port = f.apiPort
	}
	if fl.Changed("interval") {
		cfg.Run.Interval = f.interval
	}
	if f.verbose {
		cfg.Log.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func run(ctx context.Context, cfg config.Config, out io.Writer) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			slog.Info("received signal, stopping after this tick", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	sim, err := engine.NewSimulation(cfg.Engine(), logger)
	if err != nil {
		return fmt.Errorf("build store: %w", err)
	}
	runID := uuid.NewString()
	slog.Info("run configured",
		"run", runID,
		"seed", sim.Seed(),
		"customers", cfg.Store.Customers,
		"employees", cfg.Store.Employees,
		"books", cfg.Store.Books,
		"ticks", cfg.Engine().MaxTicks(),
	)

	// ── Journal ───────────────────────────────────────────────────────
	var journal *persistence.Journal
	if cfg.Journal.Path != "" {
		if dir := filepath.Dir(cfg.Journal.Path); dir != "." {
			os.MkdirAll(dir, 0o755)
		}
		db, err := persistence.Open(cfg.Journal.Path)
		if err != nil {
			return err
		}
		defer db.Close()

		journal, err = persistence.NewJournal(db, sim, runID, cfg, cfg.Journal.CheckpointEvery, logger)
		if err != nil {
			return fmt.Errorf("start journal: %w", err)
		}
		sim.OnTick = journal.OnTick
		slog.Info("journal opened", "path", cfg.Journal.Path)
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	srv := &api.Server{
		Sim:      sim,
		Registry: metrics.NewRegistry(sim),
		Port:     cfg.API.Port,
		Limiter:  api.NewRateLimiter(cfg.API.RatePerSecond, cfg.API.Burst),
		Origins:  cfg.API.CORSOrigins,
		Logger:   logger,
	}
	srv.Start(ctx)

	started := time.Now()
	runErr := sim.Run(ctx)
	if runErr != nil && ctx.Err() == nil {
		return runErr
	}

	if journal != nil {
		if err := journal.Finish(); err != nil {
			slog.Error("journal incomplete", "run", runID, "error", err)
		}
	}

	printSummary(out, sim, time.Since(started))
	return nil
}
