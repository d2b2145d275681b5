package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/talgya/veramatrix/internal/api"
	"github.com/talgya/veramatrix/internal/chart"
	"github.com/talgya/veramatrix/internal/engine"
	"github.com/talgya/veramatrix/internal/persistence"
	"github.com/talgya/veramatrix/internal/tech"
)

func runSimulation(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	places, err := cfg.Hierarchy()
	if err != nil {
		return err
	}
	dice := cfg.Dice()
	plan := cfg.Plan(dice, time.Now())

	slog.Info("VeraMatrix population simulation",
		"days", plan.Days,
		"population", plan.Population,
		"start", plan.Start.Format(time.DateOnly),
		"localities", places.LocalityCount(),
		"random_org", cfg.RandomOrgKey != "",
	)

	// ── Database ──────────────────────────────────────────────────────
	var db *persistence.DB
	var recorder engine.Recorder = engine.NopRecorder{}
	if cfg.DBPath != "" {
		if dir := filepath.Dir(cfg.DBPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create db dir: %w", err)
			}
		}
		db, err = persistence.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		recorder = db
		slog.Info("database opened", "path", cfg.DBPath)
	}

	// ── World ─────────────────────────────────────────────────────────
	sim, err := engine.NewSimulation(engine.Options{
		Places:       places,
		Population:   plan.Population,
		Technologies: tech.FromNames(cfg.Technologies),
		Start:        plan.Start,
		Dice:         dice,
		Rules:        cfg.Rules,
		Rates:        cfg.Rates,
		Recorder:     recorder,
	})
	if err != nil {
		return err
	}
	if db != nil {
		if err := db.StartRun(ctx, sim); err != nil {
			return fmt.Errorf("start run: %w", err)
		}
	}
	slog.Info("world created", "run", sim.RunID, "population", sim.Stats.Population)

	// ── Engine ────────────────────────────────────────────────────────
	eng := engine.NewEngine()
	eng.SetInterval(cfg.Pace)
	eng.OnDay = func(ctx context.Context, day uint64) {
		sim.AdvanceDay(ctx)
		if day%365 == 0 {
			snap := sim.Snapshot()
			slog.Info("year completed",
				"date", snap.CurrentTime.Format(time.DateOnly),
				"population", snap.Stats.Population,
				"deaths", snap.Stats.TotalDeaths,
				"births", snap.Stats.TotalBirths,
			)
		}
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	if cfg.APIPort > 0 {
		srv := &api.Server{
			Sim:      sim,
			Eng:      eng,
			DB:       db,
			Port:     cfg.APIPort,
			AdminKey: cfg.AdminKey,
		}
		srv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Error("HTTP shutdown failed", "error", err)
			}
		}()
	}

	runErr := eng.Run(ctx, plan.Days)
	if errors.Is(runErr, context.Canceled) {
		slog.Info("run interrupted, saving partial state", "day", eng.Day)
		runErr = nil
	}

	if db != nil {
		// The run context may already be cancelled; the final save must still happen.
		if err := db.SaveFinalState(context.Background(), sim); err != nil {
			slog.Error("final save failed", "error", err)
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprint(out, sim.Summary())
	if showChart {
		for _, m := range chartedMetrics {
			fmt.Fprintln(out, chart.Render(m.String(), sim.Series(m), 72, 10))
		}
	}
	return runErr
}
