package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/talgya/veramatrix/internal/chart"
	"github.com/talgya/veramatrix/internal/engine"
	"github.com/talgya/veramatrix/internal/persistence"
)

// chartedMetrics are the daily series drawn after a run and by history.
var chartedMetrics = []engine.Metric{
	engine.MetricPopulation, engine.MetricBirths, engine.MetricDeaths, engine.MetricWealth,
}

var (
	historyRun    string
	historyWidth  int
	historyHeight int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Chart the stored daily statistics of a run",
	Long:  "Loads daily_stats for a run (the latest one by default) and draws terminal charts.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.DBPath == "" {
			return fmt.Errorf("history needs a database (--db)")
		}

		db, err := persistence.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()

		ctx := cmd.Context()
		runID := historyRun
		if runID == "" {
			if runID, err = db.LatestRun(ctx); err != nil {
				return fmt.Errorf("no runs recorded in %s: %w", cfg.DBPath, err)
			}
		}

		samples, err := db.LoadSamples(ctx, runID)
		if err != nil {
			return fmt.Errorf("load history: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Run %s: %d days\n", runID, len(samples))
		for _, m := range chartedMetrics {
			fmt.Fprintln(out, chart.Render(m.String(), engine.SeriesOf(samples, m), historyWidth, historyHeight))
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyRun, "run", "", "Run ID (default: latest)")
	historyCmd.Flags().IntVar(&historyWidth, "width", 72, "Chart width in columns")
	historyCmd.Flags().IntVar(&historyHeight, "height", 10, "Chart height in rows")
}
