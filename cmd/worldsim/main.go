// Command worldsim runs the VeraMatrix population simulation.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/talgya/veramatrix/internal/config"
)

// Set by -ldflags "-X main.version=...".
var version = "dev"

var (
	v          = viper.New()
	configPath string
	showChart  bool
)

var rootCmd = &cobra.Command{
	Use:   "worldsim",
	Short: "Agent-based population simulator",
	Long: `worldsim advances a population of agents one simulated day at a time.
Each agent ages, earns and loses money, gets stressed, occasionally has a life
event, may become self-aware, and eventually dies. Daily records go to SQLite.`,
	SilenceUsage: true,
	RunE:         runSimulation,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a simulation (default)",
	RunE:  runSimulation,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "worldsim", version)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "YAML config file")
	pf.String("db", "veramatrix.db", "SQLite database path (empty disables storage)")
	pf.String("log-level", "info", "Log level: debug, info, warn, error")
	pf.Uint64("seed", 0, "PRNG seed (0 = crypto/rand)")
	pf.Int("days", 0, "Days to simulate (0 = random whole years)")
	pf.Int("population", 0, "Initial population (0 = random)")
	pf.Duration("pace", 0, "Real-time delay per simulated day")
	pf.Int("api-port", 0, "Serve the HTTP API on this port (0 = disabled)")
	pf.BoolVar(&showChart, "chart", false, "Print charts of the daily series at the end")

	for key, flag := range map[string]string{
		"db_path":    "db",
		"log_level":  "log-level",
		"seed":       "seed",
		"days":       "days",
		"population": "population",
		"pace":       "pace",
		"api_port":   "api-port",
	} {
		if err := v.BindPFlag(key, pf.Lookup(flag)); err != nil {
			panic(err)
		}
	}

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("could not load .env file", "error", err)
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads and validates settings, then installs the default logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(v, configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	setupLogging(cfg.Level())
	return cfg, nil
}

func setupLogging(level slog.Level) {
	handler := log.NewWithOptions(os.Stderr, log.Options{
		Level:           log.Level(level),
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
	})
	slog.SetDefault(slog.New(handler))
}
