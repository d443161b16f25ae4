package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/pthm-cable/eddy/config"
	"github.com/pthm-cable/eddy/game"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	logStats := flag.Bool("log-stats", false, "Output stats via slog")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	statsWindow := flag.Float64("stats-window", 0, "Stats window size in seconds (0 = use config)")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs and config snapshot")
	snapshotDir := flag.String("snapshot-dir", "", "Directory for the field snapshot written on exit")
	maxTicks := flag.Int("max-ticks", 0, "Stop after N ticks (0 = unlimited)")
	stepsPerUpdate := flag.Int("steps-per-update", 1, "Simulation ticks per update call")

	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		slog.Error("invalid log level", "level", *logLevel, "error", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Initialize config before anything else
	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	opts := game.Options{
		LogStats:       *logStats,
		StatsWindowSec: *statsWindow,
		OutputDir:      *outputDir,
		SnapshotDir:    *snapshotDir,
		StepsPerUpdate: *stepsPerUpdate,
	}

	g, err := game.NewGameWithOptions(opts)
	if err != nil {
		slog.Error("failed to build scene", "error", err)
		os.Exit(1)
	}

	slog.Info("starting headless simulation",
		"config", *configPath,
		"max_ticks", *maxTicks,
		"steps_per_update", *stepsPerUpdate,
	)

	for {
		if err := g.Update(); err != nil {
			slog.Error("simulation failed", "tick", g.Tick(), "error", err)
			g.Unload()
			os.Exit(1)
		}

		if *maxTicks > 0 && int(g.Tick()) >= *maxTicks {
			slog.Info("max ticks reached", "tick", g.Tick())
			break
		}
	}
	g.Unload()
}
