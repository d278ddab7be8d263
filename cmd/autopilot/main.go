package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jeanpaul/autopilot/internal/agent"
	"github.com/jeanpaul/autopilot/internal/cache"
	"github.com/jeanpaul/autopilot/internal/coder"
	"github.com/jeanpaul/autopilot/internal/config"
	"github.com/jeanpaul/autopilot/internal/decision"
	"github.com/jeanpaul/autopilot/internal/embeddings"
	"github.com/jeanpaul/autopilot/internal/events"
	"github.com/jeanpaul/autopilot/internal/executor"
	"github.com/jeanpaul/autopilot/internal/goals"
	"github.com/jeanpaul/autopilot/internal/logging"
	"github.com/jeanpaul/autopilot/internal/memory"
	"github.com/jeanpaul/autopilot/internal/metrics"
	"github.com/jeanpaul/autopilot/internal/provider"
	"github.com/jeanpaul/autopilot/internal/reflect"
	"github.com/jeanpaul/autopilot/internal/research"
	"github.com/jeanpaul/autopilot/internal/safety"
	"github.com/jeanpaul/autopilot/internal/schedule"
)

const version = "1.0.0"

func main() {
	iterationsFlag := flag.Int("iterations", 0, "Iterations per run (0 = from config)")
	autoFlag := flag.Bool("auto", false, "Enable real code execution (default is dry-run)")
	scheduleFlag := flag.String("schedule", "", "Cron spec for periodic runs (overrides config)")
	goalFlag := flag.String("goal", "", "Seed goal to add before the run")
	versionFlag := flag.Bool("version", false, "Print version")
	initConfigFlag := flag.Bool("init-config", false, "Write the default config file and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("autopilot %s\n", version)
		return
	}

	if *initConfigFlag {
		path, err := config.WriteDefault()
		if err != nil {
			fatal("init-config: %v", err)
		}
		fmt.Printf("wrote %s\n", path)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fatal("configuration: %v", err)
	}

	log := logging.New(cfg.LogLevel, cfg.LogFile)

	// Process-scoped components, constructed exactly once.
	met := metrics.NewCollector()
	bus := events.NewBus(log)
	store := cache.New(cfg.Cache.Enabled, cfg.Cache.MaxSize,
		time.Duration(cfg.Cache.TTLSeconds)*time.Second, log)
	filter := safety.New(cfg.Safety.Enabled, cfg.Safety.BlockDangerous, cfg.Safety.RestrictedGlobs, log)

	index, err := memory.OpenIndex(cfg.Paths.IndexDB)
	if err != nil {
		// The JSON log alone is enough to run
		log.WithError(err).Warn("memory index unavailable, continuing without it")
		index = nil
	} else {
		defer index.Close()
	}
	mem := memory.NewLog(cfg.Paths.MemoryFile, cfg.Loop.MaxMemoryContent, index, log)
	goalStore := goals.NewStore(cfg.Paths.GoalsFile, bus, log)

	client := provider.NewClient(cfg.Oracle.BaseURL, cfg.Oracle.APIKey, cfg.Oracle.Model,
		cfg.Oracle.Temperature, cfg.Oracle.MaxTokens,
		time.Duration(cfg.Oracle.TimeoutSeconds)*time.Second)
	oracle := provider.WithRetry(client, 3, time.Second, log)
	opts := provider.Options{}

	var emb *embeddings.Manager
	if cfg.Reflector.UseEmbeddings {
		emb = embeddings.New(oracle, cfg.Oracle.EmbeddingModel, store, log)
	}

	a := agent.New(agent.Options{
		Decider:    decision.NewEngine(oracle, opts, met, log),
		Coder:      coder.New(oracle, opts, store, cfg.Loop.MaxCodeLength, log),
		Executor:   executor.New(cfg.Executor.Enabled, time.Duration(cfg.Executor.TimeoutSeconds)*time.Second, log),
		Researcher: research.New(oracle, opts, store, index, filter, cfg.Research.RenderJS, log),
		Reflector:  reflect.New(oracle, opts, mem, emb, log),
		Goals:      goalStore,
		Memory:     mem,
		Filter:     filter,
		Bus:        bus,
		Cache:      store,
		Metrics:    met,
		ReportPath: cfg.Paths.ReportFile,
		Logger:     log,
	})

	if *goalFlag != "" {
		goalStore.Add(*goalFlag, goals.PriorityHigh)
	}

	iterations := cfg.Loop.MaxIterations
	if *iterationsFlag > 0 {
		iterations = *iterationsFlag
	}
	spec := cfg.Schedule
	if *scheduleFlag != "" {
		spec = *scheduleFlag
	}

	printBanner(cfg, iterations, *autoFlag, spec)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if spec == "" {
		report := a.Run(ctx, iterations, *autoFlag)
		printSummary(report)
		return
	}

	// Scheduled mode: this goroutine owns all core state and drains the
	// trigger channel; the cron callback never touches the loop directly.
	trigger, err := schedule.New(spec, log)
	if err != nil {
		fatal("schedule: %v", err)
	}
	trigger.Start()
	defer trigger.Stop()

	report := a.Run(ctx, iterations, *autoFlag)
	printSummary(report)
	for {
		select {
		case <-trigger.C():
			report = a.Run(ctx, iterations, *autoFlag)
			printSummary(report)
		case <-ctx.Done():
			log.Info("shutting down")
			return
		}
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "autopilot: "+format+"\n", args...)
	os.Exit(1)
}
