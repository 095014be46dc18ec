// Package main provides the entry point for the permission rule engine
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/authz-engine/permission-rules/internal/audit"
	"github.com/authz-engine/permission-rules/internal/config"
	"github.com/authz-engine/permission-rules/internal/engine"
	"github.com/authz-engine/permission-rules/internal/metrics"
	"github.com/authz-engine/permission-rules/internal/persistence"
	"github.com/authz-engine/permission-rules/internal/policy"
	"github.com/authz-engine/permission-rules/internal/server"
	"github.com/authz-engine/permission-rules/internal/template"
	"github.com/authz-engine/permission-rules/pkg/types"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to the YAML configuration file")
		logLevel    = flag.String("log-level", "", "Log level override (debug, info, warn, error)")
		logFormat   = flag.String("log-format", "", "Log format override (json, console)")
		httpPort    = flag.Int("http-port", -1, "HTTP port override for health/metrics")
		evaluate    = flag.String("evaluate", "", "Evaluate the JSON context in this file, print the decision and exit")
		withElse    = flag.Bool("else", false, "Honour else branches with -evaluate")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("permission-engine %s\n", Version)
		fmt.Printf("  Build Time: %s\n", BuildTime)
		fmt.Printf("  Git Commit: %s\n", GitCommit)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if *httpPort >= 0 {
		cfg.Server.Port = *httpPort
	}

	logger, err := initLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to start permission engine", zap.Error(err))
	}

	if *evaluate != "" {
		code := runEvaluate(ctx, app.engine, *evaluate, *withElse)
		app.close(context.Background())
		os.Exit(code)
	}

	if err := app.serve(ctx, cfg); err != nil {
		logger.Error("Server error", zap.Error(err))
		app.close(context.Background())
		os.Exit(1)
	}
}

// app holds the wired components
type app struct {
	store     persistence.Store
	auditLog  *audit.Log
	registry  *policy.Registry
	templates *template.Engine
	engine    *engine.Engine
	metrics   metrics.Metrics
	watcher   *policy.DirWatcher
	logger    *zap.Logger
}

func build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	a := &app{logger: logger, metrics: metrics.NewNoOpMetrics()}
	if cfg.Metrics.Enabled {
		a.metrics = metrics.NewPrometheusMetrics(cfg.Metrics.Namespace)
	}

	store, err := persistence.Open(ctx, cfg.Persistence, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open rule store: %w", err)
	}
	a.store = store

	var sinks []audit.Sink
	for _, sc := range cfg.Audit.Sinks {
		sink, err := audit.NewSink(sc)
		if err != nil {
			return nil, fmt.Errorf("failed to create audit sink %s: %w", sc.Type, err)
		}
		sinks = append(sinks, sink)
	}
	if store != nil && cfg.Persistence.AuditSink {
		sinks = append(sinks, store)
	}

	a.auditLog, err = audit.New(cfg.Audit, logger, sinks...)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit log: %w", err)
	}

	a.registry = policy.NewRegistry(a.auditLog, logger)
	a.registry.SetMetrics(a.metrics)

	if err := a.loadRules(ctx, cfg.Rules.SeedPath); err != nil {
		return nil, err
	}

	a.templates, err = template.New(a.registry, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create template engine: %w", err)
	}
	a.templates.SetMetrics(a.metrics)

	if dir := cfg.Templates.Dir; dir != "" {
		if cfg.Templates.Watch {
			a.watcher, err = a.templates.Watch(ctx, dir)
		} else {
			err = a.templates.LoadDirectory(dir)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load templates: %w", err)
		}
	}

	a.engine, err = engine.New(cfg.Engine, a.registry, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create decision engine: %w", err)
	}
	a.engine.SetMetrics(a.metrics)

	logger.Info("Permission engine initialized",
		zap.String("version", Version),
		zap.Int("rules", a.registry.Count()),
		zap.Int("active_rules", len(a.registry.ActiveRules())),
		zap.Int("templates", a.templates.Len()),
		zap.String("group_evaluation", string(cfg.Engine.GroupEvaluation)),
		zap.Bool("cache_enabled", cfg.Engine.CacheEnabled),
		zap.String("persistence", string(cfg.Persistence.Driver)),
	)
	return a, nil
}

// loadRules restores persisted rules, then seeds from seedPath when the
// registry is still empty
func (a *app) loadRules(ctx context.Context, seedPath string) error {
	if a.store != nil {
		rules, err := a.store.LoadAllRules(ctx)
		if err != nil {
			return fmt.Errorf("failed to load persisted rules: %w", err)
		}
		if err := a.registry.Restore(rules); err != nil {
			return fmt.Errorf("failed to restore rules: %w", err)
		}
		a.registry.SetPersister(a.store)
		a.logger.Info("Restored persisted rules", zap.Int("count", len(rules)))
	}

	if seedPath == "" || a.registry.Count() > 0 {
		return nil
	}

	loader := policy.NewLoader(a.logger)
	info, err := os.Stat(seedPath)
	if err != nil {
		return fmt.Errorf("failed to read rule seeds: %w", err)
	}

	var seeds []*types.PermissionRule
	if info.IsDir() {
		seeds, err = loader.LoadFromDirectory(seedPath)
	} else {
		seeds, err = loader.LoadFromFile(seedPath)
	}
	if err != nil {
		return fmt.Errorf("failed to load rule seeds: %w", err)
	}

	for _, rule := range seeds {
		if _, err := a.registry.Add(ctx, types.SystemActor, rule); err != nil {
			return fmt.Errorf("failed to seed rule %q: %w", rule.Name, err)
		}
	}
	a.logger.Info("Seeded rules", zap.String("path", seedPath), zap.Int("count", len(seeds)))
	return nil
}

func (a *app) serve(ctx context.Context, cfg config.Config) error {
	health := server.NewHealthHandler(Version, a.logger)
	if a.store != nil {
		health.AddCheck("persistence", a.store.Ping)
	}
	health.AddInfo("rules_total", func() string { return strconv.Itoa(a.registry.Count()) })
	health.AddInfo("rules_active", func() string { return strconv.Itoa(len(a.registry.ActiveRules())) })
	health.AddInfo("rules_generation", func() string { return strconv.FormatUint(a.registry.Generation(), 10) })
	health.AddInfo("templates", func() string { return strconv.Itoa(a.templates.Len()) })
	health.AddInfo("audit_entries", func() string { return strconv.Itoa(a.auditLog.Len()) })

	srv, err := server.New(cfg.Server, health, a.metrics, a.logger)
	if err != nil {
		return err
	}
	if err := srv.Listen(); err != nil {
		return err
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Serve()
	}()
	health.SetReady(true)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		a.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("Error stopping HTTP server", zap.Error(err))
	}
	a.close(shutdownCtx)

	a.logger.Info("Permission engine stopped")
	return nil
}

// close releases components in dependency order
func (a *app) close(ctx context.Context) {
	if a.watcher != nil {
		if err := a.watcher.Stop(); err != nil {
			a.logger.Error("Error stopping template watcher", zap.Error(err))
		}
	}
	if a.engine != nil {
		if err := a.engine.Shutdown(ctx); err != nil {
			a.logger.Error("Error stopping decision engine", zap.Error(err))
		}
	}
	if a.auditLog != nil {
		if err := a.auditLog.Close(); err != nil {
			a.logger.Error("Error flushing audit log", zap.Error(err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error("Error closing rule store", zap.Error(err))
		}
	}
}

// runEvaluate prints the decision for a JSON context file and returns the
// exit code: 0 allowed, 2 denied, 1 on error
func runEvaluate(ctx context.Context, eng *engine.Engine, path string, withElse bool) int {
	content, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read context: %v\n", err)
		return 1
	}

	var evalCtx types.EvaluationContext
	if err := json.Unmarshal(content, &evalCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse context: %v\n", err)
		return 1
	}

	evaluateFn := eng.EvaluatePermission
	if withElse {
		evaluateFn = eng.EvaluateWithElse
	}

	result, err := evaluateFn(ctx, &evalCtx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Evaluation failed: %v\n", err)
		return 1
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(result)

	if !result.Allowed {
		return 2
	}
	return 0
}

// initLogger initializes the zap logger
func initLogger(level, format string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	var config zap.Config
	if format == "console" {
		config = zap.NewDevelopmentConfig()
	} else {
		config = zap.NewProductionConfig()
	}
	config.Level = zap.NewAtomicLevelAt(zapLevel)

	return config.Build()
}
