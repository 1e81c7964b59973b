// Command ledgerctl drives the allocation engine from the shell. Requests are
// read as JSON from -in or stdin, results are written as JSON to stdout and
// logs go to stderr.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/erp/allocation/internal/infrastructure/config"
	"github.com/erp/allocation/internal/infrastructure/logger"
	"github.com/erp/allocation/internal/infrastructure/persistence"
	"github.com/erp/allocation/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to config.toml (default: ./config.toml or /etc/ledger/config.toml)")
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(2)
	}

	if err := run(configPath, args); err != nil {
		fmt.Fprintf(os.Stderr, "ledgerctl: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func run(configPath string, args []string) error {
	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logCfg := logger.FromSettings(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output)
	if logCfg.Output == "stdout" {
		// stdout carries command output
		logCfg.Output = "stderr"
	}
	bootLog, err := logger.New(logCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	providers, err := telemetry.Setup(ctx, cfg.Telemetry, bootLog)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := providers.Shutdown(context.Background()); err != nil {
			bootLog.Warn("Telemetry shutdown failed", zap.Error(err))
		}
	}()

	level, err := zapcore.ParseLevel(logCfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	log, err := logger.New(logCfg, providers.ZapCore(level))
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	db, err := persistence.NewDatabase(&cfg.Database, log.Named("gorm"), logger.MapGormLogLevel(cfg.Log.SQL))
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.Database.Driver == config.DriverSQLite {
		if err := db.AutoMigrate(); err != nil {
			return fmt.Errorf("failed to migrate sqlite database: %w", err)
		}
	}
	if err := telemetry.RegisterDBTracing(db.DB, telemetry.DBTracingConfig{
		Enabled:    cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		DBSystem:   dbSystem(cfg.Database.Driver),
		LogFullSQL: cfg.Telemetry.DBLogFullSQL,
	}, log); err != nil {
		return fmt.Errorf("failed to register database tracing: %w", err)
	}

	metrics, err := telemetry.NewAllocationMetrics(providers.Meter(cfg.Telemetry.ServiceName))
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	app, err := newApp(db, log, metrics)
	if err != nil {
		return err
	}

	ctx = logger.WithCorrelationID(ctx, uuid.NewString())
	ctx = logger.WithContext(ctx, log)
	return app.dispatch(ctx, args, os.Stdin, os.Stdout)
}

func dbSystem(driver string) string {
	if driver == config.DriverPostgres {
		return "postgresql"
	}
	return driver
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Ledger allocation CLI

Usage:
  ledgerctl [-config path] <command> [flags]

Document commands:
  record                          Record a document (RecordDocumentRequest JSON)
  void -party T:ID -id N          Void an unallocated document
  deallocate -party T:ID -id N    Remove one allocation
  allocations -party T:ID [-debit N]
                                  List allocations

Allocation commands:
  cross                           Exact-cover cross allocation (CrossAllocationRequest JSON)
  batch -party T:ID -id N         Show a cross allocation batch
  ordered                         Apply credits in order (OrderedCreditRequest JSON)
  suggest -party T:ID             Open credits oldest first
  preview                         Validate a manual plan (ManualPlan JSON)
  execute                         Validate and write a manual plan (ManualPlan JSON)

Reporting commands:
  balances -party T:ID            Outstanding, credits and net
  statement -party T:ID           Per-document statement

JSON commands read from -in <file> or stdin. A party is written TYPE:ID,
for example CUSTOMER:42.`)
}
