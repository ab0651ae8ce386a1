package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/filtersense/filtersense/internal/api"
	"github.com/filtersense/filtersense/internal/cli"
	"github.com/filtersense/filtersense/internal/config"
	"github.com/filtersense/filtersense/internal/eventbus"
	"github.com/filtersense/filtersense/internal/filter"
	"github.com/filtersense/filtersense/internal/ruleset"
	"github.com/filtersense/filtersense/internal/service"
	"github.com/filtersense/filtersense/internal/store"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "check":
		err = cli.RunCheck(os.Args[2:], os.Stdout)
	case "rules":
		err = cli.RunRules(os.Args[2:], os.Stdout)
	case "serve":
		err = runServe(os.Args[2:])
	case "version", "-version", "--version":
		fmt.Fprintf(os.Stderr, "filtersense %s\n", version)
		return
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		printUsage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	addr := fs.String("addr", "", "API listen address (overrides config)")
	dbPath := fs.String("db", "", "SQLite check log path, \"\" in config disables it (overrides config)")
	rulesPath := fs.String("rules", "", "rule pack file, YAML or TOML (overrides config)")
	watch := fs.Bool("watch", false, "reload the rule pack when it changes (overrides config)")
	logLevel := fs.String("log-level", "", "log level: debug, info, warn, error (overrides config)")
	logFormat := fs.String("log-format", "", "log format: text, json (overrides config)")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	// Flags only override the config when given explicitly.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Server.Addr = *addr
		case "db":
			cfg.Store.Path = *dbPath
		case "rules":
			cfg.Rules.Path = *rulesPath
		case "watch":
			cfg.Rules.Watch = *watch
		case "log-level":
			cfg.Logging.Level = *logLevel
		case "log-format":
			cfg.Logging.Format = *logFormat
		}
	})
	if cfg.Server.Addr == "" {
		return fmt.Errorf("no listen address configured")
	}

	logger := config.NewLogger(os.Stderr, cfg.Logging.Format, cfg.Logging.Level)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Check log (optional)
	var checkLog store.Store
	if cfg.Store.Path != "" {
		sqliteStore, err := store.NewSQLiteStore(cfg.Store.Path, logger)
		if err != nil {
			return fmt.Errorf("initialize store: %w", err)
		}
		defer sqliteStore.Close()
		checkLog = sqliteStore
		logger.Info("check log enabled", "path", cfg.Store.Path)
	}

	eb := eventbus.New(256)

	f := filter.New(nil)
	if cfg.Rules.Path != "" {
		pack, err := ruleset.Load(cfg.Rules.Path)
		if err != nil {
			return err
		}
		f = pack.Filter()
		logger.Info("rule pack loaded", "path", cfg.Rules.Path, "rules", len(f.Rules()))
	}

	svc := service.New(f, checkLog, eb, logger)

	if cfg.Rules.Path != "" && cfg.Rules.Watch {
		w, err := ruleset.NewWatcher(cfg.Rules.Path, 0, logger)
		if err != nil {
			return err
		}
		w.OnReload = func(p *ruleset.Pack) {
			svc.Replace(p.Filter())
		}
		w.OnError = func(err error) {
			logger.Warn("rule pack reload failed, keeping previous rules", "path", cfg.Rules.Path, "error", err)
		}
		go w.Run(ctx)
	}

	srv := api.NewServer(cfg.Server.Addr, svc, checkLog, eb, logger)
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("api server: %w", err)
	}

	checks, blocked := svc.Totals()
	logger.Info("shutting down", "checks", checks, "blocked", blocked)
	return nil
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "FilterSense: pattern-based text filter")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  filtersense check [-rules file] [text ...]   Check text, \"|\" separates inputs")
	fmt.Fprintln(os.Stderr, "  filtersense rules [-rules file]              List rules in evaluation order")
	fmt.Fprintln(os.Stderr, "  filtersense serve [options]                  Run the HTTP API")
	fmt.Fprintln(os.Stderr, "  filtersense version                          Print version")
	fmt.Fprintln(os.Stderr, "  filtersense help                             Show this help")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Serve options:")
	fmt.Fprintln(os.Stderr, "  -config string       YAML config file")
	fmt.Fprintln(os.Stderr, "  -addr string         Listen address (default \":9090\")")
	fmt.Fprintln(os.Stderr, "  -db string           SQLite check log (default \"~/.filtersense/checks.db\", \"\" to disable)")
	fmt.Fprintln(os.Stderr, "  -rules string        Rule pack file (YAML or TOML)")
	fmt.Fprintln(os.Stderr, "  -watch               Reload the rule pack when it changes")
	fmt.Fprintln(os.Stderr, "  -log-level string    Log level: debug, info, warn, error (default \"info\")")
	fmt.Fprintln(os.Stderr, "  -log-format string   Log format: text, json (default \"text\")")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Environment:")
	fmt.Fprintln(os.Stderr, "  FILTERSENSE_ADDR, FILTERSENSE_DB, FILTERSENSE_RULES, FILTERSENSE_WATCH_RULES,")
	fmt.Fprintln(os.Stderr, "  FILTERSENSE_LOG_FORMAT, FILTERSENSE_LOG_LEVEL")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Examples:")
	fmt.Fprintln(os.Stderr, "  filtersense check \"Contact me at test@example.com | hello\"")
	fmt.Fprintln(os.Stderr, "  filtersense serve -rules rules.yaml -watch")
	fmt.Fprintln(os.Stderr, "  curl -d '{\"text\":\"call 123-456-7890\"}' localhost:9090/api/classify")
}
