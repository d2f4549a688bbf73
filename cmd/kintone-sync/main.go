package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nucleus/ucl-kintone/internal/config"
	"github.com/nucleus/ucl-kintone/internal/connector/kintone"
	"github.com/nucleus/ucl-kintone/internal/observability"
	"github.com/nucleus/ucl-kintone/internal/orchestration"
	"github.com/nucleus/ucl-kintone/internal/sink"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "check":
		err = checkCommand(os.Args[2:])
	case "discover":
		err = discoverCommand(os.Args[2:])
	case "count":
		err = countCommand(os.Args[2:])
	case "read":
		err = readCommand(os.Args[2:])
	case "sync":
		err = syncCommand(os.Args[2:])
	case "schedule":
		err = scheduleCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		log.Fatalf("kintone-sync %s: %v", cmd, err)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: kintone-sync <command> [flags]

Commands:
  check      verify credentials and app access
  discover   print the JSON schema of every configured app
  count      print the record count of every configured app
  read       write records as JSON lines to stdout
  sync       run one full refresh into the configured sink
  schedule   run full refreshes on a cron expression and serve /metrics
  validate   load and validate the configuration only

Every command accepts -config (default ./kintone.yaml). KINTONE_* environment
variables override file values.
`)
}

func loadConfig(fs *flag.FlagSet, args []string) (*config.Config, error) {
	cfgPath := fs.String("config", "./kintone.yaml", "Path to configuration file (empty for environment only)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	path := *cfgPath
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) && path == "./kintone.yaml" {
		path = ""
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func validateCommand(args []string) error {
	cfg, err := loadConfig(flag.NewFlagSet("validate", flag.ExitOnError), args)
	if err != nil {
		return err
	}
	fmt.Printf("config looks good: %d app(s) on %s, sink %s\n", len(cfg.Kintone.AppIDs), cfg.Kintone.Domain, cfg.Sink.Type)
	return nil
}

func checkCommand(args []string) error {
	cfg, err := loadConfig(flag.NewFlagSet("check", flag.ExitOnError), args)
	if err != nil {
		return err
	}
	conn, err := kintone.New(&cfg.Kintone)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, stop := signalContext()
	defer stop()

	result, err := conn.ValidateConfig(ctx, nil)
	if err != nil {
		return err
	}
	if !result.Valid {
		return fmt.Errorf("%s (%s)", result.Message, result.Code)
	}
	fmt.Println(result.Message)
	return nil
}

func discoverCommand(args []string) error {
	cfg, err := loadConfig(flag.NewFlagSet("discover", flag.ExitOnError), args)
	if err != nil {
		return err
	}
	conn, err := kintone.New(&cfg.Kintone)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, stop := signalContext()
	defer stop()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for _, appID := range cfg.Kintone.AppIDs {
		schema, err := conn.GetStreamSchema(ctx, appID)
		if err != nil {
			return err
		}
		doc := struct {
			Stream     string                `json:"stream"`
			JSONSchema *kintone.StreamSchema `json:"json_schema"`
		}{kintone.StreamName(cfg.Kintone.GuestSpaceID, appID), schema}
		if err := enc.Encode(doc); err != nil {
			return err
		}
	}
	return nil
}

func countCommand(args []string) error {
	cfg, err := loadConfig(flag.NewFlagSet("count", flag.ExitOnError), args)
	if err != nil {
		return err
	}
	conn, err := kintone.New(&cfg.Kintone)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, stop := signalContext()
	defer stop()

	datasets, err := conn.ListDatasets(ctx)
	if err != nil {
		return err
	}
	for _, ds := range datasets {
		n, err := conn.CountRecords(ctx, ds.ID)
		if err != nil {
			return err
		}
		fmt.Printf("%s\t%d\n", ds.ID, n)
	}
	return nil
}

func readCommand(args []string) error {
	fs := flag.NewFlagSet("read", flag.ExitOnError)
	limit := fs.Int64("limit", 0, "Maximum records per app (0 reads all)")
	envelope := fs.Bool("envelope", false, "Wrap each record with stream, run id and emission time")
	cfg, err := loadConfig(fs, args)
	if err != nil {
		return err
	}
	conn, err := kintone.New(&cfg.Kintone)
	if err != nil {
		return err
	}
	defer conn.Close()

	out := sink.NewJSONLSink(stdout(), *envelope)
	defer out.Close()

	ctx, stop := signalContext()
	defer stop()

	runner := &orchestration.Runner{
		Source:    conn,
		Sink:      out,
		BatchSize: cfg.Kintone.PageSize,
		Limit:     *limit,
		FailFast:  true,
	}
	summary, err := runner.Run(ctx)
	if err != nil {
		return err
	}
	return summary.Err()
}

func syncCommand(args []string) error {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	failFast := fs.Bool("fail-fast", false, "Stop at the first failed app")
	cfg, err := loadConfig(fs, args)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	runner, cleanup, err := newRunner(ctx, cfg, observability.NopMetrics{})
	if err != nil {
		return err
	}
	defer cleanup()
	runner.FailFast = runner.FailFast || *failFast

	summary, err := runner.Run(ctx)
	if err != nil {
		return err
	}
	printSummary(summary)
	return summary.Err()
}

func scheduleCommand(args []string) error {
	fs := flag.NewFlagSet("schedule", flag.ExitOnError)
	spec := fs.String("cron", "", "Cron expression (overrides schedule.cron)")
	cfg, err := loadConfig(fs, args)
	if err != nil {
		return err
	}
	if *spec != "" {
		cfg.Schedule.Cron = *spec
	}
	if cfg.Schedule.Cron == "" {
		return fmt.Errorf("schedule.cron or -cron is required")
	}

	ctx, stop := signalContext()
	defer stop()

	reg := prometheus.NewRegistry()
	metrics, err := observability.NewPromMetrics(reg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	srv := serveMetrics(cfg.Metrics.Addr, reg)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	runner, cleanup, err := newRunner(ctx, cfg, metrics)
	if err != nil {
		return err
	}
	defer cleanup()

	return orchestration.Schedule(ctx, cfg.Schedule.Cron, func(ctx context.Context) {
		summary, err := runner.Run(ctx)
		if err != nil {
			log.Printf("sync cron: run failed: %v", err)
			return
		}
		printSummary(summary)
		if err := summary.Err(); err != nil {
			log.Printf("sync cron: run %s finished with errors: %v", summary.RunID, err)
		}
	})
}

func newRunner(ctx context.Context, cfg *config.Config, metrics observability.Metrics) (*orchestration.Runner, func(), error) {
	cfg.Kintone.Metrics = metrics
	conn, err := kintone.New(&cfg.Kintone)
	if err != nil {
		return nil, nil, err
	}
	out, err := openSink(ctx, cfg.Sink)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}

	runner := &orchestration.Runner{
		Source:    conn,
		Sink:      out,
		Metrics:   metrics,
		BatchSize: cfg.Kintone.PageSize,
		FailFast:  cfg.Schedule.FailFast,
	}
	cleanup := func() {
		if err := out.Close(); err != nil {
			log.Printf("sink %s: close: %v", out.Name(), err)
		}
		conn.Close()
	}
	return runner, cleanup, nil
}

func openSink(ctx context.Context, cfg config.SinkConfig) (sink.Sink, error) {
	switch cfg.Type {
	case config.SinkPostgres:
		db, err := sql.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		out, err := sink.NewPostgresSink(db, cfg.Table)
		if err != nil {
			db.Close()
			return nil, err
		}
		return out, nil
	case config.SinkObject:
		store, err := sink.NewMinioStore(cfg.Minio)
		if err != nil {
			return nil, err
		}
		return sink.NewObjectSink(store, cfg.Bucket, cfg.Prefix, cfg.Format)
	default:
		if cfg.Path == "" {
			return sink.NewJSONLSink(stdout(), cfg.Envelope), nil
		}
		f, err := os.Create(cfg.Path)
		if err != nil {
			return nil, err
		}
		return sink.NewJSONLSink(f, cfg.Envelope), nil
	}
}

// stdout hides os.Stdout's Close from sinks.
func stdout() io.Writer {
	return struct{ io.Writer }{os.Stdout}
}

func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Printf("metrics: serving on %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("metrics: %v", err)
		}
	}()
	return srv
}

func printSummary(s *orchestration.RunSummary) {
	for _, r := range s.Streams {
		status := "ok"
		if r.Err != nil {
			status = "failed"
		}
		log.Printf("sync: run %s %s %s records=%d duration=%s", s.RunID, r.Stream, status, r.Records, r.Duration.Round(time.Millisecond))
	}
}
