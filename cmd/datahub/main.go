package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"DataHub/internal/collector"
	"DataHub/internal/config"
	"DataHub/internal/datahub"
	"DataHub/internal/model"
	"DataHub/internal/notifier"
	"DataHub/internal/recorder"
	"DataHub/internal/scheduler"
	"DataHub/internal/store"
	"DataHub/internal/synthetic"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "datahub: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	defaultCfg := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		defaultCfg = v
	}
	cfgPath := flag.String("config", defaultCfg, "path to the YAML config file")
	dataPath := flag.String("data", "", "cache directory (overrides storage.data_path)")
	symbol := flag.String("symbol", "QQQ", "ticker to request")
	startStr := flag.String("start", "2020-01-01", "first day of the range (YYYY-MM-DD)")
	endStr := flag.String("end", "2020-01-05", "last day of the range (YYYY-MM-DD)")
	rows := flag.Int("rows", 5, "number of leading bars to print")
	history := flag.Int("history", 0, "print the N most recent fetch events for -symbol and exit")
	daemon := flag.Bool("daemon", false, "run the scheduled cache warm-up until interrupted")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	if *dataPath != "" {
		cfg.Storage.DataPath = *dataPath
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	logger, err := createLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	fetcher := newFetcher(cfg, logger)
	logger.Info("datahub starting",
		zap.String("storage", st.Name()),
		zap.String("provider", fetcher.Name()))

	rec := openRecorder(cfg, logger)
	defer rec.Close()

	var ntf notifier.Notifier = notifier.NoopNotifier{}
	if cfg.TelegramEnabled() {
		ntf = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, logger)
	}

	hub := datahub.New(st, fetcher, synthetic.NewSeeded(cfg.Synthetic.Seed),
		datahub.WithLogger(logger),
		datahub.WithRecorder(rec),
		datahub.WithNotifier(ntf),
		datahub.WithFetchTimeout(time.Duration(cfg.DataSource.TimeoutSec)*time.Second),
		datahub.WithStrictCoverage(cfg.Cache.StrictCoverage),
	)

	switch {
	case *history > 0:
		return printHistory(rec, datahub.NormalizeSymbol(*symbol), *history)
	case *daemon:
		return runDaemon(ctx, cfg, hub, ntf, logger)
	}

	start, err := model.ParseDate(*startStr)
	if err != nil {
		return fmt.Errorf("-start: %w", err)
	}
	end, err := model.ParseDate(*endStr)
	if err != nil {
		return fmt.Errorf("-end: %w", err)
	}

	bars, err := hub.GetRange(ctx, *symbol, start, end)
	if err != nil {
		return err
	}
	printBars(datahub.NormalizeSymbol(*symbol), bars, *rows)
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Store, func(), error) {
	switch cfg.Storage.Backend {
	case "s3":
		s3c := cfg.Storage.S3
		st, err := store.NewS3Store(ctx, store.S3Config{
			Endpoint:  s3c.Endpoint,
			AccessKey: s3c.AccessKey,
			SecretKey: s3c.SecretKey,
			Bucket:    s3c.Bucket,
			Prefix:    s3c.Prefix,
			Secure:    s3c.Secure,
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("init s3 store: %w", err)
		}
		return st, func() {}, nil
	case "postgres":
		st, err := store.NewPostgresStore(ctx, cfg.Storage.Postgres.DSN, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("init postgres store: %w", err)
		}
		return st, st.Close, nil
	default:
		st, err := store.NewFileStore(cfg.Storage.DataPath, logger)
		if err != nil {
			return nil, nil, err
		}
		return st, func() {}, nil
	}
}

func newFetcher(cfg *config.Config, logger *zap.Logger) collector.Fetcher {
	ds := cfg.DataSource
	timeout := time.Duration(ds.TimeoutSec) * time.Second
	switch ds.Provider {
	case "polygon":
		return collector.NewPolygonFetcher(ds.APIKey, logger)
	case "rest":
		f := collector.NewRESTFetcher(ds.BaseURL, ds.APIKey, cfg.Proxy, timeout, logger)
		f.MaxRetries = ds.MaxRetries
		return f
	case "none":
		return collector.OfflineFetcher{}
	default:
		f := collector.NewYahooFetcher(cfg.Proxy, timeout, logger)
		f.MaxRetries = ds.MaxRetries
		return f
	}
}

func openRecorder(cfg *config.Config, logger *zap.Logger) recorder.Recorder {
	if cfg.Database.SQLitePath == "" {
		return recorder.NewNoopRecorder()
	}
	sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, logger)
	if err != nil {
		logger.Warn("init sqlite recorder failed, using noop", zap.Error(err))
		return recorder.NewNoopRecorder()
	}
	return sr
}

func runDaemon(ctx context.Context, cfg *config.Config, hub *datahub.Hub, ntf notifier.Notifier, logger *zap.Logger) error {
	if len(cfg.Warmup.Symbols) == 0 {
		return fmt.Errorf("-daemon needs warmup.symbols")
	}
	sched := scheduler.NewScheduler(ctx, hub, ntf, cfg.Warmup.Symbols,
		cfg.Warmup.LookbackDays, cfg.Warmup.Concurrency, logger)
	if err := sched.RegisterAll(cfg.Warmup.Cron); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	if os.Getenv("RUN_ON_START") == "true" {
		logger.Info("RUN_ON_START enabled, warming cache now")
		sched.Trigger()
	}

	logger.Info("datahub daemon running", zap.String("cron", cfg.Warmup.Cron))
	<-ctx.Done()
	logger.Info("shutdown signal received, stopping")
	return nil
}

func printBars(symbol string, bars model.Series, n int) {
	fmt.Printf("%s: %d bars\n", symbol, len(bars))
	if len(bars) == 0 {
		return
	}
	fmt.Printf("%-10s %10s %10s %10s %10s %14s\n", "Date", "Open", "High", "Low", "Close", "Volume")
	for i, b := range bars {
		if i >= n {
			break
		}
		fmt.Printf("%-10s %10.2f %10.2f %10.2f %10.2f %14s\n",
			b.Date.Format(model.DateLayout), b.Open, b.High, b.Low, b.Close, humanize.Comma(b.Volume))
	}
	if len(bars) > n {
		fmt.Printf("... %d more\n", len(bars)-n)
	}
}

func printHistory(rec recorder.Recorder, symbol string, limit int) error {
	events, err := rec.Recent(symbol, limit)
	if err != nil {
		return fmt.Errorf("read history: %w", err)
	}
	if len(events) == 0 {
		fmt.Println("no fetch events recorded")
		return nil
	}
	for _, e := range events {
		line := fmt.Sprintf("%s  %-6s %s..%s  %-8s %-9s %5d rows  %s",
			humanize.Time(e.Timestamp), e.Symbol,
			e.Start.Format(model.DateLayout), e.End.Format(model.DateLayout),
			e.Outcome, e.Source, e.Rows, e.Duration.Round(time.Millisecond))
		if e.ProviderErr != "" {
			line += "  (" + e.ProviderErr + ")"
		}
		if e.Err != "" {
			line += "  error: " + e.Err
		}
		fmt.Println(line)
	}
	return nil
}

func createLogger(level, format string) (*zap.Logger, error) {
	var zapLevel zap.AtomicLevel
	switch level {
	case "debug":
		zapLevel = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		zapLevel = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapLevel = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zapLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	encoding := "json"
	if format == "console" {
		encoding = "console"
	}

	config := zap.Config{
		Level:            zapLevel,
		Development:      false,
		Encoding:         encoding,
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	return config.Build()
}
