package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"inferd/internal/common/fsutil"
	"inferd/internal/config"
	"inferd/internal/engine"
	"inferd/internal/httpapi"
	"inferd/internal/manager"
	"inferd/internal/store"
)

func main() {
	// Flags with environment variable defaults
	defaultAddr := ":8080"
	if v := os.Getenv("INFERD_ADDR"); v != "" {
		defaultAddr = v
	}
	defaultStore := "inferd.db"
	if v := os.Getenv("INFERD_STORE"); v != "" {
		defaultStore = v
	}
	addr := flag.String("addr", defaultAddr, "HTTP listen address, e.g. :8080")
	storePath := flag.String("store", defaultStore, "Path to the SQLite blob store")
	configPath := flag.String("config", os.Getenv("INFERD_CONFIG"), "Optional config file (.yaml/.json/.toml)")
	budgetCeiling := flag.Uint64("budget-ceiling", 0, "Compute unit ceiling per generate call (0=default)")
	unitsPerMilli := flag.Uint64("units-per-milli", 0, "Compute units charged per wall-clock millisecond (0=default)")
	maxTokens := flag.Int("max-tokens", 0, "Default max tokens per generate call (0=default)")
	logLevel := flag.String("log-level", envOr("INFERD_LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
	flag.Parse()

	// Config file values fill in anything the flags left at their zero default.
	var cfg config.Config
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		cfg = loaded
	}
	if cfg.Addr == "" || flagWasSet("addr") {
		cfg.Addr = *addr
	}
	if cfg.StorePath == "" || flagWasSet("store") {
		cfg.StorePath = *storePath
	}
	if *budgetCeiling != 0 {
		cfg.BudgetCeiling = *budgetCeiling
	}
	if *unitsPerMilli != 0 {
		cfg.UnitsPerMilli = *unitsPerMilli
	}
	if *maxTokens != 0 {
		cfg.MaxTokens = *maxTokens
	}
	if flagWasSet("log-level") || cfg.LogLevel == "" {
		cfg.LogLevel = *logLevel
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("invalid log level %q: %v", cfg.LogLevel, err)
	}
	logger := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()

	dbPath, err := fsutil.ResolveStorePath(cfg.StorePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to resolve store path")
	}
	blobs, err := store.OpenSQLite(dbPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", dbPath).Msg("failed to open blob store")
	}
	defer blobs.Close()

	mgr := manager.New(manager.Config{
		Store:         blobs,
		Logger:        logger,
		Meter:         engine.NewClockMeter(cfg.UnitsPerMilli),
		BudgetCeiling: cfg.BudgetCeiling,
		MaxTokens:     cfg.MaxTokens,
		NativeContext: cfg.NativeContext,
		NativeThreads: cfg.NativeThreads,
	})
	defer mgr.Close()

	httpapi.SetLogger(logger)
	httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	httpapi.SetUploadMaxBytes(cfg.UploadMaxBytes)
	httpapi.SetCORSOptions(cfg.CORSEnabled, cfg.CORSOrigins, cfg.CORSMethods, cfg.CORSHeaders)

	srv := &http.Server{Addr: cfg.Addr, Handler: httpapi.NewMux(mgr)}

	go func() {
		logger.Info().Str("addr", cfg.Addr).Str("store", cfg.StorePath).Msg("inferd listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("graceful shutdown error")
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func flagWasSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
