package main

import (
    "context"
    "log"
    "net/http"
    "os"
    "strings"
    "time"

    "github.com/joho/godotenv"
    "go.uber.org/zap"

    "tariffinfra/internal/config"
    "tariffinfra/internal/db"
    "tariffinfra/internal/server"
    "tariffinfra/internal/store"
    "tariffinfra/internal/tariff"
)

func main() {
    _ = godotenv.Load()
    cfg := config.Load()

    logger, err := newLogger(cfg.LogLevel)
    if err != nil {
        log.Fatalf("failed to build logger: %v", err)
    }
    defer func() { _ = logger.Sync() }()

    if strings.TrimSpace(cfg.DatabaseURL) == "" {
        log.Fatalf("DATABASE_URL not set. Please export DATABASE_URL before running.")
    }

    ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer cancel()
    pool, err := db.NewPool(ctx, cfg.DatabaseURL)
    if err != nil {
        log.Fatalf("failed to connect db: %v", err)
    }
    defer pool.Close()
    // Verify connectivity proactively
    if err := pool.Ping(ctx); err != nil {
        log.Fatalf("database ping failed: %v", err)
    }

    st := store.New(pool, logger)
    if err := st.EnsureSchema(ctx); err != nil {
        log.Fatalf("failed to ensure schema: %v", err)
    }
    if err := st.SeedCountries(ctx); err != nil {
        log.Fatalf("failed to seed countries: %v", err)
    }

    calc, err := tariff.NewCalculator(cfg.Column2Countries, cfg.ParseCacheSize, st, logger)
    if err != nil {
        log.Fatalf("failed to build calculator: %v", err)
    }
    r := server.NewWithStore(st, calc, logger)

    srv := &http.Server{
        Addr:              ":" + cfg.Port,
        Handler:           r,
        ReadTimeout:       10 * time.Second,
        ReadHeaderTimeout: 10 * time.Second,
        WriteTimeout:      20 * time.Second,
        IdleTimeout:       60 * time.Second,
    }

    logger.Info("api listening",
        zap.String("port", cfg.Port),
        zap.Strings("column2_countries", cfg.Column2Countries))
    if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
        logger.Error("server error", zap.Error(err))
        os.Exit(1)
    }
}

func newLogger(level string) (*zap.Logger, error) {
    zcfg := zap.NewProductionConfig()
    zcfg.EncoderConfig.TimeKey = "timestamp"
    if level != "" {
        lvl, err := zap.ParseAtomicLevel(level)
        if err != nil {
            return nil, err
        }
        zcfg.Level = lvl
    }
    return zcfg.Build()
}
