package main

import (
    "context"
    "flag"
    "log"
    "strings"
    "time"

    "github.com/joho/godotenv"
    "go.uber.org/zap"

    "tariffinfra/internal/config"
    "tariffinfra/internal/db"
    "tariffinfra/internal/store"
)

// loader bulk-imports HTS tariff lines from the published six-column CSV
// (HTS Number, Description, Unit of Measure, General Rate of Duty,
// Special Rate of Duty, Column 2 Rate of Duty) and seeds reference data.
func main() {
    csvPath := flag.String("csv", "", "path to the HTS tariff CSV to import")
    flag.Parse()

    _ = godotenv.Load()
    cfg := config.Load()

    logger, err := zap.NewProduction()
    if err != nil {
        log.Fatalf("failed to build logger: %v", err)
    }
    defer func() { _ = logger.Sync() }()

    if strings.TrimSpace(cfg.DatabaseURL) == "" {
        log.Fatalf("DATABASE_URL not set. Please export DATABASE_URL before running.")
    }

    ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
    defer cancel()
    pool, err := db.NewPool(ctx, cfg.DatabaseURL)
    if err != nil {
        log.Fatalf("failed to connect db: %v", err)
    }
    defer pool.Close()

    st := store.New(pool, logger)
    if err := st.EnsureSchema(ctx); err != nil {
        log.Fatalf("failed to ensure schema: %v", err)
    }
    if err := st.SeedCountries(ctx); err != nil {
        log.Fatalf("failed to seed countries: %v", err)
    }

    if *csvPath != "" {
        res, err := st.ImportCSV(ctx, *csvPath)
        if err != nil {
            log.Fatalf("import failed: %v", err)
        }
        logger.Info("import finished",
            zap.Int("imported", res.Imported),
            zap.Int("updated", res.Updated),
            zap.Int("errors", res.Errors),
            zap.Int("total_processed", res.TotalProcessed))
    }

    stats, err := st.Statistics(ctx)
    if err != nil {
        log.Fatalf("failed to read statistics: %v", err)
    }
    logger.Info("database statistics",
        zap.Int("hts_products", stats.TotalProducts),
        zap.Int("countries", stats.TotalCountries),
        zap.Int("calculations", stats.TotalCalculations))
}
