package store

import (
    "context"
    "encoding/json"
    "os"
    "strings"
    "testing"
    "time"

    "github.com/google/uuid"
    "github.com/shopspring/decimal"

    "tariffinfra/internal/db"
    "tariffinfra/internal/tariff"
)

// Integration tests run only against a real database.
func testStore(t *testing.T) (*Store, context.Context) {
    t.Helper()
    dsn := os.Getenv("DATABASE_URL")
    if dsn == "" {
        t.Skip("DATABASE_URL not set; skipping integration test")
    }
    ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
    t.Cleanup(cancel)

    pool, err := db.NewPool(ctx, dsn)
    if err != nil {
        t.Fatalf("connect: %v", err)
    }
    t.Cleanup(pool.Close)

    s := New(pool, nil)
    if err := s.EnsureSchema(ctx); err != nil {
        t.Fatalf("ensure schema: %v", err)
    }
    if err := s.SeedCountries(ctx); err != nil {
        t.Fatalf("seed countries: %v", err)
    }
    return s, ctx
}

func TestProductRoundTrip(t *testing.T) {
    s, ctx := testStore(t)

    hts := "9999.99." + uuid.New().String()[:4]
    p, created, err := s.UpsertProduct(ctx, Product{
        HTSNumber:   hts,
        Description: "Integration test line",
        GeneralRate: "5.2%",
        SpecialRate: "Free (AU)",
    })
    if err != nil {
        t.Fatalf("upsert: %v", err)
    }
    if !created {
        t.Fatal("expected insert on first upsert")
    }

    got, err := s.GetProduct(ctx, hts)
    if err != nil {
        t.Fatalf("get: %v", err)
    }
    if got.GeneralRate != "5.2%" || got.SpecialRate != "Free (AU)" {
        t.Fatalf("unexpected product: %+v", got)
    }

    p.Description = "Updated description"
    _, created, err = s.UpsertProduct(ctx, *p)
    if err != nil {
        t.Fatalf("second upsert: %v", err)
    }
    if created {
        t.Fatal("expected update on second upsert")
    }

    if _, err := s.GetProduct(ctx, "no-such-number"); err != ErrNotFound {
        t.Fatalf("expected ErrNotFound, got %v", err)
    }
}

func TestCountryLookup(t *testing.T) {
    s, ctx := testStore(t)

    c, err := s.GetCountry(ctx, "jp")
    if err != nil {
        t.Fatalf("get country: %v", err)
    }
    if c.Code != "JP" || c.Name != "Japan" {
        t.Fatalf("unexpected country: %+v", c)
    }

    if _, err := s.GetCountry(ctx, "ZZ"); err != ErrNotFound {
        t.Fatalf("expected ErrNotFound, got %v", err)
    }
}

func TestHistoryRoundTrip(t *testing.T) {
    s, ctx := testStore(t)

    sessionID := uuid.New().String()
    rec := tariff.HistoryRecord{
        SessionID:   sessionID,
        HTSNumber:   "8703.23.0190",
        CountryCode: "JP",
        ProductCost: decimal.RequireFromString("20000"),
        Freight:     decimal.RequireFromString("1000"),
        Insurance:   decimal.RequireFromString("300"),
        Quantity:    1,
        WeightKg:    decimal.RequireFromString("1500"),
        CIFValue:    decimal.RequireFromString("21300"),
        TotalDuty:   decimal.RequireFromString("5623.2"),
        LandedCost:  decimal.RequireFromString("26923.2"),
        Details:     json.RawMessage(`{"summary":{"total_duty":5623.2}}`),
    }
    if err := s.SaveCalculation(ctx, rec); err != nil {
        t.Fatalf("save: %v", err)
    }

    entries, err := s.ListHistory(ctx, sessionID, 10)
    if err != nil {
        t.Fatalf("list: %v", err)
    }
    if len(entries) != 1 {
        t.Fatalf("expected 1 entry, got %d", len(entries))
    }
    e := entries[0]
    if e.HTSNumber != "8703.23.0190" || e.CountryCode != "JP" {
        t.Fatalf("unexpected entry: %+v", e)
    }
    if e.TotalDuty != 5623.2 || e.LandedCost != 26923.2 {
        t.Fatalf("unexpected amounts: %+v", e)
    }
}

func TestImportCSVReader(t *testing.T) {
    s, ctx := testStore(t)

    suffix := uuid.New().String()[:4]
    csvData := "HTS Number,Description,Unit of Measure,General Rate of Duty,Special Rate of Duty,Column 2 Rate of Duty\n" +
        "9998.10." + suffix + ",Widgets,kg,5.2%,Free (AU),35%\n" +
        ",Row without an HTS number is skipped,,,\n" +
        "9998.20." + suffix + ",Gadgets,No.,$1.50/unit,,\n"

    res, err := s.importCSV(ctx, strings.NewReader(csvData))
    if err != nil {
        t.Fatalf("import: %v", err)
    }
    if res.Imported != 2 || res.Errors != 0 || res.TotalProcessed != 2 {
        t.Fatalf("unexpected result: %+v", res)
    }

    got, err := s.GetProduct(ctx, "9998.10."+suffix)
    if err != nil {
        t.Fatalf("get imported product: %v", err)
    }
    if got.GeneralRate != "5.2%" || got.Column2Rate != "35%" {
        t.Fatalf("unexpected imported product: %+v", got)
    }

    // Re-importing the same rows counts as updates.
    res, err = s.importCSV(ctx, strings.NewReader(csvData))
    if err != nil {
        t.Fatalf("re-import: %v", err)
    }
    if res.Updated != 2 || res.Imported != 0 {
        t.Fatalf("unexpected re-import result: %+v", res)
    }
}

func TestImportCSVRequiresHTSColumn(t *testing.T) {
    s, ctx := testStore(t)

    _, err := s.importCSV(ctx, strings.NewReader("Description,General Rate of Duty\nfoo,5%\n"))
    if err == nil {
        t.Fatal("expected error for missing HTS Number column")
    }
}

func TestStatisticsCounts(t *testing.T) {
    s, ctx := testStore(t)

    stats, err := s.Statistics(ctx)
    if err != nil {
        t.Fatalf("statistics: %v", err)
    }
    if stats.TotalCountries < 15 {
        t.Fatalf("expected seeded countries, got %d", stats.TotalCountries)
    }
}
