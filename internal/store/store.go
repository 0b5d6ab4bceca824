package store

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "strings"
    "time"

    "github.com/jackc/pgx/v5"
    "github.com/jackc/pgx/v5/pgxpool"
    "go.uber.org/zap"

    "tariffinfra/internal/tariff"
)

// ErrNotFound reports a missing reference-data row (product or country),
// distinct from malformed-request validation failures.
var ErrNotFound = errors.New("not found")

type Store struct {
    db     *pgxpool.Pool
    logger *zap.Logger
}

func New(db *pgxpool.Pool, logger *zap.Logger) *Store {
    if logger == nil {
        logger = zap.NewNop()
    }
    return &Store{db: db, logger: logger}
}

func (s *Store) Ping(ctx context.Context) error {
    return s.db.Ping(ctx)
}

// EnsureSchema creates the tables on first run. Duty-rate text is stored
// verbatim; parsing happens at query time so rate-table corrections never
// require re-ingestion.
func (s *Store) EnsureSchema(ctx context.Context) error {
    stmts := []string{
        `CREATE TABLE IF NOT EXISTS hts_products (
            id BIGSERIAL PRIMARY KEY,
            hts_number VARCHAR(15) NOT NULL UNIQUE,
            description TEXT NOT NULL DEFAULT '',
            unit_of_measure VARCHAR(50) NOT NULL DEFAULT '',
            general_duty_rate VARCHAR(200) NOT NULL DEFAULT '',
            special_duty_rate VARCHAR(200) NOT NULL DEFAULT '',
            column2_duty_rate VARCHAR(200) NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,
        `CREATE TABLE IF NOT EXISTS countries (
            code VARCHAR(3) PRIMARY KEY,
            name VARCHAR(100) NOT NULL,
            region VARCHAR(50) NOT NULL DEFAULT ''
        )`,
        `CREATE TABLE IF NOT EXISTS calculation_history (
            id BIGSERIAL PRIMARY KEY,
            session_id VARCHAR(100) NOT NULL,
            hts_number VARCHAR(15) NOT NULL,
            country_code VARCHAR(3) NOT NULL,
            product_cost NUMERIC(12,2),
            freight NUMERIC(12,2),
            insurance NUMERIC(12,2),
            quantity INTEGER,
            weight_kg NUMERIC(10,2),
            cif_value NUMERIC(12,2),
            total_duty NUMERIC(12,2),
            landed_cost NUMERIC(12,2),
            calculation_details JSONB NOT NULL DEFAULT '{}'::jsonb,
            created_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,
        `CREATE INDEX IF NOT EXISTS idx_calculation_history_session
            ON calculation_history (session_id, created_at DESC)`,
    }
    for _, stmt := range stmts {
        if _, err := s.db.Exec(ctx, stmt); err != nil {
            return fmt.Errorf("ensure schema: %w", err)
        }
    }
    return nil
}

// SeedCountries inserts the reference country set when the table is empty.
func (s *Store) SeedCountries(ctx context.Context) error {
    var count int
    if err := s.db.QueryRow(ctx, `SELECT count(*) FROM countries`).Scan(&count); err != nil {
        return err
    }
    if count > 0 {
        return nil
    }
    seed := []struct{ code, name, region string }{
        {"AU", "Australia", "Oceania"},
        {"BR", "Brazil", "South America"},
        {"CA", "Canada", "North America"},
        {"CN", "China", "Asia"},
        {"DE", "Germany", "Europe"},
        {"FR", "France", "Europe"},
        {"GB", "United Kingdom", "Europe"},
        {"IN", "India", "Asia"},
        {"IT", "Italy", "Europe"},
        {"JP", "Japan", "Asia"},
        {"KR", "South Korea", "Asia"},
        {"MX", "Mexico", "North America"},
        {"TH", "Thailand", "Asia"},
        {"US", "United States", "North America"},
        {"VN", "Vietnam", "Asia"},
    }
    for _, c := range seed {
        if _, err := s.db.Exec(ctx,
            `INSERT INTO countries (code, name, region) VALUES ($1, $2, $3) ON CONFLICT (code) DO NOTHING`,
            c.code, c.name, c.region); err != nil {
            return err
        }
    }
    s.logger.Info("seeded countries", zap.Int("count", len(seed)))
    return nil
}

// Product is a stored HTS line.
type Product struct {
    ID            int64
    HTSNumber     string
    Description   string
    UnitOfMeasure string
    GeneralRate   string
    SpecialRate   string
    Column2Rate   string
    CreatedAt     time.Time
    UpdatedAt     time.Time
}

// Tariff converts to the engine's view of the product.
func (p Product) Tariff() tariff.Product {
    return tariff.Product{
        HTSNumber:     p.HTSNumber,
        Description:   p.Description,
        UnitOfMeasure: p.UnitOfMeasure,
        GeneralRate:   p.GeneralRate,
        SpecialRate:   p.SpecialRate,
        Column2Rate:   p.Column2Rate,
    }
}

const productCols = `id, hts_number, description, unit_of_measure,
    general_duty_rate, special_duty_rate, column2_duty_rate, created_at, updated_at`

func scanProduct(row pgx.Row) (*Product, error) {
    var p Product
    err := row.Scan(&p.ID, &p.HTSNumber, &p.Description, &p.UnitOfMeasure,
        &p.GeneralRate, &p.SpecialRate, &p.Column2Rate, &p.CreatedAt, &p.UpdatedAt)
    if err != nil {
        if errors.Is(err, pgx.ErrNoRows) {
            return nil, ErrNotFound
        }
        return nil, err
    }
    return &p, nil
}

func (s *Store) GetProduct(ctx context.Context, htsNumber string) (*Product, error) {
    row := s.db.QueryRow(ctx,
        `SELECT `+productCols+` FROM hts_products WHERE hts_number = $1`,
        strings.TrimSpace(htsNumber))
    return scanProduct(row)
}

// UpsertProduct inserts or updates by HTS number. created reports whether a
// new row was inserted.
func (s *Store) UpsertProduct(ctx context.Context, p Product) (*Product, bool, error) {
    row := s.db.QueryRow(ctx, `
        INSERT INTO hts_products (
            hts_number, description, unit_of_measure,
            general_duty_rate, special_duty_rate, column2_duty_rate
        ) VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (hts_number) DO UPDATE SET
            description = EXCLUDED.description,
            unit_of_measure = EXCLUDED.unit_of_measure,
            general_duty_rate = EXCLUDED.general_duty_rate,
            special_duty_rate = EXCLUDED.special_duty_rate,
            column2_duty_rate = EXCLUDED.column2_duty_rate,
            updated_at = now()
        RETURNING `+productCols+`, (xmax = 0) AS inserted`,
        strings.TrimSpace(p.HTSNumber), p.Description, p.UnitOfMeasure,
        p.GeneralRate, p.SpecialRate, p.Column2Rate)

    var out Product
    var inserted bool
    err := row.Scan(&out.ID, &out.HTSNumber, &out.Description, &out.UnitOfMeasure,
        &out.GeneralRate, &out.SpecialRate, &out.Column2Rate, &out.CreatedAt, &out.UpdatedAt,
        &inserted)
    if err != nil {
        return nil, false, err
    }
    return &out, inserted, nil
}

// SearchProducts matches a substring against HTS number or description.
func (s *Store) SearchProducts(ctx context.Context, query string, limit int) ([]Product, error) {
    if limit <= 0 || limit > 100 {
        limit = 20
    }
    pattern := "%" + strings.TrimSpace(query) + "%"
    rows, err := s.db.Query(ctx,
        `SELECT `+productCols+` FROM hts_products
         WHERE hts_number ILIKE $1 OR description ILIKE $1
         ORDER BY hts_number
         LIMIT $2`, pattern, limit)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    return collectProducts(rows)
}

func (s *Store) ListProducts(ctx context.Context, limit, offset int) ([]Product, error) {
    if limit <= 0 || limit > 1000 {
        limit = 100
    }
    if offset < 0 {
        offset = 0
    }
    rows, err := s.db.Query(ctx,
        `SELECT `+productCols+` FROM hts_products ORDER BY hts_number LIMIT $1 OFFSET $2`,
        limit, offset)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    return collectProducts(rows)
}

func collectProducts(rows pgx.Rows) ([]Product, error) {
    var out []Product
    for rows.Next() {
        var p Product
        if err := rows.Scan(&p.ID, &p.HTSNumber, &p.Description, &p.UnitOfMeasure,
            &p.GeneralRate, &p.SpecialRate, &p.Column2Rate, &p.CreatedAt, &p.UpdatedAt); err != nil {
            return nil, err
        }
        out = append(out, p)
    }
    return out, rows.Err()
}

// Country is a reference-data row.
type Country struct {
    Code   string
    Name   string
    Region string
}

func (s *Store) GetCountry(ctx context.Context, code string) (*Country, error) {
    var c Country
    err := s.db.QueryRow(ctx,
        `SELECT code, name, region FROM countries WHERE code = $1`,
        strings.ToUpper(strings.TrimSpace(code))).Scan(&c.Code, &c.Name, &c.Region)
    if err != nil {
        if errors.Is(err, pgx.ErrNoRows) {
            return nil, ErrNotFound
        }
        return nil, err
    }
    return &c, nil
}

// SaveCalculation implements tariff.HistorySink.
func (s *Store) SaveCalculation(ctx context.Context, rec tariff.HistoryRecord) error {
    _, err := s.db.Exec(ctx, `
        INSERT INTO calculation_history (
            session_id, hts_number, country_code,
            product_cost, freight, insurance, quantity, weight_kg,
            cif_value, total_duty, landed_cost, calculation_details
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12::jsonb)`,
        rec.SessionID, rec.HTSNumber, rec.CountryCode,
        rec.ProductCost.String(), rec.Freight.String(), rec.Insurance.String(),
        rec.Quantity, rec.WeightKg.String(),
        rec.CIFValue.String(), rec.TotalDuty.String(), rec.LandedCost.String(),
        string(rec.Details))
    return err
}

// HistoryEntry is one persisted calculation.
type HistoryEntry struct {
    ID          int64
    SessionID   string
    HTSNumber   string
    CountryCode string
    ProductCost float64
    Freight     float64
    Insurance   float64
    Quantity    int
    WeightKg    float64
    CIFValue    float64
    TotalDuty   float64
    LandedCost  float64
    Details     json.RawMessage
    CreatedAt   time.Time
}

// ListHistory returns recent calculations, optionally scoped to a session.
func (s *Store) ListHistory(ctx context.Context, sessionID string, limit int) ([]HistoryEntry, error) {
    if limit <= 0 || limit > 500 {
        limit = 50
    }
    const cols = `id, session_id, hts_number, country_code,
        product_cost::float8, freight::float8, insurance::float8, quantity, weight_kg::float8,
        cif_value::float8, total_duty::float8, landed_cost::float8, calculation_details, created_at`
    var (
        rows pgx.Rows
        err  error
    )
    if strings.TrimSpace(sessionID) == "" {
        rows, err = s.db.Query(ctx,
            `SELECT `+cols+` FROM calculation_history ORDER BY created_at DESC LIMIT $1`, limit)
    } else {
        rows, err = s.db.Query(ctx,
            `SELECT `+cols+` FROM calculation_history WHERE session_id = $1 ORDER BY created_at DESC LIMIT $2`,
            sessionID, limit)
    }
    if err != nil {
        return nil, err
    }
    defer rows.Close()

    var out []HistoryEntry
    for rows.Next() {
        var h HistoryEntry
        if err := rows.Scan(&h.ID, &h.SessionID, &h.HTSNumber, &h.CountryCode,
            &h.ProductCost, &h.Freight, &h.Insurance, &h.Quantity, &h.WeightKg,
            &h.CIFValue, &h.TotalDuty, &h.LandedCost, &h.Details, &h.CreatedAt); err != nil {
            return nil, err
        }
        out = append(out, h)
    }
    return out, rows.Err()
}

// Stats holds table counts for the statistics endpoint.
type Stats struct {
    TotalProducts      int
    TotalCountries     int
    TotalCalculations  int
    RecentCalculations int
}

func (s *Store) Statistics(ctx context.Context) (Stats, error) {
    var st Stats
    err := s.db.QueryRow(ctx, `
        SELECT
            (SELECT count(*) FROM hts_products),
            (SELECT count(*) FROM countries),
            (SELECT count(*) FROM calculation_history),
            (SELECT count(*) FROM calculation_history WHERE created_at >= now() - interval '7 days')
    `).Scan(&st.TotalProducts, &st.TotalCountries, &st.TotalCalculations, &st.RecentCalculations)
    return st, err
}
