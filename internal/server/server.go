package server

import (
    "context"
    "encoding/json"
    "errors"
    "net/http"
    "strconv"
    "strings"
    "time"

    "github.com/go-chi/chi/v5"
    "github.com/go-chi/chi/v5/middleware"
    "github.com/google/uuid"
    "github.com/jackc/pgx/v5/pgxpool"
    "github.com/shopspring/decimal"
    "go.uber.org/zap"

    "tariffinfra/internal/store"
    "tariffinfra/internal/tariff"
)

// DataStore is the reference-data and history surface the handlers need.
// *store.Store satisfies it; tests substitute an in-memory fake.
type DataStore interface {
    GetProduct(ctx context.Context, htsNumber string) (*store.Product, error)
    UpsertProduct(ctx context.Context, p store.Product) (*store.Product, bool, error)
    SearchProducts(ctx context.Context, query string, limit int) ([]store.Product, error)
    ListProducts(ctx context.Context, limit, offset int) ([]store.Product, error)
    GetCountry(ctx context.Context, code string) (*store.Country, error)
    ListHistory(ctx context.Context, sessionID string, limit int) ([]store.HistoryEntry, error)
    Statistics(ctx context.Context) (store.Stats, error)
    ImportCSV(ctx context.Context, path string) (store.ImportResult, error)
}

type Server struct {
    data   DataStore
    calc   *tariff.Calculator
    logger *zap.Logger
}

// New builds the handler over a database pool.
func New(db *pgxpool.Pool, calc *tariff.Calculator, logger *zap.Logger) http.Handler {
    return NewWithStore(store.New(db, logger), calc, logger)
}

// NewWithStore allows injecting a custom DataStore implementation.
func NewWithStore(data DataStore, calc *tariff.Calculator, logger *zap.Logger) http.Handler {
    if logger == nil {
        logger = zap.NewNop()
    }
    s := &Server{data: data, calc: calc, logger: logger}
    r := chi.NewRouter()
    // Observability: Request ID and basic logger
    r.Use(requestIDMiddleware)
    r.Use(middleware.Logger)
    r.Get("/healthz", s.handleHealth)
    r.Post("/calculations", s.handleCalculate)
    r.Get("/products/{number}", s.handleGetProduct)
    r.Get("/products", s.handleListProducts)
    r.Post("/products", s.handleUpsertProduct)
    r.Post("/products/import", s.handleImport)
    r.Get("/history", s.handleHistory)
    r.Get("/statistics", s.handleStatistics)
    return r
}

type HealthResponse struct {
    Status            string `json:"status"`
    DatabaseConnected bool   `json:"database_connected"`
    TotalHTSProducts  int    `json:"total_hts_products"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
    stats, err := s.data.Statistics(r.Context())
    if err != nil {
        writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unhealthy"})
        return
    }
    writeJSON(w, http.StatusOK, HealthResponse{
        Status:            "healthy",
        DatabaseConnected: true,
        TotalHTSProducts:  stats.TotalProducts,
    })
}

// Calculations
type CalculationRequest struct {
    HTSNumber   string  `json:"hts_number"`
    ProductCost float64 `json:"product_cost"`
    Freight     float64 `json:"freight"`
    Insurance   float64 `json:"insurance"`
    Quantity    int     `json:"quantity"`
    WeightKg    float64 `json:"weight_kg"`
    CountryCode string  `json:"country_code"`
    SessionID   string  `json:"session_id"`
}

func (s *Server) handleCalculate(w http.ResponseWriter, r *http.Request) {
    var req CalculationRequest
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        writeErrorJSON(w, http.StatusBadRequest, "invalid_json", "invalid json")
        return
    }
    req.HTSNumber = strings.TrimSpace(req.HTSNumber)
    if req.HTSNumber == "" {
        writeErrorJSON(w, http.StatusBadRequest, "invalid_request", "hts_number required")
        return
    }

    in := tariff.ShipmentInput{
        ProductCost: decimal.NewFromFloat(req.ProductCost),
        Freight:     decimal.NewFromFloat(req.Freight),
        Insurance:   decimal.NewFromFloat(req.Insurance),
        Quantity:    req.Quantity,
        WeightKg:    decimal.NewFromFloat(req.WeightKg),
        CountryCode: strings.ToUpper(strings.TrimSpace(req.CountryCode)),
    }
    if err := in.Validate(); err != nil {
        writeValidationError(w, err)
        return
    }

    ctx := r.Context()
    product, err := s.data.GetProduct(ctx, req.HTSNumber)
    if err != nil {
        if errors.Is(err, store.ErrNotFound) {
            writeErrorJSON(w, http.StatusNotFound, "resource_not_found", "HTS number "+req.HTSNumber+" not found")
            return
        }
        s.logger.Error("get product", zap.Error(err))
        writeErrorJSON(w, http.StatusInternalServerError, "db_error", "db error")
        return
    }
    if _, err := s.data.GetCountry(ctx, in.CountryCode); err != nil {
        if errors.Is(err, store.ErrNotFound) {
            writeErrorJSON(w, http.StatusNotFound, "resource_not_found", "country "+in.CountryCode+" not found")
            return
        }
        s.logger.Error("get country", zap.Error(err))
        writeErrorJSON(w, http.StatusInternalServerError, "db_error", "db error")
        return
    }

    sessionID := strings.TrimSpace(req.SessionID)
    if sessionID == "" {
        sessionID = uuid.New().String()
    }

    result, err := s.calc.Calculate(ctx, product.Tariff(), in, sessionID)
    if err != nil {
        switch {
        case isValidationError(err):
            writeValidationError(w, err)
        case errors.Is(err, tariff.ErrNoApplicableRate):
            writeErrorJSON(w, http.StatusUnprocessableEntity, "no_applicable_rate", err.Error())
        default:
            s.logger.Error("calculate duties", zap.String("hts_number", req.HTSNumber), zap.Error(err))
            writeErrorJSON(w, http.StatusInternalServerError, "calculation_error", "internal error during calculation")
        }
        return
    }

    writeJSON(w, http.StatusOK, result.Document())
}

func isValidationError(err error) bool {
    var verr *tariff.ValidationError
    return errors.As(err, &verr)
}

func writeValidationError(w http.ResponseWriter, err error) {
    var verr *tariff.ValidationError
    if errors.As(err, &verr) {
        writeErrorJSON(w, http.StatusBadRequest, "invalid_"+verr.Field, verr.Error())
        return
    }
    writeErrorJSON(w, http.StatusBadRequest, "invalid_request", err.Error())
}

// Products
type ProductPayload struct {
    HTSNumber     string `json:"hts_number"`
    Description   string `json:"description"`
    UnitOfMeasure string `json:"unit_of_measure"`
    GeneralRate   string `json:"general_duty_rate"`
    SpecialRate   string `json:"special_duty_rate"`
    Column2Rate   string `json:"column2_duty_rate"`
}

type ProductResponse struct {
    ID            int64  `json:"id"`
    HTSNumber     string `json:"hts_number"`
    Description   string `json:"description"`
    UnitOfMeasure string `json:"unit_of_measure"`
    GeneralRate   string `json:"general_duty_rate"`
    SpecialRate   string `json:"special_duty_rate"`
    Column2Rate   string `json:"column2_duty_rate"`
    CreatedAt     string `json:"created_at"`
    UpdatedAt     string `json:"updated_at"`
}

func toProductResponse(p *store.Product) ProductResponse {
    return ProductResponse{
        ID:            p.ID,
        HTSNumber:     p.HTSNumber,
        Description:   p.Description,
        UnitOfMeasure: p.UnitOfMeasure,
        GeneralRate:   p.GeneralRate,
        SpecialRate:   p.SpecialRate,
        Column2Rate:   p.Column2Rate,
        CreatedAt:     p.CreatedAt.UTC().Format(time.RFC3339),
        UpdatedAt:     p.UpdatedAt.UTC().Format(time.RFC3339),
    }
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
    number := strings.TrimSpace(chi.URLParam(r, "number"))
    if number == "" {
        writeErrorJSON(w, http.StatusBadRequest, "invalid_request", "hts number required")
        return
    }
    p, err := s.data.GetProduct(r.Context(), number)
    if err != nil {
        if errors.Is(err, store.ErrNotFound) {
            writeErrorJSON(w, http.StatusNotFound, "resource_not_found", "HTS number "+number+" not found")
            return
        }
        s.logger.Error("get product", zap.Error(err))
        writeErrorJSON(w, http.StatusInternalServerError, "db_error", "db error")
        return
    }
    writeJSON(w, http.StatusOK, toProductResponse(p))
}

type ProductListResponse struct {
    Products   []ProductResponse `json:"products"`
    TotalFound int               `json:"total_found"`
    Query      string            `json:"query,omitempty"`
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
    q := r.URL.Query()
    query := strings.TrimSpace(q.Get("q"))
    limit := parseIntOr(q.Get("limit"), 0)
    offset := parseIntOr(q.Get("offset"), 0)

    var (
        products []store.Product
        err      error
    )
    if query != "" {
        products, err = s.data.SearchProducts(r.Context(), query, limit)
    } else {
        products, err = s.data.ListProducts(r.Context(), limit, offset)
    }
    if err != nil {
        s.logger.Error("list products", zap.Error(err))
        writeErrorJSON(w, http.StatusInternalServerError, "db_error", "db error")
        return
    }

    resp := ProductListResponse{Products: make([]ProductResponse, 0, len(products)), Query: query}
    for i := range products {
        resp.Products = append(resp.Products, toProductResponse(&products[i]))
    }
    resp.TotalFound = len(resp.Products)
    writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUpsertProduct(w http.ResponseWriter, r *http.Request) {
    var req ProductPayload
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        writeErrorJSON(w, http.StatusBadRequest, "invalid_json", "invalid json")
        return
    }
    if strings.TrimSpace(req.HTSNumber) == "" {
        writeErrorJSON(w, http.StatusBadRequest, "invalid_request", "hts_number required")
        return
    }
    p, _, err := s.data.UpsertProduct(r.Context(), store.Product{
        HTSNumber:     req.HTSNumber,
        Description:   req.Description,
        UnitOfMeasure: req.UnitOfMeasure,
        GeneralRate:   req.GeneralRate,
        SpecialRate:   req.SpecialRate,
        Column2Rate:   req.Column2Rate,
    })
    if err != nil {
        s.logger.Error("upsert product", zap.String("hts_number", req.HTSNumber), zap.Error(err))
        writeErrorJSON(w, http.StatusInternalServerError, "db_error", "failed to save product")
        return
    }
    writeJSON(w, http.StatusOK, toProductResponse(p))
}

// Bulk import
type ImportRequest struct {
    CSVPath string `json:"csv_path"`
}

type ImportResponse struct {
    Imported       int    `json:"imported"`
    Updated        int    `json:"updated"`
    Errors         int    `json:"errors"`
    TotalProcessed int    `json:"total_processed"`
    Message        string `json:"message"`
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
    var req ImportRequest
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        writeErrorJSON(w, http.StatusBadRequest, "invalid_json", "invalid json")
        return
    }
    if strings.TrimSpace(req.CSVPath) == "" {
        writeErrorJSON(w, http.StatusBadRequest, "invalid_request", "csv_path required")
        return
    }
    res, err := s.data.ImportCSV(r.Context(), req.CSVPath)
    if err != nil {
        s.logger.Error("bulk import", zap.String("path", req.CSVPath), zap.Error(err))
        writeErrorJSON(w, http.StatusBadRequest, "import_failed", err.Error())
        return
    }
    writeJSON(w, http.StatusOK, ImportResponse{
        Imported:       res.Imported,
        Updated:        res.Updated,
        Errors:         res.Errors,
        TotalProcessed: res.TotalProcessed,
        Message: "Import completed: " + strconv.Itoa(res.Imported) + " imported, " +
            strconv.Itoa(res.Updated) + " updated, " + strconv.Itoa(res.Errors) + " errors",
    })
}

// History
type HistoryEntryResponse struct {
    ID          int64           `json:"id"`
    SessionID   string          `json:"session_id"`
    HTSNumber   string          `json:"hts_number"`
    CountryCode string          `json:"country_code"`
    ProductCost float64         `json:"product_cost"`
    Freight     float64         `json:"freight"`
    Insurance   float64         `json:"insurance"`
    Quantity    int             `json:"quantity"`
    WeightKg    float64         `json:"weight_kg"`
    CIFValue    float64         `json:"cif_value"`
    TotalDuty   float64         `json:"total_duty"`
    LandedCost  float64         `json:"landed_cost"`
    Details     json.RawMessage `json:"calculation_details,omitempty"`
    CreatedAt   string          `json:"created_at"`
}

type HistoryListResponse struct {
    Calculations []HistoryEntryResponse `json:"calculations"`
    TotalCount   int                    `json:"total_count"`
    SessionID    string                 `json:"session_id,omitempty"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
    q := r.URL.Query()
    sessionID := strings.TrimSpace(q.Get("session_id"))
    limit := parseIntOr(q.Get("limit"), 0)

    entries, err := s.data.ListHistory(r.Context(), sessionID, limit)
    if err != nil {
        s.logger.Error("list history", zap.Error(err))
        writeErrorJSON(w, http.StatusInternalServerError, "db_error", "db error")
        return
    }
    resp := HistoryListResponse{Calculations: make([]HistoryEntryResponse, 0, len(entries)), SessionID: sessionID}
    for _, e := range entries {
        resp.Calculations = append(resp.Calculations, HistoryEntryResponse{
            ID:          e.ID,
            SessionID:   e.SessionID,
            HTSNumber:   e.HTSNumber,
            CountryCode: e.CountryCode,
            ProductCost: e.ProductCost,
            Freight:     e.Freight,
            Insurance:   e.Insurance,
            Quantity:    e.Quantity,
            WeightKg:    e.WeightKg,
            CIFValue:    e.CIFValue,
            TotalDuty:   e.TotalDuty,
            LandedCost:  e.LandedCost,
            Details:     e.Details,
            CreatedAt:   e.CreatedAt.UTC().Format(time.RFC3339),
        })
    }
    resp.TotalCount = len(resp.Calculations)
    writeJSON(w, http.StatusOK, resp)
}

type StatisticsResponse struct {
    TotalHTSProducts   int `json:"total_hts_products"`
    TotalCountries     int `json:"total_countries"`
    TotalCalculations  int `json:"total_calculations"`
    RecentCalculations int `json:"recent_calculations"`
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
    stats, err := s.data.Statistics(r.Context())
    if err != nil {
        s.logger.Error("statistics", zap.Error(err))
        writeErrorJSON(w, http.StatusInternalServerError, "db_error", "db error")
        return
    }
    writeJSON(w, http.StatusOK, StatisticsResponse{
        TotalHTSProducts:   stats.TotalProducts,
        TotalCountries:     stats.TotalCountries,
        TotalCalculations:  stats.TotalCalculations,
        RecentCalculations: stats.RecentCalculations,
    })
}

func writeJSON(w http.ResponseWriter, status int, v any) {
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(status)
    _ = json.NewEncoder(w).Encode(v)
}

// writeErrorJSON writes a standardized JSON error response:
// {"error": {"code": string, "message": string}}
func writeErrorJSON(w http.ResponseWriter, status int, code string, message string) {
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(status)
    _ = json.NewEncoder(w).Encode(map[string]any{
        "error": map[string]string{
            "code":    code,
            "message": message,
        },
    })
}

// requestIDMiddleware ensures X-Request-ID is set on the response.
// If provided in the request header, it is propagated; otherwise a UUID is generated.
func requestIDMiddleware(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        rid := strings.TrimSpace(r.Header.Get("X-Request-ID"))
        if rid == "" {
            rid = uuid.New().String()
        }
        w.Header().Set("X-Request-ID", rid)
        next.ServeHTTP(w, r)
    })
}

func parseIntOr(s string, def int) int {
    if s == "" {
        return def
    }
    n, err := strconv.Atoi(s)
    if err != nil {
        return def
    }
    return n
}
