package tariff

import (
    "context"
    "encoding/json"
    "fmt"
    "time"

    "github.com/shopspring/decimal"
    "go.uber.org/zap"
)

// HistoryRecord is the audit row handed to the history sink after a
// completed calculation.
type HistoryRecord struct {
    SessionID   string
    HTSNumber   string
    CountryCode string
    ProductCost decimal.Decimal
    Freight     decimal.Decimal
    Insurance   decimal.Decimal
    Quantity    int
    WeightKg    decimal.Decimal
    CIFValue    decimal.Decimal
    TotalDuty   decimal.Decimal
    LandedCost  decimal.Decimal
    Details     json.RawMessage
}

// HistorySink accepts completed calculation records. Persistence is
// best-effort and off the critical path: a sink failure is logged and
// dropped, never surfaced to the caller.
type HistorySink interface {
    SaveCalculation(ctx context.Context, rec HistoryRecord) error
}

// Calculator composes parser, eligibility resolver, CIF calculator and
// evaluator into the full duty calculation. All the computation is pure;
// the only side effect is the asynchronous history write.
type Calculator struct {
    resolver *EligibilityResolver
    cache    *ParseCache
    history  HistorySink
    logger   *zap.Logger
}

// NewCalculator wires the engine. restricted lists the column 2 (non-NTR)
// countries; cacheSize bounds the shared parse cache. history may be nil.
func NewCalculator(restricted []string, cacheSize int, history HistorySink, logger *zap.Logger) (*Calculator, error) {
    if logger == nil {
        logger = zap.NewNop()
    }
    cache, err := NewParseCache(cacheSize)
    if err != nil {
        return nil, fmt.Errorf("parse cache: %w", err)
    }
    return &Calculator{
        resolver: NewEligibilityResolver(restricted, cache.Parse),
        cache:    cache,
        history:  history,
        logger:   logger,
    }, nil
}

// Calculate runs the full sequence for one shipment: validate inputs,
// compute CIF, resolve the applicable rate column, parse and evaluate every
// column present for the audit breakdown, and assemble the result. The
// selected column's evaluation must succeed; other columns may individually
// fail to apply and are reported as not applicable.
func (c *Calculator) Calculate(ctx context.Context, product Product, in ShipmentInput, sessionID string) (*CalculationResult, error) {
    if err := in.Validate(); err != nil {
        return nil, err
    }

    cif, err := ComputeCIF(in.ProductCost, in.Freight, in.Insurance)
    if err != nil {
        return nil, err
    }

    columns := product.PresentColumns()
    selected := c.resolver.SelectColumn(in.CountryCode, columns)

    result := &CalculationResult{
        Product:        product,
        Input:          in,
        CIFValue:       cif,
        SelectedColumn: selected,
        Columns:        make(map[RateColumn]*ColumnCalculation, len(columns)+1),
        SessionID:      sessionID,
        Timestamp:      time.Now().UTC(),
    }

    // The selected column is evaluated even when its text is blank: blank
    // general-column text means duty-free in the tariff tables.
    if _, ok := columns[selected]; !ok {
        columns[selected] = product.RateText(selected)
    }

    for col, text := range columns {
        parsed := c.cache.Parse(text)
        calc := &ColumnCalculation{
            Column:       col,
            DutyType:     parsed.DutyType(),
            OriginalRate: parsed.Raw,
            Applicable:   col == selected,
        }
        applied, notes, evalErr := Evaluate(parsed, cif, in.WeightKg, in.Quantity, in.CountryCode)
        calc.Notes = notes
        if evalErr != nil {
            if col == selected {
                return nil, evalErr
            }
            calc.Applicable = false
            calc.Notes = append(calc.Notes, fmt.Sprintf("Not applicable for country %s", in.CountryCode))
        } else {
            calc.Components = applied
            calc.TotalAmount = SumAmounts(applied)
            calc.EffectiveRate = EffectiveRate(calc.TotalAmount, cif)
        }
        result.Columns[col] = calc
    }

    sel := result.Selected()
    result.TotalDuty = sel.TotalAmount
    result.LandedCost = cif.Add(sel.TotalAmount).Round(2)
    result.EffectiveRate = sel.EffectiveRate

    c.recordHistory(result)
    return result, nil
}

// recordHistory hands the result to the sink on a detached context so a
// slow or failing history store never delays the caller.
func (c *Calculator) recordHistory(result *CalculationResult) {
    if c.history == nil || result.SessionID == "" {
        return
    }
    details, err := json.Marshal(result.Document())
    if err != nil {
        c.logger.Error("marshal calculation details", zap.Error(err))
        details = json.RawMessage("{}")
    }
    rec := HistoryRecord{
        SessionID:   result.SessionID,
        HTSNumber:   result.Product.HTSNumber,
        CountryCode: result.Input.CountryCode,
        ProductCost: result.Input.ProductCost,
        Freight:     result.Input.Freight,
        Insurance:   result.Input.Insurance,
        Quantity:    result.Input.Quantity,
        WeightKg:    result.Input.WeightKg,
        CIFValue:    result.CIFValue,
        TotalDuty:   result.TotalDuty,
        LandedCost:  result.LandedCost,
        Details:     details,
    }
    go func() {
        ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
        defer cancel()
        if err := c.history.SaveCalculation(ctx, rec); err != nil {
            c.logger.Error("save calculation history",
                zap.String("session_id", rec.SessionID),
                zap.String("hts_number", rec.HTSNumber),
                zap.Error(err))
        }
    }()
}
