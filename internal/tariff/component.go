package tariff

import (
    "fmt"
    "regexp"
    "strings"
    "time"

    "github.com/shopspring/decimal"
)

// ComponentKind identifies how one term of a duty rate is computed.
type ComponentKind string

const (
    KindPercentage ComponentKind = "percentage"      // ad valorem, % of CIF
    KindPerWeight  ComponentKind = "specific_weight" // $/kg
    KindPerUnit    ComponentKind = "specific_unit"   // $/unit, $/head, ...
    KindFree       ComponentKind = "free"
    KindUnparsed   ComponentKind = "unparsed"
)

// DutyComponent is one term of a (possibly compound) duty rate.
// Rate is a non-negative magnitude: percent points for KindPercentage,
// dollars per Unit for the specific kinds, zero otherwise. Countries, when
// non-empty, restricts the component to shipments from those countries
// (encodes statutory forms like "Free (AU)"). RawText keeps the original
// substring for audit.
type DutyComponent struct {
    Kind      ComponentKind
    Rate      decimal.Decimal
    Unit      string
    Countries []string
    RawText   string
}

// AppliesTo reports whether the component's country condition admits the
// given country. An empty condition admits every country.
func (c DutyComponent) AppliesTo(countryCode string) bool {
    if len(c.Countries) == 0 {
        return true
    }
    cc := strings.ToUpper(strings.TrimSpace(countryCode))
    for _, want := range c.Countries {
        if want == cc {
            return true
        }
    }
    return false
}

// ParsedDutyRate is the ordered component sequence parsed from one raw duty
// string. Components combine additively. The sequence is never empty: input
// that cannot be interpreted at all yields a single KindUnparsed component.
type ParsedDutyRate struct {
    Raw        string
    Components []DutyComponent
}

// HasUnparsed reports whether any residue of the raw text was not understood.
func (p ParsedDutyRate) HasUnparsed() bool {
    for _, c := range p.Components {
        if c.Kind == KindUnparsed {
            return true
        }
    }
    return false
}

// DutyType summarizes the parsed rate the way the tariff tables label them:
// a single-component rate reports its kind, multiple parsed components are
// "compound", and anything with unparsed residue is "complex".
func (p ParsedDutyRate) DutyType() string {
    if p.HasUnparsed() {
        return "complex"
    }
    if len(p.Components) > 1 {
        return "compound"
    }
    if len(p.Components) == 1 {
        return string(p.Components[0].Kind)
    }
    return "complex"
}

// RateColumn names the three duty-rate columns an HTS line carries.
type RateColumn string

const (
    ColumnGeneral RateColumn = "general" // MFN rate, the default
    ColumnSpecial RateColumn = "special" // preferential trade programs
    Column2       RateColumn = "column2" // non-NTR punitive rate
)

// Product is the engine's view of an HTS line: identity plus the raw duty
// text per rate column. Rate text is kept verbatim and parsed at query time.
type Product struct {
    HTSNumber     string
    Description   string
    UnitOfMeasure string
    GeneralRate   string
    SpecialRate   string
    Column2Rate   string
}

// RateText returns the raw duty text for a column ("" when absent).
func (p Product) RateText(col RateColumn) string {
    switch col {
    case ColumnGeneral:
        return p.GeneralRate
    case ColumnSpecial:
        return p.SpecialRate
    case Column2:
        return p.Column2Rate
    }
    return ""
}

// PresentColumns returns the columns carrying non-blank rate text.
func (p Product) PresentColumns() map[RateColumn]string {
    out := make(map[RateColumn]string, 3)
    for _, col := range []RateColumn{ColumnGeneral, ColumnSpecial, Column2} {
        if strings.TrimSpace(p.RateText(col)) != "" {
            out[col] = p.RateText(col)
        }
    }
    return out
}

// ShipmentInput carries the per-shipment figures a duty calculation needs.
// CIF value is always recomputed from cost+freight+insurance, never supplied.
type ShipmentInput struct {
    ProductCost decimal.Decimal
    Freight     decimal.Decimal
    Insurance   decimal.Decimal
    Quantity    int
    WeightKg    decimal.Decimal
    CountryCode string
}

var countryCodeRe = regexp.MustCompile(`^[A-Za-z]{2,3}$`)

// ValidationError names the shipment field that failed validation.
type ValidationError struct {
    Field   string
    Message string
}

func (e *ValidationError) Error() string {
    return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Validate rejects malformed shipment input before any parsing or
// evaluation happens.
func (s ShipmentInput) Validate() error {
    if s.ProductCost.IsNegative() {
        return &ValidationError{Field: "product_cost", Message: "must not be negative"}
    }
    if s.Freight.IsNegative() {
        return &ValidationError{Field: "freight", Message: "must not be negative"}
    }
    if s.Insurance.IsNegative() {
        return &ValidationError{Field: "insurance", Message: "must not be negative"}
    }
    if s.Quantity <= 0 {
        return &ValidationError{Field: "quantity", Message: "must be a positive integer"}
    }
    if s.WeightKg.IsNegative() {
        return &ValidationError{Field: "weight_kg", Message: "must not be negative"}
    }
    if !countryCodeRe.MatchString(strings.TrimSpace(s.CountryCode)) {
        return &ValidationError{Field: "country_code", Message: "must be a 2-3 letter code"}
    }
    return nil
}

// AppliedComponent pairs a duty component with its evaluated dollar amount.
type AppliedComponent struct {
    Component   DutyComponent
    Amount      decimal.Decimal
    Description string
}

// ColumnCalculation is the evaluated breakdown of one rate column.
type ColumnCalculation struct {
    Column        RateColumn
    DutyType      string
    OriginalRate  string
    Components    []AppliedComponent
    TotalAmount   decimal.Decimal
    EffectiveRate float64 // column total as a percentage of CIF
    Applicable    bool
    Notes         []string
}

// CalculationResult is the full outcome of one duty calculation: CIF value,
// the evaluated breakdown per rate column, and the landed-cost summary
// derived from the column the eligibility resolver selected.
type CalculationResult struct {
    Product          Product
    Input            ShipmentInput
    CIFValue         decimal.Decimal
    SelectedColumn   RateColumn
    Columns          map[RateColumn]*ColumnCalculation
    TotalDuty        decimal.Decimal
    LandedCost       decimal.Decimal
    EffectiveRate    float64 // total duty as a percentage of CIF
    SessionID        string
    Timestamp        time.Time
}

// Selected returns the breakdown for the column feeding the summary.
func (r *CalculationResult) Selected() *ColumnCalculation {
    return r.Columns[r.SelectedColumn]
}
