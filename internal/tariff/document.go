package tariff

import "time"

// The document types below are the wire shape of a calculation result,
// shared by the HTTP response and the persisted history blob. Monetary
// values flatten to float64 here; all arithmetic upstream is decimal.

type HTSDetailsDoc struct {
    Number        string `json:"number"`
    Description   string `json:"description"`
    UnitOfMeasure string `json:"unit_of_measure"`
}

type InputValuesDoc struct {
    ProductCost float64 `json:"product_cost"`
    Freight     float64 `json:"freight"`
    Insurance   float64 `json:"insurance"`
    Quantity    int     `json:"quantity"`
    WeightKg    float64 `json:"weight_kg"`
    CountryCode string  `json:"country_code"`
    CIFValue    float64 `json:"cif_value"`
}

type ComponentDoc struct {
    Type        string  `json:"type"`
    Rate        float64 `json:"rate"`
    Unit        string  `json:"unit"`
    Description string  `json:"description"`
    Amount      float64 `json:"amount"`
}

type ColumnDoc struct {
    DutyType      string         `json:"duty_type"`
    OriginalRate  string         `json:"original_rate"`
    TotalAmount   float64        `json:"total_amount"`
    EffectiveRate float64        `json:"effective_rate"`
    Applicable    bool           `json:"applicable"`
    Components    []ComponentDoc `json:"components"`
    Notes         []string       `json:"notes"`
}

type SummaryDoc struct {
    CIFValue          float64 `json:"cif_value"`
    TotalDuty         float64 `json:"total_duty"`
    LandedCost        float64 `json:"landed_cost"`
    EffectiveDutyRate float64 `json:"effective_duty_rate"`
}

type CalculationDocument struct {
    HTSDetails       HTSDetailsDoc         `json:"hts_details"`
    InputValues      InputValuesDoc        `json:"input_values"`
    DutyCalculations map[string]*ColumnDoc `json:"duty_calculations"`
    Summary          SummaryDoc            `json:"summary"`
    SessionID        string                `json:"session_id,omitempty"`
    Timestamp        time.Time             `json:"timestamp"`
}

// Document flattens the result into its serializable form.
func (r *CalculationResult) Document() CalculationDocument {
    doc := CalculationDocument{
        HTSDetails: HTSDetailsDoc{
            Number:        r.Product.HTSNumber,
            Description:   r.Product.Description,
            UnitOfMeasure: r.Product.UnitOfMeasure,
        },
        InputValues: InputValuesDoc{
            ProductCost: r.Input.ProductCost.InexactFloat64(),
            Freight:     r.Input.Freight.InexactFloat64(),
            Insurance:   r.Input.Insurance.InexactFloat64(),
            Quantity:    r.Input.Quantity,
            WeightKg:    r.Input.WeightKg.InexactFloat64(),
            CountryCode: r.Input.CountryCode,
            CIFValue:    r.CIFValue.InexactFloat64(),
        },
        DutyCalculations: make(map[string]*ColumnDoc, len(r.Columns)),
        Summary: SummaryDoc{
            CIFValue:          r.CIFValue.InexactFloat64(),
            TotalDuty:         r.TotalDuty.InexactFloat64(),
            LandedCost:        r.LandedCost.InexactFloat64(),
            EffectiveDutyRate: r.EffectiveRate,
        },
        SessionID: r.SessionID,
        Timestamp: r.Timestamp,
    }
    for col, calc := range r.Columns {
        cd := &ColumnDoc{
            DutyType:      calc.DutyType,
            OriginalRate:  calc.OriginalRate,
            TotalAmount:   calc.TotalAmount.InexactFloat64(),
            EffectiveRate: calc.EffectiveRate,
            Applicable:    calc.Applicable,
            Components:    make([]ComponentDoc, 0, len(calc.Components)),
            Notes:         calc.Notes,
        }
        if cd.Notes == nil {
            cd.Notes = []string{}
        }
        for _, a := range calc.Components {
            cd.Components = append(cd.Components, ComponentDoc{
                Type:        string(a.Component.Kind),
                Rate:        a.Component.Rate.InexactFloat64(),
                Unit:        a.Component.Unit,
                Description: a.Description,
                Amount:      a.Amount.InexactFloat64(),
            })
        }
        doc.DutyCalculations[string(col)] = cd
    }
    return doc
}
