package tariff

import (
    "errors"
    "fmt"

    "github.com/shopspring/decimal"
)

// ErrNoApplicableRate reports that every component of a parsed rate was
// conditioned on countries other than the shipment's. The tariff text gives
// no fallback for this case, so it surfaces as an error rather than a
// silent zero.
var ErrNoApplicableRate = errors.New("no applicable duty rate for country of origin")

const (
    noteDutyFree     = "Product qualifies for duty-free entry"
    noteManualReview = "Rate text could not be fully parsed; manual review required"
)

// Evaluate applies a parsed duty rate to a shipment's CIF value, weight and
// quantity, producing the dollar amount per component. Amounts are rounded
// to cents per component, matching how the duty columns are assessed.
//
// A Free component whose condition admits the country is an absolute
// override: it zeroes the whole rate regardless of other components.
// Unparsed components evaluate to zero and flag the result for manual
// review; they never silently contribute to the total.
func Evaluate(parsed ParsedDutyRate, cif, weightKg decimal.Decimal, quantity int, countryCode string) ([]AppliedComponent, []string, error) {
    for _, comp := range parsed.Components {
        if comp.Kind == KindFree && comp.AppliesTo(countryCode) {
            applied := []AppliedComponent{{
                Component:   comp,
                Amount:      decimal.Zero,
                Description: "Duty-free",
            }}
            return applied, []string{noteDutyFree}, nil
        }
    }

    var (
        applied []AppliedComponent
        notes   []string
    )
    for _, comp := range parsed.Components {
        switch comp.Kind {
        case KindFree:
            // Condition excludes this country; the component contributes
            // nothing and falls out of the applied set.
        case KindPercentage:
            amount := cif.Mul(comp.Rate).Div(decimal.NewFromInt(100)).Round(2)
            applied = append(applied, AppliedComponent{
                Component:   comp,
                Amount:      amount,
                Description: fmt.Sprintf("%s%% of CIF value", comp.Rate),
            })
        case KindPerWeight:
            amount := comp.Rate.Mul(weightKg).Round(2)
            applied = append(applied, AppliedComponent{
                Component:   comp,
                Amount:      amount,
                Description: fmt.Sprintf("$%s/kg x %s kg", comp.Rate, weightKg),
            })
        case KindPerUnit:
            amount := comp.Rate.Mul(decimal.NewFromInt(int64(quantity))).Round(2)
            applied = append(applied, AppliedComponent{
                Component:   comp,
                Amount:      amount,
                Description: fmt.Sprintf("$%s/%s x %d", comp.Rate, comp.Unit, quantity),
            })
        case KindUnparsed:
            applied = append(applied, AppliedComponent{
                Component:   comp,
                Amount:      decimal.Zero,
                Description: fmt.Sprintf("Unrecognized rate text %q", comp.RawText),
            })
            notes = appendUnique(notes, noteManualReview)
        }
    }

    if len(applied) == 0 {
        // Everything parsed was a Free component for some other country.
        return nil, notes, ErrNoApplicableRate
    }
    return applied, notes, nil
}

// SumAmounts totals the applied components.
func SumAmounts(applied []AppliedComponent) decimal.Decimal {
    total := decimal.Zero
    for _, a := range applied {
        total = total.Add(a.Amount)
    }
    return total
}

// EffectiveRate expresses a duty total as a percentage of CIF value, zero
// when CIF is zero.
func EffectiveRate(total, cif decimal.Decimal) float64 {
    if cif.IsZero() {
        return 0
    }
    rate, _ := total.Div(cif).Mul(decimal.NewFromInt(100)).Float64()
    return rate
}

func appendUnique(notes []string, note string) []string {
    for _, n := range notes {
        if n == note {
            return notes
        }
    }
    return append(notes, note)
}
