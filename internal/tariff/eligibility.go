package tariff

import "strings"

// EligibilityResolver decides which rate column applies to a shipment's
// country of origin. The restricted set holds countries without normal
// trade relations, which take the punitive column 2 rate.
type EligibilityResolver struct {
    restricted map[string]bool
    parse      func(string) ParsedDutyRate
}

// NewEligibilityResolver builds a resolver over the configured non-NTR
// country list. parse is used for the preliminary look at special-column
// text; nil falls back to the plain parser.
func NewEligibilityResolver(restricted []string, parse func(string) ParsedDutyRate) *EligibilityResolver {
    set := make(map[string]bool, len(restricted))
    for _, c := range restricted {
        set[strings.ToUpper(strings.TrimSpace(c))] = true
    }
    if parse == nil {
        parse = Parse
    }
    return &EligibilityResolver{restricted: set, parse: parse}
}

// SelectColumn picks the applicable rate column for a country given the
// columns carrying rate text. Checks run in strict order: the column 2
// override first, then special-program eligibility, then the general (MFN)
// fallback. The ordering matters: a restricted country must never benefit
// from a preferential-program match.
func (r *EligibilityResolver) SelectColumn(countryCode string, columns map[RateColumn]string) RateColumn {
    cc := strings.ToUpper(strings.TrimSpace(countryCode))

    if r.restricted[cc] {
        if _, ok := columns[Column2]; ok {
            return Column2
        }
        return ColumnGeneral
    }

    if text, ok := columns[ColumnSpecial]; ok {
        for _, comp := range r.parse(text).Components {
            if len(comp.Countries) > 0 && comp.AppliesTo(cc) {
                return ColumnSpecial
            }
        }
    }

    return ColumnGeneral
}
