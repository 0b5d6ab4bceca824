package tariff

import "github.com/shopspring/decimal"

// ComputeCIF sums cost, insurance and freight into the customs valuation
// basis, rounded to cents. Negative inputs are a validation failure, never
// silently clamped.
func ComputeCIF(productCost, freight, insurance decimal.Decimal) (decimal.Decimal, error) {
    switch {
    case productCost.IsNegative():
        return decimal.Zero, &ValidationError{Field: "product_cost", Message: "must not be negative"}
    case freight.IsNegative():
        return decimal.Zero, &ValidationError{Field: "freight", Message: "must not be negative"}
    case insurance.IsNegative():
        return decimal.Zero, &ValidationError{Field: "insurance", Message: "must not be negative"}
    }
    return productCost.Add(freight).Add(insurance).Round(2), nil
}
