package tariff

import (
    "context"
    "encoding/json"
    "errors"
    "testing"
    "time"

    "github.com/shopspring/decimal"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
    "go.uber.org/zap"
)

type captureSink struct {
    ch chan HistoryRecord
}

func (s *captureSink) SaveCalculation(_ context.Context, rec HistoryRecord) error {
    s.ch <- rec
    return nil
}

type failingSink struct{}

func (failingSink) SaveCalculation(context.Context, HistoryRecord) error {
    return errors.New("history store down")
}

func newTestCalculator(t *testing.T, history HistorySink) *Calculator {
    t.Helper()
    calc, err := NewCalculator([]string{"CU", "KP"}, 64, history, zap.NewNop())
    require.NoError(t, err)
    return calc
}

func baseInput() ShipmentInput {
    return ShipmentInput{
        ProductCost: d("5000"),
        Freight:     d("200"),
        Insurance:   d("50"),
        Quantity:    10,
        WeightKg:    d("100"),
        CountryCode: "JP",
    }
}

func TestCalculateFreeProduct(t *testing.T) {
    calc := newTestCalculator(t, nil)
    product := Product{HTSNumber: "8471.30.0100", Description: "Laptops", GeneralRate: "Free"}

    res, err := calc.Calculate(context.Background(), product, baseInput(), "")
    require.NoError(t, err)

    assert.Equal(t, "5250", res.CIFValue.String())
    assert.True(t, res.TotalDuty.IsZero())
    assert.Equal(t, "5250", res.LandedCost.String())
    assert.Zero(t, res.EffectiveRate)
    assert.Equal(t, ColumnGeneral, res.SelectedColumn)
    assert.Contains(t, res.Selected().Notes, "Product qualifies for duty-free entry")
}

func TestCalculateWeightBasedProduct(t *testing.T) {
    calc := newTestCalculator(t, nil)
    product := Product{HTSNumber: "0201.10.0500", Description: "Beef carcasses", GeneralRate: "4.5¢/kg"}

    in := baseInput()
    in.ProductCost = d("10000")
    in.Freight = decimal.Zero
    in.Insurance = decimal.Zero
    in.WeightKg = d("5000")

    res, err := calc.Calculate(context.Background(), product, in, "")
    require.NoError(t, err)

    assert.Equal(t, "225", res.TotalDuty.String())
    assert.Equal(t, "10225", res.LandedCost.String())
    assert.InDelta(t, 2.25, res.EffectiveRate, 1e-9)
}

func TestCalculatePercentageProduct(t *testing.T) {
    calc := newTestCalculator(t, nil)
    product := Product{HTSNumber: "8703.23.0190", Description: "Motor cars", GeneralRate: "26.4%"}

    in := baseInput()
    in.ProductCost = d("20000")
    in.Freight = d("1000")
    in.Insurance = d("300")

    res, err := calc.Calculate(context.Background(), product, in, "")
    require.NoError(t, err)

    assert.Equal(t, "21300", res.CIFValue.String())
    assert.Equal(t, "5623.2", res.TotalDuty.String())
    assert.Equal(t, "26923.2", res.LandedCost.String())
    assert.InDelta(t, 26.4, res.EffectiveRate, 1e-9)
}

func TestCalculateRestrictedCountryUsesColumn2(t *testing.T) {
    calc := newTestCalculator(t, nil)
    product := Product{
        HTSNumber:   "6109.10.0004",
        GeneralRate: "16.5%",
        SpecialRate: "Free (AU, BH, CL)",
        Column2Rate: "90%",
    }

    in := baseInput()
    in.ProductCost = d("1000")
    in.Freight = decimal.Zero
    in.Insurance = decimal.Zero
    in.CountryCode = "CU"

    res, err := calc.Calculate(context.Background(), product, in, "")
    require.NoError(t, err)

    assert.Equal(t, Column2, res.SelectedColumn)
    assert.Equal(t, "900", res.TotalDuty.String())

    // All three columns stay in the breakdown; only the selected one is
    // marked applicable.
    require.Len(t, res.Columns, 3)
    assert.True(t, res.Columns[Column2].Applicable)
    assert.False(t, res.Columns[ColumnGeneral].Applicable)
    assert.False(t, res.Columns[ColumnSpecial].Applicable)
}

func TestCalculateSpecialProgramCountry(t *testing.T) {
    calc := newTestCalculator(t, nil)
    product := Product{
        HTSNumber:   "6109.10.0004",
        GeneralRate: "16.5%",
        SpecialRate: "Free (AU, BH, CL)",
    }

    in := baseInput()
    in.CountryCode = "AU"

    res, err := calc.Calculate(context.Background(), product, in, "")
    require.NoError(t, err)
    assert.Equal(t, ColumnSpecial, res.SelectedColumn)
    assert.True(t, res.TotalDuty.IsZero())
    assert.Equal(t, res.CIFValue.String(), res.LandedCost.String())
}

func TestCalculateBlankSelectedColumnIsDutyFree(t *testing.T) {
    calc := newTestCalculator(t, nil)
    product := Product{HTSNumber: "9999.99.9999", Description: "No rate text at all"}

    res, err := calc.Calculate(context.Background(), product, baseInput(), "")
    require.NoError(t, err)
    assert.Equal(t, ColumnGeneral, res.SelectedColumn)
    assert.True(t, res.TotalDuty.IsZero())
}

func TestCalculateNoApplicableRate(t *testing.T) {
    calc := newTestCalculator(t, nil)
    product := Product{HTSNumber: "0101.21.0010", GeneralRate: "Free (AU)"}

    in := baseInput()
    in.CountryCode = "CN"

    _, err := calc.Calculate(context.Background(), product, in, "")
    assert.ErrorIs(t, err, ErrNoApplicableRate)
}

func TestCalculateRejectsInvalidInput(t *testing.T) {
    calc := newTestCalculator(t, nil)
    product := Product{HTSNumber: "8471.30.0100", GeneralRate: "Free"}

    in := baseInput()
    in.Quantity = 0

    _, err := calc.Calculate(context.Background(), product, in, "")
    var verr *ValidationError
    require.ErrorAs(t, err, &verr)
    assert.Equal(t, "quantity", verr.Field)
}

func TestCalculateWritesHistoryAsynchronously(t *testing.T) {
    sink := &captureSink{ch: make(chan HistoryRecord, 1)}
    calc := newTestCalculator(t, sink)
    product := Product{HTSNumber: "8703.23.0190", GeneralRate: "26.4%"}

    in := baseInput()
    in.ProductCost = d("20000")
    in.Freight = d("1000")
    in.Insurance = d("300")

    res, err := calc.Calculate(context.Background(), product, in, "sess-123")
    require.NoError(t, err)

    select {
    case rec := <-sink.ch:
        assert.Equal(t, "sess-123", rec.SessionID)
        assert.Equal(t, "8703.23.0190", rec.HTSNumber)
        assert.Equal(t, "JP", rec.CountryCode)
        assert.Equal(t, res.CIFValue.String(), rec.CIFValue.String())
        assert.Equal(t, res.TotalDuty.String(), rec.TotalDuty.String())
        assert.Equal(t, res.LandedCost.String(), rec.LandedCost.String())

        var doc CalculationDocument
        require.NoError(t, json.Unmarshal(rec.Details, &doc))
        assert.Equal(t, "8703.23.0190", doc.HTSDetails.Number)
        assert.InDelta(t, 5623.2, doc.Summary.TotalDuty, 1e-9)
    case <-time.After(2 * time.Second):
        t.Fatal("history record never arrived")
    }
}

func TestCalculateSkipsHistoryWithoutSession(t *testing.T) {
    sink := &captureSink{ch: make(chan HistoryRecord, 1)}
    calc := newTestCalculator(t, sink)
    product := Product{HTSNumber: "8471.30.0100", GeneralRate: "Free"}

    _, err := calc.Calculate(context.Background(), product, baseInput(), "")
    require.NoError(t, err)

    select {
    case <-sink.ch:
        t.Fatal("history must not be written without a session id")
    case <-time.After(100 * time.Millisecond):
    }
}

func TestCalculateSurvivesFailingHistorySink(t *testing.T) {
    calc := newTestCalculator(t, failingSink{})
    product := Product{HTSNumber: "8471.30.0100", GeneralRate: "Free"}

    res, err := calc.Calculate(context.Background(), product, baseInput(), "sess-456")
    require.NoError(t, err)
    assert.True(t, res.TotalDuty.IsZero())
}
