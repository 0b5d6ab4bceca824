package tariff

import (
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestParsePercentage(t *testing.T) {
    cases := map[string]string{
        "5.2%":   "5.2",
        "26.4%":  "26.4",
        "5 %":    "5",
        "1,000%": "1000",
    }
    for raw, want := range cases {
        parsed := Parse(raw)
        require.Len(t, parsed.Components, 1, "raw=%q", raw)
        comp := parsed.Components[0]
        assert.Equal(t, KindPercentage, comp.Kind, "raw=%q", raw)
        assert.Equal(t, want, comp.Rate.String(), "raw=%q", raw)
        assert.Empty(t, comp.Unit)
        assert.Empty(t, comp.Countries)
    }
}

func TestParseSpecificRates(t *testing.T) {
    cases := []struct {
        raw  string
        kind ComponentKind
        rate string
        unit string
    }{
        {"2.5¢/kg", KindPerWeight, "0.025", "kg"},
        {"4.5¢/kg", KindPerWeight, "0.045", "kg"},
        {"4.5 cents/kg", KindPerWeight, "0.045", "kg"},
        {"$0.50/kg", KindPerWeight, "0.5", "kg"},
        {"$1.50/unit", KindPerUnit, "1.5", "unit"},
        {"$2/head", KindPerUnit, "2", "head"},
        {"26¢/liter", KindPerUnit, "0.26", "liter"},
        {"6.8¢/kilogram", KindPerWeight, "0.068", "kg"},
        {"0.9¢/each", KindPerUnit, "0.009", "unit"},
    }
    for _, tc := range cases {
        parsed := Parse(tc.raw)
        require.Len(t, parsed.Components, 1, "raw=%q", tc.raw)
        comp := parsed.Components[0]
        assert.Equal(t, tc.kind, comp.Kind, "raw=%q", tc.raw)
        assert.Equal(t, tc.rate, comp.Rate.String(), "raw=%q", tc.raw)
        assert.Equal(t, tc.unit, comp.Unit, "raw=%q", tc.raw)
    }
}

func TestParseFree(t *testing.T) {
    for _, raw := range []string{"Free", "free", "FREE", "", "0", "0%"} {
        parsed := Parse(raw)
        require.Len(t, parsed.Components, 1, "raw=%q", raw)
        comp := parsed.Components[0]
        assert.Equal(t, KindFree, comp.Kind, "raw=%q", raw)
        assert.True(t, comp.Rate.IsZero())
        assert.Empty(t, comp.Countries)
        assert.True(t, comp.AppliesTo("CN"))
    }
}

func TestParseFreeWithCountryList(t *testing.T) {
    parsed := Parse("Free (AU)")
    require.Len(t, parsed.Components, 1)
    comp := parsed.Components[0]
    assert.Equal(t, KindFree, comp.Kind)
    assert.Equal(t, []string{"AU"}, comp.Countries)
    assert.True(t, comp.AppliesTo("AU"))
    assert.True(t, comp.AppliesTo("au"))
    assert.False(t, comp.AppliesTo("CN"))

    parsed = Parse("Free (A+, AU, BH, CA, CL)")
    require.Len(t, parsed.Components, 1)
    comp = parsed.Components[0]
    assert.Equal(t, KindFree, comp.Kind)
    // Program symbols keep their letter part; "A+" admits "A".
    assert.Equal(t, []string{"A", "AU", "BH", "CA", "CL"}, comp.Countries)
}

func TestParseFreeWithUnrecognizedQualifier(t *testing.T) {
    // A qualifier that is not a country list must not be guessed duty-free.
    parsed := Parse("Free (see chapter 99 note)")
    require.Len(t, parsed.Components, 1)
    assert.Equal(t, KindUnparsed, parsed.Components[0].Kind)
}

func TestParseCompound(t *testing.T) {
    parsed := Parse("5% + $0.50/kg")
    require.Len(t, parsed.Components, 2)
    assert.Equal(t, KindPercentage, parsed.Components[0].Kind)
    assert.Equal(t, "5", parsed.Components[0].Rate.String())
    assert.Equal(t, KindPerWeight, parsed.Components[1].Kind)
    assert.Equal(t, "0.5", parsed.Components[1].Rate.String())
    assert.Equal(t, "compound", parsed.DutyType())

    parsed = Parse("2.6% and 7.7¢/kg")
    require.Len(t, parsed.Components, 2)
    assert.Equal(t, KindPercentage, parsed.Components[0].Kind)
    assert.Equal(t, "0.077", parsed.Components[1].Rate.String())

    parsed = Parse("1.5¢/kg plus 4%")
    require.Len(t, parsed.Components, 2)
    assert.Equal(t, KindPerWeight, parsed.Components[0].Kind)
    assert.Equal(t, KindPercentage, parsed.Components[1].Kind)
}

func TestParseUnparsedResidue(t *testing.T) {
    parsed := Parse("See 9903.88.15")
    require.Len(t, parsed.Components, 1)
    assert.Equal(t, KindUnparsed, parsed.Components[0].Kind)
    assert.Equal(t, "See 9903.88.15", parsed.Components[0].RawText)
    assert.True(t, parsed.HasUnparsed())
    assert.Equal(t, "complex", parsed.DutyType())

    // Partial success: the percentage parses, the cross-reference does not.
    parsed = Parse("5% (See 9903.88.15)")
    require.Len(t, parsed.Components, 2)
    assert.Equal(t, KindPercentage, parsed.Components[0].Kind)
    assert.Equal(t, KindUnparsed, parsed.Components[1].Kind)
    assert.Equal(t, "(See 9903.88.15)", parsed.Components[1].RawText)
}

func TestParseBareNumberIsNotGuessed(t *testing.T) {
    // Without % or a /unit suffix the interpretation is ambiguous.
    parsed := Parse("10")
    require.Len(t, parsed.Components, 1)
    assert.Equal(t, KindUnparsed, parsed.Components[0].Kind)
}

func TestParseDeterministic(t *testing.T) {
    for _, raw := range []string{"5.2%", "Free (AU)", "5% + $0.50/kg", "garbage text"} {
        assert.Equal(t, Parse(raw), Parse(raw), "raw=%q", raw)
    }
}

func TestParseCacheReturnsIdenticalResults(t *testing.T) {
    cache, err := NewParseCache(8)
    require.NoError(t, err)
    first := cache.Parse("5% + $0.50/kg")
    second := cache.Parse("5% + $0.50/kg")
    assert.Equal(t, first, second)
    assert.Equal(t, 1, cache.Len())

    // Bounded: old entries are evicted, parses stay correct.
    for _, raw := range []string{"1%", "2%", "3%", "4%", "5%", "6%", "7%", "8%", "9%"} {
        parsed := cache.Parse(raw)
        require.Len(t, parsed.Components, 1)
    }
    assert.LessOrEqual(t, cache.Len(), 8)
}
