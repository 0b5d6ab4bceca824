package tariff

import (
    "regexp"
    "strings"

    "github.com/shopspring/decimal"
)

// Parse interprets raw statutory duty-rate text into an ordered component
// sequence. It never fails: residue it cannot interpret degrades to
// KindUnparsed components carried alongside whatever did parse, because a
// partial result with a flag is more useful to an analyst than an error.
// Parsing is pure and deterministic, safe to cache keyed by the raw string.
func Parse(raw string) ParsedDutyRate {
    trimmed := strings.TrimSpace(raw)
    lower := strings.ToLower(trimmed)

    // Blank and zero rates are duty-free in the tariff tables.
    if trimmed == "" || lower == "free" || lower == "0" || lower == "0%" {
        return ParsedDutyRate{Raw: raw, Components: []DutyComponent{{
            Kind:    KindFree,
            Rate:    decimal.Zero,
            RawText: trimmed,
        }}}
    }

    var comps []DutyComponent
    for _, part := range splitComponents(trimmed) {
        comps = append(comps, parseComponent(part)...)
    }
    if len(comps) == 0 {
        comps = []DutyComponent{{Kind: KindUnparsed, RawText: trimmed}}
    }
    return ParsedDutyRate{Raw: raw, Components: comps}
}

// splitComponents cuts a compound duty string on "+", "&", " and " or
// " plus " joiners. Separators inside parentheses never split, so country
// lists like "Free (A+, AU)" stay intact.
func splitComponents(s string) []string {
    var parts []string
    var cur strings.Builder
    depth := 0
    i := 0
    for i < len(s) {
        c := s[i]
        switch {
        case c == '(':
            depth++
        case c == ')':
            if depth > 0 {
                depth--
            }
        case depth == 0 && (c == '+' || c == '&'):
            parts = append(parts, cur.String())
            cur.Reset()
            i++
            continue
        case depth == 0 && c == ' ':
            rest := strings.ToLower(s[i:])
            if strings.HasPrefix(rest, " and ") {
                parts = append(parts, cur.String())
                cur.Reset()
                i += 5
                continue
            }
            if strings.HasPrefix(rest, " plus ") {
                parts = append(parts, cur.String())
                cur.Reset()
                i += 6
                continue
            }
        }
        cur.WriteByte(c)
        i++
    }
    parts = append(parts, cur.String())

    out := parts[:0]
    for _, p := range parts {
        if strings.TrimSpace(p) != "" {
            out = append(out, strings.TrimSpace(p))
        }
    }
    return out
}

var (
    freeRe       = regexp.MustCompile(`^(?i)free\s*(?:\((.*)\))?$`)
    countryTokRe = regexp.MustCompile(`^[A-Z]{1,3}[+*]?$`)
    percentRe    = regexp.MustCompile(`^(\d+(?:\.\d+)?)%$`)
    specificRe   = regexp.MustCompile(`^(\$?)(\d+(?:\.\d+)?)(¢?)/([a-z]+)$`)
)

// massUnits denote weight-based specific duties; everything else recognized
// after a slash counts per unit of quantity.
var massUnits = map[string]bool{
    "kg": true, "kilo": true, "kilogram": true, "kilograms": true,
}

// parseComponent interprets one split part. A trailing parenthetical that is
// not a Free country list (chapter cross-references, conditional clauses) is
// returned as a separate KindUnparsed component next to whatever the rest of
// the part yielded.
func parseComponent(part string) []DutyComponent {
    if m := freeRe.FindStringSubmatch(part); m != nil {
        if strings.TrimSpace(m[1]) == "" {
            return []DutyComponent{{Kind: KindFree, Rate: decimal.Zero, RawText: part}}
        }
        if codes, ok := parseCountryList(m[1]); ok {
            return []DutyComponent{{Kind: KindFree, Rate: decimal.Zero, Countries: codes, RawText: part}}
        }
        // Free with a qualifier we don't understand: do not guess duty-free.
        return []DutyComponent{{Kind: KindUnparsed, RawText: part}}
    }

    core, residue := detachParenthetical(part)
    var comps []DutyComponent
    if core != "" {
        if c, ok := parseSimple(core); ok {
            comps = append(comps, c)
        } else {
            comps = append(comps, DutyComponent{Kind: KindUnparsed, RawText: core})
        }
    }
    if residue != "" {
        comps = append(comps, DutyComponent{Kind: KindUnparsed, RawText: residue})
    }
    return comps
}

// parseSimple matches a single percentage or specific-rate term.
func parseSimple(core string) (DutyComponent, bool) {
    n := normalizeTerm(core)

    if m := percentRe.FindStringSubmatch(n); m != nil {
        rate, err := decimal.NewFromString(m[1])
        if err != nil {
            return DutyComponent{}, false
        }
        return DutyComponent{Kind: KindPercentage, Rate: rate, RawText: core}, true
    }

    if m := specificRe.FindStringSubmatch(n); m != nil {
        rate, err := decimal.NewFromString(m[2])
        if err != nil {
            return DutyComponent{}, false
        }
        // Cents-denominated rates normalize to dollars.
        if m[3] == "¢" {
            rate = rate.Div(decimal.NewFromInt(100))
        }
        unit := canonicalUnit(m[4])
        kind := KindPerUnit
        if massUnits[m[4]] {
            kind = KindPerWeight
            unit = "kg"
        }
        return DutyComponent{Kind: kind, Rate: rate, Unit: unit, RawText: core}, true
    }

    return DutyComponent{}, false
}

// normalizeTerm compacts a term for matching: whitespace removed, thousands
// separators dropped, "cents"/"cent" folded to the cents sign, lowercased.
func normalizeTerm(s string) string {
    s = strings.ToLower(strings.TrimSpace(s))
    s = strings.TrimSuffix(s, ".")
    s = strings.ReplaceAll(s, "cents", "¢")
    s = strings.ReplaceAll(s, "cent", "¢")
    s = strings.ReplaceAll(s, ",", "")
    s = strings.Join(strings.Fields(s), "")
    return s
}

// canonicalUnit folds unit-token spelling variants.
func canonicalUnit(u string) string {
    switch u {
    case "unit", "units", "each", "piece", "pieces", "no":
        return "unit"
    case "liter", "liters", "litre", "litres", "l":
        return "liter"
    case "doz", "dozen":
        return "dozen"
    case "head":
        return "head"
    case "pr", "pair", "pairs":
        return "pair"
    }
    return u
}

// parseCountryList splits a parenthesized eligibility list into codes.
// Tokens are country codes or trade-program symbols ("A+", "CA", "AU"); a
// token that does not fit that shape means the parenthetical is something
// else entirely and the caller must not treat the term as a country list.
func parseCountryList(inner string) ([]string, bool) {
    var codes []string
    for _, tok := range strings.Split(inner, ",") {
        tok = strings.ToUpper(strings.TrimSpace(tok))
        if tok == "" {
            continue
        }
        if !countryTokRe.MatchString(tok) {
            return nil, false
        }
        codes = append(codes, strings.TrimRight(tok, "+*"))
    }
    if len(codes) == 0 {
        return nil, false
    }
    return codes, true
}

// detachParenthetical splits a trailing "(...)" qualifier off a term.
func detachParenthetical(part string) (core, residue string) {
    part = strings.TrimSpace(part)
    if !strings.HasSuffix(part, ")") {
        return part, ""
    }
    depth := 0
    for i := len(part) - 1; i >= 0; i-- {
        switch part[i] {
        case ')':
            depth++
        case '(':
            depth--
            if depth == 0 {
                return strings.TrimSpace(part[:i]), strings.TrimSpace(part[i:])
            }
        }
    }
    return part, ""
}
