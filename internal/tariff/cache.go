package tariff

import (
    lru "github.com/hashicorp/golang-lru/v2"
)

// ParseCache memoizes Parse results keyed by the raw rate string. Parsing is
// pure, so a racing double-compute writes identical values and last-writer-
// wins is harmless. The cache is size-bounded and owned by whoever
// constructs the calculator; it is never package-global state.
type ParseCache struct {
    lru *lru.Cache[string, ParsedDutyRate]
}

// NewParseCache builds a bounded cache. size must be positive.
func NewParseCache(size int) (*ParseCache, error) {
    c, err := lru.New[string, ParsedDutyRate](size)
    if err != nil {
        return nil, err
    }
    return &ParseCache{lru: c}, nil
}

// Parse returns the cached parse for raw, computing and storing it on miss.
func (c *ParseCache) Parse(raw string) ParsedDutyRate {
    if v, ok := c.lru.Get(raw); ok {
        return v
    }
    parsed := Parse(raw)
    c.lru.Add(raw, parsed)
    return parsed
}

// Len reports the number of cached parses.
func (c *ParseCache) Len() int { return c.lru.Len() }
