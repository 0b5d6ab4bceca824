package config

import (
    "os"
    "strconv"
    "strings"
)

type Config struct {
    DatabaseURL      string
    Port             string
    LogLevel         string
    Column2Countries []string
    ParseCacheSize   int
}

func Load() Config {
    port := os.Getenv("PORT")
    if port == "" {
        port = "8080"
    }
    cacheSize := 1024
    if v := os.Getenv("PARSE_CACHE_SIZE"); v != "" {
        if n, err := strconv.Atoi(v); err == nil && n > 0 {
            cacheSize = n
        }
    }
    return Config{
        DatabaseURL:      os.Getenv("DATABASE_URL"),
        Port:             port,
        LogLevel:         os.Getenv("LOG_LEVEL"),
        Column2Countries: splitCountries(os.Getenv("COLUMN2_COUNTRIES")),
        ParseCacheSize:   cacheSize,
    }
}

// splitCountries parses a comma-separated country list. Cuba and North Korea
// are the statutory column 2 countries and serve as the default.
func splitCountries(v string) []string {
    if strings.TrimSpace(v) == "" {
        return []string{"CU", "KP"}
    }
    var out []string
    for _, c := range strings.Split(v, ",") {
        c = strings.ToUpper(strings.TrimSpace(c))
        if c != "" {
            out = append(out, c)
        }
    }
    return out
}
