package store

import (
    "context"
    "encoding/csv"
    "errors"
    "fmt"
    "io"
    "os"
    "strings"

    "go.uber.org/zap"
)

// ImportResult tallies one bulk CSV import.
type ImportResult struct {
    Imported       int
    Updated        int
    Errors         int
    TotalProcessed int
}

// csvFields maps the published tariff-table headers onto product fields.
var csvFields = map[string]string{
    "hts number":            "hts_number",
    "description":           "description",
    "unit of measure":       "unit_of_measure",
    "general rate of duty":  "general_duty_rate",
    "special rate of duty":  "special_duty_rate",
    "column 2 rate of duty": "column2_duty_rate",
}

// ImportCSV bulk-loads HTS lines from the six-column tariff table format.
// Duty-rate fields are stored as raw text; rows without an HTS number are
// skipped, row-level failures are counted and logged but do not abort the
// import.
func (s *Store) ImportCSV(ctx context.Context, path string) (ImportResult, error) {
    f, err := os.Open(path)
    if err != nil {
        return ImportResult{}, err
    }
    defer f.Close()
    return s.importCSV(ctx, f)
}

func (s *Store) importCSV(ctx context.Context, r io.Reader) (ImportResult, error) {
    reader := csv.NewReader(r)
    reader.FieldsPerRecord = -1

    header, err := reader.Read()
    if err != nil {
        return ImportResult{}, fmt.Errorf("read csv header: %w", err)
    }
    idx := make(map[string]int, len(csvFields))
    for i, name := range header {
        if field, ok := csvFields[strings.ToLower(strings.TrimSpace(name))]; ok {
            idx[field] = i
        }
    }
    if _, ok := idx["hts_number"]; !ok {
        return ImportResult{}, errors.New(`csv is missing the "HTS Number" column`)
    }

    cell := func(row []string, field string) string {
        i, ok := idx[field]
        if !ok || i >= len(row) {
            return ""
        }
        return strings.TrimSpace(row[i])
    }

    var res ImportResult
    for {
        row, err := reader.Read()
        if err == io.EOF {
            break
        }
        if err != nil {
            res.Errors++
            res.TotalProcessed++
            s.logger.Warn("skipping malformed csv row", zap.Error(err))
            continue
        }
        htsNumber := cell(row, "hts_number")
        if htsNumber == "" {
            continue
        }
        res.TotalProcessed++
        p := Product{
            HTSNumber:     htsNumber,
            Description:   cell(row, "description"),
            UnitOfMeasure: cell(row, "unit_of_measure"),
            GeneralRate:   cell(row, "general_duty_rate"),
            SpecialRate:   cell(row, "special_duty_rate"),
            Column2Rate:   cell(row, "column2_duty_rate"),
        }
        _, inserted, err := s.UpsertProduct(ctx, p)
        if err != nil {
            res.Errors++
            s.logger.Error("import row failed", zap.String("hts_number", htsNumber), zap.Error(err))
            continue
        }
        if inserted {
            res.Imported++
        } else {
            res.Updated++
        }
    }
    s.logger.Info("bulk import completed",
        zap.Int("imported", res.Imported),
        zap.Int("updated", res.Updated),
        zap.Int("errors", res.Errors))
    return res, nil
}
