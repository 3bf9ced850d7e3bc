// Package utils holds CSV import and export of exchange history.
package utils

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"eveBot/internal/domain"
)

var (
	tradeHeader = []string{"id", "time", "side", "price", "size"}
	fillHeader  = []string{"id", "order_id", "time", "side", "price", "size", "total_price", "fee"}
)

// ErrBadRecord is returned for a CSV row that can not be parsed.
var ErrBadRecord = errors.New("malformed csv record")

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

// WriteTradesToCSV writes public trades to filename, creating its directory.
func WriteTradesToCSV(trades []domain.HistoricalTrade, filename string) error {
	return writeFile(filename, func(w io.Writer) error { return WriteTrades(w, trades) })
}

// WriteFillsToCSV writes our executions to filename, creating its directory.
func WriteFillsToCSV(fills []domain.HistoricalFill, filename string) error {
	return writeFile(filename, func(w io.Writer) error { return WriteFills(w, fills) })
}

func writeFile(filename string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := write(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// WriteTrades writes trades with a header row.
func WriteTrades(w io.Writer, trades []domain.HistoricalTrade) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(tradeHeader); err != nil {
		return err
	}
	for _, t := range trades {
		if err := writer.Write([]string{
			strconv.FormatInt(t.ID, 10),
			time.Unix(t.Time, 0).UTC().Format(time.RFC3339),
			string(t.Side),
			formatFloat(t.Price),
			formatFloat(t.Size),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteFills writes fills with a header row.
func WriteFills(w io.Writer, fills []domain.HistoricalFill) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(fillHeader); err != nil {
		return err
	}
	for _, f := range fills {
		if err := writer.Write([]string{
			strconv.FormatInt(f.ID, 10),
			f.OrderID,
			time.Unix(f.CreatedAt, 0).UTC().Format(time.RFC3339),
			string(f.Side),
			formatFloat(f.Price),
			formatFloat(f.Size),
			formatFloat(f.TotalPrice),
			formatFloat(f.Fee),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadFills parses the format written by WriteFills.
func ReadFills(r io.Reader) ([]domain.HistoricalFill, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(fillHeader)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRecord, err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	fills := make([]domain.HistoricalFill, 0, len(records)-1)
	for i, rec := range records[1:] {
		line := i + 2
		f := domain.HistoricalFill{OrderID: rec[1], Side: domain.OrderSide(rec[3])}
		if f.Side != domain.Buy && f.Side != domain.Sell {
			return nil, fmt.Errorf("%w: line %d: side %q", ErrBadRecord, line, rec[3])
		}
		if f.ID, err = strconv.ParseInt(rec[0], 10, 64); err != nil {
			return nil, fmt.Errorf("%w: line %d: id: %v", ErrBadRecord, line, err)
		}
		at, err := time.Parse(time.RFC3339, rec[2])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: time: %v", ErrBadRecord, line, err)
		}
		f.CreatedAt = at.Unix()
		for _, field := range []struct {
			name string
			in   string
			out  *float64
		}{
			{"price", rec[4], &f.Price},
			{"size", rec[5], &f.Size},
			{"total_price", rec[6], &f.TotalPrice},
			{"fee", rec[7], &f.Fee},
		} {
			if *field.out, err = strconv.ParseFloat(field.in, 64); err != nil {
				return nil, fmt.Errorf("%w: line %d: %s: %v", ErrBadRecord, line, field.name, err)
			}
		}
		fills = append(fills, f)
	}
	return fills, nil
}

// ReadFillsFromCSV reads fills from filename.
func ReadFillsFromCSV(filename string) ([]domain.HistoricalFill, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadFills(file)
}
