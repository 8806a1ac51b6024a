package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"DataHub/internal/model"
)

var csvHeader = []string{"Date", "Open", "High", "Low", "Close", "Volume"}

// EncodeCSV writes s with an explicit Date column followed by Open, High, Low, Close and Volume.
func EncodeCSV(w io.Writer, s model.Series) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, b := range s {
		rec := []string{
			b.Date.Format(model.DateLayout),
			formatPrice(b.Open),
			formatPrice(b.High),
			formatPrice(b.Low),
			formatPrice(b.Close),
			strconv.FormatInt(b.Volume, 10),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// DecodeCSV parses a series written by EncodeCSV. Rows are returned in file order.
// Columns are located by header name, so files with reordered columns still load.
func DecodeCSV(r io.Reader) (model.Series, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("missing header")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}
	for _, col := range csvHeader {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}

	out := make(model.Series, 0)
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(rec) < len(header) {
			return nil, fmt.Errorf("line %d: expected %d fields, got %d", line, len(header), len(rec))
		}
		bar, err := parseRecord(rec, idx)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, bar)
	}
	return out, nil
}

func parseRecord(rec []string, idx map[string]int) (model.Bar, error) {
	var (
		b   model.Bar
		err error
	)
	if b.Date, err = model.ParseDate(rec[idx["Date"]]); err != nil {
		return b, err
	}
	fields := []struct {
		name string
		dst  *float64
	}{
		{"Open", &b.Open}, {"High", &b.High}, {"Low", &b.Low}, {"Close", &b.Close},
	}
	for _, f := range fields {
		if *f.dst, err = strconv.ParseFloat(rec[idx[f.name]], 64); err != nil {
			return b, fmt.Errorf("parse %s: %w", f.name, err)
		}
	}
	// Some exporters write volume as a float ("1.2e+06"); accept both.
	v := rec[idx["Volume"]]
	if b.Volume, err = strconv.ParseInt(v, 10, 64); err != nil {
		fv, ferr := strconv.ParseFloat(v, 64)
		if ferr != nil {
			return b, fmt.Errorf("parse Volume: %w", err)
		}
		if math.IsNaN(fv) || fv < 0 || fv >= maxVolumeFloat {
			return b, fmt.Errorf("parse Volume: %q out of range", v)
		}
		b.Volume = int64(fv)
	}
	if b.Volume < 0 {
		return b, fmt.Errorf("parse Volume: negative volume %d", b.Volume)
	}
	return b, nil
}

// maxVolumeFloat is 2^63, the first float64 that no longer fits an int64.
const maxVolumeFloat = float64(1 << 63)

func formatPrice(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
