package model

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Bar represents one trading day's OHLCV record.
type Bar struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// Valid reports whether the bar satisfies low <= min(open, close) <= max(open, close) <= high.
func (b Bar) Valid() bool {
	return b.Low <= math.Min(b.Open, b.Close) && math.Max(b.Open, b.Close) <= b.High
}

// Clamp widens High and Low so that they bracket Open and Close.
func (b Bar) Clamp() Bar {
	b.High = math.Max(b.High, math.Max(b.Open, b.Close))
	b.Low = math.Min(b.Low, math.Min(b.Open, b.Close))
	return b
}

// Series holds the daily bars of one symbol, strictly increasing by date.
type Series []Bar

// First returns the earliest bar. It panics on an empty series.
func (s Series) First() Bar { return s[0] }

// Last returns the latest bar. It panics on an empty series.
func (s Series) Last() Bar { return s[len(s)-1] }

// Validate returns an error describing the first ordering or OHLC violation.
func (s Series) Validate() error {
	for i, b := range s {
		if !b.Valid() {
			return fmt.Errorf("bar %s: ohlc out of order (o=%g h=%g l=%g c=%g)",
				b.Date.Format(DateLayout), b.Open, b.High, b.Low, b.Close)
		}
		if b.Volume < 0 {
			return fmt.Errorf("bar %s: negative volume %d", b.Date.Format(DateLayout), b.Volume)
		}
		if i > 0 && !s[i-1].Date.Before(b.Date) {
			return fmt.Errorf("bar %s: not after %s", b.Date.Format(DateLayout), s[i-1].Date.Format(DateLayout))
		}
	}
	return nil
}

// Normalize turns provider output into a well-formed series: dates are
// truncated to calendar days, bars are sorted, duplicate dates keep the last
// bar seen, bars without a positive price are dropped and OHLC is clamped.
func Normalize(in Series) Series {
	byDay := make(map[time.Time]Bar, len(in))
	for _, b := range in {
		if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
			continue
		}
		b.Date = Day(b.Date)
		if b.Volume < 0 {
			b.Volume = 0
		}
		byDay[b.Date] = b.Clamp()
	}
	out := make(Series, 0, len(byDay))
	for _, b := range byDay {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}
