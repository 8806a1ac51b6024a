// Package synthetic produces plausible daily bar series when no real data can be obtained.
package synthetic

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"DataHub/internal/model"
)

const (
	minInitialPrice = 50.0
	maxInitialPrice = 200.0

	// Daily drift of the reference price; the upper bound is larger so the walk trends up.
	minStep = -0.005
	maxStep = 0.01

	minOpenCloseNoise = -0.002
	maxOpenCloseNoise = 0.002

	minWick = 0.001
	maxWick = 0.005

	minVolume = 100_000
	maxVolume = 10_000_000
)

// Generator draws synthetic series from an injected random source.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a Generator that draws from src.
func New(src rand.Source) *Generator {
	return &Generator{rng: rand.New(src)}
}

// NewSeeded creates a reproducible Generator. A zero seed picks a random one.
func NewSeeded(seed uint64) *Generator {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Generate returns one bar per calendar day of r, weekends included.
// A range whose start is after its end yields an empty series.
func (g *Generator) Generate(r model.DateRange) model.Series {
	dates := Dates(model.NewDateRange(r.Start, r.End))
	n := len(dates)
	if n == 0 {
		return model.Series{}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	ref := make([]float64, n)
	ref[0] = g.uniform(minInitialPrice, maxInitialPrice)
	for i := 1; i < n; i++ {
		ref[i] = ref[i-1] * (1 + g.uniform(minStep, maxStep))
	}

	out := make(model.Series, n)
	for i := range out {
		open := ref[i] * (1 + g.uniform(minOpenCloseNoise, maxOpenCloseNoise))
		cls := ref[i] * (1 + g.uniform(minOpenCloseNoise, maxOpenCloseNoise))
		high := math.Max(open, cls) * (1 + g.uniform(minWick, maxWick))
		low := math.Min(open, cls) * (1 - g.uniform(minWick, maxWick))

		bar := model.Bar{
			Date:   dates[i],
			Open:   open,
			High:   high,
			Low:    low,
			Close:  cls,
			Volume: minVolume + g.rng.Int64N(maxVolume-minVolume),
		}
		// The wick draws are independent of the open/close noise, so ordering
		// is only guaranteed after the clamp.
		out[i] = bar.Clamp()
	}
	return out
}

func (g *Generator) uniform(lo, hi float64) float64 {
	return lo + g.rng.Float64()*(hi-lo)
}

// Dates returns the calendar days of r in ascending order.
func Dates(r model.DateRange) []time.Time {
	out := make([]time.Time, 0, r.Days())
	for d := r.Start; !d.After(r.End); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}
