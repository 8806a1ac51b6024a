package collector

import (
	"context"
	"fmt"
	"time"

	polygon "github.com/polygon-io/client-go/rest"
	"github.com/polygon-io/client-go/rest/models"
	"go.uber.org/zap"

	"DataHub/internal/model"
)

// PolygonFetcher implements Fetcher with Polygon.io daily aggregates.
type PolygonFetcher struct {
	client *polygon.Client
	logger *zap.Logger
}

// NewPolygonFetcher creates a fetcher authenticated with apiKey.
func NewPolygonFetcher(apiKey string, logger *zap.Logger) *PolygonFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PolygonFetcher{client: polygon.New(apiKey), logger: logger}
}

func (f *PolygonFetcher) Name() string { return "polygon" }

func (f *PolygonFetcher) FetchRange(ctx context.Context, symbol string, r model.DateRange) (model.Series, error) {
	params := models.ListAggsParams{
		Ticker:     symbol,
		Multiplier: 1,
		Timespan:   models.Day,
		From:       models.Millis(r.Start),
		To:         models.Millis(r.End),
	}.WithOrder(models.Asc).WithAdjusted(true).WithLimit(50000)

	iter := f.client.ListAggs(ctx, params)
	bars := make(model.Series, 0, r.Days())
	for iter.Next() {
		agg := iter.Item()
		// Aggregate timestamps mark the start of the window in Eastern time.
		day := model.Day(time.Time(agg.Timestamp).In(eastern))
		if !r.Contains(day) {
			continue
		}
		bars = append(bars, model.Bar{
			Date:   day,
			Open:   agg.Open,
			High:   agg.High,
			Low:    agg.Low,
			Close:  agg.Close,
			Volume: int64(agg.Volume),
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("polygon aggs %s: %w", symbol, err)
	}
	f.logger.Debug("polygon aggregates fetched", zap.String("symbol", symbol), zap.Int("rows", len(bars)))
	return bars, nil
}

var eastern = func() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.UTC
	}
	return loc
}()
