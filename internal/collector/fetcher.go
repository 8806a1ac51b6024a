package collector

import (
	"context"

	"DataHub/internal/model"
)

//go:generate mockgen -package=mocks -destination=mocks/mock_fetcher.go -source=fetcher.go Fetcher

// Fetcher retrieves real daily bars for a symbol over an inclusive date range.
// An empty series means the provider has no data for the range.
type Fetcher interface {
	FetchRange(ctx context.Context, symbol string, r model.DateRange) (model.Series, error)
	Name() string
}
