package collector

import (
	"context"
	"errors"

	"DataHub/internal/model"
)

// ErrOffline is returned by OfflineFetcher for every request.
var ErrOffline = errors.New("no data provider configured")

// OfflineFetcher never returns data, which routes every request to the synthetic generator.
type OfflineFetcher struct{}

func (OfflineFetcher) Name() string { return "none" }

func (OfflineFetcher) FetchRange(context.Context, string, model.DateRange) (model.Series, error) {
	return nil, ErrOffline
}
