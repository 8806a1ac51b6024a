package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"DataHub/internal/model"
)

// RESTFetcher implements Fetcher against a generic bars REST API:
//
//	GET {BaseURL}/api/v1/bars/daily?symbol=QQQ&from=2020-01-01&to=2020-01-05
//
// answering with a JSON array of restBar.
type RESTFetcher struct {
	BaseURL    string
	APIKey     string
	Client     *http.Client
	MaxRetries int
	logger     *zap.Logger
}

// NewRESTFetcher creates a new fetcher with optional proxy support.
func NewRESTFetcher(baseURL, apiKey, proxyURL string, timeout time.Duration, logger *zap.Logger) *RESTFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RESTFetcher{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Client: &http.Client{
			Timeout:   timeout,
			Transport: proxyTransport(proxyURL),
		},
		MaxRetries: 3,
		logger:     logger,
	}
}

func (f *RESTFetcher) Name() string { return "rest" }

// restBar is the expected JSON shape from the bars API.
type restBar struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

func (f *RESTFetcher) FetchRange(ctx context.Context, symbol string, r model.DateRange) (model.Series, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("from", r.Start.Format(model.DateLayout))
	q.Set("to", r.End.Format(model.DateLayout))
	endpoint := f.BaseURL + "/api/v1/bars/daily?" + q.Encode()

	var raw []restBar
	err := withRetry(ctx, f.logger, f.Name(), f.MaxRetries, func() error {
		var err error
		raw, err = f.fetchBars(ctx, endpoint)
		return err
	})
	if err != nil {
		return nil, err
	}

	bars := make(model.Series, 0, len(raw))
	for _, b := range raw {
		day := model.Day(time.Unix(b.Timestamp, 0).UTC())
		if !r.Contains(day) {
			continue
		}
		bars = append(bars, model.Bar{
			Date:   day,
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: int64(b.Volume),
		})
	}
	return bars, nil
}

func (f *RESTFetcher) fetchBars(ctx context.Context, endpoint string) ([]restBar, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if f.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.APIKey)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch bars: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Provider: "rest", Code: resp.StatusCode, Body: string(body)}
	}
	var bars []restBar
	if err := json.NewDecoder(resp.Body).Decode(&bars); err != nil {
		return nil, fmt.Errorf("decode bars: %w", err)
	}
	return bars, nil
}
