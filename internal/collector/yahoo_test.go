package collector_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DataHub/internal/collector"
	"DataHub/internal/model"
)

func dateRange(t *testing.T, start, end string) model.DateRange {
	t.Helper()
	s, err := model.ParseDate(start)
	require.NoError(t, err)
	e, err := model.ParseDate(end)
	require.NoError(t, err)
	return model.NewDateRange(s, e)
}

// 2020-01-02 and 2020-01-03 14:30 UTC (09:30 New York), plus a null bar.
const yahooBody = `{"chart":{"result":[{
	"meta":{"gmtoffset":-18000},
	"timestamp":[1577975400,1578061800,1578321000],
	"indicators":{"quote":[{
		"open":[100.5,101.0,null],
		"high":[102.0,101.5,null],
		"low":[99.5,100.0,null],
		"close":[101.5,100.5,null],
		"volume":[1200000,900000,null]
	}]}
}],"error":null}}`

func TestYahooFetcher_FetchRange(t *testing.T) {
	t.Parallel()

	var gotPath, gotInterval, gotP1, gotP2 string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotInterval = r.URL.Query().Get("interval")
		gotP1 = r.URL.Query().Get("period1")
		gotP2 = r.URL.Query().Get("period2")
		w.Write([]byte(yahooBody))
	}))
	defer srv.Close()

	f := collector.NewYahooFetcher("", 5*time.Second, nil)
	f.BaseURL = srv.URL

	bars, err := f.FetchRange(context.Background(), "SPX", dateRange(t, "2020-01-01", "2020-01-05"))
	require.NoError(t, err)

	// Arrange: aliases map to Yahoo tickers and the window is end-exclusive upstream.
	assert.Equal(t, "/v8/finance/chart/^GSPC", gotPath)
	assert.Equal(t, "1d", gotInterval)
	assert.Equal(t, "1577836800", gotP1)
	assert.Equal(t, "1578268800", gotP2)

	require.Len(t, bars, 2)
	assert.Equal(t, "2020-01-02", bars[0].Date.Format(model.DateLayout))
	assert.Equal(t, "2020-01-03", bars[1].Date.Format(model.DateLayout))
	assert.Equal(t, 101.5, bars[0].Close)
	assert.Equal(t, int64(900000), bars[1].Volume)
}

func TestYahooFetcher_UnknownSymbolIsAnError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`))
	}))
	defer srv.Close()

	f := collector.NewYahooFetcher("", 5*time.Second, nil)
	f.BaseURL = srv.URL

	_, err := f.FetchRange(context.Background(), "ZZZZ", dateRange(t, "2020-01-01", "2020-01-05"))
	require.ErrorContains(t, err, "symbol may be delisted")
}

func TestYahooFetcher_RetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(yahooBody))
	}))
	defer srv.Close()

	f := collector.NewYahooFetcher("", 5*time.Second, nil)
	f.BaseURL = srv.URL

	bars, err := f.FetchRange(context.Background(), "QQQ", dateRange(t, "2020-01-01", "2020-01-05"))
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, int32(2), calls.Load())
}

func TestYahooFetcher_ClientErrorsAreNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	f := collector.NewYahooFetcher("", 5*time.Second, nil)
	f.BaseURL = srv.URL

	_, err := f.FetchRange(context.Background(), "QQQ", dateRange(t, "2020-01-01", "2020-01-05"))
	var se *collector.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.Code)
	assert.Equal(t, int32(1), calls.Load())
}

func TestOfflineFetcher(t *testing.T) {
	t.Parallel()

	bars, err := collector.OfflineFetcher{}.FetchRange(context.Background(), "QQQ", dateRange(t, "2020-01-01", "2020-01-05"))
	require.ErrorIs(t, err, collector.ErrOffline)
	require.Empty(t, bars)
}
