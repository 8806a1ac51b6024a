package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DataHub/internal/model"
)

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := model.ParseDate(s)
	require.NoError(t, err)
	return d
}

func sampleSeries(t *testing.T, start string, n int) model.Series {
	t.Helper()
	d := date(t, start)
	out := make(model.Series, n)
	for i := range out {
		p := 100 + float64(i)/3
		out[i] = model.Bar{
			Date:   d.AddDate(0, 0, i),
			Open:   p,
			High:   p * 1.0123456789,
			Low:    p * 0.9876543211,
			Close:  p + 0.1,
			Volume: int64(1_000_000 + i),
		}
	}
	return out
}

func TestFileStore_SaveLoadRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fs, err := NewFileStore(filepath.Join(t.TempDir(), "raw"), nil)
	require.NoError(t, err)

	ok, err := fs.Exists(ctx, "SPY")
	require.NoError(t, err)
	require.False(t, ok)

	in := sampleSeries(t, "2020-01-01", 10)
	require.NoError(t, fs.Save(ctx, "SPY", in))

	ok, err = fs.Exists(ctx, "SPY")
	require.NoError(t, err)
	require.True(t, ok)
	require.FileExists(t, filepath.Join(fs.Root, "SPY.csv"))

	out, err := fs.Load(ctx, "SPY")
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestFileStore_SaveOverwrites(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fs, err := NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)

	require.NoError(t, fs.Save(ctx, "QQQ", sampleSeries(t, "2020-01-01", 10)))
	require.NoError(t, fs.Save(ctx, "QQQ", sampleSeries(t, "2021-01-01", 3)))

	out, err := fs.Load(ctx, "QQQ")
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, date(t, "2021-01-01"), out.First().Date)

	// No temp files left behind.
	entries, err := os.ReadDir(fs.Root)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestFileStore_FileLayout(t *testing.T) {
	t.Parallel()

	fs, err := NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)
	bar := model.Bar{Date: date(t, "2020-01-01"), Open: 100, High: 101.5, Low: 98.25, Close: 100.125, Volume: 1_000_000}
	require.NoError(t, fs.Save(context.Background(), "IBM", model.Series{bar}))

	data, err := os.ReadFile(fs.Path("IBM"))
	require.NoError(t, err)
	assert.Equal(t,
		"Date,Open,High,Low,Close,Volume\n2020-01-01,100,101.5,98.25,100.125,1000000\n",
		string(data))
}

func TestFileStore_LoadErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fs, err := NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)

	_, err = fs.Load(ctx, "NOPE")
	var rerr *ReadError
	require.ErrorAs(t, err, &rerr)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, os.WriteFile(fs.Path("BAD"), []byte("Date,Open\n2020-01-01,1\n"), 0644))
	_, err = fs.Load(ctx, "BAD")
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "BAD", rerr.Symbol)

	require.NoError(t, os.WriteFile(fs.Path("GARBLED"),
		[]byte("Date,Open,High,Low,Close,Volume\nyesterday,1,1,1,1,1\n"), 0644))
	_, err = fs.Load(ctx, "GARBLED")
	require.ErrorAs(t, err, &rerr)
}

func TestFileStore_WriteErrorWhenRootIsAFile(t *testing.T) {
	t.Parallel()

	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	_, err := NewFileStore(blocker, nil)
	var werr *WriteError
	require.ErrorAs(t, err, &werr)

	fs := &FileStore{Root: filepath.Join(blocker, "nested"), Ext: DefaultExt}
	err = fs.Save(context.Background(), "QQQ", sampleSeries(t, "2020-01-01", 2))
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, "QQQ", werr.Symbol)
	assert.Error(t, errors.Unwrap(err))
}

func TestFileStore_SaveRecreatesMissingRoot(t *testing.T) {
	t.Parallel()

	fs, err := NewFileStore(filepath.Join(t.TempDir(), "data"), nil)
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(fs.Root))

	require.NoError(t, fs.Save(context.Background(), "QQQ", sampleSeries(t, "2020-01-01", 2)))
	require.FileExists(t, fs.Path("QQQ"))
}

func TestFilterRange(t *testing.T) {
	t.Parallel()

	s := sampleSeries(t, "2020-01-01", 10)

	got := FilterRange(s, model.NewDateRange(date(t, "2020-01-03"), date(t, "2020-01-05")))
	require.Len(t, got, 3)
	assert.Equal(t, date(t, "2020-01-03"), got.First().Date)
	assert.Equal(t, date(t, "2020-01-05"), got.Last().Date)

	none := FilterRange(s, model.NewDateRange(date(t, "2021-01-01"), date(t, "2021-01-05")))
	require.NotNil(t, none)
	require.Empty(t, none)

	// Mutating the result leaves the input alone.
	got[0].Close = -1
	assert.NotEqual(t, -1.0, s[2].Close)
}

func TestLocker_SerializesPerSymbol(t *testing.T) {
	t.Parallel()

	l := NewLocker()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		active  int
		maxSeen int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.Lock("QQQ")
			defer unlock()

			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Equal(t, 0, l.Len())
}

func TestLocker_DifferentSymbolsDoNotBlock(t *testing.T) {
	t.Parallel()

	l := NewLocker()
	unlockA := l.Lock("A")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := l.Lock("B")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on B blocked behind A")
	}
}

func TestCheckSymbol(t *testing.T) {
	for _, ok := range []string{"QQQ", "BRK.B", "^GSPC", "ES=F"} {
		assert.NoError(t, CheckSymbol(ok), ok)
	}
	for _, bad := range []string{"", "../QQQ", "BRK/B", `a\b`, "..", "A..B", "nul\x00"} {
		assert.ErrorIs(t, CheckSymbol(bad), ErrInvalidSymbol, bad)
	}
}

func TestFileStore_RejectsSymbolsOutsideRoot(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fs, err := NewFileStore(filepath.Join(dir, "raw"), nil)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ESCAPE.csv"), []byte("Date,Open,High,Low,Close,Volume\n"), 0644))

	_, err = fs.Exists(ctx, "../ESCAPE")
	var rerr *ReadError
	require.ErrorAs(t, err, &rerr)
	assert.ErrorIs(t, err, ErrInvalidSymbol)

	_, err = fs.Load(ctx, "../ESCAPE")
	require.ErrorIs(t, err, ErrInvalidSymbol)

	err = fs.Save(ctx, "BRK/B", sampleSeries(t, "2020-01-01", 1))
	var werr *WriteError
	require.ErrorAs(t, err, &werr)
	assert.ErrorIs(t, err, ErrInvalidSymbol)
}

func TestFileStore_EmptySeriesStillExists(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)

	require.NoError(t, fs.Save(ctx, "EMPTY", model.Series{}))

	ok, err := fs.Exists(ctx, "EMPTY")
	require.NoError(t, err)
	assert.True(t, ok)
	s, err := fs.Load(ctx, "EMPTY")
	require.NoError(t, err)
	assert.Empty(t, s)
}
