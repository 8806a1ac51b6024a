package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"DataHub/internal/model"
)

// DefaultExt is the file extension of persisted series.
const DefaultExt = ".csv"

// FileStore keeps one CSV file per symbol under Root.
type FileStore struct {
	Root   string
	Ext    string
	logger *zap.Logger
}

// NewFileStore creates a FileStore rooted at root, creating the directory if needed.
func NewFileStore(root string, logger *zap.Logger) (*FileStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	fs := &FileStore{Root: root, Ext: DefaultExt, logger: logger}
	if err := fs.ensureRoot(); err != nil {
		return nil, &WriteError{Symbol: "*", Location: root, Err: err}
	}
	return fs, nil
}

func (fs *FileStore) Name() string { return "file" }

// Path returns <Root>/<symbol><Ext>.
func (fs *FileStore) Path(symbol string) string {
	return filepath.Join(fs.Root, symbol+fs.Ext)
}

func (fs *FileStore) Exists(_ context.Context, symbol string) (bool, error) {
	p := fs.Path(symbol)
	if err := CheckSymbol(symbol); err != nil {
		return false, &ReadError{Symbol: symbol, Location: p, Err: err}
	}
	info, err := os.Stat(p)
	if err != nil {
		// A path component that is a regular file means the series cannot exist either.
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
			return false, nil
		}
		return false, &ReadError{Symbol: symbol, Location: p, Err: err}
	}
	return !info.IsDir(), nil
}

func (fs *FileStore) Load(_ context.Context, symbol string) (model.Series, error) {
	p := fs.Path(symbol)
	if err := CheckSymbol(symbol); err != nil {
		return nil, &ReadError{Symbol: symbol, Location: p, Err: err}
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			err = fmt.Errorf("%w: %v", ErrNotFound, err)
		}
		return nil, &ReadError{Symbol: symbol, Location: p, Err: err}
	}
	s, err := DecodeCSV(bytes.NewReader(data))
	if err != nil {
		return nil, &ReadError{Symbol: symbol, Location: p, Err: err}
	}
	return s, nil
}

// Save writes the series to a temporary file and renames it over the target,
// so readers never observe a half-written file.
func (fs *FileStore) Save(_ context.Context, symbol string, series model.Series) error {
	p := fs.Path(symbol)
	if err := CheckSymbol(symbol); err != nil {
		return &WriteError{Symbol: symbol, Location: p, Err: err}
	}
	if err := fs.ensureRoot(); err != nil {
		return &WriteError{Symbol: symbol, Location: p, Err: err}
	}

	var buf bytes.Buffer
	if err := EncodeCSV(&buf, series); err != nil {
		return &WriteError{Symbol: symbol, Location: p, Err: err}
	}

	tmp, err := os.CreateTemp(fs.Root, "."+symbol+"-*.tmp")
	if err != nil {
		return &WriteError{Symbol: symbol, Location: p, Err: err}
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &WriteError{Symbol: symbol, Location: p, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &WriteError{Symbol: symbol, Location: p, Err: err}
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return &WriteError{Symbol: symbol, Location: p, Err: err}
	}
	if err := os.Rename(tmpName, p); err != nil {
		os.Remove(tmpName)
		return &WriteError{Symbol: symbol, Location: p, Err: err}
	}

	fs.logger.Debug("series saved", zap.String("symbol", symbol), zap.String("path", p), zap.Int("rows", len(series)))
	return nil
}

func (fs *FileStore) ensureRoot() error {
	return os.MkdirAll(fs.Root, 0755)
}
