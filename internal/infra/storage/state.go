package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"autobay/internal/domain"
)

// FileStore persists the order book as a JSON file.
// Writes go to a temp file first and are renamed into place, so a failed
// write leaves the previous state intact.
type FileStore struct {
	mu     sync.Mutex
	path   string
	logger *slog.Logger
}

// NewFileStore creates a store writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{
		path:   path,
		logger: slog.Default().With("module", "state_file"),
	}
}

// Load implements domain.StateStore. Missing or malformed files yield the default book.
func (s *FileStore) Load(ctx context.Context) *domain.OrderBook {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Info("No saved state, starting empty", slog.String("path", s.path))
		} else {
			s.logger.Error("Failed to read state, starting empty", slog.String("path", s.path), slog.Any("error", err))
		}
		return domain.NewOrderBook()
	}

	book, err := decodeBook(data)
	if err != nil {
		s.logger.Error("Malformed state file, starting empty", slog.String("path", s.path), slog.Any("error", err))
		return domain.NewOrderBook()
	}
	return book
}

// Save implements domain.StateStore.
func (s *FileStore) Save(ctx context.Context, book *domain.OrderBook) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := encodeBook(book)
	if err != nil {
		return false, fmt.Errorf("encode state: %w", err)
	}

	current, readErr := os.ReadFile(s.path)
	if readErr == nil && bytes.Equal(current, data) {
		return false, nil
	}

	// Never replace stored state with an empty book unless the stored state is empty too.
	if book.IsZero() && readErr == nil {
		if stored, err := decodeBook(current); err == nil && !stored.IsZero() {
			s.logger.Warn("Refusing to overwrite state with an empty snapshot", slog.String("path", s.path))
			return false, nil
		}
	}

	if err := writeAtomic(s.path, data); err != nil {
		s.logger.Error("Failed to write state", slog.String("path", s.path), slog.Any("error", err))
		return false, err
	}
	return true, nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
