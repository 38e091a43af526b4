package review

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/Veraticus/tariff/internal/model"
)

// LaterStore is a local append-only list of reviews deferred for later. Items
// are kept in insertion order and never deduplicated.
type LaterStore struct {
	path string
	mu   sync.Mutex
}

// NewLaterStore stores items in a JSON file at path.
func NewLaterStore(path string) *LaterStore {
	return &LaterStore{path: path}
}

// Path returns the backing file.
func (l *LaterStore) Path() string {
	return l.path
}

// Append adds item to the end of the list.
func (l *LaterStore) Append(item model.ReviewLaterItem) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	items, err := l.load()
	if err != nil {
		return err
	}
	items = append(items, item)
	return l.save(items)
}

// List returns every stored item in insertion order.
func (l *LaterStore) List() ([]model.ReviewLaterItem, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load()
}

func (l *LaterStore) load() ([]model.ReviewLaterItem, error) {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return []model.ReviewLaterItem{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read review-later list: %w", err)
	}
	if len(data) == 0 {
		return []model.ReviewLaterItem{}, nil
	}

	var items []model.ReviewLaterItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to parse review-later list %s: %w", l.path, err)
	}
	return items, nil
}

// save writes through a temporary file so a crash never leaves a torn list.
func (l *LaterStore) save(items []model.ReviewLaterItem) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o750); err != nil {
		return fmt.Errorf("failed to create review-later directory: %w", err)
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode review-later list: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(l.path), ".review_later-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write review-later list: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close review-later list: %w", err)
	}
	if err := os.Rename(tmp.Name(), l.path); err != nil {
		return fmt.Errorf("failed to replace review-later list: %w", err)
	}
	return nil
}
