package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mrz1836/paycart/internal/backend"
	"github.com/mrz1836/paycart/internal/fileutil"
)

const (
	// DefaultRateStaleness matches the backend's hourly publication.
	DefaultRateStaleness = time.Hour

	rateFilePermissions = 0o640
)

// ErrCorruptCache indicates the snapshot file is malformed JSON.
var ErrCorruptCache = errors.New("cache file is corrupted")

// RateSnapshot is the last fetched exchange rate.
type RateSnapshot struct {
	Rate      backend.ExchangeRate `json:"rate"`
	FetchedAt time.Time            `json:"fetched_at"`
}

// Age returns how long ago the snapshot was taken.
func (s *RateSnapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.FetchedAt)
}

// RateFetcher fetches the latest exchange rate.
type RateFetcher func(ctx context.Context) (*backend.ExchangeRate, error)

// RateStore persists the exchange rate between CLI runs.
type RateStore struct {
	path      string
	staleness time.Duration
	now       func() time.Time
}

// NewRateStore creates a store at path. A non-positive staleness uses
// DefaultRateStaleness.
func NewRateStore(path string, staleness time.Duration) *RateStore {
	if staleness <= 0 {
		staleness = DefaultRateStaleness
	}
	return &RateStore{path: path, staleness: staleness, now: time.Now}
}

// Load reads the snapshot. A missing file is ErrCacheMiss; a corrupt file
// is moved aside and reported as ErrCorruptCache.
func (s *RateStore) Load() (*RateSnapshot, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("reading rate snapshot: %w", err)
	}

	var snap RateSnapshot
	if err = json.Unmarshal(data, &snap); err != nil {
		corrupt := fmt.Sprintf("%s.corrupt.%d", s.path, s.now().UTC().UnixNano())
		if renameErr := os.Rename(s.path, corrupt); renameErr != nil {
			return nil, fmt.Errorf("%w: %w (also failed to move file: %w)", ErrCorruptCache, err, renameErr)
		}
		return nil, fmt.Errorf("%w: %w (moved to %s)", ErrCorruptCache, err, corrupt)
	}
	return &snap, nil
}

// Save writes rate stamped with the current time. The snapshot is returned
// even when the write fails.
func (s *RateStore) Save(rate backend.ExchangeRate) (*RateSnapshot, error) {
	snap := &RateSnapshot{Rate: rate, FetchedAt: s.now().UTC()}
	if err := fileutil.WriteJSON(s.path, snap, rateFilePermissions); err != nil {
		return snap, fmt.Errorf("writing rate snapshot: %w", err)
	}
	return snap, nil
}

// IsStale reports whether snap is missing or older than the staleness window.
func (s *RateStore) IsStale(snap *RateSnapshot) bool {
	return snap == nil || snap.Age(s.now()) > s.staleness
}

// Latest returns the stored rate while fresh, otherwise fetches and stores a
// new one. When the fetch fails a stale snapshot is returned together with
// the fetch error so callers can decide whether to use it.
func (s *RateStore) Latest(ctx context.Context, fetch RateFetcher) (*RateSnapshot, error) {
	snap, loadErr := s.Load()
	if loadErr == nil && !s.IsStale(snap) {
		return snap, nil
	}

	rate, err := fetch(ctx)
	if err != nil {
		if loadErr == nil {
			return snap, err
		}
		return nil, err
	}
	return s.Save(*rate)
}
