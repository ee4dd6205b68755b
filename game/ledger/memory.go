package ledger

import (
	"context"
	"errors"
	"sync"

	"github.com/wricardo/mcp-training/solarfarm/game/service"
)

var (
	ErrNotInitialized = errors.New("ledger is not initialized")
	ErrInvalidSummary = errors.New("episode summary requires an id")
)

// DefaultListLimit applies when ListEpisodes gets a non-positive limit
const DefaultListLimit = 50

// MaxListLimit caps ListEpisodes
const MaxListLimit = 1000

// MemoryLedger keeps summaries in a slice. It is used when no database path
// is configured and in tests.
type MemoryLedger struct {
	mu       sync.RWMutex
	episodes []*service.EpisodeSummary
}

// NewMemoryLedger returns an empty in-process ledger
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{}
}

// RecordEpisode stores a copy of summary
func (l *MemoryLedger) RecordEpisode(ctx context.Context, summary *service.EpisodeSummary) error {
	if summary == nil || summary.ID == "" {
		return ErrInvalidSummary
	}
	cp := *summary

	l.mu.Lock()
	defer l.mu.Unlock()
	l.episodes = append(l.episodes, &cp)
	return nil
}

// ListEpisodes returns up to limit summaries, newest first
func (l *MemoryLedger) ListEpisodes(ctx context.Context, limit int) ([]*service.EpisodeSummary, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	limit = normalizeLimit(limit)
	out := []*service.EpisodeSummary{}
	for i := len(l.episodes) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *l.episodes[i]
		out = append(out, &cp)
	}
	return out, nil
}

// Close is a no-op
func (l *MemoryLedger) Close() error { return nil }

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
