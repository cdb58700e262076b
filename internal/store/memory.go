package store

import (
	"context"
	"slices"
	"sync"

	"github.com/DoyleJ11/scoreboard-relay/internal/engine"
)

// MemoryRepository keeps matches in process memory. Records are copied on
// the way in and out so callers never share event log storage with it.
type MemoryRepository struct {
	mu      sync.RWMutex
	matches map[string]engine.Match
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{matches: make(map[string]engine.Match)}
}

func (r *MemoryRepository) Get(_ context.Context, id string) (engine.Match, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.matches[id]
	if !ok {
		return engine.Match{}, engine.ErrMatchNotFound
	}
	return m.Clone(), nil
}

func (r *MemoryRepository) Create(_ context.Context, m engine.Match) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.matches[m.MatchID]; ok {
		return ErrDuplicateMatch
	}
	r.matches[m.MatchID] = m.Clone()
	return nil
}

func (r *MemoryRepository) Save(_ context.Context, m engine.Match) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.matches[m.MatchID]; !ok {
		return engine.ErrMatchNotFound
	}
	r.matches[m.MatchID] = m.Clone()
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.matches[id]; !ok {
		return engine.ErrMatchNotFound
	}
	delete(r.matches, id)
	return nil
}

func (r *MemoryRepository) List(_ context.Context, opts ListOptions) ([]engine.Match, error) {
	r.mu.RLock()
	out := make([]engine.Match, 0, len(r.matches))
	for _, m := range r.matches {
		if opts.LiveOnly && !m.IsLive {
			continue
		}
		out = append(out, m.Clone())
	}
	r.mu.RUnlock()

	sortMatches(out, opts)
	return out, nil
}

func (r *MemoryRepository) Ping(context.Context) error { return nil }

// sortMatches orders all matches newest-created first and live matches
// most-recently-updated first.
func sortMatches(ms []engine.Match, opts ListOptions) {
	slices.SortStableFunc(ms, func(a, b engine.Match) int {
		if opts.LiveOnly {
			return b.LastUpdated.Compare(a.LastUpdated)
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
}
