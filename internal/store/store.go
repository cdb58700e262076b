// Package store holds match records behind a pluggable Repository. Every
// operation on a single match is atomic with respect to other operations on
// the same match.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/DoyleJ11/scoreboard-relay/internal/engine"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

var ErrPersistence = errors.New("persistence failure")
var ErrDuplicateMatch = errors.New("match already exists")

type ListOptions struct {
	LiveOnly bool
}

// Repository is the persistence collaborator. Implementations return
// engine.ErrMatchNotFound for unknown ids; any other error is treated as a
// persistence failure.
type Repository interface {
	Get(ctx context.Context, id string) (engine.Match, error)
	Create(ctx context.Context, m engine.Match) error
	Save(ctx context.Context, m engine.Match) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, opts ListOptions) ([]engine.Match, error)
	Ping(ctx context.Context) error
}

type Store struct {
	repo  Repository
	clock clockwork.Clock
	loc   *time.Location
	log   *zap.Logger

	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

type Option func(*Store)

func WithClock(c clockwork.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithLocation sets the zone of Now, and with it of server-filled event time
// labels. The default is UTC.
func WithLocation(loc *time.Location) Option {
	return func(s *Store) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.log = l.Named("store") }
}

func New(repo Repository, opts ...Option) *Store {
	s := &Store{
		repo:  repo,
		clock: clockwork.NewRealClock(),
		loc:   time.UTC,
		log:   zap.NewNop(),
		locks: make(map[string]*keyLock),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Now() time.Time { return s.clock.Now().In(s.loc) }

func (s *Store) Get(ctx context.Context, id string) (engine.Match, error) {
	unlock := s.lock(id)
	defer unlock()

	m, err := s.repo.Get(ctx, id)
	if err != nil {
		return engine.Match{}, s.classify("get", id, err)
	}
	return m, nil
}

func (s *Store) List(ctx context.Context, opts ListOptions) ([]engine.Match, error) {
	ms, err := s.repo.List(ctx, opts)
	if err != nil {
		return nil, s.classify("list", "", err)
	}
	return ms, nil
}

// CreateDefault stores a new match under a freshly generated id.
func (s *Store) CreateDefault(ctx context.Context, init engine.MatchInit) (engine.Match, error) {
	m := engine.NewMatch(uuid.NewString(), init, s.Now())
	if err := s.repo.Create(ctx, m); err != nil {
		return engine.Match{}, s.classify("create", m.MatchID, err)
	}
	s.log.Info("match created", zap.String("match_id", m.MatchID), zap.String("title", m.Title))
	return m, nil
}

// Ensure returns the match with the given id, creating a default one when
// none exists.
func (s *Store) Ensure(ctx context.Context, id string) (engine.Match, bool, error) {
	unlock := s.lock(id)
	defer unlock()

	m, err := s.repo.Get(ctx, id)
	if err == nil {
		return m, false, nil
	}
	if !errors.Is(err, engine.ErrMatchNotFound) {
		return engine.Match{}, false, s.classify("get", id, err)
	}

	m = engine.NewMatch(id, engine.MatchInit{}, s.Now())
	if err := s.repo.Create(ctx, m); err != nil {
		return engine.Match{}, false, s.classify("create", id, err)
	}
	s.log.Info("match created on join", zap.String("match_id", id))
	return m, true, nil
}

// Mutate runs fn against the current record and saves what it returns. When
// fn or the save fails, the stored record is left as it was.
func (s *Store) Mutate(ctx context.Context, id string, fn func(m engine.Match, now time.Time) (engine.Match, error)) (engine.Match, error) {
	unlock := s.lock(id)
	defer unlock()

	cur, err := s.repo.Get(ctx, id)
	if err != nil {
		return engine.Match{}, s.classify("get", id, err)
	}

	next, err := fn(cur, s.Now())
	if err != nil {
		return engine.Match{}, err
	}

	if err := s.repo.Save(ctx, next); err != nil {
		return engine.Match{}, s.classify("save", id, err)
	}
	return next, nil
}

// ApplyUpdate merges patch into the match and refreshes lastUpdated.
func (s *Store) ApplyUpdate(ctx context.Context, id string, patch engine.MatchPatch) (engine.Match, error) {
	return s.Mutate(ctx, id, func(m engine.Match, now time.Time) (engine.Match, error) {
		_, next, err := engine.Apply(m, engine.Command{Type: engine.CmdPatchMatch, Patch: patch}, now)
		return next, err
	})
}

func (s *Store) Delete(ctx context.Context, id string) error {
	unlock := s.lock(id)
	defer unlock()

	if err := s.repo.Delete(ctx, id); err != nil {
		return s.classify("delete", id, err)
	}
	s.log.Info("match deleted", zap.String("match_id", id))
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func (s *Store) lock(id string) func() {
	s.mu.Lock()
	l := s.locks[id]
	if l == nil {
		l = &keyLock{}
		s.locks[id] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, id)
		}
		s.mu.Unlock()
	}
}

func (s *Store) classify(op, id string, err error) error {
	if errors.Is(err, engine.ErrMatchNotFound) || errors.Is(err, ErrDuplicateMatch) {
		return err
	}
	if !errors.Is(err, context.Canceled) {
		s.log.Error("repository error", zap.String("op", op), zap.String("match_id", id), zap.Error(err))
	}
	return fmt.Errorf("%w: %s %s: %w", ErrPersistence, op, id, err)
}
