// Package memstore implementa CoordinationStore y CatalogStore en memoria,
// protegidos por mutex. Es el backend del modo single: misma semántica de
// admisión que la FSM replicada, sin log Raft de por medio. También es el
// store de los tests de servicios.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/snapguard/snapguard/internal/domain"
)

type Store struct {
	mu       sync.RWMutex
	cleanups []domain.CleanupRecord
	repos    map[string]domain.RepositoryConfig
}

func New() *Store {
	return &Store{repos: make(map[string]domain.RepositoryConfig)}
}

// ─── CoordinationStore ───

func (s *Store) BeginCleanup(_ context.Context, rec domain.CleanupRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.cleanups {
		if r.Repository == rec.Repository {
			return domain.ErrOperationInProgress
		}
	}
	s.cleanups = append(s.cleanups, rec)
	return nil
}

func (s *Store) EndCleanup(_ context.Context, repo string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.cleanups[:0]
	for _, r := range s.cleanups {
		if r.Repository != repo {
			out = append(out, r)
		}
	}
	s.cleanups = out
	return nil
}

func (s *Store) ResetCleanups(_ context.Context, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanups = nil
	return nil
}

func (s *Store) Cleanups(_ context.Context) (domain.CleanupState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.CleanupRecord, len(s.cleanups))
	copy(out, s.cleanups)
	return domain.CleanupState{Records: out}, nil
}

// ─── CatalogStore ───

func (s *Store) PutRepository(_ context.Context, cfg domain.RepositoryConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.repos[cfg.Name] = cfg
	return nil
}

func (s *Store) DeleteRepository(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.cleanups {
		if r.Repository == name {
			return domain.ErrOperationInProgress
		}
	}
	if _, ok := s.repos[name]; !ok {
		return domain.ErrRepositoryNotFound
	}
	delete(s.repos, name)
	return nil
}

func (s *Store) GetRepository(_ context.Context, name string) (domain.RepositoryConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.repos[name]
	if !ok {
		return domain.RepositoryConfig{}, domain.ErrRepositoryNotFound
	}
	return cfg, nil
}

func (s *Store) ListRepositories(_ context.Context) ([]domain.RepositoryConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.RepositoryConfig, 0, len(s.repos))
	for _, cfg := range s.repos {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

var (
	_ domain.CoordinationStore = (*Store)(nil)
	_ domain.CatalogStore      = (*Store)(nil)
)
