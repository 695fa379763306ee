package raftstore

import (
	"context"

	"github.com/snapguard/snapguard/internal/cluster"
	"github.com/snapguard/snapguard/internal/domain"
)

// ─── CatalogStore ───

// PutRepository propone el upsert de la definición. Los timestamps viajan en
// el payload para que todos los nodos apliquen exactamente el mismo estado.
func (s *Store) PutRepository(ctx context.Context, cfg domain.RepositoryConfig) error {
	return s.propose(ctx, cluster.MutationRepositoryPut, cluster.RepositoryPutPayload{
		Config: cfg,
	})
}

func (s *Store) DeleteRepository(ctx context.Context, name string) error {
	return s.propose(ctx, cluster.MutationRepositoryDelete, cluster.RepositoryDeletePayload{
		Name: name,
	})
}

func (s *Store) GetRepository(_ context.Context, name string) (domain.RepositoryConfig, error) {
	if s == nil || s.fsm == nil {
		return domain.RepositoryConfig{}, domain.ErrClusterUnavailable
	}
	cfg, ok := s.fsm.Repository(name)
	if !ok {
		return domain.RepositoryConfig{}, domain.ErrRepositoryNotFound
	}
	return cfg, nil
}

func (s *Store) ListRepositories(_ context.Context) ([]domain.RepositoryConfig, error) {
	if s == nil || s.fsm == nil {
		return nil, domain.ErrClusterUnavailable
	}
	return s.fsm.Repositories(), nil
}

var _ domain.CatalogStore = (*Store)(nil)
