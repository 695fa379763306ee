package raftstore

import (
	"context"

	"github.com/snapguard/snapguard/internal/cluster"
	"github.com/snapguard/snapguard/internal/domain"
)

// ─── CoordinationStore ───

func (s *Store) BeginCleanup(ctx context.Context, rec domain.CleanupRecord) error {
	return s.propose(ctx, cluster.MutationCleanupBegin, cluster.CleanupBeginPayload{
		Repository:        rec.Repository,
		RepositoryStateID: rec.RepositoryStateID,
	})
}

func (s *Store) EndCleanup(ctx context.Context, repo string) error {
	return s.propose(ctx, cluster.MutationCleanupEnd, cluster.CleanupEndPayload{
		Repository: repo,
	})
}

func (s *Store) ResetCleanups(ctx context.Context, reason string) error {
	return s.propose(ctx, cluster.MutationCleanupReset, cluster.CleanupResetPayload{
		Reason: reason,
	})
}

func (s *Store) Cleanups(_ context.Context) (domain.CleanupState, error) {
	if s == nil || s.fsm == nil {
		return domain.CleanupState{}, domain.ErrClusterUnavailable
	}
	return s.fsm.CleanupState(), nil
}

var _ domain.CoordinationStore = (*Store)(nil)
