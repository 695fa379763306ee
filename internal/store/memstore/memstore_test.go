package memstore_test

import (
	"context"
	"errors"
	"testing"

	"github.com/snapguard/snapguard/internal/domain"
	"github.com/snapguard/snapguard/internal/store/memstore"
)

func TestStore_BeginCleanup_AdmissionMatchesReplicatedSemantics(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()

	if err := s.BeginCleanup(ctx, domain.CleanupRecord{Repository: "backup-1", RepositoryStateID: 7}); err != nil {
		t.Fatalf("first begin: %v", err)
	}
	err := s.BeginCleanup(ctx, domain.CleanupRecord{Repository: "backup-1", RepositoryStateID: 8})
	if !errors.Is(err, domain.ErrOperationInProgress) {
		t.Fatalf("expected ErrOperationInProgress, got %v", err)
	}
	if err := s.BeginCleanup(ctx, domain.CleanupRecord{Repository: "backup-2", RepositoryStateID: 1}); err != nil {
		t.Fatalf("begin on other repo: %v", err)
	}

	st, err := s.Cleanups(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(st.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(st.Records))
	}
}

func TestStore_EndCleanup_IdempotentAndReadmits(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()

	_ = s.BeginCleanup(ctx, domain.CleanupRecord{Repository: "backup-1", RepositoryStateID: 7})
	if err := s.EndCleanup(ctx, "backup-1"); err != nil {
		t.Fatalf("end: %v", err)
	}
	if err := s.EndCleanup(ctx, "backup-1"); err != nil {
		t.Fatalf("second end should be a no-op: %v", err)
	}
	if err := s.BeginCleanup(ctx, domain.CleanupRecord{Repository: "backup-1", RepositoryStateID: 8}); err != nil {
		t.Fatalf("re-begin after end: %v", err)
	}
}

func TestStore_ResetCleanups_ClearsAll(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()

	_ = s.BeginCleanup(ctx, domain.CleanupRecord{Repository: "backup-1"})
	_ = s.BeginCleanup(ctx, domain.CleanupRecord{Repository: "backup-2"})
	if err := s.ResetCleanups(ctx, "test"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	st, _ := s.Cleanups(ctx)
	if st.HasCleanupInProgress() {
		t.Fatalf("records survived reset: %+v", st.Records)
	}
}

func TestStore_Catalog_CRUDAndDeleteGuards(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()

	cfg := domain.RepositoryConfig{Name: "backup-1", Type: domain.RepositoryTypeMemory}
	if err := s.PutRepository(ctx, cfg); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := s.GetRepository(ctx, "backup-1")
	if err != nil || got.Name != "backup-1" {
		t.Fatalf("get: %+v err=%v", got, err)
	}

	if _, err := s.GetRepository(ctx, "ghost"); !errors.Is(err, domain.ErrRepositoryNotFound) {
		t.Fatalf("expected ErrRepositoryNotFound, got %v", err)
	}
	if err := s.DeleteRepository(ctx, "ghost"); !errors.Is(err, domain.ErrRepositoryNotFound) {
		t.Fatalf("expected ErrRepositoryNotFound on delete, got %v", err)
	}

	// Con limpieza viva el delete queda bloqueado.
	_ = s.BeginCleanup(ctx, domain.CleanupRecord{Repository: "backup-1", RepositoryStateID: 1})
	if err := s.DeleteRepository(ctx, "backup-1"); !errors.Is(err, domain.ErrOperationInProgress) {
		t.Fatalf("expected ErrOperationInProgress, got %v", err)
	}
	_ = s.EndCleanup(ctx, "backup-1")
	if err := s.DeleteRepository(ctx, "backup-1"); err != nil {
		t.Fatalf("delete after end: %v", err)
	}
}

func TestStore_ListRepositories_SortedByName(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()

	for _, name := range []string{"zulu", "alpha", "mike"} {
		_ = s.PutRepository(ctx, domain.RepositoryConfig{Name: name, Type: domain.RepositoryTypeMemory})
	}
	list, err := s.ListRepositories(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 || list[0].Name != "alpha" || list[1].Name != "mike" || list[2].Name != "zulu" {
		t.Fatalf("unexpected order: %+v", list)
	}
}
