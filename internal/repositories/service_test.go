package repositories_test

import (
	"context"
	"errors"
	"testing"

	"github.com/snapguard/snapguard/internal/domain"
	"github.com/snapguard/snapguard/internal/repositories"
	"github.com/snapguard/snapguard/internal/store/memstore"
)

type stubVerifier struct {
	outcome domain.VerificationOutcome
	err     error
	calls   int
}

func (s *stubVerifier) Verify(_ context.Context, repo string) (domain.VerificationOutcome, error) {
	s.calls++
	if s.outcome.Repository == "" {
		s.outcome.Repository = repo
	}
	return s.outcome, s.err
}

func newService(v repositories.Verifier) (*repositories.Service, *memstore.Store) {
	catalog := memstore.New()
	return repositories.NewService(catalog, repositories.NewRegistry(catalog), v), catalog
}

func TestService_Put_RejectsInvalidNames(t *testing.T) {
	svc, _ := newService(nil)
	for _, name := range []string{"", "Backup", "-backup", "con espacios", "a/b"} {
		_, err := svc.Put(context.Background(), repositories.PutInput{
			Name: name, Type: domain.RepositoryTypeMemory,
		})
		if !domain.IsInvalidInput(err) {
			t.Fatalf("name %q: expected invalid input, got %v", name, err)
		}
	}
}

func TestService_Put_ValidatesSettingsPerType(t *testing.T) {
	svc, _ := newService(nil)
	ctx := context.Background()

	if _, err := svc.Put(ctx, repositories.PutInput{Name: "b1", Type: domain.RepositoryTypeFS}); !domain.IsInvalidInput(err) {
		t.Fatalf("fs without root: %v", err)
	}
	if _, err := svc.Put(ctx, repositories.PutInput{Name: "b1", Type: domain.RepositoryTypeS3}); !domain.IsInvalidInput(err) {
		t.Fatalf("s3 without bucket: %v", err)
	}
	if _, err := svc.Put(ctx, repositories.PutInput{Name: "b1", Type: "tape"}); !domain.IsInvalidInput(err) {
		t.Fatalf("unknown type: %v", err)
	}
}

func TestService_Put_SkipVerifyDoesNotTouchVerifier(t *testing.T) {
	v := &stubVerifier{}
	svc, catalog := newService(v)

	res, err := svc.Put(context.Background(), repositories.PutInput{
		Name: "backup-1", Type: domain.RepositoryTypeMemory, SkipVerify: true,
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if res.Outcome != nil {
		t.Fatalf("unexpected outcome: %+v", res.Outcome)
	}
	if v.calls != 0 {
		t.Fatalf("verifier called %d times", v.calls)
	}
	if _, err := catalog.GetRepository(context.Background(), "backup-1"); err != nil {
		t.Fatalf("repository not in catalog: %v", err)
	}
}

func TestService_Put_VerifiesOnRegister(t *testing.T) {
	v := &stubVerifier{outcome: domain.VerificationOutcome{Nodes: []string{"n1", "n2"}}}
	svc, _ := newService(v)

	res, err := svc.Put(context.Background(), repositories.PutInput{
		Name: "backup-1", Type: domain.RepositoryTypeMemory,
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if v.calls != 1 {
		t.Fatalf("verifier calls = %d, want 1", v.calls)
	}
	if res.Outcome == nil || !res.Outcome.Success() {
		t.Fatalf("expected favorable outcome, got %+v", res.Outcome)
	}
}

func TestService_Put_UnfavorableVerdictKeepsRepositoryRegistered(t *testing.T) {
	v := &stubVerifier{outcome: domain.VerificationOutcome{
		Nodes: []string{"n1"},
		Failures: map[string]domain.ProbeError{
			"n2": {Kind: domain.ProbeRejected, Message: "probe readback mismatch"},
		},
	}}
	svc, catalog := newService(v)

	res, err := svc.Put(context.Background(), repositories.PutInput{
		Name: "backup-1", Type: domain.RepositoryTypeMemory,
	})
	if !errors.Is(err, domain.ErrVerificationFailed) {
		t.Fatalf("expected ErrVerificationFailed, got %v", err)
	}
	// La definición es declarativa: el alta persiste aunque el veredicto
	// sea desfavorable; el caller decide si borra o corrige.
	if _, err := catalog.GetRepository(context.Background(), "backup-1"); err != nil {
		t.Fatalf("repository should stay registered: %v", err)
	}
	if res.Outcome == nil || len(res.Outcome.Failures) != 1 {
		t.Fatalf("verdict detail missing: %+v", res.Outcome)
	}
}

func TestService_Put_UpdatePreservesCreatedAt(t *testing.T) {
	svc, catalog := newService(nil)
	ctx := context.Background()

	if _, err := svc.Put(ctx, repositories.PutInput{Name: "backup-1", Type: domain.RepositoryTypeMemory, SkipVerify: true}); err != nil {
		t.Fatal(err)
	}
	first, _ := catalog.GetRepository(ctx, "backup-1")

	if _, err := svc.Put(ctx, repositories.PutInput{Name: "backup-1", Type: domain.RepositoryTypeMemory, SkipVerify: true}); err != nil {
		t.Fatal(err)
	}
	second, _ := catalog.GetRepository(ctx, "backup-1")

	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("created_at changed on update: %v -> %v", first.CreatedAt, second.CreatedAt)
	}
	if second.UpdatedAt.Before(first.UpdatedAt) {
		t.Fatalf("updated_at went backwards: %v -> %v", first.UpdatedAt, second.UpdatedAt)
	}
}

func TestService_Delete_BlockedWhileCleanupLive(t *testing.T) {
	svc, catalog := newService(nil)
	ctx := context.Background()

	_, _ = svc.Put(ctx, repositories.PutInput{Name: "backup-1", Type: domain.RepositoryTypeMemory, SkipVerify: true})
	_ = catalog.BeginCleanup(ctx, domain.CleanupRecord{Repository: "backup-1", RepositoryStateID: 1})

	if err := svc.Delete(ctx, "backup-1"); !errors.Is(err, domain.ErrOperationInProgress) {
		t.Fatalf("expected ErrOperationInProgress, got %v", err)
	}
	_ = catalog.EndCleanup(ctx, "backup-1")
	if err := svc.Delete(ctx, "backup-1"); err != nil {
		t.Fatalf("delete after end: %v", err)
	}
}

func TestService_Verify_UnknownRepositoryShortCircuits(t *testing.T) {
	v := &stubVerifier{}
	svc, _ := newService(v)

	_, err := svc.Verify(context.Background(), "ghost")
	if !errors.Is(err, domain.ErrRepositoryNotFound) {
		t.Fatalf("expected ErrRepositoryNotFound, got %v", err)
	}
	if v.calls != 0 {
		t.Fatalf("verifier should not run without a definition (calls=%d)", v.calls)
	}
}

func TestService_Generation_ReadsBackendMarker(t *testing.T) {
	catalog := memstore.New()
	registry := repositories.NewRegistry(catalog)
	svc := repositories.NewService(catalog, registry, nil)
	ctx := context.Background()

	_, _ = svc.Put(ctx, repositories.PutInput{Name: "backup-1", Type: domain.RepositoryTypeMemory, SkipVerify: true})

	gen, err := svc.Generation(ctx, "backup-1")
	if err != nil || gen != 0 {
		t.Fatalf("fresh generation = %d err=%v", gen, err)
	}

	be, err := registry.Backend(ctx, "backup-1")
	if err != nil {
		t.Fatal(err)
	}
	_ = be.SetGeneration(ctx, 7)

	gen, err = svc.Generation(ctx, "backup-1")
	if err != nil || gen != 7 {
		t.Fatalf("generation = %d err=%v, want 7", gen, err)
	}
}
