package cleanup_test

import (
	"context"
	"testing"

	"github.com/snapguard/snapguard/internal/cleanup"
	"github.com/snapguard/snapguard/internal/domain"
	"github.com/snapguard/snapguard/internal/store/memstore"
)

func TestGuard_ExclusionPerRepository(t *testing.T) {
	ctx := context.Background()
	g := cleanup.NewGuard(memstore.New())

	if err := g.TryBegin(ctx, "backup-1", 7); err != nil {
		t.Fatalf("TryBegin: %v", err)
	}
	if err := g.TryBegin(ctx, "backup-1", 7); !domain.IsOperationInProgress(err) {
		t.Fatalf("segunda admisión: err = %v, esperaba ErrOperationInProgress", err)
	}
	// La exclusión es por repositorio, no global.
	if err := g.TryBegin(ctx, "backup-2", 3); err != nil {
		t.Fatalf("TryBegin backup-2: %v", err)
	}

	st, err := g.Active(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(st.Records) != 2 {
		t.Fatalf("Records = %v, esperaba 2", st.Records)
	}
	rec, ok := st.Find("backup-1")
	if !ok || rec.RepositoryStateID != 7 {
		t.Errorf("backup-1: rec=%+v ok=%v", rec, ok)
	}
}

func TestGuard_EndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	g := cleanup.NewGuard(memstore.New())

	// Retirar sin registro vivo no es un error.
	if err := g.End(ctx, "backup-1"); err != nil {
		t.Fatalf("End sin registro: %v", err)
	}

	if err := g.TryBegin(ctx, "backup-1", 7); err != nil {
		t.Fatal(err)
	}
	if err := g.End(ctx, "backup-1"); err != nil {
		t.Fatalf("End: %v", err)
	}
	if err := g.End(ctx, "backup-1"); err != nil {
		t.Fatalf("re-End: %v", err)
	}

	// Retirado el registro, el repositorio vuelve a admitir.
	if err := g.TryBegin(ctx, "backup-1", 8); err != nil {
		t.Fatalf("TryBegin tras End: %v", err)
	}
}
