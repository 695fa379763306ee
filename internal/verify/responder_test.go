package verify_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/snapguard/snapguard/internal/domain"
	"github.com/snapguard/snapguard/internal/repositories"
	"github.com/snapguard/snapguard/internal/store/memstore"
	"github.com/snapguard/snapguard/internal/verify"
)

func newResponder(t *testing.T, cfgs ...domain.RepositoryConfig) (*verify.Responder, *repositories.Registry) {
	t.Helper()
	st := memstore.New()
	for _, cfg := range cfgs {
		if err := st.PutRepository(context.Background(), cfg); err != nil {
			t.Fatalf("PutRepository(%s): %v", cfg.Name, err)
		}
	}
	reg := repositories.NewRegistry(st)
	return verify.NewResponder(reg, "n1"), reg
}

func TestResponder_ProbeLeavesNoResidue(t *testing.T) {
	ctx := context.Background()
	r, reg := newResponder(t, domain.RepositoryConfig{
		Name:      "backup-1",
		Type:      "memory",
		CreatedAt: time.Now().UTC(),
	})

	if err := r.HandleProbe(ctx, "backup-1", "tok-123"); err != nil {
		t.Fatalf("HandleProbe: %v", err)
	}

	be, err := reg.Backend(ctx, "backup-1")
	if err != nil {
		t.Fatal(err)
	}
	blobs, err := be.List(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(blobs) != 0 {
		t.Errorf("el sondeo dejó blobs: %v", blobs)
	}
}

func TestResponder_UnknownRepositoryIsTyped(t *testing.T) {
	r, _ := newResponder(t)

	err := r.HandleProbe(context.Background(), "ghost", "tok-123")
	if !domain.IsRepositoryNotFound(err) {
		t.Fatalf("err = %v, esperaba ErrRepositoryNotFound", err)
	}
}

func TestResponder_BackendFailureSurfaces(t *testing.T) {
	// root apunta a un archivo regular: el ciclo write/read no puede ni
	// crear el directorio de sondeos.
	root := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(root, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	r, _ := newResponder(t, domain.RepositoryConfig{
		Name:     "backup-1",
		Type:     "fs",
		Settings: map[string]string{"root": root},
	})

	err := r.HandleProbe(context.Background(), "backup-1", "tok-123")
	if err == nil {
		t.Fatal("esperaba fallo de acceso al backend")
	}
	if domain.IsRepositoryNotFound(err) {
		t.Fatalf("un fallo de acceso no es repositorio-desconocido: %v", err)
	}
}
