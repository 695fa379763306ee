package backend_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/snapguard/snapguard/internal/domain"
	"github.com/snapguard/snapguard/internal/repositories/backend"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func newFSBackend(t *testing.T, root string) backend.Backend {
	t.Helper()
	b, err := backend.New(context.Background(), domain.RepositoryConfig{
		Name:     "backup-1",
		Type:     domain.RepositoryTypeFS,
		Settings: map[string]string{"root": root},
	})
	if err != nil {
		t.Fatalf("new fs backend: %v", err)
	}
	return b
}

func TestFS_RequiresRootSetting(t *testing.T) {
	_, err := backend.New(context.Background(), domain.RepositoryConfig{
		Name: "backup-1",
		Type: domain.RepositoryTypeFS,
	})
	if err == nil {
		t.Fatal("expected error without root setting")
	}
}

func TestFS_VerifyCycle_LeavesNoProbeResidue(t *testing.T) {
	root := t.TempDir()
	b := newFSBackend(t, root)
	ctx := context.Background()

	if err := b.Verify(ctx, "tok-abc", "n1"); err != nil {
		t.Fatalf("verify: %v", err)
	}
	probes, err := b.List(ctx, "probes/")
	if err != nil {
		t.Fatal(err)
	}
	if len(probes) != 0 {
		t.Fatalf("probe blobs left behind: %+v", probes)
	}
}

func TestFS_SharedRoot_VisibleAcrossInstances(t *testing.T) {
	// Dos instancias sobre la misma raíz simulan dos nodos con el mismo
	// montaje compartido: lo que escribe uno lo ve el otro.
	root := t.TempDir()
	a := newFSBackend(t, root)
	b := newFSBackend(t, root)
	ctx := context.Background()

	if err := a.SetGeneration(ctx, 7); err != nil {
		t.Fatalf("set generation: %v", err)
	}
	gen, err := b.Generation(ctx)
	if err != nil {
		t.Fatalf("generation: %v", err)
	}
	if gen != 7 {
		t.Fatalf("generation = %d, want 7", gen)
	}
}

func TestFS_Generation_FreshRepositoryIsZero(t *testing.T) {
	b := newFSBackend(t, t.TempDir())
	gen, err := b.Generation(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if gen != 0 {
		t.Fatalf("fresh generation = %d, want 0", gen)
	}
}

func TestFS_ListFiltersByPrefix(t *testing.T) {
	root := t.TempDir()
	b := newFSBackend(t, root)
	ctx := context.Background()

	if err := b.SetGeneration(ctx, 1); err != nil {
		t.Fatal(err)
	}
	// Un blob temporal plantado a mano, como lo dejaría una escritura caída.
	writeFile(t, filepath.Join(root, "tmp", "orphan-1.part"), []byte("x"))
	writeFile(t, filepath.Join(root, "data", "seg-0001.blob"), []byte("y"))

	tmp, err := b.List(ctx, backend.TempPrefix)
	if err != nil {
		t.Fatal(err)
	}
	if len(tmp) != 1 || tmp[0].Key != "tmp/orphan-1.part" {
		t.Fatalf("tmp listing: %+v", tmp)
	}

	all, err := b.List(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 blobs total, got %d: %+v", len(all), all)
	}
}

func TestFS_DeleteMissingKeyIsNoError(t *testing.T) {
	b := newFSBackend(t, t.TempDir())
	if err := b.Delete(context.Background(), "tmp/never-existed.part"); err != nil {
		t.Fatalf("delete missing: %v", err)
	}
}

func TestFS_RejectsTraversalKeys(t *testing.T) {
	b := newFSBackend(t, t.TempDir())
	if err := b.Delete(context.Background(), "../escape"); err == nil {
		t.Fatal("expected error for traversal key")
	}
}
