package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/snapguard/snapguard/internal/domain"
)

// fsBackend opera sobre un directorio compartido (NFS o similar montado
// igual en todos los nodos). Las escrituras son tmp+rename para que un
// lector nunca vea un blob a medio escribir.
type fsBackend struct {
	root string
}

func newFS(cfg domain.RepositoryConfig) (*fsBackend, error) {
	root := cfg.Setting("root", "")
	if root == "" {
		return nil, fmt.Errorf("repository %q: setting root requerido", cfg.Name)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("repository %q: mkdir root: %w", cfg.Name, err)
	}
	return &fsBackend{root: root}, nil
}

func (b *fsBackend) path(key string) (string, error) {
	if key == "" || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	return filepath.Join(b.root, filepath.FromSlash(key)), nil
}

func (b *fsBackend) Verify(_ context.Context, token, nodeID string) error {
	key := probeKey(token, nodeID)
	p, err := b.path(key)
	if err != nil {
		return err
	}
	payload := []byte(token)
	if err := writeAtomic(p, payload); err != nil {
		return fmt.Errorf("write probe: %w", err)
	}
	got, err := os.ReadFile(p)
	if err != nil {
		return fmt.Errorf("read probe back: %w", err)
	}
	if !bytes.Equal(got, payload) {
		return fmt.Errorf("probe readback mismatch for %s", key)
	}
	if err := os.Remove(p); err != nil {
		return fmt.Errorf("remove probe: %w", err)
	}
	return nil
}

func (b *fsBackend) Generation(_ context.Context) (int64, error) {
	p, err := b.path(generationKey)
	if err != nil {
		return 0, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read generation marker: %w", err)
	}
	return decodeGeneration(data)
}

func (b *fsBackend) SetGeneration(_ context.Context, gen int64) error {
	p, err := b.path(generationKey)
	if err != nil {
		return err
	}
	if err := writeAtomic(p, encodeGeneration(gen)); err != nil {
		return fmt.Errorf("write generation marker: %w", err)
	}
	return nil
}

func (b *fsBackend) List(_ context.Context, prefix string) ([]BlobInfo, error) {
	var out []BlobInfo
	err := filepath.WalkDir(b.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(b.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			// El archivo pudo desaparecer entre el walk y el stat.
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		out = append(out, BlobInfo{Key: key, Size: info.Size(), ModTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %q: %w", prefix, err)
	}
	return out, nil
}

func (b *fsBackend) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		p, err := b.path(key)
		if err != nil {
			return err
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("delete %s: %w", key, err)
		}
	}
	return nil
}

// writeAtomic escribe data en path vía tmp+Sync+Rename. Si rename falla
// (destino bloqueado en Windows), intenta remove+rename preservando lo viejo
// si el segundo rename también falla.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("fsync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	_ = os.Chmod(tmpPath, 0o644)

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(path)
		if err2 := os.Rename(tmpPath, path); err2 != nil {
			return fmt.Errorf("rename: %v (after remove: %v)", err, err2)
		}
	}
	return nil
}

var _ Backend = (*fsBackend)(nil)
