// Package repositories administra el catálogo replicado de repositorios y
// materializa por nodo la conexión con cada uno.
package repositories

import (
	"context"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/snapguard/snapguard/internal/domain"
	"github.com/snapguard/snapguard/internal/repositories/backend"
)

// Registry cachea backends materializados por nombre. La entrada se invalida
// sola cuando la definición replicada cambió (fingerprint distinto), así un
// follower que recibe un repository.put nuevo rematerializa en el próximo uso.
type Registry struct {
	catalog domain.CatalogStore

	mu   sync.RWMutex
	open map[string]openEntry
	sf   singleflight.Group
}

type openEntry struct {
	fingerprint string
	be          backend.Backend
}

func NewRegistry(catalog domain.CatalogStore) *Registry {
	return &Registry{catalog: catalog, open: make(map[string]openEntry)}
}

// Backend devuelve la conexión local con el repositorio name. Retorna
// domain.ErrRepositoryNotFound si el catálogo no lo tiene. Sondeos
// concurrentes sobre un repositorio aún no materializado comparten una
// única materialización (singleflight).
func (r *Registry) Backend(ctx context.Context, name string) (backend.Backend, error) {
	cfg, err := r.catalog.GetRepository(ctx, name)
	if err != nil {
		return nil, err
	}
	fp := fingerprint(cfg)

	r.mu.RLock()
	if e, ok := r.open[name]; ok && e.fingerprint == fp {
		r.mu.RUnlock()
		return e.be, nil
	}
	r.mu.RUnlock()

	v, err, _ := r.sf.Do(name+"\x00"+fp, func() (interface{}, error) {
		be, err := backend.New(ctx, cfg)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.open[name] = openEntry{fingerprint: fp, be: be}
		r.mu.Unlock()
		return be, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(backend.Backend), nil
}

// Forget descarta la entrada cacheada de name.
func (r *Registry) Forget(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.open, name)
}

// fingerprint resume tipo y settings de la definición. No incluye
// timestamps: un touch sin cambios no fuerza rematerializar.
func fingerprint(cfg domain.RepositoryConfig) string {
	keys := make([]string, 0, len(cfg.Settings))
	for k := range cfg.Settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(string(cfg.Type))
	for _, k := range keys {
		sb.WriteByte('|')
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(cfg.Settings[k])
	}
	return sb.String()
}
