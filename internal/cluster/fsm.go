package cluster

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/hashicorp/raft"

	"github.com/snapguard/snapguard/internal/domain"
)

// fsmStateVersion versiona el formato del snapshot JSON.
const fsmStateVersion = 1

// FSM mantiene el estado de coordinación replicado: registros de limpieza
// vivos y catálogo de repositorios. Apply corre serializado por el log Raft,
// así que los chequeos de admisión adentro de Apply deciden carreras entre
// nodos sin ningún lock distribuido: exactamente una propuesta observa éxito.
//
// El valor devuelto por Apply viaja al proponente vía ApplyFuture.Response()
// (solo en el líder); un error de dominio ahí es el veredicto de rechazo.
type FSM struct {
	mu       sync.RWMutex
	cleanups []domain.CleanupRecord
	repos    map[string]domain.RepositoryConfig
}

func NewFSM() *FSM {
	return &FSM{repos: make(map[string]domain.RepositoryConfig)}
}

// Apply decodifica la mutación y ejecuta la transición correspondiente.
func (f *FSM) Apply(l *raft.Log) interface{} {
	if l == nil || len(l.Data) == 0 {
		return nil
	}
	var m Mutation
	if err := json.Unmarshal(l.Data, &m); err != nil {
		return fmt.Errorf("fsm: decode mutation: %w", err)
	}

	switch m.Type {
	case MutationCleanupBegin:
		var p CleanupBeginPayload
		if err := json.Unmarshal(m.Payload, &p); err != nil {
			return fmt.Errorf("fsm: decode %s: %w", m.Type, err)
		}
		return f.applyCleanupBegin(p)

	case MutationCleanupEnd:
		var p CleanupEndPayload
		if err := json.Unmarshal(m.Payload, &p); err != nil {
			return fmt.Errorf("fsm: decode %s: %w", m.Type, err)
		}
		return f.applyCleanupEnd(p)

	case MutationCleanupReset:
		var p CleanupResetPayload
		if len(m.Payload) > 0 {
			if err := json.Unmarshal(m.Payload, &p); err != nil {
				return fmt.Errorf("fsm: decode %s: %w", m.Type, err)
			}
		}
		return f.applyCleanupReset(p)

	case MutationRepositoryPut:
		var p RepositoryPutPayload
		if err := json.Unmarshal(m.Payload, &p); err != nil {
			return fmt.Errorf("fsm: decode %s: %w", m.Type, err)
		}
		return f.applyRepositoryPut(p)

	case MutationRepositoryDelete:
		var p RepositoryDeletePayload
		if err := json.Unmarshal(m.Payload, &p); err != nil {
			return fmt.Errorf("fsm: decode %s: %w", m.Type, err)
		}
		return f.applyRepositoryDelete(p)

	default:
		return fmt.Errorf("fsm: unknown mutation type %q", m.Type)
	}
}

func (f *FSM) applyCleanupBegin(p CleanupBeginPayload) interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()

	// Invariante: un registro vivo por repositorio. El segundo proponente
	// de una carrera llega acá después del primero y ve el registro.
	for _, r := range f.cleanups {
		if r.Repository == p.Repository {
			return domain.ErrOperationInProgress
		}
	}
	f.cleanups = append(f.cleanups, domain.CleanupRecord{
		Repository:        p.Repository,
		RepositoryStateID: p.RepositoryStateID,
	})
	return nil
}

func (f *FSM) applyCleanupEnd(p CleanupEndPayload) interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()

	// Idempotente: sin registro vivo no hay nada que hacer.
	out := f.cleanups[:0]
	for _, r := range f.cleanups {
		if r.Repository != p.Repository {
			out = append(out, r)
		}
	}
	f.cleanups = out
	return nil
}

func (f *FSM) applyCleanupReset(_ CleanupResetPayload) interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleanups = nil
	return nil
}

func (f *FSM) applyRepositoryPut(p RepositoryPutPayload) interface{} {
	if p.Config.Name == "" {
		return fmt.Errorf("fsm: repository.put sin nombre")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.repos[p.Config.Name] = p.Config
	return nil
}

func (f *FSM) applyRepositoryDelete(p RepositoryDeletePayload) interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()

	// No se borra un repositorio con limpieza viva.
	for _, r := range f.cleanups {
		if r.Repository == p.Name {
			return domain.ErrOperationInProgress
		}
	}
	if _, ok := f.repos[p.Name]; !ok {
		return domain.ErrRepositoryNotFound
	}
	delete(f.repos, p.Name)
	return nil
}

// ─── Lecturas locales ───

// CleanupState devuelve una copia del conjunto de registros vivos tal como
// este nodo lo tiene aplicado.
func (f *FSM) CleanupState() domain.CleanupState {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]domain.CleanupRecord, len(f.cleanups))
	copy(out, f.cleanups)
	return domain.CleanupState{Records: out}
}

// Repository devuelve la definición del catálogo para name.
func (f *FSM) Repository(name string) (domain.RepositoryConfig, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	cfg, ok := f.repos[name]
	return cfg, ok
}

// Repositories devuelve el catálogo ordenado por nombre.
func (f *FSM) Repositories() []domain.RepositoryConfig {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]domain.RepositoryConfig, 0, len(f.repos))
	for _, cfg := range f.repos {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ─── Snapshot / Restore ───

type fsmState struct {
	Version      int                                `json:"version"`
	Cleanups     []domain.CleanupRecord             `json:"cleanups,omitempty"`
	Repositories map[string]domain.RepositoryConfig `json:"repositories,omitempty"`
}

// Snapshot serializa el estado completo como JSON.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	st := fsmState{
		Version:      fsmStateVersion,
		Cleanups:     append([]domain.CleanupRecord(nil), f.cleanups...),
		Repositories: make(map[string]domain.RepositoryConfig, len(f.repos)),
	}
	for k, v := range f.repos {
		st.Repositories[k] = v
	}
	f.mu.RUnlock()

	data, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("fsm: marshal snapshot: %w", err)
	}
	return &fsmSnapshot{data: data}, nil
}

// Restore reemplaza el estado con el contenido del snapshot.
func (f *FSM) Restore(rc io.ReadCloser) error {
	if rc == nil {
		return nil
	}
	defer rc.Close()

	var st fsmState
	if err := json.NewDecoder(rc).Decode(&st); err != nil {
		return fmt.Errorf("fsm: decode snapshot: %w", err)
	}
	if st.Version != fsmStateVersion {
		return fmt.Errorf("fsm: snapshot version %d no soportada", st.Version)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleanups = st.Cleanups
	if st.Repositories != nil {
		f.repos = st.Repositories
	} else {
		f.repos = make(map[string]domain.RepositoryConfig)
	}
	return nil
}

type fsmSnapshot struct{ data []byte }

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	if _, err := sink.Write(s.data); err != nil {
		_ = sink.Cancel()
		return err
	}
	return sink.Close()
}

func (s *fsmSnapshot) Release() {}
