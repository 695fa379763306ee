// Package cluster provee el primitivo de replicación del sistema: un nodo
// Raft embebido cuya FSM mantiene el estado de coordinación (registros de
// limpieza en curso y catálogo de repositorios). Toda mutación viaja por
// Apply; el veredicto de admisión vuelve en la respuesta de la FSM.
package cluster

import (
	"encoding/json"

	"github.com/snapguard/snapguard/internal/domain"
)

// MutationType define el catálogo de operaciones replicadas.
type MutationType string

const (
	// MutationCleanupBegin registra una limpieza viva para un repositorio.
	// La FSM la rechaza si ya existe un registro para ese nombre.
	MutationCleanupBegin MutationType = "cleanup.begin"

	// MutationCleanupEnd elimina el registro de un repositorio. Idempotente.
	MutationCleanupEnd MutationType = "cleanup.end"

	// MutationCleanupReset vacía todos los registros (cambio de época).
	MutationCleanupReset MutationType = "cleanup.reset"

	// MutationRepositoryPut registra o actualiza una definición del catálogo.
	MutationRepositoryPut MutationType = "repository.put"

	// MutationRepositoryDelete elimina una definición del catálogo.
	// La FSM la rechaza si hay una limpieza viva para ese repositorio.
	MutationRepositoryDelete MutationType = "repository.delete"
)

// Mutation representa una operación a replicar por Raft.
// El payload es JSON crudo del DTO correspondiente al tipo.
type Mutation struct {
	Type    MutationType    `json:"type"`
	TsUnix  int64           `json:"ts_unix"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ─── Payload DTOs ───

type CleanupBeginPayload struct {
	Repository        string `json:"repository"`
	RepositoryStateID int64  `json:"repository_state_id"`
}

type CleanupEndPayload struct {
	Repository string `json:"repository"`
}

type CleanupResetPayload struct {
	Reason string `json:"reason,omitempty"`
}

type RepositoryPutPayload struct {
	Config domain.RepositoryConfig `json:"config"`
}

type RepositoryDeletePayload struct {
	Name string `json:"name"`
}
