package domain

import "context"

// CoordinationStore es el único canal propose/commit hacia el conjunto
// replicado de registros de limpieza. Ninguna otra vía muta el conjunto;
// eso garantiza el invariante "un registro vivo por repositorio" incluso
// con callers concurrentes en nodos distintos, porque las propuestas se
// serializan en el orden de commit del primitivo de replicación.
type CoordinationStore interface {
	// ─── Lifecycle ───

	// BeginCleanup propone registrar rec como operación viva.
	// Retorna ErrOperationInProgress si ya hay un registro para el
	// repositorio, ErrNotLeader si este nodo no puede proponer, y
	// ErrReplicationRejected si el commit no se logró.
	BeginCleanup(ctx context.Context, rec CleanupRecord) error

	// EndCleanup propone eliminar el registro del repositorio.
	// Idempotente: sin registro vivo es un no-op, no un error.
	EndCleanup(ctx context.Context, repo string) error

	// ResetCleanups propone vaciar todos los registros (cambio de época).
	ResetCleanups(ctx context.Context, reason string) error

	// ─── Read ───

	// Cleanups lee el conjunto tal como este nodo lo tiene aplicado.
	Cleanups(ctx context.Context) (CleanupState, error)
}

// CatalogStore mantiene el catálogo replicado de repositorios.
type CatalogStore interface {
	// PutRepository registra o actualiza la definición (upsert).
	PutRepository(ctx context.Context, cfg RepositoryConfig) error

	// DeleteRepository elimina la definición. Retorna ErrRepositoryNotFound
	// si no existe y ErrOperationInProgress si hay una limpieza viva.
	DeleteRepository(ctx context.Context, name string) error

	// GetRepository devuelve la definición o ErrRepositoryNotFound.
	GetRepository(ctx context.Context, name string) (RepositoryConfig, error)

	// ListRepositories devuelve el catálogo ordenado por nombre.
	ListRepositories(ctx context.Context) ([]RepositoryConfig, error)
}

// MembershipDirectory expone la vista de miembros del cluster usada para
// calcular el conjunto elegible de una ronda de verificación.
type MembershipDirectory interface {
	// Self devuelve el nodo local.
	Self() Node

	// Current devuelve los miembros actuales con sus roles.
	Current(ctx context.Context) ([]Node, error)

	// Leader devuelve el líder actual, o ErrClusterUnavailable si no hay
	// líder electo conocido.
	Leader(ctx context.Context) (Node, error)
}
