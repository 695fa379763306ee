package domain

import "errors"

var (
	// ErrOperationInProgress indica que ya existe un registro vivo para el
	// repositorio; la admisión se rechaza y el caller puede reintentar luego.
	ErrOperationInProgress = errors.New("repository operation already in progress")

	// ErrStaleGeneration indica que la generación esperada por el caller no
	// coincide con la actual del repositorio; refrescar estado y reintentar.
	ErrStaleGeneration = errors.New("stale repository generation")

	// ErrReplicationRejected indica que el propose/commit del cambio de
	// estado falló (ej: liderazgo perdido a mitad de publicación). La
	// operación se reporta como no iniciada; no queda registro parcial.
	ErrReplicationRejected = errors.New("cluster state replication rejected")

	// ErrRepositoryNotFound indica que el repositorio no existe en el
	// catálogo, o no está materializado en este nodo.
	ErrRepositoryNotFound = errors.New("repository not found")

	// ErrVerificationFailed indica veredicto desfavorable de una ronda de
	// verificación; el detalle por nodo viaja en el VerificationOutcome.
	ErrVerificationFailed = errors.New("repository verification failed")

	// ErrNotLeader indica que la operación requiere ser líder del cluster.
	ErrNotLeader = errors.New("not cluster leader")

	// ErrClusterUnavailable indica que el cluster no está disponible.
	ErrClusterUnavailable = errors.New("cluster unavailable")

	// ErrInvalidInput indica parámetros de entrada rechazados por validación.
	ErrInvalidInput = errors.New("invalid input")
)

// IsOperationInProgress verifica si el error es ErrOperationInProgress.
func IsOperationInProgress(err error) bool {
	return errors.Is(err, ErrOperationInProgress)
}

// IsStaleGeneration verifica si el error es ErrStaleGeneration.
func IsStaleGeneration(err error) bool {
	return errors.Is(err, ErrStaleGeneration)
}

// IsRepositoryNotFound verifica si el error es ErrRepositoryNotFound.
func IsRepositoryNotFound(err error) bool {
	return errors.Is(err, ErrRepositoryNotFound)
}

// IsNotLeader verifica si el error es ErrNotLeader.
func IsNotLeader(err error) bool {
	return errors.Is(err, ErrNotLeader)
}

// IsInvalidInput verifica si el error es ErrInvalidInput.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}
