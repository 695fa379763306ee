package domain

// CleanupRecord representa una operación de limpieza en curso sobre un
// repositorio. Vive únicamente dentro del estado replicado del cluster:
// no se persiste de forma independiente y desaparece cuando la operación
// termina o cuando un cambio de época del cluster lo declara obsoleto.
type CleanupRecord struct {
	// Repository identifica al repositorio objetivo; único entre registros vivos.
	Repository string `json:"repository"`

	// RepositoryStateID es la generación del repositorio que la operación
	// espera encontrar. El chequeo optimista contra la generación actual lo
	// hace el caller antes de construir el registro.
	RepositoryStateID int64 `json:"repository_state_id"`
}

// CleanupState es el conjunto replicado de registros activos, idéntico en
// todos los nodos. Invariante: a lo sumo un registro vivo por repositorio.
type CleanupState struct {
	Records []CleanupRecord `json:"records,omitempty"`
}

// HasCleanupInProgress indica si existe al menos un registro vivo.
func (s CleanupState) HasCleanupInProgress() bool { return len(s.Records) > 0 }

// Find devuelve el registro vivo para repo, si existe.
func (s CleanupState) Find(repo string) (CleanupRecord, bool) {
	for _, r := range s.Records {
		if r.Repository == repo {
			return r, true
		}
	}
	return CleanupRecord{}, false
}
