// Package admin contiene los DTOs de las rutas /v1/admin.
package admin

import "time"

// PutRepositoryRequest para PUT /v1/admin/repositories/{name}
type PutRepositoryRequest struct {
	Type     string            `json:"type"`
	Settings map[string]string `json:"settings,omitempty"`
	// SkipVerify omite la ronda de verificación posterior al registro.
	SkipVerify bool `json:"skip_verify,omitempty"`
}

// RepositoryResponse representa un repositorio en respuestas de la API.
type RepositoryResponse struct {
	Name      string            `json:"name"`
	Type      string            `json:"type"`
	Settings  map[string]string `json:"settings,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// PutRepositoryResponse para PUT /v1/admin/repositories/{name}
type PutRepositoryResponse struct {
	Repository   RepositoryResponse    `json:"repository"`
	Verification *VerificationResponse `json:"verification,omitempty"`
}

// ListRepositoriesResponse para GET /v1/admin/repositories
type ListRepositoriesResponse struct {
	Repositories []RepositoryResponse `json:"repositories"`
	TotalCount   int                  `json:"total_count"`
}

// ProbeErrorResponse es el fallo que un nodo aportó al veredicto.
type ProbeErrorResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// VerificationResponse para POST /v1/admin/repositories/{name}/verify
// y GET /v1/admin/repositories/{name}/verification
type VerificationResponse struct {
	Repository string                        `json:"repository"`
	Token      string                        `json:"token"`
	Success    bool                          `json:"success"`
	Nodes      []string                      `json:"nodes,omitempty"`
	Failures   map[string]ProbeErrorResponse `json:"failures,omitempty"`
	StartedAt  time.Time                     `json:"started_at"`
	DurationMs int64                         `json:"duration_ms"`
}

// GenerationResponse para GET /v1/admin/repositories/{name}/generation
type GenerationResponse struct {
	Repository string `json:"repository"`
	Generation int64  `json:"generation"`
}

// CleanupRequest para POST /v1/admin/repositories/{name}/cleanup
type CleanupRequest struct {
	// ExpectedGeneration habilita el chequeo optimista: si la generación
	// actual del repositorio no coincide, la limpieza no arranca. Ausente
	// significa sin chequeo.
	ExpectedGeneration *int64 `json:"expected_generation,omitempty"`
}

// CleanupResponse para POST /v1/admin/repositories/{name}/cleanup
type CleanupResponse struct {
	Repository    string `json:"repository"`
	DeletedBlobs  int    `json:"deleted_blobs"`
	FreedBytes    int64  `json:"freed_bytes"`
	OldGeneration int64  `json:"old_generation"`
	NewGeneration int64  `json:"new_generation"`
	DurationMs    int64  `json:"duration_ms"`
}

// StatusResponse respuesta genérica de confirmación.
type StatusResponse struct {
	Status string `json:"status"`
}
