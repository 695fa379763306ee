// Package internalapi contiene los DTOs de las rutas /internal entre nodos.
package internalapi

// VerifyProbeRequest para POST /internal/admin/repository/verify
type VerifyProbeRequest struct {
	Repository string `json:"repository"`
	Token      string `json:"verification_token"`
}

// VerifyProbeResponse confirma que el sondeo local pudo leer el marcador.
type VerifyProbeResponse struct {
	Repository string `json:"repository"`
	Node       string `json:"node"`
	Verified   bool   `json:"verified"`
}
