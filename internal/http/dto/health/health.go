// Package health contiene los DTOs de los health checks.
package health

// Component es el estado de una dependencia individual.
type Component struct {
	Status string `json:"status"`          // ok | degraded | unavailable
	Error  string `json:"error,omitempty"` // detalle cuando no está ok
}

// HealthResponse para GET /healthz y GET /readyz
type HealthResponse struct {
	Status     string               `json:"status"` // ok | degraded | unavailable
	NodeID     string               `json:"node_id,omitempty"`
	Components map[string]Component `json:"components,omitempty"`
}
