package domain

import "time"

// ProbeErrorKind clasifica el fallo de un sondeo por nodo.
type ProbeErrorKind string

const (
	// ProbeNodeUnreachable: el transporte no pudo entregar o cobrar la
	// respuesta (timeout incluido).
	ProbeNodeUnreachable ProbeErrorKind = "node_unreachable"

	// ProbeRejected: el nodo respondió pero su sondeo local falló.
	ProbeRejected ProbeErrorKind = "probe_rejected"

	// ProbeRepositoryNotFound: el repositorio no está materializado en ese
	// nodo. Es un bug de consistencia de configuración, no un fallo de red.
	ProbeRepositoryNotFound ProbeErrorKind = "repository_not_found"
)

// ProbeError es el error tipado que un nodo aporta al veredicto.
type ProbeError struct {
	Kind    ProbeErrorKind `json:"kind"`
	Message string         `json:"message"`
}

// VerificationOutcome es el veredicto único de una ronda de verificación.
// Se produce exactamente una vez por ronda; nunca se entrega parcialmente.
type VerificationOutcome struct {
	Repository string                `json:"repository"`
	Token      string                `json:"token"`
	Nodes      []string              `json:"nodes,omitempty"`    // nodos que confirmaron acceso
	Failures   map[string]ProbeError `json:"failures,omitempty"` // id de nodo -> error reportado
	StartedAt  time.Time             `json:"started_at"`
	Duration   time.Duration         `json:"duration"`
}

// Success indica veredicto favorable: cero errores registrados.
func (o VerificationOutcome) Success() bool { return len(o.Failures) == 0 }
