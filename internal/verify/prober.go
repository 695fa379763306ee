package verify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/snapguard/snapguard/internal/domain"
)

// Prober entrega un sondeo a un nodo remoto y espera su confirmación.
type Prober interface {
	Probe(ctx context.Context, node domain.Node, repository, token string) error
}

// transportError marca fallos donde la respuesta del nodo nunca llegó
// (conexión, DNS, timeout). Se distingue del rechazo explícito del sondeo.
type transportError struct{ err error }

func (e *transportError) Error() string { return e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

// TokenMinter emite el bearer con el que este nodo se presenta ante otro.
type TokenMinter interface {
	Mint() (string, error)
}

const probePath = "/internal/admin/repository/verify"

// Código de error que el responder remoto devuelve cuando el repositorio no
// está en su catálogo. Debe coincidir con el catálogo de errores HTTP.
const codeRepositoryNotFound = "REPOSITORY_NOT_FOUND"

type probeRequest struct {
	Repository string `json:"repository"`
	Token      string `json:"verification_token"`
}

type probeErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// HTTPProber implementa Prober sobre el API interno de los nodos.
type HTTPProber struct {
	http   *http.Client
	minter TokenMinter
}

// NewHTTPProber crea el prober. minter puede ser nil si la autenticación
// interna está deshabilitada (sólo dev).
func NewHTTPProber(minter TokenMinter, timeout time.Duration) *HTTPProber {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPProber{
		http:   &http.Client{Timeout: timeout},
		minter: minter,
	}
}

func (p *HTTPProber) Probe(ctx context.Context, node domain.Node, repository, token string) error {
	if node.APIAddr == "" {
		return &transportError{err: fmt.Errorf("nodo %s sin api_addr en el roster", node.ID)}
	}

	body, err := json.Marshal(probeRequest{Repository: repository, Token: token})
	if err != nil {
		return fmt.Errorf("marshal probe request: %w", err)
	}

	base := node.APIAddr
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(base, "/")+probePath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build probe request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if p.minter != nil {
		bearer, err := p.minter.Mint()
		if err != nil {
			return fmt.Errorf("mint node token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return &transportError{err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	// El responder remoto responde el error con {code, message, detail}.
	var eb probeErrorBody
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<10)).Decode(&eb); err != nil || eb.Code == "" {
		return fmt.Errorf("probe rechazado: status %d", resp.StatusCode)
	}

	msg := eb.Message
	if eb.Detail != "" {
		msg = eb.Detail
	}
	if eb.Code == codeRepositoryNotFound {
		return fmt.Errorf("%w: %s", domain.ErrRepositoryNotFound, msg)
	}
	return fmt.Errorf("probe rechazado: %s", msg)
}

var _ Prober = (*HTTPProber)(nil)
