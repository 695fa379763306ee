// Package notify envía alertas operativas por email cuando una verificación
// o una limpieza terminan mal. Es best-effort: se despacha en background y
// nunca bloquea ni voltea la operación que la originó.
package notify

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/snapguard/snapguard/internal/domain"
	"github.com/snapguard/snapguard/internal/observability/logger"
)

// Sender envía un email ya compuesto. Implementado por SMTPSender.
type Sender interface {
	Send(to, subject, htmlBody, textBody string) error
}

// Notifier compone y despacha las alertas.
type Notifier struct {
	sender Sender
	to     string
}

// New crea el notifier. Con sender nil o destinatario vacío queda
// deshabilitado y todos los despachos son no-ops.
func New(sender Sender, to string) *Notifier {
	return &Notifier{sender: sender, to: to}
}

func (n *Notifier) Enabled() bool {
	return n != nil && n.sender != nil && n.to != ""
}

// VerificationFailed alerta sobre una ronda con veredicto desfavorable,
// con el detalle por nodo.
func (n *Notifier) VerificationFailed(outcome domain.VerificationOutcome) {
	if !n.Enabled() || outcome.Success() {
		return
	}

	subject := fmt.Sprintf("[snapguard] verificación de %q falló en %d nodo(s)",
		outcome.Repository, len(outcome.Failures))

	nodes := make([]string, 0, len(outcome.Failures))
	for id := range outcome.Failures {
		nodes = append(nodes, id)
	}
	sort.Strings(nodes)

	var text strings.Builder
	fmt.Fprintf(&text, "Repositorio: %s\nToken de ronda: %s\nInicio: %s\nDuración: %s\n\n",
		outcome.Repository, outcome.Token,
		outcome.StartedAt.Format(time.RFC3339), outcome.Duration)
	fmt.Fprintf(&text, "Nodos que confirmaron: %d\nNodos con fallo: %d\n\n",
		len(outcome.Nodes), len(outcome.Failures))
	for _, id := range nodes {
		pe := outcome.Failures[id]
		fmt.Fprintf(&text, "  - %s [%s]: %s\n", id, pe.Kind, pe.Message)
	}

	var html strings.Builder
	fmt.Fprintf(&html, "<p>La verificación del repositorio <b>%s</b> falló.</p>", outcome.Repository)
	html.WriteString("<table border=\"1\" cellpadding=\"4\"><tr><th>Nodo</th><th>Tipo</th><th>Error</th></tr>")
	for _, id := range nodes {
		pe := outcome.Failures[id]
		fmt.Fprintf(&html, "<tr><td>%s</td><td>%s</td><td>%s</td></tr>", id, pe.Kind, pe.Message)
	}
	html.WriteString("</table>")

	n.dispatch(subject, html.String(), text.String())
}

// CleanupFailed alerta sobre una limpieza que terminó con error.
func (n *Notifier) CleanupFailed(repository string, err error) {
	if !n.Enabled() || err == nil {
		return
	}
	subject := fmt.Sprintf("[snapguard] limpieza de %q falló", repository)
	text := fmt.Sprintf("Repositorio: %s\nError: %v\n", repository, err)
	html := fmt.Sprintf("<p>La limpieza del repositorio <b>%s</b> falló:</p><pre>%v</pre>", repository, err)
	n.dispatch(subject, html, text)
}

func (n *Notifier) dispatch(subject, htmlBody, textBody string) {
	go func() {
		if err := n.sender.Send(n.to, subject, htmlBody, textBody); err != nil {
			logger.Named("notify").Warn("alerta no enviada",
				logger.String("subject", subject), logger.Err(err))
		}
	}()
}
