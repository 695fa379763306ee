package notify_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/snapguard/snapguard/internal/domain"
	"github.com/snapguard/snapguard/internal/notify"
)

type sentMail struct {
	to, subject, html, text string
}

// captureSender junta los despachos en un canal: el notifier envía en
// background y el test necesita un punto de sincronización.
type captureSender struct {
	msgs chan sentMail
}

func newCaptureSender() *captureSender {
	return &captureSender{msgs: make(chan sentMail, 4)}
}

func (c *captureSender) Send(to, subject, htmlBody, textBody string) error {
	c.msgs <- sentMail{to: to, subject: subject, html: htmlBody, text: textBody}
	return nil
}

func (c *captureSender) receive(t *testing.T) sentMail {
	t.Helper()
	select {
	case m := <-c.msgs:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("no llegó ningún despacho")
		return sentMail{}
	}
}

func (c *captureSender) expectNone(t *testing.T) {
	t.Helper()
	select {
	case m := <-c.msgs:
		t.Fatalf("despacho inesperado: %q", m.subject)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNotifier_DisabledIsNoop(t *testing.T) {
	for _, n := range []*notify.Notifier{
		notify.New(nil, "ops@example.com"),
		notify.New(newCaptureSender(), ""),
	} {
		if n.Enabled() {
			t.Fatal("notifier sin sender o sin destinatario debería estar deshabilitado")
		}
		// Deshabilitado, los despachos son no-ops silenciosos.
		n.VerificationFailed(domain.VerificationOutcome{
			Repository: "backup-1",
			Failures:   map[string]domain.ProbeError{"n2": {Kind: domain.ProbeRejected}},
		})
		n.CleanupFailed("backup-1", errors.New("boom"))
	}
}

func TestNotifier_VerificationFailedCarriesPerNodeDetail(t *testing.T) {
	sender := newCaptureSender()
	n := notify.New(sender, "ops@example.com")
	if !n.Enabled() {
		t.Fatal("notifier con sender y destinatario debería estar habilitado")
	}

	n.VerificationFailed(domain.VerificationOutcome{
		Repository: "backup-1",
		Token:      "tok-abc",
		Nodes:      []string{"n1"},
		Failures: map[string]domain.ProbeError{
			"n3": {Kind: domain.ProbeNodeUnreachable, Message: "dial tcp: timeout"},
			"n2": {Kind: domain.ProbeRejected, Message: "write denied"},
		},
		StartedAt: time.Now(),
		Duration:  120 * time.Millisecond,
	})

	m := sender.receive(t)
	if m.to != "ops@example.com" {
		t.Fatalf("destinatario = %q", m.to)
	}
	if !strings.Contains(m.subject, `"backup-1"`) || !strings.Contains(m.subject, "2 nodo(s)") {
		t.Fatalf("subject = %q", m.subject)
	}
	// El detalle por nodo viaja ordenado en ambos cuerpos.
	for _, want := range []string{"n2", "n3", "node_unreachable", "write denied", "tok-abc"} {
		if !strings.Contains(m.text, want) {
			t.Fatalf("cuerpo de texto sin %q:\n%s", want, m.text)
		}
	}
	if idx2, idx3 := strings.Index(m.text, "- n2"), strings.Index(m.text, "- n3"); idx2 > idx3 {
		t.Fatalf("detalle fuera de orden:\n%s", m.text)
	}
	if !strings.Contains(m.html, "<td>n2</td>") || !strings.Contains(m.html, "backup-1") {
		t.Fatalf("cuerpo html = %q", m.html)
	}
}

func TestNotifier_FavorableVerdictIsNotAlerted(t *testing.T) {
	sender := newCaptureSender()
	n := notify.New(sender, "ops@example.com")

	n.VerificationFailed(domain.VerificationOutcome{
		Repository: "backup-1",
		Nodes:      []string{"n1", "n2"},
	})

	sender.expectNone(t)
}

func TestNotifier_CleanupFailed(t *testing.T) {
	sender := newCaptureSender()
	n := notify.New(sender, "ops@example.com")

	n.CleanupFailed("backup-1", errors.New("el registro no se pudo retirar"))

	m := sender.receive(t)
	if !strings.Contains(m.subject, `"backup-1"`) {
		t.Fatalf("subject = %q", m.subject)
	}
	if !strings.Contains(m.text, "el registro no se pudo retirar") {
		t.Fatalf("cuerpo de texto = %q", m.text)
	}

	// Sin error no hay nada que alertar.
	n.CleanupFailed("backup-1", nil)
	sender.expectNone(t)
}
