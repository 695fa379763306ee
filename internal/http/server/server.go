// Package server envuelve el http.Server del servicio con arranque y
// apagado ordenado. El apagado con gracia importa acá: el nodo tiene que
// drenar requests antes de cerrar raft y su store en disco.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/snapguard/snapguard/internal/observability/logger"
)

const shutdownTimeout = 15 * time.Second

// Server es el servidor HTTP del nodo.
type Server struct {
	srv *http.Server
}

// New construye el servidor. El write timeout es generoso porque una
// limpieza puede barrer miles de blobs antes de responder.
func New(addr string, handler http.Handler) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      2 * time.Minute,
			IdleTimeout:       60 * time.Second,
		},
	}
}

// Run sirve hasta que ctx se cancele y después apaga con gracia.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		err := s.srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.L().Info("shutting down http server")
	shCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shCtx); err != nil {
		return err
	}
	return <-errCh
}
