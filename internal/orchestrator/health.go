package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// HealthServer responde 200 "OK" en / y /health. Existe para los health
// checks de la plataforma de despliegue; no expone estado interno.
type HealthServer struct {
	srv *http.Server
}

// NewHealthServer crea el servidor en el puerto dado.
func NewHealthServer(port int) *HealthServer {
	mux := http.NewServeMux()
	ok := func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	}
	mux.HandleFunc("/", ok)
	mux.HandleFunc("/health", ok)

	return &HealthServer{
		srv: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
		},
	}
}

// Start arranca el servidor en segundo plano.
func (h *HealthServer) Start() {
	go func() {
		if err := h.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("health server failed", "err", err)
		}
	}()
	slog.Info("health server listening", "addr", h.srv.Addr)
}

// Stop apaga el servidor con gracia.
func (h *HealthServer) Stop(ctx context.Context) error {
	return h.srv.Shutdown(ctx)
}
