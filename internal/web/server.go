package web

import (
	"context"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"lucarne/internal/config"
)

// Server is the public static file server rooted at the work dir. It
// serves photos, timelapses, daylight pages and cameras.json; all
// dynamic endpoints live on the admin server.
type Server struct {
	srv *http.Server
}

// NewServer builds the public server, or nil when disabled.
func NewServer(cfg *config.Config) *Server {
	if !cfg.HTTP.Enabled {
		return nil
	}

	fs := http.FileServer(http.Dir(cfg.Global.WorkDir))
	mux := http.NewServeMux()
	mux.Handle("/", fs)

	return &Server{
		srv: &http.Server{
			Addr:              cfg.HTTP.Listen,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start serves in a background goroutine.
func (s *Server) Start() {
	if s == nil {
		return
	}
	go func() {
		log.Infof("Public server listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("Public server failed: %v", err)
		}
	}()
}

// Stop gracefully drains connections.
func (s *Server) Stop(ctx context.Context) {
	if s == nil {
		return
	}
	if err := s.srv.Shutdown(ctx); err != nil {
		log.Warnf("Public server shutdown: %v", err)
	}
}
