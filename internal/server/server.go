package server

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/ThatCatDev/slusha/server/internal/chat"
	"github.com/ThatCatDev/slusha/server/internal/config"
	"github.com/ThatCatDev/slusha/server/internal/logging"
	"github.com/ThatCatDev/slusha/server/internal/memory"
	"github.com/ThatCatDev/slusha/server/internal/store"
)

const shutdownTimeout = 5 * time.Second

// Deps are the services the HTTP layer drives.
type Deps struct {
	Chat   *chat.Service
	Memory *memory.Coordinator
	Store  store.ConversationStore
	// Closers are closed in order after shutdown, once background
	// indexing has drained.
	Closers []io.Closer
}

// Server is the slusha HTTP API server.
type Server struct {
	cfg  *config.Config
	deps Deps
	http *http.Server
	log  logrus.FieldLogger
}

// New creates a new Server.
func New(cfg *config.Config, deps Deps, log logrus.FieldLogger) *Server {
	s := &Server{
		cfg:  cfg,
		deps: deps,
		log:  logging.OrDiscard(log),
	}

	r := mux.NewRouter()
	s.registerRoutes(r)

	s.http = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           withLogging(s.log, withCORS(r)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Handler exposes the routed handler chain.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start starts the server and blocks until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"addr":          s.http.Addr,
		"rag_enabled":   s.cfg.RAG.Enabled,
		"index_backend": s.cfg.IndexBackend,
		"store_backend": s.cfg.StoreBackend,
	}).Info("Slusha server listening")

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		s.log.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			s.log.WithError(err).Error("Server shutdown error")
		}
		s.release()
		return nil
	case err := <-errCh:
		s.release()
		return err
	}
}

func (s *Server) release() {
	if s.deps.Memory != nil {
		s.deps.Memory.Wait()
	}
	for _, c := range s.deps.Closers {
		if err := c.Close(); err != nil {
			s.log.WithError(err).Warn("Close failed")
		}
	}
}
