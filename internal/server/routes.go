package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/ThatCatDev/slusha/server/internal/server/handlers"
)

const requestIDHeader = "X-Request-ID"

func (s *Server) registerRoutes(r *mux.Router) {
	r.HandleFunc("/health", handlers.Health).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1/chats/{id:[0-9]+}").Subrouter()

	chat := &handlers.ChatHandler{Chat: s.deps.Chat}
	v1.HandleFunc("/messages", chat.SendMessage).Methods(http.MethodPost)
	v1.HandleFunc("/context", chat.Context).Methods(http.MethodPost)

	mem := &handlers.MemoryHandler{Memory: s.deps.Memory, Conversations: s.deps.Store}
	v1.HandleFunc("/memory/stats", mem.Stats).Methods(http.MethodGet)
	v1.HandleFunc("/memory/reindex", mem.Reindex).Methods(http.MethodPost)
	v1.HandleFunc("/memory/index", mem.Index).Methods(http.MethodPost)
	v1.HandleFunc("/memory", mem.List).Methods(http.MethodGet)
	v1.HandleFunc("/memory", mem.Clear).Methods(http.MethodDelete)
	v1.HandleFunc("/memory/{messageID:[0-9]+}", mem.Delete).Methods(http.MethodDelete)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func withLogging(log logrus.FieldLogger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		log.WithFields(logrus.Fields{
			"request_id": id,
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     rec.status,
			"duration":   time.Since(start).String(),
		}).Info("HTTP request")
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
