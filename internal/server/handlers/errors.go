package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/ThatCatDev/slusha/server/internal/chat"
	"github.com/ThatCatDev/slusha/server/internal/memory"
	"github.com/ThatCatDev/slusha/server/internal/store"
	"github.com/ThatCatDev/slusha/server/pkg/api"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, api.ErrorResponse{
		Error: api.ErrorDetail{
			Message: message,
			Type:    errType,
			Code:    strconv.Itoa(status),
		},
	})
}

// writeServiceError maps domain errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, chat.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, chat.ErrGeneration):
		writeError(w, http.StatusBadGateway, "generation_error", err.Error())
	case errors.Is(err, memory.ErrDisabled):
		writeError(w, http.StatusConflict, "memory_disabled", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}

// pathID reads an int64 route variable.
func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func toAPIMessage(m store.Message) api.Message {
	return api.Message{ID: m.ID, Role: m.Role, Content: m.Content, CreatedAt: m.CreatedAt}
}

func toAPIMessages(msgs []store.Message) []api.Message {
	out := make([]api.Message, len(msgs))
	for i, m := range msgs {
		out[i] = toAPIMessage(m)
	}
	return out
}
