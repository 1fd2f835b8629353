package handlers

import (
	"net/http"

	"github.com/ThatCatDev/slusha/server/internal/memory"
	"github.com/ThatCatDev/slusha/server/internal/store"
	"github.com/ThatCatDev/slusha/server/pkg/api"
)

// MemoryHandler exposes per-chat memory maintenance.
type MemoryHandler struct {
	Memory        *memory.Coordinator
	Conversations store.ConversationStore
}

// chatID resolves the {id} route variable to an existing conversation,
// writing the error response itself when it cannot.
func (h *MemoryHandler) chatID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid chat id")
		return 0, false
	}
	if _, err := h.Conversations.Conversation(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return 0, false
	}
	return id, true
}

// Stats handles GET /v1/chats/{id}/memory/stats.
func (h *MemoryHandler) Stats(w http.ResponseWriter, r *http.Request) {
	id, ok := h.chatID(w, r)
	if !ok {
		return
	}

	s, err := h.Memory.Stats(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, api.MemoryStatsResponse{
		ChatID:         id,
		RAGEnabled:     s.Enabled,
		TotalMessages:  s.TotalMessages,
		TotalVectors:   s.TotalVectors,
		UserCount:      s.UserCount,
		AssistantCount: s.AssistantCount,
		Dimension:      s.Dimension,
	})
}

// List handles GET /v1/chats/{id}/memory.
func (h *MemoryHandler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := h.chatID(w, r)
	if !ok {
		return
	}

	entries, err := h.Memory.Memories(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	memories := make([]api.MemoryEntry, len(entries))
	for i, e := range entries {
		memories[i] = api.MemoryEntry{
			MessageID:      e.MessageID,
			ContentPreview: e.ContentPreview,
			Role:           e.Role,
			CreatedAt:      e.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, api.MemoryListResponse{ChatID: id, Memories: memories, Count: len(memories)})
}

// Reindex handles POST /v1/chats/{id}/memory/reindex.
func (h *MemoryHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	id, ok := h.chatID(w, r)
	if !ok {
		return
	}

	n, err := h.Memory.Reindex(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.ReindexResponse{ChatID: id, Processed: n})
}

// Index handles POST /v1/chats/{id}/memory/index.
func (h *MemoryHandler) Index(w http.ResponseWriter, r *http.Request) {
	id, ok := h.chatID(w, r)
	if !ok {
		return
	}
	if !h.Memory.Enabled() {
		writeServiceError(w, memory.ErrDisabled)
		return
	}

	n := h.Memory.IndexExistingMessages(r.Context(), id)
	writeJSON(w, http.StatusOK, api.ReindexResponse{ChatID: id, Processed: n})
}

// Clear handles DELETE /v1/chats/{id}/memory.
func (h *MemoryHandler) Clear(w http.ResponseWriter, r *http.Request) {
	id, ok := h.chatID(w, r)
	if !ok {
		return
	}

	if err := h.Memory.DeleteConversationMemory(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.StatusResponse{Status: "cleared"})
}

// Delete handles DELETE /v1/chats/{id}/memory/{messageID}.
func (h *MemoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.chatID(w, r)
	if !ok {
		return
	}
	msgID, ok := pathID(r, "messageID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid message id")
		return
	}

	found, err := h.Memory.DeleteMessageMemory(r.Context(), id, msgID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "not_found", "message is not indexed")
		return
	}
	writeJSON(w, http.StatusOK, api.StatusResponse{Status: "deleted"})
}
