package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/ThatCatDev/slusha/server/internal/chat"
	"github.com/ThatCatDev/slusha/server/pkg/api"
)

// ChatHandler serves chat turns and context previews.
type ChatHandler struct {
	Chat *chat.Service
}

// SendMessage handles POST /v1/chats/{id}/messages.
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid chat id")
		return
	}

	var req api.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	turn, err := h.Chat.SendMessage(r.Context(), id, req.Content)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, api.SendMessageResponse{
		UserMessage:      toAPIMessage(turn.UserMessage),
		AssistantMessage: toAPIMessage(turn.AssistantMessage),
		RetrievalScores:  turn.RetrievalScores,
	})
}

// Context handles POST /v1/chats/{id}/context.
func (h *ChatHandler) Context(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid chat id")
		return
	}

	var req api.ContextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	p, err := h.Chat.PreviewContext(r.Context(), id, req.Message)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	rc := p.Context
	lorebook := rc.LorebookContext
	if lorebook == nil {
		lorebook = []string{}
	}
	writeJSON(w, http.StatusOK, api.ContextResponse{
		RecentMessages:   toAPIMessages(rc.RecentMessages),
		RelevantMessages: toAPIMessages(rc.RelevantMessages),
		CombinedMessages: toAPIMessages(rc.CombinedMessages),
		LorebookContext:  lorebook,
		RetrievalScores:  rc.RetrievalScores,
		RAGEnabled:       rc.MemoryEnabled,
		Formatted:        p.Formatted,
	})
}
