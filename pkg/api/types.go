package api

import "time"

// Message is a chat message as exposed over HTTP.
type Message struct {
	ID        int64     `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// SendMessageRequest is the body of POST /v1/chats/{id}/messages.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// SendMessageResponse carries both sides of a completed turn.
type SendMessageResponse struct {
	UserMessage      Message           `json:"user_message"`
	AssistantMessage Message           `json:"assistant_message"`
	RetrievalScores  map[int64]float64 `json:"retrieval_scores,omitempty"`
}

// ContextRequest is the body of POST /v1/chats/{id}/context.
type ContextRequest struct {
	Message string `json:"message"`
}

// ContextResponse previews what a turn would feed the model.
type ContextResponse struct {
	RecentMessages   []Message         `json:"recent_messages"`
	RelevantMessages []Message         `json:"relevant_messages"`
	CombinedMessages []Message         `json:"combined_messages"`
	LorebookContext  []string          `json:"lorebook_context"`
	RetrievalScores  map[int64]float64 `json:"retrieval_scores"`
	RAGEnabled       bool              `json:"rag_enabled"`
	Formatted        string            `json:"formatted"`
}

// MemoryStatsResponse is returned by GET /v1/chats/{id}/memory/stats.
type MemoryStatsResponse struct {
	ChatID         int64 `json:"chat_id"`
	RAGEnabled     bool  `json:"rag_enabled"`
	TotalMessages  int   `json:"total_messages"`
	TotalVectors   int   `json:"total_vectors"`
	UserCount      int   `json:"user_count"`
	AssistantCount int   `json:"assistant_count"`
	Dimension      int   `json:"dimension"`
}

// MemoryEntry is one indexed message.
type MemoryEntry struct {
	MessageID      int64     `json:"message_id"`
	ContentPreview string    `json:"content_preview"`
	Role           string    `json:"role"`
	CreatedAt      time.Time `json:"created_at"`
}

// MemoryListResponse is returned by GET /v1/chats/{id}/memory.
type MemoryListResponse struct {
	ChatID   int64         `json:"chat_id"`
	Memories []MemoryEntry `json:"memories"`
	Count    int           `json:"count"`
}

// ReindexResponse reports how many messages were embedded.
type ReindexResponse struct {
	ChatID    int64 `json:"chat_id"`
	Processed int   `json:"processed"`
}

// StatusResponse is a generic acknowledgement.
type StatusResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes an error.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}
