// Package generator produces assistant replies from a chat model.
package generator

import (
	"context"
	"errors"

	"github.com/ThatCatDev/slusha/server/internal/store"
)

// ErrEmptyResponse is returned when the model answers with no text.
var ErrEmptyResponse = errors.New("empty response from model")

// Request is one chat turn.
type Request struct {
	System  string          // character prompt plus retrieved context
	History []store.Message // oldest first
	Message string
}

type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Trim keeps the last n history messages. n <= 0 keeps everything.
func Trim(history []store.Message, n int) []store.Message {
	if n <= 0 || len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}
