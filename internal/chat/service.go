// Package chat runs a chat turn: context retrieval, generation and
// memory upkeep around the stored conversation.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ThatCatDev/slusha/server/internal/chatctx"
	"github.com/ThatCatDev/slusha/server/internal/generator"
	"github.com/ThatCatDev/slusha/server/internal/logging"
	"github.com/ThatCatDev/slusha/server/internal/memory"
	"github.com/ThatCatDev/slusha/server/internal/store"
)

// ErrGeneration wraps any failure of the model call.
var ErrGeneration = errors.New("generation failed")

// ErrEmptyMessage is returned for blank user input.
var ErrEmptyMessage = errors.New("message is empty")

// Turn is the outcome of SendMessage.
type Turn struct {
	UserMessage      store.Message
	AssistantMessage store.Message
	RetrievalScores  map[int64]float64
}

// Preview is the context a message would be answered with.
type Preview struct {
	Context   *chatctx.RetrievedContext
	Formatted string
}

type Service struct {
	store      store.Store
	retriever  *chatctx.Retriever
	memory     *memory.Coordinator
	generator  generator.Generator
	maxHistory int
	log        logrus.FieldLogger
}

func NewService(st store.Store, retriever *chatctx.Retriever, coord *memory.Coordinator, gen generator.Generator, maxHistory int, log logrus.FieldLogger) *Service {
	return &Service{
		store:      st,
		retriever:  retriever,
		memory:     coord,
		generator:  gen,
		maxHistory: maxHistory,
		log:        logging.OrDiscard(log).WithField("component", "chat"),
	}
}

// SendMessage answers text in a conversation. Only the primary store and
// the model call can fail it; memory problems degrade the context.
func (s *Service) SendMessage(ctx context.Context, conversationID int64, text string) (*Turn, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}
	log := s.log.WithField("conversation_id", conversationID)

	conv, rc, err := s.gather(ctx, conversationID, text)
	if err != nil {
		return nil, err
	}

	user, err := s.store.CreateMessage(ctx, store.Message{
		ConversationID: conversationID,
		Role:           store.RoleUser,
		Content:        text,
	})
	if err != nil {
		return nil, fmt.Errorf("save user message: %w", err)
	}

	reply, err := s.generator.Generate(ctx, generator.Request{
		System:  systemPrompt(conv, rc),
		History: generator.Trim(rc.CombinedMessages, s.maxHistory),
		Message: chatctx.ReplacePlaceholders(text, names(conv)),
	})
	if err != nil {
		// Rollback uses a detached context so a cancelled request still cleans up.
		if derr := s.store.DeleteMessage(context.WithoutCancel(ctx), conversationID, user.ID); derr != nil {
			log.WithError(derr).WithField("message_id", user.ID).Error("Failed to roll back user message")
		}
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	assistant, err := s.store.CreateMessage(ctx, store.Message{
		ConversationID: conversationID,
		Role:           store.RoleAssistant,
		Content:        reply,
	})
	if err != nil {
		return nil, fmt.Errorf("save assistant message: %w", err)
	}

	s.memory.StoreMessageAsync(ctx, user)
	s.memory.StoreMessageAsync(ctx, assistant)

	log.WithFields(logrus.Fields{
		"relevant": len(rc.RelevantMessages),
		"recent":   len(rc.RecentMessages),
		"lorebook": len(rc.LorebookContext),
	}).Debug("Answered message")

	return &Turn{
		UserMessage:      user,
		AssistantMessage: assistant,
		RetrievalScores:  rc.RetrievalScores,
	}, nil
}

// PreviewContext builds the context for text without writing anything
// except a first-time index of the history.
func (s *Service) PreviewContext(ctx context.Context, conversationID int64, text string) (*Preview, error) {
	_, rc, err := s.gather(ctx, conversationID, text)
	if err != nil {
		return nil, err
	}
	return &Preview{Context: rc, Formatted: chatctx.FormatContext(rc)}, nil
}

func (s *Service) gather(ctx context.Context, conversationID int64, text string) (store.Conversation, *chatctx.RetrievedContext, error) {
	conv, err := s.store.Conversation(ctx, conversationID)
	if err != nil {
		return store.Conversation{}, nil, fmt.Errorf("load conversation: %w", err)
	}

	s.memory.EnsureIndexed(ctx, conversationID)

	rc, err := s.retriever.GetContext(ctx, conversationID, text, names(conv))
	if err != nil {
		return store.Conversation{}, nil, fmt.Errorf("get context: %w", err)
	}
	return conv, rc, nil
}

func names(c store.Conversation) chatctx.Names {
	return chatctx.Names{User: c.UserName, Character: c.CharacterName}
}

// systemPrompt joins the character prompt with the retrieved context block.
func systemPrompt(c store.Conversation, rc *chatctx.RetrievedContext) string {
	prompt := chatctx.ReplacePlaceholders(c.CharacterPrompt, names(c))
	block := chatctx.FormatContext(rc)
	switch {
	case block == "":
		return prompt
	case prompt == "":
		return block
	default:
		return prompt + "\n\n" + block
	}
}
