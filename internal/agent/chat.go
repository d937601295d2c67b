package agent

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/docsight/docsight/internal/domain"
)

// Answerer is the chat side of the reasoning service.
type Answerer interface {
	Chat(ctx context.Context, documentContext string, entries []domain.ConversationEntry) (*domain.ChatReply, error)
}

// ChatOrchestrator is the single-round sibling of the insight loop: one
// reasoning-service call with the full running conversation, no iteration,
// no retry. Any failure is surfaced verbatim as the assistant message
// content, ending the turn.
type ChatOrchestrator struct {
	answerer Answerer
	sessions domain.SessionRepository
	messages domain.MessageRepository
}

func NewChatOrchestrator(answerer Answerer, sessions domain.SessionRepository, messages domain.MessageRepository) *ChatOrchestrator {
	return &ChatOrchestrator{answerer: answerer, sessions: sessions, messages: messages}
}

// Run answers one chat question. entries is the full conversation including
// the just-sent user message; msg is the pending assistant message, which is
// committed exactly once with either the answer or the error text.
func (o *ChatOrchestrator) Run(ctx context.Context, session *domain.Session, msg *domain.Message, entries []domain.ConversationEntry) *domain.Message {
	defer func() {
		if err := o.sessions.EndTurn(ctx, session.ID); err != nil {
			log.Error().Err(err).Str("session_id", session.ID.String()).Msg("agent.ChatOrchestrator.Run: end turn")
		}
	}()

	reply, err := o.answerer.Chat(ctx, session.Context, entries)
	if err != nil {
		log.Error().Err(err).Str("message_id", msg.ID.String()).Msg("chat turn failed")
		msg.Content = err.Error()
	} else {
		msg.Content = reply.Answer
		msg.PageRefs = reply.Pages
	}
	msg.Pending = false

	if updateErr := o.messages.Update(ctx, msg); updateErr != nil {
		log.Error().Err(updateErr).Str("message_id", msg.ID.String()).Msg("agent.ChatOrchestrator.Run: update message")
	}

	return msg
}
