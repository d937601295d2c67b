package v1

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/docsight/docsight/internal/domain"
)

type SendChatInput struct {
	ID   uuid.UUID `path:"id" doc:"Session ID"`
	Body struct {
		Content string `json:"content" minLength:"1" maxLength:"4000" doc:"Question about the document"`
	}
}

type SendChatOutput struct {
	Body *domain.Message
}

func RegisterChatRoutes(api huma.API, store DataStore, runner ChatRunner) {
	huma.Register(api, huma.Operation{
		OperationID: "send-chat",
		Method:      http.MethodPost,
		Path:        "/sessions/{id}/chat",
		Summary:     "Ask a question about the document",
		Description: "Runs one chat turn synchronously. Only one turn may be in flight per session.",
		Tags:        []string{"Chat"},
	}, func(ctx context.Context, input *SendChatInput) (*SendChatOutput, error) {
		session, err := store.Sessions().GetByID(ctx, input.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("session not found")
			}
			return nil, huma.Error500InternalServerError("failed to get session", err)
		}

		if err := store.Sessions().BeginTurn(ctx, session.ID); err != nil {
			if errors.Is(err, domain.ErrTurnInFlight) {
				return nil, huma.Error409Conflict("a turn is already in flight for this session")
			}
			return nil, huma.Error500InternalServerError("failed to begin turn", err)
		}

		// The chat history is every committed message so far plus the new
		// question; pending messages never reach the reasoning service.
		committed, err := store.Messages().ListBySession(ctx, session.ID)
		if err != nil {
			_ = store.Sessions().EndTurn(ctx, session.ID)
			return nil, huma.Error500InternalServerError("failed to list messages", err)
		}

		entries := make([]domain.ConversationEntry, 0, len(committed)+1)
		for _, m := range committed {
			if m.Pending {
				continue
			}
			entries = append(entries, m.Entry())
		}

		now := time.Now()
		userMsg := &domain.Message{
			ID:        uuid.New(),
			SessionID: session.ID,
			Role:      domain.RoleUser,
			Content:   input.Body.Content,
			CreatedAt: now,
		}
		entries = append(entries, userMsg.Entry())

		pending := &domain.Message{
			ID:        uuid.New(),
			SessionID: session.ID,
			Role:      domain.RoleAssistant,
			Pending:   true,
			CreatedAt: now,
		}

		if err := store.Messages().Append(ctx, userMsg); err != nil {
			_ = store.Sessions().EndTurn(ctx, session.ID)
			return nil, huma.Error500InternalServerError("failed to record message", err)
		}
		if err := store.Messages().Append(ctx, pending); err != nil {
			_ = store.Sessions().EndTurn(ctx, session.ID)
			return nil, huma.Error500InternalServerError("failed to record message", err)
		}

		// Single round, synchronous; the runner commits the terminal
		// snapshot and releases the turn gate.
		final := runner.Run(ctx, session, pending, entries)

		return &SendChatOutput{Body: final}, nil
	})
}
