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

type StartInsightInput struct {
	ID   uuid.UUID `path:"id" doc:"Session ID"`
	Body struct {
		Topic string `json:"topic,omitempty" maxLength:"500" doc:"Optional focus for the analysis"`
	}
}

type StartInsightOutput struct {
	Body *domain.Message
}

func RegisterInsightRoutes(api huma.API, store DataStore, runner InsightRunner) {
	huma.Register(api, huma.Operation{
		OperationID:   "start-insight",
		Method:        http.MethodPost,
		Path:          "/sessions/{id}/insight",
		Summary:       "Start an autonomous insight run",
		Description:   "Starts the bounded analysis loop in the background and returns the pending assistant message. Stream progress over /ws/turns/{messageID} or poll the message.",
		Tags:          []string{"Insights"},
		DefaultStatus: http.StatusAccepted,
	}, func(ctx context.Context, input *StartInsightInput) (*StartInsightOutput, error) {
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

		now := time.Now()
		content := input.Body.Topic
		if content == "" {
			content = "Generate insights from this document's data"
		}

		userMsg := &domain.Message{
			ID:        uuid.New(),
			SessionID: session.ID,
			Role:      domain.RoleUser,
			Content:   content,
			CreatedAt: now,
		}
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

		// The run outlives this request; it commits progress and the
		// terminal snapshot by message ID and releases the turn gate.
		go runner.Run(context.WithoutCancel(ctx), session, pending, input.Body.Topic)

		return &StartInsightOutput{Body: pending}, nil
	})
}
