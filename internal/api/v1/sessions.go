package v1

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/docsight/docsight/internal/domain"
	"github.com/docsight/docsight/internal/extract"
)

// SessionView is the public shape of a session; context/schema internals
// stay server-side.
type SessionView struct {
	ID                 uuid.UUID `json:"id"`
	FileName           string    `json:"file_name"`
	PageCount          int       `json:"page_count"`
	TotalChars         int       `json:"total_chars"`
	HasTabularData     bool      `json:"has_tabular_data"`
	SuggestedQuestions []string  `json:"suggested_questions"`
	CreatedAt          time.Time `json:"created_at"`
}

func sessionView(s *domain.Session) *SessionView {
	return &SessionView{
		ID:                 s.ID,
		FileName:           s.Document.FileName,
		PageCount:          s.Document.PageCount,
		TotalChars:         s.Document.TotalChars,
		HasTabularData:     s.TableName != "",
		SuggestedQuestions: extract.SuggestedQuestions(s.Document),
		CreatedAt:          s.CreatedAt,
	}
}

type CreateSessionInput struct {
	Body struct {
		FileName string `json:"file_name" minLength:"1" maxLength:"255" doc:"Uploaded file name; .csv uploads feed the insight agent"`
		Content  string `json:"content" minLength:"1" doc:"Raw document text or CSV content"`
	}
}

type CreateSessionOutput struct {
	Body *SessionView
}

type GetSessionInput struct {
	ID uuid.UUID `path:"id" doc:"Session ID"`
}

type GetSessionOutput struct {
	Body *SessionView
}

type ListMessagesInput struct {
	ID uuid.UUID `path:"id" doc:"Session ID"`
}

type ListMessagesOutput struct {
	Body []*domain.Message
}

type GetMessageInput struct {
	ID        uuid.UUID `path:"id" doc:"Session ID"`
	MessageID uuid.UUID `path:"messageID" doc:"Message ID"`
}

type GetMessageOutput struct {
	Body *domain.Message
}

func RegisterSessionRoutes(api huma.API, store DataStore, loader TableLoader) {
	huma.Register(api, huma.Operation{
		OperationID: "create-session",
		Method:      http.MethodPost,
		Path:        "/sessions",
		Summary:     "Upload a document and start a session",
		Tags:        []string{"Sessions"},
	}, func(ctx context.Context, input *CreateSessionInput) (*CreateSessionOutput, error) {
		doc, tabular, err := extract.Extract(input.Body.FileName, []byte(input.Body.Content))
		if err != nil {
			return nil, huma.Error422UnprocessableEntity("could not extract document", err)
		}

		session := &domain.Session{
			ID:        uuid.New(),
			Document:  doc,
			Context:   extract.BuildContext(doc),
			Schema:    extract.NoTabularSchema,
			CreatedAt: time.Now(),
		}

		if tabular != nil && loader != nil {
			table, columns, loadErr := loader.LoadTable(ctx, session.ID, tabular)
			if loadErr != nil {
				// Degrade instead of failing the upload: chat still works,
				// and insight runs surface executor errors per the loop
				// contract.
				log.Warn().Err(loadErr).Str("session_id", session.ID.String()).Msg("tabular load degraded")
			} else {
				session.TableName = table
				session.Schema = extract.SchemaText(table, columns, tabular)
			}
		}

		if err := store.Sessions().Create(ctx, session); err != nil {
			return nil, huma.Error500InternalServerError("failed to create session", err)
		}

		return &CreateSessionOutput{Body: sessionView(session)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-session",
		Method:      http.MethodGet,
		Path:        "/sessions/{id}",
		Summary:     "Get a session by ID",
		Tags:        []string{"Sessions"},
	}, func(ctx context.Context, input *GetSessionInput) (*GetSessionOutput, error) {
		session, err := store.Sessions().GetByID(ctx, input.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("session not found")
			}
			return nil, huma.Error500InternalServerError("failed to get session", err)
		}

		return &GetSessionOutput{Body: sessionView(session)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-messages",
		Method:      http.MethodGet,
		Path:        "/sessions/{id}/messages",
		Summary:     "List the session's committed message snapshots",
		Tags:        []string{"Sessions"},
	}, func(ctx context.Context, input *ListMessagesInput) (*ListMessagesOutput, error) {
		msgs, err := store.Messages().ListBySession(ctx, input.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("session not found")
			}
			return nil, huma.Error500InternalServerError("failed to list messages", err)
		}

		return &ListMessagesOutput{Body: msgs}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-message",
		Method:      http.MethodGet,
		Path:        "/sessions/{id}/messages/{messageID}",
		Summary:     "Get one message snapshot",
		Tags:        []string{"Sessions"},
	}, func(ctx context.Context, input *GetMessageInput) (*GetMessageOutput, error) {
		msg, err := store.Messages().GetByID(ctx, input.ID, input.MessageID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("message not found")
			}
			return nil, huma.Error500InternalServerError("failed to get message", err)
		}

		return &GetMessageOutput{Body: msg}, nil
	})
}
