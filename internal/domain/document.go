package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Page is one page of extracted document text, 1-based.
type Page struct {
	PageNumber int    `json:"page_number"`
	Text       string `json:"text"`
}

// Document is the extractor's output for an uploaded file.
type Document struct {
	FileName   string `json:"file_name"`
	PageCount  int    `json:"page_count"`
	Pages      []Page `json:"pages"`
	TotalChars int    `json:"total_chars"`
}

// TabularData is the column/row grid parsed from a CSV upload. It feeds the
// query executor's scratch-table loader.
type TabularData struct {
	Columns []string
	Rows    [][]string
}

// Session scopes one uploaded document and its chat transcript. Sessions
// live in memory only and do not survive a restart.
type Session struct {
	ID        uuid.UUID `json:"id"`
	Document  *Document `json:"document"`
	Context   string    `json:"-"` // flattened page text fed to the reasoning service
	Schema    string    `json:"-"` // schema description fed to the insight planner
	TableName string    `json:"-"` // scratch table for the query executor, empty when no tabular data
	CreatedAt time.Time `json:"created_at"`
}

type SessionRepository interface {
	Create(ctx context.Context, s *Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*Session, error)

	// BeginTurn marks the session as having a turn in flight. It fails with
	// ErrTurnInFlight when one is already running; there is no queueing and
	// an in-flight turn is never cancelled by a new one.
	BeginTurn(ctx context.Context, id uuid.UUID) error
	EndTurn(ctx context.Context, id uuid.UUID) error
}

type MessageRepository interface {
	Append(ctx context.Context, m *Message) error
	// Update commits a new snapshot of an existing message by ID.
	Update(ctx context.Context, m *Message) error
	GetByID(ctx context.Context, sessionID, id uuid.UUID) (*Message, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*Message, error)
}
