package v1

import (
	"context"

	"github.com/google/uuid"

	"github.com/docsight/docsight/internal/agent"
	"github.com/docsight/docsight/internal/domain"
)

// DataStore abstracts the repository accessor pattern for handler testing.
// *memory.Store satisfies this interface.
type DataStore interface {
	Sessions() domain.SessionRepository
	Messages() domain.MessageRepository
}

// ChatRunner abstracts the single-round chat orchestrator for handler
// testing. *agent.ChatOrchestrator satisfies this interface.
type ChatRunner interface {
	Run(ctx context.Context, session *domain.Session, msg *domain.Message, entries []domain.ConversationEntry) *domain.Message
}

// InsightRunner abstracts the insight orchestration loop for handler
// testing. *agent.InsightOrchestrator satisfies this interface.
type InsightRunner interface {
	Run(ctx context.Context, session *domain.Session, msg *domain.Message, topic string) agent.RunState
}

// TableLoader loads extracted tabular data into the query engine.
// *executor.Postgres satisfies this interface.
type TableLoader interface {
	LoadTable(ctx context.Context, sessionID uuid.UUID, data *domain.TabularData) (table string, columns []string, err error)
}
