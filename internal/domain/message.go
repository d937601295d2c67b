package domain

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationEntry is the serialized unit sent to the reasoning service.
// It is a projection of Message: pending/step/result fields are stripped.
type ConversationEntry struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// InsightType classifies a single insight item.
type InsightType string

const (
	InsightTypeTrend          InsightType = "trend"
	InsightTypeAnomaly        InsightType = "anomaly"
	InsightTypeRecommendation InsightType = "recommendation"
	InsightTypeObservation    InsightType = "observation"
)

func (t InsightType) Valid() bool {
	switch t {
	case InsightTypeTrend, InsightTypeAnomaly, InsightTypeRecommendation, InsightTypeObservation:
		return true
	default:
		return false
	}
}

// InsightPriority ranks how actionable an insight item is.
type InsightPriority string

const (
	PriorityHigh   InsightPriority = "high"
	PriorityMedium InsightPriority = "medium"
	PriorityLow    InsightPriority = "low"
)

func (p InsightPriority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	default:
		return false
	}
}

// InsightItem is a single finding in the final report. Items pass through
// the orchestration loop verbatim from the reasoning service.
type InsightItem struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Type        InsightType     `json:"type"`
	Priority    InsightPriority `json:"priority"`
}

// InsightResult is the terminal payload of a successful insight run.
type InsightResult struct {
	Summary string        `json:"summary"`
	Items   []InsightItem `json:"items"`
}

// TableResult is the uniform tabular shape produced by the query executor.
// RowCount is zero for the degraded error-row placeholder so downstream
// consumers can tell real rows from failure detail.
type TableResult struct {
	Columns  []string         `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"row_count"`
}

// StepRecord captures one round of the insight loop. Records are immutable
// once appended; the slice index is the round number (1-based).
type StepRecord struct {
	Query     string       `json:"query"`
	Reasoning string       `json:"reasoning"`
	Result    *TableResult `json:"result,omitempty"`
}

// Message is one entry in a session's chat transcript. The orchestrator
// owns the message it created for the current turn exclusively until the
// turn reaches a terminal state; Pending transitions to false exactly once.
type Message struct {
	ID        uuid.UUID      `json:"id"`
	SessionID uuid.UUID      `json:"session_id"`
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	Pending   bool           `json:"pending"`
	PageRefs  []int          `json:"page_refs,omitempty"`
	Steps     []StepRecord   `json:"steps,omitempty"`
	Insight   *InsightResult `json:"insight,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Entry projects the message into the shape sent to the reasoning service.
func (m *Message) Entry() ConversationEntry {
	return ConversationEntry{Role: m.Role, Content: m.Content}
}

// ChatReply is the reasoning service's answer to a chat question.
type ChatReply struct {
	Answer string `json:"answer"`
	Pages  []int  `json:"pages,omitempty"`
}
