package agent_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docsight/docsight/internal/agent"
	"github.com/docsight/docsight/internal/domain"
	"github.com/docsight/docsight/internal/reasoning"
	"github.com/docsight/docsight/internal/store/memory"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type planReply struct {
	raw []byte
	err error
}

type mockPlanner struct {
	mu      sync.Mutex
	replies []planReply
	calls   [][]domain.ConversationEntry
	schemas []string
}

func (m *mockPlanner) Plan(_ context.Context, schema string, entries []domain.ConversationEntry) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, entries)
	m.schemas = append(m.schemas, schema)

	if len(m.replies) == 0 {
		return nil, errors.New("mockPlanner: no replies left")
	}
	reply := m.replies[0]
	m.replies = m.replies[1:]
	return reply.raw, reply.err
}

type mockExecutor struct {
	executeFunc func(ctx context.Context, query string) (*domain.TableResult, error)
	queries     []string
}

func (m *mockExecutor) Execute(ctx context.Context, query string) (*domain.TableResult, error) {
	m.queries = append(m.queries, query)
	return m.executeFunc(ctx, query)
}

type mockPublisher struct {
	mu       sync.Mutex
	channels []string
	events   []agent.TurnEvent
}

func (m *mockPublisher) Publish(_ context.Context, channel string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var evt agent.TurnEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return err
	}
	m.channels = append(m.channels, channel)
	m.events = append(m.events, evt)
	return nil
}

func (m *mockPublisher) eventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, len(m.events))
	for i, e := range m.events {
		out[i] = e.Type
	}
	return out
}

type mockNotifier struct {
	mu      sync.Mutex
	results []*domain.InsightResult
}

func (m *mockNotifier) InsightCompleted(_ context.Context, _ *domain.Session, result *domain.InsightResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, result)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func queryReply(sql, reasoning string) planReply {
	return planReply{raw: fmt.Appendf(nil, `{"action":"query","sql":%q,"reasoning":%q}`, sql, reasoning)}
}

func insightReply(summary string) planReply {
	return planReply{raw: fmt.Appendf(nil,
		`{"action":"insight","summary":%q,"insights":[{"title":"Growth","description":"Q3 up 12%%","type":"trend","priority":"high"}]}`,
		summary)}
}

func tableRows(n int) *domain.TableResult {
	rows := make([]map[string]any, n)
	for i := range rows {
		rows[i] = map[string]any{"amount": i}
	}
	return &domain.TableResult{Columns: []string{"amount"}, Rows: rows, RowCount: n}
}

// newRunEnv seeds a session with an in-flight turn and a pending assistant
// message, exactly as the insight handler does before handing off.
func newRunEnv(t *testing.T) (*memory.Store, *domain.Session, *domain.Message) {
	t.Helper()

	store := memory.New()
	ctx := context.Background()

	session := &domain.Session{
		ID: uuid.New(),
		Document: &domain.Document{
			FileName:  "sales.csv",
			PageCount: 1,
			Pages:     []domain.Page{{PageNumber: 1, Text: "data"}},
		},
		Schema:    "Table: ds_test\nColumns: amount\nRow count: 120",
		TableName: "ds_test",
		CreatedAt: time.Now(),
	}
	require.NoError(t, store.Sessions().Create(ctx, session))
	require.NoError(t, store.Sessions().BeginTurn(ctx, session.ID))

	pending := &domain.Message{
		ID:        uuid.New(),
		SessionID: session.ID,
		Role:      domain.RoleAssistant,
		Pending:   true,
		CreatedAt: time.Now(),
	}
	require.NoError(t, store.Messages().Append(ctx, pending))

	return store, session, pending
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestInsightRun_QueryThenInsight(t *testing.T) {
	t.Parallel()

	store, session, pending := newRunEnv(t)
	planner := &mockPlanner{replies: []planReply{
		queryReply("SELECT * FROM t", "inspect data"),
		insightReply("Revenue grew 12%"),
	}}
	exec := &mockExecutor{executeFunc: func(_ context.Context, _ string) (*domain.TableResult, error) {
		return tableRows(120), nil
	}}
	pub := &mockPublisher{}
	notifier := &mockNotifier{}

	orch := agent.NewInsightOrchestrator(planner, exec, store.Sessions(), store.Messages(), pub, notifier)
	state := orch.Run(context.Background(), session, pending, "Analyze quarterly revenue")

	assert.Equal(t, agent.RunInsight, state)

	final, err := store.Messages().GetByID(context.Background(), session.ID, pending.ID)
	require.NoError(t, err)
	assert.False(t, final.Pending)
	assert.Equal(t, "Revenue grew 12%", final.Content)
	require.NotNil(t, final.Insight)
	assert.Equal(t, "Revenue grew 12%", final.Insight.Summary)
	require.Len(t, final.Insight.Items, 1)
	assert.Equal(t, "Growth", final.Insight.Items[0].Title)

	require.Len(t, final.Steps, 1)
	assert.Equal(t, "SELECT * FROM t", final.Steps[0].Query)
	assert.Equal(t, "inspect data", final.Steps[0].Reasoning)
	require.NotNil(t, final.Steps[0].Result)
	assert.Equal(t, 120, final.Steps[0].Result.RowCount)

	// The planner was fed the accumulated context on round two: the topic,
	// the serialized query action, and the bounded result summary.
	require.Len(t, planner.calls, 2)
	round2 := planner.calls[1]
	require.Len(t, round2, 3)
	assert.Equal(t, domain.RoleUser, round2[0].Role)
	assert.Equal(t, "Analyze quarterly revenue", round2[0].Content)
	assert.Equal(t, domain.RoleAssistant, round2[1].Role)
	assert.Contains(t, round2[1].Content, `"action":"query"`)
	assert.Contains(t, round2[1].Content, `"sql":"SELECT * FROM t"`)
	assert.Equal(t, domain.RoleUser, round2[2].Role)
	assert.Contains(t, round2[2].Content, "Query returned 120 rows")

	assert.Equal(t, []string{"step", "completed"}, pub.eventTypes())
	require.Len(t, notifier.results, 1)
	assert.Equal(t, "Revenue grew 12%", notifier.results[0].Summary)

	// Turn gate released.
	assert.NoError(t, store.Sessions().BeginTurn(context.Background(), session.ID))
}

func TestInsightRun_ExhaustsRoundBudget(t *testing.T) {
	t.Parallel()

	store, session, pending := newRunEnv(t)

	var replies []planReply
	for i := range agent.MaxRounds {
		replies = append(replies, queryReply(fmt.Sprintf("SELECT %d", i+1), "still exploring"))
	}
	// One extra reply that must never be consumed.
	replies = append(replies, insightReply("too late"))
	planner := &mockPlanner{replies: replies}

	exec := &mockExecutor{executeFunc: func(_ context.Context, _ string) (*domain.TableResult, error) {
		return tableRows(3), nil
	}}
	pub := &mockPublisher{}

	orch := agent.NewInsightOrchestrator(planner, exec, store.Sessions(), store.Messages(), pub, nil)
	state := orch.Run(context.Background(), session, pending, "")

	assert.Equal(t, agent.RunExhausted, state)
	assert.Len(t, planner.calls, agent.MaxRounds)

	final, err := store.Messages().GetByID(context.Background(), session.ID, pending.ID)
	require.NoError(t, err)
	assert.False(t, final.Pending)
	assert.Nil(t, final.Insight)
	assert.Contains(t, final.Content, "query budget")
	require.Len(t, final.Steps, agent.MaxRounds)
	assert.Equal(t, "SELECT 1", final.Steps[0].Query)
	assert.Equal(t, "SELECT 5", final.Steps[4].Query)

	// Five step events plus the terminal one.
	assert.Equal(t, []string{"step", "step", "step", "step", "step", "completed"}, pub.eventTypes())
}

func TestInsightRun_ImmediateInsight(t *testing.T) {
	t.Parallel()

	store, session, pending := newRunEnv(t)
	planner := &mockPlanner{replies: []planReply{insightReply("all clear")}}
	exec := &mockExecutor{executeFunc: func(_ context.Context, _ string) (*domain.TableResult, error) {
		t.Fatal("executor must not be called")
		return nil, nil
	}}

	orch := agent.NewInsightOrchestrator(planner, exec, store.Sessions(), store.Messages(), &mockPublisher{}, nil)
	state := orch.Run(context.Background(), session, pending, "")

	assert.Equal(t, agent.RunInsight, state)

	final, err := store.Messages().GetByID(context.Background(), session.ID, pending.ID)
	require.NoError(t, err)
	assert.Empty(t, final.Steps)
	require.NotNil(t, final.Insight)
	assert.Equal(t, "all clear", final.Content)
}

func TestInsightRun_MalformedResponseAbortsTurn(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
	}{
		{name: "unknown action", raw: `{"action":"unknown"}`},
		{name: "sql not a string", raw: `{"action":"query","sql":123,"reasoning":"r"}`},
		{name: "not JSON", raw: "I could not decide"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			store, session, pending := newRunEnv(t)
			planner := &mockPlanner{replies: []planReply{{raw: []byte(tc.raw)}}}
			exec := &mockExecutor{executeFunc: func(_ context.Context, _ string) (*domain.TableResult, error) {
				t.Fatal("executor must not be called")
				return nil, nil
			}}

			orch := agent.NewInsightOrchestrator(planner, exec, store.Sessions(), store.Messages(), &mockPublisher{}, nil)
			state := orch.Run(context.Background(), session, pending, "")

			assert.Equal(t, agent.RunError, state)
			assert.Len(t, planner.calls, 1, "no further rounds after a contract violation")

			final, err := store.Messages().GetByID(context.Background(), session.ID, pending.ID)
			require.NoError(t, err)
			assert.False(t, final.Pending)
			assert.Empty(t, final.Steps, "no step is appended for the failed round")
			assert.Contains(t, final.Content, "malformed reasoning response")
		})
	}
}

func TestInsightRun_TransportFailureSurfacesServerText(t *testing.T) {
	t.Parallel()

	store, session, pending := newRunEnv(t)
	planner := &mockPlanner{replies: []planReply{
		{err: &reasoning.TransportError{Status: 500, Message: "LLM API error (500): upstream exploded"}},
	}}

	orch := agent.NewInsightOrchestrator(planner, &mockExecutor{executeFunc: func(_ context.Context, _ string) (*domain.TableResult, error) {
		return nil, agent.ErrExecutorUnavailable
	}}, store.Sessions(), store.Messages(), &mockPublisher{}, nil)
	state := orch.Run(context.Background(), session, pending, "")

	assert.Equal(t, agent.RunError, state)
	assert.Len(t, planner.calls, 1)

	final, err := store.Messages().GetByID(context.Background(), session.ID, pending.ID)
	require.NoError(t, err)
	assert.False(t, final.Pending)
	assert.Empty(t, final.Steps)
	assert.Equal(t, "LLM API error (500): upstream exploded", final.Content)

	// The gate is released even on error.
	assert.NoError(t, store.Sessions().BeginTurn(context.Background(), session.ID))
}

func TestInsightRun_ExecutorFailureDegradesAndContinues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
	}{
		{name: "executor unavailable", err: agent.ErrExecutorUnavailable},
		{name: "query rejected", err: fmt.Errorf("%w: relation \"missing\" does not exist", agent.ErrQueryFailed)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			store, session, pending := newRunEnv(t)
			planner := &mockPlanner{replies: []planReply{
				queryReply("SELECT * FROM missing", "probe"),
				insightReply("done"),
			}}
			exec := &mockExecutor{executeFunc: func(_ context.Context, _ string) (*domain.TableResult, error) {
				return nil, tc.err
			}}

			orch := agent.NewInsightOrchestrator(planner, exec, store.Sessions(), store.Messages(), &mockPublisher{}, nil)
			state := orch.Run(context.Background(), session, pending, "")

			assert.Equal(t, agent.RunInsight, state, "the loop proceeds past the failed round")
			require.Len(t, planner.calls, 2)

			final, err := store.Messages().GetByID(context.Background(), session.ID, pending.ID)
			require.NoError(t, err)
			require.Len(t, final.Steps, 1)

			result := final.Steps[0].Result
			require.NotNil(t, result)
			assert.Equal(t, []string{"error"}, result.Columns)
			assert.Zero(t, result.RowCount)
			require.Len(t, result.Rows, 1)
			assert.Contains(t, result.Rows[0]["error"], tc.err.Error())

			// Round two sees the failure detail and can self-correct.
			round2 := planner.calls[1]
			assert.Contains(t, round2[len(round2)-1].Content, "error")
		})
	}
}

func TestInsightRun_ResultSerializationTruncatesAtFiftyRows(t *testing.T) {
	t.Parallel()

	store, session, pending := newRunEnv(t)
	planner := &mockPlanner{replies: []planReply{
		queryReply("SELECT * FROM big", "look at everything"),
		insightReply("done"),
	}}
	exec := &mockExecutor{executeFunc: func(_ context.Context, _ string) (*domain.TableResult, error) {
		return tableRows(500), nil
	}}

	orch := agent.NewInsightOrchestrator(planner, exec, store.Sessions(), store.Messages(), &mockPublisher{}, nil)
	orch.Run(context.Background(), session, pending, "")

	require.Len(t, planner.calls, 2)
	round2 := planner.calls[1]
	summary := round2[len(round2)-1].Content
	assert.Contains(t, summary, "Query returned 500 rows")
	assert.Contains(t, summary, "Showing first 50")

	_, encoded, found := strings.Cut(summary, "\n")
	require.True(t, found)

	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(encoded), &rows))
	assert.Len(t, rows, 50)

	// The step record itself keeps the full result.
	final, err := store.Messages().GetByID(context.Background(), session.ID, pending.ID)
	require.NoError(t, err)
	require.Len(t, final.Steps, 1)
	assert.Equal(t, 500, final.Steps[0].Result.RowCount)
}

func TestInsightRun_DefaultTopicSeedsHistory(t *testing.T) {
	t.Parallel()

	store, session, pending := newRunEnv(t)
	planner := &mockPlanner{replies: []planReply{insightReply("done")}}

	orch := agent.NewInsightOrchestrator(planner, &mockExecutor{executeFunc: func(_ context.Context, _ string) (*domain.TableResult, error) {
		return nil, agent.ErrExecutorUnavailable
	}}, store.Sessions(), store.Messages(), &mockPublisher{}, nil)
	orch.Run(context.Background(), session, pending, "")

	require.Len(t, planner.calls, 1)
	require.Len(t, planner.calls[0], 1)
	assert.Equal(t, domain.RoleUser, planner.calls[0][0].Role)
	assert.NotEmpty(t, planner.calls[0][0].Content)
	assert.Equal(t, session.Schema, planner.schemas[0])
}
