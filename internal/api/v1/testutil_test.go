package v1_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/docsight/docsight/internal/agent"
	v1 "github.com/docsight/docsight/internal/api/v1"
	"github.com/docsight/docsight/internal/domain"
	"github.com/docsight/docsight/internal/store/memory"
)

// mockChatRunner mimics the real orchestrator's contract: commit the
// terminal snapshot, release the turn gate, return the final message.
type mockChatRunner struct {
	store   *memory.Store
	answer  string
	pages   []int
	entries []domain.ConversationEntry
}

func (m *mockChatRunner) Run(ctx context.Context, session *domain.Session, msg *domain.Message, entries []domain.ConversationEntry) *domain.Message {
	defer m.store.Sessions().EndTurn(ctx, session.ID) //nolint:errcheck

	m.entries = entries
	msg.Content = m.answer
	msg.PageRefs = m.pages
	msg.Pending = false
	_ = m.store.Messages().Update(ctx, msg)
	return msg
}

// mockInsightRunner records the handoff and signals completion so tests can
// wait for the background goroutine.
type mockInsightRunner struct {
	store   *memory.Store
	state   agent.RunState
	topic   string
	msgID   uuid.UUID
	started chan struct{}
	release chan struct{}
}

func newMockInsightRunner(store *memory.Store) *mockInsightRunner {
	return &mockInsightRunner{
		store:   store,
		state:   agent.RunInsight,
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (m *mockInsightRunner) Run(ctx context.Context, session *domain.Session, msg *domain.Message, topic string) agent.RunState {
	m.topic = topic
	m.msgID = msg.ID
	close(m.started)
	<-m.release

	msg.Pending = false
	_ = m.store.Messages().Update(ctx, msg)
	_ = m.store.Sessions().EndTurn(ctx, session.ID)
	return m.state
}

type mockLoader struct {
	table   string
	columns []string
	err     error
	calls   int
}

func (m *mockLoader) LoadTable(_ context.Context, _ uuid.UUID, _ *domain.TabularData) (string, []string, error) {
	m.calls++
	return m.table, m.columns, m.err
}

func mustCreateSession(t *testing.T, api humatest.TestAPI, fileName, content string) *v1.SessionView {
	t.Helper()

	resp := api.Post("/sessions", map[string]any{
		"file_name": fileName,
		"content":   content,
	})
	require.Equal(t, 200, resp.Code, resp.Body.String())

	var view v1.SessionView
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &view))
	return &view
}

func decodeMessage(t *testing.T, body []byte) *domain.Message {
	t.Helper()

	var msg domain.Message
	require.NoError(t, json.Unmarshal(body, &msg))
	return &msg
}

func sessionsPath(id uuid.UUID, suffix string) string {
	return fmt.Sprintf("/sessions/%s%s", id, suffix)
}
