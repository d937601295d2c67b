package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/docsight/docsight/internal/domain"
)

// MaxRounds is the hard iteration cap of the insight loop. The reasoning
// service offers no cancellation signal, so an unbounded loop risks
// unterminated cost accumulation against a potentially non-converging
// external process. Do not enlarge this without an explicit cost budget.
const MaxRounds = 5

// maxSerializedRows bounds how many result rows are folded back into the
// conversation each round; unbounded growth would eventually exceed the
// reasoning service's input limits.
const maxSerializedRows = 50

const defaultTopic = "Explore the dataset and report the most important findings."

const exhaustedMessage = "I used my full query budget without reaching a final conclusion. " +
	"The queries I ran and their results are attached as partial progress."

// RunState is the terminal state of one insight run.
type RunState string

const (
	RunInsight   RunState = "insight"   // planner delivered a final report
	RunExhausted RunState = "exhausted" // iteration budget spent, partial results attached
	RunError     RunState = "error"     // reasoning service failed or broke its contract
)

// Planner is the insight side of the reasoning service.
type Planner interface {
	Plan(ctx context.Context, schema string, entries []domain.ConversationEntry) ([]byte, error)
}

// Publisher abstracts the pub/sub publish operation used for live progress.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Notifier is told when an insight run completes successfully. May be nil.
type Notifier interface {
	InsightCompleted(ctx context.Context, session *domain.Session, result *domain.InsightResult)
}

// TurnEvent is the progress/terminal payload published per turn.
type TurnEvent struct {
	Type      string             `json:"type"` // "step", "completed"
	MessageID uuid.UUID          `json:"message_id"`
	Round     int                `json:"round,omitempty"`
	Step      *domain.StepRecord `json:"step,omitempty"`
	Message   *domain.Message    `json:"message,omitempty"`
}

// InsightOrchestrator drives the bounded analysis loop: it alternates
// between the reasoning service and the local query executor, threading
// growing conversational context between rounds, until the planner delivers
// an insight or the round budget runs out.
type InsightOrchestrator struct {
	planner  Planner
	executor QueryExecutor
	sessions domain.SessionRepository
	messages domain.MessageRepository
	pubsub   Publisher
	notifier Notifier
}

func NewInsightOrchestrator(
	planner Planner,
	executor QueryExecutor,
	sessions domain.SessionRepository,
	messages domain.MessageRepository,
	pubsub Publisher,
	notifier Notifier,
) *InsightOrchestrator {
	return &InsightOrchestrator{
		planner:  planner,
		executor: executor,
		sessions: sessions,
		messages: messages,
		pubsub:   pubsub,
		notifier: notifier,
	}
}

// Run executes the insight loop for one turn. msg is the pending assistant
// message created by the caller; the orchestrator owns it exclusively until
// it commits the terminal snapshot (Pending flips to false exactly once).
// The session's turn gate is released on every exit path.
func (o *InsightOrchestrator) Run(ctx context.Context, session *domain.Session, msg *domain.Message, topic string) RunState {
	defer func() {
		if err := o.sessions.EndTurn(ctx, session.ID); err != nil {
			log.Error().Err(err).Str("session_id", session.ID.String()).Msg("agent.InsightOrchestrator.Run: end turn")
		}
	}()

	if topic == "" {
		topic = defaultTopic
	}
	history := NewHistory(domain.ConversationEntry{Role: domain.RoleUser, Content: topic})

	var steps []domain.StepRecord

	for round := 1; round <= MaxRounds; round++ {
		if err := ctx.Err(); err != nil {
			// Abandoned turn: commit the error, never mutate history afterwards.
			o.fail(ctx, msg, steps, err)
			return RunError
		}

		raw, err := o.planner.Plan(ctx, session.Schema, history.Snapshot())
		if err != nil {
			// Reasoning-service failures are fatal to the turn and never
			// retried; silent retries would amplify cost against an
			// untrusted external process.
			o.fail(ctx, msg, steps, err)
			return RunError
		}

		action, err := ParseAgentAction(raw)
		if err != nil {
			o.fail(ctx, msg, steps, err)
			return RunError
		}

		if action.Insight != nil {
			result := &domain.InsightResult{
				Summary: action.Insight.Summary,
				Items:   action.Insight.Items,
			}
			msg.Content = result.Summary
			msg.Insight = result
			msg.Steps = steps
			msg.Pending = false
			o.commit(ctx, msg)
			o.publishCompleted(ctx, msg)

			if o.notifier != nil {
				o.notifier.InsightCompleted(ctx, session, result)
			}

			log.Info().
				Str("message_id", msg.ID.String()).
				Int("rounds", round).
				Int("items", len(result.Items)).
				Msg("insight run completed")
			return RunInsight
		}

		step := o.runQuery(ctx, round, action.Query)
		steps = append(steps, step)

		// Interim commit keeps the pending message's steps visible to
		// pollers while the websocket event carries the same step.
		msg.Steps = steps
		o.commit(ctx, msg)
		o.publishStep(ctx, msg.ID, round, &step)

		encoded, err := json.Marshal(map[string]string{
			"action":    "query",
			"sql":       action.Query.SQL,
			"reasoning": action.Query.Reasoning,
		})
		if err != nil {
			o.fail(ctx, msg, steps, err)
			return RunError
		}

		// Machine-parseable continuity: the assistant entry is the serialized
		// action, not the natural-language reasoning alone.
		history.Append(domain.ConversationEntry{Role: domain.RoleAssistant, Content: string(encoded)})
		history.Append(domain.ConversationEntry{Role: domain.RoleUser, Content: formatResultSummary(step.Result)})
	}

	msg.Content = exhaustedMessage
	msg.Steps = steps
	msg.Pending = false
	o.commit(ctx, msg)
	o.publishCompleted(ctx, msg)

	log.Info().Str("message_id", msg.ID.String()).Msg("insight run exhausted round budget")
	return RunExhausted
}

// runQuery executes one planned query with graceful degradation: a local
// executor failure becomes an error-row result the planner can react to on
// the next round instead of killing the loop.
func (o *InsightOrchestrator) runQuery(ctx context.Context, round int, q *QueryAction) domain.StepRecord {
	result, err := o.executor.Execute(ctx, q.SQL)
	if err != nil {
		log.Warn().Err(err).Int("round", round).Msg("query execution degraded")
		result = degradedResult(err.Error())
	}

	return domain.StepRecord{Query: q.SQL, Reasoning: q.Reasoning, Result: result}
}

func (o *InsightOrchestrator) fail(ctx context.Context, msg *domain.Message, steps []domain.StepRecord, err error) {
	log.Error().Err(err).Str("message_id", msg.ID.String()).Msg("insight run failed")

	msg.Content = err.Error()
	msg.Steps = steps
	msg.Pending = false
	o.commit(ctx, msg)
	o.publishCompleted(ctx, msg)
}

func (o *InsightOrchestrator) commit(ctx context.Context, msg *domain.Message) {
	if err := o.messages.Update(ctx, msg); err != nil {
		log.Error().Err(err).Str("message_id", msg.ID.String()).Msg("agent.InsightOrchestrator.commit: update message")
	}
}

func (o *InsightOrchestrator) publishStep(ctx context.Context, messageID uuid.UUID, round int, step *domain.StepRecord) {
	o.publish(ctx, TurnEvent{Type: "step", MessageID: messageID, Round: round, Step: step})
}

func (o *InsightOrchestrator) publishCompleted(ctx context.Context, msg *domain.Message) {
	o.publish(ctx, TurnEvent{Type: "completed", MessageID: msg.ID, Message: msg})
}

func (o *InsightOrchestrator) publish(ctx context.Context, evt TurnEvent) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return
	}

	channel := "turn:" + evt.MessageID.String()
	if pubErr := o.pubsub.Publish(ctx, channel, payload); pubErr != nil {
		log.Error().Err(pubErr).Str("channel", channel).Msg("agent.InsightOrchestrator.publish: publish event")
	}
}

// formatResultSummary folds a query result back into the conversation,
// truncated to the first maxSerializedRows rows regardless of actual size.
func formatResultSummary(result *domain.TableResult) string {
	rows := result.Rows
	if len(rows) > maxSerializedRows {
		rows = rows[:maxSerializedRows]
	}

	encoded, err := json.Marshal(rows)
	if err != nil {
		encoded = []byte("[]")
	}

	return fmt.Sprintf("Query returned %d rows. Showing first %d:\n%s", result.RowCount, len(rows), encoded)
}
