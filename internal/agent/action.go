package agent

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/docsight/docsight/internal/domain"
)

// ErrMalformedResponse is returned when the reasoning service's reply does
// not match the two-shape action contract. The reasoning service is an
// external, non-contractual producer; this boundary rejects bad payloads
// before they reach the loop.
var ErrMalformedResponse = errors.New("agent: malformed reasoning response")

// AgentAction is the discriminated reply of the insight planner: exactly one
// of Query or Insight is set. It is the sole contract between the loop and
// the reasoning service.
type AgentAction struct {
	Query   *QueryAction
	Insight *InsightAction
}

// QueryAction instructs the loop to run one SQL query.
type QueryAction struct {
	SQL       string `json:"sql"`
	Reasoning string `json:"reasoning"`
}

// InsightAction terminates the loop with the final report.
type InsightAction struct {
	Summary string               `json:"summary"`
	Items   []domain.InsightItem `json:"items"`
}

// ParseAgentAction validates a raw planner reply into an AgentAction.
// Validation is all-or-nothing: any shape violation fails with
// ErrMalformedResponse and no partial action is constructed. An unrecognized
// action tag is a failure, not a default branch.
func ParseAgentAction(raw []byte) (AgentAction, error) {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return AgentAction{}, fmt.Errorf("%w: not a JSON object: %s", ErrMalformedResponse, err)
	}

	switch action := payload["action"]; action {
	case "query":
		sql, ok := payload["sql"].(string)
		if !ok {
			return AgentAction{}, fmt.Errorf("%w: query action: 'sql' is not a string", ErrMalformedResponse)
		}
		reasoning, ok := payload["reasoning"].(string)
		if !ok {
			return AgentAction{}, fmt.Errorf("%w: query action: 'reasoning' is not a string", ErrMalformedResponse)
		}
		return AgentAction{Query: &QueryAction{SQL: sql, Reasoning: reasoning}}, nil

	case "insight":
		summary, ok := payload["summary"].(string)
		if !ok {
			return AgentAction{}, fmt.Errorf("%w: insight action: 'summary' is not a string", ErrMalformedResponse)
		}
		rawItems, ok := payload["insights"].([]any)
		if !ok {
			return AgentAction{}, fmt.Errorf("%w: insight action: 'insights' is not an array", ErrMalformedResponse)
		}

		items := make([]domain.InsightItem, 0, len(rawItems))
		for _, ri := range rawItems {
			encoded, err := json.Marshal(ri)
			if err != nil {
				return AgentAction{}, fmt.Errorf("%w: insight item: %s", ErrMalformedResponse, err)
			}
			var item domain.InsightItem
			if err := json.Unmarshal(encoded, &item); err != nil {
				return AgentAction{}, fmt.Errorf("%w: insight item: %s", ErrMalformedResponse, err)
			}
			items = append(items, item)
		}

		return AgentAction{Insight: &InsightAction{Summary: summary, Items: items}}, nil

	default:
		return AgentAction{}, fmt.Errorf("%w: unknown action %q", ErrMalformedResponse, action)
	}
}
