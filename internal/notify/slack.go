// Package notify pushes completed insight reports to external channels.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	slacklib "github.com/slack-go/slack"

	"github.com/docsight/docsight/internal/agent"
	"github.com/docsight/docsight/internal/domain"
)

// SlackAPI abstracts the subset of the Slack client used by SlackNotifier.
// This allows testing without real HTTP calls.
type SlackAPI interface {
	PostMessage(channelID string, options ...slacklib.MsgOption) (string, string, error)
}

// SlackNotifier posts the final insight report to a configured channel.
type SlackNotifier struct {
	api     SlackAPI
	channel string
}

// Compile-time interface check.
var _ agent.Notifier = (*SlackNotifier)(nil)

func NewSlackNotifier(api SlackAPI, channel string) *SlackNotifier {
	return &SlackNotifier{api: api, channel: channel}
}

// InsightCompleted posts the report. Delivery is best effort: a Slack
// failure is logged and never surfaces into the turn's outcome.
func (n *SlackNotifier) InsightCompleted(_ context.Context, session *domain.Session, result *domain.InsightResult) {
	_, _, err := n.api.PostMessage(n.channel, slacklib.MsgOptionText(FormatReport(session, result), false))
	if err != nil {
		log.Error().Err(err).Str("channel", n.channel).Msg("notify.SlackNotifier.InsightCompleted: post message")
	}
}

// FormatReport renders the insight report as a Slack message.
func FormatReport(session *domain.Session, result *domain.InsightResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "*Insight report — %s*\n%s\n", session.Document.FileName, result.Summary)
	for _, item := range result.Items {
		fmt.Fprintf(&b, "• [%s/%s] *%s* — %s\n", item.Priority, item.Type, item.Title, item.Description)
	}

	return b.String()
}
