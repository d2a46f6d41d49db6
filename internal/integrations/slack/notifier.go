package slackbot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"supportbot/internal/analytics"
	"supportbot/internal/domain"
)

type slackAPI interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	GetConversationsContext(ctx context.Context, params *slack.GetConversationsParameters) ([]slack.Channel, string, error)
	GetUsersContext(ctx context.Context, options ...slack.GetUsersOption) ([]slack.User, error)
}

// Notifier posts escalations and digests to Slack channels. Channels may be
// given as ids or as names with or without the leading '#'.
type Notifier struct {
	api               slackAPI
	escalationChannel string
	logger            *zap.Logger

	mu           sync.Mutex
	channels     map[string]string
	userList     []slack.User
	usersFetched time.Time
	now          func() time.Time
}

func NewNotifier(token, escalationChannel string, logger *zap.Logger) *Notifier {
	return newNotifier(slack.New(token), escalationChannel, logger)
}

func newNotifier(api slackAPI, escalationChannel string, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		api:               api,
		escalationChannel: strings.TrimSpace(escalationChannel),
		logger:            logger,
		channels:          make(map[string]string),
		now:               time.Now,
	}
}

// TicketCreated announces a new escalation ticket. A notifier without an
// escalation channel does nothing.
func (n *Notifier) TicketCreated(ctx context.Context, t domain.Ticket) error {
	if n.escalationChannel == "" {
		return nil
	}
	channelID, err := n.resolveChannel(ctx, n.escalationChannel)
	if err != nil {
		return err
	}
	_, _, err = n.api.PostMessageContext(ctx, channelID,
		slack.MsgOptionText(ticketSummary(t), false),
		slack.MsgOptionBlocks(TicketBlocks(t)...),
	)
	if err != nil {
		return fmt.Errorf("post escalation %s: %w", t.TicketID, err)
	}
	n.logger.Info("slack escalation posted", zap.String("ticket_id", t.TicketID), zap.String("channel", channelID))
	return nil
}

func (n *Notifier) PostDigest(ctx context.Context, channel string, stats analytics.DashboardStats) error {
	channelID, err := n.resolveChannel(ctx, channel)
	if err != nil {
		return err
	}
	_, _, err = n.api.PostMessageContext(ctx, channelID,
		slack.MsgOptionText("Support digest", false),
		slack.MsgOptionBlocks(DigestBlocks(stats)...),
	)
	if err != nil {
		return fmt.Errorf("post digest: %w", err)
	}
	n.logger.Info("slack digest posted", zap.String("channel", channelID))
	return nil
}

func ticketSummary(t domain.Ticket) string {
	return fmt.Sprintf("Escalation %s (%s priority): %s", t.TicketID, t.Priority, t.EscalationReason)
}

func priorityEmoji(p domain.Priority) string {
	switch p {
	case domain.PriorityHigh:
		return ":red_circle:"
	case domain.PriorityMedium:
		return ":large_orange_circle:"
	default:
		return ":white_circle:"
	}
}

func TicketBlocks(t domain.Ticket) []slack.Block {
	header := slack.NewHeaderBlock(
		slack.NewTextBlockObject(slack.PlainTextType, "New escalation "+t.TicketID, false, false),
	)
	fields := []*slack.TextBlockObject{
		slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*Customer*\n%s", t.Customer), false, false),
		slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*Priority*\n%s %s", priorityEmoji(t.Priority), t.Priority), false, false),
		slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*Category*\n%s", t.Category), false, false),
		slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*Conversation*\n`%s`", t.ConversationID), false, false),
	}
	reason := slack.NewSectionBlock(
		slack.NewTextBlockObject(slack.MarkdownType, "*Reason*: "+t.EscalationReason, false, false),
		nil, nil,
	)
	return []slack.Block{header, slack.NewSectionBlock(nil, fields, nil), reason}
}

func DigestBlocks(s analytics.DashboardStats) []slack.Block {
	header := slack.NewHeaderBlock(
		slack.NewTextBlockObject(slack.PlainTextType, "Support digest", false, false),
	)
	fields := []*slack.TextBlockObject{
		slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*Active conversations*\n%d", s.ActiveConversations), false, false),
		slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*Resolved today*\n%d", s.ResolvedToday), false, false),
		slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*Avg resolution*\n%s", s.AvgResolutionTime), false, false),
		slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*Escalation rate (7d)*\n%s", s.EscalationRate), false, false),
		slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*Deflection rate*\n%.1f%%", s.DeflectionRate), false, false),
		slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*Intent capture*\n%.1f%%", s.IntentCaptureRate), false, false),
	}
	blocks := []slack.Block{header, slack.NewSectionBlock(nil, fields, nil)}

	if len(s.TopIssues) > 0 {
		var b strings.Builder
		b.WriteString("*Top issues (30d)*\n")
		for _, issue := range s.TopIssues {
			fmt.Fprintf(&b, "• %s: %d\n", issue.Issue, issue.Count)
		}
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, strings.TrimRight(b.String(), "\n"), false, false),
			nil, nil,
		))
	}
	return blocks
}

func (n *Notifier) resolveChannel(ctx context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("slack channel is empty")
	}
	if isLikelyChannelID(ref) {
		return ref, nil
	}
	name := strings.ToLower(strings.TrimPrefix(ref, "#"))

	n.mu.Lock()
	if id, ok := n.channels[name]; ok {
		n.mu.Unlock()
		return id, nil
	}
	n.mu.Unlock()

	params := &slack.GetConversationsParameters{
		ExcludeArchived: true,
		Limit:           200,
		Types:           []string{"public_channel", "private_channel"},
	}
	for {
		channels, cursor, err := n.api.GetConversationsContext(ctx, params)
		if err != nil {
			return "", fmt.Errorf("list slack channels: %w", err)
		}
		for _, c := range channels {
			if strings.EqualFold(c.Name, name) {
				n.mu.Lock()
				n.channels[name] = c.ID
				n.mu.Unlock()
				n.logger.Debug("slack channel resolved", zap.String("name", name), zap.String("id", c.ID))
				return c.ID, nil
			}
		}
		if cursor == "" {
			break
		}
		params.Cursor = cursor
	}
	return "", fmt.Errorf("slack channel %q not found", ref)
}

// isLikelyChannelID matches public (C), private (G) and DM (D) channel ids.
func isLikelyChannelID(val string) bool {
	if len(val) < 9 {
		return false
	}
	for i, r := range val {
		if i == 0 {
			if r != 'C' && r != 'G' && r != 'D' {
				return false
			}
			continue
		}
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
