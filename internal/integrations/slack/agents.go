package slackbot

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"supportbot/internal/domain"
)

const userCacheTTL = 5 * time.Minute

// TicketAssigned tells the escalation channel who picked a ticket up. The
// agent is mentioned when their name maps to exactly one Slack user.
func (n *Notifier) TicketAssigned(ctx context.Context, t domain.Ticket) error {
	if n.escalationChannel == "" || t.AssignedAgent == "" {
		return nil
	}
	channelID, err := n.resolveChannel(ctx, n.escalationChannel)
	if err != nil {
		return err
	}
	who := t.AssignedAgent
	if id, ok := n.resolveAgent(ctx, t.AssignedAgent); ok {
		who = "<@" + id + ">"
	}
	text := fmt.Sprintf("%s %s (%s) assigned to %s", priorityEmoji(t.Priority), t.TicketID, t.Customer, who)
	if _, _, err := n.api.PostMessageContext(ctx, channelID, slack.MsgOptionText(text, false)); err != nil {
		return fmt.Errorf("post assignment %s: %w", t.TicketID, err)
	}
	return nil
}

// TicketStale reminds the escalation channel that a ticket is still waiting.
func (n *Notifier) TicketStale(ctx context.Context, t domain.Ticket, waited time.Duration) error {
	if n.escalationChannel == "" {
		return nil
	}
	channelID, err := n.resolveChannel(ctx, n.escalationChannel)
	if err != nil {
		return err
	}
	who := "nobody yet"
	if t.AssignedAgent != "" {
		who = t.AssignedAgent
		if id, ok := n.resolveAgent(ctx, t.AssignedAgent); ok {
			who = "<@" + id + ">"
		}
	}
	text := fmt.Sprintf(":hourglass: %s (%s, %s priority) has waited %s, assigned to %s",
		t.TicketID, t.Customer, t.Priority, formatWait(waited), who)
	if _, _, err := n.api.PostMessageContext(ctx, channelID, slack.MsgOptionText(text, false)); err != nil {
		return fmt.Errorf("post reminder %s: %w", t.TicketID, err)
	}
	return nil
}

func formatWait(d time.Duration) string {
	if d < time.Hour {
		return fmt.Sprintf("%d min", int(d/time.Minute))
	}
	return fmt.Sprintf("%dh%02dm", int(d/time.Hour), int(d%time.Hour/time.Minute))
}

// resolveAgent maps an agent name or Slack user id to a user id. Lookup
// failures are logged and treated as no match.
func (n *Notifier) resolveAgent(ctx context.Context, agent string) (string, bool) {
	agent = strings.TrimSpace(agent)
	if isLikelyUserID(agent) {
		return agent, true
	}
	users, err := n.users(ctx)
	if err != nil {
		n.logger.Warn("slack user lookup failed", zap.String("agent", agent), zap.Error(err))
		return "", false
	}

	key := strings.ToLower(agent)
	for _, u := range users {
		for _, name := range []string{u.Name, u.RealName, u.Profile.DisplayName} {
			if strings.ToLower(strings.TrimSpace(name)) == key {
				return u.ID, true
			}
		}
	}

	// Loose match on name tokens, accepted only when unambiguous.
	var match string
	for _, u := range users {
		if u.Deleted || u.IsBot {
			continue
		}
		if nameMatches(agent, u.RealName) || nameMatches(agent, u.Profile.DisplayName) {
			if match != "" && match != u.ID {
				n.logger.Debug("slack agent name is ambiguous", zap.String("agent", agent))
				return "", false
			}
			match = u.ID
		}
	}
	return match, match != ""
}

func (n *Notifier) users(ctx context.Context) ([]slack.User, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.userList != nil && n.now().Sub(n.usersFetched) < userCacheTTL {
		return n.userList, nil
	}
	users, err := n.api.GetUsersContext(ctx)
	if err != nil {
		return nil, err
	}
	n.userList = users
	n.usersFetched = n.now()
	n.logger.Debug("slack users fetched", zap.Int("count", len(users)))
	return users, nil
}

func isLikelyUserID(val string) bool {
	if len(val) < 9 {
		return false
	}
	for i, r := range val {
		if i == 0 {
			if r != 'U' && r != 'W' {
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

var parenPattern = regexp.MustCompile(`\([^)]*\)|（[^）]*）`)

func nameTokens(s string) []string {
	s = parenPattern.ReplaceAllString(s, " ")
	s = strings.ToLower(s)
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Fields(b.String())
}

// nameMatches reports whether one name's tokens are a subset of the other's,
// so "Priya" matches "Priya Raman (Support)".
func nameMatches(a, b string) bool {
	at, bt := nameTokens(a), nameTokens(b)
	if len(at) == 0 || len(bt) == 0 {
		return false
	}
	return allIn(at, bt) || allIn(bt, at)
}

func allIn(needles, haystack []string) bool {
	set := make(map[string]bool, len(haystack))
	for _, t := range haystack {
		set[t] = true
	}
	for _, t := range needles {
		if !set[t] {
			return false
		}
	}
	return true
}
