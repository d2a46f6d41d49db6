package slackbot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supportbot/internal/domain"
)

func user(id, name, realName, display string) slack.User {
	var u slack.User
	u.ID = id
	u.Name = name
	u.RealName = realName
	u.Profile.DisplayName = display
	return u
}

func assigned(agent string) domain.Ticket {
	t := ticket
	t.Status = domain.TicketInProgress
	t.AssignedAgent = agent
	return t
}

func TestTicketAssignedMentionsAgent(t *testing.T) {
	api := &fakeSlack{users: []slack.User{
		user("U0000000001", "priya.r", "Priya Raman", "priya"),
		user("U0000000002", "marco", "Marco Bell", "marco"),
	}}
	n := newNotifier(api, "C0123456789", nil)

	require.NoError(t, n.TicketAssigned(context.Background(), assigned("Priya Raman")))
	require.NoError(t, n.TicketAssigned(context.Background(), assigned("marco")))
	assert.Equal(t, []string{
		":red_circle: TKT-4821 (Sarah Mitchell) assigned to <@U0000000001>",
		":red_circle: TKT-4821 (Sarah Mitchell) assigned to <@U0000000002>",
	}, api.texts)
	assert.Equal(t, 1, api.userCalls, "user list is cached")
}

func TestTicketAssignedFallsBackToName(t *testing.T) {
	api := &fakeSlack{usersErr: errors.New("missing_scope")}
	n := newNotifier(api, "C0123456789", nil)
	require.NoError(t, n.TicketAssigned(context.Background(), assigned("Dana")))
	assert.Equal(t, []string{":red_circle: TKT-4821 (Sarah Mitchell) assigned to Dana"}, api.texts)

	api = &fakeSlack{}
	require.NoError(t, newNotifier(api, "C0123456789", nil).TicketAssigned(context.Background(), assigned("U0ABCDEFGH")))
	assert.Equal(t, []string{":red_circle: TKT-4821 (Sarah Mitchell) assigned to <@U0ABCDEFGH>"}, api.texts)
	assert.Zero(t, api.userCalls)

	assert.NoError(t, newNotifier(&fakeSlack{}, "", nil).TicketAssigned(context.Background(), assigned("Dana")))
	assert.NoError(t, newNotifier(&fakeSlack{}, "C0123456789", nil).TicketAssigned(context.Background(), ticket))
}

func TestResolveAgentLooseMatch(t *testing.T) {
	api := &fakeSlack{users: []slack.User{
		user("U0000000001", "p1", "Priya Raman (Support)", ""),
		user("U0000000002", "a1", "Alex Kim", ""),
		user("U0000000003", "a2", "Alex Stone", ""),
	}}
	n := newNotifier(api, "C0123456789", nil)

	id, ok := n.resolveAgent(context.Background(), "priya")
	assert.True(t, ok)
	assert.Equal(t, "U0000000001", id)

	_, ok = n.resolveAgent(context.Background(), "Alex")
	assert.False(t, ok, "two users share the token")

	_, ok = n.resolveAgent(context.Background(), "Nobody")
	assert.False(t, ok)
}

func TestUserCacheExpires(t *testing.T) {
	api := &fakeSlack{users: []slack.User{user("U0000000001", "priya", "Priya Raman", "")}}
	n := newNotifier(api, "C0123456789", nil)
	now := time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)
	n.now = func() time.Time { return now }

	_, _ = n.resolveAgent(context.Background(), "priya")
	now = now.Add(userCacheTTL - time.Second)
	_, _ = n.resolveAgent(context.Background(), "priya")
	assert.Equal(t, 1, api.userCalls)

	now = now.Add(2 * time.Second)
	_, _ = n.resolveAgent(context.Background(), "priya")
	assert.Equal(t, 2, api.userCalls)
}

func TestNameMatches(t *testing.T) {
	assert.True(t, nameMatches("Alice", "Alice Smith"))
	assert.True(t, nameMatches("alice smith (CS)", "Alice Smith"))
	assert.False(t, nameMatches("Alice Jones", "Alice Smith"))
	assert.False(t, nameMatches("", "Alice"))
	assert.True(t, isLikelyUserID("W0123456789"))
	assert.False(t, isLikelyUserID("C0123456789"))
}

func TestTicketStale(t *testing.T) {
	api := &fakeSlack{users: []slack.User{user("U0000000001", "priya", "Priya Raman", "")}}
	n := newNotifier(api, "C0123456789", nil)

	require.NoError(t, n.TicketStale(context.Background(), ticket, 45*time.Minute))
	require.NoError(t, n.TicketStale(context.Background(), assigned("Priya"), 2*time.Hour+5*time.Minute))
	assert.Equal(t, []string{
		":hourglass: TKT-4821 (Sarah Mitchell, high priority) has waited 45 min, assigned to nobody yet",
		":hourglass: TKT-4821 (Sarah Mitchell, high priority) has waited 2h05m, assigned to <@U0000000001>",
	}, api.texts)

	assert.NoError(t, newNotifier(&fakeSlack{}, "", nil).TicketStale(context.Background(), ticket, time.Hour))
}
