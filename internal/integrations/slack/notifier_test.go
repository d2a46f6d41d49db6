package slackbot

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supportbot/internal/analytics"
	"supportbot/internal/domain"
)

type fakeSlack struct {
	posts     []string
	texts     []string
	pages     [][]slack.Channel
	listCalls int
	postErr   error

	users     []slack.User
	userCalls int
	usersErr  error
}

func (f *fakeSlack) PostMessageContext(_ context.Context, channelID string, opts ...slack.MsgOption) (string, string, error) {
	if f.postErr != nil {
		return "", "", f.postErr
	}
	f.posts = append(f.posts, channelID)
	if _, values, err := slack.UnsafeApplyMsgOptions("xoxb-test", channelID, "https://slack.com/api/", opts...); err == nil {
		f.texts = append(f.texts, values.Get("text"))
	}
	return channelID, "1700000000.000100", nil
}

func (f *fakeSlack) GetUsersContext(context.Context, ...slack.GetUsersOption) ([]slack.User, error) {
	f.userCalls++
	return f.users, f.usersErr
}

func (f *fakeSlack) GetConversationsContext(_ context.Context, params *slack.GetConversationsParameters) ([]slack.Channel, string, error) {
	page := f.listCalls
	f.listCalls++
	if page >= len(f.pages) {
		return nil, "", nil
	}
	next := ""
	if page+1 < len(f.pages) {
		next = "cursor-next"
	}
	if page > 0 && params.Cursor != "cursor-next" {
		return nil, "", errors.New("cursor not forwarded")
	}
	return f.pages[page], next, nil
}

func channel(id, name string) slack.Channel {
	var c slack.Channel
	c.ID = id
	c.Name = name
	return c
}

var ticket = domain.Ticket{
	TicketID: "TKT-4821", ConversationID: "conv-1", Customer: "Sarah Mitchell",
	Category: "Returns", Priority: domain.PriorityHigh, EscalationReason: "High-value issue requiring human review",
}

func TestTicketCreatedPostsToChannelID(t *testing.T) {
	api := &fakeSlack{}
	n := newNotifier(api, "C0123456789", nil)
	require.NoError(t, n.TicketCreated(context.Background(), ticket))
	assert.Equal(t, []string{"C0123456789"}, api.posts)
	assert.Zero(t, api.listCalls)
}

func TestTicketCreatedResolvesChannelNameOnce(t *testing.T) {
	api := &fakeSlack{pages: [][]slack.Channel{
		{channel("C0000000001", "general")},
		{channel("C0000000002", "support-escalations")},
	}}
	n := newNotifier(api, "#Support-Escalations", nil)
	require.NoError(t, n.TicketCreated(context.Background(), ticket))
	require.NoError(t, n.TicketCreated(context.Background(), ticket))
	assert.Equal(t, []string{"C0000000002", "C0000000002"}, api.posts)
	assert.Equal(t, 2, api.listCalls, "second post uses the cached id")
}

func TestTicketCreatedErrors(t *testing.T) {
	n := newNotifier(&fakeSlack{}, "#nowhere", nil)
	err := n.TicketCreated(context.Background(), ticket)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	n = newNotifier(&fakeSlack{postErr: errors.New("channel_not_found")}, "C0123456789", nil)
	err = n.TicketCreated(context.Background(), ticket)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TKT-4821")

	assert.NoError(t, newNotifier(&fakeSlack{}, "", nil).TicketCreated(context.Background(), ticket))
}

func TestTicketBlocks(t *testing.T) {
	blocks := TicketBlocks(ticket)
	require.Len(t, blocks, 3)
	header, ok := blocks[0].(*slack.HeaderBlock)
	require.True(t, ok)
	assert.Equal(t, "New escalation TKT-4821", header.Text.Text)

	fields := blocks[1].(*slack.SectionBlock).Fields
	require.Len(t, fields, 4)
	assert.Equal(t, "*Priority*\n:red_circle: high", fields[1].Text)
	assert.True(t, strings.HasSuffix(blocks[2].(*slack.SectionBlock).Text.Text, ticket.EscalationReason))
}

func TestDigestBlocks(t *testing.T) {
	stats := analytics.DashboardStats{
		ActiveConversations: 3, ResolvedToday: 2, AvgResolutionTime: "4.5 mins", EscalationRate: "12.5%",
		TopIssues: []analytics.IssueCount{{Issue: "Returns", Count: 4}, {Issue: "Billing", Count: 1}},
	}
	blocks := DigestBlocks(stats)
	require.Len(t, blocks, 3)
	assert.Equal(t, "*Top issues (30d)*\n• Returns: 4\n• Billing: 1", blocks[2].(*slack.SectionBlock).Text.Text)

	assert.Len(t, DigestBlocks(analytics.DashboardStats{}), 2)

	api := &fakeSlack{}
	require.NoError(t, newNotifier(api, "", nil).PostDigest(context.Background(), "D0123456789", stats))
	assert.Equal(t, []string{"D0123456789"}, api.posts)
}

func TestIsLikelyChannelID(t *testing.T) {
	assert.True(t, isLikelyChannelID("C0123456789"))
	assert.True(t, isLikelyChannelID("G01ABCDEFG"))
	assert.False(t, isLikelyChannelID("general"))
	assert.False(t, isLikelyChannelID("C012"))
	assert.False(t, isLikelyChannelID("U0123456789"))
}
