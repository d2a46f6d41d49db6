package intent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"supportbot/internal/domain"
	"supportbot/internal/integrations/llm"
	"supportbot/internal/integrations/llm/llmtest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type event struct {
	eventType      string
	conversationID string
	data           map[string]any
}

type recorder struct {
	mu     sync.Mutex
	events []event
}

func (r *recorder) Record(_ context.Context, eventType, conversationID string, data map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{eventType, conversationID, data})
	return nil
}

func (r *recorder) snapshot() []event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event(nil), r.events...)
}

const sampleOutput = `{
  "intentSignals": [{"category":"product_interest","intent":"running_shoes","confidence":0.8,"urgency":"medium","keywords":["shoes"]}],
  "zeroPartyData": {"preferences": {"size": "10"}},
  "conversationOutcome": "purchase_likely"
}`

func TestExtract(t *testing.T) {
	gw := llmtest.Static("```json\n" + sampleOutput + "\n```")
	res, err := Extract(context.Background(), llm.Bind(gw, "m"), "I need size 10 running shoes", nil)
	require.NoError(t, err)
	require.Len(t, res.IntentSignals, 1)
	assert.Equal(t, "running_shoes", res.IntentSignals[0].Intent)
	assert.Equal(t, "10", res.ZeroPartyData.Preferences["size"])
	assert.Equal(t, "purchase_likely", res.ConversationOutcome)
	assert.False(t, res.ZeroPartyData.Empty())
}

func TestExtractErrors(t *testing.T) {
	_, err := Extract(context.Background(), llm.Bind(llmtest.Static(`{"conversationOutcome":"maybe"}`), "m"), "hi", nil)
	var perr *llm.ParseError
	assert.ErrorAs(t, err, &perr)

	_, err = Extract(context.Background(), llm.Bind(llmtest.Failing(nil), "m"), "hi", nil)
	assert.ErrorIs(t, err, llmtest.ErrUnavailable)

	_, err = Extract(context.Background(), nil, "hi", nil)
	assert.Error(t, err)
}

func TestQueueRecordsSignals(t *testing.T) {
	rec := &recorder{}
	q := NewQueue(4, 2, rec, nil)
	q.Start(context.Background())

	client := llm.Bind(llmtest.Static(sampleOutput), "m")
	require.NoError(t, q.Submit(Job{ConversationID: "conv-1", Message: "shoes", Client: client}))
	require.NoError(t, q.Submit(Job{ConversationID: "conv-2", Message: "boots", Client: llm.Bind(llmtest.Failing(nil), "m")}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, q.Close(ctx))

	events := rec.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventIntentSignal, events[0].eventType)
	assert.Equal(t, "conv-1", events[0].conversationID)
	assert.Equal(t, "purchase_likely", events[0].data["conversationOutcome"])

	assert.ErrorIs(t, q.Submit(Job{}), ErrQueueClosed)
	assert.NoError(t, q.Close(ctx), "second close is a no-op")
}

func TestQueueDropsWhenFull(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	q := NewQueue(1, 1, &recorder{}, nil).WithExtractor(func(ctx context.Context, _ llm.Client, _ string, _ []domain.Message) (Result, error) {
		started <- struct{}{}
		select {
		case <-release:
		case <-ctx.Done():
		}
		return Result{}, errors.New("nothing")
	})
	q.Start(context.Background())

	require.NoError(t, q.Submit(Job{ConversationID: "a"}))
	<-started
	require.NoError(t, q.Submit(Job{ConversationID: "b"}))
	assert.ErrorIs(t, q.Submit(Job{ConversationID: "c"}), ErrQueueFull)
	assert.Equal(t, 1, q.Len())

	close(release)
	<-started
	require.NoError(t, q.Close(context.Background()))
}

func TestQueueCloseHonorsDeadline(t *testing.T) {
	q := NewQueue(1, 1, nil, nil).WithExtractor(func(ctx context.Context, _ llm.Client, _ string, _ []domain.Message) (Result, error) {
		<-ctx.Done()
		return Result{}, ctx.Err()
	})
	q.Start(context.Background())
	require.NoError(t, q.Submit(Job{ConversationID: "slow"}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Close(ctx), context.DeadlineExceeded)
}

func TestQueueSurvivesPanics(t *testing.T) {
	rec := &recorder{}
	calls := 0
	var mu sync.Mutex
	q := NewQueue(2, 1, rec, nil).WithExtractor(func(context.Context, llm.Client, string, []domain.Message) (Result, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			panic("boom")
		}
		return Result{IntentSignals: []Signal{}}, nil
	})
	q.Start(context.Background())
	require.NoError(t, q.Submit(Job{ConversationID: "p1"}))
	require.NoError(t, q.Submit(Job{ConversationID: "p2"}))
	require.NoError(t, q.Close(context.Background()))

	events := rec.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, "p2", events[0].conversationID)
}
