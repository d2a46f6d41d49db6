// Package orchestrator runs the per-message support pipeline and owns the
// conversation and ticket state machine.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"supportbot/internal/actions"
	"supportbot/internal/domain"
	"supportbot/internal/escalation"
	"supportbot/internal/integrations/llm"
	"supportbot/internal/intent"
	"supportbot/internal/knowledge"
	"supportbot/internal/reply"
	"supportbot/internal/resolution"
	"supportbot/internal/sentiment"
	"supportbot/internal/storage"
	"supportbot/internal/summary"
)

var (
	ErrValidation = errors.New("invalid request")
	// ErrInvalidTransition rejects a status change the conversation or
	// ticket state machine does not allow.
	ErrInvalidTransition = errors.New("invalid state transition")
)

const (
	guestName         = "Guest Customer"
	maxTicketAttempts = 5
	notifyTimeout     = 15 * time.Second
)

type CustomerSource interface {
	Context(conv domain.Conversation) *domain.CustomerContext
}

type EventRecorder interface {
	Record(ctx context.Context, eventType, conversationID string, data map[string]any) error
}

type IntentQueue interface {
	Submit(job intent.Job) error
}

// Notifier is told about new and assigned tickets. It runs off the request
// path.
type Notifier interface {
	TicketCreated(ctx context.Context, t domain.Ticket) error
	TicketAssigned(ctx context.Context, t domain.Ticket) error
}

type Deps struct {
	Store     storage.Store
	Gateway   llm.Gateway
	Models    *llm.ModelSelector
	Knowledge reply.Searcher
	Customers CustomerSource
	Events    EventRecorder
	Intents   IntentQueue
	Notifier  Notifier
	Logger    *zap.Logger
}

type Orchestrator struct {
	store     storage.Store
	gateway   llm.Gateway
	models    *llm.ModelSelector
	customers CustomerSource
	events    EventRecorder
	intents   IntentQueue
	notifier  Notifier
	logger    *zap.Logger

	sentiment  *sentiment.Analyzer
	replies    *reply.Generator
	actions    *actions.Recommender
	summarizer *summary.Summarizer

	locks       *keyedMutex
	background  sync.WaitGroup
	now         func() time.Time
	newTicketID func() string
}

func New(d Deps) (*Orchestrator, error) {
	if d.Store == nil {
		return nil, errors.New("orchestrator: store is required")
	}
	if d.Gateway == nil {
		return nil, errors.New("orchestrator: gateway is required")
	}
	if d.Models == nil {
		return nil, errors.New("orchestrator: model selector is required")
	}
	if d.Events == nil {
		return nil, errors.New("orchestrator: event recorder is required")
	}
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		store:       d.Store,
		gateway:     d.Gateway,
		models:      d.Models,
		customers:   d.Customers,
		events:      d.Events,
		intents:     d.Intents,
		notifier:    d.Notifier,
		logger:      logger,
		sentiment:   sentiment.NewAnalyzer(logger),
		replies:     reply.NewGenerator(d.Knowledge, logger),
		actions:     actions.NewRecommender(logger),
		summarizer:  summary.NewSummarizer(logger),
		locks:       newKeyedMutex(),
		now:         time.Now,
		newTicketID: randomTicketID,
	}, nil
}

func randomTicketID() string {
	return fmt.Sprintf("TKT-%d", 1000+rand.IntN(9000))
}

// Wait blocks until background notifications have finished.
func (o *Orchestrator) Wait() {
	o.background.Wait()
}

func (o *Orchestrator) Model() string {
	return o.models.Current()
}

func (o *Orchestrator) Models() []string {
	return o.models.Allowed()
}

func (o *Orchestrator) SetModel(model string) error {
	if err := o.models.Set(model); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	o.logger.Info("active model changed", zap.String("model", o.models.Current()))
	return nil
}

// client binds the gateway to the override model, or to the active model
// when override is empty.
func (o *Orchestrator) client(override string) (llm.Client, error) {
	model, err := o.models.Resolve(override)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return llm.Bind(o.gateway, model), nil
}

// Process runs one customer message through the pipeline. Requests for the
// same conversation are handled one at a time.
func (o *Orchestrator) Process(ctx context.Context, req domain.ChatRequest) (domain.ChatResponse, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return domain.ChatResponse{}, fmt.Errorf("%w: message is required", ErrValidation)
	}
	client, err := o.client(req.Model)
	if err != nil {
		return domain.ChatResponse{}, err
	}

	convID := strings.TrimSpace(req.ConversationID)
	if convID == "" {
		convID = uuid.NewString()
	}
	unlock := o.locks.Lock(convID)
	defer unlock()

	conv, err := o.conversationFor(ctx, convID, req)
	if err != nil {
		return domain.ChatResponse{}, err
	}

	if err := o.store.AppendMessage(ctx, domain.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Role:           domain.RoleCustomer,
		Content:        message,
		CreatedAt:      o.now().UTC(),
	}); err != nil {
		return domain.ChatResponse{}, fmt.Errorf("store customer message: %w", err)
	}
	history, err := o.store.ListMessages(ctx, conv.ID)
	if err != nil {
		return domain.ChatResponse{}, fmt.Errorf("load history: %w", err)
	}

	var customer *domain.CustomerContext
	if o.customers != nil {
		customer = o.customers.Context(conv)
	}

	var (
		mood   domain.SentimentAnalysis
		answer reply.Reply
	)
	// Both analyzers degrade instead of failing, so the only error left is
	// the caller going away.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		mood = o.sentiment.Analyze(gctx, client, message, history)
		return ctx.Err()
	})
	g.Go(func() error {
		answer = o.replies.Generate(gctx, client, message, history, customer)
		return ctx.Err()
	})
	if err := g.Wait(); err != nil {
		return domain.ChatResponse{}, fmt.Errorf("analyze message: %w", err)
	}

	quick := o.actions.Recommend(ctx, client, message, history, customer, mood)
	suggestion := resolution.Suggest(quick, mood)
	alerts := resolution.ProactiveAlerts(customer, o.now())
	trigger := escalation.Decide(escalation.Input{
		Message:    message,
		Reply:      answer.Content,
		Confidence: answer.ConfidenceScore,
		Sentiment:  mood,
	})

	confidence := answer.ConfidenceScore
	aiMessage := domain.Message{
		ID:              uuid.NewString(),
		ConversationID:  conv.ID,
		Role:            domain.RoleAI,
		Content:         answer.Content,
		ConfidenceScore: &confidence,
		CreatedAt:       o.now().UTC(),
	}
	if err := o.store.AppendMessage(ctx, aiMessage); err != nil {
		return domain.ChatResponse{}, fmt.Errorf("store ai message: %w", err)
	}

	resp := domain.ChatResponse{
		ConversationID:       conv.ID,
		Message:              aiMessage,
		SuggestedResponses:   answer.SuggestedResponses,
		CustomerContext:      customer,
		Sentiment:            mood,
		QuickActions:         quick,
		ResolutionSuggestion: suggestion,
		ProactiveAlerts:      alerts,
		SourceCitations:      knowledge.Citations(answer.Matches),
		Model:                client.Model(),
	}
	if resp.SuggestedResponses == nil {
		resp.SuggestedResponses = []string{}
	}
	if resp.QuickActions == nil {
		resp.QuickActions = []domain.QuickAction{}
	}

	if trigger != nil {
		resp.ShouldEscalate = true
		resp.EscalationReason = trigger.Reason
		resp.Escalation = trigger
		ticketID, err := o.escalateFromPipeline(ctx, conv, message, *trigger)
		if err != nil {
			return domain.ChatResponse{}, err
		}
		resp.TicketID = ticketID
	}

	if err := o.events.Record(ctx, domain.EventMessageProcessed, conv.ID, map[string]any{
		"confidenceScore":   confidence,
		"escalated":         resp.ShouldEscalate,
		"sentimentLevel":    string(mood.Level),
		"sentimentScore":    mood.Score,
		"quickActionsCount": len(quick),
		"model":             client.Model(),
	}); err != nil {
		return domain.ChatResponse{}, err
	}

	if o.intents != nil {
		job := intent.Job{ConversationID: conv.ID, Message: message, History: history, Client: client}
		if err := o.intents.Submit(job); err != nil {
			o.logger.Warn("intent extraction skipped", zap.String("conversation_id", conv.ID), zap.Error(err))
		}
	}

	o.logger.Debug("message processed",
		zap.String("conversation_id", conv.ID),
		zap.String("model", client.Model()),
		zap.Float64("confidence", confidence),
		zap.Bool("escalated", resp.ShouldEscalate),
	)
	return resp, nil
}

// escalateFromPipeline opens a ticket for an open conversation. A conversation
// that is already escalated keeps its ticket; a resolved one stays resolved.
func (o *Orchestrator) escalateFromPipeline(ctx context.Context, conv domain.Conversation, message string, trigger domain.EscalationTrigger) (string, error) {
	switch conv.Status {
	case domain.ConversationOpen:
		t, err := o.openTicket(ctx, conv, message, trigger)
		if err != nil {
			return "", err
		}
		return t.TicketID, nil
	case domain.ConversationEscalated:
		t, err := o.store.TicketForConversation(ctx, conv.ID)
		if errors.Is(err, storage.ErrNotFound) {
			return "", nil
		}
		if err != nil {
			return "", fmt.Errorf("load ticket: %w", err)
		}
		return t.TicketID, nil
	default:
		return "", nil
	}
}

func (o *Orchestrator) conversationFor(ctx context.Context, id string, req domain.ChatRequest) (domain.Conversation, error) {
	conv, err := o.store.GetConversation(ctx, id)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return domain.Conversation{}, fmt.Errorf("load conversation: %w", err)
	}

	customerID := strings.TrimSpace(req.CustomerID)
	if customerID == "" {
		customerID = "cust-" + uuid.NewString()[:8]
	}
	name := strings.TrimSpace(req.CustomerName)
	if name == "" {
		name = guestName
	}
	now := o.now().UTC()
	conv = domain.Conversation{
		ID:            id,
		CustomerID:    customerID,
		CustomerName:  name,
		CustomerEmail: strings.TrimSpace(req.CustomerEmail),
		Status:        domain.ConversationOpen,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := o.store.CreateConversation(ctx, conv); err != nil {
		return domain.Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	if err := o.events.Record(ctx, domain.EventConversationStarted, conv.ID, map[string]any{
		"customerId": customerID,
	}); err != nil {
		return domain.Conversation{}, err
	}
	return conv, nil
}

// openTicket creates the ticket, escalates the conversation and appends the
// system note in one store transaction. Ticket id collisions are retried.
func (o *Orchestrator) openTicket(ctx context.Context, conv domain.Conversation, categorizeOn string, trigger domain.EscalationTrigger) (domain.Ticket, error) {
	category := escalation.Categorize(categorizeOn)
	for attempt := 0; attempt < maxTicketAttempts; attempt++ {
		now := o.now().UTC()
		t := domain.Ticket{
			ID:               uuid.NewString(),
			TicketID:         o.newTicketID(),
			ConversationID:   conv.ID,
			Customer:         conv.CustomerName,
			Category:         category,
			Priority:         trigger.Priority,
			EscalationReason: trigger.Reason,
			Status:           domain.TicketOpen,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		note := domain.Message{
			ID:             uuid.NewString(),
			ConversationID: conv.ID,
			Role:           domain.RoleSystem,
			Content:        "Conversation escalated: " + trigger.Reason,
			CreatedAt:      now,
		}
		err := o.store.CreateTicket(ctx, t, note)
		if err == nil {
			if err := o.events.Record(ctx, domain.EventEscalationCreated, conv.ID, map[string]any{
				"ticketId": t.TicketID,
				"reason":   t.EscalationReason,
			}); err != nil {
				return domain.Ticket{}, err
			}
			o.logger.Info("conversation escalated",
				zap.String("conversation_id", conv.ID),
				zap.String("ticket_id", t.TicketID),
				zap.String("trigger", string(trigger.Type)),
				zap.String("priority", string(t.Priority)),
			)
			o.notify(ctx, t, Notifier.TicketCreated)
			return t, nil
		}
		if !errors.Is(err, storage.ErrConflict) {
			return domain.Ticket{}, fmt.Errorf("create ticket: %w", err)
		}
		// A conflict is either a taken ticket id or a conversation that left
		// the open state underneath us.
		current, gerr := o.store.GetConversation(ctx, conv.ID)
		if gerr != nil {
			return domain.Ticket{}, fmt.Errorf("reload conversation: %w", gerr)
		}
		if current.Status != domain.ConversationOpen {
			return domain.Ticket{}, fmt.Errorf("%w: conversation %s is %s", ErrInvalidTransition, conv.ID, current.Status)
		}
	}
	return domain.Ticket{}, fmt.Errorf("create ticket: no free ticket id after %d attempts: %w", maxTicketAttempts, storage.ErrConflict)
}

// notify runs send in the background, detached from the request but
// bounded by notifyTimeout. Wait blocks until it is done.
func (o *Orchestrator) notify(ctx context.Context, t domain.Ticket, send func(Notifier, context.Context, domain.Ticket) error) {
	if o.notifier == nil {
		return
	}
	o.background.Add(1)
	go func() {
		defer o.background.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()
		if err := send(o.notifier, ctx, t); err != nil {
			o.logger.Warn("ticket notification failed", zap.String("ticket_id", t.TicketID), zap.Error(err))
		}
	}()
}
