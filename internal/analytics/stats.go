package analytics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"supportbot/internal/domain"
	"supportbot/internal/storage"
)

const (
	day           = 24 * time.Hour
	recentWindow  = 7 * day
	historyWindow = 30 * day
	topIssueLimit = 5
	reasonLimit   = 5
)

var shareColors = []string{
	"hsl(4, 78%, 58%)",
	"hsl(32, 100%, 50%)",
	"hsl(203, 68%, 54%)",
	"hsl(200, 80%, 36%)",
	"hsl(142, 69%, 58%)",
}

// StatsStore is the read side the statistics are computed from.
type StatsStore interface {
	ListConversations(ctx context.Context, limit int) ([]domain.Conversation, error)
	ListTickets(ctx context.Context, f storage.TicketFilter) ([]domain.Ticket, error)
	ListAnalyticsEvents(ctx context.Context, f storage.EventFilter) ([]domain.AnalyticsEvent, error)
}

type DashboardStats struct {
	ActiveConversations int          `json:"activeConversations"`
	ResolvedToday       int          `json:"resolvedToday"`
	AvgResolutionTime   string       `json:"avgResolutionTime"`
	AvgResolutionMins   float64      `json:"avgResolutionMinutes"`
	EscalationRate      string       `json:"escalationRate"`
	DeflectionRate      float64      `json:"deflectionRate"`
	IntentCaptureRate   float64      `json:"intentCaptureRate"`
	TopIssues           []IssueCount `json:"topIssues"`
}

type IssueCount struct {
	Issue string `json:"issue"`
	Count int    `json:"count"`
}

type Share struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
	Color string `json:"color"`
}

// Metrics are the 7 day operational rates, as percentages.
type Metrics struct {
	Conversations     int     `json:"conversations"`
	Escalated         int     `json:"escalated"`
	Resolved          int     `json:"resolved"`
	IntentSignals     int     `json:"intentSignals"`
	DeflectionRate    float64 `json:"deflectionRate"`
	ResolutionRate    float64 `json:"resolutionRate"`
	IntentCaptureRate float64 `json:"intentCaptureRate"`
}

type Service struct {
	store StatsStore
	loc   *time.Location
	now   func() time.Time
}

// NewService computes statistics in loc, which decides where "today" starts.
func NewService(store StatsStore, loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{store: store, loc: loc, now: time.Now}
}

func (s *Service) Stats(ctx context.Context) (DashboardStats, error) {
	convs, err := s.store.ListConversations(ctx, 0)
	if err != nil {
		return DashboardStats{}, fmt.Errorf("list conversations: %w", err)
	}
	now := s.now().In(s.loc)
	y, m, d := now.Date()
	startOfDay := time.Date(y, m, d, 0, 0, 0, 0, s.loc)
	weekAgo := now.Add(-recentWindow)

	var out DashboardStats
	var resolvedMins float64
	var resolvedRecent int
	for _, c := range convs {
		switch c.Status {
		case domain.ConversationOpen:
			out.ActiveConversations++
		case domain.ConversationResolved:
			if !c.UpdatedAt.Before(startOfDay) {
				out.ResolvedToday++
			}
			if c.UpdatedAt.After(weekAgo) {
				resolvedRecent++
				resolvedMins += c.UpdatedAt.Sub(c.CreatedAt).Minutes()
			}
		}
	}
	if resolvedRecent > 0 {
		out.AvgResolutionMins = round1(resolvedMins / float64(resolvedRecent))
	}
	out.AvgResolutionTime = fmt.Sprintf("%.1f mins", out.AvgResolutionMins)

	metrics, err := s.metricsFor(ctx, convs, now)
	if err != nil {
		return DashboardStats{}, err
	}
	escalationRate := 0.0
	if metrics.Conversations > 0 {
		escalationRate = float64(metrics.Escalated) / float64(metrics.Conversations) * 100
	}
	out.EscalationRate = fmt.Sprintf("%.1f%%", escalationRate)
	out.DeflectionRate = metrics.DeflectionRate
	out.IntentCaptureRate = metrics.IntentCaptureRate

	out.TopIssues, err = s.TopIssues(ctx)
	if err != nil {
		return DashboardStats{}, err
	}
	return out, nil
}

// TopIssues counts ticket categories over the last 30 days, most common first.
func (s *Service) TopIssues(ctx context.Context) ([]IssueCount, error) {
	tickets, err := s.recentTickets(ctx)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, t := range tickets {
		counts[t.Category]++
	}
	out := make([]IssueCount, 0, len(counts))
	for issue, n := range counts {
		out = append(out, IssueCount{Issue: issue, Count: n})
	}
	sortCounts(out)
	if len(out) > topIssueLimit {
		out = out[:topIssueLimit]
	}
	return out, nil
}

// EscalationReasons is the share of each escalation reason over the last 30
// days, largest first.
func (s *Service) EscalationReasons(ctx context.Context) ([]Share, error) {
	tickets, err := s.recentTickets(ctx)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, t := range tickets {
		reason := t.EscalationReason
		if reason == "" {
			reason = "Unknown"
		}
		counts[reason]++
	}
	ranked := make([]IssueCount, 0, len(counts))
	for r, n := range counts {
		ranked = append(ranked, IssueCount{Issue: r, Count: n})
	}
	sortCounts(ranked)
	if len(ranked) > reasonLimit {
		ranked = ranked[:reasonLimit]
	}

	out := make([]Share, 0, len(ranked))
	for i, r := range ranked {
		out = append(out, Share{
			Name:  r.Issue,
			Value: percent(r.Count, len(tickets)),
			Color: shareColors[i%len(shareColors)],
		})
	}
	return out, nil
}

// AIVsHuman splits conversations resolved in the last 30 days by whether a
// ticket was ever raised for them.
func (s *Service) AIVsHuman(ctx context.Context) ([]Share, error) {
	convs, err := s.store.ListConversations(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	tickets, err := s.store.ListTickets(ctx, storage.TicketFilter{})
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	ticketed := make(map[string]bool, len(tickets))
	for _, t := range tickets {
		ticketed[t.ConversationID] = true
	}

	since := s.now().Add(-historyWindow)
	var ai, human int
	for _, c := range convs {
		if c.Status != domain.ConversationResolved || c.CreatedAt.Before(since) {
			continue
		}
		if ticketed[c.ID] {
			human++
		} else {
			ai++
		}
	}
	total := ai + human
	return []Share{
		{Name: "AI Resolved", Value: percent(ai, total), Color: "hsl(203, 68%, 54%)"},
		{Name: "Human Resolved", Value: percent(human, total), Color: "hsl(200, 80%, 36%)"},
	}, nil
}

func (s *Service) Metrics(ctx context.Context) (Metrics, error) {
	convs, err := s.store.ListConversations(ctx, 0)
	if err != nil {
		return Metrics{}, fmt.Errorf("list conversations: %w", err)
	}
	return s.metricsFor(ctx, convs, s.now())
}

func (s *Service) metricsFor(ctx context.Context, convs []domain.Conversation, now time.Time) (Metrics, error) {
	since := now.Add(-recentWindow)
	var m Metrics
	for _, c := range convs {
		if c.CreatedAt.Before(since) {
			continue
		}
		m.Conversations++
		switch c.Status {
		case domain.ConversationEscalated:
			m.Escalated++
		case domain.ConversationResolved:
			m.Resolved++
		}
	}
	events, err := s.store.ListAnalyticsEvents(ctx, storage.EventFilter{Type: domain.EventIntentSignal, Since: since})
	if err != nil {
		return Metrics{}, fmt.Errorf("list intent events: %w", err)
	}
	m.IntentSignals = len(events)
	if m.Conversations > 0 {
		total := float64(m.Conversations)
		m.DeflectionRate = round1(float64(m.Conversations-m.Escalated) / total * 100)
		m.ResolutionRate = round1(float64(m.Resolved) / total * 100)
		m.IntentCaptureRate = round1(math.Min(float64(m.IntentSignals)/total*100, 100))
	}
	return m, nil
}

func (s *Service) recentTickets(ctx context.Context) ([]domain.Ticket, error) {
	tickets, err := s.store.ListTickets(ctx, storage.TicketFilter{})
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	since := s.now().Add(-historyWindow)
	out := tickets[:0]
	for _, t := range tickets {
		if t.CreatedAt.After(since) {
			out = append(out, t)
		}
	}
	return out, nil
}

func sortCounts(cs []IssueCount) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].Count != cs[j].Count {
			return cs[i].Count > cs[j].Count
		}
		return cs[i].Issue < cs[j].Issue
	})
}

func percent(n, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(n) / float64(total) * 100))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
