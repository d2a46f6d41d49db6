package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supportbot/internal/analytics"
	"supportbot/internal/customers"
	"supportbot/internal/domain"
	"supportbot/internal/integrations/llm"
	"supportbot/internal/integrations/llm/llmtest"
	"supportbot/internal/knowledge"
	"supportbot/internal/orchestrator"
	"supportbot/internal/storage/sqlite"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var seedArticles = []domain.Article{
	{ID: "kb-returns", Category: "Returns", Title: "Return policy", Content: "Items can be returned within 30 days of delivery for a full refund."},
	{ID: "kb-shipping", Category: "Shipping", Title: "Shipping times", Content: "Standard shipping takes 5-7 business days. Express delivery takes 2 days."},
}

type fixedUsage map[string]llm.Usage

func (u fixedUsage) Usage() map[string]llm.Usage { return u }

func newTestRouter(t *testing.T, gw llm.Gateway) http.Handler {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	events := analytics.NewRecorder(store, nil, nil)
	kb := knowledge.NewManager(store, knowledge.NewBase(nil), events, nil)
	_, err = kb.Seed(context.Background(), seedArticles)
	require.NoError(t, err)

	models, err := llm.NewModelSelector("model-a", []string{"model-a", "model-b"})
	require.NoError(t, err)
	chat, err := orchestrator.New(orchestrator.Deps{
		Store:     store,
		Gateway:   gw,
		Models:    models,
		Knowledge: kb,
		Customers: customers.NewDirectory(),
		Events:    events,
	})
	require.NoError(t, err)

	return NewRouter(Deps{
		Chat:       chat,
		Knowledge:  kb,
		Stats:      analytics.NewService(store, time.UTC),
		Usage:      fixedUsage{"model-a": {InputTokens: 120, OutputTokens: 40, Calls: 2}},
		CORSOrigin: "http://localhost:5173",
	})
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	h := newTestRouter(t, llmtest.Failing(nil))
	rec := do(t, h, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "model-a", body["model"])
	assert.EqualValues(t, 2, body["articles"])
}

func TestChatEscalationFlow(t *testing.T) {
	h := newTestRouter(t, llmtest.Failing(nil))

	rec := do(t, h, http.MethodPost, "/api/chat/message", domain.ChatRequest{Message: "I want to speak to a manager"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[domain.ChatResponse](t, rec)
	require.True(t, resp.ShouldEscalate)
	require.NotEmpty(t, resp.TicketID)

	rec = do(t, h, http.MethodGet, "/api/chat/conversations/"+resp.ConversationID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[orchestrator.Detail](t, rec)
	assert.Equal(t, domain.ConversationEscalated, detail.Conversation.Status)
	require.NotNil(t, detail.Ticket)
	assert.Equal(t, resp.TicketID, detail.Ticket.TicketID)

	rec = do(t, h, http.MethodGet, "/api/escalations?priority=high", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	views := decode[[]orchestrator.TicketView](t, rec)
	require.Len(t, views, 1)
	assert.Equal(t, "Just now", views[0].WaitTime)

	rec = do(t, h, http.MethodPost, "/api/escalations/"+resp.TicketID+"/assign", map[string]string{"agent": "Priya"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.TicketInProgress, decode[domain.Ticket](t, rec).Status)

	rec = do(t, h, http.MethodPatch, "/api/escalations/"+resp.TicketID+"/priority", map[string]string{"priority": "urgent"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/escalations/"+resp.TicketID+"/resolve", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/escalations/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[orchestrator.EscalationStats](t, rec)
	assert.Equal(t, 1, stats.Resolved)
	assert.Equal(t, "0 min", stats.AvgWaitTime)

	rec = do(t, h, http.MethodPost, "/api/chat/conversations/"+resp.ConversationID+"/escalate", map[string]string{"reason": "again"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/analytics/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	dash := decode[analytics.DashboardStats](t, rec)
	assert.Equal(t, 1, dash.ResolvedToday)
	assert.Equal(t, []analytics.IssueCount{{Issue: "General", Count: 1}}, dash.TopIssues)
}

func TestChatValidationErrors(t *testing.T) {
	h := newTestRouter(t, llmtest.Failing(nil))

	rec := do(t, h, http.MethodPost, "/api/chat/message", map[string]string{"message": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/chat/message", domain.ChatRequest{Message: "hi", Model: "model-z"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/chat/message", bytes.NewBufferString("{not json"))
	raw := httptest.NewRecorder()
	h.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)

	rec = do(t, h, http.MethodGet, "/api/chat/conversations/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, h, http.MethodPost, "/api/chat/conversations/missing/resolve", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, h, http.MethodGet, "/api/escalations/TKT-0000", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, h, http.MethodGet, "/api/escalations?status=pending", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConversationActionsAndResolve(t *testing.T) {
	h := newTestRouter(t, llmtest.Routes(llmtest.Route{Contains: "You are ShopAI", Text: "Returns are accepted within 30 days."}))

	rec := do(t, h, http.MethodPost, "/api/chat/message", domain.ChatRequest{Message: "what is your return policy?"})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[domain.ChatResponse](t, rec)
	assert.False(t, resp.ShouldEscalate)
	require.NotEmpty(t, resp.SourceCitations)
	assert.Equal(t, "kb-returns", resp.SourceCitations[0].ArticleID)

	rec = do(t, h, http.MethodPost, "/api/chat/conversations/"+resp.ConversationID+"/actions", map[string]string{"actionType": "teleport"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, http.MethodPost, "/api/chat/conversations/"+resp.ConversationID+"/actions", map[string]string{"actionType": "expedite_shipping"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[domain.QuickAction](t, rec).AutoApproved)

	rec = do(t, h, http.MethodGet, "/api/chat/conversations/"+resp.ConversationID+"/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	for i := 0; i < 2; i++ {
		rec = do(t, h, http.MethodPost, "/api/chat/conversations/"+resp.ConversationID+"/resolve", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, domain.ConversationResolved, decode[domain.Conversation](t, rec).Status)
	}

	rec = do(t, h, http.MethodGet, "/api/chat/conversations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.Conversation](t, rec), 1)
}

func TestKnowledgeBaseRoutes(t *testing.T) {
	h := newTestRouter(t, llmtest.Failing(nil))

	rec := do(t, h, http.MethodGet, "/api/knowledge-base/categories", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]knowledge.Category](t, rec), 2)

	rec = do(t, h, http.MethodPost, "/api/knowledge-base/articles", knowledge.ArticleInput{Category: "Billing"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/knowledge-base/articles", knowledge.ArticleInput{
		Category: "Billing", Title: "Payment methods", Content: "We accept credit cards and PayPal for payment.",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[domain.Article](t, rec)

	rec = do(t, h, http.MethodGet, "/api/knowledge-base/search?q=paypal+payment", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var found struct {
		Results []knowledge.Match `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &found))
	require.NotEmpty(t, found.Results)
	assert.Equal(t, created.ID, found.Results[0].Article.ID)

	rec = do(t, h, http.MethodGet, "/api/knowledge-base/search", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	title := "Accepted payment methods"
	rec = do(t, h, http.MethodPut, "/api/knowledge-base/articles/"+created.ID, knowledge.ArticlePatch{Title: &title})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, title, decode[domain.Article](t, rec).Title)

	rec = do(t, h, http.MethodDelete, "/api/knowledge-base/articles/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, h, http.MethodGet, "/api/knowledge-base/articles/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/knowledge-base/train", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decode[knowledge.TrainingResult](t, rec).ArticlesProcessed)
}

func TestModelSettings(t *testing.T) {
	h := newTestRouter(t, llmtest.Failing(nil))

	rec := do(t, h, http.MethodPost, "/api/settings/model", map[string]string{"model": "model-z"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/settings/model", map[string]string{"model": "model-b"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/settings/model", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "model-b", body["model"])
	assert.Len(t, body["available"], 2)
	usage := body["usage"].(map[string]any)["model-a"].(map[string]any)
	assert.EqualValues(t, 120, usage["inputTokens"])
	assert.EqualValues(t, 2, usage["calls"])
}

func TestAnalyticsRoutes(t *testing.T) {
	h := newTestRouter(t, llmtest.Failing(nil))
	for _, path := range []string{
		"/api/analytics/issues",
		"/api/analytics/escalation-reasons",
		"/api/analytics/ai-vs-human",
		"/api/analytics/metrics",
	} {
		rec := do(t, h, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestChatSocket(t *testing.T) {
	ts := httptest.NewServer(newTestRouter(t, llmtest.Failing(nil)))
	defer ts.Close()

	u, err := url.Parse(ts.URL)
	require.NoError(t, err)
	u.Scheme = "ws"
	u.Path = "/api/chat/ws"

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(domain.ChatRequest{Message: "where is my package?"}))
	var first domain.ChatResponse
	require.NoError(t, conn.ReadJSON(&first))
	require.NotEmpty(t, first.ConversationID)
	assert.Equal(t, domain.RoleAI, first.Message.Role)

	require.NoError(t, conn.WriteJSON(domain.ChatRequest{Message: "", ConversationID: first.ConversationID}))
	var failed wsError
	require.NoError(t, conn.ReadJSON(&failed))
	assert.Contains(t, failed.Error, "message is required")

	require.NoError(t, conn.WriteJSON(domain.ChatRequest{Message: "any update?", ConversationID: first.ConversationID}))
	var second domain.ChatResponse
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, first.ConversationID, second.ConversationID)
}

func TestChatSocketRejectsForeignOrigin(t *testing.T) {
	ts := httptest.NewServer(newTestRouter(t, llmtest.Failing(nil)))
	defer ts.Close()

	u, _ := url.Parse(ts.URL)
	u.Scheme = "ws"
	u.Path = "/api/chat/ws"
	headers := http.Header{}
	headers.Set("Origin", "https://evil.example")
	_, resp, err := websocket.DefaultDialer.Dial(u.String(), headers)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	h := newTestRouter(t, llmtest.Failing(nil))
	req := httptest.NewRequest(http.MethodOptions, "/api/chat/message", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(orchestrator.ErrValidation))
	assert.Equal(t, http.StatusConflict, statusFor(orchestrator.ErrInvalidTransition))
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
}

func TestChatFailureCarriesAnAIMessage(t *testing.T) {
	raw, err := json.Marshal(chatFailure("conv-9"))
	require.NoError(t, err)

	var body struct {
		Error              string         `json:"error"`
		ConversationID     string         `json:"conversationId"`
		Message            domain.Message `json:"message"`
		SuggestedResponses []string       `json:"suggestedResponses"`
		ShouldEscalate     bool           `json:"shouldEscalate"`
	}
	require.NoError(t, json.Unmarshal(raw, &body))

	assert.Equal(t, "conv-9", body.ConversationID)
	assert.True(t, body.ShouldEscalate)
	assert.Equal(t, domain.RoleAI, body.Message.Role)
	assert.Equal(t, "conv-9", body.Message.ConversationID)
	assert.NotEmpty(t, body.Message.ID)
	assert.NotEmpty(t, body.Message.Content)
	require.NotNil(t, body.Message.ConfidenceScore)
	assert.InDelta(t, 0.3, *body.Message.ConfidenceScore, 1e-9)
	assert.NotEmpty(t, body.SuggestedResponses)
}
