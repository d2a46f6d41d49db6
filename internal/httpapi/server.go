// Package httpapi exposes the support pipeline over HTTP and websockets.
package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"supportbot/internal/analytics"
	"supportbot/internal/domain"
	"supportbot/internal/integrations/llm"
	"supportbot/internal/knowledge"
	"supportbot/internal/orchestrator"
	"supportbot/internal/reply"
	"supportbot/internal/storage"
)

const (
	defaultSearchLimit = 5
	maxSearchLimit     = 20
	defaultListLimit   = 50
)

// UsageSource reports token usage per model since startup.
type UsageSource interface {
	Usage() map[string]llm.Usage
}

type Deps struct {
	Chat       *orchestrator.Orchestrator
	Knowledge  *knowledge.Manager
	Stats      *analytics.Service
	Usage      UsageSource // optional
	CORSOrigin string
	Logger     *zap.Logger
}

type server struct {
	chat    *orchestrator.Orchestrator
	kb      *knowledge.Manager
	stats   *analytics.Service
	usage   UsageSource
	origins []string
	logger  *zap.Logger
}

// NewRouter builds the gin engine with every API route mounted under /api.
func NewRouter(d Deps) *gin.Engine {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &server{
		chat:    d.Chat,
		kb:      d.Knowledge,
		stats:   d.Stats,
		usage:   d.Usage,
		origins: corsOrigins(d.CORSOrigin),
		logger:  logger,
	}

	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     s.origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	api := r.Group("/api")
	api.GET("/health", s.health)

	chat := api.Group("/chat")
	{
		chat.POST("/message", s.postMessage)
		chat.GET("/ws", s.chatSocket)
		chat.GET("/conversations", s.listConversations)
		chat.GET("/conversations/:id", s.getConversation)
		chat.POST("/conversations/:id/escalate", s.escalateConversation)
		chat.POST("/conversations/:id/resolve", s.resolveConversation)
		chat.POST("/conversations/:id/actions", s.evaluateAction)
		chat.GET("/conversations/:id/summary", s.summarizeConversation)
	}

	esc := api.Group("/escalations")
	{
		esc.GET("", s.listTickets)
		esc.GET("/stats", s.escalationStats)
		esc.GET("/:ticketId", s.getTicket)
		esc.POST("/:ticketId/assign", s.assignTicket)
		esc.POST("/:ticketId/resolve", s.resolveTicket)
		esc.PATCH("/:ticketId/priority", s.setTicketPriority)
	}

	kb := api.Group("/knowledge-base")
	{
		kb.GET("/categories", s.listCategories)
		kb.GET("/articles", s.listArticles)
		kb.GET("/articles/:id", s.getArticle)
		kb.POST("/articles", s.createArticle)
		kb.PUT("/articles/:id", s.updateArticle)
		kb.DELETE("/articles/:id", s.deleteArticle)
		kb.GET("/search", s.searchArticles)
		kb.POST("/train", s.train)
	}

	stats := api.Group("/analytics")
	{
		stats.GET("/stats", s.dashboardStats)
		stats.GET("/issues", s.topIssues)
		stats.GET("/escalation-reasons", s.escalationReasons)
		stats.GET("/ai-vs-human", s.aiVsHuman)
		stats.GET("/metrics", s.metrics)
	}

	settings := api.Group("/settings")
	{
		settings.GET("/model", s.getModel)
		settings.POST("/model", s.setModel)
	}
	return r
}

// NewServer wraps the router in an http.Server with conservative timeouts.
// WriteTimeout stays unset because model calls can be slow.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func corsOrigins(raw string) []string {
	var out []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		out = []string{"http://localhost:5173"}
	}
	return out
}

func (s *server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}

func (s *server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"model":     s.chat.Model(),
		"articles":  s.kb.Base().Len(),
		"timestamp": time.Now().UTC(),
	})
}

// fail maps service errors onto status codes. Unexpected errors are logged
// and hidden from the caller.
func (s *server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, orchestrator.ErrValidation), errors.Is(err, knowledge.ErrInvalidArticle):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, orchestrator.ErrInvalidTransition), errors.Is(err, storage.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

func notFound(c *gin.Context, what string) {
	c.JSON(http.StatusNotFound, gin.H{"error": what + " not found"})
}

// chatFailure is what the customer sees when the pipeline itself failed.
// The message has the same shape as a normal AI reply.
func chatFailure(conversationID string) gin.H {
	degraded := reply.Degraded(nil)
	return gin.H{
		"error":          "internal server error",
		"conversationId": conversationID,
		"message": domain.Message{
			ID:              uuid.NewString(),
			ConversationID:  conversationID,
			Role:            domain.RoleAI,
			Content:         degraded.Content,
			ConfidenceScore: &degraded.ConfidenceScore,
			CreatedAt:       time.Now().UTC(),
		},
		"suggestedResponses": degraded.SuggestedResponses,
		"shouldEscalate":     true,
	}
}

func queryInt(c *gin.Context, key string, def, ceiling int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if ceiling > 0 && n > ceiling {
		return ceiling
	}
	return n
}
