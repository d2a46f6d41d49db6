package httpapi

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"supportbot/internal/domain"
)

const (
	maxChatFrameBytes = 64 << 10
	wsWriteTimeout    = 10 * time.Second
)

type wsError struct {
	Error string `json:"error"`
}

// chatSocket answers every ChatRequest frame with one ChatResponse frame
// until the client goes away. Frames are handled in order.
func (s *server) chatSocket(c *gin.Context) {
	upgrader := websocket.Upgrader{CheckOrigin: s.originAllowed}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("chat ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxChatFrameBytes)

	ctx := c.Request.Context()
	for {
		var req domain.ChatRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("chat ws closed", zap.Error(err))
			}
			return
		}

		var out any
		resp, err := s.chat.Process(ctx, req)
		switch {
		case err == nil:
			out = resp
		case statusFor(err) != http.StatusInternalServerError:
			out = wsError{Error: err.Error()}
		default:
			s.logger.Error("chat pipeline failed", zap.String("conversation_id", req.ConversationID), zap.Error(err))
			out = chatFailure(req.ConversationID)
		}

		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(out); err != nil {
			s.logger.Debug("chat ws write failed", zap.Error(err))
			return
		}
	}
}

// originAllowed accepts same-host pages, the configured CORS origins and
// clients that send no Origin at all.
func (s *server) originAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	for _, allowed := range s.origins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}
