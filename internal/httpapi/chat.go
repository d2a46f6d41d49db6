package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"supportbot/internal/domain"
	"supportbot/internal/orchestrator"
)

func (s *server) postMessage(c *gin.Context) {
	var req domain.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	resp, err := s.chat.Process(c.Request.Context(), req)
	if err != nil {
		if statusFor(err) != http.StatusInternalServerError {
			s.fail(c, err)
			return
		}
		s.logger.Error("chat pipeline failed", zap.String("conversation_id", req.ConversationID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, chatFailure(req.ConversationID))
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *server) listConversations(c *gin.Context) {
	convs, err := s.chat.Conversations(c.Request.Context(), queryInt(c, "limit", defaultListLimit, 0))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, convs)
}

func (s *server) getConversation(c *gin.Context) {
	detail, ok, err := s.chat.Conversation(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if !ok {
		notFound(c, "conversation")
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (s *server) escalateConversation(c *gin.Context) {
	var body struct {
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	ticket, err := s.chat.Escalate(c.Request.Context(), c.Param("id"), body.Reason)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, ticket)
}

func (s *server) resolveConversation(c *gin.Context) {
	conv, err := s.chat.Resolve(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (s *server) evaluateAction(c *gin.Context) {
	var body struct {
		ActionType string `json:"actionType"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	action, err := s.chat.EvaluateAction(c.Request.Context(), c.Param("id"), body.ActionType)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, action)
}

func (s *server) summarizeConversation(c *gin.Context) {
	sum, ok, err := s.chat.Summarize(c.Request.Context(), c.Param("id"), c.Query("model"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if !ok {
		notFound(c, "conversation")
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (s *server) getModel(c *gin.Context) {
	body := gin.H{
		"model":     s.chat.Model(),
		"available": s.chat.Models(),
	}
	if s.usage != nil {
		body["usage"] = s.usage.Usage()
	}
	c.JSON(http.StatusOK, body)
}

func (s *server) setModel(c *gin.Context) {
	var body struct {
		Model string `json:"model"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if err := s.chat.SetModel(body.Model); err != nil {
		if errors.Is(err, orchestrator.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":     err.Error(),
				"available": s.chat.Models(),
			})
			return
		}
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"model": s.chat.Model()})
}
