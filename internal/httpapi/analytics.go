package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *server) dashboardStats(c *gin.Context) {
	stats, err := s.stats.Stats(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *server) topIssues(c *gin.Context) {
	issues, err := s.stats.TopIssues(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, issues)
}

func (s *server) escalationReasons(c *gin.Context) {
	reasons, err := s.stats.EscalationReasons(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, reasons)
}

func (s *server) aiVsHuman(c *gin.Context) {
	shares, err := s.stats.AIVsHuman(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, shares)
}

func (s *server) metrics(c *gin.Context) {
	m, err := s.stats.Metrics(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}
