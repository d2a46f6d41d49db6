package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"supportbot/internal/domain"
	"supportbot/internal/storage"
)

func (s *server) listTickets(c *gin.Context) {
	var f storage.TicketFilter
	if raw := strings.ToLower(strings.TrimSpace(c.Query("priority"))); raw != "" {
		p, ok := domain.ParsePriority(raw)
		if !ok {
			badRequest(c, "unknown priority "+raw)
			return
		}
		f.Priority = p
	}
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		switch st := domain.TicketStatus(raw); st {
		case domain.TicketOpen, domain.TicketInProgress, domain.TicketResolved:
			f.Status = st
		default:
			badRequest(c, "unknown status "+raw)
			return
		}
	}
	f.Category = strings.TrimSpace(c.Query("category"))

	tickets, err := s.chat.Tickets(c.Request.Context(), f)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tickets)
}

func (s *server) escalationStats(c *gin.Context) {
	stats, err := s.chat.EscalationStats(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *server) getTicket(c *gin.Context) {
	t, ok, err := s.chat.Ticket(c.Request.Context(), c.Param("ticketId"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if !ok {
		notFound(c, "ticket")
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *server) assignTicket(c *gin.Context) {
	var body struct {
		Agent string `json:"agent"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	t, err := s.chat.AssignTicket(c.Request.Context(), c.Param("ticketId"), body.Agent)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *server) resolveTicket(c *gin.Context) {
	t, err := s.chat.ResolveTicket(c.Request.Context(), c.Param("ticketId"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *server) setTicketPriority(c *gin.Context) {
	var body struct {
		Priority string `json:"priority"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	t, err := s.chat.SetTicketPriority(c.Request.Context(), c.Param("ticketId"), body.Priority)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}
