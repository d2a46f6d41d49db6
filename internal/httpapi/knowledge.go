package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"supportbot/internal/domain"
	"supportbot/internal/knowledge"
)

func (s *server) listCategories(c *gin.Context) {
	cats, err := s.kb.Categories(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	if cats == nil {
		cats = []knowledge.Category{}
	}
	c.JSON(http.StatusOK, cats)
}

func (s *server) listArticles(c *gin.Context) {
	articles, err := s.kb.Articles(c.Request.Context(), c.Query("category"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if articles == nil {
		articles = []domain.Article{}
	}
	c.JSON(http.StatusOK, articles)
}

func (s *server) getArticle(c *gin.Context) {
	a, ok, err := s.kb.Article(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if !ok {
		notFound(c, "article")
		return
	}
	c.JSON(http.StatusOK, a)
}

func (s *server) createArticle(c *gin.Context) {
	var in knowledge.ArticleInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	a, err := s.kb.Create(c.Request.Context(), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

func (s *server) updateArticle(c *gin.Context) {
	var patch knowledge.ArticlePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	a, ok, err := s.kb.Update(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		s.fail(c, err)
		return
	}
	if !ok {
		notFound(c, "article")
		return
	}
	c.JSON(http.StatusOK, a)
}

func (s *server) deleteArticle(c *gin.Context) {
	ok, err := s.kb.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if !ok {
		notFound(c, "article")
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *server) searchArticles(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		badRequest(c, "query parameter q is required")
		return
	}
	matches := s.kb.Search(q, queryInt(c, "limit", defaultSearchLimit, maxSearchLimit))
	if matches == nil {
		matches = []knowledge.Match{}
	}
	c.JSON(http.StatusOK, gin.H{"query": q, "results": matches})
}

func (s *server) train(c *gin.Context) {
	res, err := s.kb.Train(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
