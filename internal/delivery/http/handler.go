package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dealscout/backend/internal/usecase"
)

// Handler holds dependencies for HTTP handlers
type Handler struct {
	search *usecase.SearchService
	answer *usecase.AnswerService
}

// NewHandler creates a new HTTP handler
func NewHandler(search *usecase.SearchService, answer *usecase.AnswerService) *Handler {
	return &Handler{search: search, answer: answer}
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "dealscout-backend",
		"version": "1.0.0",
	})
}

// Search handles deal search requests. The store parameter narrows the
// search to one store; without it every store is searched.
func (h *Handler) Search(c *gin.Context) {
	query := c.Query("query")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter is required"})
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = parsed
	}

	results, err := h.search.Search(c.Request.Context(), query, c.Query("store"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error searching: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, results)
}

// ListStores returns the stores that currently have indexed deals
func (h *Handler) ListStores(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"stores": h.search.Stores(c.Request.Context())})
}

type chatRequest struct {
	Query          string   `json:"query" binding:"required"`
	SelectedStores []string `json:"selected_stores"`
}

// Chat answers a natural-language question about grocery deals
func (h *Handler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return
	}

	answer, _, err := h.answer.Chat(c.Request.Context(), req.Query, req.SelectedStores)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error processing query: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"text": answer})
}

type compareRequest struct {
	Item string `json:"item" binding:"required"`
}

// Compare produces a cross-store price comparison for one item
func (h *Handler) Compare(c *gin.Context) {
	var req compareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "item is required"})
		return
	}

	answer, _, err := h.answer.Compare(c.Request.Context(), req.Item)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error comparing prices: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"text": answer})
}
