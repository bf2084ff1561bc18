// Package handlers provides HTTP handlers for the presentation layer.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cursedboard/cursedboard-go/internal/application/services"
	"github.com/cursedboard/cursedboard-go/internal/infrastructure/observability/logging"
	"github.com/cursedboard/cursedboard-go/internal/presentation/http/middleware"
)

// RitualHandlers serves the visitor-facing curse endpoints.
type RitualHandlers struct {
	engine *services.RitualEngine
	logger *logging.ChanneledLogger
}

// NewRitualHandlers creates the ritual handlers.
func NewRitualHandlers(engine *services.RitualEngine, logger *logging.ChanneledLogger) *RitualHandlers {
	return &RitualHandlers{engine: engine, logger: logger}
}

// GetState returns the visitor's progression snapshot.
func (h *RitualHandlers) GetState(c *gin.Context) {
	state, err := h.engine.GetUserState(c.Request.Context(), middleware.GetVisitorID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "state unavailable"})
		return
	}
	if state == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown visitor"})
		return
	}
	c.JSON(http.StatusOK, h.engine.Snapshot(state))
}

// PostThreadView records a thread view.
func (h *RitualHandlers) PostThreadView(c *gin.Context) {
	threadID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid thread id"})
		return
	}

	state, err := h.engine.OnThreadView(c.Request.Context(), middleware.GetVisitorID(c), threadID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "state unavailable"})
		return
	}
	if state == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown visitor"})
		return
	}
	c.JSON(http.StatusOK, h.engine.Snapshot(state))
}

// PostPostView records a post view.
func (h *RitualHandlers) PostPostView(c *gin.Context) {
	postID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid post id"})
		return
	}

	state, err := h.engine.OnPostView(c.Request.Context(), middleware.GetVisitorID(c), postID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "state unavailable"})
		return
	}
	if state == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown visitor"})
		return
	}
	c.JSON(http.StatusOK, h.engine.Snapshot(state))
}

// PostActivity records time spent on site.
func (h *RitualHandlers) PostActivity(c *gin.Context) {
	var request struct {
		TimeSpent int `json:"time_spent"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	state, err := h.engine.OnActivity(c.Request.Context(), middleware.GetVisitorID(c), request.TimeSpent)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "state unavailable"})
		return
	}
	if state == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown visitor"})
		return
	}
	c.JSON(http.StatusOK, h.engine.Snapshot(state))
}

// PostMutatePosts corrupts a batch of posts for the visitor. The forum
// frontend proxies response content through this before rendering.
func (h *RitualHandlers) PostMutatePosts(c *gin.Context) {
	var request struct {
		Posts []map[string]any `json:"posts"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	mutated, err := h.engine.MutatePosts(c.Request.Context(), middleware.GetVisitorID(c), request.Posts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "state unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"posts": mutated})
}

// PostMutateThread corrupts a thread summary for the visitor.
func (h *RitualHandlers) PostMutateThread(c *gin.Context) {
	var request struct {
		Thread map[string]any `json:"thread"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	mutated, err := h.engine.MutateThread(c.Request.Context(), middleware.GetVisitorID(c), request.Thread)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "state unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"thread": mutated})
}

// GetGhostPost returns a fake post for a thread that exists only on the
// requesting client.
func (h *RitualHandlers) GetGhostPost(c *gin.Context) {
	threadID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid thread id"})
		return
	}
	c.JSON(http.StatusOK, h.engine.Mutator().GenerateFakePost(threadID))
}
