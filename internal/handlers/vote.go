package handlers

import (
	"net/http"
	"piiquante/internal/ledger"
	"piiquante/internal/middleware"
	"piiquante/internal/services"

	"github.com/gin-gonic/gin"
)

type VoteHandler struct {
	catalog *services.SauceCatalog
}

func NewVoteHandler(catalog *services.SauceCatalog) *VoteHandler {
	return &VoteHandler{catalog: catalog}
}

type voteRequest struct {
	UserID string `json:"userId"`
	Like   *int   `json:"like"`
}

// Vote handles POST /api/sauces/:id/like. like must be 1, 0 or -1; a userId
// in the body, when sent, must be the authenticated caller.
func (h *VoteHandler) Vote(c *gin.Context) {
	callerID := middleware.CallerID(c)

	var req voteRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Like == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": ledger.ErrInvalidVoteValue.Error()})
		return
	}
	if req.UserID != "" && req.UserID != callerID {
		respondError(c, services.ErrUnauthorized)
		return
	}
	vote, err := ledger.ParseVote(*req.Like)
	if err != nil {
		respondError(c, err)
		return
	}

	sauce, err := h.catalog.Vote(c.Request.Context(), callerID, c.Param("id"), vote)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sauce)
}
