package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/figuregen-backend/internal/http/response"
	"github.com/yungbote/figuregen-backend/internal/modules/generation"
)

type FollowupHandler struct {
	followups *generation.FollowupManager
}

func NewFollowupHandler(followups *generation.FollowupManager) *FollowupHandler {
	return &FollowupHandler{followups: followups}
}

// POST /api/figures/:id/followups/:variant
func (h *FollowupHandler) Open(c *gin.Context) {
	id, err := figureIDParam(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	v, err := variantParam(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	view, err := h.followups.Open(c.Request.Context(), id, v)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	msgs, err := h.followups.Transcript(c.Request.Context(), id, v)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"session": view, "messages": msgs})
}

// GET /api/figures/:id/followups/:variant
func (h *FollowupHandler) Get(c *gin.Context) {
	id, err := figureIDParam(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	v, err := variantParam(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	view, err := h.followups.View(id, v)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	msgs, err := h.followups.Transcript(c.Request.Context(), id, v)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"session": view, "messages": msgs})
}

type followupMessageRequest struct {
	Message string `json:"message"`
}

// POST /api/figures/:id/followups/:variant/messages
func (h *FollowupHandler) Submit(c *gin.Context) {
	id, err := figureIDParam(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	v, err := variantParam(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	var req followupMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	candidate, err := h.followups.Submit(c.Request.Context(), id, v, req.Message)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"candidate": candidate, "has_svg": generation.HasSVG(candidate)})
}

type acceptRequest struct {
	SVG string `json:"svg"`
}

// POST /api/figures/:id/followups/:variant/accept
func (h *FollowupHandler) Accept(c *gin.Context) {
	id, err := figureIDParam(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	v, err := variantParam(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	var req acceptRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	f, err := h.followups.Accept(c.Request.Context(), id, v, req.SVG)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"figure": f})
}

// DELETE /api/figures/:id/followups/:variant
func (h *FollowupHandler) Close(c *gin.Context) {
	id, err := figureIDParam(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	v, err := variantParam(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	if err := h.followups.Reject(c.Request.Context(), id, v); err != nil {
		response.RespondErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
