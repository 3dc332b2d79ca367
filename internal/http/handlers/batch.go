package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/figuregen-backend/internal/domain/figures"
	"github.com/yungbote/figuregen-backend/internal/http/response"
	"github.com/yungbote/figuregen-backend/internal/modules/generation"
	errs "github.com/yungbote/figuregen-backend/internal/pkg/errors"
)

type BatchHandler struct {
	batches *generation.BatchCoordinator
}

func NewBatchHandler(batches *generation.BatchCoordinator) *BatchHandler {
	return &BatchHandler{batches: batches}
}

type batchRequest struct {
	IDs    []string `json:"ids"`
	Action string   `json:"action"`
}

// POST /api/batches
func (h *BatchHandler) Create(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	action, ok := figures.ParseStage(req.Action)
	if !ok {
		response.RespondErr(c, fmt.Errorf("%w: unknown batch action %q", errs.ErrInvalidInput, req.Action))
		return
	}
	ids, err := parseIDs(req.IDs)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	p, err := h.batches.Launch(c.Request.Context(), action, ids)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondAccepted(c, gin.H{"batch": p})
}

// GET /api/batches/:id
func (h *BatchHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_batch_id", err)
		return
	}
	p, err := h.batches.Get(id)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"batch": p})
}
