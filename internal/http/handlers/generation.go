package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/yungbote/figuregen-backend/internal/domain"
	"github.com/yungbote/figuregen-backend/internal/domain/figures"
	"github.com/yungbote/figuregen-backend/internal/http/response"
	"github.com/yungbote/figuregen-backend/internal/modules/generation"
)

// Generator starts a generation stage in the background.
type Generator interface {
	Start(ctx context.Context, id uuid.UUID, stage figures.Stage, opts generation.StartOptions) (*types.Figure, error)
}

type GenerationHandler struct {
	gen Generator
}

func NewGenerationHandler(gen Generator) *GenerationHandler {
	return &GenerationHandler{gen: gen}
}

type generateRequest struct {
	Variants []string `json:"variants"`
}

// POST /api/figures/:id/generate-instructions
func (h *GenerationHandler) GenerateInstructions(c *gin.Context) {
	h.start(c, figures.StageInstructions)
}

// POST /api/figures/:id/generate-svg
func (h *GenerationHandler) GenerateSVG(c *gin.Context) {
	h.start(c, figures.StageSVG)
}

func (h *GenerationHandler) start(c *gin.Context, stage figures.Stage) {
	id, err := figureIDParam(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	variants, err := parseVariants(req.Variants)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	f, err := h.gen.Start(c.Request.Context(), id, stage, generation.StartOptions{Variants: variants})
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondAccepted(c, gin.H{"figure": f, "stage": stage})
}
