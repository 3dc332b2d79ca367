package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/figuregen-backend/internal/data/repos"
	"github.com/yungbote/figuregen-backend/internal/domain/figures"
	"github.com/yungbote/figuregen-backend/internal/http/response"
	errs "github.com/yungbote/figuregen-backend/internal/pkg/errors"
	"github.com/yungbote/figuregen-backend/internal/services"
)

type FigureHandler struct {
	figures services.FigureService
}

func NewFigureHandler(figureService services.FigureService) *FigureHandler {
	return &FigureHandler{figures: figureService}
}

// GET /api/figures?state=&q=&lesson_url=&limit=&offset=
func (h *FigureHandler) List(c *gin.Context) {
	filter := repos.FigureFilter{
		State:     figures.State(strings.TrimSpace(c.Query("state"))),
		Query:     c.Query("q"),
		LessonURL: c.Query("lesson_url"),
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		raw := strings.TrimSpace(c.Query(name))
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			response.RespondErr(c, fmt.Errorf("%w: %s must be a non-negative integer", errs.ErrInvalidInput, name))
			return
		}
		*dst = n
	}
	items, total, err := h.figures.List(c.Request.Context(), filter)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"figures": items, "total": total})
}

// POST /api/figures
func (h *FigureHandler) Create(c *gin.Context) {
	var in services.CreateFigureInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	f, err := h.figures.Create(c.Request.Context(), in)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"figure": f})
}

// GET /api/figures/:id
func (h *FigureHandler) Get(c *gin.Context) {
	id, err := figureIDParam(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	f, err := h.figures.Get(c.Request.Context(), id)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"figure": f})
}

// PUT /api/figures/:id
func (h *FigureHandler) Update(c *gin.Context) {
	id, err := figureIDParam(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	var body map[string]interface{}
	if err := c.ShouldBindJSON(&body); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	f, err := h.figures.Update(c.Request.Context(), id, body)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"figure": f})
}

// DELETE /api/figures/:id
func (h *FigureHandler) Delete(c *gin.Context) {
	id, err := figureIDParam(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	if err := h.figures.Delete(c.Request.Context(), id); err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"deleted": id})
}

// GET /api/figures/:id/instructions/:variant
func (h *FigureHandler) Instructions(c *gin.Context) {
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
	view, err := h.figures.Instructions(c.Request.Context(), id, v)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"instructions": view})
}

// GET /api/figures/:id/runs
func (h *FigureHandler) Runs(c *gin.Context) {
	id, err := figureIDParam(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	runs, err := h.figures.Runs(c.Request.Context(), id, limit)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"runs": runs})
}
