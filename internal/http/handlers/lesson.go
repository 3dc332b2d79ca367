package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/figuregen-backend/internal/http/response"
	"github.com/yungbote/figuregen-backend/internal/modules/lessonimport"
)

type LessonHandler struct {
	importer *lessonimport.Importer
}

func NewLessonHandler(importer *lessonimport.Importer) *LessonHandler {
	return &LessonHandler{importer: importer}
}

type importRequest struct {
	URL string `json:"url" binding:"required"`
}

// POST /api/lessons/import
func (h *LessonHandler) Import(c *gin.Context) {
	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	res, err := h.importer.Import(c.Request.Context(), req.URL)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"lesson": res})
}
