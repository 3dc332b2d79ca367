package handlers

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/figuregen-backend/internal/http/response"
	"github.com/yungbote/figuregen-backend/internal/modules/generation"
	errs "github.com/yungbote/figuregen-backend/internal/pkg/errors"
)

const transcriptLimit = 100

type ThreadHandler struct {
	conv *generation.ConversationClient
}

func NewThreadHandler(conv *generation.ConversationClient) *ThreadHandler {
	return &ThreadHandler{conv: conv}
}

// GET /api/threads/:threadId/messages
func (h *ThreadHandler) Messages(c *gin.Context) {
	threadID := strings.TrimSpace(c.Param("threadId"))
	if threadID == "" {
		response.RespondErr(c, fmt.Errorf("%w: thread id is required", errs.ErrInvalidInput))
		return
	}
	msgs, err := h.conv.Transcript(c.Request.Context(), threadID, transcriptLimit)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"messages": msgs})
}
