package handlers

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	types "github.com/yungbote/figuregen-backend/internal/domain"
	"github.com/yungbote/figuregen-backend/internal/domain/figures"
	"github.com/yungbote/figuregen-backend/internal/modules/generation"
	errs "github.com/yungbote/figuregen-backend/internal/pkg/errors"
)

type stubGenerator struct {
	err   error
	stage figures.Stage
	opts  generation.StartOptions
}

func (s *stubGenerator) Start(ctx context.Context, id uuid.UUID, stage figures.Stage, opts generation.StartOptions) (*types.Figure, error) {
	s.stage, s.opts = stage, opts
	if s.err != nil {
		return nil, s.err
	}
	return &types.Figure{ID: id, CurrentState: figures.StateProcessing}, nil
}

func generationRouter(gen Generator) *gin.Engine {
	h := NewGenerationHandler(gen)
	r := gin.New()
	r.POST("/api/figures/:id/generate-instructions", h.GenerateInstructions)
	r.POST("/api/figures/:id/generate-svg", h.GenerateSVG)
	return r
}

func TestGenerateAccepted(t *testing.T) {
	gen := &stubGenerator{}
	r := generationRouter(gen)
	id := uuid.New()

	rec := doJSON(t, r, http.MethodPost, "/api/figures/"+id.String()+"/generate-instructions", nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Equal(t, figures.StageInstructions, gen.stage)
	assert.Empty(t, gen.opts.Variants)
	assert.Equal(t, "processing", decode(t, rec)["figure"].(map[string]any)["current_state"])

	rec = doJSON(t, r, http.MethodPost, "/api/figures/"+id.String()+"/generate-svg", map[string]any{"variants": []string{"textOnly"}})
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, figures.StageSVG, gen.stage)
	assert.Equal(t, []figures.Variant{figures.VariantTxtOnly}, gen.opts.Variants)
}

func TestGenerateErrorMapping(t *testing.T) {
	id := uuid.NewString()
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{errs.ErrNoInstructions, http.StatusBadRequest, "no_instructions"},
		{fmt.Errorf("slot held: %w", errs.ErrBusy), http.StatusConflict, "busy"},
		{fmt.Errorf("figure: %w", errs.ErrNotFound), http.StatusNotFound, "not_found"},
	}
	for _, tc := range cases {
		r := generationRouter(&stubGenerator{err: tc.err})
		rec := doJSON(t, r, http.MethodPost, "/api/figures/"+id+"/generate-svg", nil)
		assert.Equal(t, tc.status, rec.Code)
		assert.Equal(t, tc.code, errorCode(t, rec))
	}

	r := generationRouter(&stubGenerator{})
	rec := doJSON(t, r, http.MethodPost, "/api/figures/"+id+"/generate-svg", map[string]any{"variants": []string{"sideways"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
