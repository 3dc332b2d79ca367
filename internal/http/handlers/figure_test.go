package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/figuregen-backend/internal/data/repos"
	"github.com/yungbote/figuregen-backend/internal/data/repos/testutil"
	types "github.com/yungbote/figuregen-backend/internal/domain"
	"github.com/yungbote/figuregen-backend/internal/domain/figures"
	"github.com/yungbote/figuregen-backend/internal/services"
)

func figureRouter(t *testing.T) (*gin.Engine, *FigureHandler, func(mutate func(f *types.Figure)) *types.Figure) {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	svc := services.NewFigureService(log, repos.NewFigureRepo(db, log), repos.NewGenerationRunRepo(db, log), nil)
	h := NewFigureHandler(svc)
	r := gin.New()
	r.GET("/api/figures", h.List)
	r.POST("/api/figures", h.Create)
	r.GET("/api/figures/:id", h.Get)
	r.PUT("/api/figures/:id", h.Update)
	r.DELETE("/api/figures/:id", h.Delete)
	r.GET("/api/figures/:id/instructions/:variant", h.Instructions)
	r.GET("/api/figures/:id/runs", h.Runs)
	seed := func(mutate func(f *types.Figure)) *types.Figure {
		return testutil.SeedFigure(t, context.Background(), db, mutate)
	}
	return r, h, seed
}

func TestFigureCRUD(t *testing.T) {
	r, _, _ := figureRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/api/figures", map[string]any{"asset_id": "frac-1", "lesson_title": "Fractions"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	fig := decode(t, rec)["figure"].(map[string]any)
	id := fig["id"].(string)
	assert.Equal(t, "pending", fig["current_state"])

	rec = doJSON(t, r, http.MethodPost, "/api/figures", map[string]any{"asset_id": "frac-1", "lesson_title": "Fractions"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, r, http.MethodPut, "/api/figures/"+id, map[string]any{"remarks": "use blue"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "use blue", decode(t, rec)["figure"].(map[string]any)["remarks"])

	rec = doJSON(t, r, http.MethodPut, "/api/figures/"+id, map[string]any{"current_state": "completed"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, r, http.MethodGet, "/api/figures?q=frac", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode(t, rec)["total"])

	rec = doJSON(t, r, http.MethodDelete, "/api/figures/"+id, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(t, r, http.MethodGet, "/api/figures/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", errorCode(t, rec))
}

func TestFigureBadParams(t *testing.T) {
	r, _, _ := figureRouter(t)

	rec := doJSON(t, r, http.MethodGet, "/api/figures/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = doJSON(t, r, http.MethodGet, "/api/figures?limit=-3", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = doJSON(t, r, http.MethodGet, "/api/figures?state=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = doJSON(t, r, http.MethodGet, "/api/figures/"+uuid.NewString()+"/instructions/sideways", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFigureInstructionsPreview(t *testing.T) {
	r, _, seed := figureRouter(t)
	f := seed(func(f *types.Figure) {
		f.InsWithImage = figures.Slot{Status: figures.SlotDone, Text: "1. Draw a *line*"}
	})

	rec := doJSON(t, r, http.MethodGet, "/api/figures/"+f.ID.String()+"/instructions/withImage", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	view := decode(t, rec)["instructions"].(map[string]any)
	assert.Equal(t, "with_image", view["variant"])
	assert.Contains(t, view["html"], "<em>line</em>")

	rec = doJSON(t, r, http.MethodGet, "/api/figures/"+f.ID.String()+"/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
