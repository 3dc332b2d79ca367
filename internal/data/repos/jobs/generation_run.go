package jobs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/figuregen-backend/internal/domain"
	"github.com/yungbote/figuregen-backend/internal/domain/jobs"
	"github.com/yungbote/figuregen-backend/internal/platform/dbctx"
	"github.com/yungbote/figuregen-backend/internal/platform/logger"
)

type GenerationRunRepo interface {
	Start(dbc dbctx.Context, figureID uuid.UUID, stage string, payload any) (*types.GenerationRun, error)
	Finish(dbc dbctx.Context, id uuid.UUID, runErr error, result any) error
	ListByFigure(dbc dbctx.Context, figureID uuid.UUID, limit int) ([]*types.GenerationRun, error)
}

type generationRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewGenerationRunRepo(db *gorm.DB, baseLog *logger.Logger) GenerationRunRepo {
	return &generationRunRepo{
		db:  db,
		log: baseLog.With("repo", "GenerationRunRepo"),
	}
}

func (r *generationRunRepo) Start(dbc dbctx.Context, figureID uuid.UUID, stage string, payload any) (*types.GenerationRun, error) {
	run := &types.GenerationRun{
		FigureID:  figureID,
		Stage:     stage,
		Status:    jobs.RunStatusRunning,
		Payload:   toJSON(payload),
		Result:    datatypes.JSON([]byte("{}")),
		StartedAt: time.Now().UTC(),
	}
	if err := dbc.DB(r.db).Create(run).Error; err != nil {
		return nil, err
	}
	return run, nil
}

func (r *generationRunRepo) Finish(dbc dbctx.Context, id uuid.UUID, runErr error, result any) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":      jobs.RunStatusSucceeded,
		"result":      toJSON(result),
		"finished_at": now,
		"updated_at":  now,
	}
	if runErr != nil {
		updates["status"] = jobs.RunStatusFailed
		updates["error"] = runErr.Error()
	}
	return dbc.DB(r.db).Model(&types.GenerationRun{}).Where("id = ?", id).Updates(updates).Error
}

func (r *generationRunRepo) ListByFigure(dbc dbctx.Context, figureID uuid.UUID, limit int) ([]*types.GenerationRun, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []*types.GenerationRun
	err := dbc.DB(r.db).
		Where("figure_id = ?", figureID).
		Order("started_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func toJSON(v any) datatypes.JSON {
	if v == nil {
		return datatypes.JSON([]byte("{}"))
	}
	b, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON([]byte("{}"))
	}
	return datatypes.JSON(b)
}
