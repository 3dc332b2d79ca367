package figures

import (
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/figuregen-backend/internal/domain"
	"github.com/yungbote/figuregen-backend/internal/domain/figures"
	errs "github.com/yungbote/figuregen-backend/internal/pkg/errors"
	"github.com/yungbote/figuregen-backend/internal/platform/dbctx"
	"github.com/yungbote/figuregen-backend/internal/platform/logger"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

type FigureFilter struct {
	State     figures.State
	Query     string
	LessonURL string
	IDs       []uuid.UUID
	Limit     int
	Offset    int
}

type FigureRepo interface {
	Create(dbc dbctx.Context, f *types.Figure) (*types.Figure, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Figure, error)
	GetByAssetID(dbc dbctx.Context, assetID string) (*types.Figure, error)
	List(dbc dbctx.Context, filter FigureFilter) ([]*types.Figure, int64, error)
	// UpdateFields applies a partial update; unspecified columns are untouched.
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) (*types.Figure, error)
	Delete(dbc dbctx.Context, id uuid.UUID) (bool, error)
}

type figureRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFigureRepo(db *gorm.DB, baseLog *logger.Logger) FigureRepo {
	return &figureRepo{
		db:  db,
		log: baseLog.With("repo", "FigureRepo"),
	}
}

func (r *figureRepo) Create(dbc dbctx.Context, f *types.Figure) (*types.Figure, error) {
	if f == nil {
		return nil, fmt.Errorf("%w: figure is required", errs.ErrInvalidInput)
	}
	f.AssetID = strings.TrimSpace(f.AssetID)
	f.LessonTitle = strings.TrimSpace(f.LessonTitle)
	if f.AssetID == "" {
		return nil, fmt.Errorf("%w: asset_id is required", errs.ErrInvalidInput)
	}
	if f.LessonTitle == "" {
		return nil, fmt.Errorf("%w: lesson_title is required", errs.ErrInvalidInput)
	}
	transaction := dbc.DB(r.db)

	var count int64
	if err := transaction.Model(&types.Figure{}).Where("asset_id = ?", f.AssetID).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, fmt.Errorf("%w: asset_id %q already exists", errs.ErrInvalidInput, f.AssetID)
	}
	if err := transaction.Create(f).Error; err != nil {
		return nil, err
	}
	return f, nil
}

func (r *figureRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Figure, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("%w: figure id is required", errs.ErrInvalidInput)
	}
	var f types.Figure
	err := dbc.DB(r.db).Where("id = ?", id).First(&f).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("figure %s: %w", id, errs.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *figureRepo) GetByAssetID(dbc dbctx.Context, assetID string) (*types.Figure, error) {
	var f types.Figure
	err := dbc.DB(r.db).Where("asset_id = ?", strings.TrimSpace(assetID)).First(&f).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("figure asset %q: %w", assetID, errs.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *figureRepo) List(dbc dbctx.Context, filter FigureFilter) ([]*types.Figure, int64, error) {
	where, args, err := filterSQL(filter)
	if err != nil {
		return nil, 0, err
	}
	q := dbc.DB(r.db).Model(&types.Figure{})
	if where != "" {
		q = q.Where(where, args...)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	var out []*types.Figure
	if err := q.Order("created_at DESC").Order("asset_id ASC").Limit(limit).Offset(offset).Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// filterSQL renders the WHERE clause for a filter with '?' placeholders.
func filterSQL(filter FigureFilter) (string, []interface{}, error) {
	conds := sq.And{}
	if filter.State != "" {
		conds = append(conds, sq.Eq{"current_state": string(filter.State)})
	}
	if s := strings.TrimSpace(filter.LessonURL); s != "" {
		conds = append(conds, sq.Eq{"lesson_url": s})
	}
	if len(filter.IDs) > 0 {
		ids := make([]string, 0, len(filter.IDs))
		for _, id := range filter.IDs {
			ids = append(ids, id.String())
		}
		conds = append(conds, sq.Eq{"id": ids})
	}
	if q := strings.ToLower(strings.TrimSpace(filter.Query)); q != "" {
		pattern := "%" + q + "%"
		conds = append(conds, sq.Or{
			sq.Like{"LOWER(asset_id)": pattern},
			sq.Like{"LOWER(lesson_title)": pattern},
			sq.Like{"LOWER(subheading)": pattern},
		})
	}
	if len(conds) == 0 {
		return "", nil, nil
	}
	return conds.ToSql()
}

func (r *figureRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) (*types.Figure, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("%w: figure id is required", errs.ErrInvalidInput)
	}
	if len(updates) > 0 {
		fields := make(map[string]interface{}, len(updates)+1)
		for k, v := range updates {
			fields[k] = v
		}
		fields["updated_at"] = time.Now().UTC()
		res := dbc.DB(r.db).Model(&types.Figure{}).Where("id = ?", id).Updates(fields)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, fmt.Errorf("figure %s: %w", id, errs.ErrNotFound)
		}
	}
	return r.GetByID(dbc, id)
}

func (r *figureRepo) Delete(dbc dbctx.Context, id uuid.UUID) (bool, error) {
	res := dbc.DB(r.db).Where("id = ?", id).Delete(&types.Figure{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
