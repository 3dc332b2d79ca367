package services

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/yungbote/figuregen-backend/internal/data/repos"
	types "github.com/yungbote/figuregen-backend/internal/domain"
	"github.com/yungbote/figuregen-backend/internal/domain/figures"
	errs "github.com/yungbote/figuregen-backend/internal/pkg/errors"
	"github.com/yungbote/figuregen-backend/internal/platform/dbctx"
	"github.com/yungbote/figuregen-backend/internal/platform/logger"
)

// SessionTracker reports follow-up sessions with work in flight.
type SessionTracker interface {
	IsBusy(figureID uuid.UUID) bool
	Forget(ctx context.Context, figureID uuid.UUID)
}

type CreateFigureInput struct {
	AssetID      string `json:"asset_id"`
	LessonTitle  string `json:"lesson_title"`
	LessonURL    string `json:"lesson_url"`
	ImgURL       string `json:"img_url"`
	ImgTag       string `json:"img_tag"`
	Subheading   string `json:"subheading"`
	ImgCaption   string `json:"img_caption"`
	CleanedXHTML string `json:"cleaned_xhtml"`
	Remarks      string `json:"remarks"`
}

// InstructionsView is the instructions slot of one variant, with the
// markdown rendered for preview.
type InstructionsView struct {
	FigureID uuid.UUID          `json:"figure_id"`
	Variant  figures.Variant    `json:"variant"`
	Status   figures.SlotStatus `json:"status"`
	Markdown string             `json:"markdown"`
	HTML     string             `json:"html"`
	Reason   string             `json:"reason,omitempty"`
}

type FigureService interface {
	List(ctx context.Context, filter repos.FigureFilter) ([]*types.Figure, int64, error)
	Get(ctx context.Context, id uuid.UUID) (*types.Figure, error)
	Create(ctx context.Context, in CreateFigureInput) (*types.Figure, error)
	Update(ctx context.Context, id uuid.UUID, body map[string]interface{}) (*types.Figure, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Instructions(ctx context.Context, id uuid.UUID, v figures.Variant) (*InstructionsView, error)
	Runs(ctx context.Context, id uuid.UUID, limit int) ([]*types.GenerationRun, error)
}

type figureService struct {
	figures  repos.FigureRepo
	runs     repos.GenerationRunRepo
	sessions SessionTracker
	md       goldmark.Markdown
	log      *logger.Logger
}

func NewFigureService(baseLog *logger.Logger, figureRepo repos.FigureRepo, runRepo repos.GenerationRunRepo, sessions SessionTracker) FigureService {
	return &figureService{
		figures:  figureRepo,
		runs:     runRepo,
		sessions: sessions,
		md:       goldmark.New(goldmark.WithExtensions(extension.GFM)),
		log:      baseLog.With("service", "FigureService"),
	}
}

func (s *figureService) List(ctx context.Context, filter repos.FigureFilter) ([]*types.Figure, int64, error) {
	if filter.State != "" && !filter.State.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown state %q", errs.ErrInvalidInput, filter.State)
	}
	return s.figures.List(dbctx.New(ctx), filter)
}

func (s *figureService) Get(ctx context.Context, id uuid.UUID) (*types.Figure, error) {
	return s.figures.GetByID(dbctx.New(ctx), id)
}

func (s *figureService) Create(ctx context.Context, in CreateFigureInput) (*types.Figure, error) {
	f, err := s.figures.Create(dbctx.New(ctx), &types.Figure{
		AssetID:      in.AssetID,
		LessonTitle:  in.LessonTitle,
		LessonURL:    strings.TrimSpace(in.LessonURL),
		ImgURL:       strings.TrimSpace(in.ImgURL),
		ImgTag:       in.ImgTag,
		Subheading:   strings.TrimSpace(in.Subheading),
		ImgCaption:   in.ImgCaption,
		CleanedXHTML: in.CleanedXHTML,
		Remarks:      in.Remarks,
		CurrentState: figures.StatePending,
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("Figure created", "figure_id", f.ID, "asset_id", f.AssetID)
	return f, nil
}

// editable maps accepted request keys to columns. The legacy dashboard
// spellings are accepted too.
var editable = map[string]string{
	"lesson_title":            "lesson_title",
	"title":                   "lesson_title",
	"img_url":                 "img_url",
	"img_caption":             "img_caption",
	"cleaned_xhtml":           "cleaned_xhtml",
	"remarks":                 "remarks",
	"REMARKS":                 "remarks",
	"svg_with_image":          figures.ColumnsFor(figures.VariantWithImage, figures.StageSVG).Text,
	"output_svg_with_image":   figures.ColumnsFor(figures.VariantWithImage, figures.StageSVG).Text,
	"svg_txt_only":            figures.ColumnsFor(figures.VariantTxtOnly, figures.StageSVG).Text,
	"output_svg_txt_only":     figures.ColumnsFor(figures.VariantTxtOnly, figures.StageSVG).Text,
	"svg_accepted_with_image": figures.AcceptedColumn(figures.VariantWithImage),
	"svg_accepted_txt_only":   figures.AcceptedColumn(figures.VariantTxtOnly),
}

// Update applies the editable subset of body. Unknown keys are ignored; a
// body with no editable key is rejected.
func (s *figureService) Update(ctx context.Context, id uuid.UUID, body map[string]interface{}) (*types.Figure, error) {
	updates := map[string]interface{}{}
	for key, raw := range body {
		col, ok := editable[key]
		if !ok {
			continue
		}
		if strings.HasPrefix(col, "svg_accepted_") {
			b, ok := raw.(bool)
			if !ok {
				return nil, fmt.Errorf("%w: %s must be a boolean", errs.ErrInvalidInput, key)
			}
			updates[col] = b
			continue
		}
		str, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s must be a string", errs.ErrInvalidInput, key)
		}
		updates[col] = str
	}
	if len(updates) == 0 {
		return nil, fmt.Errorf("%w: no editable fields in request", errs.ErrInvalidInput)
	}
	if t, ok := updates["lesson_title"].(string); ok && strings.TrimSpace(t) == "" {
		return nil, fmt.Errorf("%w: lesson_title cannot be empty", errs.ErrInvalidInput)
	}

	dbc := dbctx.New(ctx)
	if img, ok := updates["img_url"].(string); ok {
		current, err := s.figures.GetByID(dbc, id)
		if err != nil {
			return nil, err
		}
		img = strings.TrimSpace(img)
		updates["img_url"] = img
		if img != current.ImgURL {
			// The uploaded artifact belongs to the old image.
			updates["image_file_id"] = ""
		}
	}
	f, err := s.figures.UpdateFields(dbc, id, updates)
	if err != nil {
		return nil, err
	}
	s.log.Info("Figure updated", "figure_id", id, "fields", len(updates))
	return f, nil
}

func (s *figureService) Delete(ctx context.Context, id uuid.UUID) error {
	if s.sessions != nil && s.sessions.IsBusy(id) {
		return fmt.Errorf("%w: a follow-up submission is in flight", errs.ErrBusy)
	}
	ok, err := s.figures.Delete(dbctx.New(ctx), id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("figure %s: %w", id, errs.ErrNotFound)
	}
	if s.sessions != nil {
		s.sessions.Forget(ctx, id)
	}
	s.log.Info("Figure deleted", "figure_id", id)
	return nil
}

func (s *figureService) Instructions(ctx context.Context, id uuid.UUID, v figures.Variant) (*InstructionsView, error) {
	f, err := s.figures.GetByID(dbctx.New(ctx), id)
	if err != nil {
		return nil, err
	}
	slot := f.Slot(v, figures.StageInstructions)
	if slot == nil {
		return nil, fmt.Errorf("%w: unknown variant %q", errs.ErrInvalidInput, v)
	}
	view := &InstructionsView{FigureID: f.ID, Variant: v, Status: slot.Status, Reason: slot.Reason}
	if slot.Status != figures.SlotDone {
		return view, nil
	}
	view.Markdown = slot.Text
	var buf bytes.Buffer
	if err := s.md.Convert([]byte(slot.Text), &buf); err != nil {
		return nil, fmt.Errorf("render instructions: %w", err)
	}
	view.HTML = buf.String()
	return view, nil
}

func (s *figureService) Runs(ctx context.Context, id uuid.UUID, limit int) ([]*types.GenerationRun, error) {
	dbc := dbctx.New(ctx)
	if _, err := s.figures.GetByID(dbc, id); err != nil {
		return nil, err
	}
	return s.runs.ListByFigure(dbc, id, limit)
}
