package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/figuregen-backend/internal/data/repos/figures"
	"github.com/yungbote/figuregen-backend/internal/data/repos/jobs"
	"github.com/yungbote/figuregen-backend/internal/platform/logger"
)

type FigureRepo = figures.FigureRepo
type FigureFilter = figures.FigureFilter
type GenerationRunRepo = jobs.GenerationRunRepo

func NewFigureRepo(db *gorm.DB, log *logger.Logger) FigureRepo {
	return figures.NewFigureRepo(db, log)
}

func NewGenerationRunRepo(db *gorm.DB, log *logger.Logger) GenerationRunRepo {
	return jobs.NewGenerationRunRepo(db, log)
}
