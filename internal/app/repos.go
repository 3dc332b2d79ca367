package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/figuregen-backend/internal/data/repos"
	"github.com/yungbote/figuregen-backend/internal/platform/logger"
)

type Repos struct {
	Figures repos.FigureRepo
	Runs    repos.GenerationRunRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Figures: repos.NewFigureRepo(db, log),
		Runs:    repos.NewGenerationRunRepo(db, log),
	}
}
