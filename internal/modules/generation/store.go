package generation

import (
	"github.com/google/uuid"

	types "github.com/yungbote/figuregen-backend/internal/domain"
	"github.com/yungbote/figuregen-backend/internal/jobs/worker"
	"github.com/yungbote/figuregen-backend/internal/platform/dbctx"
)

// FigureStore is the record store contract the core reads and writes through.
type FigureStore interface {
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Figure, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) (*types.Figure, error)
}

// RunLedger records background stage executions.
type RunLedger interface {
	Start(dbc dbctx.Context, figureID uuid.UUID, stage string, payload any) (*types.GenerationRun, error)
	Finish(dbc dbctx.Context, id uuid.UUID, runErr error, result any) error
}

// Submitter accepts background tasks.
type Submitter interface {
	Submit(t worker.Task) error
}
