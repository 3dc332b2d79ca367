package domain

import (
	"github.com/yungbote/figuregen-backend/internal/domain/figures"
	"github.com/yungbote/figuregen-backend/internal/domain/jobs"
)

type (
	Figure        = figures.Figure
	Slot          = figures.Slot
	SlotStatus    = figures.SlotStatus
	Variant       = figures.Variant
	Stage         = figures.Stage
	State         = figures.State
	GenerationRun = jobs.GenerationRun
)

// Models lists every table owned by the service, in migration order.
func Models() []interface{} {
	return []interface{}{
		&figures.Figure{},
		&jobs.GenerationRun{},
	}
}
