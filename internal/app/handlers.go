package app

import (
	httpapi "github.com/yungbote/figuregen-backend/internal/http"
	httpH "github.com/yungbote/figuregen-backend/internal/http/handlers"
	"github.com/yungbote/figuregen-backend/internal/observability"
	"github.com/yungbote/figuregen-backend/internal/platform/logger"
	"github.com/yungbote/figuregen-backend/internal/platform/objectstore"
)

const serviceName = "figuregen"

type Handlers struct {
	Health     *httpH.HealthHandler
	Figure     *httpH.FigureHandler
	Generation *httpH.GenerationHandler
	Batch      *httpH.BatchHandler
	Followup   *httpH.FollowupHandler
	Thread     *httpH.ThreadHandler
	Upload     *httpH.UploadHandler
	Lesson     *httpH.LessonHandler
}

func wireHandlers(log *logger.Logger, svc Services, clients Clients, ping httpH.PingFunc) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:     httpH.NewHealthHandler(ping),
		Figure:     httpH.NewFigureHandler(svc.Figures),
		Generation: httpH.NewGenerationHandler(svc.Orchestrator),
		Batch:      httpH.NewBatchHandler(svc.Batches),
		Followup:   httpH.NewFollowupHandler(svc.Followups),
		Thread:     httpH.NewThreadHandler(svc.Conversation),
		Upload:     httpH.NewUploadHandler(log, clients.Store),
		Lesson:     httpH.NewLessonHandler(svc.Importer),
	}
}

func wireServer(log *logger.Logger, cfg Config, handlers Handlers, metrics *observability.Metrics, storeMode objectstore.Mode) *httpapi.Server {
	return httpapi.NewServer(httpapi.RouterConfig{
		Log:          log,
		Metrics:      metrics,
		ServiceName:  serviceName,
		CORSOrigins:  cfg.CORSOrigins,
		ServeUploads: storeMode == objectstore.ModeLocal,

		HealthHandler:     handlers.Health,
		FigureHandler:     handlers.Figure,
		GenerationHandler: handlers.Generation,
		BatchHandler:      handlers.Batch,
		FollowupHandler:   handlers.Followup,
		ThreadHandler:     handlers.Thread,
		UploadHandler:     handlers.Upload,
		LessonHandler:     handlers.Lesson,
	})
}
