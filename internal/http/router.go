package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/figuregen-backend/internal/http/handlers"
	httpMW "github.com/yungbote/figuregen-backend/internal/http/middleware"
	"github.com/yungbote/figuregen-backend/internal/observability"
	"github.com/yungbote/figuregen-backend/internal/platform/logger"
	"github.com/yungbote/figuregen-backend/internal/platform/objectstore"
)

type RouterConfig struct {
	Log         *logger.Logger
	Metrics     *observability.Metrics
	ServiceName string
	CORSOrigins []string
	// ServeUploads mounts GET /uploads/* for the local object store.
	ServeUploads bool

	HealthHandler     *httpH.HealthHandler
	FigureHandler     *httpH.FigureHandler
	GenerationHandler *httpH.GenerationHandler
	BatchHandler      *httpH.BatchHandler
	FollowupHandler   *httpH.FollowupHandler
	ThreadHandler     *httpH.ThreadHandler
	UploadHandler     *httpH.UploadHandler
	LessonHandler     *httpH.LessonHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapF(cfg.Metrics.WriteHTTP))
	}

	// Uploaded images (local mode)
	if cfg.UploadHandler != nil && cfg.ServeUploads {
		r.GET(objectstore.LocalRoute+"/*key", cfg.UploadHandler.Serve)
	}

	api := r.Group("/api")
	{
		// Figures
		if cfg.FigureHandler != nil {
			api.GET("/figures", cfg.FigureHandler.List)
			api.POST("/figures", cfg.FigureHandler.Create)
			api.GET("/figures/:id", cfg.FigureHandler.Get)
			api.PUT("/figures/:id", cfg.FigureHandler.Update)
			api.DELETE("/figures/:id", cfg.FigureHandler.Delete)
			api.GET("/figures/:id/instructions/:variant", cfg.FigureHandler.Instructions)
			api.GET("/figures/:id/runs", cfg.FigureHandler.Runs)
		}

		// Generation
		if cfg.GenerationHandler != nil {
			api.POST("/figures/:id/generate-instructions", cfg.GenerationHandler.GenerateInstructions)
			api.POST("/figures/:id/generate-svg", cfg.GenerationHandler.GenerateSVG)
		}

		// Batches
		if cfg.BatchHandler != nil {
			api.POST("/batches", cfg.BatchHandler.Create)
			api.GET("/batches/:id", cfg.BatchHandler.Get)
		}

		// Follow-up sessions
		if cfg.FollowupHandler != nil {
			api.POST("/figures/:id/followups/:variant", cfg.FollowupHandler.Open)
			api.GET("/figures/:id/followups/:variant", cfg.FollowupHandler.Get)
			api.POST("/figures/:id/followups/:variant/messages", cfg.FollowupHandler.Submit)
			api.POST("/figures/:id/followups/:variant/accept", cfg.FollowupHandler.Accept)
			api.DELETE("/figures/:id/followups/:variant", cfg.FollowupHandler.Close)
		}

		// Threads
		if cfg.ThreadHandler != nil {
			api.GET("/threads/:threadId/messages", cfg.ThreadHandler.Messages)
		}

		// Uploads
		if cfg.UploadHandler != nil {
			api.POST("/upload", cfg.UploadHandler.Upload)
		}

		// Lessons
		if cfg.LessonHandler != nil {
			api.POST("/lessons/import", cfg.LessonHandler.Import)
		}
	}

	return r
}
