package app

import (
	"time"

	"github.com/yungbote/figuregen-backend/internal/jobs/worker"
	"github.com/yungbote/figuregen-backend/internal/modules/generation"
	"github.com/yungbote/figuregen-backend/internal/modules/lessonimport"
	"github.com/yungbote/figuregen-backend/internal/platform/logger"
	"github.com/yungbote/figuregen-backend/internal/services"
)

type Services struct {
	Pool         *worker.Pool
	Conversation *generation.ConversationClient
	Artifacts    *generation.ArtifactUploader
	Orchestrator *generation.Orchestrator
	Batches      *generation.BatchCoordinator
	Followups    *generation.FollowupManager
	Importer     *lessonimport.Importer
	Figures      services.FigureService
}

func (c Config) policy() generation.Policy {
	p := generation.DefaultPolicy()
	p.Timeout = time.Duration(c.Generation.TimeoutSeconds) * time.Second
	p.MaxAttempts = c.Generation.MaxAttempts
	p.PollInterval = time.Duration(c.Generation.PollIntervalMS) * time.Millisecond
	return p
}

func (c Config) artifactBaseURL() string {
	if c.Storage.PublicBaseURL != "" {
		return c.Storage.PublicBaseURL
	}
	return "http://localhost" + c.Address()
}

func wireServices(log *logger.Logger, cfg Config, repos Repos, clients Clients) Services {
	log.Info("Wiring services...")

	pool := worker.NewPool(log, worker.Config{
		Concurrency: cfg.Worker.Concurrency,
		QueueSize:   cfg.Worker.QueueSize,
	})
	conv := generation.NewConversationClient(clients.Assistant, cfg.policy(), log)
	artifacts := generation.NewArtifactUploader(clients.Assistant, repos.Figures, generation.ArtifactConfig{
		PublicBaseURL: cfg.artifactBaseURL(),
	}, log)
	orch := generation.NewOrchestrator(log, conv, artifacts, repos.Figures, repos.Runs, clients.Locker, pool, generation.OrchestratorConfig{
		InstructionsAssistantID: cfg.OpenAI.InstructionsAssistantID,
		SVGAssistantID:          cfg.OpenAI.SVGAssistantID,
		LockTTL:                 cfg.SlotLockTTL(),
	})
	batches := generation.NewBatchCoordinator(log, orch, repos.Figures, cfg.batchConfig(false))
	followups := generation.NewFollowupManager(log, conv, repos.Figures, clients.Locker, cfg.OpenAI.SVGAssistantID)

	return Services{
		Pool:         pool,
		Conversation: conv,
		Artifacts:    artifacts,
		Orchestrator: orch,
		Batches:      batches,
		Followups:    followups,
		Importer:     lessonimport.NewImporter(log, repos.Figures, nil),
		Figures:      services.NewFigureService(log, repos.Figures, repos.Runs, followups),
	}
}

func (c Config) batchConfig(waitForSettle bool) generation.BatchConfig {
	return generation.BatchConfig{
		WaveSize:      c.Batch.WaveSize,
		Pause:         c.WavePause(),
		WaitForSettle: waitForSettle,
	}
}
