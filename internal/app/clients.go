package app

import (
	"context"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/figuregen-backend/internal/platform/locks"
	"github.com/yungbote/figuregen-backend/internal/platform/logger"
	"github.com/yungbote/figuregen-backend/internal/platform/objectstore"
	"github.com/yungbote/figuregen-backend/internal/platform/openai"
)

type Clients struct {
	Assistant openai.AssistantClient
	Redis     *goredis.Client
	Locker    locks.Locker
	Store     objectstore.Store
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")

	// Openai
	assistant, err := openai.NewAssistantClient(log, openai.Config{
		APIKey:     cfg.OpenAI.APIKey,
		BaseURL:    cfg.OpenAI.BaseURL,
		MaxRetries: 2,
	})
	if err != nil {
		return Clients{}, fmt.Errorf("init openai client: %w", err)
	}

	// Redis (optional)
	var rdb *goredis.Client
	locker := locks.NewMemoryLocker()
	if strings.TrimSpace(cfg.RedisAddr) != "" {
		rdb, err = locks.NewRedisClient(cfg.RedisAddr)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis: %w", err)
		}
		locker = locks.NewRedisLocker(log, rdb, "")
		log.Info("Slot locks backed by redis", "addr", cfg.RedisAddr)
	} else {
		log.Info("Slot locks are process-local")
	}

	// Object storage
	store, err := objectstore.New(ctx, log, cfg.Storage)
	if err != nil {
		if rdb != nil {
			_ = rdb.Close()
		}
		return Clients{}, fmt.Errorf("init object storage: %w", err)
	}
	log.Info("Object storage ready", "mode", store.Mode(), "mode_source", cfg.Storage.ModeSource())

	return Clients{
		Assistant: assistant,
		Redis:     rdb,
		Locker:    locker,
		Store:     store,
	}, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}
