package db

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	types "github.com/yungbote/figuregen-backend/internal/domain"
	"github.com/yungbote/figuregen-backend/internal/platform/envutil"
	"github.com/yungbote/figuregen-backend/internal/platform/logger"
)

type Config struct {
	Driver     string `yaml:"driver"`
	DSN        string `yaml:"dsn"`
	Host       string `yaml:"host"`
	Port       string `yaml:"port"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	Name       string `yaml:"name"`
	SQLitePath string `yaml:"sqlitePath"`
}

// ConfigFromEnv fills unset fields of base from the environment.
func ConfigFromEnv(base Config) Config {
	cfg := base
	cfg.Driver = envutil.String("DATABASE_DRIVER", orDefault(cfg.Driver, "postgres"))
	cfg.DSN = envutil.String("DATABASE_DSN", cfg.DSN)
	cfg.Host = envutil.String("POSTGRES_HOST", orDefault(cfg.Host, "localhost"))
	cfg.Port = envutil.String("POSTGRES_PORT", orDefault(cfg.Port, "5432"))
	cfg.User = envutil.String("POSTGRES_USER", orDefault(cfg.User, "postgres"))
	cfg.Password = envutil.String("POSTGRES_PASSWORD", cfg.Password)
	cfg.Name = envutil.String("POSTGRES_NAME", orDefault(cfg.Name, "figuregen"))
	cfg.SQLitePath = envutil.String("SQLITE_PATH", orDefault(cfg.SQLitePath, "figuregen.db"))
	return cfg
}

func (c Config) postgresDSN() string {
	if c.DSN != "" {
		return c.DSN
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", c.User, c.Password, c.Host, c.Port, c.Name)
}

type Service struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewService(log *logger.Logger, cfg Config) (*Service, error) {
	serviceLog := log.With("service", "DatabaseService")

	gcfg := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLogger.Default.LogMode(gormLogger.Warn),
	}

	var dialector gorm.Dialector
	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		serviceLog.Info("Opening SQLite database", "path", cfg.SQLitePath)
		dialector = sqlite.Open(cfg.SQLitePath)
	case "postgres", "":
		serviceLog.Info("Connecting to Postgres...", "host", cfg.Host, "name", cfg.Name)
		dialector = postgres.Open(cfg.postgresDSN())
	default:
		return nil, fmt.Errorf("unsupported DATABASE_DRIVER=%q (allowed: postgres, sqlite)", cfg.Driver)
	}

	db, err := gorm.Open(dialector, gcfg)
	if err != nil {
		serviceLog.Error("Failed to open database", "error", err)
		return nil, fmt.Errorf("open database: %w", err)
	}
	return &Service{db: db, log: serviceLog}, nil
}

func (s *Service) AutoMigrateAll() error {
	s.log.Info("Auto migrating tables...")
	if err := s.db.AutoMigrate(types.Models()...); err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}
	return nil
}

func (s *Service) DB() *gorm.DB {
	return s.db
}

func (s *Service) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Service) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
