package bootstrap

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"whatsapp-pdf-assistant/internal/ai"
	appsvc "whatsapp-pdf-assistant/internal/app"
	"whatsapp-pdf-assistant/internal/cache"
	"whatsapp-pdf-assistant/internal/config"
	"whatsapp-pdf-assistant/internal/gateway/twilio"
	"whatsapp-pdf-assistant/internal/gateway/whatsapp"
	"whatsapp-pdf-assistant/internal/model"
	"whatsapp-pdf-assistant/internal/platform/logger"
	mysqlClient "whatsapp-pdf-assistant/internal/platform/mysql"
	rabbitmqClient "whatsapp-pdf-assistant/internal/platform/rabbitmq"
	redisClient "whatsapp-pdf-assistant/internal/platform/redis"
	sqliteClient "whatsapp-pdf-assistant/internal/platform/sqlite"
	"whatsapp-pdf-assistant/internal/repository"
	"whatsapp-pdf-assistant/internal/storage"
	"whatsapp-pdf-assistant/internal/worker"
)

// App owns every long-lived resource. Redis, MQConn, WhatsApp and Twilio are
// nil when disabled in config.
type App struct {
	Config *config.Config
	Logger *logger.Logger
	DB     *gorm.DB
	Redis  *redis.Client
	MQConn *amqp.Connection

	MessageWorker     *worker.MessagePersistWorker
	MessagePublisher  *rabbitmqClient.MessagePublisher
	Deduper           *cache.MessageDeduper
	ProcessedMessages *repository.ProcessedMessageRepository
	Blobs             storage.BlobStore

	Assistant *appsvc.Assistant
	Admin     *appsvc.AdminService
	WhatsApp  *whatsapp.Client
	Twilio    *twilio.Client

	StartedAt time.Time
	gcs       *storage.GCSStore
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	log, err := logger.New(logger.Options{
		Mode:       cfg.Log.Mode,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		HashSalt:   cfg.Log.HashSalt,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger failed: %w", err)
	}

	a := &App{Config: cfg, Logger: log, StartedAt: time.Now()}
	if err := a.init(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config

	db, err := openDatabase(ctx, cfg.Database, cfg.MySQLDSN())
	if err != nil {
		return err
	}
	a.DB = db

	userRepo := repository.NewUserRepository(db)
	docRepo := repository.NewDocumentRepository(db)
	chunkRepo := repository.NewChunkRepository(db)
	feedbackRepo := repository.NewFeedbackRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	a.ProcessedMessages = repository.NewProcessedMessageRepository(db)

	var locker appsvc.UserLocker = cache.NewLocalLocker()
	if cfg.Redis.Enabled {
		a.Redis, err = redisClient.New(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		locker = cache.NewRedisLocker(a.Redis, time.Duration(cfg.Redis.LockTTLSeconds)*time.Second)
		a.Deduper = cache.NewMessageDeduper(a.Redis, time.Duration(cfg.Redis.DedupTTLHours)*time.Hour)
	}

	var convLog appsvc.ConversationLog = appsvc.NewDirectConversationLog(messageRepo)
	if cfg.RabbitMQ.Enabled {
		queue := cfg.RabbitMQ.MessagePersistQueue
		a.MQConn, err = rabbitmqClient.New(ctx, cfg.RabbitMQ.URL, queue)
		if err != nil {
			return err
		}
		a.MessageWorker = worker.NewMessagePersistWorker(a.MQConn, messageRepo, queue, a.Logger)
		if err := a.MessageWorker.Start(ctx); err != nil {
			return fmt.Errorf("start message worker failed: %w", err)
		}
		a.MessagePublisher = rabbitmqClient.NewMessagePublisher(a.MQConn, queue)
		convLog = a.MessagePublisher
	}

	if err := a.openBlobStore(ctx); err != nil {
		return err
	}

	client := ai.NewOpenAICompatibleClient()
	embCfg := ai.EmbeddingConfig{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.EmbeddingModel,
	}
	chatCfg := ai.ChatConfig{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
	}

	pipeline := appsvc.NewDocumentPipeline(docRepo, a.Blobs, client, embCfg, appsvc.PipelineOptions{
		ChunkSize:        cfg.RAG.ChunkSize,
		ChunkOverlap:     cfg.RAG.ChunkOverlap,
		EmbedBatchSize:   cfg.RAG.EmbedBatchSize,
		EmbedConcurrency: cfg.RAG.EmbedConcurrency,
		MaxPDFBytes:      cfg.RAG.MaxPDFBytes,
		KeyPrefix:        cfg.Storage.Prefix,
	}, a.Logger)

	a.Assistant = appsvc.NewAssistant(appsvc.AssistantDeps{
		Users:           userRepo,
		Documents:       docRepo,
		Feedback:        feedbackRepo,
		Blobs:           a.Blobs,
		Ingestor:        pipeline,
		Retriever:       appsvc.NewVectorRetriever(chunkRepo, client, embCfg),
		Answerer:        appsvc.NewLLMSynthesizer(client, chatCfg),
		Locker:          locker,
		ConversationLog: convLog,
		Logger:          a.Logger,
		TopK:            cfg.RAG.TopK,
		Timeouts:        cfg.Timeouts,
	})
	a.Admin = appsvc.NewAdminService(
		feedbackRepo,
		cfg.Admin.Secret,
		cfg.Admin.SecretHash,
		cfg.Admin.JWTSecret,
		time.Duration(cfg.Admin.JWTExpireMinute)*time.Minute,
	)

	maxMedia := int64(cfg.RAG.MaxPDFBytes)
	if cfg.WhatsApp.Enabled {
		a.WhatsApp = whatsapp.NewClient(cfg.WhatsApp, maxMedia, nil)
	}
	if cfg.Twilio.Enabled {
		a.Twilio = twilio.NewClient(cfg.Twilio, maxMedia, nil)
	}

	a.Logger.Info("application initialized",
		"db_driver", cfg.Database.Driver,
		"storage_driver", cfg.Storage.Driver,
		"redis", cfg.Redis.Enabled,
		"rabbitmq", cfg.RabbitMQ.Enabled,
		"whatsapp", cfg.WhatsApp.Enabled,
		"twilio", cfg.Twilio.Enabled,
	)
	return nil
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig, mysqlDSN string) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)
	switch cfg.Driver {
	case "mysql":
		db, err = mysqlClient.New(ctx, mysqlDSN)
	case "sqlite":
		db, err = sqliteClient.New(ctx, cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(model.AllModels()...); err != nil {
		return nil, fmt.Errorf("auto migrate tables failed: %w", err)
	}
	return db, nil
}

func (a *App) openBlobStore(ctx context.Context) error {
	cfg := a.Config.Storage
	switch cfg.Driver {
	case "gcs":
		store, err := storage.NewGCSStore(ctx, cfg.Bucket, cfg.Endpoint)
		if err != nil {
			return err
		}
		a.gcs = store
		a.Blobs = store
	default:
		store, err := storage.NewLocalStore(cfg.LocalDir)
		if err != nil {
			return err
		}
		a.Blobs = store
	}
	return nil
}

func (a *App) Close() error {
	var closeErr error
	if a.MessageWorker != nil {
		a.MessageWorker.Close()
	}
	if a.MessagePublisher != nil {
		if err := a.MessagePublisher.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MQConn != nil && !a.MQConn.IsClosed() {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.gcs != nil {
		if err := a.gcs.Close(); err != nil {
			closeErr = err
		}
	}
	if a.DB != nil {
		sqlDB, err := a.DB.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	if a.Logger != nil {
		a.Logger.Sync()
	}
	return closeErr
}
