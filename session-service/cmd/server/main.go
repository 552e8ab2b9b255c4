package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"mestrai-server/session-service/internal/ai"
	"mestrai-server/session-service/internal/config"
	"mestrai-server/session-service/internal/handler"
	"mestrai-server/session-service/internal/imagegen"
	"mestrai-server/session-service/internal/invoker"
	"mestrai-server/session-service/internal/ratelimit"
	"mestrai-server/session-service/internal/service"
	"mestrai-server/session-service/internal/ws"
	sharedDatabase "mestrai-server/shared/database"
	"mestrai-server/shared/interfaces"
	sharedLogger "mestrai-server/shared/logger"
	sharedMessaging "mestrai-server/shared/messaging"
	"mestrai-server/shared/models"
	"mestrai-server/shared/tracing"
)

// storage - хранилища сессии и функция их закрытия.
type storage struct {
	events     interfaces.SessionEventLog
	characters interfaces.CharacterRepository
	campaigns  interfaces.CampaignRepository
	close      func()
}

func main() {
	log.Println("Запуск Session Service...")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	logger, err := sharedLogger.New(sharedLogger.Config{
		Level:       cfg.LogLevel,
		Encoding:    cfg.LogEncoding,
		ServiceName: "session-service",
	})
	if err != nil {
		log.Fatalf("Не удалось инициализировать логгер: %v", err)
	}
	defer logger.Sync()
	cfg.Log(logger)

	ctx := context.Background()
	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		Enabled:     cfg.TracingEndpoint != "",
		Endpoint:    cfg.TracingEndpoint,
		ServiceName: "session-service",
	})
	if err != nil {
		logger.Fatal("Failed to set up tracing", zap.Error(err))
	}

	store, err := setupStorage(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to set up storage", zap.Error(err))
	}
	defer store.close()

	// Рассылка событий: RabbitMQ между экземплярами или брокер в памяти процесса.
	var subscriber interfaces.SessionEventSubscriber
	var publisher interfaces.SessionEventPublisher
	if cfg.RabbitMQURL != "" {
		rabbitConn, err := connectRabbitMQ(cfg.RabbitMQURL, logger)
		if err != nil {
			logger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
		}
		defer rabbitConn.Close()
		pub, err := sharedMessaging.NewRabbitMQSessionEventPublisher(rabbitConn, logger)
		if err != nil {
			logger.Fatal("Failed to create session event publisher", zap.Error(err))
		}
		defer pub.Close()
		sub, err := sharedMessaging.NewRabbitMQSessionEventSubscriber(rabbitConn, logger)
		if err != nil {
			logger.Fatal("Failed to create session event subscriber", zap.Error(err))
		}
		publisher, subscriber = pub, sub
		logger.Info("Session events fan out through RabbitMQ")
	} else {
		broker := sharedMessaging.NewLocalBroker(logger)
		publisher, subscriber = broker, broker
	}
	events := sharedMessaging.NewPublishingEventLog(store.events, publisher, logger)

	limiterOpts := []ratelimit.Option{ratelimit.WithLogger(logger)}
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		defer redisClient.Close()
		limiterOpts = append(limiterOpts, ratelimit.WithStore(sharedDatabase.NewRedisRateStore(redisClient, logger)))
	}
	limiter := ratelimit.New(cfg.RateLimit, cfg.RateLimitWindow, limiterOpts...)

	targets, err := buildTargets(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to build narrative targets", zap.Error(err))
	}
	modelInvoker := invoker.New(targets, invoker.WithMinDelay(cfg.InvokerMinDelay), invoker.WithLogger(logger))

	counter, err := ai.NewTiktokenCounter(cfg.TokenEncoding)
	if err != nil {
		logger.Warn("Tiktoken encoding unavailable, using approximate token count", zap.Error(err))
		counter = ai.ApproxTokens
	}

	registry := service.NewRegistry(service.Dependencies{
		Events:      events,
		Characters:  store.characters,
		Campaigns:   store.campaigns,
		Invoker:     modelInvoker,
		Limiter:     limiter,
		Illustrator: imagegen.NewPollinations(cfg.ImageBaseURL, cfg.ImageAPIKey, cfg.ImageTimeout, logger),
		Budget:      ai.Budget{MaxTokens: cfg.HistoryTokenBudget, Count: counter},
		Logger:      logger,
	},
		service.WithMaxContinuationDepth(cfg.MaxContinuationDepth),
		service.WithExchangeTimeout(cfg.ExchangeTimeout),
	)

	sessionHandler := handler.NewSessionHandler(
		registry,
		service.NewCharacterService(store.characters, store.campaigns, logger),
		store.campaigns,
		events,
		ws.NewHub(events, subscriber, logger),
		cfg.JWTSecret,
		logger,
	)
	e := sessionHandler.NewEcho()
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.CORSWithConfig(echoMiddleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
	}))

	go func() {
		logger.Info("Session server listening", zap.String("port", cfg.Port))
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown signal received, starting graceful shutdown...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Echo graceful shutdown failed", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("Tracing shutdown failed", zap.Error(err))
	}
	logger.Info("Session Service stopped")
}

// setupStorage открывает хранилища выбранного режима.
// В режимах sqlite и memory кампании берутся из SEED_FILE, персонажи живут в памяти.
func setupStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*storage, error) {
	if cfg.Storage == config.StoragePostgres {
		if _, err := sharedDatabase.RunMigrations(cfg.GetDSN(), logger); err != nil {
			return nil, err
		}
		dbPool, err := setupDatabase(ctx, cfg)
		if err != nil {
			return nil, err
		}
		logger.Info("Connected to PostgreSQL")
		return &storage{
			events:     sharedDatabase.NewPgSessionEventRepository(dbPool, logger),
			characters: sharedDatabase.NewPgCharacterRepository(dbPool, logger),
			campaigns:  sharedDatabase.NewPgCampaignRepository(dbPool, logger),
			close:      dbPool.Close,
		}, nil
	}

	campaigns := sharedDatabase.NewMemoryCampaignRepository()
	seed, err := config.LoadSeed(cfg.SeedFile)
	if err != nil {
		return nil, err
	}
	for _, c := range seed {
		if err := campaigns.SaveCampaign(ctx, c.Campaign()); err != nil {
			return nil, err
		}
		for _, p := range c.Participants {
			if err := campaigns.SaveParticipant(ctx, models.Participant{CampaignID: c.ID, ID: p.ID, Name: p.Name, Status: p.Status}); err != nil {
				return nil, err
			}
		}
	}
	logger.Info("Campaigns seeded", zap.Int("count", len(seed)))

	st := &storage{
		characters: sharedDatabase.NewMemoryCharacterRepository(),
		campaigns:  campaigns,
		close:      func() {},
	}
	if cfg.Storage == config.StorageSQLite {
		repo, err := sharedDatabase.OpenSqliteSessionEventRepository(ctx, cfg.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		st.events = repo
		st.close = func() { _ = repo.Close() }
		return st, nil
	}
	st.events = sharedDatabase.NewMemorySessionEventLog(logger)
	return st, nil
}

// setupDatabase инициализирует и возвращает пул соединений с БД
func setupDatabase(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}
	poolConfig.MaxConns = cfg.DBMaxConns
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	dbPool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err = dbPool.Ping(ctx); err != nil {
		dbPool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return dbPool, nil
}

// buildTargets создает цели в порядке приоритета.
func buildTargets(cfg *config.Config, logger *zap.Logger) ([]ai.Target, error) {
	targets := make([]ai.Target, 0, len(cfg.Targets))
	for _, t := range cfg.Targets {
		switch t.Provider {
		case config.ProviderOpenAI:
			targets = append(targets, ai.NewOpenAITarget(ai.OpenAIConfig{
				APIKey:  cfg.GroqAPIKey,
				BaseURL: t.BaseURL,
				Model:   t.Model,
				Timeout: t.Timeout,
			}, logger))
		case config.ProviderOllama:
			target, err := ai.NewOllamaTarget(t.BaseURL, t.Model, t.Timeout, logger)
			if err != nil {
				return nil, err
			}
			targets = append(targets, target)
		default:
			return nil, fmt.Errorf("unknown provider %q", t.Provider)
		}
	}
	return targets, nil
}

// connectRabbitMQ пытается подключиться к RabbitMQ с несколькими попытками
func connectRabbitMQ(url string, logger *zap.Logger) (*amqp.Connection, error) {
	var conn *amqp.Connection
	var err error
	maxRetries := 5
	retryDelay := 5 * time.Second
	for i := 0; i < maxRetries; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			logger.Info("Connected to RabbitMQ")
			return conn, nil
		}
		logger.Warn("Failed to connect to RabbitMQ",
			zap.Int("attempt", i+1),
			zap.Int("max_attempts", maxRetries),
			zap.Duration("retry_delay", retryDelay),
			zap.Error(err),
		)
		time.Sleep(retryDelay)
	}
	return nil, err
}
