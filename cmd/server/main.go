package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"

	"ip-studio-server/internal/config"
	"ip-studio-server/internal/generation"
	"ip-studio-server/internal/handler"
	"ip-studio-server/internal/meshy"
	"ip-studio-server/internal/messaging"
	"ip-studio-server/internal/pipeline"
	"ip-studio-server/internal/storage"
	"ip-studio-server/pkg/logger"
)

func main() {
	_ = godotenv.Load()
	log.Println("Запуск IP Studio Server...")

	// Загружаем конфиг ДО инициализации логгера
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	// --- Инициализация логгера ---
	zapLogger, err := logger.New(logger.Config{
		Level:    cfg.LogLevel,
		Encoding: cfg.LogEncoding,
	})
	if err != nil {
		log.Fatalf("Не удалось инициализировать логгер: %v", err)
	}
	defer zapLogger.Sync()
	zapLogger.Info("Logger initialized", zap.String("logLevel", cfg.LogLevel))

	// --- Внешние клиенты ---
	aiClient := generation.NewOpenAIClient(
		cfg.AIAPIKey,
		cfg.AIBaseURL,
		cfg.AIChatModel,
		cfg.AIImageModel,
		cfg.AITimeout,
		zapLogger,
	)
	generator := generation.NewGenerator(aiClient, zapLogger)

	meshyClient := meshy.NewClient(cfg.ConversionAPIKey, cfg.ConversionBaseLocations, cfg.ConversionTimeout, zapLogger)
	poller := meshy.NewPoller(meshyClient, cfg.ConversionPollInterval, cfg.ConversionMaxWait, zapLogger)
	converter := meshy.NewConverter(meshyClient, poller, zapLogger)

	// --- Result Sink: память всегда, Redis и RabbitMQ опционально ---
	memStore := storage.NewMemoryStore(cfg.SessionTTL, cfg.SessionCacheSize, zapLogger)
	defer memStore.Close()
	sinks := pipeline.MultiSink{memStore}

	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			cancel()
			zapLogger.Fatal("Не удалось подключиться к Redis", zap.Error(err))
		}
		cancel()
		defer redisClient.Close()
		zapLogger.Info("Успешное подключение к Redis", zap.String("addr", cfg.RedisAddr))
		sinks = append(sinks, storage.NewRedisStore(redisClient, cfg.SessionTTL, zapLogger))
	}

	if cfg.RabbitMQURL != "" {
		rabbitConn, err := connectRabbitMQ(cfg.RabbitMQURL, zapLogger)
		if err != nil {
			zapLogger.Fatal("Не удалось подключиться к RabbitMQ", zap.Error(err))
		}
		defer rabbitConn.Close()
		publisher, err := messaging.NewStageEventPublisher(rabbitConn, zapLogger)
		if err != nil {
			zapLogger.Fatal("Не удалось создать издателя событий стадий", zap.Error(err))
		}
		defer publisher.Close()
		sinks = append(sinks, publisher)
	}

	// --- Ядро пайплайна ---
	orchestrator := pipeline.NewOrchestrator(
		generator, // story
		generator, // panels
		generator, // character ref
		converter, // model 3d
		generator, // derived configs
		sinks,
		zapLogger,
	)

	defaultBase := meshy.DefaultBaseLocations[0]
	if len(cfg.ConversionBaseLocations) > 0 {
		defaultBase = cfg.ConversionBaseLocations[0]
	}
	httpHandler := handler.NewHandler(orchestrator, meshyClient, poller, defaultBase, zapLogger)

	// --- HTTP Server Setup (Gin) ---
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.RedirectTrailingSlash = true
	router.Use(handler.ZapLoggingMiddleware(zapLogger))
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	httpHandler.RegisterRoutes(router)

	// Prometheus middleware применяем ПОСЛЕ регистрации роутов;
	// /metrics отдает общий реестр, включая доменные счетчики.
	p := ginprometheus.NewPrometheus("gin")
	p.Use(router)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RequestTimeout,
		IdleTimeout:  60 * time.Second,
	}

	zapLogger.Info("Starting HTTP server", zap.String("port", cfg.HTTPPort))
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("HTTP Server listen error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Получен сигнал завершения, начинаем graceful shutdown...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Ошибка при graceful shutdown HTTP сервера", zap.Error(err))
	}

	log.Println("IP Studio Server успешно остановлен")
}

// connectRabbitMQ пытается подключиться к RabbitMQ с несколькими попытками.
func connectRabbitMQ(url string, logger *zap.Logger) (*amqp.Connection, error) {
	var conn *amqp.Connection
	var err error
	maxRetries := 5
	retryDelay := 5 * time.Second
	for i := 0; i < maxRetries; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			return conn, nil
		}
		logger.Warn("Не удалось подключиться к RabbitMQ, повтор",
			zap.Int("attempt", i+1),
			zap.Int("maxRetries", maxRetries),
			zap.Error(err))
		time.Sleep(retryDelay)
	}
	return nil, err
}
