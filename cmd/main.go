package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"fastmedia/gateway/internal/adapter"
	"fastmedia/gateway/internal/cleanup"
	"fastmedia/gateway/internal/config"
	"fastmedia/gateway/internal/detector"
	"fastmedia/gateway/internal/handler"
	"fastmedia/gateway/internal/httpclient"
	"fastmedia/gateway/internal/media"
	"fastmedia/gateway/internal/normalizer"
	"fastmedia/gateway/internal/proxy"
	"fastmedia/gateway/internal/router"
	"fastmedia/gateway/internal/service"
	"fastmedia/gateway/internal/storage"
	"fastmedia/gateway/internal/worker"
	"fastmedia/gateway/internal/ytdlp"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "config/dev.yaml", "config file path")
	flag.Parse()

	// 1. 加载配置
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. 初始化日志
	logger, err := newLogger(cfg.Server.Mode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting media gateway",
		zap.Int("port", cfg.Server.Port),
		zap.Int("grpc_port", cfg.Server.GRPCPort),
		zap.String("mode", cfg.Server.Mode),
		zap.Bool("sandbox", cfg.Sandbox),
	)

	// 3. 连接 Redis, 失败时降级为不推送进度
	var redisClient *redis.Client
	var progress worker.Publisher = worker.NoopPublisher{}
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		defer redisClient.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			logger.Warn("Failed to connect to Redis, progress events may be dropped", zap.Error(err))
		} else {
			logger.Info("✓ Connected to Redis", zap.String("addr", cfg.Redis.Addr))
		}
		cancel()
		progress = worker.NewProgressPublisher(redisClient, logger)
	}

	// 4. 解析层: 平台识别、短链标准化、策略链
	det := detector.NewPlatformDetector(&cfg.Platforms)
	proxies := proxy.NewProvider(&cfg.Proxy, logger)
	engine := ytdlp.NewWrapper(&cfg.YTDLP, logger)

	registry, err := adapter.NewRegistry(cfg, engine, proxies, logger)
	if err != nil {
		logger.Fatal("Failed to build platform registry", zap.Error(err))
	}

	redirectClient, err := httpclient.New(httpclient.Options{
		Headers: map[string]string{"User-Agent": cfg.Normalizer.UserAgent},
		Timeout: cfg.Normalizer.GetRedirectTimeout(),
	})
	if err != nil {
		logger.Fatal("Failed to build redirect client", zap.Error(err))
	}
	norm := normalizer.New(cfg, det, redirectClient, logger)

	// 5. 存储层
	paths := storage.NewPathGenerator(&cfg.Storage)
	if err := paths.EnsureDirs(); err != nil {
		logger.Fatal("Failed to create temp directories", zap.Error(err))
	}
	files := storage.NewFileManager(paths, cfg.Storage.MaxDiskUsage, logger)
	fetcher := storage.NewFetcher(files, engine, cfg.YTDLP.GetDownloadTimeout(), logger)
	decoder := media.NewFFmpeg(&cfg.FFmpeg, logger)

	// 6. 业务服务
	svc := service.NewGatewayService(cfg, norm, det, registry, fetcher, files, decoder, progress, logger)

	// 7. 定时清理
	scheduler := cleanup.NewScheduler(&cfg.Cleanup, paths.BaseDir(), cleanup.NewReaper(logger), logger)
	if err := scheduler.Start(); err != nil {
		logger.Fatal("Failed to start cleanup scheduler", zap.Error(err))
	}

	// 8. gRPC 健康检查
	grpcServer, grpcHealth := handler.NewGRPCServer()
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
	if err != nil {
		logger.Fatal("Failed to listen", zap.Error(err))
	}
	go func() {
		logger.Info("✓ gRPC health server listening", zap.Int("port", cfg.Server.GRPCPort))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server stopped", zap.Error(err))
		}
	}()

	healthHandler := handler.NewHealthHandler(cfg, redisClient, files, grpcHealth, version, logger)
	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	go healthHandler.Watch(watchCtx, 30*time.Second)

	// 9. HTTP 服务
	r := router.SetupRouter(&router.Dependencies{
		Config:        cfg,
		MediaHandler:  handler.NewMediaHandler(svc, logger),
		HealthHandler: healthHandler,
		Logger:        logger,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("✓ HTTP server listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down gateway...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server forced to shutdown", zap.Error(err))
	}
	stopWatch()
	scheduler.Stop()
	grpcServer.GracefulStop()

	logger.Info("Gateway stopped")
}

// newLogger debug 模式使用开发日志格式
func newLogger(mode string) (*zap.Logger, error) {
	if mode == "debug" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
