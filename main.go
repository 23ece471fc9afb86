package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"go-khora/config"
	"go-khora/controller"
	"go-khora/repository"
	"go-khora/router"
	"go-khora/service"
	"go-khora/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newLogger(cfg config.Config) (*zap.Logger, error) {
	zc := zap.NewDevelopmentConfig()
	if cfg.Production() {
		zc = zap.NewProductionConfig()
	}
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("解析 LOG_LEVEL 失败: %w", err)
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// openStore 按 STORE_DRIVER 选择存储
func openStore(ctx context.Context, cfg config.Config) (repository.Store, error) {
	switch cfg.StoreDriver {
	case config.StoreMySQL:
		return repository.OpenSQL(ctx, repository.DriverMySQL, cfg.MySQLDSN, cfg.StoreMaxRetries)
	case config.StoreSQLite:
		return repository.OpenSQL(ctx, repository.DriverSQLite, cfg.SQLitePath, cfg.StoreMaxRetries)
	case config.StoreRedis:
		return repository.NewRedisStore(ctx, repository.RedisOptions{
			Addr:       cfg.RedisAddr,
			Password:   cfg.RedisPassword,
			DB:         cfg.RedisDB,
			MaxRetries: cfg.StoreMaxRetries,
		})
	}
	return repository.NewMemoryStore(), nil
}

func corsConfig(cfg config.Config) cors.Config {
	cc := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(cfg.CORSOrigins) > 0 {
		cc.AllowOrigins = cfg.CORSOrigins
	} else {
		cc.AllowAllOrigins = true // 未配置时允许所有来源
	}
	return cc
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	store, err := openStore(ctx, cfg)
	cancel()
	if err != nil {
		logger.Fatal("连接存储失败", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	defer store.Close()

	svc := service.New(store, logger,
		service.WithBonusPolicy(cfg.BonusPolicy()),
		service.WithStartingResources(cfg.StartingDrachmas, cfg.StartingPhilosophyTokens),
		service.WithNotifier(service.LogNotifier{Log: logger.Named("events")}),
	)

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	r.Use(cors.New(corsConfig(cfg)))
	router.InitRouter(r, controller.NewGameController(svc, logger), utils.NewTokenIssuer(cfg.JWTSecret))

	logger.Info("服务启动", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.StoreDriver))
	if err := r.Run(cfg.HTTPAddr); err != nil {
		logger.Fatal("服务退出", zap.Error(err))
	}
}
