package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/dockv/dockv/internal/archive"
	"github.com/dockv/dockv/internal/config"
	"github.com/dockv/dockv/internal/docstore"
	"github.com/dockv/dockv/internal/httpapi"
	"github.com/dockv/dockv/internal/kv"
	"github.com/dockv/dockv/internal/tokens"
	"github.com/dockv/dockv/pkg/logger"
	"github.com/dockv/dockv/pkg/metrics"
	"github.com/dockv/dockv/pkg/middleware"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Init(cfg.LogLevel)
	logger.Infof("config loaded: redis=%v mongo=%v", cfg.Redis.Host != "", cfg.MongoDB.URI != "")

	if cfg.Server.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	reg := prometheus.NewRegistry()
	metrics.RegisterCollectors(reg)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	backend, cleanup := selectBackend(cfg)
	defer cleanup()

	var arch *archive.Store
	if acfg := archive.LoadConfig(); acfg.Endpoint != "" {
		arch, err = archive.New(acfg)
		if err != nil {
			logger.Warnf("archive storage unavailable: %v", err)
			arch = nil
		}
	}

	api := r.Group("/")
	if cfg.Auth.Secret != "" {
		api.Use(middleware.Auth(tokens.NewHSVerifier(cfg.Auth.Secret)))
	} else {
		logger.Warn("AUTH_SECRET not set; API is unauthenticated")
	}
	api.Use(middleware.RateLimit(cfg.RateLimit.RPS, cfg.RateLimit.Burst))

	repo := docstore.New[httpapi.Note](backend)
	httpapi.RegisterRoutes(api, repo, arch)

	srv := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Infof("document service listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
}

// selectBackend picks redis when configured, then mongo, and falls back to
// the in-memory backend so the service always comes up.
func selectBackend(cfg *config.Config) (kv.Backend, func()) {
	if cfg.Redis.Host != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			logger.Warnf("cannot reach redis (%v), falling back", err)
			client.Close()
		} else {
			logger.Infof("using redis backend at %s", cfg.Redis.Addr())
			return kv.NewRedisBackend(client, cfg.Redis.Prefix), func() { client.Close() }
		}
	}
	if cfg.MongoDB.URI != "" {
		client, err := kv.ConnectMongo(context.Background(), cfg.MongoDB.URI, cfg.MongoDB.Timeout)
		if err != nil {
			logger.Warnf("cannot reach mongo (%v), falling back", err)
		} else {
			logger.Infof("using mongo backend, db=%s", cfg.MongoDB.Database)
			col := client.Database(cfg.MongoDB.Database).Collection(cfg.MongoDB.Collection)
			return kv.NewMongoBackend(col), func() { client.Disconnect(context.Background()) }
		}
	}
	logger.Warn("no backend configured; using in-memory store")
	return kv.NewMemoryBackend(), func() {}
}
