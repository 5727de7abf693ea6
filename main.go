package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"CityOps/global"
	"CityOps/logger"
	"CityOps/middleware"
	"CityOps/module/message"
	"CityOps/module/notification"
	"CityOps/module/user"
	"CityOps/service/bus"
	"CityOps/service/gateway"
	"CityOps/service/notify"
	"CityOps/service/storage"
	"CityOps/tools/ids"
	"CityOps/tools/security"
)

func main() {
	cfg := global.Load()
	ids.SetNodeID(cfg.NodeID)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := storage.OpenPG(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Errorf("[boot] postgres: %v", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := storage.EnsureSchema(ctx, pool); err != nil {
		logger.Errorf("[boot] schema: %v", err)
		os.Exit(1)
	}

	// Redis is optional. Without it presence lookups fall back to the
	// persisted status column.
	rdb, err := storage.OpenRedis(ctx, storage.RedisConfig{
		Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB,
	})
	if err != nil {
		logger.Warnf("[boot] redis unavailable, presence cache disabled: %v", err)
		rdb = nil
	}
	cache := storage.NewPresenceCache(rdb, cfg.PresenceTTL)

	b, err := bus.Connect(bus.Config{URL: cfg.NATSURL, Name: "cityops-gateway"})
	if err != nil {
		logger.Errorf("[boot] nats: %v", err)
		os.Exit(1)
	}
	defer b.Close()

	users := storage.NewUserStore(pool)
	messages := storage.NewMessageStore(pool)
	notifications := storage.NewNotificationStore(pool)

	jwtOpts := security.DefaultOptions(cfg.JWTSecret)

	reg := gateway.NewRegistry()
	fan := gateway.NewFanout(8, 1024)
	tracker := gateway.NewTracker(reg, users, cache, fan, cfg.PresenceTTL)
	relay := gateway.NewRelay(reg, fan, b)
	if err := relay.Start(); err != nil {
		logger.Errorf("[boot] relay: %v", err)
		os.Exit(1)
	}
	defer relay.Close()

	ws := gateway.NewServer(gateway.Config{
		UnauthTTL:  cfg.UnauthTTL,
		AuthTTL:    cfg.PresenceTTL,
		SweepEvery: cfg.SweepEvery,
		SendQueue:  cfg.SendQueue,
		JWT:        jwtOpts,
	}, reg, tracker, b)
	defer ws.Close()

	pusher := notify.NewService(notifications, b)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/ws", ws.HandleWS)

	api := r.Group("/api", middleware.Auth(jwtOpts))
	message.NewHandler(messages, users).Register(api)
	notification.NewHandler(notifications, pusher).Register(api)
	user.NewHandler(users, cache).Register(api)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		logger.Infof("[boot] listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("[boot] http: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("[boot] shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("[boot] http shutdown: %v", err)
	}
	fan.Close()
}
