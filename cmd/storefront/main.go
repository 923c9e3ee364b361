package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"auction-storefront/internal/api/handlers"
	"auction-storefront/internal/clock"
	"auction-storefront/internal/config"
	"auction-storefront/internal/domain"
	"auction-storefront/internal/infrastructure/backend"
	"auction-storefront/internal/infrastructure/memory"
	"auction-storefront/internal/infrastructure/redis"
	"auction-storefront/internal/infrastructure/websocket"
	"auction-storefront/internal/services"
	"auction-storefront/internal/session"
	"auction-storefront/pkg/logger"

	redisClient "github.com/go-redis/redis/v8"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func main() {
	configPath := flag.String("config", "", "path to a config file (defaults to ./config.yaml when present)")
	flag.Parse()

	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFromFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewWithLevel(cfg.Log.Level)
	log.Info("Starting storefront companion", "config", cfg.GetConfigString())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clk := clock.Real()
	store := session.NewStore(log.With("component", "session"))

	client, err := backend.NewClient(backend.Config{
		BaseURL:         cfg.API.BaseURL,
		Timeout:         cfg.API.Timeout,
		RateLimit:       cfg.API.RateLimit,
		Burst:           cfg.API.Burst,
		ProductCacheTTL: cfg.API.ProductCacheTTL,
	}, store, log.With("component", "backend"))
	if err != nil {
		log.Error("Failed to create backend client", "error", err)
		os.Exit(1)
	}
	defer client.Close()
	client.OnUnauthorized(store.Expire)

	// Initialize invalidation bus
	var bus domain.InvalidationBus
	switch cfg.Invalidation.Driver {
	case config.DriverRedis:
		rdb := redisClient.NewClient(&redisClient.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		pingCancel()
		if err != nil {
			log.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		log.Info("Connected to Redis", "address", cfg.Redis.Address)
		bus = redis.NewInvalidationBus(rdb, cfg.Invalidation.Channel, store, log.With("component", "invalidation"))
	default:
		bus = memory.NewInvalidationBus(log.With("component", "invalidation"))
	}

	counts := services.NewCountSync(client, store, clk, log.With("component", "counts"))
	poller := services.NewCountPoller(counts, cfg.Counts.PollSchedule, cfg.Counts.FetchTimeout, log.With("component", "poller"))
	wishlist := services.NewWishlistService(client, bus, log.With("component", "wishlist"))

	dialer := websocket.NewDialer(websocket.DialerConfig{
		BaseURL:          cfg.Live.BaseURL,
		PathTemplate:     cfg.Live.PathTemplate,
		HandshakeTimeout: cfg.Live.HandshakeTimeout,
		PingInterval:     cfg.Live.PingInterval,
		PongWait:         cfg.Live.PongWait,
	}, store, log.With("component", "dialer"))
	live := services.NewLiveManager(services.LiveManagerConfig{
		BaseDelay:   cfg.Live.BaseDelay,
		MaxDelay:    cfg.Live.MaxDelay,
		MaxAttempts: cfg.Live.MaxAttempts,
	}, dialer, clk, log.With("component", "live"))

	live.OnStatus(func(status domain.LiveStatus) {
		if status.State == domain.LiveFailed {
			log.Warn("Live updates unavailable", "subject", status.Subject, "error", status.Err)
		}
	})

	store.OnChange(func(reason session.Reason, ident domain.Identity, ok bool) {
		if !ok {
			live.Disconnect()
		}
		refreshCtx, refreshCancel := context.WithTimeout(ctx, cfg.Counts.FetchTimeout)
		defer refreshCancel()
		if err := counts.OnAuthChange(refreshCtx); err != nil {
			log.Error("Failed to refresh counts after auth change", "reason", reason, "error", err)
		}
	})

	// Initialize Echo
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.RequestID())
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: `{"time":"${time_rfc3339}","id":"${id}","remote_ip":"${remote_ip}","method":"${method}","uri":"${uri}","status":${status},"error":"${error}","latency_human":"${latency_human}"}` + "\n",
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{echo.GET, echo.POST, echo.DELETE, echo.OPTIONS},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderAuthorization,
		},
	}))

	handlers.RegisterRoutes(e, handlers.Handlers{
		Counts:    handlers.NewCountsHandler(counts, bus, log),
		Session:   handlers.NewSessionHandler(store, log),
		Wishlist:  handlers.NewWishlistHandler(wishlist, log),
		Live:      handlers.NewLiveHandler(live, client, bus, clk, log),
		Countdown: handlers.NewCountdownHandler(client, clk, log),
	}, live)

	// Start background services
	go func() {
		if err := counts.Run(ctx, bus); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Count invalidation listener failed", "error", err)
		}
	}()
	if err := poller.Start(ctx); err != nil {
		log.Error("Failed to start count poller", "error", err)
		os.Exit(1)
	}

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Info("Starting view API", "address", serverAddr)

	go func() {
		if err := e.Start(serverAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down storefront companion...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := poller.Stop(); err != nil {
		log.Error("Failed to stop count poller", "error", err)
	}
	live.Disconnect()
	cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	log.Info("Storefront companion stopped")
}
