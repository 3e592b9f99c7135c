package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	config "github.com/davicafu/ordersim/internal/config"
	eventlogApp "github.com/davicafu/ordersim/internal/eventlog/application"
	eventlogEvents "github.com/davicafu/ordersim/internal/eventlog/infra/inbound/events"
	eventlogHttp "github.com/davicafu/ordersim/internal/eventlog/infra/inbound/http"
	infraRelayer "github.com/davicafu/ordersim/internal/infra/relayer"
	orderApp "github.com/davicafu/ordersim/internal/order/application"
	orderHttp "github.com/davicafu/ordersim/internal/order/infra/inbound/http"
	orderEvents "github.com/davicafu/ordersim/internal/order/infra/outbound/events"
	sharedApp "github.com/davicafu/ordersim/internal/shared/application"
	sharedDomain "github.com/davicafu/ordersim/internal/shared/domain"
	sharedEvents "github.com/davicafu/ordersim/internal/shared/domain/events"
	"github.com/davicafu/ordersim/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ---------------- Main ----------------
func main() {
	logger.Init()          // inicializa zap
	log := logger.Logger() // obtiene logger estructurado
	defer log.Sync()       // flush buffers al salir

	cfg := config.LoadConfig()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---------------- Storage ----------------
	store, err := openStorage(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to open storage", zap.Error(err))
	}
	defer store.Close()

	cacheInstance, closeCache := openCache(ctx, cfg, log)
	defer closeCache()

	dlqStore, closeDLQStore := openDeadLetterStore(ctx, cfg, log)
	defer closeDLQStore()

	// ---------------- Transport ----------------
	codec := sharedEvents.JSONCodec{}
	transport := openTransport(cfg, log)
	defer transport.Close()

	publisher := orderEvents.NewOrderPublisher(transport.Bus, codec, cfg.OrderEventsTopic, log)
	// Servicio y relayer comparten dispatcher para publicar cada orden en secuencia.
	dispatcher := sharedApp.NewOutboxDispatcher(store.Outbox, publisher, codec, log)

	// --------------- Services --------------
	orderService := orderApp.NewOrderService(
		store.Orders, dispatcher, codec, cacheInstance,
		orderApp.ServiceConfig{
			Topic:    cfg.OrderEventsTopic,
			CacheTTL: int(cfg.CacheTTL.Seconds()),
			Simulation: orderApp.NewSimulationOptions(
				cfg.SimulationSeed, cfg.SimulationLimit, cfg.SimulationSuccessRate, cfg.SimulationIsolateFailures),
		},
		log,
	)

	processor := eventlogApp.NewEventProcessor(store.Events, log)
	dlqService := eventlogApp.NewDLQService(transport.Bus, cfg.DLQTopic, log)
	queries := eventlogApp.NewEventQueryService(store.Events, dlqStore, store.Analytics)

	// ---------------- Consumers ---------------
	decodePolicy := eventlogEvents.DecodeFailureRetry
	if cfg.DLQOnDecodeError {
		decodePolicy = eventlogEvents.DecodeFailureDeadLetter
	}
	eventConsumer := eventlogEvents.NewEventConsumer(
		codec, processor, dlqService, sharedDomain.NewRetryPolicy(cfg.MaxRetries), decodePolicy, log)
	dlqConsumer := eventlogEvents.NewDLQConsumer(dlqStore, log)

	if err := transport.Subscribe(ctx, cfg, eventConsumer, dlqConsumer); err != nil {
		log.Fatal("failed to start consumers", zap.Error(err))
	}

	// ------------ Outbox Worker ------------
	worker := infraRelayer.NewOutboxWorker(store.Outbox, dispatcher, cfg.OutboxPeriod, cfg.OutboxLimit, log)
	go worker.Start(ctx)

	// ---------------- HTTP ----------------
	router := gin.Default()
	orderHttp.RegisterOrderRoutes(router, orderHttp.NewOrderHandler(orderService, log))
	eventlogHttp.RegisterEventRoutes(router, eventlogHttp.NewEventHandler(queries, dlqService, cfg.OrderEventsTopic, cfg.MaxRetries, log))

	router.GET("/health", func(c *gin.Context) {
		if err := store.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "down", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	srv := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: router}
	go func() {
		log.Info("🚀 Server running", zap.String("url", "http://localhost:"+cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("🛑 Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP server shutdown failed", zap.Error(err))
	}
	transport.Wait(shutdownCtx)
}
