package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/go-co-op/gocron/v2"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/apellegr/llm-gateway/internal/cache"
	"github.com/apellegr/llm-gateway/internal/classifier"
	"github.com/apellegr/llm-gateway/internal/config"
	"github.com/apellegr/llm-gateway/internal/controlplane"
	"github.com/apellegr/llm-gateway/internal/dispatcher"
	"github.com/apellegr/llm-gateway/internal/envelope"
	"github.com/apellegr/llm-gateway/internal/gateway"
	"github.com/apellegr/llm-gateway/internal/health"
	"github.com/apellegr/llm-gateway/internal/logging"
	"github.com/apellegr/llm-gateway/internal/observability"
	"github.com/apellegr/llm-gateway/internal/router"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	logging.Init()

	log.Println("🚀 Starting LLM gateway...")

	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	env := config.LoadEnv()

	doc, err := config.Load(env.ConfigPath)
	if err != nil {
		log.Fatalf("❌ Failed to load gateway config: %v", err)
	}
	store := config.NewStore(env.ConfigPath, doc)
	log.Printf("📋 Configuration loaded (%d backends, default=%s)", len(doc.Backends), doc.DefaultBackend)

	go store.WatchAndReload()

	healthSvc := health.NewService(backendGetter(store), 3, time.Hour)
	for _, b := range doc.Backends {
		healthSvc.Register(b.Name)
	}

	disp := dispatcher.New(healthSvc)

	historySvc := router.NewHistoryService(doc.HistoryFilePath)

	var verdictStore cache.Cache
	if env.RedisAddr != "" {
		verdictStore = cache.NewRedisCache(env.RedisAddr, env.RedisPassword)
		log.Printf("✅ Verdict cache backed by Redis at %s", env.RedisAddr)
	} else {
		verdictStore = cache.NewMemoryCache(10 * time.Minute)
		log.Println("ℹ️  Verdict cache using in-process memory (no REDIS_ADDR set)")
	}
	verdictCache := cache.NewVerdictCache(verdictStore, 10*time.Minute)

	cls := classifier.New(disp, fastModelBackend(doc), classifierBackend(store), doc.Backends, historySvc.Preference).
		WithVerdictCache(verdictCache)
	routerSvc := router.New(store, historySvc)

	var mongoSink *observability.MongoSink
	if doc.Sink.URI != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		mongoSink, err = observability.NewMongoSink(ctx, doc.Sink.URI, doc.Sink.Database, doc.Sink.Collection, doc.Sink.RetentionDays, doc.Sink.MaxDocumentCount, doc.Sink.CaptureQuery, doc.Sink.CaptureResponse)
		cancel()
		if err != nil {
			log.Printf("⚠️  Mongo observability sink unavailable, continuing without it: %v", err)
			mongoSink = nil
		} else {
			log.Println("✅ Mongo observability sink connected")
		}
	}
	metrics := observability.NewMetrics()
	sink := observability.NewSink(metrics, mongoSink)

	gw := gateway.New(store, cls, routerSvc, historySvc, disp, sink)
	cp := controlplane.New(store, healthSvc, sink, historySvc, disp, cls)

	scheduler, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		log.Fatalf("❌ Failed to start job scheduler: %v", err)
	}
	if _, err := scheduler.NewJob(
		gocron.DurationJob(5*time.Minute),
		gocron.NewTask(func() { healthSvc.ProbeAll() }),
	); err != nil {
		log.Printf("⚠️  Failed to schedule health probing: %v", err)
	}
	if _, err := scheduler.NewJob(
		gocron.DurationJob(10*time.Minute),
		gocron.NewTask(func() {
			if err := historySvc.Flush(); err != nil {
				slog.Warn("periodic router history flush failed", "error", err)
			}
		}),
	); err != nil {
		log.Printf("⚠️  Failed to schedule history flush: %v", err)
	}
	scheduler.Start()
	log.Println("🕐 Background jobs: backend health probing (every 5m), router history flush (every 10m)")

	app := fiber.New(fiber.Config{
		AppName:      "llm-gateway",
		ReadTimeout:  150 * time.Second,
		WriteTimeout: 150 * time.Second,
		IdleTimeout:  150 * time.Second,
		BodyLimit:    20 * 1024 * 1024,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())

	promMiddleware := fiberprometheus.New("llm_gateway")
	promMiddleware.RegisterAt(app, "/metrics")
	app.Use(promMiddleware.Middleware)

	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,X-User-Id",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	app.Post("/v1/chat/completions", gw.HandleChatCompletions)
	app.Post("/v1/messages", gw.HandleMessages)
	app.Post("/v1/responses", gw.HandleResponses)
	app.Post("/:backend/v1/chat/completions", gw.HandleForcedBackend)

	cp.Register(app)

	go func() {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		log.Printf("📊 Domain metrics listening on :%s/metrics", env.MetricsPort)
		if err := http.ListenAndServe(":"+env.MetricsPort, metricsMux); err != nil {
			log.Printf("⚠️  Metrics listener stopped: %v", err)
		}
	}()

	log.Printf("🔌 Inbound proxy listening on :%s", env.InboundPort)
	log.Printf("📡 Health check: http://localhost:%s/health", env.InboundPort)
	log.Printf("🛠️  Control plane mounted under /debug")

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("🛑 Shutting down gateway...")

		if err := scheduler.Shutdown(); err != nil {
			log.Printf("⚠️  Error stopping job scheduler: %v", err)
		}
		if err := historySvc.Flush(); err != nil {
			log.Printf("⚠️  Error flushing router history: %v", err)
		}
		if mongoSink != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := mongoSink.Close(ctx); err != nil {
				log.Printf("⚠️  Error closing Mongo sink: %v", err)
			}
			cancel()
		}
		if err := app.Shutdown(); err != nil {
			log.Printf("⚠️  Error shutting down server: %v", err)
		}
	}()

	if err := app.Listen(":" + env.InboundPort); err != nil {
		log.Fatalf("❌ Failed to start gateway: %v", err)
	}
}

func backendGetter(store *config.Store) health.BackendGetter {
	return func(name string) (*health.BackendInfo, error) {
		b, ok := store.Backend(name)
		if !ok {
			return nil, fiberNotFound(name)
		}
		return &health.BackendInfo{Name: b.Name, BaseURL: b.BaseURL, APIKey: b.APIKey}, nil
	}
}

func fastModelBackend(doc *config.Document) *envelope.Backend {
	for i := range doc.Backends {
		if doc.Backends[i].Speed == "fast" {
			return &doc.Backends[i]
		}
	}
	return nil
}

func classifierBackend(store *config.Store) *envelope.Backend {
	doc := store.Snapshot()
	if doc.ClassifierBackend == "" {
		return nil
	}
	b, ok := store.Backend(doc.ClassifierBackend)
	if !ok {
		return nil
	}
	return b
}

type notFoundErr string

func (e notFoundErr) Error() string { return string(e) }

func fiberNotFound(name string) error {
	return notFoundErr("backend not configured: " + name)
}
