package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/technosupport/ts-dispatch/internal/alerts"
	"github.com/technosupport/ts-dispatch/internal/api"
	"github.com/technosupport/ts-dispatch/internal/backend"
	"github.com/technosupport/ts-dispatch/internal/config"
	"github.com/technosupport/ts-dispatch/internal/continuity"
	"github.com/technosupport/ts-dispatch/internal/dispatch"
	"github.com/technosupport/ts-dispatch/internal/relay"
	"github.com/technosupport/ts-dispatch/internal/stream"
	"github.com/technosupport/ts-dispatch/internal/tokens"
	"github.com/technosupport/ts-dispatch/internal/video"
)

func main() {
	cfgPath := flag.String("config", "config/default.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("Config load error: %v", err)
	}

	if cfg.Backend.Token == "" {
		log.Fatal("No operator token configured (backend.token or DISPATCH_TOKEN)")
	}
	identity, err := tokens.Identity(cfg.Backend.Token)
	if err != nil {
		log.Fatalf("Operator token rejected: %v", err)
	}
	log.Printf("Console starting for operator %s", identity)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Shared collaborators.
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password})
	cache := continuity.NewCache(rdb)
	store := alerts.NewStore()
	be := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.Token)
	negotiator := relay.NewClient(cfg.Relay.BaseURL)

	videos := video.NewManager(be, negotiator, video.NewPeerFactory(),
		func(cameraID string) video.Sink { return &video.LogSink{CameraID: cameraID} },
		video.Options{KeepAliveInterval: cfg.KeepAliveInterval()})

	orch := dispatch.New(identity, store, cache, be, videos, dispatch.BellSounder{}, dispatch.Options{})
	orch.SetAudible(cfg.Audible.Enabled)
	if err := orch.Start(ctx); err != nil {
		log.Fatalf("Dispatch start error: %v", err)
	}

	// Push channel: websocket by default, NATS where the backend publishes
	// through a broker instead.
	var source stream.Source
	switch cfg.Stream.Transport {
	case "nats":
		source = stream.NewNATSSource(cfg.Stream.NATSURL, cfg.Stream.NATSSubject, orch.Callbacks())
	default:
		source = stream.NewClient(cfg.Stream.URL, cfg.Backend.Token, orch.Callbacks())
	}
	if err := source.Connect(); err != nil {
		// Non-fatal: the websocket client keeps retrying on its own, and
		// a dead broker at boot is a deploy-order problem, not ours.
		log.Printf("[ERROR] Stream connect: %v", err)
	}

	// Config hot-reload currently drives the audible toggle only.
	watcher := config.NewWatcher(*cfgPath, func(fresh *config.Config) {
		orch.SetAudible(fresh.Audible.Enabled)
	})
	watcher.Start(ctx)

	server := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: api.NewRouter(orch),
	}
	go func() {
		log.Printf("Local surface listening on %s", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutdown requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := source.Close(); err != nil {
		log.Printf("[ERROR] Stream close: %v", err)
	}
	orch.Stop(shutdownCtx)
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[ERROR] Graceful shutdown: %v", err)
	}
	if err := rdb.Close(); err != nil {
		log.Printf("[ERROR] Redis close: %v", err)
	}
	log.Println("Console stopped")
}
