package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"applier/brain"
	"applier/config"
	"applier/eventbus"
	"applier/hunter"
	"applier/orchestrator"
	"applier/server"
	"applier/vision"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found, using environment as-is")
	}

	cfg := config.Load()

	// Redis backs the job store and the answer cache. The agent still runs
	// without it, from a YAML job seed.
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	redisUp := false
	{
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Printf("⚠️ Redis unavailable at %s: %v", cfg.RedisAddr, err)
		} else {
			redisUp = true
		}
		cancel()
	}

	// Event sinks: in-process ring for the API, NATS for external consumers.
	memorySink := eventbus.NewMemorySink(512)
	sinks := []eventbus.Sink{memorySink}
	if cfg.NATSURL != "" {
		natsSink, err := eventbus.NewNATSSink(eventbus.NATSConfig{URL: cfg.NATSURL, Subject: cfg.NATSSubject})
		if err != nil {
			log.Printf("⚠️ NATS unavailable: %v", err)
		} else {
			defer natsSink.Close()
			sinks = append(sinks, natsSink)
			log.Printf("✅ NATS event sink connected (%s)", cfg.NATSSubject)
		}
	}
	sink := eventbus.NewMultiSink(sinks...)

	// Job source: YAML seed file when given, otherwise the Redis store.
	var store *hunter.RedisStore
	var source hunter.Source
	if redisUp {
		store = hunter.NewRedisStore(rdb)
	}
	switch {
	case cfg.JobsPath != "":
		static, err := hunter.LoadStaticSource(cfg.JobsPath)
		if err != nil {
			log.Fatalf("Failed to load jobs file: %v", err)
		}
		source = static
	case store != nil:
		source = store
	default:
		log.Printf("⚠️ No job source configured (set JOBS_PATH or start Redis)")
		source = hunter.NewStaticSource(nil)
	}

	// Oracle chain: static profile first, then the external answer service,
	// with a Redis answer cache in front when available.
	var base orchestrator.Oracle
	if cfg.OracleURL != "" {
		base = brain.NewHTTPOracle(cfg.OracleURL, 60*time.Second)
	}
	profile, err := brain.LoadProfile(cfg.ProfilePath)
	if err != nil {
		log.Printf("⚠️ No profile loaded (%v); every question will need human input", err)
	}
	var oracle orchestrator.Oracle = brain.NewProfileOracle(profile, base)
	if redisUp {
		oracle = brain.NewCachedOracle(rdb, oracle)
	}

	var orch *orchestrator.Orchestrator
	agent := vision.NewAgent(vision.Options{
		Headless: cfg.Headless,
		ScreenshotFn: func(b64 string) {
			if orch != nil {
				orch.EmitScreenshot(b64)
			}
		},
	})

	orch = orchestrator.New(orchestrator.Config{
		DryRun:    cfg.DryRun,
		BatchSize: cfg.BatchSize,
	}, source, oracle, agent, sink)

	srv := server.New(orch, memorySink, store, agent)

	log.Printf("🚀 Applier control server starting on %s (dry_run=%v headless=%v)", cfg.Port, cfg.DryRun, cfg.Headless)
	if err := http.ListenAndServe(cfg.Port, srv.Handler()); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
