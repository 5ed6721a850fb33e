package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/abhi-yo/formify/api"
	"github.com/abhi-yo/formify/audit"
	"github.com/abhi-yo/formify/config"
	"github.com/abhi-yo/formify/core"
	"github.com/abhi-yo/formify/engine"
	"github.com/abhi-yo/formify/limiter"
	"github.com/abhi-yo/formify/metrics"
	"github.com/abhi-yo/formify/middleware"
	"github.com/abhi-yo/formify/store"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	logger := newLogger()
	defer logger.Sync()

	cfg := loadConfig(*configPath, logger)

	// Shared counter store. Without Redis the counters are process-local:
	// fine for a single replica, wrong for horizontal scaling.
	var counterStore store.Store
	if cfg.Redis.Addr != "" {
		redisStore := store.NewRedisStore(store.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := redisStore.Ping(ctx)
		cancel()
		if err != nil {
			logger.Fatal("failed to connect to Redis", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}

		logger.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr))
		metrics.StoreUp.Set(1)
		counterStore = redisStore
	} else {
		logger.Warn("no Redis configured, using in-memory counters (single replica only)")
		counterStore = store.NewMemoryStore()
	}
	defer counterStore.Close()

	submitLimiter := limiter.NewSliding("submit", cfg.LimitPolicy("submit"), counterStore, logger)

	// Development collaborators; production wires the real persistence
	// layer behind these interfaces.
	directory := engine.NewMemoryDirectory()
	recorder := engine.NewMemoryRecorder()
	seedProject(directory, logger)

	eng := engine.New(
		cfg.EngineConfig(),
		submitLimiter,
		counterStore,
		directory,
		recorder,
		audit.NewLogSink(logger),
		logger,
	)

	salt := getEnv("IP_HASH_SALT", cfg.IdentitySalt)
	handler := api.NewHandler(eng, salt)

	logRequests := middleware.RequestLogger(logger)
	mux := http.NewServeMux()
	mux.Handle("/api/submit", logRequests(http.HandlerFunc(handler.Submit)))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", api.Health)

	listen := getEnv("LISTEN_ADDR", cfg.Listen)
	logger.Info("formify submission gate listening", zap.String("addr", listen))
	if err := http.ListenAndServe(listen, mux); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func newLogger() *zap.Logger {
	var zapConfig zap.Config
	if os.Getenv("LOG_FORMAT") == "json" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		if parsed, err := zapcore.ParseLevel(level); err == nil {
			zapConfig.Level = zap.NewAtomicLevelAt(parsed)
		}
	}

	logger, err := zapConfig.Build()
	if err != nil {
		panic(err)
	}
	return logger
}

func loadConfig(path string, logger *zap.Logger) *config.Config {
	if path == "" {
		path = os.Getenv("FORMIFY_CONFIG")
	}
	if path == "" {
		return config.New()
	}

	cfg, err := config.Load(path)
	if err != nil {
		logger.Fatal("failed to load config", zap.String("path", path), zap.Error(err))
	}
	return cfg
}

// seedProject registers a demo project so the server is usable out of the
// box; the generated keys are printed once at startup.
func seedProject(directory *engine.MemoryDirectory, logger *zap.Logger) {
	keys, err := core.GenerateKeys()
	if err != nil {
		logger.Fatal("failed to generate project keys", zap.Error(err))
	}

	directory.Add(engine.Project{
		ID:            "demo",
		PublicKey:     keys.PublicKey,
		SecretKey:     keys.SecretKey,
		HoneypotField: core.RandomHoneypotField(),
	})

	logger.Info("seeded demo project",
		zap.String("public_key", keys.PublicKey),
		zap.String("secret_key", keys.SecretKey),
	)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
