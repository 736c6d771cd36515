package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/smartcity/congestion/internal/cache"
	"github.com/smartcity/congestion/internal/delivery/http"
	"github.com/smartcity/congestion/internal/domain"
	"github.com/smartcity/congestion/internal/metrics"
	"github.com/smartcity/congestion/internal/preprocess"
	"github.com/smartcity/congestion/internal/repository/eventbrite"
	"github.com/smartcity/congestion/internal/repository/overpass"
	"github.com/smartcity/congestion/internal/repository/postgres"
	"github.com/smartcity/congestion/internal/service"
	"github.com/smartcity/congestion/internal/tcn"
)

// mockHistoryHours is how much simulated history backs the in-memory repository
const mockHistoryHours = 14 * 24

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}

	// Configuration
	cfg := loadConfig()

	// Database connection
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err == nil {
		if err = pool.Ping(ctx); err != nil {
			pool.Close()
		}
	}
	if err != nil {
		log.Printf("Warning: Could not connect to database: %v", err)
		log.Println("Running with simulated readings only")
		pool = nil
	} else {
		defer pool.Close()
		log.Println("Connected to PostgreSQL")
	}

	// Dependency Injection: Repositories
	var repo service.ReadingRepository
	if pool != nil {
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			log.Fatalf("Schema setup failed: %v", err)
		}
		repo = postgres.NewPostgresRepository(pool)
	} else {
		sim := service.NewTrafficSimulator(uint64(time.Now().UnixNano()))
		segments := service.DefaultSegments()
		repo = postgres.NewMockRepository(segments, sim.GenerateAll(segments, time.Now(), mockHistoryHours))
	}

	// Cache: Redis when reachable, in-process otherwise
	var store service.Cache
	if redisCache, err := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB); err != nil {
		log.Printf("Warning: Redis unavailable (%v), using in-memory cache", err)
		store = cache.NewMemoryCache()
	} else {
		defer redisCache.Close()
		log.Println("Connected to Redis")
		store = redisCache
	}

	// Model and scaler
	schema := preprocess.NewSchema(cfg.EventFeatures)
	model, scaler := loadModel(cfg, schema)

	forecastCfg := service.DefaultForecastConfig()
	forecastCfg.HistoryTimeout = cfg.HistoryTimeout
	forecastCfg.CacheTTL = cfg.ForecastCacheTTL

	// Dependency Injection: Services
	var predictor service.Predictor
	if model != nil {
		predictor = model
	}
	forecastSvc, err := service.NewForecastService(repo, predictor, scaler, schema, forecastCfg)
	if err != nil {
		log.Fatalf("Forecast service setup failed: %v", err)
	}
	forecastSvc.WithCache(store).WithEvents(service.NewEventProvider(store, eventSources(cfg)...))
	dashboardSvc := service.NewDashboardService(forecastSvc, repo)

	// Fiber App
	app := fiber.New(fiber.Config{
		AppName:      "Congestion Forecaster v1.0",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorHandler: http.ErrorHandler,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path} (${latency})\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Routes
	http.SetupRoutes(app, http.NewHandler(forecastSvc, dashboardSvc, repo))

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	forecastSvc.WaitBackground()
	log.Println("Server exited gracefully")
}

// loadModel restores weights and scaler; on any failure the service starts
// without a model and forecasts answer 503.
func loadModel(cfg *Config, schema preprocess.Schema) (*tcn.Network, *preprocess.Scaler) {
	metrics.ModelLoaded.Set(0)

	scaler, err := preprocess.LoadScaler(cfg.ScalerPath)
	if err != nil {
		log.Printf("Warning: scaler not loaded: %v", err)
		return nil, nil
	}
	if err := scaler.CheckSchema(schema); err != nil {
		log.Printf("Warning: scaler does not match feature schema: %v", err)
		return nil, nil
	}

	model, err := tcn.Load(cfg.ModelPath, tcn.DefaultConfig(schema.Len()))
	if err != nil {
		log.Printf("Warning: model not loaded: %v", err)
		return nil, nil
	}

	metrics.ModelLoaded.Set(1)
	log.Printf("Loaded TCN model (%d parameters, %d features)", model.ParamCount(), schema.Len())
	return model, scaler
}

// eventSources returns the configured event sources; none unless event features are on
func eventSources(cfg *Config) []domain.EventSource {
	if !cfg.EventFeatures {
		return nil
	}
	sources := []domain.EventSource{overpass.NewVenueSource(cfg.OverpassURL, 20*time.Second)}
	if cfg.EventbriteToken != "" {
		sources = append(sources, eventbrite.NewClient(eventbrite.DefaultBaseURL, cfg.EventbriteToken, nil))
	}
	return sources
}

type Config struct {
	DatabaseURL      string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	OverpassURL      string
	EventbriteToken  string
	ModelPath        string
	ScalerPath       string
	EventFeatures    bool
	HistoryTimeout   time.Duration
	ForecastCacheTTL time.Duration
	Port             string
	Env              string
}

func loadConfig() *Config {
	return &Config{
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisDB:          getEnvInt("REDIS_DB", 0),
		OverpassURL:      getEnv("OVERPASS_URL", overpass.DefaultEndpoint),
		EventbriteToken:  getEnv("EVENTBRITE_TOKEN", ""),
		ModelPath:        getEnv("MODEL_PATH", "models/tcn_congestion.json"),
		ScalerPath:       getEnv("SCALER_PATH", "models/scaler.json"),
		EventFeatures:    getEnvBool("EVENT_FEATURES", false),
		HistoryTimeout:   getEnvDuration("HISTORY_TIMEOUT", 5*time.Second),
		ForecastCacheTTL: getEnvDuration("FORECAST_CACHE_TTL", cache.DefaultTTL),
		Port:             getEnv("PORT", "8080"),
		Env:              getEnv("GO_ENV", "development"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return v
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return v
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return v
	}
	return defaultValue
}
