package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/smartcity/congestion/internal/cache"
	"github.com/smartcity/congestion/internal/domain"
	"github.com/smartcity/congestion/internal/preprocess"
	"github.com/smartcity/congestion/internal/repository/corpus"
	"github.com/smartcity/congestion/internal/repository/eventbrite"
	"github.com/smartcity/congestion/internal/repository/overpass"
	"github.com/smartcity/congestion/internal/service"
	"github.com/smartcity/congestion/internal/tcn"
)

const (
	modelFile  = "tcn_congestion.json"
	scalerFile = "scaler.json"
)

type options struct {
	DSN         string
	Epochs      int
	LR          float64
	BatchSize   int
	OutDir      string
	Events      bool
	Seed        uint64
	Synthetic   bool
	SeedDB      bool
	Days        int
	OverpassURL string
	Eventbrite  string
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}

	defaults := tcn.DefaultTrainConfig()
	opts := options{}
	flag.StringVar(&opts.DSN, "dsn", os.Getenv("DATABASE_URL"), "postgres DSN of the reading corpus")
	flag.IntVar(&opts.Epochs, "epochs", defaults.Epochs, "training epochs")
	flag.Float64Var(&opts.LR, "lr", defaults.LearningRate, "initial learning rate")
	flag.IntVar(&opts.BatchSize, "batch-size", defaults.BatchSize, "mini-batch size")
	flag.StringVar(&opts.OutDir, "out-dir", envOr("MODEL_DIR", "models"), "directory for weights and scaler")
	flag.BoolVar(&opts.Events, "events", envBool("EVENT_FEATURES"), "train with event features")
	flag.Uint64Var(&opts.Seed, "seed", 42, "random seed")
	flag.BoolVar(&opts.Synthetic, "synthetic", false, "train on simulated readings instead of the corpus")
	flag.BoolVar(&opts.SeedDB, "seed-db", false, "write simulated readings to the corpus before training")
	flag.IntVar(&opts.Days, "days", 90, "days of simulated history")
	flag.Parse()
	opts.OverpassURL = envOr("OVERPASS_URL", overpass.DefaultEndpoint)
	opts.Eventbrite = os.Getenv("EVENTBRITE_TOKEN")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		log.Fatalf("Training failed: %v", err)
	}
}

func run(ctx context.Context, opts options) error {
	readings, err := loadReadings(ctx, opts)
	if err != nil {
		return err
	}
	log.Printf("Loaded %d readings", len(readings))

	schema := preprocess.NewSchema(opts.Events)
	var events []domain.Event
	if opts.Events {
		events = prefetchEvents(ctx, opts, readings)
		log.Printf("Prefetched %d events", len(events))
	}

	set, err := preprocess.PrepareTrainingData(readings, schema, events,
		preprocess.DefaultInputWindow, preprocess.DefaultForecastHorizon)
	if err != nil {
		return fmt.Errorf("failed to build training windows: %w", err)
	}
	for _, id := range set.Skipped {
		log.Printf("Skipping segment %s: shorter than one window", id)
	}

	samples := make([]tcn.Sample, len(set.Pairs))
	for i, p := range set.Pairs {
		samples[i] = tcn.Sample{Input: p.Input, Target: p.Target}
	}
	train, val := tcn.Split(samples, 0.8)
	log.Printf("Training on %d windows, validating on %d", len(train), len(val))

	rng := rand.New(rand.NewPCG(opts.Seed, 0))
	net, err := tcn.New(tcn.DefaultConfig(schema.Len()), rng)
	if err != nil {
		return err
	}

	cfg := tcn.DefaultTrainConfig()
	cfg.Epochs = opts.Epochs
	cfg.LearningRate = opts.LR
	cfg.BatchSize = opts.BatchSize
	trainer, err := tcn.NewTrainer(net, cfg, rng)
	if err != nil {
		return err
	}

	_, err = trainer.Fit(ctx, train, val, func(s tcn.EpochStats) {
		marker := ""
		if s.Best {
			marker = " *"
		}
		log.Printf("Epoch %d/%d train=%.6f val=%.6f lr=%.2e%s", s.Epoch, cfg.Epochs, s.TrainLoss, s.ValLoss, s.LearningRate, marker)
	})
	if err != nil {
		return fmt.Errorf("training stopped: %w", err)
	}

	if err := net.Save(filepath.Join(opts.OutDir, modelFile)); err != nil {
		return err
	}
	if err := set.Scaler.Save(filepath.Join(opts.OutDir, scalerFile)); err != nil {
		return err
	}
	log.Printf("Saved model and scaler to %s", opts.OutDir)
	return nil
}

// loadReadings reads the corpus, or simulates one when asked to or when no DSN is set
func loadReadings(ctx context.Context, opts options) ([]domain.Reading, error) {
	if opts.Synthetic || opts.DSN == "" {
		sim := service.NewTrafficSimulator(opts.Seed)
		readings := sim.GenerateAll(service.DefaultSegments(), time.Now(), opts.Days*24)
		if !opts.SeedDB || opts.DSN == "" {
			return readings, nil
		}
		store, err := corpus.Connect(ctx, opts.DSN)
		if err != nil {
			return nil, err
		}
		defer store.Close()
		if err := store.Save(ctx, readings); err != nil {
			return nil, err
		}
		log.Printf("Seeded corpus with %d simulated readings", len(readings))
		return readings, nil
	}

	store, err := corpus.Connect(ctx, opts.DSN)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.Load(ctx, time.Time{}, time.Time{})
}

func prefetchEvents(ctx context.Context, opts options, readings []domain.Reading) []domain.Event {
	sources := []domain.EventSource{overpass.NewVenueSource(opts.OverpassURL, time.Minute)}
	if opts.Eventbrite != "" {
		sources = append(sources, eventbrite.NewClient(eventbrite.DefaultBaseURL, opts.Eventbrite, nil))
	}
	return service.NewEventProvider(cache.NewMemoryCache(), sources...).Prefetch(ctx, readings)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string) bool {
	v, _ := strconv.ParseBool(os.Getenv(key))
	return v
}
