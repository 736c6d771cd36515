package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/smartcity/congestion/internal/cache"
	"github.com/smartcity/congestion/internal/domain"
	"github.com/smartcity/congestion/internal/metrics"
	"github.com/smartcity/congestion/internal/preprocess"
	"github.com/smartcity/congestion/pkg/utils"
)

var (
	// ErrModelUnavailable is returned when weights or scaler failed to load
	ErrModelUnavailable = errors.New("forecast model unavailable")
	// ErrHistoryTimeout is returned when the history fetch exceeds its deadline
	ErrHistoryTimeout = errors.New("history fetch timed out")
)

// Predictor maps a features-major window to normalised horizon values.
// *tcn.Network satisfies it.
type Predictor interface {
	Predict(x [][]float64) ([]float64, error)
}

// ForecastConfig tunes the orchestrator
type ForecastConfig struct {
	InputWindow    int
	Horizon        int
	HistoryTimeout time.Duration
	CacheTTL       time.Duration
}

// DefaultForecastConfig is a 24-step window, 6-step horizon and 5s history deadline
func DefaultForecastConfig() ForecastConfig {
	return ForecastConfig{
		InputWindow:    preprocess.DefaultInputWindow,
		Horizon:        preprocess.DefaultForecastHorizon,
		HistoryTimeout: 5 * time.Second,
		CacheTTL:       10 * time.Minute,
	}
}

// ForecastService owns the loaded model and scaler and serves forecasts.
// Both are read-only after construction, so Forecast may run concurrently.
type ForecastService struct {
	repo   ReadingRepository
	model  Predictor
	scaler *preprocess.Scaler
	schema preprocess.Schema
	events *EventProvider
	cache  Cache
	cfg    ForecastConfig
	now    func() time.Time

	wgBg sync.WaitGroup // tracks background log writes for graceful shutdown
}

// NewForecastService wires a forecaster. model and scaler may be nil, in
// which case every forecast fails with ErrModelUnavailable; when both are
// present the scaler must match the schema.
func NewForecastService(
	repo ReadingRepository,
	model Predictor,
	scaler *preprocess.Scaler,
	schema preprocess.Schema,
	cfg ForecastConfig,
) (*ForecastService, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	if model != nil && scaler != nil {
		if err := scaler.CheckSchema(schema); err != nil {
			return nil, err
		}
	}
	return &ForecastService{
		repo:   repo,
		model:  model,
		scaler: scaler,
		schema: schema,
		cfg:    cfg,
		now:    time.Now,
	}, nil
}

// WithEvents enables event context for schemas that carry event columns
func (s *ForecastService) WithEvents(p *EventProvider) *ForecastService {
	s.events = p
	return s
}

// WithCache enables response caching
func (s *ForecastService) WithCache(c Cache) *ForecastService {
	s.cache = c
	return s
}

// Ready reports whether model and scaler are loaded
func (s *ForecastService) Ready() bool {
	return s.model != nil && s.scaler.Fitted()
}

// Horizon is the number of forecast steps
func (s *ForecastService) Horizon() int { return s.cfg.Horizon }

// WaitBackground blocks until all background log writes complete.
// Call during graceful shutdown to avoid dropped writes.
func (s *ForecastService) WaitBackground() {
	s.wgBg.Wait()
}

// ValidateRequest checks a request against the current time
func ValidateRequest(req domain.ForecastRequest, now time.Time) error {
	if req.RoadID == "" {
		return fmt.Errorf("%w: road_id is required", domain.ErrInvalidRequest)
	}
	if req.Timestamp.IsZero() {
		return fmt.Errorf("%w: timestamp is required", domain.ErrInvalidRequest)
	}
	if req.Timestamp.After(now) {
		return fmt.Errorf("%w: timestamp %s is in the future", domain.ErrInvalidRequest, req.Timestamp.Format(time.RFC3339))
	}
	if p := req.CurrentCongestionPct; p != nil && (*p < 0 || *p > 100) {
		return fmt.Errorf("%w: current_congestion_pct must be within 0-100", domain.ErrInvalidRequest)
	}
	return nil
}

func forecastCacheKey(req domain.ForecastRequest) string {
	live := "-"
	if req.CurrentCongestionPct != nil {
		live = fmt.Sprintf("%.2f", *req.CurrentCongestionPct)
	}
	return fmt.Sprintf("%s%s:%d:%s", cache.ForecastKeyPrefix, req.RoadID, req.Timestamp.Unix(), live)
}

// Forecast assembles the history window strictly before req.Timestamp, runs
// the model and returns history plus the horizon forecast in percent.
func (s *ForecastService) Forecast(ctx context.Context, req domain.ForecastRequest) (domain.ForecastResponse, error) {
	if !s.Ready() {
		return domain.ForecastResponse{}, ErrModelUnavailable
	}
	if err := ValidateRequest(req, s.now()); err != nil {
		return domain.ForecastResponse{}, err
	}

	key := forecastCacheKey(req)
	if resp, ok := s.cached(ctx, key); ok {
		return resp, nil
	}

	start := time.Now()
	seg, err := s.repo.GetSegment(ctx, req.RoadID)
	if err != nil {
		return domain.ForecastResponse{}, err
	}

	history, err := s.fetchHistory(ctx, req)
	if err != nil {
		return domain.ForecastResponse{}, err
	}

	events := s.segmentEvents(ctx, seg, history, req.Timestamp)
	fractions, err := s.predict(history, events)
	if err != nil {
		return domain.ForecastResponse{}, err
	}

	resp := s.assemble(seg, req, history, fractions)
	metrics.ForecastDuration.Observe(time.Since(start).Seconds())
	metrics.AlertsTotal.WithLabelValues(resp.AlertLevel).Inc()
	if resp.Anchored {
		metrics.AnchoredForecasts.Inc()
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, resp, s.cfg.CacheTTL); err != nil {
			log.Printf("Forecast cache write failed: %v", err)
		}
	}

	// Persist the served forecast asynchronously (tracked for graceful shutdown)
	entry := domain.NewForecastLog(req, resp)
	s.wgBg.Add(1)
	go func() {
		defer s.wgBg.Done()
		bgCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.repo.SaveForecastLog(bgCtx, entry); err != nil {
			log.Printf("Failed to save forecast log: %v", err)
		}
	}()

	return resp, nil
}

func (s *ForecastService) cached(ctx context.Context, key string) (domain.ForecastResponse, bool) {
	var resp domain.ForecastResponse
	if s.cache == nil {
		return resp, false
	}
	ok, err := s.cache.Get(ctx, key, &resp)
	switch {
	case err != nil:
		metrics.CacheResults.WithLabelValues("forecast", "error").Inc()
		log.Printf("Forecast cache read failed: %v", err)
		return resp, false
	case ok:
		metrics.CacheResults.WithLabelValues("forecast", "hit").Inc()
		return resp, true
	default:
		metrics.CacheResults.WithLabelValues("forecast", "miss").Inc()
		return resp, false
	}
}

// fetchHistory loads exactly InputWindow readings under the history deadline
func (s *ForecastService) fetchHistory(ctx context.Context, req domain.ForecastRequest) ([]domain.Reading, error) {
	fetchCtx := ctx
	if s.cfg.HistoryTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, s.cfg.HistoryTimeout)
		defer cancel()
	}

	started := time.Now()
	history, err := s.repo.LatestBefore(fetchCtx, req.RoadID, req.Timestamp, s.cfg.InputWindow)
	metrics.HistoryFetchDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(fetchCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s: %v", ErrHistoryTimeout, s.cfg.HistoryTimeout, err)
		}
		return nil, fmt.Errorf("service: failed to fetch history: %w", err)
	}

	if len(history) < s.cfg.InputWindow {
		metrics.InsufficientHistory.Inc()
		return nil, &domain.InsufficientHistoryError{
			RoadID: req.RoadID,
			Before: req.Timestamp,
			Need:   s.cfg.InputWindow,
			Found:  len(history),
		}
	}
	return history[len(history)-s.cfg.InputWindow:], nil
}

// segmentEvents returns nil when event features are off or every source
// failed; BuildMatrix then uses all-zero event features.
func (s *ForecastService) segmentEvents(ctx context.Context, seg domain.Segment, history []domain.Reading, at time.Time) []domain.Event {
	if !s.schema.HasEvents() || s.events == nil {
		return nil
	}
	events, err := s.events.EventsNear(ctx, seg.Lat, seg.Lon, history[0].Timestamp, at)
	if err != nil {
		log.Printf("Event fetch for %s failed, using placeholder features: %v", seg.RoadID, err)
		return nil
	}
	return events
}

// predict runs Feature Builder -> Scaler -> model -> inverse target scaling
func (s *ForecastService) predict(history []domain.Reading, events []domain.Event) ([]float64, error) {
	matrix := preprocess.BuildMatrix(s.schema, history, events)
	scaled, err := s.scaler.Transform(matrix)
	if err != nil {
		return nil, fmt.Errorf("service: failed to scale history: %w", err)
	}
	out, err := s.model.Predict(preprocess.Transpose(scaled))
	if err != nil {
		return nil, fmt.Errorf("service: inference failed: %w", err)
	}
	if len(out) != s.cfg.Horizon {
		return nil, fmt.Errorf("service: model returned %d steps, want %d", len(out), s.cfg.Horizon)
	}
	return s.scaler.InverseTarget(out, s.schema.Target)
}

func (s *ForecastService) assemble(seg domain.Segment, req domain.ForecastRequest, history []domain.Reading, fractions []float64) domain.ForecastResponse {
	resp := domain.ForecastResponse{
		ZoneID:      req.RoadID,
		SegmentName: seg.SegmentName,
		RoadName:    seg.RoadName,
		Timestamp:   req.Timestamp,
		History:     make([]domain.TimePoint, len(history)),
		Forecast:    make([]domain.TimePoint, len(fractions)),
		Bands:       make([]string, len(fractions)),
	}
	for i, r := range history {
		resp.History[i] = domain.TimePoint{
			Time:       r.Timestamp,
			Congestion: utils.RoundTo(r.CongestionLevel*100, 2),
		}
	}

	scores := make([]float64, len(fractions))
	for i, f := range fractions {
		scores[i] = utils.Clamp(f, 0, 1)
	}
	if req.CurrentCongestionPct != nil {
		scores[0] = Anchor(*req.CurrentCongestionPct, scores[0])
		resp.Anchored = true
	}

	for i, score := range scores {
		resp.Forecast[i] = domain.TimePoint{
			Time:       req.Timestamp.Add(time.Duration(i+1) * time.Hour),
			Congestion: utils.RoundTo(utils.Clamp(score*100, 0, 100), 2),
		}
		resp.Bands[i] = BandFromScore(score)
	}

	var plus2h float64
	if len(scores) > 1 {
		plus2h = scores[1]
	}
	incidents := history[len(history)-1].RecentIncidentCount
	resp.AlertLevel, resp.Alert = Alert(scores[0], plus2h, incidents)
	return resp
}
