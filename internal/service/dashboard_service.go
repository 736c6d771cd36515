package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/smartcity/congestion/internal/domain"
	"github.com/smartcity/congestion/internal/metrics"
)

// DefaultHotspotParallelism bounds concurrent forecasts during a sweep
const DefaultHotspotParallelism = 8

// DashboardService ranks every segment by forecast congestion
type DashboardService struct {
	forecasts   *ForecastService
	repo        ReadingRepository
	parallelism int
}

// NewDashboardService creates a new dashboard service
func NewDashboardService(forecasts *ForecastService, repo ReadingRepository) *DashboardService {
	return &DashboardService{
		forecasts:   forecasts,
		repo:        repo,
		parallelism: DefaultHotspotParallelism,
	}
}

// Hotspots forecasts all segments at `at` concurrently and returns up to
// limit segments ordered by +1h congestion. Segments without enough history
// are skipped; other failures are logged and the segment is skipped too.
func (s *DashboardService) Hotspots(ctx context.Context, at time.Time, limit int) (domain.HotspotReport, error) {
	segments, err := s.repo.ListSegments(ctx)
	if err != nil {
		return domain.HotspotReport{}, fmt.Errorf("service: failed to list segments: %w", err)
	}

	var (
		hotspots []domain.Hotspot
		skipped  []string
		errs     []error
		wg       sync.WaitGroup
		mu       sync.Mutex
		sem      = make(chan struct{}, s.parallelism)
	)

	for _, seg := range segments {
		wg.Add(1)
		go func(seg domain.Segment) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			resp, err := s.forecasts.Forecast(ctx, domain.ForecastRequest{RoadID: seg.RoadID, Timestamp: at})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				skipped = append(skipped, seg.RoadID)
				if !errors.Is(err, domain.ErrInsufficientHistory) {
					errs = append(errs, fmt.Errorf("%s: %w", seg.RoadID, err))
				}
				return
			}
			hotspots = append(hotspots, toHotspot(seg, resp))
		}(seg)
	}
	wg.Wait()

	// Log any errors that occurred
	for _, err := range errs {
		log.Printf("Hotspot forecast error: %v", err)
	}
	if len(hotspots) == 0 && len(errs) > 0 {
		return domain.HotspotReport{}, errs[0]
	}

	sort.Slice(hotspots, func(i, j int) bool {
		if hotspots[i].PlusOneHour != hotspots[j].PlusOneHour {
			return hotspots[i].PlusOneHour > hotspots[j].PlusOneHour
		}
		return hotspots[i].Segment.RoadID < hotspots[j].Segment.RoadID
	})
	sort.Strings(skipped)

	evaluated := len(hotspots)
	metrics.SegmentsEvaluated.Set(float64(evaluated))
	if limit > 0 && len(hotspots) > limit {
		hotspots = hotspots[:limit]
	}
	if hotspots == nil {
		hotspots = []domain.Hotspot{}
	}

	return domain.HotspotReport{
		Timestamp: at,
		Hotspots:  hotspots,
		Evaluated: evaluated,
		Skipped:   skipped,
	}, nil
}

func toHotspot(seg domain.Segment, resp domain.ForecastResponse) domain.Hotspot {
	h := domain.Hotspot{Segment: seg}
	if len(resp.Forecast) == 0 {
		return h
	}
	h.PlusOneHour = resp.Forecast[0].Congestion
	h.Band = resp.Bands[0]
	h.AlertLevel = resp.AlertLevel
	for _, p := range resp.Forecast {
		h.Peak = max(h.Peak, p.Congestion)
	}
	return h
}
