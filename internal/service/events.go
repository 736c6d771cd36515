package service

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/smartcity/congestion/internal/cache"
	"github.com/smartcity/congestion/internal/domain"
	"github.com/smartcity/congestion/internal/metrics"
	"github.com/smartcity/congestion/pkg/utils"
)

// Cache is the key/value store used for forecasts and event lookups
type Cache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

const (
	// DefaultEventRadiusKm is the lookup radius around a segment
	DefaultEventRadiusKm = 10.0
	// DefaultEventTTL is how long an event lookup stays cached
	DefaultEventTTL = time.Hour
)

// EventProvider gathers events from every configured source concurrently,
// dedupes them by id and caches the result per rounded location and hour.
type EventProvider struct {
	sources  []domain.EventSource
	cache    Cache
	radiusKm float64
	ttl      time.Duration
}

// NewEventProvider creates a provider; cache may be nil
func NewEventProvider(cache Cache, sources ...domain.EventSource) *EventProvider {
	return &EventProvider{
		sources:  sources,
		cache:    cache,
		radiusKm: DefaultEventRadiusKm,
		ttl:      DefaultEventTTL,
	}
}

// Sources returns the names of the configured sources
func (p *EventProvider) Sources() []string {
	names := make([]string, len(p.sources))
	for i, s := range p.sources {
		names[i] = s.Name()
	}
	return names
}

func eventCacheKey(lat, lon float64, from, to time.Time) string {
	return fmt.Sprintf("%s%s:%d:%d", cache.EventKeyPrefix, utils.LocationKey(lat, lon),
		from.Truncate(time.Hour).Unix(), to.Truncate(time.Hour).Unix())
}

// EventsNear returns events within the provider radius of (lat, lon) active in [from, to].
// Failing sources are logged and skipped; an error is returned only when
// every source failed, so the caller can fall back to empty event features.
func (p *EventProvider) EventsNear(ctx context.Context, lat, lon float64, from, to time.Time) ([]domain.Event, error) {
	if len(p.sources) == 0 {
		return []domain.Event{}, nil
	}

	key := eventCacheKey(lat, lon, from, to)
	if p.cache != nil {
		var cached []domain.Event
		ok, err := p.cache.Get(ctx, key, &cached)
		switch {
		case err != nil:
			metrics.CacheResults.WithLabelValues("events", "error").Inc()
			log.Printf("Event cache read failed: %v", err)
		case ok:
			metrics.CacheResults.WithLabelValues("events", "hit").Inc()
			return cached, nil
		default:
			metrics.CacheResults.WithLabelValues("events", "miss").Inc()
		}
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		all    []domain.Event
		failed int
	)
	for _, src := range p.sources {
		wg.Add(1)
		go func(src domain.EventSource) {
			defer wg.Done()
			events, err := src.EventsNear(ctx, lat, lon, p.radiusKm, from, to)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				metrics.EventFallbacks.WithLabelValues(src.Name()).Inc()
				log.Printf("Event source %s failed: %v", src.Name(), err)
				return
			}
			all = append(all, events...)
		}(src)
	}
	wg.Wait()

	if failed == len(p.sources) {
		return nil, fmt.Errorf("service: all %d event sources failed", failed)
	}

	events := dedupeEvents(all)
	if p.cache != nil {
		if err := p.cache.Set(ctx, key, events, p.ttl); err != nil {
			log.Printf("Event cache write failed: %v", err)
		}
	}
	return events, nil
}

// Prefetch collects the events relevant to a whole batch of readings, one
// lookup per rounded location, so feature construction can run without I/O.
func (p *EventProvider) Prefetch(ctx context.Context, readings []domain.Reading) []domain.Event {
	type span struct {
		lat, lon float64
		from, to time.Time
	}
	spans := make(map[string]*span)
	var keys []string
	for _, r := range readings {
		k := utils.LocationKey(r.Lat, r.Lon)
		s, ok := spans[k]
		if !ok {
			spans[k] = &span{lat: r.Lat, lon: r.Lon, from: r.Timestamp, to: r.Timestamp}
			keys = append(keys, k)
			continue
		}
		if r.Timestamp.Before(s.from) {
			s.from = r.Timestamp
		}
		if r.Timestamp.After(s.to) {
			s.to = r.Timestamp
		}
	}

	var all []domain.Event
	for _, k := range keys {
		s := spans[k]
		events, err := p.EventsNear(ctx, s.lat, s.lon, s.from, s.to)
		if err != nil {
			log.Printf("Event prefetch for %s failed, using placeholder features: %v", k, err)
			continue
		}
		all = append(all, events...)
	}
	return dedupeEvents(all)
}

// dedupeEvents keeps the first event per id and orders by start time
func dedupeEvents(events []domain.Event) []domain.Event {
	seen := make(map[string]bool, len(events))
	out := make([]domain.Event, 0, len(events))
	for _, e := range events {
		id := e.ID
		if id == "" {
			id = fmt.Sprintf("%s@%.5f,%.5f", e.Name, e.Lat, e.Lon)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
