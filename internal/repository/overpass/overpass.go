// Package overpass reads event venues from OpenStreetMap through the Overpass API.
package overpass

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/serjvanilla/go-overpass"

	"github.com/smartcity/congestion/internal/domain"
)

const (
	// DefaultEndpoint is the public Overpass interpreter
	DefaultEndpoint = "https://overpass-api.de/api/interpreter"
	// SourceName identifies events produced by this package
	SourceName = "overpass"
)

// venueTag maps one OSM tag value to an event type
type venueTag struct {
	key, value, eventType string
}

// venueTags are the OSM venues treated as standing traffic attractors
var venueTags = []venueTag{
	{"leisure", "stadium", "sports"},
	{"leisure", "sports_centre", "sports"},
	{"amenity", "concert_hall", "concert"},
	{"amenity", "theatre", "concert"},
	{"amenity", "music_venue", "concert"},
	{"amenity", "events_venue", "event"},
	{"amenity", "conference_centre", "event"},
	{"tourism", "theme_park", "entertainment"},
	{"leisure", "water_park", "entertainment"},
	{"tourism", "attraction", "tourism"},
	{"shop", "mall", "shopping"},
	{"aeroway", "aerodrome", "transport"},
}

// VenueSource implements domain.EventSource over OSM venues.
// Venues have no schedule, so each one becomes an open-ended event starting at `from`.
type VenueSource struct {
	client  *overpass.Client
	timeout time.Duration
}

// NewVenueSource creates a source querying endpoint
func NewVenueSource(endpoint string, timeout time.Duration) *VenueSource {
	httpClient := &http.Client{
		Timeout: timeout,
	}
	client := overpass.NewWithSettings(endpoint, 2, httpClient)
	return &VenueSource{
		client:  &client,
		timeout: timeout,
	}
}

// Name implements domain.EventSource
func (s *VenueSource) Name() string { return SourceName }

// EventsNear implements domain.EventSource
func (s *VenueSource) EventsNear(ctx context.Context, lat, lon, radiusKm float64, from, to time.Time) ([]domain.Event, error) {
	result, err := s.executeQuery(ctx, buildQuery(lat, lon, radiusKm))
	if err != nil {
		return nil, fmt.Errorf("overpass: failed to query venues: %w", err)
	}
	return convertToEvents(result, from), nil
}

// executeQuery runs the blocking client call and gives up when ctx ends first
func (s *VenueSource) executeQuery(ctx context.Context, query string) (*overpass.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	type outcome struct {
		result overpass.Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := s.client.Query(query)
		done <- outcome{result, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case o := <-done:
		if o.err != nil {
			return nil, o.err
		}
		return &o.result, nil
	}
}

func buildQuery(lat, lon, radiusKm float64) string {
	around := fmt.Sprintf("(around:%d,%.6f,%.6f)", int(radiusKm*1000), lat, lon)

	var b strings.Builder
	b.WriteString("[out:json];\n(\n")
	for _, key := range venueKeys() {
		filter := fmt.Sprintf(`["%s"~"^(%s)$"]`, key, strings.Join(venueValues(key), "|"))
		fmt.Fprintf(&b, "\tnode%s%s;\n\tway%s%s;\n", filter, around, filter, around)
	}
	b.WriteString(");\nout body;\n>;\nout skel qt;\n")
	return b.String()
}

func venueKeys() []string {
	seen := make(map[string]bool)
	var keys []string
	for _, t := range venueTags {
		if !seen[t.key] {
			seen[t.key] = true
			keys = append(keys, t.key)
		}
	}
	return keys
}

func venueValues(key string) []string {
	var values []string
	for _, t := range venueTags {
		if t.key == key {
			values = append(values, t.value)
		}
	}
	return values
}

// eventType returns the event type for a tag set, or "" when it is not a venue
func eventType(tags map[string]string) string {
	for _, t := range venueTags {
		if tags[t.key] == t.value {
			return t.eventType
		}
	}
	return ""
}

func convertToEvents(result *overpass.Result, from time.Time) []domain.Event {
	events := []domain.Event{}

	for _, node := range result.Nodes {
		// member nodes of ways come back untagged
		if e, ok := venueEvent(overpass.ElementTypeNode, node.ID, node.Tags, node.Lat, node.Lon, from); ok {
			events = append(events, e)
		}
	}

	for _, way := range result.Ways {
		var lat, lon float64
		switch {
		case len(way.Nodes) > 0:
			for _, node := range way.Nodes {
				lat += node.Lat
				lon += node.Lon
			}
			lat /= float64(len(way.Nodes))
			lon /= float64(len(way.Nodes))
		case way.Bounds != nil:
			lat = (way.Bounds.Min.Lat + way.Bounds.Max.Lat) / 2
			lon = (way.Bounds.Min.Lon + way.Bounds.Max.Lon) / 2
		default:
			continue
		}
		if e, ok := venueEvent(overpass.ElementTypeWay, way.ID, way.Tags, lat, lon, from); ok {
			events = append(events, e)
		}
	}

	sort.Slice(events, func(i, j int) bool { return events[i].ID < events[j].ID })
	return events
}

func venueEvent(kind overpass.ElementType, id int64, tags map[string]string, lat, lon float64, from time.Time) (domain.Event, bool) {
	typ := eventType(tags)
	if typ == "" {
		return domain.Event{}, false
	}
	name := tags["name"]
	if name == "" {
		name = fmt.Sprintf("Unnamed %s venue", typ)
	}
	capacity, _ := strconv.Atoi(tags["capacity"])
	return domain.Event{
		ID:            fmt.Sprintf("osm_%s_%d", kind, id),
		Name:          name,
		Type:          typ,
		Lat:           lat,
		Lon:           lon,
		Start:         from,
		VenueCapacity: capacity,
		Description:   tags["description"],
		Source:        SourceName,
	}, true
}
