package overpass

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/serjvanilla/go-overpass"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var from = time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC)

func TestEventType(t *testing.T) {
	tests := []struct {
		tags map[string]string
		want string
	}{
		{map[string]string{"leisure": "stadium"}, "sports"},
		{map[string]string{"amenity": "concert_hall"}, "concert"},
		{map[string]string{"amenity": "events_venue"}, "event"},
		{map[string]string{"tourism": "theme_park"}, "entertainment"},
		{map[string]string{"tourism": "attraction"}, "tourism"},
		{map[string]string{"shop": "mall"}, "shopping"},
		{map[string]string{"aeroway": "aerodrome"}, "transport"},
		{map[string]string{"amenity": "cafe"}, ""},
		{nil, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, eventType(tt.tags), "%v", tt.tags)
	}
}

func TestBuildQuery(t *testing.T) {
	q := buildQuery(19.0760, 72.8777, 10)

	assert.True(t, strings.HasPrefix(q, "[out:json];"))
	assert.Contains(t, q, `node["leisure"~"^(stadium|sports_centre|water_park)$"](around:10000,19.076000,72.877700);`)
	assert.Contains(t, q, `way["aeroway"~"^(aerodrome)$"](around:10000,19.076000,72.877700);`)
	assert.Contains(t, q, "out skel qt;")
}

func TestConvertToEvents(t *testing.T) {
	member1 := &overpass.Node{Meta: overpass.Meta{ID: 10}, Lat: 19.0, Lon: 72.0}
	member2 := &overpass.Node{Meta: overpass.Meta{ID: 11}, Lat: 19.2, Lon: 72.2}
	result := &overpass.Result{
		Nodes: map[int64]*overpass.Node{
			1: {
				Meta: overpass.Meta{ID: 1, Tags: map[string]string{"amenity": "concert_hall", "name": "NCPA", "capacity": "2000"}},
				Lat:  18.92, Lon: 72.82,
			},
			10: member1,
			11: member2,
		},
		Ways: map[int64]*overpass.Way{
			5: {
				Meta:  overpass.Meta{ID: 5, Tags: map[string]string{"leisure": "stadium"}},
				Nodes: []*overpass.Node{member1, member2},
			},
		},
	}

	events := convertToEvents(result, from)
	require.Len(t, events, 2)

	concert := events[0]
	assert.Equal(t, "osm_node_1", concert.ID)
	assert.Equal(t, "NCPA", concert.Name)
	assert.Equal(t, "concert", concert.Type)
	assert.Equal(t, 2000, concert.VenueCapacity)
	assert.Equal(t, from, concert.Start)
	assert.Nil(t, concert.End)
	assert.Equal(t, SourceName, concert.Source)

	stadium := events[1]
	assert.Equal(t, "osm_way_5", stadium.ID)
	assert.Equal(t, "Unnamed sports venue", stadium.Name)
	assert.InDelta(t, 19.1, stadium.Lat, 1e-9)
	assert.InDelta(t, 72.1, stadium.Lon, 1e-9)
	assert.True(t, stadium.ActiveAt(from.Add(48*time.Hour)))
}

func TestConvertToEventsEmpty(t *testing.T) {
	events := convertToEvents(&overpass.Result{}, from)
	assert.NotNil(t, events)
	assert.Empty(t, events)
}

func TestVenueSource_EventsNear(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"osm3s": {"timestamp_osm_base": "2024-03-01T00:00:00Z"},
			"elements": [
				{"type": "node", "id": 7, "lat": 19.07, "lon": 72.87, "tags": {"leisure": "stadium", "name": "Wankhede"}}
			]
		}`))
	}))
	defer srv.Close()

	src := NewVenueSource(srv.URL, 5*time.Second)
	assert.Equal(t, "overpass", src.Name())

	events, err := src.EventsNear(context.Background(), 19.07, 72.87, 10, from, from.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Wankhede", events[0].Name)
	assert.Equal(t, "sports", events[0].Type)
}

func TestVenueSource_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	src := NewVenueSource(srv.URL, 5*time.Second)
	_, err := src.EventsNear(context.Background(), 19.07, 72.87, 10, from, from.Add(time.Hour))
	assert.Error(t, err)
}
