// Package eventbrite fetches scheduled public events from the Eventbrite API.
package eventbrite

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/smartcity/congestion/internal/domain"
)

const (
	// DefaultBaseURL is the Eventbrite v3 API root
	DefaultBaseURL = "https://www.eventbriteapi.com/v3"
	// SourceName identifies events produced by this package
	SourceName = "eventbrite"

	dateLayout = "2006-01-02T15:04:05"
)

// categoryTypes maps Eventbrite category ids to event types
var categoryTypes = map[string]string{
	"103": "concert",
	"105": "sports",
	"113": "community",
	"101": "business",
}

// Client implements domain.EventSource over the Eventbrite search endpoint
type Client struct {
	baseURL    string
	token      string
	location   *time.Location
	httpClient *http.Client
}

// NewClient creates a new Eventbrite client. Local event times are read in loc; nil means UTC.
func NewClient(baseURL, token string, loc *time.Location) *Client {
	if loc == nil {
		loc = time.UTC
	}
	return &Client{
		baseURL:  baseURL,
		token:    token,
		location: loc,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Name implements domain.EventSource
func (c *Client) Name() string { return SourceName }

type searchResponse struct {
	Events []apiEvent `json:"events"`
}

type apiEvent struct {
	ID         string   `json:"id"`
	Name       textBody `json:"name"`
	CategoryID string   `json:"category_id"`
	Start      *apiTime `json:"start"`
	End        *apiTime `json:"end"`
	Venue      *struct {
		Latitude  string `json:"latitude"`
		Longitude string `json:"longitude"`
		Capacity  int    `json:"capacity"`
	} `json:"venue"`
	Description textBody `json:"description"`
}

type textBody struct {
	Text string `json:"text"`
}

type apiTime struct {
	Local string `json:"local"`
}

// EventsNear implements domain.EventSource
func (c *Client) EventsNear(ctx context.Context, lat, lon, radiusKm float64, from, to time.Time) ([]domain.Event, error) {
	params := url.Values{}
	params.Set("token", c.token)
	params.Set("location.latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("location.longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	params.Set("location.within", fmt.Sprintf("%dkm", int(radiusKm)))
	params.Set("start_date.range_start", from.In(c.location).Format(dateLayout))
	params.Set("start_date.range_end", to.In(c.location).Format(dateLayout))
	params.Set("expand", "venue")

	endpoint := fmt.Sprintf("%s/events/search/?%s", c.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("eventbrite: failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("eventbrite: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("eventbrite: search returned status %d", resp.StatusCode)
	}

	var body searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("eventbrite: failed to decode response: %w", err)
	}

	events := make([]domain.Event, 0, len(body.Events))
	for _, ae := range body.Events {
		e, err := c.convert(ae)
		if err != nil {
			log.Printf("Warning: skipping Eventbrite event %s: %v", ae.ID, err)
			continue
		}
		events = append(events, e)
	}
	return events, nil
}

func (c *Client) convert(ae apiEvent) (domain.Event, error) {
	if ae.ID == "" {
		return domain.Event{}, fmt.Errorf("missing id")
	}
	if ae.Venue == nil {
		return domain.Event{}, fmt.Errorf("missing venue")
	}
	lat, err := strconv.ParseFloat(ae.Venue.Latitude, 64)
	if err != nil {
		return domain.Event{}, fmt.Errorf("bad venue latitude: %w", err)
	}
	lon, err := strconv.ParseFloat(ae.Venue.Longitude, 64)
	if err != nil {
		return domain.Event{}, fmt.Errorf("bad venue longitude: %w", err)
	}
	if ae.Start == nil {
		return domain.Event{}, fmt.Errorf("missing start")
	}
	start, err := time.ParseInLocation(dateLayout, ae.Start.Local, c.location)
	if err != nil {
		return domain.Event{}, fmt.Errorf("bad start time: %w", err)
	}

	e := domain.Event{
		ID:            "eventbrite_" + ae.ID,
		Name:          ae.Name.Text,
		Type:          classify(ae.CategoryID),
		Lat:           lat,
		Lon:           lon,
		Start:         start,
		VenueCapacity: ae.Venue.Capacity,
		Description:   ae.Description.Text,
		Source:        SourceName,
	}
	if ae.End != nil && ae.End.Local != "" {
		end, err := time.ParseInLocation(dateLayout, ae.End.Local, c.location)
		if err != nil {
			return domain.Event{}, fmt.Errorf("bad end time: %w", err)
		}
		e.End = &end
	}
	return e, nil
}

// classify maps an Eventbrite category id to an event type
func classify(categoryID string) string {
	if t, ok := categoryTypes[categoryID]; ok {
		return t
	}
	return "other"
}
