package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/weather-locations/internal/store"
	"github.com/i474232898/weather-locations/internal/weather"
	"github.com/i474232898/weather-locations/internal/weather/weathertest"
)

func newTestApp(t *testing.T) (*fiber.App, *weathertest.Fetcher) {
	t.Helper()

	fetcher := weathertest.NewFetcher()
	notifier := weather.NewNotifier()
	cache := weather.NewCache(fetcher, notifier)
	locations := store.NewMemoryStore()
	coord := weather.NewCoordinator(locations, cache, weather.CoordinatorConfig{
		MaxAge:      time.Minute,
		Placeholder: weather.Coordinates{Latitude: 37.5, Longitude: 127.0},
	})

	app := fiber.New()
	RegisterRoutes(app, coord, locations, notifier)
	return app, fetcher
}

func do(t *testing.T, app *fiber.App, method, target, body string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

// TestCurrentWeatherValidation verifies that the current weather endpoint
// requires numeric lat/lon within range.
func TestCurrentWeatherValidation(t *testing.T) {
	app, fetcher := newTestApp(t)

	for _, target := range []string{
		"/api/v1/weather/current",
		"/api/v1/weather/current?lat=37.5",
		"/api/v1/weather/current?lat=abc&lon=127",
		"/api/v1/weather/current?lat=95&lon=127",
		"/api/v1/weather/current?lat=37.5&lon=-181",
	} {
		resp := do(t, app, http.MethodGet, target, "")
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: expected status %d, got %d", target, http.StatusBadRequest, resp.StatusCode)
		}
	}
	if fetcher.Calls() != 0 {
		t.Fatalf("expected no fetches, got %d", fetcher.Calls())
	}
}

func TestCurrentWeather(t *testing.T) {
	app, fetcher := newTestApp(t)

	resp := do(t, app, http.MethodGet, "/api/v1/weather/current?lat=37.5&lon=127", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}

	var body weatherResponse
	decode(t, resp, &body)
	if body.Snapshot == nil {
		t.Fatal("expected a snapshot")
	}
	if body.Snapshot.LocationKey != "37.50,127.00" {
		t.Fatalf("unexpected key %q", body.Snapshot.LocationKey)
	}
	if len(body.Snapshot.Hourly) != weather.HourlyWindow || len(body.Snapshot.Daily) != weather.DailyWindow {
		t.Fatalf("unexpected windows: %d hourly, %d daily", len(body.Snapshot.Hourly), len(body.Snapshot.Daily))
	}
	if body.Stale {
		t.Fatal("fresh snapshot reported as stale")
	}

	// Within max age the cached snapshot is served.
	do(t, app, http.MethodGet, "/api/v1/weather/current?lat=37.5&lon=127", "")
	if fetcher.Calls() != 1 {
		t.Fatalf("expected 1 fetch, got %d", fetcher.Calls())
	}
}

func TestCurrentWeatherFailures(t *testing.T) {
	app, fetcher := newTestApp(t)
	fetcher.FailWith(&weather.NetworkError{Provider: "stub", Err: errors.New("offline")})

	resp := do(t, app, http.MethodGet, "/api/v1/weather/current?lat=37.5&lon=127", "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected status %d, got %d", http.StatusServiceUnavailable, resp.StatusCode)
	}

	fetcher.FailWith(&weather.ProviderError{Provider: "stub", Reason: "bad key"})
	resp = do(t, app, http.MethodGet, "/api/v1/weather/current?lat=37.5&lon=127", "")
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected status %d, got %d", http.StatusBadGateway, resp.StatusCode)
	}

	// Once something is cached, a failed refresh serves it as stale.
	fetcher.FailWith(nil)
	do(t, app, http.MethodGet, "/api/v1/weather/current?lat=37.5&lon=127", "")
	fetcher.FailWith(&weather.NetworkError{Provider: "stub", Err: errors.New("offline")})

	resp = do(t, app, http.MethodGet, "/api/v1/weather/current?lat=37.5&lon=127&refresh=true", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	var body weatherResponse
	decode(t, resp, &body)
	if !body.Stale || body.Snapshot == nil || body.Error == "" {
		t.Fatalf("expected stale snapshot with error, got %+v", body)
	}
}

func TestLaunch(t *testing.T) {
	app, fetcher := newTestApp(t)

	resp := do(t, app, http.MethodPost, "/api/v1/launch", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	var body weatherResponse
	decode(t, resp, &body)
	if body.Record == nil || !body.Record.IsDefault || !body.Record.IsMainDisplay {
		t.Fatalf("expected default main display record, got %+v", body.Record)
	}
	if body.Snapshot == nil || body.Snapshot.LocationKey != body.Record.Key() {
		t.Fatalf("snapshot does not match record: %+v", body.Snapshot)
	}

	do(t, app, http.MethodPost, "/api/v1/launch", "")
	if fetcher.Calls() != 1 {
		t.Fatalf("expected 1 fetch, got %d", fetcher.Calls())
	}
}

func TestLocationLifecycle(t *testing.T) {
	app, _ := newTestApp(t)

	resp := do(t, app, http.MethodPost, "/api/v1/locations", `{"lat": 48.8566, "lon": 2.3522, "city": "Paris"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected status %d, got %d", http.StatusCreated, resp.StatusCode)
	}
	var created weather.LocationRecord
	decode(t, resp, &created)
	if created.ID == "" || created.City != "Paris" {
		t.Fatalf("unexpected record %+v", created)
	}

	resp = do(t, app, http.MethodGet, "/api/v1/locations", "")
	var list struct {
		Locations []weather.LocationRecord `json:"locations"`
	}
	decode(t, resp, &list)
	if len(list.Locations) != 1 {
		t.Fatalf("expected 1 location, got %d", len(list.Locations))
	}

	resp = do(t, app, http.MethodPut, "/api/v1/locations/"+created.ID+"/default", "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, resp.StatusCode)
	}

	resp = do(t, app, http.MethodPut, "/api/v1/locations/"+created.ID+"/main", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}

	resp = do(t, app, http.MethodPut, "/api/v1/locations/missing/default", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, resp.StatusCode)
	}

	resp = do(t, app, http.MethodDelete, "/api/v1/locations/"+created.ID, "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, resp.StatusCode)
	}
	// Removing again is a no-op.
	resp = do(t, app, http.MethodDelete, "/api/v1/locations/"+created.ID, "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, resp.StatusCode)
	}
}

func TestAddLocationValidation(t *testing.T) {
	app, _ := newTestApp(t)

	for _, body := range []string{
		`{"lat": 100, "lon": 0}`,
		`{"lat": 10}`,
		`{}`,
		`not json`,
		`{"city": "Paris"}`, // no geocoder configured
	} {
		resp := do(t, app, http.MethodPost, "/api/v1/locations", body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: expected status %d, got %d", body, http.StatusBadRequest, resp.StatusCode)
		}
	}
}

func TestSavedWeather(t *testing.T) {
	app, _ := newTestApp(t)

	do(t, app, http.MethodPost, "/api/v1/locations", `{"lat": 48.8566, "lon": 2.3522}`)
	do(t, app, http.MethodPost, "/api/v1/locations", `{"lat": 51.5074, "lon": -0.1278}`)

	resp := do(t, app, http.MethodGet, "/api/v1/weather/saved", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	var body struct {
		Locations []weatherResponse `json:"locations"`
	}
	decode(t, resp, &body)
	if len(body.Locations) != 2 {
		t.Fatalf("expected 2 locations, got %d", len(body.Locations))
	}
	for _, l := range body.Locations {
		if l.Record == nil || l.Snapshot == nil {
			t.Fatalf("incomplete entry %+v", l)
		}
	}
}

type fixedGeocoder struct {
	coords weather.Coordinates
}

func (g fixedGeocoder) CityName(context.Context, weather.Coordinates) (string, error) {
	return "", errors.New("not used")
}

func (g fixedGeocoder) Locate(context.Context, string, string) (weather.Coordinates, error) {
	return g.coords, nil
}

func TestAddCityAsDefault(t *testing.T) {
	locations := store.NewMemoryStore()
	coord := weather.NewCoordinator(locations, weather.NewCache(weathertest.NewFetcher(), nil), weather.CoordinatorConfig{
		Geocoder: fixedGeocoder{coords: weather.Coordinates{Latitude: 48.8566, Longitude: 2.3522}},
	})
	app := fiber.New()
	RegisterRoutes(app, coord, locations, weather.NewNotifier())

	old, err := locations.Add(weather.LocationRecord{Coordinates: weather.Coordinates{Latitude: 37.5, Longitude: 127}, IsDefault: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resp := do(t, app, http.MethodPost, "/api/v1/locations", `{"city": "Paris", "country": "FR", "default": true}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected status %d, got %d", http.StatusCreated, resp.StatusCode)
	}
	var created weather.LocationRecord
	decode(t, resp, &created)
	if !created.IsDefault {
		t.Fatal("expected the new city to be the default")
	}

	def, err := locations.Default()
	if err != nil || def.ID != created.ID {
		t.Fatalf("expected default %s, got %+v (%v)", created.ID, def, err)
	}
	prev, err := locations.Get(old.ID)
	if err != nil || prev.IsDefault {
		t.Fatalf("previous default should be cleared, got %+v (%v)", prev, err)
	}
}
