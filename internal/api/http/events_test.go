package httpapi

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/weather-locations/internal/store"
	"github.com/i474232898/weather-locations/internal/weather"
	"github.com/i474232898/weather-locations/internal/weather/weathertest"
)

// serveTestApp runs the routes on a loopback listener so streaming responses
// can be read by a real HTTP client.
func serveTestApp(t *testing.T) (string, *weather.Coordinator, *weather.Notifier) {
	t.Helper()

	notifier := weather.NewNotifier()
	cache := weather.NewCache(weathertest.NewFetcher(), notifier)
	locations := store.NewMemoryStore()
	coord := weather.NewCoordinator(locations, cache, weather.CoordinatorConfig{MaxAge: time.Minute})

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	RegisterRoutes(app, coord, locations, notifier)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.ShutdownWithTimeout(2 * time.Second) })

	return "http://" + ln.Addr().String(), coord, notifier
}

// nextLine reads one line of the stream without its trailing newline.
func nextLine(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	return strings.TrimRight(line, "\n")
}

// nextEvent skips comments and blank lines and returns the event name and id.
func nextEvent(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var name, id string
	for {
		line := nextLine(t, r)
		switch {
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "id: "):
			id = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "data: "):
			if name == "" || id == "" {
				t.Fatalf("data before event/id: %q", line)
			}
		case line == "" && name != "":
			return name, id
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestEventsStreamsRefreshesForOneLocation(t *testing.T) {
	baseURL, coord, notifier := serveTestApp(t)
	client := &http.Client{Timeout: 10 * time.Second}

	resp, err := client.Get(baseURL + "/api/v1/events?lat=37.5&lon=127")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("unexpected content type %q", ct)
	}

	r := bufio.NewReader(resp.Body)
	if line := nextLine(t, r); line != ": connected" {
		t.Fatalf("expected connected comment, got %q", line)
	}
	if n := notifier.Subscribers(); n != 1 {
		t.Fatalf("expected 1 subscriber, got %d", n)
	}

	// The first refresh is for another location and must be filtered out.
	ctx := context.Background()
	if _, err := coord.Refresh(ctx, weather.Coordinates{Latitude: 48.85, Longitude: 2.35}); err != nil {
		t.Fatalf("refresh paris: %v", err)
	}
	view, err := coord.Refresh(ctx, weather.Coordinates{Latitude: 37.5, Longitude: 127})
	if err != nil {
		t.Fatalf("refresh seoul: %v", err)
	}

	name, id := nextEvent(t, r)
	if name != "refresh" {
		t.Fatalf("expected refresh event, got %q", name)
	}
	if id != "37.50,127.00" {
		t.Fatalf("expected event for 37.50,127.00, got %q", id)
	}

	// Closing the client must drop the subscription once a write fails.
	resp.Body.Close()
	snap := *view.Snapshot
	waitFor(t, "subscription removal", func() bool {
		notifier.Publish(snap.LocationKey, snap)
		return notifier.Subscribers() == 0
	})
}

func TestEventsRejectsBadCoordinates(t *testing.T) {
	baseURL, _, notifier := serveTestApp(t)

	resp, err := http.Get(baseURL + "/api/v1/events?lat=91&lon=0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.StatusCode)
	}
	if n := notifier.Subscribers(); n != 0 {
		t.Fatalf("expected no subscribers, got %d", n)
	}
}

func TestForwardToDropsWhenBufferIsFull(t *testing.T) {
	ch := make(chan weather.Event, 1)
	forward := forwardTo(ch)

	if err := forward(weather.Event{Key: "a"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := forward(weather.Event{Key: "b"}); !errors.Is(err, errSlowSubscriber) {
		t.Fatalf("expected errSlowSubscriber, got %v", err)
	}
	if ev := <-ch; ev.Key != "a" {
		t.Fatalf("expected first event to be kept, got %q", ev.Key)
	}
}
