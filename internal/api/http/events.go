package httpapi

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"github.com/i474232898/weather-locations/internal/weather"
)

const (
	eventBuffer  = 16
	pingInterval = 15 * time.Second
)

var errSlowSubscriber = errors.New("event stream buffer full; dropping event")

// streamEvents serves refresh notifications as server-sent events. Each
// connection is one notifier subscription, removed when the client goes away.
// With lat and lon query parameters only that location's events are sent.
func streamEvents(notifier *weather.Notifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var key weather.LocationKey
		if c.Query("lat") != "" || c.Query("lon") != "" {
			q, err := parseLocationQuery(c)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
			key = weather.KeyFor(q.toCoordinates())
		}

		c.Set("Content-Type", "text/event-stream")
		c.Set("Cache-Control", "no-cache")
		c.Set("Connection", "keep-alive")

		c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
			events := make(chan weather.Event, eventBuffer)
			forward := forwardTo(events)
			var sub weather.Subscription
			if key != "" {
				sub = notifier.SubscribeKey(key, forward)
			} else {
				sub = notifier.Subscribe(forward)
			}
			defer notifier.Unsubscribe(sub)

			ping := time.NewTicker(pingInterval)
			defer ping.Stop()

			fmt.Fprint(w, ": connected\n\n")
			if err := w.Flush(); err != nil {
				return
			}

			for {
				select {
				case ev := <-events:
					payload, err := json.Marshal(ev.Snapshot)
					if err != nil {
						log.Printf("ERROR: events: encode snapshot for %s: %v", ev.Key, err)
						continue
					}
					fmt.Fprintf(w, "event: refresh\nid: %s\ndata: %s\n\n", ev.Key, payload)
				case <-ping.C:
					fmt.Fprint(w, ": ping\n\n")
				}
				if err := w.Flush(); err != nil {
					// client disconnected
					return
				}
			}
		}))
		return nil
	}
}

// forwardTo hands events to ch without ever blocking the publisher; a full
// buffer drops the event.
func forwardTo(ch chan<- weather.Event) weather.Handler {
	return func(ev weather.Event) error {
		select {
		case ch <- ev:
			return nil
		default:
			return errSlowSubscriber
		}
	}
}
