package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	httpapi "github.com/i474232898/weather-locations/internal/api/http"
	"github.com/i474232898/weather-locations/internal/config"
	"github.com/i474232898/weather-locations/internal/geocode"
	"github.com/i474232898/weather-locations/internal/scheduler"
	"github.com/i474232898/weather-locations/internal/store"
	"github.com/i474232898/weather-locations/internal/weather"
	"github.com/i474232898/weather-locations/internal/weather/providers"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Saved locations: bolt file when STORE_PATH is set, memory otherwise.
	var locations weather.LocationStore
	if cfg.StorePath != "" {
		ss, err := store.OpenStormStore(cfg.StorePath)
		if err != nil {
			log.Fatalf("failed to open location store: %v", err)
		}
		defer ss.Close()
		locations = ss
	} else {
		log.Println("INFO: STORE_PATH is empty; saved locations are kept in memory")
		locations = store.NewMemoryStore()
	}

	if cfg.SeedFile != "" {
		if err := seed(locations, cfg.SeedFile); err != nil {
			log.Fatalf("failed to seed locations: %v", err)
		}
	}

	// Shared HTTP client for outbound provider calls.
	httpCfg := providers.HTTPClientConfig{
		Client: &http.Client{Timeout: cfg.HTTPTimeout},
	}
	fetcher, err := providers.New(cfg.Provider, httpCfg, providers.Keys{
		OpenWeather: cfg.OpenWeatherAPIKey,
		WeatherAPI:  cfg.WeatherAPIKey,
	})
	if err != nil {
		log.Fatalf("failed to configure weather provider: %v", err)
	}

	notifier := weather.NewNotifier()
	cache := weather.NewCache(fetcher, notifier)

	coordCfg := weather.CoordinatorConfig{
		MaxAge:      cfg.CacheMaxAge,
		Placeholder: cfg.Placeholder(),
	}
	if g := geocode.NewGoogle(cfg.GeocoderAPIKey); g != nil {
		coordCfg.Geocoder = g
	}
	coord := weather.NewCoordinator(locations, cache, coordCfg)

	// Scheduler that periodically refreshes saved locations.
	sched := scheduler.New(coord, cfg.RefreshInterval, cfg.CacheMaxAge)
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	app := fiber.New(fiber.Config{
		AppName:               "weather-locations",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":      "ok",
			"service":     "weather-locations",
			"provider":    fetcher.Name(),
			"cached":      cache.Len(),
			"cache":       cache.Stats(),
			"subscribers": notifier.Subscribers(),
		})
	})

	// API routes.
	httpapi.RegisterRoutes(app, coord, locations, notifier)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}

// seed adds the seed file's cities when the store is empty.
func seed(locations weather.LocationStore, path string) error {
	existing, err := locations.List()
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	recs, err := config.LoadSeedLocations(path)
	if err != nil {
		return err
	}
	for _, r := range recs {
		if _, err := locations.Add(r); err != nil {
			return err
		}
	}
	log.Printf("INFO: seeded %d location(s) from %s", len(recs), path)
	return nil
}
