package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/i474232898/weather-locations/internal/weather"
)

type AppConfig struct {
	Port string `env:"PORT" envDefault:"8080"`

	// Provider selects the weather backend: openmeteo, openweather or weatherapi.
	Provider          string `env:"WEATHER_PROVIDER" envDefault:"openmeteo"`
	OpenWeatherAPIKey string `env:"OPENWEATHER_API_KEY"`
	WeatherAPIKey     string `env:"WEATHERAPI_API_KEY"`
	GeocoderAPIKey    string `env:"GOOGLE_GEOCODER_API_KEY"`

	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT" envDefault:"10s"`

	// CacheMaxAge is how long a snapshot is served before refetching.
	CacheMaxAge time.Duration `env:"CACHE_MAX_AGE" envDefault:"10m"`

	// RefreshInterval controls the background refresh of saved locations (0 disables it).
	RefreshInterval time.Duration `env:"REFRESH_INTERVAL" envDefault:"15m"`

	// StorePath is the bolt file for saved locations; empty keeps them in memory.
	StorePath string `env:"STORE_PATH" envDefault:"weather.db"`
	SeedFile  string `env:"SEED_FILE"`

	// Placeholder coordinates for the default location created on first launch.
	DefaultLatitude  float64 `env:"DEFAULT_LATITUDE" envDefault:"0"`
	DefaultLongitude float64 `env:"DEFAULT_LONGITUDE" envDefault:"0"`
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}

	cfg := &AppConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values env parsing can't.
func (c *AppConfig) Validate() error {
	switch c.Provider {
	case "openmeteo":
	case "openweather":
		if c.OpenWeatherAPIKey == "" {
			return fmt.Errorf("WEATHER_PROVIDER=openweather requires OPENWEATHER_API_KEY")
		}
	case "weatherapi":
		if c.WeatherAPIKey == "" {
			return fmt.Errorf("WEATHER_PROVIDER=weatherapi requires WEATHERAPI_API_KEY")
		}
	default:
		return fmt.Errorf("invalid WEATHER_PROVIDER: %q", c.Provider)
	}

	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("invalid HTTP_TIMEOUT: must be positive")
	}
	if c.CacheMaxAge <= 0 {
		return fmt.Errorf("invalid CACHE_MAX_AGE: must be positive")
	}
	if c.RefreshInterval < 0 {
		return fmt.Errorf("invalid REFRESH_INTERVAL: must not be negative")
	}
	if err := c.Placeholder().Validate(); err != nil {
		return fmt.Errorf("invalid DEFAULT_LATITUDE/DEFAULT_LONGITUDE: %w", err)
	}
	return nil
}

// Placeholder returns the first-launch default coordinates.
func (c *AppConfig) Placeholder() weather.Coordinates {
	return weather.Coordinates{Latitude: c.DefaultLatitude, Longitude: c.DefaultLongitude}
}

// SeedFile is the YAML layout of SEED_FILE.
type SeedFile struct {
	Cities []SeedCity `yaml:"cities"`
}

type SeedCity struct {
	Name        string    `yaml:"name"`
	Coordinates []float64 `yaml:"coordinates"`
	Default     bool      `yaml:"default"`
}

// LoadSeedLocations reads the seed file and returns the records it describes.
func LoadSeedLocations(path string) ([]weather.LocationRecord, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}

	var seed SeedFile
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}

	recs := make([]weather.LocationRecord, 0, len(seed.Cities))
	for i, c := range seed.Cities {
		if len(c.Coordinates) != 2 {
			return nil, fmt.Errorf("seed city %d (%s): coordinates must be [lat, lon]", i, c.Name)
		}
		coords := weather.Coordinates{Latitude: c.Coordinates[0], Longitude: c.Coordinates[1]}
		if err := coords.Validate(); err != nil {
			return nil, fmt.Errorf("seed city %d (%s): %w", i, c.Name, err)
		}
		recs = append(recs, weather.LocationRecord{
			Coordinates: coords,
			City:        c.Name,
			IsDefault:   c.Default,
		})
	}
	return recs, nil
}
