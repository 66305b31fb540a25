package weather

import (
	"context"
	"time"
)

// ProviderForecast is a single provider's normalized response before it is
// trimmed into a WeatherSnapshot.
type ProviderForecast struct {
	ProviderName string

	Current CurrentConditions
	Hourly  []HourlyForecast
	Daily   []DailyForecast
}

// Fetcher abstracts a weather data source (e.g. Open-Meteo, OpenWeatherMap, WeatherAPI).
// Fetch issues exactly one upstream request and fails with *NetworkError or *ProviderError.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, coords Coordinates) (ProviderForecast, error)
}

// LocationStore is the contract the in-memory and persistent record stores satisfy.
type LocationStore interface {
	List() ([]LocationRecord, error)
	Get(id string) (LocationRecord, error)
	Default() (LocationRecord, error)
	MainDisplay() (LocationRecord, error)
	Add(rec LocationRecord) (LocationRecord, error)
	Remove(id string) error
	SetDefault(id string) error
	SetMainDisplay(id string) error
	UpdateCity(id, city string) error
}

// Publisher receives every successful cache replacement.
type Publisher interface {
	Publish(key LocationKey, snapshot WeatherSnapshot)
}

// Clock is overridden in tests.
type Clock func() time.Time
