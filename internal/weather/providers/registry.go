package providers

import (
	"fmt"

	"github.com/i474232898/weather-locations/internal/weather"
)

// Keys holds API keys for the providers that need one.
type Keys struct {
	OpenWeather string
	WeatherAPI  string
}

// New returns the fetcher registered under name.
func New(name string, cfg HTTPClientConfig, keys Keys) (weather.Fetcher, error) {
	switch name {
	case "", "openmeteo":
		return NewOpenMeteoProvider(cfg), nil
	case "openweather":
		if keys.OpenWeather == "" {
			return nil, fmt.Errorf("provider %q requires OPENWEATHER_API_KEY", name)
		}
		return NewOpenWeatherProvider(cfg, keys.OpenWeather), nil
	case "weatherapi":
		if keys.WeatherAPI == "" {
			return nil, fmt.Errorf("provider %q requires WEATHERAPI_API_KEY", name)
		}
		return NewWeatherAPIProvider(cfg, keys.WeatherAPI), nil
	default:
		return nil, fmt.Errorf("unknown weather provider %q", name)
	}
}
