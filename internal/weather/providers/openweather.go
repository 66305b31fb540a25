package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-locations/internal/weather"
)

// OpenWeatherProvider implements weather.Fetcher for the OpenWeatherMap One Call API.
type OpenWeatherProvider struct {
	name    string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewOpenWeatherProvider(cfg HTTPClientConfig, apiKey string) *OpenWeatherProvider {
	return &OpenWeatherProvider{
		name:    "openweathermap",
		apiKey:  apiKey,
		baseURL: "https://api.openweathermap.org/data/3.0/onecall",
		httpCfg: cfg,
		circuit: newCircuitBreaker("openweather", cfg),
	}
}

// WithBaseURL points the provider at another endpoint.
func (p *OpenWeatherProvider) WithBaseURL(u string) *OpenWeatherProvider {
	p.baseURL = u
	return p
}

func (p *OpenWeatherProvider) Name() string {
	return p.name
}

type owmCondition struct {
	ID   int    `json:"id"`
	Main string `json:"main"`
}

type openWeatherResponse struct {
	Current *struct {
		Dt      int64          `json:"dt"`
		Temp    float64        `json:"temp"`
		Weather []owmCondition `json:"weather"`
	} `json:"current"`
	Hourly []struct {
		Dt      int64          `json:"dt"`
		Temp    float64        `json:"temp"`
		Weather []owmCondition `json:"weather"`
	} `json:"hourly"`
	Daily []struct {
		Dt   int64 `json:"dt"`
		Temp struct {
			Min float64 `json:"min"`
			Max float64 `json:"max"`
		} `json:"temp"`
		Weather []owmCondition `json:"weather"`
	} `json:"daily"`
}

func (p *OpenWeatherProvider) Fetch(ctx context.Context, coords weather.Coordinates) (weather.ProviderForecast, error) {
	if p.apiKey == "" {
		return weather.ProviderForecast{}, &weather.ProviderError{Provider: p.name, Reason: "openweather api key is not configured"}
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("appid", p.apiKey)
		values.Set("units", "metric")
		values.Set("exclude", "minutely,alerts")
		values.Set("lat", strconv.FormatFloat(coords.Latitude, 'f', 4, 64))
		values.Set("lon", strconv.FormatFloat(coords.Longitude, 'f', 4, 64))

		return http.NewRequest(http.MethodGet, fmt.Sprintf("%s?%s", p.baseURL, values.Encode()), nil)
	}

	resp, err := doRequest(ctx, p.name, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return weather.ProviderForecast{}, err
	}

	var payload openWeatherResponse
	if err := decodeJSON(p.name, resp, &payload); err != nil {
		return weather.ProviderForecast{}, err
	}
	if payload.Current == nil {
		return weather.ProviderForecast{}, &weather.ProviderError{Provider: p.name, Reason: "response has no current conditions"}
	}

	code, cond := mapOpenWeatherCondition(payload.Current.Weather)
	out := weather.ProviderForecast{
		ProviderName: p.name,
		Current: weather.CurrentConditions{
			Time:          time.Unix(payload.Current.Dt, 0).UTC(),
			TemperatureC:  payload.Current.Temp,
			Condition:     cond,
			ConditionCode: code,
		},
	}
	for _, h := range payload.Hourly {
		_, cond := mapOpenWeatherCondition(h.Weather)
		out.Hourly = append(out.Hourly, weather.HourlyForecast{
			Time:         time.Unix(h.Dt, 0).UTC(),
			TemperatureC: h.Temp,
			Condition:    cond,
		})
	}
	for _, d := range payload.Daily {
		_, cond := mapOpenWeatherCondition(d.Weather)
		out.Daily = append(out.Daily, weather.DailyForecast{
			Date:      time.Unix(d.Dt, 0).UTC(),
			HighC:     d.Temp.Max,
			LowC:      d.Temp.Min,
			Condition: cond,
		})
	}
	return out, nil
}

func mapOpenWeatherCondition(items []owmCondition) (int, weather.Condition) {
	if len(items) == 0 {
		return 0, weather.ConditionUnknown
	}
	switch items[0].Main {
	case "Clear":
		return items[0].ID, weather.ConditionClear
	case "Clouds":
		return items[0].ID, weather.ConditionCloudy
	case "Rain", "Drizzle":
		return items[0].ID, weather.ConditionRain
	case "Snow":
		return items[0].ID, weather.ConditionSnow
	case "Thunderstorm":
		return items[0].ID, weather.ConditionStorm
	case "Mist", "Fog", "Haze":
		return items[0].ID, weather.ConditionMist
	default:
		return items[0].ID, weather.ConditionUnknown
	}
}
