package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-locations/internal/weather"
)

const openMeteoTimeLayout = "2006-01-02T15:04"

// OpenMeteoProvider implements weather.Fetcher for Open-Meteo. No API key needed.
type OpenMeteoProvider struct {
	name    string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewOpenMeteoProvider(cfg HTTPClientConfig) *OpenMeteoProvider {
	return &OpenMeteoProvider{
		name:    "openmeteo",
		baseURL: "https://api.open-meteo.com/v1/forecast",
		httpCfg: cfg,
		circuit: newCircuitBreaker("openmeteo", cfg),
	}
}

// WithBaseURL points the provider at another endpoint.
func (p *OpenMeteoProvider) WithBaseURL(u string) *OpenMeteoProvider {
	p.baseURL = u
	return p
}

func (p *OpenMeteoProvider) Name() string {
	return p.name
}

type openMeteoResponse struct {
	Current *struct {
		Time        string   `json:"time"`
		Temperature *float64 `json:"temperature_2m"`
		WeatherCode int      `json:"weather_code"`
	} `json:"current"`
	Hourly struct {
		Time        []string  `json:"time"`
		Temperature []float64 `json:"temperature_2m"`
		WeatherCode []int     `json:"weather_code"`
	} `json:"hourly"`
	Daily struct {
		Time        []string  `json:"time"`
		WeatherCode []int     `json:"weather_code"`
		TempMax     []float64 `json:"temperature_2m_max"`
		TempMin     []float64 `json:"temperature_2m_min"`
	} `json:"daily"`
}

func (p *OpenMeteoProvider) Fetch(ctx context.Context, coords weather.Coordinates) (weather.ProviderForecast, error) {
	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", strconv.FormatFloat(coords.Latitude, 'f', 4, 64))
		values.Set("longitude", strconv.FormatFloat(coords.Longitude, 'f', 4, 64))
		values.Set("current", "temperature_2m,weather_code")
		values.Set("hourly", "temperature_2m,weather_code")
		values.Set("daily", "weather_code,temperature_2m_max,temperature_2m_min")
		values.Set("timezone", "GMT")
		// One spare day so the daily window stays full when the local date lags UTC.
		values.Set("forecast_days", strconv.Itoa(weather.DailyWindow+1))

		return http.NewRequest(http.MethodGet, fmt.Sprintf("%s?%s", p.baseURL, values.Encode()), nil)
	}

	resp, err := doRequest(ctx, p.name, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return weather.ProviderForecast{}, err
	}

	var payload openMeteoResponse
	if err := decodeJSON(p.name, resp, &payload); err != nil {
		return weather.ProviderForecast{}, err
	}
	return p.convert(payload)
}

func (p *OpenMeteoProvider) convert(payload openMeteoResponse) (weather.ProviderForecast, error) {
	out := weather.ProviderForecast{ProviderName: p.name}

	if payload.Current == nil || payload.Current.Temperature == nil {
		return out, &weather.ProviderError{Provider: p.name, Reason: "response has no current conditions"}
	}
	ts, err := parseUTC(openMeteoTimeLayout, payload.Current.Time)
	if err != nil {
		return out, &weather.ProviderError{Provider: p.name, Reason: "bad current time", Err: err}
	}
	out.Current = weather.CurrentConditions{
		Time:          ts,
		TemperatureC:  *payload.Current.Temperature,
		Condition:     mapOpenMeteoCondition(payload.Current.WeatherCode),
		ConditionCode: payload.Current.WeatherCode,
	}

	h := payload.Hourly
	if len(h.Temperature) != len(h.Time) || len(h.WeatherCode) != len(h.Time) {
		return out, &weather.ProviderError{Provider: p.name, Reason: "hourly series lengths differ"}
	}
	for i, raw := range h.Time {
		t, err := parseUTC(openMeteoTimeLayout, raw)
		if err != nil {
			return out, &weather.ProviderError{Provider: p.name, Reason: "bad hourly time", Err: err}
		}
		out.Hourly = append(out.Hourly, weather.HourlyForecast{
			Time:         t,
			TemperatureC: h.Temperature[i],
			Condition:    mapOpenMeteoCondition(h.WeatherCode[i]),
		})
	}

	d := payload.Daily
	if len(d.TempMax) != len(d.Time) || len(d.TempMin) != len(d.Time) || len(d.WeatherCode) != len(d.Time) {
		return out, &weather.ProviderError{Provider: p.name, Reason: "daily series lengths differ"}
	}
	for i, raw := range d.Time {
		t, err := parseUTC("2006-01-02", raw)
		if err != nil {
			return out, &weather.ProviderError{Provider: p.name, Reason: "bad daily date", Err: err}
		}
		out.Daily = append(out.Daily, weather.DailyForecast{
			Date:      t,
			HighC:     d.TempMax[i],
			LowC:      d.TempMin[i],
			Condition: mapOpenMeteoCondition(d.WeatherCode[i]),
		})
	}

	return out, nil
}

func mapOpenMeteoCondition(code int) weather.Condition {
	// Mapping based on Open-Meteo WMO weather codes (simplified).
	switch {
	case code == 0:
		return weather.ConditionClear
	case code >= 1 && code <= 3:
		return weather.ConditionCloudy
	case code == 45 || code == 48:
		return weather.ConditionMist
	case (code >= 51 && code <= 67) || (code >= 80 && code <= 82):
		return weather.ConditionRain
	case (code >= 71 && code <= 77) || code == 85 || code == 86:
		return weather.ConditionSnow
	case code >= 95:
		return weather.ConditionStorm
	default:
		return weather.ConditionUnknown
	}
}
