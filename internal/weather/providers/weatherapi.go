package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-locations/internal/common"
	"github.com/i474232898/weather-locations/internal/weather"
)

// WeatherAPIProvider implements weather.Fetcher for WeatherAPI.com.
type WeatherAPIProvider struct {
	name    string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewWeatherAPIProvider(cfg HTTPClientConfig, apiKey string) *WeatherAPIProvider {
	return &WeatherAPIProvider{
		name:    "weatherapi",
		apiKey:  apiKey,
		baseURL: "https://api.weatherapi.com/v1/forecast.json",
		httpCfg: cfg,
		circuit: newCircuitBreaker("weatherapi", cfg),
	}
}

// WithBaseURL points the provider at another endpoint.
func (p *WeatherAPIProvider) WithBaseURL(u string) *WeatherAPIProvider {
	p.baseURL = u
	return p
}

func (p *WeatherAPIProvider) Name() string {
	return p.name
}

type weatherAPICondition struct {
	Text string `json:"text"`
	Code int    `json:"code"`
}

type weatherAPIResponse struct {
	Current *struct {
		LastUpdatedEpoch int64               `json:"last_updated_epoch"`
		TempC            float64             `json:"temp_c"`
		Condition        weatherAPICondition `json:"condition"`
	} `json:"current"`
	Forecast struct {
		ForecastDay []struct {
			DateEpoch int64 `json:"date_epoch"`
			Day       struct {
				MaxTempC  float64             `json:"maxtemp_c"`
				MinTempC  float64             `json:"mintemp_c"`
				Condition weatherAPICondition `json:"condition"`
			} `json:"day"`
			Hour []struct {
				TimeEpoch int64               `json:"time_epoch"`
				TempC     float64             `json:"temp_c"`
				Condition weatherAPICondition `json:"condition"`
			} `json:"hour"`
		} `json:"forecastday"`
	} `json:"forecast"`
}

func (p *WeatherAPIProvider) Fetch(ctx context.Context, coords weather.Coordinates) (weather.ProviderForecast, error) {
	if p.apiKey == "" {
		return weather.ProviderForecast{}, &weather.ProviderError{Provider: p.name, Reason: "weatherapi api key is not configured"}
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("key", p.apiKey)
		// WeatherAPI uses "q" for location; it accepts "lat,lon".
		values.Set("q", fmt.Sprintf("%.4f,%.4f", coords.Latitude, coords.Longitude))
		values.Set("days", strconv.Itoa(weather.DailyWindow+1))
		values.Set("aqi", "no")
		values.Set("alerts", "no")

		return http.NewRequest(http.MethodGet, fmt.Sprintf("%s?%s", p.baseURL, values.Encode()), nil)
	}

	resp, err := doRequest(ctx, p.name, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return weather.ProviderForecast{}, err
	}

	var payload weatherAPIResponse
	if err := decodeJSON(p.name, resp, &payload); err != nil {
		return weather.ProviderForecast{}, err
	}
	if payload.Current == nil {
		return weather.ProviderForecast{}, &weather.ProviderError{Provider: p.name, Reason: "response has no current conditions"}
	}

	out := weather.ProviderForecast{
		ProviderName: p.name,
		Current: weather.CurrentConditions{
			Time:          time.Unix(payload.Current.LastUpdatedEpoch, 0).UTC(),
			TemperatureC:  payload.Current.TempC,
			Condition:     mapWeatherAPICondition(payload.Current.Condition.Text),
			ConditionCode: payload.Current.Condition.Code,
		},
	}
	for _, day := range payload.Forecast.ForecastDay {
		out.Daily = append(out.Daily, weather.DailyForecast{
			Date:      time.Unix(day.DateEpoch, 0).UTC(),
			HighC:     day.Day.MaxTempC,
			LowC:      day.Day.MinTempC,
			Condition: mapWeatherAPICondition(day.Day.Condition.Text),
		})
		for _, h := range day.Hour {
			out.Hourly = append(out.Hourly, weather.HourlyForecast{
				Time:         time.Unix(h.TimeEpoch, 0).UTC(),
				TemperatureC: h.TempC,
				Condition:    mapWeatherAPICondition(h.Condition.Text),
			})
		}
	}
	return out, nil
}

func mapWeatherAPICondition(text string) weather.Condition {
	switch {
	case text == "":
		return weather.ConditionUnknown
	case common.HasAny(text, "thunder", "storm"):
		return weather.ConditionStorm
	case common.HasAny(text, "snow", "sleet", "blizzard", "ice pellets"):
		return weather.ConditionSnow
	case common.HasAny(text, "rain", "shower", "drizzle"):
		return weather.ConditionRain
	case common.HasAny(text, "mist", "fog"):
		return weather.ConditionMist
	case common.HasAny(text, "cloud", "overcast"):
		return weather.ConditionCloudy
	case common.HasAny(text, "sunny", "clear"):
		return weather.ConditionClear
	default:
		return weather.ConditionUnknown
	}
}
