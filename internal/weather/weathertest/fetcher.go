// Package weathertest provides fakes for exercising the weather package.
package weathertest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/i474232898/weather-locations/internal/weather"
)

// Fetcher is a scripted weather.Fetcher that counts calls.
type Fetcher struct {
	// Gate, when set, blocks every Fetch until it is closed.
	Gate chan struct{}
	// Now anchors the generated series. Defaults to time.Now.
	Now func() time.Time

	mu    sync.Mutex
	err   error
	temp  float64
	calls atomic.Int32
}

func NewFetcher() *Fetcher {
	return &Fetcher{temp: 20}
}

func (f *Fetcher) Name() string { return "stub" }

// Calls returns how many times Fetch has been entered.
func (f *Fetcher) Calls() int { return int(f.calls.Load()) }

// FailWith makes subsequent fetches return err; nil restores success.
func (f *Fetcher) FailWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// SetTemperature changes the current temperature reported by later fetches.
func (f *Fetcher) SetTemperature(t float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.temp = t
}

func (f *Fetcher) Fetch(ctx context.Context, _ weather.Coordinates) (weather.ProviderForecast, error) {
	f.calls.Add(1)
	if f.Gate != nil {
		<-f.Gate
	}

	f.mu.Lock()
	err, temp := f.err, f.temp
	f.mu.Unlock()
	if err != nil {
		return weather.ProviderForecast{}, err
	}

	now := time.Now
	if f.Now != nil {
		now = f.Now
	}
	return Forecast(now(), temp), nil
}

// Forecast returns a provider forecast that fills both windows at now.
func Forecast(now time.Time, temp float64) weather.ProviderForecast {
	now = now.UTC()
	hour := now.Truncate(time.Hour)
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	f := weather.ProviderForecast{
		ProviderName: "stub",
		Current: weather.CurrentConditions{
			Time:          now,
			TemperatureC:  temp,
			Condition:     weather.ConditionClear,
			ConditionCode: 0,
		},
	}
	for i := 0; i < 24; i++ {
		f.Hourly = append(f.Hourly, weather.HourlyForecast{
			Time:         hour.Add(time.Duration(i) * time.Hour),
			TemperatureC: temp + float64(i%5),
			Condition:    weather.ConditionCloudy,
		})
	}
	for i := 0; i < 8; i++ {
		f.Daily = append(f.Daily, weather.DailyForecast{
			Date:      day.AddDate(0, 0, i),
			HighC:     temp + 5,
			LowC:      temp - 5,
			Condition: weather.ConditionRain,
		})
	}
	return f
}

// Recorder is a weather.Publisher that keeps every published event.
type Recorder struct {
	mu     sync.Mutex
	events []weather.Event
}

func (r *Recorder) Publish(key weather.LocationKey, snap weather.WeatherSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, weather.Event{Key: key, Snapshot: snap})
}

func (r *Recorder) Events() []weather.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]weather.Event(nil), r.events...)
}
