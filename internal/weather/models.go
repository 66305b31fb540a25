package weather

import (
	"fmt"
	"math"
	"time"
)

// Condition represents a normalized high-level weather condition.
type Condition string

const (
	ConditionUnknown Condition = "unknown"
	ConditionClear   Condition = "clear"
	ConditionCloudy  Condition = "cloudy"
	ConditionRain    Condition = "rain"
	ConditionSnow    Condition = "snow"
	ConditionStorm   Condition = "storm"
	ConditionMist    Condition = "mist"
)

// Window sizes every stored snapshot carries.
const (
	HourlyWindow = 12
	DailyWindow  = 7
)

// Coordinates is a WGS84 point in degrees.
type Coordinates struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

// Validate rejects coordinates outside the valid degree ranges.
func (c Coordinates) Validate() error {
	if math.IsNaN(c.Latitude) || math.IsInf(c.Latitude, 0) || math.Abs(c.Latitude) > 90 {
		return &ValidationError{Field: "latitude", Reason: fmt.Sprintf("%v is outside [-90, 90]", c.Latitude)}
	}
	if math.IsNaN(c.Longitude) || math.IsInf(c.Longitude, 0) || math.Abs(c.Longitude) > 180 {
		return &ValidationError{Field: "longitude", Reason: fmt.Sprintf("%v is outside [-180, 180]", c.Longitude)}
	}
	return nil
}

// LocationKey identifies a cache entry. Two coordinates within the same
// rounding cell share a key.
type LocationKey string

// KeyFor derives the cache key from coordinates rounded to two decimals.
func KeyFor(c Coordinates) LocationKey {
	return LocationKey(fmt.Sprintf("%.2f,%.2f", round2(c.Latitude), round2(c.Longitude)))
}

func round2(v float64) float64 {
	r := math.Round(v*100) / 100
	if r == 0 {
		// avoid "-0.00"
		return 0
	}
	return r
}

// LocationRecord is a saved place.
type LocationRecord struct {
	ID            string      `json:"id" storm:"id"`
	Coordinates   Coordinates `json:"coordinates"`
	City          string      `json:"city"`
	IsDefault     bool        `json:"isDefault"`
	IsMainDisplay bool        `json:"isMainDisplay"`
	CreatedAt     time.Time   `json:"createdAt"`
	Seq           int64       `json:"-"`
}

// Key returns the cache key for the record's coordinates.
func (r LocationRecord) Key() LocationKey {
	return KeyFor(r.Coordinates)
}

// CurrentConditions is the observation part of a snapshot.
type CurrentConditions struct {
	Time          time.Time `json:"time"`
	TemperatureC  float64   `json:"temperatureC"`
	Condition     Condition `json:"condition"`
	ConditionCode int       `json:"conditionCode"`
}

// HourlyForecast is one entry of the hourly window.
type HourlyForecast struct {
	Time         time.Time `json:"time"`
	TemperatureC float64   `json:"temperatureC"`
	Condition    Condition `json:"condition"`
}

// DailyForecast is one entry of the daily window.
type DailyForecast struct {
	Date      time.Time `json:"date"` // midnight UTC
	HighC     float64   `json:"highC"`
	LowC      float64   `json:"lowC"`
	Condition Condition `json:"condition"`
}

// WeatherSnapshot is the complete weather view for one location key.
// Snapshots are replaced as a unit and never modified after BuildSnapshot.
type WeatherSnapshot struct {
	LocationKey LocationKey       `json:"locationKey"`
	Coordinates Coordinates       `json:"coordinates"`
	Current     CurrentConditions `json:"current"`
	Hourly      []HourlyForecast  `json:"hourly"`
	Daily       []DailyForecast   `json:"daily"`
	FetchedAt   time.Time         `json:"fetchedAt"`
	Provider    string            `json:"provider"`
}

// Clone returns a deep copy so callers can't reach the cached slices.
func (s WeatherSnapshot) Clone() WeatherSnapshot {
	out := s
	out.Hourly = append([]HourlyForecast(nil), s.Hourly...)
	out.Daily = append([]DailyForecast(nil), s.Daily...)
	return out
}

// Age reports how old the snapshot is at now.
func (s WeatherSnapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.FetchedAt)
}
