// Package geocode resolves city names through the Google geocoding API.
package geocode

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/kelvins/geocoder"

	"github.com/i474232898/weather-locations/internal/weather"
)

const providerName = "geocoder"

var errNoResult = errors.New("no result")

// The kelvins/geocoder package keeps its key in a package variable.
var keyMu sync.Mutex

// Google implements weather.Geocoder.
type Google struct {
	apiKey string

	forward func(geocoder.Address) (geocoder.Location, error)
	reverse func(geocoder.Location) ([]geocoder.Address, error)
}

var _ weather.Geocoder = (*Google)(nil)

// NewGoogle returns nil when apiKey is empty, which disables geocoding.
func NewGoogle(apiKey string) *Google {
	if apiKey == "" {
		return nil
	}
	return &Google{
		apiKey:  apiKey,
		forward: geocoder.Geocoding,
		reverse: geocoder.GeocodingReverse,
	}
}

// CityName returns the city (or the closest administrative name) at coords.
func (g *Google) CityName(ctx context.Context, coords weather.Coordinates) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var (
		addrs []geocoder.Address
		err   error
	)
	g.withKey(func() {
		addrs, err = g.reverse(geocoder.Location{Latitude: coords.Latitude, Longitude: coords.Longitude})
	})
	if err != nil {
		return "", &weather.NetworkError{Provider: providerName, Err: err}
	}

	for _, a := range addrs {
		if name := cityOf(a); name != "" {
			return name, nil
		}
	}
	return "", &weather.ProviderError{Provider: providerName, Reason: "reverse lookup", Err: errNoResult}
}

// Locate returns the coordinates of city, optionally narrowed by country.
func (g *Google) Locate(ctx context.Context, city, country string) (weather.Coordinates, error) {
	if err := ctx.Err(); err != nil {
		return weather.Coordinates{}, err
	}

	var (
		loc geocoder.Location
		err error
	)
	g.withKey(func() {
		loc, err = g.forward(geocoder.Address{City: city, Country: country})
	})
	if err != nil {
		return weather.Coordinates{}, &weather.NetworkError{Provider: providerName, Err: err}
	}

	coords := weather.Coordinates{Latitude: loc.Latitude, Longitude: loc.Longitude}
	if coords == (weather.Coordinates{}) {
		return coords, &weather.ProviderError{Provider: providerName, Reason: "lookup of " + city, Err: errNoResult}
	}
	return coords, coords.Validate()
}

func (g *Google) withKey(fn func()) {
	keyMu.Lock()
	defer keyMu.Unlock()
	geocoder.ApiKey = g.apiKey
	fn()
}

func cityOf(a geocoder.Address) string {
	for _, s := range []string{a.City, a.County, a.State} {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}
