package geocode

import (
	"context"
	"errors"
	"testing"

	"github.com/kelvins/geocoder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-locations/internal/weather"
)

func stubGoogle(forward func(geocoder.Address) (geocoder.Location, error), reverse func(geocoder.Location) ([]geocoder.Address, error)) *Google {
	return &Google{apiKey: "test", forward: forward, reverse: reverse}
}

func TestNewGoogle_EmptyKeyDisables(t *testing.T) {
	assert.Nil(t, NewGoogle(""))
	assert.NotNil(t, NewGoogle("key"))
}

func TestCityName(t *testing.T) {
	g := stubGoogle(nil, func(loc geocoder.Location) ([]geocoder.Address, error) {
		assert.Equal(t, 37.5, loc.Latitude)
		assert.Equal(t, "test", geocoder.ApiKey)
		return []geocoder.Address{{Country: "South Korea"}, {County: " Jongno-gu "}}, nil
	})

	name, err := g.CityName(context.Background(), weather.Coordinates{Latitude: 37.5, Longitude: 127})
	require.NoError(t, err)
	assert.Equal(t, "Jongno-gu", name)
}

func TestCityName_Errors(t *testing.T) {
	g := stubGoogle(nil, func(geocoder.Location) ([]geocoder.Address, error) {
		return nil, errors.New("dial tcp: timeout")
	})
	_, err := g.CityName(context.Background(), weather.Coordinates{})
	assert.True(t, weather.IsNetwork(err))

	g = stubGoogle(nil, func(geocoder.Location) ([]geocoder.Address, error) {
		return []geocoder.Address{{Country: "Nowhere"}}, nil
	})
	_, err = g.CityName(context.Background(), weather.Coordinates{})
	assert.True(t, weather.IsProvider(err))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.CityName(ctx, weather.Coordinates{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLocate(t *testing.T) {
	g := stubGoogle(func(a geocoder.Address) (geocoder.Location, error) {
		assert.Equal(t, "Paris", a.City)
		assert.Equal(t, "FR", a.Country)
		return geocoder.Location{Latitude: 48.8566, Longitude: 2.3522}, nil
	}, nil)

	coords, err := g.Locate(context.Background(), "Paris", "FR")
	require.NoError(t, err)
	assert.Equal(t, weather.Coordinates{Latitude: 48.8566, Longitude: 2.3522}, coords)

	g = stubGoogle(func(geocoder.Address) (geocoder.Location, error) {
		return geocoder.Location{}, nil
	}, nil)
	_, err = g.Locate(context.Background(), "Atlantis", "")
	assert.True(t, weather.IsProvider(err))
}
