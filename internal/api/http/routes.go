package httpapi

import (
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/weather-locations/internal/store"
	"github.com/i474232898/weather-locations/internal/weather"
)

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, coord *weather.Coordinator, locations weather.LocationStore, notifier *weather.Notifier) {
	v1 := app.Group("/api/v1")

	v1.Post("/launch", func(c *fiber.Ctx) error {
		view, err := coord.OnLaunch(c.UserContext())
		return respondWeather(c, coord, view, err)
	})

	v1.Get("/locations", func(c *fiber.Ctx) error {
		recs, err := locations.List()
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to list locations")
		}
		return c.JSON(fiber.Map{"locations": recs})
	})

	v1.Post("/locations", func(c *fiber.Ctx) error {
		var req addLocationRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		var (
			rec weather.LocationRecord
			err error
		)
		switch {
		case req.Lat != nil && req.Lon != nil:
			rec, err = coord.AddLocation(c.UserContext(), weather.LocationRecord{
				Coordinates: weather.Coordinates{Latitude: *req.Lat, Longitude: *req.Lon},
				City:        req.City,
				IsDefault:   req.Default,
			})
		case req.City != "":
			rec, err = coord.AddCity(c.UserContext(), req.City, req.Country, req.Default)
		default:
			return fiber.NewError(fiber.StatusBadRequest, "either lat and lon or city is required")
		}
		if err != nil {
			return errorFor(err)
		}
		return c.Status(fiber.StatusCreated).JSON(rec)
	})

	v1.Delete("/locations/:id", func(c *fiber.Ctx) error {
		if err := locations.Remove(c.Params("id")); err != nil {
			return errorFor(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	v1.Put("/locations/:id/default", func(c *fiber.Ctx) error {
		if err := locations.SetDefault(c.Params("id")); err != nil {
			return errorFor(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	v1.Put("/locations/:id/main", func(c *fiber.Ctx) error {
		view, err := coord.OnLocationSelected(c.UserContext(), c.Params("id"))
		return respondWeather(c, coord, view, err)
	})

	v1.Get("/weather/current", func(c *fiber.Ctx) error {
		q, err := parseLocationQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		coords := q.toCoordinates()
		var view weather.View
		if c.QueryBool("refresh") {
			view, err = coord.Refresh(c.UserContext(), coords)
		} else {
			view, err = coord.OnDeviceLocationUpdated(c.UserContext(), coords)
		}
		if err != nil && view.Snapshot == nil {
			if stale, ok := coord.Peek(coords); ok {
				view.Snapshot = &stale
			}
		}
		return respondWeather(c, coord, view, err)
	})

	v1.Post("/weather/main/refresh", func(c *fiber.Ctx) error {
		view, err := coord.RefreshMain(c.UserContext())
		return respondWeather(c, coord, view, err)
	})

	v1.Get("/weather/saved", func(c *fiber.Ctx) error {
		views, err := coord.SavedWeather(c.UserContext())
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to load saved locations")
		}
		out := make([]weatherResponse, 0, len(views))
		for _, v := range views {
			out = append(out, toResponse(coord, v, v.Err))
		}
		return c.JSON(fiber.Map{"locations": out})
	})

	v1.Get("/events", streamEvents(notifier))
}

// weatherResponse is what every weather endpoint returns. Stale is set when
// the refresh failed and an older snapshot is served instead.
type weatherResponse struct {
	Record   *weather.LocationRecord  `json:"record,omitempty"`
	Nearby   *weather.LocationRecord  `json:"nearby,omitempty"`
	Snapshot *weather.WeatherSnapshot `json:"snapshot,omitempty"`
	Stale    bool                     `json:"stale"`
	Error    string                   `json:"error,omitempty"`
}

func toResponse(coord *weather.Coordinator, view weather.View, err error) weatherResponse {
	resp := weatherResponse{Record: view.Record, Nearby: view.Nearby, Snapshot: view.Snapshot}
	if err == nil {
		return resp
	}
	resp.Error = err.Error()
	if resp.Snapshot == nil && view.Record != nil {
		if stale, ok := coord.Peek(view.Record.Coordinates); ok {
			resp.Snapshot = &stale
		}
	}
	resp.Stale = resp.Snapshot != nil
	return resp
}

// respondWeather answers 200 when there is something to show, even if it is
// stale; otherwise the error is mapped to a status code.
func respondWeather(c *fiber.Ctx, coord *weather.Coordinator, view weather.View, err error) error {
	resp := toResponse(coord, view, err)
	if err != nil && resp.Snapshot == nil {
		return errorFor(err)
	}
	return c.JSON(resp)
}

func errorFor(err error) error {
	switch {
	case weather.IsValidation(err):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case weather.IsNetwork(err):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	case weather.IsProvider(err):
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}

// addLocationRequest is the body of POST /locations.
type addLocationRequest struct {
	Lat     *float64 `json:"lat" validate:"omitempty,min=-90,max=90"`
	Lon     *float64 `json:"lon" validate:"omitempty,min=-180,max=180"`
	City    string   `json:"city" validate:"max=120"`
	Country string   `json:"country" validate:"max=80"`
	Default bool     `json:"default"`
}

// locationQuery holds query parameters for identifying a location.
type locationQuery struct {
	Lat *float64 `validate:"required,min=-90,max=90"`
	Lon *float64 `validate:"required,min=-180,max=180"`
}

func (l locationQuery) toCoordinates() weather.Coordinates {
	return weather.Coordinates{Latitude: *l.Lat, Longitude: *l.Lon}
}

func parseLocationQuery(c *fiber.Ctx) (locationQuery, error) {
	var q locationQuery

	if v := c.Query("lat"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return q, errors.New("lat must be a number")
		}
		q.Lat = &f
	}
	if v := c.Query("lon"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return q, errors.New("lon must be a number")
		}
		q.Lon = &f
	}

	if err := validate.Struct(q); err != nil {
		return q, err
	}

	return q, nil
}
