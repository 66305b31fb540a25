package weather

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// nearbyRadiusMeters is how close a device location must be to a saved
// record to borrow its city name.
const nearbyRadiusMeters = 1000

// Geocoder resolves city names and coordinates.
type Geocoder interface {
	CityName(ctx context.Context, coords Coordinates) (string, error)
	Locate(ctx context.Context, city, country string) (Coordinates, error)
}

// View is what the display layer renders for one location.
type View struct {
	Record   *LocationRecord  `json:"record,omitempty"`
	Snapshot *WeatherSnapshot `json:"snapshot,omitempty"`
	// Nearby is the saved record closest to an ephemeral device location.
	Nearby *LocationRecord `json:"nearby,omitempty"`
	Err    error           `json:"-"`
}

// CoordinatorConfig holds tunables for the Coordinator.
type CoordinatorConfig struct {
	// MaxAge is used by every entry point except Refresh. Zero means DefaultMaxAge.
	MaxAge time.Duration
	// Placeholder is where the first-launch default record points.
	Placeholder Coordinates
	// Geocoder is optional.
	Geocoder Geocoder
}

// Coordinator wires the record store and weather cache to the app triggers.
// It never retries; errors reach the caller unchanged apart from wrapping.
type Coordinator struct {
	store    LocationStore
	cache    *Cache
	geocoder Geocoder

	maxAge      time.Duration
	placeholder Coordinates

	launchMu sync.Mutex
}

// NewCoordinator creates a new Coordinator.
func NewCoordinator(store LocationStore, cache *Cache, cfg CoordinatorConfig) *Coordinator {
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Coordinator{
		store:       store,
		cache:       cache,
		geocoder:    cfg.Geocoder,
		maxAge:      maxAge,
		placeholder: cfg.Placeholder,
	}
}

// OnLaunch loads the default record, creating the placeholder on first
// launch, makes it the main display and returns its weather.
func (c *Coordinator) OnLaunch(ctx context.Context) (View, error) {
	rec, err := c.ensureDefault()
	if err != nil {
		return View{}, err
	}

	if !rec.IsMainDisplay {
		if err := c.store.SetMainDisplay(rec.ID); err != nil {
			return View{}, fmt.Errorf("mark %s as main display: %w", rec.ID, err)
		}
		rec.IsMainDisplay = true
	}
	c.resolveCity(ctx, &rec)

	return c.viewFor(ctx, rec, c.maxAge)
}

// OnLocationSelected makes the record the main display and returns its weather.
func (c *Coordinator) OnLocationSelected(ctx context.Context, id string) (View, error) {
	if err := c.store.SetMainDisplay(id); err != nil {
		return View{}, fmt.Errorf("select location %s: %w", id, err)
	}
	rec, err := c.store.Get(id)
	if err != nil {
		return View{}, fmt.Errorf("select location %s: %w", id, err)
	}
	c.resolveCity(ctx, &rec)
	return c.viewFor(ctx, rec, c.maxAge)
}

// OnDeviceLocationUpdated returns weather for an unsaved location.
func (c *Coordinator) OnDeviceLocationUpdated(ctx context.Context, coords Coordinates) (View, error) {
	return c.ephemeral(ctx, coords, c.maxAge)
}

// Refresh is the pull-to-refresh path: it always fetches.
func (c *Coordinator) Refresh(ctx context.Context, coords Coordinates) (View, error) {
	return c.ephemeral(ctx, coords, 0)
}

// RefreshMain refetches the main-display record.
func (c *Coordinator) RefreshMain(ctx context.Context) (View, error) {
	rec, err := c.store.MainDisplay()
	if err != nil {
		return View{}, fmt.Errorf("refresh main display: %w", err)
	}
	return c.viewFor(ctx, rec, 0)
}

// AddLocation validates and stores a record, filling an empty city name
// from the geocoder when one is configured.
func (c *Coordinator) AddLocation(ctx context.Context, rec LocationRecord) (LocationRecord, error) {
	if err := rec.Coordinates.Validate(); err != nil {
		return LocationRecord{}, err
	}
	if rec.City == "" && c.geocoder != nil {
		city, err := c.geocoder.CityName(ctx, rec.Coordinates)
		if err != nil {
			log.Printf("INFO: city lookup failed for %s: %v", rec.Key(), err)
		} else {
			rec.City = city
		}
	}
	return c.store.Add(rec)
}

// AddCity looks the city up through the geocoder and stores it, optionally
// as the new default.
func (c *Coordinator) AddCity(ctx context.Context, city, country string, makeDefault bool) (LocationRecord, error) {
	if city == "" {
		return LocationRecord{}, &ValidationError{Field: "city", Reason: "must not be empty"}
	}
	if c.geocoder == nil {
		return LocationRecord{}, &ValidationError{Field: "city", Reason: "geocoding is not configured; add by coordinates"}
	}
	coords, err := c.geocoder.Locate(ctx, city, country)
	if err != nil {
		return LocationRecord{}, fmt.Errorf("locate %q: %w", city, err)
	}
	return c.store.Add(LocationRecord{Coordinates: coords, City: city, IsDefault: makeDefault})
}

// SavedWeather returns every saved record with its weather. Failures are
// attached to the affected View instead of failing the whole list.
func (c *Coordinator) SavedWeather(ctx context.Context) ([]View, error) {
	records, err := c.store.List()
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}

	views := make([]View, len(records))
	var wg sync.WaitGroup
	for i, rec := range records {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.viewFor(ctx, rec, c.maxAge)
			v.Err = err
			views[i] = v
		}()
	}
	wg.Wait()

	return views, nil
}

// RefreshSaved refreshes every saved record older than maxAge and returns
// how many refreshes failed. The returned error is the first network error,
// so callers can tell whether retrying makes sense, or else the first error.
func (c *Coordinator) RefreshSaved(ctx context.Context, maxAge time.Duration) (int, error) {
	records, err := c.store.List()
	if err != nil {
		return 0, fmt.Errorf("list locations: %w", err)
	}

	var (
		failed           int
		firstErr, netErr error
	)
	for _, rec := range records {
		if _, err := c.cache.Get(ctx, rec.Coordinates, maxAge); err != nil {
			failed++
			wrapped := fmt.Errorf("refresh %s: %w", rec.Key(), err)
			if firstErr == nil {
				firstErr = wrapped
			}
			if netErr == nil && IsNetwork(err) {
				netErr = wrapped
			}
		}
	}
	if netErr != nil {
		return failed, netErr
	}
	return failed, firstErr
}

// Peek returns whatever the cache holds for coords, however old.
func (c *Coordinator) Peek(coords Coordinates) (WeatherSnapshot, bool) {
	return c.cache.Peek(coords)
}

// resolveCity fills an empty city name from the geocoder and persists it.
// Failures are logged; the record keeps its empty name until the next try.
func (c *Coordinator) resolveCity(ctx context.Context, rec *LocationRecord) {
	if rec.City != "" || c.geocoder == nil {
		return
	}
	city, err := c.geocoder.CityName(ctx, rec.Coordinates)
	if err != nil {
		log.Printf("INFO: city lookup failed for %s: %v", rec.Key(), err)
		return
	}
	if err := c.store.UpdateCity(rec.ID, city); err != nil {
		log.Printf("ERROR: can't save city for %s: %v", rec.ID, err)
		return
	}
	rec.City = city
}

func (c *Coordinator) viewFor(ctx context.Context, rec LocationRecord, maxAge time.Duration) (View, error) {
	view := View{Record: &rec}
	snap, err := c.cache.Get(ctx, rec.Coordinates, maxAge)
	if err != nil {
		return view, fmt.Errorf("weather for %s: %w", rec.Key(), err)
	}
	view.Snapshot = &snap
	return view, nil
}

func (c *Coordinator) ephemeral(ctx context.Context, coords Coordinates, maxAge time.Duration) (View, error) {
	if err := coords.Validate(); err != nil {
		return View{}, err
	}

	var view View
	if records, err := c.store.List(); err == nil {
		if near, ok := NearestRecord(records, coords, nearbyRadiusMeters); ok {
			view.Nearby = &near
		}
	} else {
		log.Printf("INFO: nearby lookup skipped: %v", err)
	}

	snap, err := c.cache.Get(ctx, coords, maxAge)
	if err != nil {
		return view, fmt.Errorf("weather for %s: %w", KeyFor(coords), err)
	}
	view.Snapshot = &snap
	return view, nil
}

// ensureDefault returns the default record. On first launch it creates the
// placeholder default; if records exist but none is default the oldest is promoted.
func (c *Coordinator) ensureDefault() (LocationRecord, error) {
	c.launchMu.Lock()
	defer c.launchMu.Unlock()

	rec, err := c.store.Default()
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, ErrLocationNotFound) {
		return LocationRecord{}, fmt.Errorf("load default location: %w", err)
	}

	records, err := c.store.List()
	if err != nil {
		return LocationRecord{}, fmt.Errorf("list locations: %w", err)
	}
	if len(records) > 0 {
		first := records[0]
		if err := c.store.SetDefault(first.ID); err != nil {
			return LocationRecord{}, fmt.Errorf("promote %s to default: %w", first.ID, err)
		}
		first.IsDefault = true
		log.Printf("INFO: no default location; promoted %s", first.ID)
		return first, nil
	}

	log.Printf("INFO: first launch; creating placeholder default location at %s", KeyFor(c.placeholder))
	return c.store.Add(LocationRecord{
		Coordinates:   c.placeholder,
		IsDefault:     true,
		IsMainDisplay: true,
	})
}
