package store

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/weather-locations/internal/weather"
)

var (
	// ErrNotFound is returned when no record has the requested id.
	ErrNotFound = weather.ErrLocationNotFound
)

var _ weather.LocationStore = (*MemoryStore)(nil)

// MemoryStore is a concurrency-safe in-memory implementation of the location store.
type MemoryStore struct {
	mu sync.RWMutex

	// key: record id
	records map[string]weather.LocationRecord
	seq     int64
	now     func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]weather.LocationRecord),
		now:     time.Now,
	}
}

// List returns all records in insertion order.
func (s *MemoryStore) List() ([]weather.LocationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]weather.LocationRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	sortRecords(out)
	return out, nil
}

// Get returns the record with id or ErrNotFound.
func (s *MemoryStore) Get(id string) (weather.LocationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[id]
	if !ok {
		return weather.LocationRecord{}, ErrNotFound
	}
	return r, nil
}

// Default returns the default record or ErrNotFound.
func (s *MemoryStore) Default() (weather.LocationRecord, error) {
	return s.findFlag(func(r weather.LocationRecord) bool { return r.IsDefault })
}

// MainDisplay returns the main display record or ErrNotFound.
func (s *MemoryStore) MainDisplay() (weather.LocationRecord, error) {
	return s.findFlag(func(r weather.LocationRecord) bool { return r.IsMainDisplay })
}

// Add stores a new record. If it carries the default or main display flag,
// the flag is cleared on every other record in the same critical section.
func (s *MemoryStore) Add(rec weather.LocationRecord) (weather.LocationRecord, error) {
	if err := rec.Coordinates.Validate(); err != nil {
		return weather.LocationRecord{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.ID]; exists && rec.ID != "" {
		return weather.LocationRecord{}, errDuplicateID(rec.ID)
	}
	s.seq++
	rec = prepareNew(rec, s.seq, s.now())

	for id, r := range s.records {
		changed := false
		if rec.IsDefault && r.IsDefault {
			r.IsDefault, changed = false, true
		}
		if rec.IsMainDisplay && r.IsMainDisplay {
			r.IsMainDisplay, changed = false, true
		}
		if changed {
			s.records[id] = r
		}
	}
	s.records[rec.ID] = rec
	return rec, nil
}

// Remove deletes a record. Removing an unknown id is a no-op.
func (s *MemoryStore) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, id)
	return nil
}

func (s *MemoryStore) SetDefault(id string) error {
	return s.setExclusive(id, func(r *weather.LocationRecord, on bool) { r.IsDefault = on })
}

func (s *MemoryStore) SetMainDisplay(id string) error {
	return s.setExclusive(id, func(r *weather.LocationRecord, on bool) { r.IsMainDisplay = on })
}

func (s *MemoryStore) UpdateCity(id, city string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	r.City = city
	s.records[id] = r
	return nil
}

// setExclusive turns the flag on for id and off for every other record.
func (s *MemoryStore) setExclusive(id string, set func(*weather.LocationRecord, bool)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return ErrNotFound
	}
	for rid, r := range s.records {
		set(&r, rid == id)
		s.records[rid] = r
	}
	return nil
}

func (s *MemoryStore) findFlag(match func(weather.LocationRecord) bool) (weather.LocationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.records {
		if match(r) {
			return r, nil
		}
	}
	return weather.LocationRecord{}, ErrNotFound
}

func prepareNew(rec weather.LocationRecord, seq int64, now time.Time) weather.LocationRecord {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now.UTC()
	}
	rec.Seq = seq
	return rec
}

func errDuplicateID(id string) error {
	return &weather.ValidationError{Field: "id", Reason: id + " already exists"}
}

func sortRecords(recs []weather.LocationRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Seq != recs[j].Seq {
			return recs[i].Seq < recs[j].Seq
		}
		return recs[i].CreatedAt.Before(recs[j].CreatedAt)
	})
}
