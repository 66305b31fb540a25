package store

import (
	"sync"
	"time"

	"github.com/asdine/storm"
	"github.com/asdine/storm/codec/msgpack"
	"github.com/pkg/errors"

	"github.com/i474232898/weather-locations/internal/weather"
)

var _ weather.LocationStore = (*StormStore)(nil)

// StormStore persists location records in a bolt file through storm.
// Flag changes run inside one bolt transaction, serialized by mu.
type StormStore struct {
	mu  sync.Mutex
	db  *storm.DB
	seq int64
	now func() time.Time
}

// OpenStormStore opens (or creates) the database at path.
func OpenStormStore(path string) (*StormStore, error) {
	db, err := storm.Open(path, storm.Codec(msgpack.Codec))
	if err != nil {
		return nil, errors.Wrapf(err, "can't open location database %s", path)
	}
	if err := db.Init(&weather.LocationRecord{}); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "can't init location bucket")
	}

	s := &StormStore{db: db, now: time.Now}

	var recs []weather.LocationRecord
	if err := db.All(&recs); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "can't load location records")
	}
	for _, r := range recs {
		if r.Seq > s.seq {
			s.seq = r.Seq
		}
	}
	return s, nil
}

func (s *StormStore) Close() error {
	return s.db.Close()
}

func (s *StormStore) List() ([]weather.LocationRecord, error) {
	var recs []weather.LocationRecord
	if err := s.db.All(&recs); err != nil {
		return nil, errors.Wrap(err, "can't list location records")
	}
	sortRecords(recs)
	return recs, nil
}

func (s *StormStore) Get(id string) (weather.LocationRecord, error) {
	var rec weather.LocationRecord
	if err := s.db.One("ID", id, &rec); err != nil {
		return weather.LocationRecord{}, notFoundOr(err, "can't load location "+id)
	}
	return rec, nil
}

func (s *StormStore) Default() (weather.LocationRecord, error) {
	return s.findFlag(func(r weather.LocationRecord) bool { return r.IsDefault })
}

func (s *StormStore) MainDisplay() (weather.LocationRecord, error) {
	return s.findFlag(func(r weather.LocationRecord) bool { return r.IsMainDisplay })
}

func (s *StormStore) Add(rec weather.LocationRecord) (weather.LocationRecord, error) {
	if err := rec.Coordinates.Validate(); err != nil {
		return weather.LocationRecord{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin(true)
	if err != nil {
		return weather.LocationRecord{}, errors.Wrap(err, "can't begin transaction")
	}
	defer tx.Rollback()

	var all []weather.LocationRecord
	if err := tx.All(&all); err != nil {
		return weather.LocationRecord{}, errors.Wrap(err, "can't read location records")
	}
	if rec.ID != "" {
		for _, r := range all {
			if r.ID == rec.ID {
				return weather.LocationRecord{}, errDuplicateID(rec.ID)
			}
		}
	}

	rec = prepareNew(rec, s.seq+1, s.now())
	for _, r := range all {
		changed := false
		if rec.IsDefault && r.IsDefault {
			r.IsDefault, changed = false, true
		}
		if rec.IsMainDisplay && r.IsMainDisplay {
			r.IsMainDisplay, changed = false, true
		}
		if changed {
			if err := tx.Save(&r); err != nil {
				return weather.LocationRecord{}, errors.Wrapf(err, "can't clear flags on %s", r.ID)
			}
		}
	}
	if err := tx.Save(&rec); err != nil {
		return weather.LocationRecord{}, errors.Wrap(err, "can't save location record")
	}
	if err := tx.Commit(); err != nil {
		return weather.LocationRecord{}, errors.Wrap(err, "can't commit location record")
	}
	s.seq = rec.Seq
	return rec, nil
}

// Remove deletes a record. Removing an unknown id is a no-op.
func (s *StormStore) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rec weather.LocationRecord
	if err := s.db.One("ID", id, &rec); err != nil {
		if err == storm.ErrNotFound {
			return nil
		}
		return errors.Wrapf(err, "can't load location %s", id)
	}
	if err := s.db.DeleteStruct(&rec); err != nil {
		return errors.Wrapf(err, "can't delete location %s", id)
	}
	return nil
}

func (s *StormStore) SetDefault(id string) error {
	return s.setExclusive(id, func(r *weather.LocationRecord, on bool) { r.IsDefault = on })
}

func (s *StormStore) SetMainDisplay(id string) error {
	return s.setExclusive(id, func(r *weather.LocationRecord, on bool) { r.IsMainDisplay = on })
}

func (s *StormStore) UpdateCity(id, city string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rec weather.LocationRecord
	if err := s.db.One("ID", id, &rec); err != nil {
		return notFoundOr(err, "can't load location "+id)
	}
	rec.City = city
	return errors.Wrapf(s.db.Save(&rec), "can't update city of %s", id)
}

func (s *StormStore) setExclusive(id string, set func(*weather.LocationRecord, bool)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin(true)
	if err != nil {
		return errors.Wrap(err, "can't begin transaction")
	}
	defer tx.Rollback()

	var all []weather.LocationRecord
	if err := tx.All(&all); err != nil {
		return errors.Wrap(err, "can't read location records")
	}

	found := false
	for _, r := range all {
		if r.ID == id {
			found = true
			break
		}
	}
	if !found {
		return ErrNotFound
	}

	for i := range all {
		set(&all[i], all[i].ID == id)
		if err := tx.Save(&all[i]); err != nil {
			return errors.Wrapf(err, "can't update flags on %s", all[i].ID)
		}
	}
	return errors.Wrap(tx.Commit(), "can't commit flag update")
}

func (s *StormStore) findFlag(match func(weather.LocationRecord) bool) (weather.LocationRecord, error) {
	recs, err := s.List()
	if err != nil {
		return weather.LocationRecord{}, err
	}
	for _, r := range recs {
		if match(r) {
			return r, nil
		}
	}
	return weather.LocationRecord{}, ErrNotFound
}

func notFoundOr(err error, msg string) error {
	if err == storm.ErrNotFound {
		return ErrNotFound
	}
	return errors.Wrap(err, msg)
}
