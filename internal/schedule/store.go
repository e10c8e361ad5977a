// Package schedule loads the flight plan and predicts delays caused by an
// apron incident.
package schedule

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/bissquit/apron-guard/internal/domain"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Schedule errors.
var (
	ErrInvalidSchedule = errors.New("invalid flight schedule")
	ErrFlightNotFound  = errors.New("flight not found")
)

type flightSpec struct {
	Callsign      string           `yaml:"callsign" validate:"required"`
	Locations     []string         `yaml:"locations" validate:"required,min=1,dive,required"`
	ScheduledTime time.Time        `yaml:"scheduled_time" validate:"required"`
	Direction     domain.Direction `yaml:"direction" validate:"required,oneof=arrival departure"`
	Registration  string           `yaml:"registration"`
	AircraftType  string           `yaml:"aircraft_type"`
}

type scheduleFile struct {
	Flights []flightSpec `yaml:"flights" validate:"dive"`
}

// Store is the loaded flight plan. It is never mutated after load.
type Store struct {
	flights    []domain.ScheduledFlight
	byCallsign map[string]int
}

// LoadStore decodes and validates a YAML flight schedule.
func LoadStore(r io.Reader) (*Store, error) {
	var file scheduleFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidSchedule, err)
	}
	if err := validator.New().Struct(file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}

	flights := make([]domain.ScheduledFlight, 0, len(file.Flights))
	for _, f := range file.Flights {
		flights = append(flights, domain.ScheduledFlight{
			Callsign:      f.Callsign,
			Locations:     append([]string(nil), f.Locations...),
			ScheduledTime: f.ScheduledTime.UTC(),
			Direction:     f.Direction,
			Registration:  f.Registration,
			AircraftType:  f.AircraftType,
		})
	}
	return NewStore(flights)
}

// LoadStoreFile loads the flight schedule at path.
func LoadStoreFile(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open schedule file: %w", err)
	}
	defer func() { _ = f.Close() }()
	return LoadStore(f)
}

// NewStore builds a store from flights, ordered by scheduled time then callsign.
func NewStore(flights []domain.ScheduledFlight) (*Store, error) {
	s := &Store{
		flights:    make([]domain.ScheduledFlight, len(flights)),
		byCallsign: make(map[string]int, len(flights)),
	}
	for i, f := range flights {
		f.Locations = append([]string(nil), f.Locations...)
		s.flights[i] = f
	}
	sort.SliceStable(s.flights, func(i, j int) bool {
		return lessFlight(s.flights[i].ScheduledTime, s.flights[i].Callsign,
			s.flights[j].ScheduledTime, s.flights[j].Callsign)
	})
	for i, f := range s.flights {
		if _, dup := s.byCallsign[f.Callsign]; dup {
			return nil, fmt.Errorf("%w: duplicate callsign %s", ErrInvalidSchedule, f.Callsign)
		}
		s.byCallsign[f.Callsign] = i
	}
	return s, nil
}

// Len returns the number of scheduled flights.
func (s *Store) Len() int {
	return len(s.flights)
}

// Flights returns a copy of every scheduled flight.
func (s *Store) Flights() []domain.ScheduledFlight {
	out := make([]domain.ScheduledFlight, len(s.flights))
	for i, f := range s.flights {
		out[i] = copyFlight(f)
	}
	return out
}

// ByCallsign returns the flight with the given callsign.
func (s *Store) ByCallsign(callsign string) (domain.ScheduledFlight, error) {
	i, ok := s.byCallsign[callsign]
	if !ok {
		return domain.ScheduledFlight{}, fmt.Errorf("%w: %s", ErrFlightNotFound, callsign)
	}
	return copyFlight(s.flights[i]), nil
}

func copyFlight(f domain.ScheduledFlight) domain.ScheduledFlight {
	f.Locations = append([]string(nil), f.Locations...)
	return f
}

func lessFlight(ti time.Time, ci string, tj time.Time, cj string) bool {
	if !ti.Equal(tj) {
		return ti.Before(tj)
	}
	return ci < cj
}
