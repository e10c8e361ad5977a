// Package registry looks up aircraft details by registration.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bissquit/apron-guard/internal/domain"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Registry errors.
var (
	ErrAircraftNotFound = errors.New("aircraft not found")
	ErrInvalidRegistry  = errors.New("invalid aircraft registry")
)

// Registry resolves an aircraft registration to its details.
type Registry interface {
	Lookup(ctx context.Context, registration string) (domain.AircraftInfo, error)
}

// NormalizeRegistration uppercases and trims a registration mark.
func NormalizeRegistration(reg string) string {
	return strings.ToUpper(strings.TrimSpace(reg))
}

// StaticRegistry serves aircraft from a file loaded at startup.
type StaticRegistry struct {
	aircraft map[string]domain.AircraftInfo
}

type staticFile struct {
	Aircraft []domain.AircraftInfo `yaml:"aircraft" validate:"dive"`
}

// LoadStatic decodes and validates a YAML aircraft list.
func LoadStatic(r io.Reader) (*StaticRegistry, error) {
	var file staticFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidRegistry, err)
	}
	if err := validator.New().Struct(file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRegistry, err)
	}
	return NewStatic(file.Aircraft), nil
}

// LoadStaticFile loads the aircraft list at path.
func LoadStaticFile(path string) (*StaticRegistry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open aircraft file: %w", err)
	}
	defer func() { _ = f.Close() }()
	return LoadStatic(f)
}

// NewStatic creates a registry over a fixed list.
func NewStatic(aircraft []domain.AircraftInfo) *StaticRegistry {
	m := make(map[string]domain.AircraftInfo, len(aircraft))
	for _, a := range aircraft {
		a.Registration = NormalizeRegistration(a.Registration)
		m[a.Registration] = a
	}
	return &StaticRegistry{aircraft: m}
}

// Lookup implements Registry.
func (s *StaticRegistry) Lookup(ctx context.Context, registration string) (domain.AircraftInfo, error) {
	if err := ctx.Err(); err != nil {
		return domain.AircraftInfo{}, err
	}
	a, ok := s.aircraft[NormalizeRegistration(registration)]
	if !ok {
		return domain.AircraftInfo{}, fmt.Errorf("%w: %s", ErrAircraftNotFound, registration)
	}
	return a, nil
}

// Chain asks each registry in turn and returns the first hit.
// The last error is returned when every registry fails.
type Chain []Registry

// Lookup implements Registry.
func (c Chain) Lookup(ctx context.Context, registration string) (domain.AircraftInfo, error) {
	err := fmt.Errorf("%w: %s", ErrAircraftNotFound, registration)
	for _, r := range c {
		info, lookupErr := r.Lookup(ctx, registration)
		if lookupErr == nil {
			return info, nil
		}
		if ctx.Err() != nil {
			return domain.AircraftInfo{}, ctx.Err()
		}
		err = lookupErr
	}
	return domain.AircraftInfo{}, err
}
