// Package session owns incident handling sessions: the incident snapshot,
// derived analysis results and the compliance trail.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/apron-guard/internal/compliance"
	"github.com/bissquit/apron-guard/internal/domain"
	"github.com/bissquit/apron-guard/internal/enrichment"
)

// Repository errors.
var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrVersionConflict  = errors.New("session was modified concurrently")
	ErrActionLogRewrite = errors.New("action log entries cannot be removed")
)

// Service errors.
var (
	ErrActionNotAllowed = errors.New("action cannot be recorded directly")
)

// Session is one incident being handled.
type Session struct {
	ID        string    `json:"id"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Incident   domain.IncidentSnapshot    `json:"incident"`
	Risk       *domain.RiskAssessment     `json:"risk,omitempty"`
	Spatial    *domain.SpatialImpact      `json:"spatial,omitempty"`
	Flights    *domain.FlightImpactResult `json:"flights,omitempty"`
	Enrichment *enrichment.Result         `json:"enrichment,omitempty"`
	Trail      compliance.Trail           `json:"trail"`
}

// Phase returns the current workflow phase.
func (s *Session) Phase() domain.Phase {
	return s.Trail.Phase()
}

// Clone returns a copy that shares no mutable state with s.
func (s *Session) Clone() *Session {
	out := *s
	out.Incident = s.Incident.Clone()
	if s.Risk != nil {
		r := *s.Risk
		r.MatchedRules = append([]string(nil), s.Risk.MatchedRules...)
		r.Factors = append([]string(nil), s.Risk.Factors...)
		out.Risk = &r
	}
	if s.Spatial != nil {
		sp := *s.Spatial
		sp.Visited = append([]domain.VisitedNode(nil), s.Spatial.Visited...)
		sp.AffectedStands = append([]string(nil), s.Spatial.AffectedStands...)
		sp.AffectedTaxiways = append([]string(nil), s.Spatial.AffectedTaxiways...)
		sp.AffectedRunways = append([]string(nil), s.Spatial.AffectedRunways...)
		out.Spatial = &sp
	}
	if s.Flights != nil {
		f := *s.Flights
		f.Flights = append([]domain.AffectedFlight(nil), s.Flights.Flights...)
		out.Flights = &f
	}
	if s.Enrichment != nil {
		e := *s.Enrichment
		out.Enrichment = &e
	}
	return &out
}

// Repository stores sessions. Save must reject a session whose Version does
// not match the stored one and must never drop stored action log entries.
type Repository interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}

// CheckAppendOnly verifies that next keeps every stored action log entry in
// place. Repositories call it before persisting.
func CheckAppendOnly(stored, next compliance.Trail) error {
	if next.Len() < stored.Len() {
		return fmt.Errorf("%w: %d entries stored, %d given", ErrActionLogRewrite, stored.Len(), next.Len())
	}
	old, cur := stored.Entries(), next.Entries()
	for i := range old {
		if old[i].ID != cur[i].ID {
			return fmt.Errorf("%w: entry %d changed", ErrActionLogRewrite, i)
		}
	}
	return nil
}
