package session

import (
	"context"
	"fmt"
	"time"

	"github.com/bissquit/apron-guard/internal/compliance"
	"github.com/bissquit/apron-guard/internal/domain"
	"github.com/bissquit/apron-guard/internal/pkg/ctxlog"
	"github.com/bissquit/apron-guard/internal/tools"
	"github.com/google/uuid"
)

// externalActions are the actions the reasoning loop reports itself.
// Analysis actions are recorded by tools and transitions by the validator.
var externalActions = map[string]bool{
	domain.ActionNotifyFireDept: true,
	domain.ActionNotifyATC:      true,
	domain.ActionNotifyAirline:  true,
	domain.ActionConfirmCleanup: true,
}

// IsExternalAction reports whether action may be recorded through RecordAction.
func IsExternalAction(action string) bool {
	return externalActions[action]
}

// Executor runs a tool against session state.
type Executor interface {
	Execute(ctx context.Context, kind tools.Kind, state tools.State, params tools.Params) tools.Observation
}

// ActionInput is an externally performed action to record.
type ActionInput struct {
	Action  string
	Outcome domain.Outcome
	Target  string
	Detail  string
}

// ToolResult is a tool observation and the session after its patch.
type ToolResult struct {
	Observation tools.Observation `json:"observation"`
	Session     *Session          `json:"session"`
}

// Service provides session business logic.
type Service struct {
	repo     Repository
	executor Executor
}

// NewService creates a new session service.
func NewService(repo Repository, executor Executor) *Service {
	return &Service{repo: repo, executor: executor}
}

// Create starts a session in INIT with the given incident fields.
func (s *Service) Create(ctx context.Context, incident domain.IncidentSnapshot) (*Session, error) {
	now := time.Now().UTC()
	sess := &Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
		Incident:  incident.Clone(),
		Trail:     compliance.NewTrail(),
	}
	if err := s.repo.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	ctxlog.FromContext(ctx).Info("session created", "session_id", sess.ID)
	return sess, nil
}

// Get returns the session with the given id.
func (s *Service) Get(ctx context.Context, id string) (*Session, error) {
	return s.repo.Get(ctx, id)
}

// Delete removes a session.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// UpdateIncident merges newly known incident fields. Derived results are
// dropped since they no longer match the snapshot.
func (s *Service) UpdateIncident(ctx context.Context, id string, patch domain.IncidentSnapshot) (*Session, error) {
	sess, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	sess.Incident = sess.Incident.Merge(patch)
	sess.Risk = nil
	sess.Spatial = nil
	sess.Flights = nil
	sess.Enrichment = nil

	if err := s.repo.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// RecordAction appends an externally performed action to the trail.
func (s *Service) RecordAction(ctx context.Context, id string, in ActionInput) (*Session, error) {
	if !IsExternalAction(in.Action) {
		return nil, fmt.Errorf("%w: %s", ErrActionNotAllowed, in.Action)
	}
	if in.Outcome == "" {
		in.Outcome = domain.OutcomeSuccess
	}

	sess, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	sess.Trail = sess.Trail.Record(in.Action, in.Outcome, in.Target, in.Detail)
	if err := s.repo.Save(ctx, sess); err != nil {
		return nil, err
	}

	ctxlog.FromContext(ctx).Info("action recorded",
		"session_id", id,
		"action", in.Action,
		"outcome", in.Outcome,
	)
	return sess, nil
}

// ExecuteTool runs a tool on the session and applies its patch.
func (s *Service) ExecuteTool(ctx context.Context, id string, kind tools.Kind, params tools.Params) (*ToolResult, error) {
	ctx = ctxlog.With(ctx, "session_id", id)

	sess, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	state := tools.State{
		Snapshot: sess.Incident.Clone(),
		Trail:    sess.Trail,
		Risk:     sess.Risk,
		Spatial:  sess.Spatial,
	}
	obs := s.executor.Execute(ctx, kind, state, params)

	if obs.Patch != nil {
		applyPatch(sess, obs.Patch)
		if err := s.repo.Save(ctx, sess); err != nil {
			return nil, err
		}
		ctxlog.FromContext(ctx).Debug("tool patch applied", "tool", kind, "version", sess.Version, "phase", sess.Phase())
	}
	return &ToolResult{Observation: obs, Session: sess}, nil
}

// ActionLog returns the ordered action log of a session.
func (s *Service) ActionLog(ctx context.Context, id string) ([]domain.ActionLogEntry, error) {
	sess, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return sess.Trail.Entries(), nil
}

// Ready checks the session store.
func (s *Service) Ready(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func applyPatch(sess *Session, p *tools.Patch) {
	if p.Incident != nil {
		sess.Incident = sess.Incident.Merge(*p.Incident)
	}
	if p.Risk != nil {
		sess.Risk = p.Risk
	}
	if p.Spatial != nil {
		sess.Spatial = p.Spatial
	}
	if p.Flights != nil {
		sess.Flights = p.Flights
	}
	if p.Enrichment != nil {
		sess.Enrichment = p.Enrichment
	}
	if p.Trail != nil && p.Trail.Len() >= sess.Trail.Len() {
		sess.Trail = *p.Trail
	}
}
