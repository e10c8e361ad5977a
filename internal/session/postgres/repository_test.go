//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/bissquit/apron-guard/internal/compliance"
	"github.com/bissquit/apron-guard/internal/domain"
	pgutil "github.com/bissquit/apron-guard/internal/pkg/postgres"
	"github.com/bissquit/apron-guard/internal/session"
	"github.com/bissquit/apron-guard/internal/testutil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	ctx := context.Background()

	container, err := testutil.NewPostgresContainer(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	require.NoError(t, pgutil.Migrate(container.ConnectionString))

	pool, err := pgxpool.New(ctx, container.ConnectionString)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return NewRepository(pool)
}

func newSession() *session.Session {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &session.Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
		Incident: domain.IncidentSnapshot{
			Position:  domain.Ptr("501"),
			Substance: domain.Ptr(domain.SubstanceFuel),
		},
		Trail: compliance.NewTrail(),
	}
}

func TestRepository_CreateGetSave(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	s := newSession()
	require.NoError(t, repo.Create(ctx, s))
	assert.Equal(t, int64(1), s.Version)

	s.Trail = s.Trail.Record(domain.ActionNotifyFireDept, domain.OutcomeSuccess, "FS1", "foam tender")
	s.Risk = &domain.RiskAssessment{Level: domain.RiskHigh, Score: 85, RuleID: "R004"}
	require.NoError(t, repo.Save(ctx, s))
	assert.Equal(t, int64(2), s.Version)

	got, err := repo.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, "501", *got.Incident.Position)
	assert.Equal(t, domain.RiskHigh, got.Risk.Level)
	assert.Equal(t, domain.PhaseInit, got.Phase())

	entries := got.Trail.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, domain.ActionNotifyFireDept, entries[0].Action)
	assert.Equal(t, "FS1", entries[0].Target)
	assert.Equal(t, "foam tender", entries[0].Detail)
	assert.Equal(t, s.Trail.Entries()[0].ID, entries[0].ID)
}

func TestRepository_PhasePersisted(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	s := newSession()
	require.NoError(t, repo.Create(ctx, s))

	v := compliance.NewValidator(fixedAssessor{level: domain.RiskLow})
	var d compliance.Decision
	s.Trail, d = v.Advance(s.Trail, domain.PhaseInfoCollection, s.Incident)
	require.True(t, d.Accepted)
	require.NoError(t, repo.Save(ctx, s))

	got, err := repo.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseInfoCollection, got.Phase())
	assert.Equal(t, 1, got.Trail.Len())
}

func TestRepository_VersionConflict(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	s := newSession()
	require.NoError(t, repo.Create(ctx, s))
	stale, err := repo.Get(ctx, s.ID)
	require.NoError(t, err)

	s.Trail = s.Trail.Record(domain.ActionNotifyATC, domain.OutcomeSuccess, "", "")
	require.NoError(t, repo.Save(ctx, s))

	stale.Trail = stale.Trail.Record(domain.ActionNotifyAirline, domain.OutcomeSuccess, "", "")
	assert.ErrorIs(t, repo.Save(ctx, stale), session.ErrVersionConflict)

	got, err := repo.Get(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.Trail.Len())
	assert.Equal(t, domain.ActionNotifyATC, got.Trail.Entries()[0].Action)
}

func TestRepository_AppendOnly(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	s := newSession()
	require.NoError(t, repo.Create(ctx, s))
	s.Trail = s.Trail.Record(domain.ActionNotifyATC, domain.OutcomeSuccess, "", "")
	require.NoError(t, repo.Save(ctx, s))

	s.Trail = compliance.NewTrail()
	assert.ErrorIs(t, repo.Save(ctx, s), session.ErrActionLogRewrite)
}

func TestRepository_Delete(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	s := newSession()
	require.NoError(t, repo.Create(ctx, s))
	require.NoError(t, repo.Delete(ctx, s.ID))

	_, err := repo.Get(ctx, s.ID)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, s.ID), session.ErrSessionNotFound)
	assert.NoError(t, repo.Ping(ctx))
}

type fixedAssessor struct {
	level domain.RiskLevel
}

func (f fixedAssessor) Assess(domain.IncidentSnapshot) domain.RiskAssessment {
	return domain.RiskAssessment{Level: f.level}
}
