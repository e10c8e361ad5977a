package enrichment

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bissquit/apron-guard/internal/domain"
	"github.com/bissquit/apron-guard/internal/registry"
	"github.com/bissquit/apron-guard/internal/risk"
	"github.com/bissquit/apron-guard/internal/schedule"
	"github.com/bissquit/apron-guard/internal/topology"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLookup struct {
	name     string
	requires []string
	delay    time.Duration
	block    chan struct{}
	value    any
	err      error
	calls    atomic.Int32
}

func (f *fakeLookup) Name() string       { return f.name }
func (f *fakeLookup) Requires() []string { return f.requires }

func (f *fakeLookup) Fetch(_ context.Context, _ domain.IncidentSnapshot) (any, error) {
	f.calls.Add(1)
	if f.block != nil {
		<-f.block
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.value, f.err
}

func fullSnapshot() domain.IncidentSnapshot {
	return domain.IncidentSnapshot{
		Position:    domain.Ptr("stand 501"),
		Substance:   domain.Ptr(domain.SubstanceFuel),
		Continuous:  domain.Ptr(true),
		PowerState:  domain.Ptr(domain.PowerStateRunning),
		FlightNo:    domain.Ptr("CCA1501"),
		AircraftReg: domain.Ptr("B-1501"),
	}
}

func TestScheduler_SlowLookupTimesOut(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	aircraft := &fakeLookup{name: SlotAircraftInfo, block: release}
	flightPlan := &fakeLookup{name: SlotFlightPlan, delay: 20 * time.Millisecond, value: "plan"}
	location := &fakeLookup{name: SlotLocation, delay: 20 * time.Millisecond, value: "loc"}

	s := NewScheduler(Config{Workers: 3, Timeout: 200 * time.Millisecond},
		[]Lookup{aircraft, flightPlan, location}, nil)

	start := time.Now()
	got := s.Enrich(context.Background(), fullSnapshot())
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 2*time.Second, "enrich must not wait for the blocked lookup")

	slot, ok := got.Slot(SlotAircraftInfo)
	require.True(t, ok)
	assert.Equal(t, StatusTimedOut, slot.Status)
	assert.Nil(t, slot.Value)

	plan, _ := got.Slot(SlotFlightPlan)
	assert.Equal(t, StatusOK, plan.Status)
	assert.Equal(t, "plan", plan.Value)

	loc, _ := got.Slot(SlotLocation)
	assert.Equal(t, StatusOK, loc.Status)
	assert.Equal(t, "loc", loc.Value)
}

func TestScheduler_ResultNotChangedByLateLookup(t *testing.T) {
	release := make(chan struct{})
	slow := &fakeLookup{name: "slow", block: release, value: "late"}

	s := NewScheduler(Config{Workers: 1, Timeout: 50 * time.Millisecond}, []Lookup{slow}, nil)
	got := s.Enrich(context.Background(), fullSnapshot())

	close(release)
	time.Sleep(20 * time.Millisecond)

	slot, _ := got.Slot("slow")
	assert.Equal(t, StatusTimedOut, slot.Status)
	assert.Nil(t, slot.Value)
}

func TestScheduler_UnavailableWhenFieldUnknown(t *testing.T) {
	aircraft := &fakeLookup{name: SlotAircraftInfo, requires: []string{domain.FieldAircraftReg}, value: "x"}
	location := &fakeLookup{name: SlotLocation, requires: []string{domain.FieldPosition}, value: "y"}

	s := NewScheduler(DefaultConfig(), []Lookup{aircraft, location}, nil)
	got := s.Enrich(context.Background(), domain.IncidentSnapshot{Position: domain.Ptr("501")})

	slot, _ := got.Slot(SlotAircraftInfo)
	assert.Equal(t, StatusUnavailable, slot.Status)
	assert.Contains(t, slot.Error, domain.FieldAircraftReg)
	assert.Equal(t, int32(0), aircraft.calls.Load())

	loc, _ := got.Slot(SlotLocation)
	assert.Equal(t, StatusOK, loc.Status)
}

func TestScheduler_FailedLookupKeepsOthers(t *testing.T) {
	bad := &fakeLookup{name: "bad", err: errors.New("registry down")}
	good := &fakeLookup{name: "good", value: 42}

	s := NewScheduler(DefaultConfig(), []Lookup{bad, good}, nil)
	got := s.Enrich(context.Background(), fullSnapshot())

	slot, _ := got.Slot("bad")
	assert.Equal(t, StatusFailed, slot.Status)
	assert.Equal(t, "registry down", slot.Error)

	ok, _ := got.Slot("good")
	assert.Equal(t, 42, ok.Value)
	assert.Equal(t, []string{"bad", "good"}, slotNames(got))
}

func TestScheduler_BoundedWorkers(t *testing.T) {
	var (
		mu      sync.Mutex
		running int
		peak    int
	)
	track := func() {
		mu.Lock()
		running++
		if running > peak {
			peak = running
		}
		mu.Unlock()
		time.Sleep(30 * time.Millisecond)
		mu.Lock()
		running--
		mu.Unlock()
	}

	lookups := make([]Lookup, 0, 6)
	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		lookups = append(lookups, funcLookup{name: name, fn: track})
	}

	s := NewScheduler(Config{Workers: 2, Timeout: 5 * time.Second}, lookups, nil)
	got := s.Enrich(context.Background(), fullSnapshot())

	assert.Equal(t, 6, got.Count(StatusOK))
	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, peak, 2)
}

func TestScheduler_DependentSkippedWithoutPrerequisite(t *testing.T) {
	location := &fakeLookup{name: SlotLocation, err: topology.ErrLocationNotFound}
	var ran atomic.Bool
	dep := Dependent{
		Name:     SlotSpatialImpact,
		Requires: []string{SlotLocation},
		Run: func(context.Context, domain.IncidentSnapshot, Result) (any, error) {
			ran.Store(true)
			return nil, nil
		},
	}

	s := NewScheduler(DefaultConfig(), []Lookup{location}, []Dependent{dep})
	got := s.Enrich(context.Background(), fullSnapshot())

	slot, ok := got.Slot(SlotSpatialImpact)
	require.True(t, ok)
	assert.Equal(t, StatusSkipped, slot.Status)
	assert.False(t, ran.Load())
}

func TestScheduler_DependentRunsAfterLookups(t *testing.T) {
	location := &fakeLookup{name: SlotLocation, delay: 10 * time.Millisecond, value: "501"}
	dep := Dependent{
		Name:     "echo",
		Requires: []string{SlotLocation},
		Run: func(_ context.Context, _ domain.IncidentSnapshot, r Result) (any, error) {
			slot, _ := r.Slot(SlotLocation)
			return "saw " + slot.Value.(string), nil
		},
	}

	s := NewScheduler(DefaultConfig(), []Lookup{location}, []Dependent{dep})
	got := s.Enrich(context.Background(), fullSnapshot())

	slot, _ := got.Slot("echo")
	assert.Equal(t, StatusOK, slot.Status)
	assert.Equal(t, "saw 501", slot.Value)
}

func TestScheduler_CancelledContext(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	slow := &fakeLookup{name: "slow", block: release}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	s := NewScheduler(Config{Workers: 1, Timeout: 10 * time.Second}, []Lookup{slow}, nil)
	got := s.Enrich(ctx, fullSnapshot())

	slot, _ := got.Slot("slow")
	assert.Equal(t, StatusFailed, slot.Status)
	assert.Contains(t, slot.Error, "cancelled")
}

func TestScheduler_BuiltInLookups(t *testing.T) {
	graphFile, err := os.Open("../topology/testdata/topology.yaml")
	require.NoError(t, err)
	defer func() { _ = graphFile.Close() }()
	g, err := topology.LoadGraph(graphFile)
	require.NoError(t, err)

	schedFile, err := os.Open("../schedule/testdata/schedule.yaml")
	require.NoError(t, err)
	defer func() { _ = schedFile.Close() }()
	store, err := schedule.LoadStore(schedFile)
	require.NoError(t, err)

	reg := registry.NewStatic([]domain.AircraftInfo{{Registration: "B-1501", Type: "A321"}})
	engine := topology.NewEngine(g)
	riskEngine, err := risk.DefaultEngine()
	require.NoError(t, err)

	s := NewScheduler(DefaultConfig(),
		[]Lookup{
			AircraftLookup{Registry: reg},
			FlightPlanLookup{Store: store},
			LocationLookup{Resolver: engine.Resolver()},
		},
		[]Dependent{SpatialImpactStep(engine, riskEngine)},
	)

	got := s.Enrich(context.Background(), fullSnapshot())

	assert.Equal(t, []string{SlotAircraftInfo, SlotFlightPlan, SlotLocation, SlotSpatialImpact}, slotNames(got))
	assert.Equal(t, 4, got.Count(StatusOK))

	aircraft, _ := got.Slot(SlotAircraftInfo)
	assert.Equal(t, "A321", aircraft.Value.(domain.AircraftInfo).Type)

	loc, _ := got.Slot(SlotLocation)
	assert.Equal(t, "501", loc.Value.(Location).NodeID)

	spatial, _ := got.Slot(SlotSpatialImpact)
	impact := spatial.Value.(domain.SpatialImpact)
	assert.Equal(t, 3, impact.Radius)
	assert.Equal(t, []string{"RWY_09L"}, impact.AffectedRunways)
}

func TestResult_JSONRoundTripKeepsOrder(t *testing.T) {
	s := NewScheduler(DefaultConfig(), []Lookup{
		&fakeLookup{name: "b", value: "x"},
		&fakeLookup{name: "a", err: errors.New("boom")},
	}, nil)
	got := s.Enrich(context.Background(), fullSnapshot())

	data, err := got.MarshalJSON()
	require.NoError(t, err)

	var restored Result
	require.NoError(t, restored.UnmarshalJSON(data))
	assert.Equal(t, []string{"b", "a"}, slotNames(restored))
	slot, _ := restored.Slot("a")
	assert.Equal(t, StatusFailed, slot.Status)
}

type funcLookup struct {
	name string
	fn   func()
}

func (f funcLookup) Name() string       { return f.name }
func (f funcLookup) Requires() []string { return nil }
func (f funcLookup) Fetch(context.Context, domain.IncidentSnapshot) (any, error) {
	f.fn()
	return f.name, nil
}

func slotNames(r Result) []string {
	slots := r.Slots()
	names := make([]string, 0, len(slots))
	for _, s := range slots {
		names = append(names, s.Name)
	}
	return names
}
