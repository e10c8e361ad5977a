// Package enrichment fetches supporting incident data in parallel under one
// shared deadline, then runs the steps that depend on it.
package enrichment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bissquit/apron-guard/internal/domain"
	"github.com/bissquit/apron-guard/internal/pkg/ctxlog"
	"golang.org/x/sync/errgroup"
)

// Lookup is an independent fetch keyed by incident fields.
type Lookup interface {
	// Name is the slot the result is stored under.
	Name() string
	// Requires lists the snapshot fields that must be known.
	Requires() []string
	Fetch(ctx context.Context, snapshot domain.IncidentSnapshot) (any, error)
}

// Dependent is a step that needs the results of earlier slots.
type Dependent struct {
	Name     string
	Requires []string
	Run      func(ctx context.Context, snapshot domain.IncidentSnapshot, r Result) (any, error)
}

// Config holds scheduler configuration.
type Config struct {
	Workers int
	Timeout time.Duration
}

// DefaultConfig returns default scheduler configuration.
func DefaultConfig() Config {
	return Config{
		Workers: 3,
		Timeout: 10 * time.Second,
	}
}

// Scheduler runs lookups on a bounded pool and collects their results.
type Scheduler struct {
	config     Config
	lookups    []Lookup
	dependents []Dependent
}

// NewScheduler creates a scheduler. Slots appear in the result in the order
// lookups and dependents are given.
func NewScheduler(config Config, lookups []Lookup, dependents []Dependent) *Scheduler {
	def := DefaultConfig()
	if config.Workers <= 0 {
		config.Workers = def.Workers
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	return &Scheduler{
		config:     config,
		lookups:    append([]Lookup(nil), lookups...),
		dependents: append([]Dependent(nil), dependents...),
	}
}

// Config returns the effective configuration.
func (s *Scheduler) Config() Config {
	return s.config
}

// Enrich runs every lookup whose required fields are known. Lookups still
// running at the deadline are reported as timed out; they are not cancelled
// and their late results are discarded. Dependents run sequentially after
// the parallel phase and are skipped when a prerequisite slot is not ok.
func (s *Scheduler) Enrich(ctx context.Context, snapshot domain.IncidentSnapshot) Result {
	log := ctxlog.FromContext(ctx)
	res := newResult()

	runnable := make([]Lookup, 0, len(s.lookups))
	for _, l := range s.lookups {
		res.put(Slot{Name: l.Name()})
		if missing := snapshot.Missing(l.Requires()...); len(missing) > 0 {
			res.put(Slot{
				Name:   l.Name(),
				Status: StatusUnavailable,
				Error:  "missing field: " + strings.Join(missing, ", "),
			})
			recordLookup(l.Name(), StatusUnavailable, 0)
			continue
		}
		runnable = append(runnable, l)
	}

	s.fanOut(ctx, snapshot, runnable, res)

	for _, d := range s.dependents {
		res.put(s.runDependent(ctx, snapshot, d, *res))
	}

	log.Debug("enrichment finished",
		"ok", res.Count(StatusOK),
		"timed_out", res.Count(StatusTimedOut),
		"failed", res.Count(StatusFailed),
	)
	return *res
}

func (s *Scheduler) fanOut(ctx context.Context, snapshot domain.IncidentSnapshot, lookups []Lookup, res *Result) {
	if len(lookups) == 0 {
		return
	}

	started := time.Now()
	results := make(chan Slot, len(lookups))
	done := make(chan struct{})

	go func() {
		var g errgroup.Group
		g.SetLimit(s.config.Workers)
		for _, l := range lookups {
			g.Go(func() error {
				select {
				case <-done:
					return nil
				default:
				}
				results <- fetch(ctx, l, snapshot.Clone())
				return nil
			})
		}
		_ = g.Wait()
	}()

	timer := time.NewTimer(s.config.Timeout)
	defer timer.Stop()

	pending := make(map[string]bool, len(lookups))
	for _, l := range lookups {
		pending[l.Name()] = true
	}

	for len(pending) > 0 {
		select {
		case slot := <-results:
			delete(pending, slot.Name)
			res.put(slot)
			recordLookup(slot.Name, slot.Status, slot.Duration)
		case <-timer.C:
			s.expire(ctx, res, pending, StatusTimedOut, time.Since(started))
		case <-ctx.Done():
			s.expire(ctx, res, pending, StatusFailed, time.Since(started))
		}
	}
	close(done)
}

func (s *Scheduler) expire(ctx context.Context, res *Result, pending map[string]bool, status Status, elapsed time.Duration) {
	msg := fmt.Sprintf("no result within %s", s.config.Timeout)
	if status == StatusFailed {
		msg = "cancelled: " + context.Cause(ctx).Error()
	}
	for name := range pending {
		ctxlog.FromContext(ctx).Warn("enrichment lookup abandoned", "lookup", name, "status", status)
		res.put(Slot{Name: name, Status: status, Error: msg, Duration: elapsed})
		recordLookup(name, status, elapsed)
		delete(pending, name)
	}
}

func fetch(ctx context.Context, l Lookup, snapshot domain.IncidentSnapshot) (slot Slot) {
	start := time.Now()
	slot = Slot{Name: l.Name()}
	defer func() {
		if p := recover(); p != nil {
			slog.Error("enrichment lookup panicked", "lookup", l.Name(), "panic", p)
			slot.Status = StatusFailed
			slot.Error = fmt.Sprintf("panic: %v", p)
		}
		slot.Duration = time.Since(start)
	}()

	v, err := l.Fetch(ctx, snapshot)
	if err != nil {
		slot.Status = StatusFailed
		slot.Error = err.Error()
		return slot
	}
	slot.Status = StatusOK
	slot.Value = v
	return slot
}

func (s *Scheduler) runDependent(ctx context.Context, snapshot domain.IncidentSnapshot, d Dependent, res Result) Slot {
	var missing []string
	for _, req := range d.Requires {
		if slot, ok := res.Slot(req); !ok || !slot.OK() {
			missing = append(missing, req)
		}
	}
	if len(missing) > 0 {
		recordLookup(d.Name, StatusSkipped, 0)
		return Slot{Name: d.Name, Status: StatusSkipped, Error: "missing prerequisite: " + strings.Join(missing, ", ")}
	}

	start := time.Now()
	v, err := d.Run(ctx, snapshot.Clone(), res)
	slot := Slot{Name: d.Name, Duration: time.Since(start)}
	if err != nil {
		slot.Status = StatusFailed
		slot.Error = err.Error()
	} else {
		slot.Status = StatusOK
		slot.Value = v
	}
	recordLookup(d.Name, slot.Status, slot.Duration)
	return slot
}
