package compliance

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bissquit/apron-guard/internal/domain"
	"github.com/google/uuid"
)

// Trail is the workflow phase together with its append-only action log.
// Every mutating method returns a new Trail; existing values and the
// entries they expose are never modified.
type Trail struct {
	phase   domain.Phase
	entries []domain.ActionLogEntry
}

// NewTrail starts a trail in INIT with an empty log.
func NewTrail() Trail {
	return Trail{phase: domain.PhaseInit}
}

// RestoreTrail rebuilds a trail from stored state.
func RestoreTrail(phase domain.Phase, entries []domain.ActionLogEntry) (Trail, error) {
	if !phase.IsValid() {
		return Trail{}, fmt.Errorf("restore trail: invalid phase %q", phase)
	}
	return Trail{phase: phase, entries: append([]domain.ActionLogEntry(nil), entries...)}, nil
}

// Phase returns the current workflow phase.
func (t Trail) Phase() domain.Phase {
	if t.phase == "" {
		return domain.PhaseInit
	}
	return t.phase
}

// Entries returns a copy of the log in append order.
func (t Trail) Entries() []domain.ActionLogEntry {
	return append([]domain.ActionLogEntry(nil), t.entries...)
}

// Len returns the number of log entries.
func (t Trail) Len() int {
	return len(t.entries)
}

// HasSuccess reports whether action was recorded with outcome success.
func (t Trail) HasSuccess(action string) bool {
	return hasSuccess(t.entries, action)
}

// Record appends a new entry stamped with the current phase and time.
func (t Trail) Record(action string, outcome domain.Outcome, target, detail string) Trail {
	return t.Append(domain.ActionLogEntry{
		ID:        uuid.NewString(),
		Action:    action,
		Timestamp: time.Now().UTC(),
		Outcome:   outcome,
		Target:    target,
		Phase:     t.Phase(),
		Detail:    detail,
	})
}

// Append returns a trail with e added at the end.
func (t Trail) Append(e domain.ActionLogEntry) Trail {
	entries := make([]domain.ActionLogEntry, len(t.entries), len(t.entries)+1)
	copy(entries, t.entries)
	return Trail{phase: t.Phase(), entries: append(entries, e)}
}

func (t Trail) withPhase(p domain.Phase) Trail {
	return Trail{phase: p, entries: t.entries}
}

func hasSuccess(entries []domain.ActionLogEntry, action string) bool {
	for _, e := range entries {
		if e.Action == action && e.Outcome == domain.OutcomeSuccess {
			return true
		}
	}
	return false
}

type trailJSON struct {
	Phase   domain.Phase            `json:"phase"`
	Entries []domain.ActionLogEntry `json:"entries"`
}

// MarshalJSON implements json.Marshaler.
func (t Trail) MarshalJSON() ([]byte, error) {
	entries := t.entries
	if entries == nil {
		entries = []domain.ActionLogEntry{}
	}
	return json.Marshal(trailJSON{Phase: t.Phase(), Entries: entries})
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Trail) UnmarshalJSON(data []byte) error {
	var raw trailJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Phase == "" {
		raw.Phase = domain.PhaseInit
	}
	restored, err := RestoreTrail(raw.Phase, raw.Entries)
	if err != nil {
		return err
	}
	*t = restored
	return nil
}
