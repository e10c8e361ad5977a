package enrichment

import (
	"encoding/json"
	"time"
)

// Status is the outcome of one enrichment slot.
type Status string

// Slot statuses.
const (
	StatusOK          Status = "ok"
	StatusFailed      Status = "failed"
	StatusTimedOut    Status = "timed_out"
	StatusUnavailable Status = "unavailable"
	StatusSkipped     Status = "skipped"
)

// Slot is the named result of one lookup or dependent step.
type Slot struct {
	Name     string        `json:"name"`
	Status   Status        `json:"status"`
	Value    any           `json:"value,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// OK reports whether the slot holds a value.
func (s Slot) OK() bool {
	return s.Status == StatusOK
}

// Result is a completed enrichment. It is only handed out once every slot
// is settled and is never written to afterwards.
type Result struct {
	slots []Slot
	index map[string]int
}

func newResult() *Result {
	return &Result{index: make(map[string]int)}
}

func (r *Result) put(s Slot) {
	if i, ok := r.index[s.Name]; ok {
		r.slots[i] = s
		return
	}
	r.index[s.Name] = len(r.slots)
	r.slots = append(r.slots, s)
}

// Slot returns the slot with the given name.
func (r Result) Slot(name string) (Slot, bool) {
	i, ok := r.index[name]
	if !ok {
		return Slot{}, false
	}
	return r.slots[i], true
}

// Slots returns every slot in registration order.
func (r Result) Slots() []Slot {
	return append([]Slot(nil), r.slots...)
}

// Count returns how many slots have the given status.
func (r Result) Count(status Status) int {
	n := 0
	for _, s := range r.slots {
		if s.Status == status {
			n++
		}
	}
	return n
}

// MarshalJSON encodes the slots in order.
func (r Result) MarshalJSON() ([]byte, error) {
	slots := r.slots
	if slots == nil {
		slots = []Slot{}
	}
	return json.Marshal(struct {
		Slots []Slot `json:"slots"`
	}{Slots: slots})
}

// UnmarshalJSON restores a stored result. Slot values come back as generic
// JSON values.
func (r *Result) UnmarshalJSON(data []byte) error {
	var raw struct {
		Slots []Slot `json:"slots"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = *newResult()
	for _, s := range raw.Slots {
		r.put(s)
	}
	return nil
}
