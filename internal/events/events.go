// Package events announces slot status changes to other systems.
package events

import (
	"context"
	"sync"
	"time"
)

const (
	SlotWaiting     = "slot.waiting"
	SlotBooked      = "slot.booked"
	SlotNotBooked   = "slot.not_booked"
	SlotDiscrepancy = "slot.discrepancy"
	SlotsPurged     = "slots.purged"
)

type Event struct {
	Type    string    `json:"type"`
	SlotID  string    `json:"slot_id,omitempty"`
	Date    string    `json:"date,omitempty"`
	Status  string    `json:"status,omitempty"`
	Message string    `json:"message,omitempty"`
	Count   int       `json:"count,omitempty"`
	At      time.Time `json:"at"`
}

// Publisher failures are reported to the caller, which logs them; they
// never undo a status write.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types returns the type of every recorded event, in order.
func (r *Recorder) Types() []string {
	var out []string
	for _, e := range r.Events() {
		out = append(out, e.Type)
	}
	return out
}
