// Package realtimetest provides a Broadcaster that records emits.
package realtimetest

import (
	"sync"

	"github.com/synergysphere/server/internal/realtime"
)

// Emit is one recorded call. Room is empty for a global broadcast.
type Emit struct {
	Room    string
	Event   string
	Payload interface{}
}

type Recorder struct {
	mu    sync.Mutex
	emits []Emit
}

var _ realtime.Broadcaster = (*Recorder)(nil)

func (r *Recorder) Broadcast(event string, payload interface{}) {
	r.record(Emit{Event: event, Payload: payload})
}

func (r *Recorder) EmitToRoom(room, event string, payload interface{}) {
	r.record(Emit{Room: room, Event: event, Payload: payload})
}

func (r *Recorder) EmitToUser(userID, event string, payload interface{}) {
	r.record(Emit{Room: realtime.UserRoom(userID), Event: event, Payload: payload})
}

func (r *Recorder) record(e Emit) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emits = append(r.emits, e)
}

func (r *Recorder) Emits() []Emit {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Emit(nil), r.emits...)
}

// Events returns the recorded emits with the given event name.
func (r *Recorder) Events(event string) []Emit {
	var out []Emit
	for _, e := range r.Emits() {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}
