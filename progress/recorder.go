package progress

import "sync"

// Recorded is one emitted event together with its target session
type Recorded struct {
	SessionID string
	Event     string
	Payload   any
}

// Recorder keeps every emitted event in order. It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Recorded
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Emit(sessionID, event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Recorded{SessionID: sessionID, Event: event, Payload: payload})
}

// Events returns a copy of everything recorded so far
func (r *Recorder) Events() []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Recorded, len(r.events))
	copy(out, r.events)
	return out
}

// ForSession returns the events targeted at one session
func (r *Recorder) ForSession(sessionID string) []Recorded {
	var out []Recorded
	for _, e := range r.Events() {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out
}

// Named returns the events with the given name
func (r *Recorder) Named(event string) []Recorded {
	var out []Recorded
	for _, e := range r.Events() {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

// Percentages lists the overallProgress values in emission order
func (r *Recorder) Percentages() []float64 {
	var out []float64
	for _, e := range r.Named(EventOverallProgress) {
		if p, ok := e.Payload.(OverallProgress); ok {
			out = append(out, p.PercentComplete)
		}
	}
	return out
}
