package model

import (
	"fmt"
	"sync"
)

// Evidence is the append-only trail of component:event markers collected
// during a single request. Safe for concurrent appends.
type Evidence struct {
	mu      sync.Mutex
	markers []string
	sink    func(string)
}

// NewEvidence creates an empty trail.
func NewEvidence() *Evidence {
	return &Evidence{}
}

// Subscribe registers a sink called for every appended marker.
// Used by the streaming API to forward progress events.
func (e *Evidence) Subscribe(fn func(string)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sink = fn
}

// Add appends a component:event marker.
func (e *Evidence) Add(component, event string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m := component + ":" + event
	e.markers = append(e.markers, m)
	if e.sink != nil {
		e.sink(m)
	}
}

// Addf appends a formatted marker.
func (e *Evidence) Addf(component, format string, args ...any) {
	e.Add(component, fmt.Sprintf(format, args...))
}

// Markers returns a copy of the trail.
func (e *Evidence) Markers() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.markers))
	copy(out, e.markers)
	return out
}
