package model

import (
	"sync"
	"testing"
)

func TestEvidenceOrderPreserved(t *testing.T) {
	ev := NewEvidence()
	ev.Add("agent", "request_received")
	ev.Addf("intent_classifier", "%s_%.2f", "gee", 0.9)
	ev.Add("ndvi_service", "success")

	want := []string{
		"agent:request_received",
		"intent_classifier:gee_0.90",
		"ndvi_service:success",
	}
	got := ev.Markers()
	if len(got) != len(want) {
		t.Fatalf("got %d markers, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("marker %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestEvidenceMarkersReturnsCopy(t *testing.T) {
	ev := NewEvidence()
	ev.Add("a", "b")

	m := ev.Markers()
	m[0] = "tampered"

	if ev.Markers()[0] != "a:b" {
		t.Error("mutating the returned slice must not affect the trail")
	}
}

func TestEvidenceConcurrentAppends(t *testing.T) {
	ev := NewEvidence()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ev.Add("worker", "done")
		}()
	}
	wg.Wait()

	if got := len(ev.Markers()); got != 50 {
		t.Errorf("got %d markers, want 50", got)
	}
}

func TestEvidenceSinkReceivesMarkers(t *testing.T) {
	ev := NewEvidence()
	var seen []string
	ev.Subscribe(func(m string) { seen = append(seen, m) })

	ev.Add("dispatcher", "route_gee")
	ev.Add("ndvi_service", "success")

	if len(seen) != 2 || seen[0] != "dispatcher:route_gee" {
		t.Errorf("sink saw %v", seen)
	}
}

func TestROIFeatureNilGeometry(t *testing.T) {
	r := &LocationParseResult{}
	if r.ROIFeature() != nil {
		t.Error("no geometry should yield nil feature")
	}
}
