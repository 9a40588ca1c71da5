package imagery

import (
	"context"
	"sync"

	"github.com/paulmach/orb"
)

// Mock is a scriptable Backend for tests and offline runs. Unset
// function fields return empty results.
type Mock struct {
	ReduceFn       func(ctx context.Context, img Image, g orb.Geometry, req ReduceRequest) (map[string]any, error)
	MapFn          func(ctx context.Context, img Image, vis VisParams) (string, error)
	SampleFn       func(ctx context.Context, img Image, p orb.Point, scaleM float64) (map[string]float64, error)
	SampleRegionFn func(ctx context.Context, img Image, g orb.Geometry, scaleM float64, numPixels int) ([]map[string]float64, error)

	mu    sync.Mutex
	calls []string
}

func (m *Mock) record(op string) {
	m.mu.Lock()
	m.calls = append(m.calls, op)
	m.mu.Unlock()
}

// Calls returns the operations invoked so far, in order.
func (m *Mock) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *Mock) ReduceRegion(ctx context.Context, img Image, g orb.Geometry, req ReduceRequest) (map[string]any, error) {
	m.record("reduce_region")
	if m.ReduceFn != nil {
		return m.ReduceFn(ctx, img, g, req)
	}
	return nil, ErrNoData
}

func (m *Mock) MapURL(ctx context.Context, img Image, vis VisParams) (string, error) {
	m.record("map_url")
	if m.MapFn != nil {
		return m.MapFn(ctx, img, vis)
	}
	return "https://tiles.example.com/{z}/{x}/{y}", nil
}

func (m *Mock) SamplePoint(ctx context.Context, img Image, p orb.Point, scaleM float64) (map[string]float64, error) {
	m.record("sample_point")
	if m.SampleFn != nil {
		return m.SampleFn(ctx, img, p, scaleM)
	}
	return nil, nil
}

func (m *Mock) SampleRegion(ctx context.Context, img Image, g orb.Geometry, scaleM float64, numPixels int) ([]map[string]float64, error) {
	m.record("sample_region")
	if m.SampleRegionFn != nil {
		return m.SampleRegionFn(ctx, img, g, scaleM, numPixels)
	}
	return nil, nil
}

func (m *Mock) Healthy(ctx context.Context) error {
	return nil
}
