package geo

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/paulmach/orb/geojson"
)

// Place is a known place from the bundled gazetteer layer.
type Place struct {
	Name string
	Type string // "city", "state", "country", ...
}

// Gazetteer holds named places loaded from GeoJSON layers. It backs the
// NER fallback: when the entity extractor is unreachable, known place
// tokens are matched directly against the query text.
type Gazetteer struct {
	mu       sync.RWMutex
	features []*geojson.Feature
	byToken  map[string]int // lowercased name -> feature index
}

// NewGazetteer creates a gazetteer and loads the given GeoJSON files.
// Zero paths yields an empty gazetteer that never matches.
func NewGazetteer(paths ...string) (*Gazetteer, error) {
	g := &Gazetteer{byToken: make(map[string]int)}
	for _, path := range paths {
		if err := g.load(path); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func (g *Gazetteer) load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read gazetteer %s: %w", path, err)
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return fmt.Errorf("failed to parse gazetteer %s: %w", path, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	for _, f := range fc.Features {
		name := propString(f.Properties, "name")
		if name == "" {
			continue
		}
		g.features = append(g.features, f)
		g.byToken[strings.ToLower(name)] = len(g.features) - 1
	}
	return nil
}

// Match scans the query for known place names, longest match first.
func (g *Gazetteer) Match(query string) []Place {
	g.mu.RLock()
	defer g.mu.RUnlock()

	lower := strings.ToLower(query)
	var out []Place
	seen := make(map[string]bool)
	for token, idx := range g.byToken {
		if !strings.Contains(lower, token) || seen[token] {
			continue
		}
		seen[token] = true
		f := g.features[idx]
		out = append(out, Place{
			Name: propString(f.Properties, "name"),
			Type: propString(f.Properties, "type"),
		})
	}
	return out
}

// Len returns the number of loaded places.
func (g *Gazetteer) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.features)
}

func propString(props geojson.Properties, key string) string {
	if val, ok := props[key]; ok {
		if s, ok := val.(string); ok {
			return s
		}
	}
	return ""
}
