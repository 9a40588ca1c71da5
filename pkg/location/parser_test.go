package location

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/paulmach/orb"

	"geoquery/pkg/geo"
	"geoquery/pkg/model"
)

type stubProvider struct {
	reply string
	err   error
}

func (p *stubProvider) GenerateText(ctx context.Context, name, prompt string) (string, error) {
	return "", errors.New("not used")
}

func (p *stubProvider) GenerateJSON(ctx context.Context, name, prompt string, target any) error {
	if p.err != nil {
		return p.err
	}
	return json.Unmarshal([]byte(p.reply), target)
}

func (p *stubProvider) HealthCheck(ctx context.Context) error { return nil }
func (p *stubProvider) HasProfile(name string) bool           { return true }

// stubGeocoder is called from concurrent resolution goroutines.
type stubGeocoder struct {
	places map[string]*model.ResolvedLocation
	err    error
	calls  atomic.Int64
}

func (g *stubGeocoder) Search(ctx context.Context, query, countryCode string) (*model.ResolvedLocation, error) {
	g.calls.Add(1)
	if g.err != nil {
		return nil, g.err
	}
	return g.places[query], nil
}

func delhiGeocoder() *stubGeocoder {
	return &stubGeocoder{places: map[string]*model.ResolvedLocation{
		"Delhi": {
			DisplayName: "Delhi, India",
			Center:      orb.Point{77.2090, 28.6139},
			Geometry: orb.Polygon{orb.Ring{
				{77, 28.4}, {77.4, 28.4}, {77.4, 28.9}, {77, 28.9}, {77, 28.4},
			}},
			AreaKm2:    1484,
			Importance: 0.8,
		},
	}}
}

func TestParseCoordinatesFastPath(t *testing.T) {
	gc := &stubGeocoder{}
	p := New(nil, gc, nil, "in")

	res := p.Parse(context.Background(), "28.6139, 77.2090")

	if !res.Success {
		t.Fatalf("parse failed: %s", res.Error)
	}
	if res.ROISource != model.ROIQueryCoordinates {
		t.Errorf("roi source = %q", res.ROISource)
	}
	if gc.calls.Load() != 0 {
		t.Error("literal coordinates must not hit the geocoder")
	}
	if _, isPoint := res.ROIGeometry.(orb.Point); isPoint || res.ROIGeometry == nil {
		t.Error("coordinate queries must get a buffered polygon ROI")
	}
	if res.Primary == nil || res.Primary.Center[0] != 77.2090 {
		t.Errorf("primary = %+v", res.Primary)
	}
}

func TestParseNERAndGeocode(t *testing.T) {
	provider := &stubProvider{
		reply: `{"locations": [{"matched_name": "Delhi", "type": "city", "confidence": 0.95}]}`,
	}
	p := New(provider, delhiGeocoder(), nil, "in")

	res := p.Parse(context.Background(), "vegetation health in Delhi")

	if !res.Success {
		t.Fatalf("parse failed: %s", res.Error)
	}
	if res.ROISource != model.ROIGeocoded {
		t.Errorf("roi source = %q", res.ROISource)
	}
	if res.Primary == nil || res.Primary.DisplayName != "Delhi, India" {
		t.Errorf("primary = %+v", res.Primary)
	}
	if len(res.Entities) != 1 || res.Entities[0].Type != model.LocationCity {
		t.Errorf("entities = %+v", res.Entities)
	}
	if res.ROIGeometry == nil {
		t.Error("expected the geocoded polygon as ROI")
	}
}

func TestParsePrimaryWeighsImportance(t *testing.T) {
	// A confidently-mentioned hamlet must not beat a hesitantly-mentioned
	// metropolis.
	provider := &stubProvider{reply: `{"locations": [
		{"matched_name": "Smallville", "type": "city", "confidence": 0.9},
		{"matched_name": "Mumbai", "type": "city", "confidence": 0.6}
	]}`}
	gc := &stubGeocoder{places: map[string]*model.ResolvedLocation{
		"Smallville": {DisplayName: "Smallville", Center: orb.Point{80, 20}, Geometry: orb.Point{80, 20}, Importance: 0.2},
		"Mumbai":     {DisplayName: "Mumbai, India", Center: orb.Point{72.87, 19.07}, Geometry: orb.Point{72.87, 19.07}, Importance: 0.8},
	}}
	p := New(provider, gc, nil, "in")

	res := p.Parse(context.Background(), "compare Smallville with Mumbai")
	if !res.Success {
		t.Fatalf("parse failed: %s", res.Error)
	}
	if res.Primary.DisplayName != "Mumbai, India" {
		t.Errorf("primary = %q, importance weighting broken", res.Primary.DisplayName)
	}
}

func TestParsePointPrimaryGetsBuffered(t *testing.T) {
	provider := &stubProvider{
		reply: `{"locations": [{"matched_name": "Delhi", "type": "city", "confidence": 0.9}]}`,
	}
	gc := &stubGeocoder{places: map[string]*model.ResolvedLocation{
		"Delhi": {DisplayName: "Delhi, India", Center: orb.Point{77.2, 28.6}, Geometry: orb.Point{77.2, 28.6}, Importance: 0.8},
	}}
	p := New(provider, gc, nil, "in")

	res := p.Parse(context.Background(), "ndvi of Delhi")
	if !res.Success {
		t.Fatal(res.Error)
	}
	if _, isPoint := res.ROIGeometry.(orb.Point); isPoint {
		t.Error("point geometries must be buffered into a polygon ROI")
	}
}

func TestParseGazetteerFallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "places.geojson")
	fc := `{"type": "FeatureCollection", "features": [{
		"type": "Feature",
		"geometry": {"type": "Point", "coordinates": [77.2, 28.6]},
		"properties": {"name": "Delhi", "type": "city"}
	}]}`
	if err := os.WriteFile(path, []byte(fc), 0o644); err != nil {
		t.Fatal(err)
	}
	gaz, err := geo.NewGazetteer(path)
	if err != nil {
		t.Fatal(err)
	}

	provider := &stubProvider{err: errors.New("ner model down")}
	p := New(provider, delhiGeocoder(), gaz, "in")

	res := p.Parse(context.Background(), "show me delhi please")
	if !res.Success {
		t.Fatalf("gazetteer fallback failed: %s", res.Error)
	}
	if res.Entities[0].MatchedName != "Delhi" || res.Entities[0].Confidence != 0.6 {
		t.Errorf("entities = %+v", res.Entities)
	}
}

func TestParseNoLocationIsNotAFailure(t *testing.T) {
	// A clean NER reply with zero locations means the query names no
	// place; that parses fine and leaves the ROI to the default.
	provider := &stubProvider{reply: `{"locations": []}`}
	gc := &stubGeocoder{}
	p := New(provider, gc, nil, "")

	res := p.Parse(context.Background(), "what is photosynthesis")
	if !res.Success {
		t.Fatalf("location-free query must parse, got error %q", res.Error)
	}
	if res.ROISource != model.ROIDefault {
		t.Errorf("roi source = %q, want %q", res.ROISource, model.ROIDefault)
	}
	if res.ROIGeometry != nil {
		t.Error("location-free query must not invent an ROI")
	}
	if res.Error != "" {
		t.Errorf("unexpected error %q", res.Error)
	}
	if gc.calls.Load() != 0 {
		t.Error("nothing to geocode")
	}
}

func TestParseGeocodeFailureFallsToDefault(t *testing.T) {
	provider := &stubProvider{
		reply: `{"locations": [{"matched_name": "Atlantis", "type": "city", "confidence": 0.8}]}`,
	}
	p := New(provider, &stubGeocoder{err: errors.New("geocoder down")}, nil, "")

	res := p.Parse(context.Background(), "maps of Atlantis")
	if !res.Success {
		t.Fatalf("ungeocodable entities must not fail the stage, got %q", res.Error)
	}
	if res.ROISource != model.ROIDefault || res.ROIGeometry != nil {
		t.Errorf("want default roi source and nil geometry, got %q %v", res.ROISource, res.ROIGeometry)
	}
}

func TestParseFailsOnlyWithoutAnyExtractor(t *testing.T) {
	// NER down, no gazetteer, no literal coordinates: nothing can run,
	// so the stage reports failure.
	provider := &stubProvider{err: errors.New("ner model down")}
	p := New(provider, &stubGeocoder{}, nil, "")

	res := p.Parse(context.Background(), "vegetation near the river")
	if res.Success {
		t.Fatal("expected failure when no extractor is available")
	}
	if res.Error == "" {
		t.Error("expected an error message")
	}
}

func TestParseEntityCap(t *testing.T) {
	reply := `{"locations": [
		{"matched_name": "A", "type": "city", "confidence": 0.9},
		{"matched_name": "B", "type": "city", "confidence": 0.9},
		{"matched_name": "C", "type": "city", "confidence": 0.9},
		{"matched_name": "D", "type": "city", "confidence": 0.9},
		{"matched_name": "E", "type": "city", "confidence": 0.9},
		{"matched_name": "F", "type": "city", "confidence": 0.9},
		{"matched_name": "G", "type": "city", "confidence": 0.9}
	]}`
	gc := &stubGeocoder{places: map[string]*model.ResolvedLocation{
		"A": {DisplayName: "A", Center: orb.Point{1, 1}, Geometry: orb.Point{1, 1}, Importance: 0.5},
	}}
	p := New(&stubProvider{reply: reply}, gc, nil, "")

	res := p.Parse(context.Background(), "many places")
	if len(res.Entities) > maxEntities {
		t.Errorf("%d entities, want at most %d", len(res.Entities), maxEntities)
	}
	if n := gc.calls.Load(); n > maxEntities {
		t.Errorf("geocoder called %d times", n)
	}
}

func TestParseLocationType(t *testing.T) {
	tests := []struct {
		in   string
		want model.LocationType
	}{
		{"city", model.LocationCity},
		{"Town", model.LocationCity},
		{"province", model.LocationState},
		{"county", model.LocationDistrict},
		{"country", model.LocationCountry},
		{"coordinates", model.LocationPoint},
		{"galaxy", model.LocationOther},
	}
	for _, tt := range tests {
		if got := parseLocationType(tt.in); got != tt.want {
			t.Errorf("parseLocationType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
