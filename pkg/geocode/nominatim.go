package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"geoquery/pkg/config"
	"geoquery/pkg/geo"
	"geoquery/pkg/model"
	"geoquery/pkg/request"
)

// Geocoder resolves place names to geometries.
type Geocoder interface {
	// Search resolves a place name. Returns nil when nothing acceptable
	// was found; that is not an error.
	Search(ctx context.Context, query, countryCode string) (*model.ResolvedLocation, error)
}

// Nominatim implements Geocoder against a Nominatim-style endpoint.
type Nominatim struct {
	rc         *request.Client
	baseURL    string
	limit      int
	maxAreaKm2 float64
}

// New creates a Nominatim geocoder.
func New(cfg config.GeocoderConfig, rc *request.Client) *Nominatim {
	limit := cfg.Limit
	if limit <= 0 {
		limit = 5
	}
	return &Nominatim{
		rc:         rc,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		limit:      limit,
		maxAreaKm2: cfg.MaxAreaKm2,
	}
}

type nominatimResult struct {
	PlaceID     json.Number     `json:"place_id"`
	DisplayName string          `json:"display_name"`
	Lat         string          `json:"lat"`
	Lon         string          `json:"lon"`
	Importance  float64         `json:"importance"`
	GeoJSON     json.RawMessage `json:"geojson"`
}

// Search implements Geocoder. It asks for polygon geometry, keeps the
// candidate with the highest source-reported importance (ties broken by
// smaller area), and rejects geometries above the configured area cap.
func (n *Nominatim) Search(ctx context.Context, query, countryCode string) (*model.ResolvedLocation, error) {
	params := url.Values{
		"q":               []string{query},
		"format":          []string{"jsonv2"},
		"limit":           []string{strconv.Itoa(n.limit)},
		"polygon_geojson": []string{"1"},
	}
	if countryCode != "" {
		params.Set("countrycodes", strings.ToLower(countryCode))
	}

	u := n.baseURL + "/search?" + params.Encode()
	cacheKey := "geocode:" + strings.ToLower(strings.TrimSpace(query)) + ":" + strings.ToLower(countryCode)

	body, err := n.rc.Get(ctx, u, cacheKey)
	if err != nil {
		return nil, fmt.Errorf("nominatim request failed: %w", err)
	}

	var results []nominatimResult
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("failed to parse nominatim response: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	var best *model.ResolvedLocation
	for _, r := range results {
		loc, err := n.toLocation(r)
		if err != nil {
			slog.Debug("Skipping unparseable geocode candidate", "place_id", r.PlaceID, "error", err)
			continue
		}
		if n.maxAreaKm2 > 0 && loc.AreaKm2 > n.maxAreaKm2 {
			slog.Debug("Rejecting oversized geocode candidate",
				"name", loc.DisplayName, "area_km2", loc.AreaKm2, "max_km2", n.maxAreaKm2)
			continue
		}
		if best == nil ||
			loc.Importance > best.Importance ||
			(loc.Importance == best.Importance && loc.AreaKm2 < best.AreaKm2) {
			best = loc
		}
	}
	return best, nil
}

func (n *Nominatim) toLocation(r nominatimResult) (*model.ResolvedLocation, error) {
	lat, err := strconv.ParseFloat(r.Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid lat %q: %w", r.Lat, err)
	}
	lng, err := strconv.ParseFloat(r.Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid lon %q: %w", r.Lon, err)
	}

	var g orb.Geometry = orb.Point{lng, lat}
	if len(r.GeoJSON) > 0 {
		parsed, err := geojson.UnmarshalGeometry(r.GeoJSON)
		if err == nil && parsed.Geometry() != nil {
			g = parsed.Geometry()
		}
	}

	return &model.ResolvedLocation{
		DisplayName: r.DisplayName,
		Center:      orb.Point{lng, lat},
		Geometry:    g,
		AreaKm2:     geo.AreaKm2(g),
		Importance:  r.Importance,
		PlaceID:     r.PlaceID.String(),
	}, nil
}
