package model

import (
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Query is the immutable input to the pipeline.
type Query struct {
	Text      string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// LocationType classifies a recognized location entity.
type LocationType string

const (
	LocationCity     LocationType = "city"
	LocationState    LocationType = "state"
	LocationDistrict LocationType = "district"
	LocationCountry  LocationType = "country"
	LocationPoint    LocationType = "point"
	LocationOther    LocationType = "other"
)

// LocationEntity is a location mention extracted from the query text.
type LocationEntity struct {
	MatchedName string       `json:"matched_name"`
	Type        LocationType `json:"type"`
	Confidence  float64      `json:"confidence"`
}

// ResolvedLocation is a geocoded location. Created by the geocoder,
// never mutated afterwards.
type ResolvedLocation struct {
	DisplayName string       `json:"display_name"`
	Center      orb.Point    `json:"center"`
	Geometry    orb.Geometry `json:"-"`
	AreaKm2     float64      `json:"area_km2"`
	Importance  float64      `json:"importance"`
	PlaceID     string       `json:"place_id"`
}

// ROISource records where the request ROI came from.
type ROISource string

const (
	ROIGeocoded         ROISource = "geocoded"
	ROIQueryCoordinates ROISource = "query_coordinates"
	ROIDefault          ROISource = "default"
)

// LocationParseResult aggregates the output of the location parsing stage.
type LocationParseResult struct {
	Entities       []LocationEntity   `json:"entities"`
	Resolved       []ResolvedLocation `json:"resolved_locations"`
	Primary        *ResolvedLocation  `json:"primary_location,omitempty"`
	ROIGeometry    orb.Geometry       `json:"-"`
	ROISource      ROISource          `json:"roi_source"`
	Success        bool               `json:"success"`
	ProcessingTime time.Duration      `json:"-"`
	ProcessingSecs float64            `json:"processing_time"`
	Error          string             `json:"error,omitempty"`
}

// ROIFeature builds the GeoJSON feature for the request ROI, or nil when
// no geometry was resolved.
func (r *LocationParseResult) ROIFeature() *geojson.Feature {
	if r.ROIGeometry == nil {
		return nil
	}
	f := geojson.NewFeature(r.ROIGeometry)
	if r.Primary != nil {
		f.Properties["name"] = r.Primary.DisplayName
		f.Properties["area_km2"] = r.Primary.AreaKm2
	}
	f.Properties["source"] = string(r.ROISource)
	return f
}
