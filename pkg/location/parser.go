package location

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"geoquery/pkg/geo"
	"geoquery/pkg/geocode"
	"geoquery/pkg/llm"
	"geoquery/pkg/model"
)

const (
	nerDeadline     = 15 * time.Second
	geocodeDeadline = 8 * time.Second
	maxEntities     = 5
	coordBufferM    = 1000
)

const nerPrompt = `Extract every location mention from the text below. For each, report the name
exactly as written, its type (city, state, district, country, point, other),
and your confidence 0..1.

Respond with a JSON object: {"locations": [{"matched_name": "...", "type": "...", "confidence": 0.9}]}
Use an empty list when the text names no location.

Text: %q`

// Parser resolves the location mentions of a query into a request ROI.
// Extraction prefers the NER model and degrades to coordinate parsing and
// the bundled gazetteer; geocoding always goes through the Geocoder.
type Parser struct {
	provider    llm.Provider
	geocoder    geocode.Geocoder
	gazetteer   *geo.Gazetteer
	countryBias string
}

// New creates a Parser. provider and gazetteer may be nil; geocoder must
// not be.
func New(provider llm.Provider, geocoder geocode.Geocoder, gazetteer *geo.Gazetteer, countryBias string) *Parser {
	return &Parser{
		provider:    provider,
		geocoder:    geocoder,
		gazetteer:   gazetteer,
		countryBias: countryBias,
	}
}

type nerReply struct {
	Locations []struct {
		MatchedName string  `json:"matched_name"`
		Type        string  `json:"type"`
		Confidence  float64 `json:"confidence"`
	} `json:"locations"`
}

// Parse runs extraction and resolution. It never panics and always
// returns a result; Success is false only when no ROI could be derived
// at all.
func (p *Parser) Parse(ctx context.Context, query string) *model.LocationParseResult {
	start := time.Now()
	res := &model.LocationParseResult{}
	defer func() {
		res.ProcessingTime = time.Since(start)
		res.ProcessingSecs = res.ProcessingTime.Seconds()
	}()

	// Literal coordinates in the query win over everything else.
	if lat, lng, ok := geo.ParseCoordinates(query); ok {
		pt := orb.Point{lng, lat}
		loc := model.ResolvedLocation{
			DisplayName: fmt.Sprintf("%.5f, %.5f", lat, lng),
			Center:      pt,
			Geometry:    pt,
			Importance:  1.0,
		}
		res.Entities = []model.LocationEntity{{
			MatchedName: loc.DisplayName,
			Type:        model.LocationPoint,
			Confidence:  1.0,
		}}
		res.Resolved = []model.ResolvedLocation{loc}
		res.Primary = &res.Resolved[0]
		res.ROIGeometry = geo.PointBuffer(pt, coordBufferM)
		res.ROISource = model.ROIQueryCoordinates
		res.Success = true
		return res
	}

	entities, extracted := p.extract(ctx, query)
	if !extracted {
		res.Error = "no location could be extracted from query"
		return res
	}
	// Extraction worked and the query names no location: a valid query
	// with no ROI, left to the downstream default.
	if len(entities) == 0 {
		res.ROISource = model.ROIDefault
		res.Success = true
		return res
	}
	if len(entities) > maxEntities {
		entities = entities[:maxEntities]
	}
	res.Entities = entities

	res.Resolved = p.geocodeAll(ctx, entities)
	if len(res.Resolved) == 0 {
		res.ROISource = model.ROIDefault
		res.Success = true
		return res
	}

	// Primary location: extraction confidence weighted by geocoder
	// importance, so a confidently-mentioned hamlet does not beat a
	// hesitantly-mentioned metropolis.
	bestScore := -1.0
	for i := range res.Resolved {
		score := res.Resolved[i].Importance
		for _, e := range entities {
			if strings.EqualFold(e.MatchedName, res.Resolved[i].DisplayName) ||
				strings.Contains(strings.ToLower(res.Resolved[i].DisplayName), strings.ToLower(e.MatchedName)) {
				score = e.Confidence * res.Resolved[i].Importance
				break
			}
		}
		if score > bestScore {
			bestScore = score
			res.Primary = &res.Resolved[i]
		}
	}

	res.ROIGeometry = res.Primary.Geometry
	if _, isPoint := res.ROIGeometry.(orb.Point); isPoint {
		res.ROIGeometry = geo.PointBuffer(res.Primary.Center, coordBufferM)
	}
	res.ROISource = model.ROIGeocoded
	res.Success = true
	return res
}

// extract tries the NER model first, then the gazetteer. The bool
// reports whether extraction itself worked: a clean NER reply with zero
// locations is extracted=true, a dead model with no gazetteer match is
// not.
func (p *Parser) extract(ctx context.Context, query string) ([]model.LocationEntity, bool) {
	if p.provider != nil {
		nctx, cancel := context.WithTimeout(ctx, nerDeadline)
		defer cancel()

		var reply nerReply
		err := p.provider.GenerateJSON(nctx, llm.ProfileNER, fmt.Sprintf(nerPrompt, query), &reply)
		if err == nil {
			var out []model.LocationEntity
			for _, l := range reply.Locations {
				name := strings.TrimSpace(l.MatchedName)
				if name == "" {
					continue
				}
				out = append(out, model.LocationEntity{
					MatchedName: name,
					Type:        parseLocationType(l.Type),
					Confidence:  l.Confidence,
				})
			}
			return out, true
		}
		slog.Warn("NER model unavailable, falling back to gazetteer", "error", err)
	}

	if p.gazetteer == nil {
		return nil, false
	}
	var out []model.LocationEntity
	for _, place := range p.gazetteer.Match(query) {
		out = append(out, model.LocationEntity{
			MatchedName: place.Name,
			Type:        parseLocationType(place.Type),
			Confidence:  0.6,
		})
	}
	return out, len(out) > 0
}

// geocodeAll resolves entities concurrently with a per-call deadline.
// Order of the output follows the input entity order.
func (p *Parser) geocodeAll(ctx context.Context, entities []model.LocationEntity) []model.ResolvedLocation {
	results := make([]*model.ResolvedLocation, len(entities))
	var wg sync.WaitGroup
	for i, e := range entities {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			gctx, cancel := context.WithTimeout(ctx, geocodeDeadline)
			defer cancel()

			loc, err := p.geocoder.Search(gctx, name, p.countryBias)
			if err != nil {
				slog.Warn("Geocoding failed", "name", name, "error", err)
				return
			}
			results[i] = loc
		}(i, e.MatchedName)
	}
	wg.Wait()

	var out []model.ResolvedLocation
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

func parseLocationType(s string) model.LocationType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "city", "town", "village":
		return model.LocationCity
	case "state", "province", "region":
		return model.LocationState
	case "district", "county":
		return model.LocationDistrict
	case "country":
		return model.LocationCountry
	case "point", "coordinates":
		return model.LocationPoint
	}
	return model.LocationOther
}
