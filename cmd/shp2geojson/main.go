// Command shp2geojson converts a shapefile into the GeoJSON layout the
// gazetteer loads: one feature per place with "name" and "type"
// properties. Use -name-field/-type-field to map shapefile attribute
// columns (e.g. NAME/FEATURECLA in Natural Earth populated places).
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

func main() {
	inputPath := flag.String("input", "", "Path to input .shp file")
	outputPath := flag.String("output", "", "Path to output .geojson file")
	nameField := flag.String("name-field", "NAME", "Attribute column holding the place name")
	typeField := flag.String("type-field", "", "Attribute column holding the place type (optional)")
	placeType := flag.String("type", "city", "Fixed place type when -type-field is unset")
	flag.Parse()

	if *inputPath == "" || *outputPath == "" {
		flag.Usage()
		log.Fatal("Input and output paths are required")
	}

	if err := run(*inputPath, *outputPath, *nameField, *typeField, *placeType); err != nil {
		log.Fatal(err)
	}
}

func run(inputPath, outputPath, nameField, typeField, placeType string) error {
	shape, err := shp.Open(inputPath)
	if err != nil {
		return fmt.Errorf("failed to open shapefile: %w", err)
	}
	defer shape.Close()

	fields := shape.Fields()
	nameIdx, typeIdx := -1, -1
	for i, f := range fields {
		if strings.EqualFold(f.String(), nameField) {
			nameIdx = i
		}
		if typeField != "" && strings.EqualFold(f.String(), typeField) {
			typeIdx = i
		}
	}
	if nameIdx < 0 {
		return fmt.Errorf("name field %q not found in shapefile attributes", nameField)
	}

	fc := geojson.NewFeatureCollection()
	skipped := 0

	for shape.Next() {
		n, p := shape.Shape()

		var geometry orb.Geometry
		switch s := p.(type) {
		case *shp.Null:
			continue
		case *shp.Point:
			geometry = orb.Point{s.X, s.Y}
		case *shp.PolyLine:
			geometry = convertPolyLine(s)
		case *shp.Polygon:
			geometry = convertPolygon(s)
		default:
			skipped++
			continue
		}

		name := strings.TrimSpace(shape.ReadAttribute(n, nameIdx))
		if name == "" {
			skipped++
			continue
		}

		f := geojson.NewFeature(geometry)
		f.Properties["name"] = name
		if typeIdx >= 0 {
			f.Properties["type"] = strings.ToLower(strings.TrimSpace(shape.ReadAttribute(n, typeIdx)))
		} else {
			f.Properties["type"] = placeType
		}
		fc.Append(f)
	}

	if err := shape.Err(); err != nil {
		return fmt.Errorf("error iterating shapes: %w", err)
	}

	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal GeoJSON: %w", err)
	}

	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}

	fmt.Printf("Converted %d places to %s (%d skipped)\n", len(fc.Features), outputPath, skipped)
	return nil
}

func convertPolyLine(s *shp.PolyLine) orb.MultiLineString {
	var multiline orb.MultiLineString
	for i := 0; i < int(s.NumParts); i++ {
		start := s.Parts[i]
		end := s.NumPoints
		if i < int(s.NumParts)-1 {
			end = s.Parts[i+1]
		}
		var line orb.LineString
		for j := start; j < end; j++ {
			line = append(line, orb.Point{s.Points[j].X, s.Points[j].Y})
		}
		multiline = append(multiline, line)
	}
	return multiline
}

func convertPolygon(s *shp.Polygon) orb.Polygon {
	var poly orb.Polygon
	for i := 0; i < int(s.NumParts); i++ {
		start := s.Parts[i]
		end := s.NumPoints
		if i < int(s.NumParts)-1 {
			end = s.Parts[i+1]
		}
		var ring orb.Ring
		for j := start; j < end; j++ {
			ring = append(ring, orb.Point{s.Points[j].X, s.Points[j].Y})
		}
		poly = append(poly, ring)
	}
	return poly
}
