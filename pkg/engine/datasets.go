package engine

import "geoquery/pkg/imagery"

// Dataset identifiers. These name the collections the imagery backend
// loads; swapping providers means swapping this table.
const (
	dsSentinel2     = "COPERNICUS/S2_SR_HARMONIZED"
	dsModisLST      = "MODIS/061/MOD11A2"
	dsModisLC       = "MODIS/061/MCD12Q1"
	dsDynamicWorld  = "GOOGLE/DYNAMICWORLD/V1"
	dsESAWorldCover = "ESA/WorldCover/v200"
	dsJRCWater      = "JRC/GSW1_4/GlobalSurfaceWater"
)

// LULC class table: Dynamic World labels 0..8.
var lulcClasses = map[int]string{
	0: "water",
	1: "trees",
	2: "grass",
	3: "flooded_vegetation",
	4: "crops",
	5: "shrub_and_scrub",
	6: "built",
	7: "bare",
	8: "snow_and_ice",
}

var lulcPalette = []string{
	"419bdf", "397d49", "88b053", "7a87c6", "e49635",
	"dfc35a", "c4281b", "a59b8f", "b39fe1",
}

// Dynamic World per-class probability bands, in label order.
var dwProbabilityBands = []string{
	"water", "trees", "grass", "flooded_vegetation", "crops",
	"shrub_and_scrub", "built", "bare", "snow_and_ice",
}

// Minimum top-class probability for a Dynamic World label pixel to count.
const dwConfidenceThreshold = 0.5

// Sentinel-2 QA60 bitmask bits: opaque clouds and cirrus.
const (
	s2CloudBit  = 1 << 10
	s2CirrusBit = 1 << 11
)

// MOD11A2 QC_Day mandatory-QA bits; 0 means good quality.
const lstQualityBits = 0x3

// Water occurrence threshold (percent of observations wet).
const waterOccurrenceThreshold = 20.0

// Seasonality band classes in the JRC dataset.
const (
	seasonalityPermanentMin = 12 // wet all 12 months
	seasonalitySeasonalMin  = 1
)

// Visualization parameters per indicator.
var visTable = map[string]imagery.VisParams{
	"ndvi": {
		Min:     -0.2,
		Max:     0.8,
		Palette: []string{"d73027", "fdae61", "fee08b", "d9ef8b", "a6d96a", "1a9850"},
	},
	"lst": {
		Min:     15,
		Max:     45,
		Palette: []string{"313695", "74add1", "fed976", "feb24c", "fd8d3c", "f46d43", "d73027"},
	},
	"lulc": {
		Min:     0,
		Max:     8,
		Palette: lulcPalette,
	},
	"water": {
		Min:     0,
		Max:     1,
		Palette: []string{"ffffff", "0000ff"},
	},
}

// NDVI vegetation class bins, inclusive lower bound.
var ndviBins = []struct {
	Name string
	Min  float64
	Max  float64
}{
	{"water_or_barren", -1.0, 0.1},
	{"sparse_vegetation", 0.1, 0.3},
	{"moderate_vegetation", 0.3, 0.5},
	{"dense_vegetation", 0.5, 1.0},
}
