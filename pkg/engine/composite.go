package engine

import (
	"github.com/paulmach/orb"

	"geoquery/pkg/imagery"
)

// Composite builders. Each returns a lazy single-band image for the
// indicator over the given window and bounds; reduction geometry is
// applied later, per tile.

// The metadata cloud filter only drops the worst scenes; the remaining
// ones still carry clouds, so each image is masked per pixel before the
// temporal reduction.

func ndviComposite(roi orb.Geometry, start, end string) imagery.Image {
	cloudFree := imagery.Pipe().Select("QA60").BitwiseAnd(s2CloudBit | s2CirrusBit).Eq(0)
	perImage := imagery.Pipe().
		UpdateMask(cloudFree).
		NormalizedDifference("B8", "B4").
		Rename("NDVI")
	return imagery.NewCollection(dsSentinel2).
		FilterBounds(roi).
		FilterDate(start, end).
		FilterProperty("CLOUDY_PIXEL_PERCENTAGE", "less_than", 20).
		Map(perImage).
		Median().
		Rename("NDVI")
}

func lstComposite(roi orb.Geometry, start, end string) imagery.Image {
	// MOD11A2 packs Kelvin*50 into DN; 0.02 scale then Celsius offset.
	goodQuality := imagery.Pipe().Select("QC_Day").BitwiseAnd(lstQualityBits).Eq(0)
	perImage := imagery.Pipe().
		UpdateMask(goodQuality).
		Select("LST_Day_1km")
	return imagery.NewCollection(dsModisLST).
		FilterBounds(roi).
		FilterDate(start, end).
		Map(perImage).
		Median().
		MultiplyAdd(0.02, -273.15).
		Rename("LST")
}

func lulcComposite(roi orb.Geometry, start, end string) imagery.Image {
	confident := imagery.Pipe().
		Select(dwProbabilityBands...).
		BandMax().
		Gte(dwConfidenceThreshold)
	perImage := imagery.Pipe().
		UpdateMask(confident).
		Select("label")
	return imagery.NewCollection(dsDynamicWorld).
		FilterBounds(roi).
		FilterDate(start, end).
		Map(perImage).
		Mode().
		Rename("label")
}

// waterOccurrence is the static occurrence band; waterMask thresholds it
// into a 0/1 surface-water mask.
func waterOccurrence() imagery.Image {
	return imagery.NewImage(dsJRCWater).Select("occurrence").Rename("occurrence")
}

func waterMask(threshold float64) imagery.Image {
	return waterOccurrence().Gte(threshold).Rename("water")
}

func waterSeasonality() imagery.Image {
	return imagery.NewImage(dsJRCWater).Select("seasonality").Rename("seasonality")
}

func waterTransition() imagery.Image {
	return imagery.NewImage(dsJRCWater).Select("transition").Rename("transition")
}

func waterMaxExtent() imagery.Image {
	return imagery.NewImage(dsJRCWater).Select("max_extent").Rename("max_extent")
}
