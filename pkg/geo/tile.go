package geo

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/clip"
)

// Tile is one processing sub-polygon of a tiled ROI.
type Tile struct {
	ID       int
	Geometry orb.Geometry
	AreaKm2  float64
}

// TileROI partitions an ROI into grid tiles whose individual areas stay
// within budgetKm2. Tiles are rectangular bbox cells clipped to the ROI,
// so they cover it exactly with zero-measure overlaps. Tiles are returned
// in scan order (west to east, south to north) and carry stable IDs.
func TileROI(roi orb.Geometry, budgetKm2 float64) []Tile {
	total := AreaKm2(roi)
	if total <= 0 {
		return nil
	}
	if total <= budgetKm2 {
		return []Tile{{ID: 0, Geometry: roi, AreaKm2: total}}
	}

	n := int(math.Ceil(total / budgetKm2))
	cols := int(math.Ceil(math.Sqrt(float64(n))))
	rows := int(math.Ceil(float64(n) / float64(cols)))

	bound := roi.Bound()
	dx := (bound.Max[0] - bound.Min[0]) / float64(cols)
	dy := (bound.Max[1] - bound.Min[1]) / float64(rows)

	var tiles []Tile
	id := 0
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			cell := orb.Bound{
				Min: orb.Point{bound.Min[0] + float64(col)*dx, bound.Min[1] + float64(row)*dy},
				Max: orb.Point{bound.Min[0] + float64(col+1)*dx, bound.Min[1] + float64(row+1)*dy},
			}
			clipped := clip.Geometry(cell, roi)
			if clipped == nil {
				continue
			}
			area := AreaKm2(clipped)
			if area <= 0 {
				continue
			}
			tiles = append(tiles, Tile{ID: id, Geometry: clipped, AreaKm2: area})
			id++
		}
	}
	return tiles
}

// GridCell is one cell of a sampling grid laid over an ROI.
type GridCell struct {
	ID       int
	Geometry orb.Geometry
	Center   orb.Point
	AreaKm2  float64
}

// GridCells overlays an equirectangular grid on the ROI bounding box with
// the given cell side in kilometers, returning cells that intersect the
// ROI in scan order (west to east, south to north). Cell geometry is the
// intersection of the cell rectangle with the ROI.
func GridCells(roi orb.Geometry, cellKm float64) []GridCell {
	if roi == nil || cellKm <= 0 {
		return nil
	}

	cellDeg := cellKm / 111.0
	bound := roi.Bound()

	var cells []GridCell
	id := 0
	for lat := bound.Min[1]; lat < bound.Max[1]; lat += cellDeg {
		for lng := bound.Min[0]; lng < bound.Max[0]; lng += cellDeg {
			cell := orb.Bound{
				Min: orb.Point{lng, lat},
				Max: orb.Point{math.Min(lng+cellDeg, bound.Max[0]), math.Min(lat+cellDeg, bound.Max[1])},
			}
			clipped := clip.Geometry(cell, roi)
			if clipped == nil {
				continue
			}
			area := AreaKm2(clipped)
			if area <= 0 {
				continue
			}
			cells = append(cells, GridCell{
				ID:       id,
				Geometry: clipped,
				Center:   cell.Center(),
				AreaKm2:  area,
			})
			id++
		}
	}
	return cells
}
