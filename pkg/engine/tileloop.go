package engine

import (
	"context"
	"sync"

	"geoquery/pkg/config"
	"geoquery/pkg/geo"
	"geoquery/pkg/imagery"
)

// reduceTilesContinuous fans the continuous reduction out across tiles.
// Tiles with no data are skipped; any other tile error fails the whole
// loop. The bool reports whether any tile needed the coarser retry.
func (e *Engine) reduceTilesContinuous(ctx context.Context, img imagery.Image, tiles []geo.Tile, band string, budget config.IndicatorBudget) ([]tileStats, bool, error) {
	type outcome struct {
		ts      tileStats
		retried bool
		err     error
	}
	outcomes := make([]outcome, len(tiles))

	var wg sync.WaitGroup
	for i, t := range tiles {
		wg.Add(1)
		go func(i int, t geo.Tile) {
			defer wg.Done()
			s, retried, err := e.reduceContinuous(ctx, img, t.Geometry, band, budget, t.AreaKm2)
			outcomes[i] = outcome{
				ts:      tileStats{TileID: t.ID, AreaKm2: t.AreaKm2, Stats: s},
				retried: retried,
				err:     err,
			}
		}(i, t)
	}
	wg.Wait()

	var out []tileStats
	anyRetried := false
	for _, o := range outcomes {
		if o.retried {
			anyRetried = true
		}
		if o.err != nil {
			if o.err == imagery.ErrNoData {
				continue
			}
			return nil, anyRetried, o.err
		}
		out = append(out, o.ts)
	}
	if len(out) == 0 {
		return nil, anyRetried, imagery.ErrNoData
	}
	return out, anyRetried, nil
}

// reduceTilesHistogram fans the histogram reduction out across tiles and
// returns per-tile class percentages plus the set of methods used.
func (e *Engine) reduceTilesHistogram(ctx context.Context, img imagery.Image, tiles []geo.Tile, band string, budget config.IndicatorBudget, bin func(float64) string) ([]tileClasses, []string, error) {
	type outcome struct {
		tc     tileClasses
		method string
		err    error
	}
	outcomes := make([]outcome, len(tiles))

	var wg sync.WaitGroup
	for i, t := range tiles {
		wg.Add(1)
		go func(i int, t geo.Tile) {
			defer wg.Done()
			h, err := e.reduceHistogram(ctx, img, t.Geometry, band, budget, t.AreaKm2, bin)
			outcomes[i] = outcome{
				tc:     tileClasses{TileID: t.ID, AreaKm2: t.AreaKm2, Percentages: percentages(h.Counts)},
				method: h.Method,
				err:    err,
			}
		}(i, t)
	}
	wg.Wait()

	var out []tileClasses
	methodSet := make(map[string]bool)
	for _, o := range outcomes {
		if o.err != nil {
			if o.err == imagery.ErrNoData {
				continue
			}
			return nil, nil, o.err
		}
		out = append(out, o.tc)
		methodSet[o.method] = true
	}
	if len(out) == 0 {
		return nil, nil, imagery.ErrNoData
	}

	var methods []string
	for _, m := range []string{"frequency_histogram", "point_sampling", "basic_stats"} {
		if methodSet[m] {
			methods = append(methods, m)
		}
	}
	return out, methods, nil
}
