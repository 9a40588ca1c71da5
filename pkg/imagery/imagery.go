package imagery

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Image is a lazy raster computation: a collection source followed by a
// chain of operations. Nothing touches the network until a Backend
// evaluates it. Values are immutable; every builder method returns a new
// Image.
type Image struct {
	steps []Step
}

// Step is one operation in an image pipeline.
type Step struct {
	Op   string         `json:"op"`
	Args map[string]any `json:"args,omitempty"`
}

// NewCollection starts a pipeline from a named image collection.
func NewCollection(id string) Image {
	return Image{steps: []Step{{Op: "load_collection", Args: map[string]any{"id": id}}}}
}

// NewImage starts a pipeline from a single named asset.
func NewImage(id string) Image {
	return Image{steps: []Step{{Op: "load_image", Args: map[string]any{"id": id}}}}
}

// Pipe starts an empty pipeline whose operations apply to whatever
// image it is attached to. Used for Map bodies and same-image masks.
func Pipe() Image {
	return Image{}
}

func (i Image) with(op string, args map[string]any) Image {
	steps := make([]Step, len(i.steps), len(i.steps)+1)
	copy(steps, i.steps)
	return Image{steps: append(steps, Step{Op: op, Args: args})}
}

// FilterDate restricts the collection to [start, end] (YYYY-MM-DD).
func (i Image) FilterDate(start, end string) Image {
	return i.with("filter_date", map[string]any{"start": start, "end": end})
}

// FilterBounds restricts the collection to images intersecting the geometry.
func (i Image) FilterBounds(g orb.Geometry) Image {
	return i.with("filter_bounds", map[string]any{"geometry": geojson.NewGeometry(g)})
}

// FilterProperty keeps images whose metadata property passes the
// comparison, e.g. ("CLOUDY_PIXEL_PERCENTAGE", "less_than", 20).
func (i Image) FilterProperty(name, op string, value any) Image {
	return i.with("filter_property", map[string]any{"name": name, "operator": op, "value": value})
}

// Map applies the fn pipeline to every image in the collection before
// compositing. fn is usually built with Pipe.
func (i Image) Map(fn Image) Image {
	return i.with("map", map[string]any{"ops": fn.steps})
}

// Median reduces the collection to its per-pixel median composite.
func (i Image) Median() Image {
	return i.with("median", nil)
}

// Mode reduces the collection to its per-pixel mode composite. Used for
// categorical bands where median would invent classes.
func (i Image) Mode() Image {
	return i.with("mode", nil)
}

// Select keeps only the named bands.
func (i Image) Select(bands ...string) Image {
	return i.with("select", map[string]any{"bands": bands})
}

// NormalizedDifference computes (b1-b2)/(b1+b2) as band "nd".
func (i Image) NormalizedDifference(b1, b2 string) Image {
	return i.with("normalized_difference", map[string]any{"band1": b1, "band2": b2})
}

// MultiplyAdd applies a linear rescale: pixel*scale + offset. This is how
// packed integer bands become physical units.
func (i Image) MultiplyAdd(scale, offset float64) Image {
	return i.with("multiply_add", map[string]any{"scale": scale, "offset": offset})
}

// Clip masks the image to the geometry.
func (i Image) Clip(g orb.Geometry) Image {
	return i.with("clip", map[string]any{"geometry": geojson.NewGeometry(g)})
}

// Rename renames the single band of the image.
func (i Image) Rename(band string) Image {
	return i.with("rename", map[string]any{"band": band})
}

// Gte produces a 0/1 mask: pixel >= value.
func (i Image) Gte(value float64) Image {
	return i.with("gte", map[string]any{"value": value})
}

// Eq produces a 0/1 mask: pixel == value.
func (i Image) Eq(value float64) Image {
	return i.with("eq", map[string]any{"value": value})
}

// BitwiseAnd computes pixel & bits. Used to read QA bitmask bands.
func (i Image) BitwiseAnd(bits int) Image {
	return i.with("bitwise_and", map[string]any{"bits": bits})
}

// BandMax collapses all bands to their per-pixel maximum.
func (i Image) BandMax() Image {
	return i.with("band_max", nil)
}

// MaskClasses produces a 0/1 mask that is 1 where the categorical pixel
// value is in classes.
func (i Image) MaskClasses(classes ...int) Image {
	return i.with("mask_classes", map[string]any{"classes": classes})
}

// UpdateMask masks this image wherever mask is zero. The mask pipeline is
// evaluated as part of the same expression; a mask built with Pipe
// derives from the image being masked.
func (i Image) UpdateMask(mask Image) Image {
	return i.with("update_mask", map[string]any{"mask": mask.steps})
}

// SelfMask masks the image by its own nonzero pixels.
func (i Image) SelfMask() Image {
	return i.with("self_mask", nil)
}

// Unmask replaces masked pixels with value, making the image valid
// everywhere. Needed when a mask's zero class matters to a mean.
func (i Image) Unmask(value float64) Image {
	return i.with("unmask", map[string]any{"value": value})
}

// Steps exposes the pipeline for backend evaluation.
func (i Image) Steps() []Step {
	return i.steps
}

// Key returns a stable digest of the pipeline, for cache keys.
func (i Image) Key() string {
	data, _ := json.Marshal(i.steps)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}

// Reducer names accepted by ReduceRegion.
const (
	ReduceMean      = "mean"
	ReduceMinMax    = "minMax"
	ReduceStdDev    = "stdDev"
	ReduceCount     = "count"
	ReduceHistogram = "frequencyHistogram"
	ReduceMode      = "mode"
	// ReducePercentile computes the 10th and 90th percentiles; outputs
	// arrive as band_p10 / band_p90.
	ReducePercentile = "percentile"
)

// ReduceRequest parameterizes a region reduction.
type ReduceRequest struct {
	Reducers  []string
	ScaleM    float64
	MaxPixels int64
	// BestEffort lets the backend coarsen the scale instead of failing
	// when the pixel budget is exceeded.
	BestEffort bool
}

// VisParams configures map tile rendering.
type VisParams struct {
	Bands   []string `json:"bands,omitempty"`
	Min     float64  `json:"min"`
	Max     float64  `json:"max"`
	Palette []string `json:"palette,omitempty"`
}

// Backend evaluates image pipelines. Implementations must be safe for
// concurrent use; the engine fans tile reductions out across goroutines.
type Backend interface {
	// ReduceRegion computes regional statistics. Histogram reducers
	// return nested map[string]any values keyed by class.
	ReduceRegion(ctx context.Context, img Image, g orb.Geometry, req ReduceRequest) (map[string]any, error)

	// MapURL renders the image and returns a slippy tile URL template
	// containing {z}/{x}/{y} placeholders.
	MapURL(ctx context.Context, img Image, vis VisParams) (string, error)

	// SamplePoint reduces a small neighborhood around a point to the
	// per-band mean. A nil map with nil error means no data there.
	SamplePoint(ctx context.Context, img Image, p orb.Point, scaleM float64) (map[string]float64, error)

	// SampleRegion draws up to numPixels random pixel values from the
	// geometry, dropping nulls. Used when histogram reducers come back
	// empty.
	SampleRegion(ctx context.Context, img Image, g orb.Geometry, scaleM float64, numPixels int) ([]map[string]float64, error)

	// Healthy verifies credentials and reachability.
	Healthy(ctx context.Context) error
}

// Number coerces a reduction value to float64; reduction outputs arrive
// as json-decoded any.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// Histogram coerces a frequencyHistogram value into class counts.
func Histogram(v any) (map[string]float64, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	out := make(map[string]float64, len(m))
	for k, raw := range m {
		n, ok := Number(raw)
		if !ok {
			return nil, false
		}
		out[k] = n
	}
	return out, true
}

// ErrNoData reports that a reduction produced no valid pixels.
var ErrNoData = fmt.Errorf("no valid pixels in region")
