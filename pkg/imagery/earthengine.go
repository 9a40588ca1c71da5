package imagery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"geoquery/pkg/config"
	"geoquery/pkg/geo"
	"geoquery/pkg/request"
)

const (
	eeScope   = "https://www.googleapis.com/auth/earthengine"
	eeBaseURL = "https://earthengine.googleapis.com/v1"
)

// EarthEngine evaluates image pipelines against the Earth Engine REST
// API, authenticated as a service account. All traffic goes through the
// shared request client so queuing and backoff apply.
type EarthEngine struct {
	rc        *request.Client
	tokens    oauth2.TokenSource
	projectID string
	baseURL   string
}

// NewEarthEngine builds the backend from service-account credentials.
// Inline JSON wins over a credentials file path.
func NewEarthEngine(cfg config.ImageryConfig, rc *request.Client) (*EarthEngine, error) {
	data := []byte(cfg.CredentialsJSON)
	if len(data) == 0 && cfg.CredentialsPath != "" {
		b, err := os.ReadFile(cfg.CredentialsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read imagery credentials: %w", err)
		}
		data = b
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("no imagery credentials configured")
	}

	jwt, err := google.JWTConfigFromJSON(data, eeScope)
	if err != nil {
		return nil, fmt.Errorf("invalid imagery credentials: %w", err)
	}

	projectID := cfg.ProjectID
	if projectID == "" {
		var creds struct {
			ProjectID string `json:"project_id"`
		}
		if err := json.Unmarshal(data, &creds); err == nil {
			projectID = creds.ProjectID
		}
	}
	if projectID == "" {
		return nil, fmt.Errorf("imagery project id not configured")
	}

	baseURL := cfg.TileBaseURL
	if baseURL == "" {
		baseURL = eeBaseURL
	}

	return &EarthEngine{
		rc:        rc,
		tokens:    jwt.TokenSource(context.Background()),
		projectID: projectID,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
	}, nil
}

func (e *EarthEngine) authHeaders() (map[string]string, error) {
	tok, err := e.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to obtain imagery token: %w", err)
	}
	return map[string]string{
		"Authorization": "Bearer " + tok.AccessToken,
		"Content-Type":  "application/json",
	}, nil
}

// ReduceRegion implements Backend.
func (e *EarthEngine) ReduceRegion(ctx context.Context, img Image, g orb.Geometry, req ReduceRequest) (map[string]any, error) {
	expr := encodeExpression(img.Steps(), reduceTerminal(g, req))
	body, err := json.Marshal(map[string]any{"expression": expr})
	if err != nil {
		return nil, fmt.Errorf("failed to encode expression: %w", err)
	}

	headers, err := e.authHeaders()
	if err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s/projects/%s/value:compute", e.baseURL, e.projectID)
	start := time.Now()
	raw, err := e.rc.Post(ctx, u, body, headers)
	if err != nil {
		return nil, fmt.Errorf("reduce_region failed: %w", err)
	}
	slog.Debug("Imagery reduction complete",
		"scale_m", req.ScaleM, "reducers", req.Reducers, "elapsed", time.Since(start))

	var resp struct {
		Result map[string]any `json:"result"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse reduction result: %w", err)
	}
	if len(resp.Result) == 0 {
		return nil, ErrNoData
	}

	// All-null bands mean the region had no valid pixels at this scale.
	allNull := true
	for _, v := range resp.Result {
		if v != nil {
			allNull = false
			break
		}
	}
	if allNull {
		return nil, ErrNoData
	}
	return resp.Result, nil
}

// MapURL implements Backend.
func (e *EarthEngine) MapURL(ctx context.Context, img Image, vis VisParams) (string, error) {
	expr := encodeExpression(img.Steps(), nil)
	body, err := json.Marshal(map[string]any{
		"expression": expr,
		"fileFormat": "PNG",
		"bandIds":    vis.Bands,
		"visualizationOptions": map[string]any{
			"ranges":        []map[string]float64{{"min": vis.Min, "max": vis.Max}},
			"paletteColors": vis.Palette,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode map request: %w", err)
	}

	headers, err := e.authHeaders()
	if err != nil {
		return "", err
	}

	u := fmt.Sprintf("%s/projects/%s/maps", e.baseURL, e.projectID)
	raw, err := e.rc.Post(ctx, u, body, headers)
	if err != nil {
		return "", fmt.Errorf("map render failed: %w", err)
	}

	var resp struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil || resp.Name == "" {
		return "", fmt.Errorf("failed to parse map response")
	}
	return fmt.Sprintf("%s/%s/tiles/{z}/{x}/{y}", e.baseURL, resp.Name), nil
}

// SamplePoint implements Backend. The neighborhood is a square buffer one
// pixel wide at the requested scale.
func (e *EarthEngine) SamplePoint(ctx context.Context, img Image, p orb.Point, scaleM float64) (map[string]float64, error) {
	buf := geo.PointBuffer(p, scaleM)
	res, err := e.ReduceRegion(ctx, img, buf, ReduceRequest{
		Reducers:  []string{ReduceMean},
		ScaleM:    scaleM,
		MaxPixels: 1e6,
	})
	if err != nil {
		if err == ErrNoData {
			return nil, nil
		}
		return nil, err
	}

	out := make(map[string]float64, len(res))
	for band, v := range res {
		if n, ok := Number(v); ok {
			out[band] = n
		}
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

// SampleRegion implements Backend via the sample algorithm: random
// pixels inside the geometry, nulls dropped server-side.
func (e *EarthEngine) SampleRegion(ctx context.Context, img Image, g orb.Geometry, scaleM float64, numPixels int) ([]map[string]float64, error) {
	expr := encodeExpression(img.Steps(), sampleTerminal(g, scaleM, numPixels))
	body, err := json.Marshal(map[string]any{"expression": expr})
	if err != nil {
		return nil, fmt.Errorf("failed to encode sample expression: %w", err)
	}

	headers, err := e.authHeaders()
	if err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s/projects/%s/value:compute", e.baseURL, e.projectID)
	raw, err := e.rc.Post(ctx, u, body, headers)
	if err != nil {
		return nil, fmt.Errorf("sample failed: %w", err)
	}

	var resp struct {
		Result struct {
			Features []struct {
				Properties map[string]any `json:"properties"`
			} `json:"features"`
		} `json:"result"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse sample result: %w", err)
	}

	var out []map[string]float64
	for _, f := range resp.Result.Features {
		row := make(map[string]float64, len(f.Properties))
		for band, v := range f.Properties {
			if n, ok := Number(v); ok {
				row[band] = n
			}
		}
		if len(row) > 0 {
			out = append(out, row)
		}
	}
	return out, nil
}

// Healthy implements Backend: it forces a token fetch and probes the
// project's algorithms listing.
func (e *EarthEngine) Healthy(ctx context.Context) error {
	headers, err := e.authHeaders()
	if err != nil {
		return err
	}
	u := fmt.Sprintf("%s/projects/%s/algorithms?pageSize=1", e.baseURL, e.projectID)
	_, err = e.rc.GetWithHeaders(ctx, u, headers, "")
	return err
}

// --- expression encoding ---
//
// The REST API wants a graph of function invocations. We name each node
// sequentially and chain them; the last node is the result.

type exprNode struct {
	FunctionInvocationValue *funcInvocation `json:"functionInvocationValue,omitempty"`
	FunctionDefinitionValue *funcDefinition `json:"functionDefinitionValue,omitempty"`
	ConstantValue           any             `json:"constantValue,omitempty"`
	ValueReference          string          `json:"valueReference,omitempty"`
	ArgumentReference       string          `json:"argumentReference,omitempty"`
}

type funcInvocation struct {
	FunctionName string              `json:"functionName"`
	Arguments    map[string]exprNode `json:"arguments"`
}

type funcDefinition struct {
	ArgumentNames []string `json:"argumentNames"`
	Body          string   `json:"body"`
}

type exprGraph struct {
	names map[string]exprNode
	next  int
}

func (g *exprGraph) add(n exprNode) string {
	name := fmt.Sprintf("n%d", g.next)
	g.next++
	g.names[name] = n
	return name
}

func ref(name string) exprNode { return exprNode{ValueReference: name} }
func constant(v any) exprNode  { return exprNode{ConstantValue: v} }
func geomNode(gj any) exprNode { return constant(gj) }

func constantImage(v any) exprNode {
	return exprNode{FunctionInvocationValue: &funcInvocation{
		FunctionName: "Image.constant",
		Arguments:    map[string]exprNode{"value": constant(v)},
	}}
}

// encodeExpression lowers the step pipeline into the REST expression
// graph. terminal, when non-nil, wraps the image in a final reduction.
func encodeExpression(steps []Step, terminal func(g *exprGraph, cur string) string) map[string]any {
	g := &exprGraph{names: make(map[string]exprNode)}
	cur := g.lowerChain(steps)
	if terminal != nil {
		cur = terminal(g, cur)
	}

	values := make(map[string]any, len(g.names))
	for name, node := range g.names {
		values[name] = node
	}
	return map[string]any{
		"result": cur,
		"values": values,
	}
}

func (g *exprGraph) lowerChain(steps []Step) string {
	return g.lowerChainFrom(steps, "")
}

// lowerChainFrom lowers a step chain whose first operation may derive
// from an existing node. Pipelines that open with a load step ignore
// start.
func (g *exprGraph) lowerChainFrom(steps []Step, start string) string {
	cur := start
	for _, s := range steps {
		cur = g.add(g.lowerStep(s, cur))
	}
	return cur
}

func (g *exprGraph) lowerStep(s Step, prev string) exprNode {
	inv := func(name string, args map[string]exprNode) exprNode {
		return exprNode{FunctionInvocationValue: &funcInvocation{FunctionName: name, Arguments: args}}
	}

	switch s.Op {
	case "load_collection":
		return inv("ImageCollection.load", map[string]exprNode{"id": constant(s.Args["id"])})
	case "load_image":
		return inv("Image.load", map[string]exprNode{"id": constant(s.Args["id"])})
	case "filter_date":
		return inv("Collection.filterDate", map[string]exprNode{
			"collection": ref(prev),
			"start":      constant(s.Args["start"]),
			"end":        constant(s.Args["end"]),
		})
	case "filter_bounds":
		return inv("Collection.filterBounds", map[string]exprNode{
			"collection": ref(prev),
			"geometry":   geomNode(s.Args["geometry"]),
		})
	case "filter_property":
		return inv("Collection.filterMetadata", map[string]exprNode{
			"collection": ref(prev),
			"name":       constant(s.Args["name"]),
			"operator":   constant(s.Args["operator"]),
			"value":      constant(s.Args["value"]),
		})
	case "map":
		ops, _ := s.Args["ops"].([]Step)
		arg := fmt.Sprintf("img%d", g.next)
		body := g.lowerChainFrom(ops, g.add(exprNode{ArgumentReference: arg}))
		fn := g.add(exprNode{FunctionDefinitionValue: &funcDefinition{
			ArgumentNames: []string{arg},
			Body:          body,
		}})
		return inv("Collection.map", map[string]exprNode{
			"collection":    ref(prev),
			"baseAlgorithm": ref(fn),
		})
	case "median":
		return inv("ImageCollection.median", map[string]exprNode{"collection": ref(prev)})
	case "mode":
		return inv("ImageCollection.mode", map[string]exprNode{"collection": ref(prev)})
	case "select":
		return inv("Image.select", map[string]exprNode{
			"input":        ref(prev),
			"bandSelectors": constant(s.Args["bands"]),
		})
	case "normalized_difference":
		return inv("Image.normalizedDifference", map[string]exprNode{
			"input":     ref(prev),
			"bandNames": constant([]any{s.Args["band1"], s.Args["band2"]}),
		})
	case "multiply_add":
		return inv("Image.unitScale", map[string]exprNode{
			"input":  ref(prev),
			"factor": constant(s.Args["scale"]),
			"offset": constant(s.Args["offset"]),
		})
	case "clip":
		return inv("Image.clip", map[string]exprNode{
			"input":    ref(prev),
			"geometry": geomNode(s.Args["geometry"]),
		})
	case "rename":
		return inv("Image.rename", map[string]exprNode{
			"input": ref(prev),
			"names": constant([]any{s.Args["band"]}),
		})
	case "gte":
		return inv("Image.gte", map[string]exprNode{
			"image1": ref(prev),
			"image2": constantImage(s.Args["value"]),
		})
	case "eq":
		return inv("Image.eq", map[string]exprNode{
			"image1": ref(prev),
			"image2": constantImage(s.Args["value"]),
		})
	case "bitwise_and":
		return inv("Image.bitwiseAnd", map[string]exprNode{
			"image1": ref(prev),
			"image2": constantImage(s.Args["bits"]),
		})
	case "band_max":
		reducer := g.add(exprNode{FunctionInvocationValue: &funcInvocation{
			FunctionName: "Reducer.max",
			Arguments:    map[string]exprNode{},
		}})
		return inv("Image.reduce", map[string]exprNode{
			"image":   ref(prev),
			"reducer": ref(reducer),
		})
	case "mask_classes":
		classes, _ := s.Args["classes"].([]int)
		from := make([]any, len(classes))
		to := make([]any, len(classes))
		for i, c := range classes {
			from[i] = c
			to[i] = 1
		}
		return inv("Image.remap", map[string]exprNode{
			"image":        ref(prev),
			"from":         constant(from),
			"to":           constant(to),
			"defaultValue": constant(0),
		})
	case "update_mask":
		maskSteps, _ := s.Args["mask"].([]Step)
		maskRef := g.lowerChainFrom(maskSteps, prev)
		return inv("Image.updateMask", map[string]exprNode{
			"image": ref(prev),
			"mask":  ref(maskRef),
		})
	case "self_mask":
		return inv("Image.selfMask", map[string]exprNode{
			"image": ref(prev),
		})
	case "unmask":
		return inv("Image.unmask", map[string]exprNode{
			"input": ref(prev),
			"value": constantImage(s.Args["value"]),
		})
	}
	// Unknown ops pass the image through unchanged.
	return ref(prev)
}

func reduceTerminal(g orb.Geometry, req ReduceRequest) func(*exprGraph, string) string {
	return func(graph *exprGraph, cur string) string {
		reducer := graph.add(reducerNode(req.Reducers))
		node := exprNode{FunctionInvocationValue: &funcInvocation{
			FunctionName: "Image.reduceRegion",
			Arguments: map[string]exprNode{
				"image":      ref(cur),
				"reducer":    ref(reducer),
				"geometry":   geomNode(geojson.NewGeometry(g)),
				"scale":      constant(req.ScaleM),
				"maxPixels":  constant(req.MaxPixels),
				"bestEffort": constant(req.BestEffort),
			},
		}}
		return graph.add(node)
	}
}

func sampleTerminal(g orb.Geometry, scaleM float64, numPixels int) func(*exprGraph, string) string {
	return func(graph *exprGraph, cur string) string {
		node := exprNode{FunctionInvocationValue: &funcInvocation{
			FunctionName: "Image.sample",
			Arguments: map[string]exprNode{
				"image":     ref(cur),
				"region":    geomNode(geojson.NewGeometry(g)),
				"scale":     constant(scaleM),
				"numPixels": constant(numPixels),
				"dropNulls": constant(true),
			},
		}}
		return graph.add(node)
	}
}

func reducerNode(reducers []string) exprNode {
	mk := func(name string) exprNode {
		args := map[string]exprNode{}
		if name == ReducePercentile {
			args["percentiles"] = constant([]any{10, 90})
		}
		return exprNode{FunctionInvocationValue: &funcInvocation{
			FunctionName: "Reducer." + name,
			Arguments:    args,
		}}
	}
	if len(reducers) == 0 {
		return mk(ReduceMean)
	}
	node := mk(reducers[0])
	for _, r := range reducers[1:] {
		node = exprNode{FunctionInvocationValue: &funcInvocation{
			FunctionName: "Reducer.combine",
			Arguments: map[string]exprNode{
				"reducer1":     node,
				"reducer2":     mk(r),
				"sharedInputs": constant(true),
			},
		}}
	}
	return node
}
