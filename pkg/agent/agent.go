package agent

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"geoquery/pkg/format"
	"geoquery/pkg/model"
)

// LocationParser resolves the query's locations.
type LocationParser interface {
	Parse(ctx context.Context, query string) *model.LocationParseResult
}

// IntentClassifier classifies the query.
type IntentClassifier interface {
	Classify(ctx context.Context, query string) *model.IntentResult
}

// ServiceDispatcher routes the classified query to a backend.
type ServiceDispatcher interface {
	Dispatch(ctx context.Context, q model.Query, loc *model.LocationParseResult, intent *model.IntentResult, ev *model.Evidence) *model.ServiceResult
}

// Agent runs the full pipeline for one query: location parsing and
// intent classification in parallel, then dispatch, then formatting.
// Stateless across requests.
type Agent struct {
	parser     LocationParser
	classifier IntentClassifier
	dispatcher ServiceDispatcher
	formatter  *format.Formatter
	deadline   time.Duration
}

// New creates an Agent. deadline bounds the whole request; zero means
// no limit beyond the caller's context.
func New(parser LocationParser, classifier IntentClassifier, dispatcher ServiceDispatcher, deadline time.Duration) *Agent {
	return &Agent{
		parser:     parser,
		classifier: classifier,
		dispatcher: dispatcher,
		formatter:  format.New(),
		deadline:   deadline,
	}
}

// Handle processes one query end to end.
func (a *Agent) Handle(ctx context.Context, q model.Query) *model.FinalResponse {
	return a.HandleWithSink(ctx, q, nil)
}

// HandleWithSink is Handle with a live evidence sink, used by the
// streaming API. sink may be nil.
func (a *Agent) HandleWithSink(ctx context.Context, q model.Query, sink func(string)) *model.FinalResponse {
	start := time.Now()
	if q.RequestID == "" {
		q.RequestID = uuid.NewString()
	}
	log := slog.With("request_id", q.RequestID)

	ev := model.NewEvidence()
	if sink != nil {
		ev.Subscribe(sink)
	}
	ev.Add("agent", "request_received")

	// Empty queries never reach any upstream.
	if strings.TrimSpace(q.Text) == "" {
		ev.Add("agent", "validation_failed")
		return &model.FinalResponse{
			Analysis:  "Empty or malformed query.",
			Summary:   "Empty or malformed query.",
			Evidence:  ev.Markers(),
			Error:     "query text is empty",
			ErrorType: model.ErrValidation,
			Metadata:  map[string]any{"request_id": q.RequestID},
		}
	}

	if a.deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.deadline)
		defer cancel()
	}

	log.Info("Processing query", "query", q.Text, "session_id", q.SessionID)

	// Location parsing and intent classification both depend only on the
	// raw query; run them concurrently.
	var (
		wg           sync.WaitGroup
		loc          *model.LocationParseResult
		intentResult *model.IntentResult
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		loc = a.parser.Parse(ctx, q.Text)
	}()
	go func() {
		defer wg.Done()
		intentResult = a.classifier.Classify(ctx, q.Text)
	}()
	wg.Wait()

	if loc.Success {
		ev.Addf("location_parser", "resolved_%d_locations", len(loc.Resolved))
	} else {
		ev.Add("location_parser", "no_location")
	}
	ev.Addf("intent_classifier", "%s_%.2f", strings.ToLower(string(intentResult.ServiceType)), intentResult.Confidence)

	svc := a.dispatcher.Dispatch(ctx, q, loc, intentResult, ev)

	timing := format.Timing{
		Location: loc.ProcessingTime,
		Intent:   time.Duration(intentResult.ProcessingSecs * float64(time.Second)),
		Service:  time.Since(start) - loc.ProcessingTime,
		Total:    time.Since(start),
	}
	resp := a.formatter.Format(q, loc, intentResult, svc, ev, timing)

	log.Info("Request complete",
		"success", resp.Success, "error_type", resp.ErrorType,
		"service", svc.Service, "elapsed_s", time.Since(start).Seconds())
	return resp
}
