package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"geoquery/pkg/model"
	"geoquery/pkg/tracker"
)

// sinkPipeline drives the evidence sink from the test before returning
// its response.
type sinkPipeline struct {
	resp *model.FinalResponse
	run  func(sink func(string))
}

func (p *sinkPipeline) Handle(ctx context.Context, q model.Query) *model.FinalResponse {
	return p.resp
}

func (p *sinkPipeline) HandleWithSink(ctx context.Context, q model.Query, sink func(string)) *model.FinalResponse {
	if p.run != nil {
		p.run(sink)
	}
	return p.resp
}

func dialStream(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/analyze/stream"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func TestStreamDeliversEvidenceThenResult(t *testing.T) {
	p := &sinkPipeline{
		resp: &model.FinalResponse{Success: true, Summary: "done"},
		run: func(sink func(string)) {
			sink("agent:request_received")
			sink("dispatcher:route_gee_ndvi")
		},
	}
	s := New(p, tracker.New())
	srv := httptest.NewServer(s.Routes())
	defer srv.Close()

	conn := dialStream(t, srv)
	defer conn.Close()

	if err := conn.WriteJSON(analyzeRequest{Query: "ndvi of delhi"}); err != nil {
		t.Fatal(err)
	}

	var markers []string
	for {
		var e streamEvent
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		if err := conn.ReadJSON(&e); err != nil {
			t.Fatalf("read: %v (markers so far %v)", err, markers)
		}
		if e.Type == "result" {
			if e.Response == nil || !e.Response.Success {
				t.Fatalf("result frame = %+v", e)
			}
			break
		}
		markers = append(markers, e.Marker)
	}
	joined := strings.Join(markers, "|")
	if !strings.Contains(joined, "dispatcher:route_gee_ndvi") {
		t.Errorf("markers = %v", markers)
	}
}

func TestStreamHandlerReturnsAfterClientGone(t *testing.T) {
	clientGone := make(chan struct{})
	p := &sinkPipeline{
		resp: &model.FinalResponse{Success: true, Summary: "done"},
		run: func(sink func(string)) {
			<-clientGone
			// Give the closed socket time to surface as a write error,
			// then emit far more markers than the event buffer holds.
			time.Sleep(100 * time.Millisecond)
			for i := 0; i < 200; i++ {
				sink("engine:tile_done")
			}
		},
	}
	s := New(p, tracker.New())

	handlerDone := make(chan struct{})
	mux := s.Routes()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mux.ServeHTTP(w, r)
		if r.URL.Path == "/api/analyze/stream" {
			close(handlerDone)
		}
	}))
	defer srv.Close()

	conn := dialStream(t, srv)
	if err := conn.WriteJSON(analyzeRequest{Query: "ndvi of delhi"}); err != nil {
		t.Fatal(err)
	}
	conn.Close()
	close(clientGone)

	select {
	case <-handlerDone:
	case <-time.After(3 * time.Second):
		t.Fatal("stream handler never returned after the client disconnected")
	}
}
