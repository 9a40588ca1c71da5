package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"geoquery/pkg/model"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// streamEvent is one websocket frame: evidence markers while the request
// runs, then a final result frame.
type streamEvent struct {
	Type     string               `json:"type"` // "evidence" or "result"
	Marker   string               `json:"marker,omitempty"`
	Response *model.FinalResponse `json:"response,omitempty"`
}

// handleStream runs one analysis over a websocket, forwarding the
// evidence trail live. The client sends a single analyzeRequest frame
// and receives evidence events until the result frame closes the
// exchange.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	var req analyzeRequest
	if err := conn.ReadJSON(&req); err != nil {
		slog.Debug("Websocket request decode failed", "error", err)
		return
	}

	// Single writer goroutine: evidence arrives from pipeline goroutines,
	// and gorilla connections do not allow concurrent writes.
	events := make(chan streamEvent, 64)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for e := range events {
			if err := conn.WriteJSON(e); err != nil {
				slog.Debug("Websocket write failed", "error", err)
				return
			}
		}
	}()

	resp := s.agent.HandleWithSink(r.Context(),
		model.Query{Text: req.Query, SessionID: req.SessionID},
		func(marker string) {
			select {
			case events <- streamEvent{Type: "evidence", Marker: marker}:
			default:
				// A slow client drops markers rather than stalling the
				// analysis.
			}
		})

	s.recordHistory(req, resp)
	// The writer may have exited on a write error with the buffer full;
	// the result frame must not block behind a dead connection.
	select {
	case events <- streamEvent{Type: "result", Response: resp}:
	case <-writerDone:
	}
	close(events)
	<-writerDone
}
