package transport

import (
	"context"
	"encoding/json"
	"net/http"
)

// Status is the JSON snapshot a dashboard polls from a running
// component: current inbox depth plus the cumulative counters last
// reported by the reactor.
type Status struct {
	QueryName   string `json:"query_name"`
	QueueSize   int    `json:"queue_size"`
	Handled     int    `json:"handled"`
	Events      int    `json:"events"`
	Deltas      int    `json:"deltas"`
	Retractions int    `json:"retractions"`
}

// StatusSource supplies the current Status, typically a thin wrapper
// around a Queue plus the Reactor's running counter totals.
type StatusSource interface {
	Status() Status
}

// StatusServer exposes a StatusSource as a small HTTP JSON endpoint
// (GET /status) for the dashboard to poll, separate from the TCP RPC
// port so a human client never needs to speak the frame protocol.
type StatusServer struct {
	addr   string
	source StatusSource
	server *http.Server
}

func NewStatusServer(addr string, source StatusSource) *StatusServer {
	return &StatusServer{addr: addr, source: source}
}

func (s *StatusServer) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(s.source.Status())
	})
	s.server = &http.Server{Addr: s.addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- s.server.ListenAndServe() }()

	go func() {
		<-ctx.Done()
		s.server.Close()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	default:
		return nil
	}
}

func (s *StatusServer) Stop() error {
	if s.server == nil {
		return nil
	}
	return s.server.Close()
}
