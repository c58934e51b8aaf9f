package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/magbak/mbei/internal/domain/event"
)

type nopLogger struct{ t *testing.T }

func (l nopLogger) Debug(msg string, fields ...interface{}) { l.t.Logf("DEBUG "+msg, fields...) }
func (l nopLogger) Warn(msg string, fields ...interface{})  { l.t.Logf("WARN "+msg, fields...) }
func (l nopLogger) Error(msg string, fields ...interface{}) { l.t.Logf("ERROR "+msg, fields...) }

// countingDispatcher records how many times Notify fired, standing in for
// a Reactor in tests that only care about queue contents.
type countingDispatcher struct {
	mu    sync.Mutex
	count int
}

func (d *countingDispatcher) Notify() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.count++
}

func (d *countingDispatcher) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.count
}

func TestServerClientRoundTripInsertsIntoQueue(t *testing.T) {
	queue := NewQueue()
	dispatcher := &countingDispatcher{}
	log := nopLogger{t}

	srv := NewServer("127.0.0.1:0", queue, dispatcher, log)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	addr := srv.listener.Addr().String()
	client := NewClient(addr, log)
	defer client.Close()

	u := event.EventUpdate(event.Event{EventID: "e1", Timestamp: 5, NodeID: "n1"})
	size, err := client.Send("component-a", u, 5*time.Second)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if size != 1 {
		t.Fatalf("expected queue size 1 after insert, got %d", size)
	}

	popped, ok := queue.PopEarliest()
	if !ok {
		t.Fatalf("expected a buffered update")
	}
	if popped.Kind != event.KindEvent || popped.Event.EventID != "e1" {
		t.Fatalf("unexpected update in queue: %+v", popped)
	}

	deadline := time.Now().Add(time.Second)
	for dispatcher.Count() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if dispatcher.Count() == 0 {
		t.Fatalf("expected dispatcher to be notified")
	}
}

func TestServerStopClosesListener(t *testing.T) {
	queue := NewQueue()
	dispatcher := &countingDispatcher{}
	log := nopLogger{t}

	srv := NewServer("127.0.0.1:0", queue, dispatcher, log)
	ctx := context.Background()
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	addr := srv.listener.Addr().String()
	srv.Stop()

	client := NewClient(addr, log)
	defer client.Close()
	if _, err := client.Send("component-a", event.StopUpdate(), 200*time.Millisecond); err == nil {
		t.Fatalf("expected dial to fail after server stopped")
	}
}
