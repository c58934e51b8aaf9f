package transport

import (
	"context"
	"sync"

	"github.com/magbak/mbei/internal/domain/component"
	"github.com/magbak/mbei/internal/domain/event"
)

// Processor runs one update through to consistency. Implemented by
// component.Component.
type Processor interface {
	ProcessUpdateUntilConsistency(update event.Update) (component.Counters, error)
}

// Reactor drains a Queue and feeds each popped update to a Processor,
// one at a time, waking on Notify whenever the server inserts new work.
// Sequential dispatch matches the reference implementation's single
// consumer task per component: a component processes one update to full
// consistency before starting the next.
type Reactor struct {
	queryName string
	queue     *Queue
	processor Processor
	log       Logger

	wake  chan struct{}
	mu    sync.Mutex
	total component.Counters
}

func NewReactor(queryName string, queue *Queue, processor Processor, log Logger) *Reactor {
	return &Reactor{
		queryName: queryName,
		queue:     queue,
		processor: processor,
		log:       log,
		wake:      make(chan struct{}, 1),
	}
}

// Status implements StatusSource: current inbox depth plus cumulative
// counters across every update this reactor has processed since start.
func (r *Reactor) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Status{
		QueryName:   r.queryName,
		QueueSize:   r.queue.Size(),
		Handled:     r.total.Handled,
		Events:      r.total.Events,
		Deltas:      r.total.Deltas,
		Retractions: r.total.Retractions,
	}
}

// Notify implements Dispatcher: it wakes the reactor loop if it is
// currently idle, and is a no-op (never blocks) if a wake is already
// pending.
func (r *Reactor) Notify() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Run drains the queue until ctx is canceled, blocking between drains
// until Notify fires.
func (r *Reactor) Run(ctx context.Context) {
	for {
		r.drain()
		select {
		case <-ctx.Done():
			return
		case <-r.wake:
		}
	}
}

func (r *Reactor) drain() {
	for {
		u, ok := r.queue.PopEarliest()
		if !ok {
			return
		}
		if u.Kind == event.KindStop {
			return
		}
		counters, err := r.processor.ProcessUpdateUntilConsistency(u)
		if err != nil {
			r.log.Error("transport: processing update failed", "error", err.Error())
			continue
		}
		r.mu.Lock()
		r.total.Handled += counters.Handled
		r.total.Events += counters.Events
		r.total.Deltas += counters.Deltas
		r.total.Retractions += counters.Retractions
		r.total.Reprocessing += counters.Reprocessing
		r.mu.Unlock()
	}
}
