// Package recorder persists gesture changes to the store off the frame loop.
package recorder

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"
	"github.com/sirupsen/logrus"

	"github.com/ayusman/gesturejump/internal/gesture"
	"github.com/ayusman/gesturejump/internal/store"
)

// maxQueued bounds changes waiting for a worker before new ones are dropped.
const maxQueued = 64

var (
	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("recorder closed")
	// ErrQueueFull is returned by Submit when maxQueued changes are pending.
	ErrQueueFull = errors.New("recorder queue full")
)

// EventWriter stores gesture events.
type EventWriter interface {
	Add(e *store.Event) error
}

// Recorder writes every gesture change of one session through a worker pool.
// Submit never blocks: changes wait in a bounded queue and a dispatcher hands
// them to the pool.
type Recorder struct {
	log       *logrus.Logger
	events    EventWriter
	sessionID string
	pool      *ants.Pool
	queue     chan *store.Event
	done      chan struct{}

	mu       sync.Mutex
	closed   bool
	wg       sync.WaitGroup
	recorded atomic.Int64
	dropped  atomic.Int64
	failed   atomic.Int64
}

// New creates a Recorder for sessionID with the given number of workers.
func New(log *logrus.Logger, events EventWriter, sessionID string, workers int) (*Recorder, error) {
	if workers < 1 {
		workers = 1
	}
	r := &Recorder{
		log:       log,
		events:    events,
		sessionID: sessionID,
		queue:     make(chan *store.Event, maxQueued),
		done:      make(chan struct{}),
	}

	pool, err := ants.NewPool(workers,
		ants.WithPreAlloc(true),
		ants.WithPanicHandler(func(p interface{}) {
			r.failed.Add(1)
			log.Errorf("recorder worker panic: %v", p)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create recorder pool: %w", err)
	}
	r.pool = pool
	go r.dispatch()
	return r, nil
}

// Record queues c for writing. It has the signature of a bridge listener.
func (r *Recorder) Record(c gesture.Change) {
	if err := r.Submit(c); err != nil {
		r.log.Warnf("gesture change %s -> %s not recorded: %v", c.From, c.To, err)
	}
}

// Submit queues c for writing and reports why it could not be queued.
func (r *Recorder) Submit(c gesture.Change) error {
	event := &store.Event{
		SessionID:  r.sessionID,
		Label:      c.To,
		Confidence: c.Confidence,
		ObservedAt: c.At,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		r.dropped.Add(1)
		return ErrClosed
	}

	r.wg.Add(1)
	select {
	case r.queue <- event:
		return nil
	default:
		r.wg.Done()
		r.dropped.Add(1)
		return ErrQueueFull
	}
}

// dispatch moves queued events onto the pool until the queue is closed.
// Blocking on a busy pool here keeps Submit non-blocking.
func (r *Recorder) dispatch() {
	defer close(r.done)
	for event := range r.queue {
		event := event
		err := r.pool.Submit(func() {
			defer r.wg.Done()
			r.write(event)
		})
		if err != nil {
			r.wg.Done()
			r.dropped.Add(1)
			r.log.Warnf("record gesture event: %v", err)
		}
	}
}

func (r *Recorder) write(event *store.Event) {
	if err := r.events.Add(event); err != nil {
		r.failed.Add(1)
		r.log.Errorf("record gesture event: %v", err)
		return
	}
	r.recorded.Add(1)
}

// Stats reports how many changes were written, dropped and failed.
func (r *Recorder) Stats() (recorded, dropped, failed int64) {
	return r.recorded.Load(), r.dropped.Load(), r.failed.Load()
}

// Flush waits until every queued change has been written.
func (r *Recorder) Flush() {
	r.wg.Wait()
}

// Close flushes and releases the pool. Later changes are dropped.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	<-r.done
	r.wg.Wait()
	r.pool.Release()
	return nil
}
