package pipeline

import (
	"sync"
	"sync/atomic"

	"github.com/humbaba/groundstation/internal/monitoring"
)

// dispatcher runs sink work on one goroutine in submission order. Submit
// never blocks: when the queue is full the job is dropped and counted, so a
// slow database or publisher cannot stall the serial reader.
type dispatcher struct {
	mu      sync.RWMutex
	closed  bool
	jobs    chan func()
	done    chan struct{}
	dropped atomic.Uint64
	log     monitoring.Logger
}

func newDispatcher(size int, log monitoring.Logger) *dispatcher {
	if size <= 0 {
		size = 1
	}
	d := &dispatcher{
		jobs: make(chan func(), size),
		done: make(chan struct{}),
		log:  log,
	}
	go d.run()
	return d
}

func (d *dispatcher) run() {
	defer close(d.done)
	for job := range d.jobs {
		job()
	}
}

func (d *dispatcher) submit(what string, job func()) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	select {
	case d.jobs <- job:
		return true
	default:
		n := d.dropped.Add(1)
		d.log.Warnf("sink queue full, dropped %s (%d dropped so far)", what, n)
		return false
	}
}

// close stops accepting work and waits for queued jobs to finish.
func (d *dispatcher) close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	d.mu.Unlock()
	<-d.done
}
