package pipeline

import (
	"sync"
	"testing"
	"time"

	"github.com/humbaba/groundstation/internal/monitoring"
)

func TestDispatcherRunsInOrderAndDrops(t *testing.T) {
	d := newDispatcher(1, monitoring.Discard)

	var mu sync.Mutex
	var order []string
	record := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}

	started := make(chan struct{})
	release := make(chan struct{})
	if !d.submit("a", func() {
		close(started)
		<-release
		record("a")
	}) {
		t.Fatal("first submit should be accepted")
	}
	<-started

	if !d.submit("b", func() { record("b") }) {
		t.Fatal("second submit should fill the queue")
	}
	if d.submit("c", func() { record("c") }) {
		t.Error("third submit should be dropped while the queue is full")
	}
	if got := d.dropped.Load(); got != 1 {
		t.Errorf("dropped = %d, want 1", got)
	}

	close(release)
	d.close()

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Errorf("order = %v, want [a b]", order)
	}
}

func TestDispatcherSubmitAfterClose(t *testing.T) {
	d := newDispatcher(4, monitoring.Discard)
	d.close()
	d.close()

	done := make(chan bool, 1)
	go func() { done <- d.submit("late", func() {}) }()
	select {
	case ok := <-done:
		if ok {
			t.Error("submit after close should be refused")
		}
	case <-time.After(time.Second):
		t.Fatal("submit after close blocked")
	}
}
