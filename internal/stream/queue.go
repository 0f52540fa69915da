// Package stream carries probe output from the session goroutine to the controller.
package stream

import "sync"

// Kind distinguishes payload lines from control markers.
type Kind int

const (
	// KindLine is one line of probe output.
	KindLine Kind = iota
	// KindRefresh asks the consumer for a refresh; it carries no payload.
	KindRefresh
	// KindEnded marks that a probe session's reader has exited.
	KindEnded
	// KindDiagnostic is a message about the session for display only.
	KindDiagnostic
)

func (k Kind) String() string {
	switch k {
	case KindLine:
		return "line"
	case KindRefresh:
		return "refresh"
	case KindEnded:
		return "ended"
	case KindDiagnostic:
		return "diagnostic"
	default:
		return "unknown"
	}
}

// Item is one entry of the queue.
type Item struct {
	Kind    Kind
	Session uint64 // id of the probe session that produced the item, 0 for markers
	Text    string
}

// Line builds a KindLine item.
func Line(session uint64, text string) Item {
	return Item{Kind: KindLine, Session: session, Text: text}
}

// Diagnostic builds a KindDiagnostic item.
func Diagnostic(session uint64, text string) Item {
	return Item{Kind: KindDiagnostic, Session: session, Text: text}
}

// Queue is an unbounded in-memory FIFO. Push never blocks and never drops.
// It is safe for one producer and one consumer running concurrently.
type Queue struct {
	mu    sync.Mutex
	data  []Item
	ready chan struct{}
}

func NewQueue() *Queue {
	return &Queue{
		ready: make(chan struct{}, 1),
	}
}

// Push appends an item and wakes the consumer.
func (q *Queue) Push(item Item) {
	q.mu.Lock()
	q.data = append(q.data, item)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Ready fires at least once after any Push that happened since the last receive.
// Consumers select on it and then call Drain.
func (q *Queue) Ready() <-chan struct{} {
	return q.ready
}

// Drain removes and returns every queued item in push order. It does not block.
func (q *Queue) Drain() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.data) == 0 {
		return nil
	}
	out := q.data
	q.data = nil
	return out
}

// Reset discards everything queued.
func (q *Queue) Reset() {
	q.mu.Lock()
	q.data = nil
	q.mu.Unlock()
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.data)
}
