package event

// Queue is a per-connection event sink. The protocol dispatcher appends to
// it while decoding that connection's frames; the input phase then merges
// every queue into the Bus in a single goroutine.
type Queue struct {
	events []any
}

// Push appends one event.
func (q *Queue) Push(ev any) {
	q.events = append(q.events, ev)
}

func (q *Queue) Len() int {
	return len(q.events)
}

// Events returns the queued events without consuming them.
func (q *Queue) Events() []any {
	return q.events
}

// DrainTo publishes every queued event to b, in push order, and empties the queue.
func (q *Queue) DrainTo(b *Bus) {
	for i, ev := range q.events {
		b.Publish(ev)
		q.events[i] = nil
	}
	q.events = q.events[:0]
}
