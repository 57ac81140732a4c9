package appcore

import "sync"

// EventHub fans job events out to subscribers. Publishing never blocks: a
// subscriber that falls behind misses intermediate events but always sees
// the latest one on subscribe. Subscriptions close after a terminal event.
// Only the most recent finished jobs are remembered; older ones are looked
// up in storage instead.
type EventHub struct {
	mu       sync.Mutex
	buffer   int
	retain   int
	subs     map[string]map[chan JobEvent]struct{}
	last     map[string]JobEvent
	finished []string
}

const defaultRetainFinished = 256

func NewEventHub(buffer int) *EventHub {
	if buffer < 1 {
		buffer = 1
	}
	return &EventHub{
		buffer: buffer,
		retain: defaultRetainFinished,
		subs:   make(map[string]map[chan JobEvent]struct{}),
		last:   make(map[string]JobEvent),
	}
}

// RetainFinished sets how many finished jobs keep their terminal event.
func (h *EventHub) RetainFinished(n int) *EventHub {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n < 1 {
		n = 1
	}
	h.retain = n
	h.evict()
	return h
}

// Subscribe returns a channel of events for jobID and a function that ends
// the subscription. The job's latest event, if any, is delivered first.
func (h *EventHub) Subscribe(jobID string) (<-chan JobEvent, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan JobEvent, h.buffer)
	if ev, ok := h.last[jobID]; ok {
		ch <- ev
		if ev.Stage.IsTerminal() {
			close(ch)
			return ch, func() {}
		}
	}

	if h.subs[jobID] == nil {
		h.subs[jobID] = make(map[chan JobEvent]struct{})
	}
	h.subs[jobID][ch] = struct{}{}

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[jobID][ch]; ok {
			delete(h.subs[jobID], ch)
			close(ch)
		}
	}
}

func (h *EventHub) Publish(ev JobEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	prev, seen := h.last[ev.JobID]
	h.last[ev.JobID] = ev
	for ch := range h.subs[ev.JobID] {
		select {
		case ch <- ev:
		default:
		}
	}
	if ev.Stage.IsTerminal() {
		for ch := range h.subs[ev.JobID] {
			close(ch)
		}
		delete(h.subs, ev.JobID)
		if !seen || !prev.Stage.IsTerminal() {
			h.finished = append(h.finished, ev.JobID)
			h.evict()
		}
	}
}

// evict drops the oldest finished jobs beyond the retention limit. Caller
// holds mu.
func (h *EventHub) evict() {
	for len(h.finished) > h.retain {
		id := h.finished[0]
		h.finished = h.finished[1:]
		if ev, ok := h.last[id]; ok && ev.Stage.IsTerminal() {
			delete(h.last, id)
		}
	}
}

// Last returns the most recent event published for jobID.
func (h *EventHub) Last(jobID string) (JobEvent, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ev, ok := h.last[jobID]
	return ev, ok
}

// Forget drops everything known about jobID and closes its subscriptions.
func (h *EventHub) Forget(jobID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[jobID] {
		close(ch)
	}
	delete(h.subs, jobID)
	delete(h.last, jobID)
}
