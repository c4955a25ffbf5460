package progress

import (
	"fmt"
	"sync"
)

// Receives events from a build, in emission order.
//
// Implementations must not drop or reorder events. Send may block; a build
// does not continue until Send returns.
type Sink interface {
	Send(Event)
}

// Adapts a function to [Sink].
type SinkFunc func(Event)

// Calls f(e).
func (f SinkFunc) Send(e Event) { f(e) }

// Discards every event.
var Discard Sink = SinkFunc(func(Event) {})

// A [Sink] backed by a channel that the consumer ranges over.
//
// The producer closes the channel after the terminal event with [Channel.Close].
type Channel struct {
	ch   chan Event
	once sync.Once
}

// Creates a channel sink with the given buffer size.
func NewChannel(buffer int) *Channel {
	return &Channel{ch: make(chan Event, buffer)}
}

// Delivers e, blocking while the buffer is full.
func (c *Channel) Send(e Event) {
	c.ch <- e
}

// Returns the receive side of the channel.
func (c *Channel) Events() <-chan Event {
	return c.ch
}

// Closes the channel. Safe to call more than once.
func (c *Channel) Close() {
	c.once.Do(func() { close(c.ch) })
}

// A [Sink] that keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Appends e.
func (r *Recorder) Send(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Returns the recorded events of the given kind.
func (r *Recorder) OfKind(kind Kind) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Returns the last recorded event, or false if none was recorded.
func (r *Recorder) Last() (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return Event{}, false
	}
	return r.events[len(r.events)-1], true
}

// Tags events with the name of the stage that emits them.
type Reporter struct {
	sink  Sink
	stage string
}

// Creates a reporter for stage. A nil sink discards events.
func NewReporter(sink Sink, stage string) *Reporter {
	if sink == nil {
		sink = Discard
	}
	return &Reporter{sink: sink, stage: stage}
}

// Returns the stage this reporter tags events with.
func (r *Reporter) Stage() string { return r.stage }

// Emits a percent event.
func (r *Reporter) Percent(p float64) {
	r.sink.Send(Percent(r.stage, p))
}

// Emits a log event.
func (r *Reporter) Log(text string) {
	r.sink.Send(Log(r.stage, text))
}

// Emits a formatted log event.
func (r *Reporter) Logf(format string, args ...any) {
	r.Log(fmt.Sprintf(format, args...))
}
