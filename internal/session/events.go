package session

import (
	"Go_Uploader/model"
	"sync"
	"time"
)

type EventKind string

const (
	EventProgress EventKind = "progress"
	EventStatus   EventKind = "status"
)

// Event is one notification of a session: a chunk finished (progress) or the
// session reached a terminal status.
type Event struct {
	Kind     EventKind    `json:"kind"`
	Name     string       `json:"name"`
	Owner    string       `json:"owner,omitempty"`
	FileID   uint64       `json:"file_id,omitempty"`
	Progress float64      `json:"progress"`
	Status   model.Status `json:"status,omitempty"`
	Label    string       `json:"label,omitempty"`
	Error    string       `json:"error,omitempty"`
	At       time.Time    `json:"at"`
}

// Terminal reports whether ev is the last event of its session.
func (ev Event) Terminal() bool {
	return ev.Kind == EventStatus && ev.Status.Terminal()
}

// Observer receives session events on the worker goroutine. Implementations
// that touch UI state must hand events over to their own goroutine.
type Observer interface {
	Notify(ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev Event)

func (f ObserverFunc) Notify(ev Event) {
	f(ev)
}

// Discard drops every event.
var Discard Observer = ObserverFunc(func(Event) {})

// Callbacks splits events into a progress value and a status label.
type Callbacks struct {
	Progress func(progress float64)
	Status   func(label string)
}

func (c Callbacks) Notify(ev Event) {
	switch ev.Kind {
	case EventProgress:
		if c.Progress != nil {
			c.Progress(ev.Progress)
		}
	case EventStatus:
		if c.Status != nil {
			c.Status(ev.Label)
		}
	}
}

// Observers fans an event out in order.
type Observers []Observer

func (o Observers) Notify(ev Event) {
	for _, observer := range o {
		if observer != nil {
			observer.Notify(ev)
		}
	}
}

// Stream delivers events on a channel that is closed after the terminal event.
// A full buffer blocks the session until the consumer catches up.
type Stream struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
}

// NewStream returns a stream with the given buffer size.
func NewStream(buffer int) *Stream {
	if buffer < 0 {
		buffer = 0
	}
	return &Stream{ch: make(chan Event, buffer)}
}

// Events returns the receive side of the stream.
func (s *Stream) Events() <-chan Event {
	return s.ch
}

func (s *Stream) Notify(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.ch <- ev
	if ev.Terminal() {
		s.closed = true
		close(s.ch)
	}
}

// Close ends the stream without a terminal event, e.g. when a session was
// suspended by shutdown.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
