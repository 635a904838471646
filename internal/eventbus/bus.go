// Package eventbus carries results of background bridge operations back to
// the session, which applies them on its own refresh tick.
package eventbus

import (
	"sync"
	"time"

	"github.com/dokzlo13/discod/internal/disco"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// EventType represents the type of event
type EventType string

const (
	EventBridgeFound      EventType = "bridge_found"
	EventUserRegistered   EventType = "user_registered"
	EventLightsDiscovered EventType = "lights_discovered"
	EventError            EventType = "error"
)

// DefaultQueueSize bounds how many results may wait for the next drain.
const DefaultQueueSize = 64

// Event is one background result.
type Event struct {
	ID       string
	Type     EventType
	At       time.Time
	Address  string
	Username string
	Lights   []disco.LightHandle
	Err      error
}

// BridgeFound builds an event for a discovered bridge address.
func BridgeFound(address string) Event {
	return newEvent(EventBridgeFound, func(e *Event) { e.Address = address })
}

// UserRegistered builds an event for a username issued by the bridge at address.
func UserRegistered(address, username string) Event {
	return newEvent(EventUserRegistered, func(e *Event) {
		e.Address = address
		e.Username = username
	})
}

// LightsDiscovered builds an event carrying the bridge's colour lights.
func LightsDiscovered(lights []disco.LightHandle) Event {
	return newEvent(EventLightsDiscovered, func(e *Event) { e.Lights = lights })
}

// Failed builds an error event.
func Failed(err error) Event {
	return newEvent(EventError, func(e *Event) { e.Err = err })
}

func newEvent(t EventType, fill func(*Event)) Event {
	e := Event{ID: uuid.New().String(), Type: t, At: time.Now()}
	fill(&e)
	return e
}

// Inbox is a bounded queue of events.
// Posting never blocks: when the inbox is full or closed the event is dropped.
type Inbox struct {
	queue chan Event

	// closing is closed once; posters select on it so Close needs no lock
	closing   chan struct{}
	closeOnce sync.Once
}

// New creates an inbox with the default queue size
func New() *Inbox {
	return NewWithSize(DefaultQueueSize)
}

// NewWithSize creates an inbox holding at most size pending events.
func NewWithSize(size int) *Inbox {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Inbox{
		queue:   make(chan Event, size),
		closing: make(chan struct{}),
	}
}

// Post queues an event. Returns false if it was dropped.
func (in *Inbox) Post(event Event) bool {
	select {
	case <-in.closing:
		log.Debug().Str("event_type", string(event.Type)).Msg("Inbox closed, dropping event")
		return false
	default:
	}

	select {
	case in.queue <- event:
		return true
	default:
		log.Warn().
			Str("event_type", string(event.Type)).
			Msg("Inbox full, dropping event")
		return false
	}
}

// Drain returns every queued event in posting order without blocking.
func (in *Inbox) Drain() []Event {
	var events []Event
	for {
		select {
		case e := <-in.queue:
			events = append(events, e)
		default:
			return events
		}
	}
}

// Close stops accepting events. Already queued events can still be drained.
func (in *Inbox) Close() {
	in.closeOnce.Do(func() {
		close(in.closing)
	})
}
