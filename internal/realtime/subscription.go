package realtime

import (
	"fmt"
	"log"
	"sync"
)

// Channel is the handle a subscriber holds on a named channel. Callbacks
// registered with On are invoked sequentially in the channel's delivery
// order; a slow subscriber never blocks the channel, overflowing events are
// dropped and logged.
type Channel interface {
	Name() string
	On(kind EventKind, fn func(Event))
	Send(ev Event) error
	Track(rec PresenceRecord) error
	PresenceState() map[string][]PresenceRecord
	Unsubscribe() error
}

// Transport hands out channel subscriptions. The Broker is the in-process
// implementation; tests substitute their own.
type Transport interface {
	Subscribe(name string) (Channel, error)
}

const subscriptionBufSize = 256

type Subscription struct {
	id  string
	ch  *channel
	log *log.Logger

	handlersLock sync.RWMutex
	handlers     map[EventKind][]func(Event)

	// inbox is written only by the channel loop and closed by it when the
	// subscription is removed.
	inbox chan Event

	dispatchOnce sync.Once
	closeOnce    sync.Once
}

func (s *Subscription) Name() string {
	return s.ch.name
}

// On registers a callback for an event kind. Delivery only starts once the
// first handler is registered, so events queued between Subscribe and On
// (the sync event in particular) are held in the mailbox rather than lost.
func (s *Subscription) On(kind EventKind, fn func(Event)) {
	s.handlersLock.Lock()
	s.handlers[kind] = append(s.handlers[kind], fn)
	s.handlersLock.Unlock()

	s.dispatchOnce.Do(func() {
		go s.dispatch()
	})
}

func (s *Subscription) Send(ev Event) error {
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}

	return s.ch.publish(s.id, ev)
}

func (s *Subscription) Track(rec PresenceRecord) error {
	if rec.ParticipantId == "" {
		return fmt.Errorf("presence record requires a participant id")
	}

	return s.ch.track(s.id, rec)
}

func (s *Subscription) PresenceState() map[string][]PresenceRecord {
	return s.ch.presenceState()
}

func (s *Subscription) Unsubscribe() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.ch.leave(s.id)
	})
	return err
}

// queueEvent delivers an event to the subscription's mailbox. Called only
// from the channel loop.
func (s *Subscription) queueEvent(ev Event) {
	select {
	case s.inbox <- ev:
	default:
		s.log.Printf("dropping %q event for subscriber of %q, mailbox full", ev.Kind, s.ch.name)
	}
}

// dispatch drains the mailbox, invoking registered handlers in delivery
// order. Runs on its own goroutine, exits when the channel loop closes the
// mailbox.
func (s *Subscription) dispatch() {
	for ev := range s.inbox {
		s.handlersLock.RLock()
		handlers := s.handlers[ev.Kind]
		s.handlersLock.RUnlock()

		for _, fn := range handlers {
			fn(ev)
		}
	}
}
