package realtime

import (
	"fmt"
	"time"
)

type EventKind string

const (
	EventMessage       EventKind = "message"
	EventTimerSync     EventKind = "timer-sync"
	EventPresenceSync  EventKind = "sync"
	EventPresenceJoin  EventKind = "join"
	EventPresenceLeave EventKind = "leave"
)

// PresenceRecord is the state a subscriber tracks on a presence channel. It
// exists from a successful Track until the subscription is torn down.
type PresenceRecord struct {
	ParticipantId string    `json:"participant_id"`
	JoinedAt      time.Time `json:"joined_at"`
}

type MessagePayload struct {
	Id        string    `json:"id"`
	Text      string    `json:"text"`
	SenderId  string    `json:"sender_id"`
	Timestamp time.Time `json:"timestamp"`
}

type TimerSyncPayload struct {
	SenderId         string `json:"sender_id"`
	RemainingSeconds int    `json:"remaining_seconds"`
}

type PresencePayload struct {
	ParticipantId string    `json:"participant_id"`
	JoinedAt      time.Time `json:"joined_at,omitempty"`
}

// Event is the tagged union carried on a channel. Exactly one payload field
// matching Kind is set; anything else is rejected at the boundary.
type Event struct {
	Kind      EventKind         `json:"kind"`
	Message   *MessagePayload   `json:"message,omitempty"`
	TimerSync *TimerSyncPayload `json:"timer_sync,omitempty"`
	Presence  *PresencePayload  `json:"presence,omitempty"`
}

func (e Event) Validate() error {
	switch e.Kind {
	case EventMessage:
		if e.Message == nil {
			return fmt.Errorf("message event without message payload")
		}
		if e.Message.Id == "" {
			return fmt.Errorf("message event without id")
		}
	case EventTimerSync:
		if e.TimerSync == nil {
			return fmt.Errorf("timer-sync event without timer-sync payload")
		}
		if e.TimerSync.RemainingSeconds < 0 {
			return fmt.Errorf("timer-sync with negative remaining seconds")
		}
	case EventPresenceSync, EventPresenceJoin, EventPresenceLeave:
		// presence events carry an optional record; sync has none
	default:
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}

	return nil
}

func NewMessageEvent(msg MessagePayload) Event {
	return Event{Kind: EventMessage, Message: &msg}
}

func NewTimerSyncEvent(senderId string, remaining int) Event {
	return Event{
		Kind:      EventTimerSync,
		TimerSync: &TimerSyncPayload{SenderId: senderId, RemainingSeconds: remaining},
	}
}

func newPresenceEvent(kind EventKind, rec PresenceRecord) Event {
	return Event{
		Kind:     kind,
		Presence: &PresencePayload{ParticipantId: rec.ParticipantId, JoinedAt: rec.JoinedAt},
	}
}
