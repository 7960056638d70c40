package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rashomon-app/rashomon/internal/realtime"
	"github.com/rashomon-app/rashomon/internal/stats"
	"github.com/rashomon-app/rashomon/internal/types"
)

const (
	// SessionSeconds is the discussion length. The countdown starts at room
	// entry, not when the second participant arrives; the timer-sync
	// reconciliation narrows the resulting skew but does not remove it.
	SessionSeconds = 300

	// syncToleranceSeconds is the drift allowed between two countdowns
	// before a received timer-sync lowers the local one.
	syncToleranceSeconds = 2

	viewEventBufSize = 256
)

var (
	ErrUnauthenticated           = errors.New("session: no authenticated participant")
	ErrEmptyRoom                 = errors.New("session: room id cannot be empty")
	ErrChannelSubscriptionFailed = errors.New("session: channel subscription failed")
)

// TranscriptStore persists sent messages. Failures are logged by the
// coordinator and never surfaced to the session.
type TranscriptStore interface {
	AppendMessage(ctx context.Context, msg types.ChatMessage) error
}

// Clock lets tests drive the countdown deterministically.
type Clock interface {
	Tick(d time.Duration) <-chan time.Time
}

type wallClock struct{}

func (wallClock) Tick(d time.Duration) <-chan time.Time {
	return time.NewTicker(d).C
}

// ViewEvent is what the coordinator reports to its consumer (the websocket
// gateway relays these to the browser).
type ViewEvent struct {
	Kind         string             `json:"kind"` // message|presence|countdown|expired
	Message      *types.ChatMessage `json:"message,omitempty"`
	OtherPresent *bool              `json:"other_present,omitempty"`
	Remaining    *int               `json:"remaining,omitempty"`
	RedirectTo   string             `json:"redirect_to,omitempty"`
}

// Coordinator owns one participant's side of a discussion room: the presence
// subscription on content:{id}, the message subscription on chat:{id}, the
// local transcript, and the countdown. All state is guarded by mu; transport
// callbacks, ticks and gateway calls serialize through it.
type Coordinator struct {
	log       *log.Logger
	transport realtime.Transport
	store     TranscriptStore
	stats     stats.StatsProvider
	clock     Clock

	mu sync.Mutex
	// generation bookkeeping: handlerId changes on every Enter/Leave and is
	// captured by registered callbacks; a callback whose captured id no
	// longer matches is from a superseded subscription and must not mutate
	// state
	generation uint64
	handlerId  string

	roomId        string
	participantId string
	presenceSub   realtime.Channel
	chatSub       realtime.Channel

	transcript []types.ChatMessage
	seen       map[string]struct{}

	otherCount   int
	otherPresent bool
	syncSent     bool

	remaining int
	expired   bool
	stopTick  chan struct{}

	events chan ViewEvent
}

func NewCoordinator(logger *log.Logger, transport realtime.Transport, store TranscriptStore, sp stats.StatsProvider) *Coordinator {
	return &Coordinator{
		log:       logger,
		transport: transport,
		store:     store,
		stats:     sp,
		clock:     wallClock{},
		events:    make(chan ViewEvent, viewEventBufSize),
	}
}

// Events is the coordinator's outbound view stream. It is never closed;
// consumers stop reading after Leave.
func (c *Coordinator) Events() <-chan ViewEvent {
	return c.events
}

// Enter binds the coordinator to a room. Any prior room's subscriptions are
// torn down first, so calling Enter twice leaves exactly one live pair of
// subscriptions.
func (c *Coordinator) Enter(roomId, participantId string) error {
	if participantId == "" {
		return ErrUnauthenticated
	}
	if roomId == "" {
		return ErrEmptyRoom
	}

	c.mu.Lock()
	prevActive := c.handlerId != ""
	c.teardownLocked()

	c.generation++
	c.handlerId = uuid.NewString()
	hid := c.handlerId

	c.roomId = roomId
	c.participantId = participantId
	c.transcript = nil
	c.seen = make(map[string]struct{})
	c.otherCount = 0
	c.otherPresent = false
	c.syncSent = false
	c.remaining = SessionSeconds
	c.expired = false
	c.mu.Unlock()

	if prevActive {
		c.stats.Decr(stats.ActiveSessions)
	}

	presenceSub, err := c.transport.Subscribe("content:" + roomId)
	if err != nil {
		c.log.Printf("subscribe presence channel for room %q: %v", roomId, err)
		c.abandonSetup(hid)
		return fmt.Errorf("%w: %v", ErrChannelSubscriptionFailed, err)
	}

	chatSub, err := c.transport.Subscribe("chat:" + roomId)
	if err != nil {
		c.log.Printf("subscribe message channel for room %q: %v", roomId, err)
		presenceSub.Unsubscribe()
		c.abandonSetup(hid)
		return fmt.Errorf("%w: %v", ErrChannelSubscriptionFailed, err)
	}

	for _, kind := range []realtime.EventKind{
		realtime.EventPresenceSync,
		realtime.EventPresenceJoin,
		realtime.EventPresenceLeave,
	} {
		presenceSub.On(kind, func(ev realtime.Event) {
			c.handlePresence(hid, ev)
		})
	}

	chatSub.On(realtime.EventMessage, func(ev realtime.Event) {
		c.handleMessage(hid, ev)
	})
	chatSub.On(realtime.EventTimerSync, func(ev realtime.Event) {
		c.handleTimerSync(hid, ev)
	})

	c.mu.Lock()
	if c.handlerId != hid {
		// superseded while subscribing; hand the channels straight back
		c.mu.Unlock()
		presenceSub.Unsubscribe()
		chatSub.Unsubscribe()
		return nil
	}
	c.presenceSub = presenceSub
	c.chatSub = chatSub
	c.stopTick = make(chan struct{})
	stop := c.stopTick
	c.mu.Unlock()

	if err := presenceSub.Track(realtime.PresenceRecord{
		ParticipantId: participantId,
		JoinedAt:      time.Now().UTC(),
	}); err != nil {
		c.log.Printf("track presence in room %q: %v", roomId, err)
	}

	go c.runCountdown(hid, stop)

	c.stats.Incr(stats.ActiveSessions)
	return nil
}

// Leave invalidates the current generation and releases both subscriptions.
// Safe to call on every exit path, including repeatedly.
func (c *Coordinator) Leave() {
	c.mu.Lock()
	active := c.handlerId != ""
	c.teardownLocked()
	c.mu.Unlock()

	if active {
		c.stats.Decr(stats.ActiveSessions)
	}
}

// abandonSetup clears the handler id of a setup that failed partway, so a
// later Leave does not account for a session that never went live.
func (c *Coordinator) abandonSetup(hid string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handlerId == hid {
		c.handlerId = ""
	}
}

// teardownLocked invalidates the generation before anything is awaited so
// queued callbacks from the old subscriptions observe it and no-op.
func (c *Coordinator) teardownLocked() {
	c.generation++
	c.handlerId = ""

	if c.stopTick != nil {
		close(c.stopTick)
		c.stopTick = nil
	}

	presenceSub, chatSub := c.presenceSub, c.chatSub
	c.presenceSub, c.chatSub = nil, nil

	if presenceSub != nil || chatSub != nil {
		go func() {
			if presenceSub != nil {
				if err := presenceSub.Unsubscribe(); err != nil {
					c.log.Printf("unsubscribe presence channel: %v", err)
				}
			}
			if chatSub != nil {
				if err := chatSub.Unsubscribe(); err != nil {
					c.log.Printf("unsubscribe message channel: %v", err)
				}
			}
		}()
	}
}

// Send publishes a locally composed message. The local transcript is the
// source of truth: the append happens before the broadcast and the persist,
// and neither failure rolls it back.
func (c *Coordinator) Send(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}

	c.mu.Lock()
	chatSub := c.chatSub
	if chatSub == nil || c.expired {
		// input should be disabled by the caller; guard anyway
		c.mu.Unlock()
		return
	}

	msg := types.ChatMessage{
		Id:        uuid.NewString(),
		ContentId: c.roomId,
		SenderId:  c.participantId,
		Text:      text,
		Timestamp: time.Now().UTC(),
	}

	c.transcript = append(c.transcript, msg)
	c.seen[msg.Id] = struct{}{}
	c.mu.Unlock()

	c.emit(ViewEvent{Kind: "message", Message: &msg})

	if err := chatSub.Send(realtime.NewMessageEvent(realtime.MessagePayload{
		Id:        msg.Id,
		Text:      msg.Text,
		SenderId:  msg.SenderId,
		Timestamp: msg.Timestamp,
	})); err != nil {
		c.log.Printf("broadcast message %q: %v", msg.Id, err)
	} else {
		c.stats.Incr(stats.MessagesBroadcast)
	}

	go func() {
		if err := c.store.AppendMessage(context.Background(), msg); err != nil {
			c.log.Printf("persist message %q: %v", msg.Id, err)
			c.stats.Incr(stats.PersistenceFailures)
			return
		}
		c.stats.Incr(stats.MessagesPersisted)
	}()
}

func (c *Coordinator) handlePresence(hid string, ev realtime.Event) {
	c.mu.Lock()
	if c.handlerId != hid {
		c.mu.Unlock()
		return
	}

	presenceSub := c.presenceSub
	if presenceSub == nil {
		c.mu.Unlock()
		return
	}
	// read outside any channel-loop context constraints but inside the
	// generation guard: the state snapshot comes from the live subscription
	c.mu.Unlock()
	state := presenceSub.PresenceState()
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.handlerId != hid {
		return
	}

	others := 0
	for participantId := range state {
		if participantId != c.participantId {
			others++
		}
	}

	prev := c.otherCount
	c.otherCount = others
	present := others > 0

	if present != c.otherPresent {
		c.otherPresent = present
		p := present
		c.emitLocked(ViewEvent{Kind: "presence", OtherPresent: &p})
	}

	// the side that was already alone broadcasts its clock exactly once, at
	// the moment the room first becomes co-present
	if ev.Kind == realtime.EventPresenceJoin && prev == 0 && others > 0 && !c.syncSent {
		c.syncSent = true
		if chatSub := c.chatSub; chatSub != nil {
			sync := realtime.NewTimerSyncEvent(c.participantId, c.remaining)
			go func() {
				if err := chatSub.Send(sync); err != nil {
					c.log.Printf("broadcast timer-sync: %v", err)
				}
			}()
		}
	}
}

func (c *Coordinator) handleMessage(hid string, ev realtime.Event) {
	if ev.Message == nil {
		return
	}

	c.mu.Lock()
	if c.handlerId != hid {
		c.mu.Unlock()
		return
	}

	if ev.Message.SenderId == c.participantId {
		// echo of a locally sent message, already appended at send time
		c.mu.Unlock()
		return
	}

	if _, ok := c.seen[ev.Message.Id]; ok {
		c.mu.Unlock()
		return
	}

	msg := types.ChatMessage{
		Id:        ev.Message.Id,
		ContentId: c.roomId,
		SenderId:  ev.Message.SenderId,
		Text:      ev.Message.Text,
		Timestamp: ev.Message.Timestamp,
	}
	c.transcript = append(c.transcript, msg)
	c.seen[msg.Id] = struct{}{}
	c.mu.Unlock()

	c.emit(ViewEvent{Kind: "message", Message: &msg})
}

func (c *Coordinator) handleTimerSync(hid string, ev realtime.Event) {
	if ev.TimerSync == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.handlerId != hid || c.expired {
		return
	}

	// one-directional: adopt the peer's clock only when ours is ahead by
	// more than the tolerance, never raise it
	if c.remaining-ev.TimerSync.RemainingSeconds > syncToleranceSeconds {
		c.remaining = ev.TimerSync.RemainingSeconds
		r := c.remaining
		c.emitLocked(ViewEvent{Kind: "countdown", Remaining: &r})
	}
}

func (c *Coordinator) runCountdown(hid string, stop <-chan struct{}) {
	tick := c.clock.Tick(time.Second)
	for {
		select {
		case <-tick:
			if !c.tick(hid) {
				return
			}
		case <-stop:
			return
		}
	}
}

// tick decrements the countdown by one second. Returns false once the
// session is expired or superseded.
func (c *Coordinator) tick(hid string) bool {
	c.mu.Lock()

	if c.handlerId != hid || c.expired {
		c.mu.Unlock()
		return false
	}

	if c.remaining > 0 {
		c.remaining--
	}

	r := c.remaining
	c.emitLocked(ViewEvent{Kind: "countdown", Remaining: &r})

	if c.remaining > 0 {
		c.mu.Unlock()
		return true
	}

	// expires exactly once; the guard above stops a re-fire
	c.expired = true
	redirect := "/contents/" + c.roomId
	c.mu.Unlock()

	c.stats.Incr(stats.SessionsExpired)
	c.emit(ViewEvent{Kind: "expired", RedirectTo: redirect})
	return false
}

func (c *Coordinator) emit(ev ViewEvent) {
	select {
	case c.events <- ev:
	default:
		c.log.Printf("dropping %q view event, consumer too slow", ev.Kind)
	}
}

// emitLocked is emit for call sites already holding mu. The events channel
// is buffered and never drained under mu, so this does not deadlock.
func (c *Coordinator) emitLocked(ev ViewEvent) {
	c.emit(ev)
}

// OtherPresent reports whether another distinct participant is currently
// tracked on the presence channel.
func (c *Coordinator) OtherPresent() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.otherPresent
}

// Remaining is the countdown's current value in seconds.
func (c *Coordinator) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Expired reports whether the countdown has reached zero.
func (c *Coordinator) Expired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expired
}

// Transcript returns a copy of the local transcript in arrival order.
func (c *Coordinator) Transcript() []types.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]types.ChatMessage, len(c.transcript))
	copy(out, c.transcript)
	return out
}
