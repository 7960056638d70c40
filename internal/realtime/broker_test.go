package realtime

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/rashomon-app/rashomon/internal/stats"
	"github.com/rashomon-app/rashomon/internal/testutil"
)

func newTestBroker(t *testing.T) *Broker {
	t.Helper()
	ms := &stats.MockStatsUpdater{}
	ms.On("Incr", mock.Anything).Maybe()
	ms.On("Decr", mock.Anything).Maybe()

	b := NewBroker(testutil.TestLogger(t), ms)
	t.Cleanup(b.Shutdown)
	return b
}

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) record(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *eventRecorder) subscribeTo(ch Channel, kinds ...EventKind) {
	for _, kind := range kinds {
		ch.On(kind, r.record)
	}
}

func TestSubscribeEmptyName(t *testing.T) {
	b := newTestBroker(t)
	_, err := b.Subscribe("")
	assert.Error(t, err, "expected an error for an empty channel name")
}

func TestBroadcastReachesAllSubscribersInOrder(t *testing.T) {
	b := newTestBroker(t)

	sender, err := b.Subscribe("chat:story-1")
	assert.NoError(t, err)
	receiver, err := b.Subscribe("chat:story-1")
	assert.NoError(t, err)

	rec := &eventRecorder{}
	rec.subscribeTo(receiver, EventMessage)

	for _, id := range []string{"m1", "m2", "m3"} {
		err := sender.Send(NewMessageEvent(MessagePayload{Id: id, SenderId: "1", Text: "hello", Timestamp: time.Now()}))
		assert.NoError(t, err)
	}

	assert.Eventually(t, func() bool {
		return len(rec.snapshot()) == 3
	}, time.Second, 10*time.Millisecond, "expected all broadcasts to be delivered")

	var ids []string
	for _, ev := range rec.snapshot() {
		ids = append(ids, ev.Message.Id)
	}
	assert.Equal(t, []string{"m1", "m2", "m3"}, ids, "delivery must preserve channel arrival order")
}

func TestSenderAlsoReceivesOwnBroadcast(t *testing.T) {
	b := newTestBroker(t)

	sender, err := b.Subscribe("chat:story-1")
	assert.NoError(t, err)

	rec := &eventRecorder{}
	rec.subscribeTo(sender, EventMessage)

	assert.NoError(t, sender.Send(NewMessageEvent(MessagePayload{Id: "m1", SenderId: "1", Text: "echo", Timestamp: time.Now()})))

	assert.Eventually(t, func() bool {
		return len(rec.snapshot()) == 1
	}, time.Second, 10*time.Millisecond, "a broadcast goes to every subscriber, the sender included")
}

func TestSendInvalidEvent(t *testing.T) {
	b := newTestBroker(t)

	sub, err := b.Subscribe("chat:story-1")
	assert.NoError(t, err)

	assert.Error(t, sub.Send(Event{Kind: EventMessage}), "a message event without payload must be rejected")
	assert.Error(t, sub.Send(Event{Kind: "bogus"}), "an unknown kind must be rejected")
	assert.Error(t, sub.Send(Event{Kind: EventTimerSync, TimerSync: &TimerSyncPayload{RemainingSeconds: -1}}))
}

func TestChannelsAreIsolated(t *testing.T) {
	b := newTestBroker(t)

	sender, err := b.Subscribe("chat:story-1")
	assert.NoError(t, err)
	other, err := b.Subscribe("chat:story-2")
	assert.NoError(t, err)

	rec := &eventRecorder{}
	rec.subscribeTo(other, EventMessage)

	assert.NoError(t, sender.Send(NewMessageEvent(MessagePayload{Id: "m1", SenderId: "1", Text: "hi", Timestamp: time.Now()})))

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, rec.snapshot(), "a broadcast must not leak across channels")
}

func TestPresenceLifecycle(t *testing.T) {
	b := newTestBroker(t)

	first, err := b.Subscribe("content:story-1")
	assert.NoError(t, err)
	second, err := b.Subscribe("content:story-1")
	assert.NoError(t, err)

	rec := &eventRecorder{}
	rec.subscribeTo(second, EventPresenceJoin, EventPresenceLeave)

	assert.NoError(t, first.Track(PresenceRecord{ParticipantId: "1", JoinedAt: time.Now()}))

	assert.Eventually(t, func() bool {
		events := rec.snapshot()
		return len(events) == 1 && events[0].Kind == EventPresenceJoin && events[0].Presence.ParticipantId == "1"
	}, time.Second, 10*time.Millisecond, "tracking must broadcast a join event")

	state := second.PresenceState()
	assert.Contains(t, state, "1", "the tracked record must be visible in presence state")

	// unsubscribing implicitly destroys the presence record
	assert.NoError(t, first.Unsubscribe())

	assert.Eventually(t, func() bool {
		events := rec.snapshot()
		return len(events) == 2 && events[1].Kind == EventPresenceLeave && events[1].Presence.ParticipantId == "1"
	}, time.Second, 10*time.Millisecond, "unsubscribe must broadcast a leave for the tracked record")

	assert.Eventually(t, func() bool {
		_, ok := second.PresenceState()["1"]
		return !ok
	}, time.Second, 10*time.Millisecond, "the record must be gone from presence state")
}

func TestTrackRequiresParticipantId(t *testing.T) {
	b := newTestBroker(t)

	sub, err := b.Subscribe("content:story-1")
	assert.NoError(t, err)

	assert.Error(t, sub.Track(PresenceRecord{}), "a presence record without participant id must be rejected")
}

func TestNewSubscriberReceivesSyncEvent(t *testing.T) {
	b := newTestBroker(t)

	first, err := b.Subscribe("content:story-1")
	assert.NoError(t, err)
	assert.NoError(t, first.Track(PresenceRecord{ParticipantId: "1", JoinedAt: time.Now()}))

	second, err := b.Subscribe("content:story-1")
	assert.NoError(t, err)

	synced := make(chan map[string][]PresenceRecord, 1)
	second.On(EventPresenceSync, func(Event) {
		synced <- second.PresenceState()
	})

	// handlers registered after subscribe still see the buffered sync event
	select {
	case state := <-synced:
		assert.Contains(t, state, "1", "a late joiner must see the existing presence state on sync")
	case <-time.After(time.Second):
		t.Fatal("timeout: sync event was not delivered")
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	b := newTestBroker(t)

	sub, err := b.Subscribe("chat:story-1")
	assert.NoError(t, err)

	assert.NoError(t, sub.Unsubscribe())
	assert.NoError(t, sub.Unsubscribe())
}

func TestSendAfterShutdown(t *testing.T) {
	ms := &stats.MockStatsUpdater{}
	ms.On("Incr", mock.Anything).Maybe()
	ms.On("Decr", mock.Anything).Maybe()
	b := NewBroker(testutil.TestLogger(t), ms)

	sub, err := b.Subscribe("chat:story-1")
	assert.NoError(t, err)

	b.Shutdown()

	assert.ErrorIs(t, sub.Send(NewMessageEvent(MessagePayload{Id: "m1", SenderId: "1", Text: "late", Timestamp: time.Now()})), ErrChannelClosed)

	_, err = b.Subscribe("chat:story-2")
	assert.ErrorIs(t, err, ErrBrokerClosed)
}

func TestEventValidate(t *testing.T) {
	tcases := []struct {
		name string
		ev   Event
		err  bool
	}{
		{name: "valid message", ev: NewMessageEvent(MessagePayload{Id: "m1"}), err: false},
		{name: "message without id", ev: NewMessageEvent(MessagePayload{}), err: true},
		{name: "valid timer-sync", ev: NewTimerSyncEvent("1", 120), err: false},
		{name: "presence sync without payload", ev: Event{Kind: EventPresenceSync}, err: false},
		{name: "unknown kind", ev: Event{Kind: "nope"}, err: true},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.ev.Validate()
			if tc.err {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
