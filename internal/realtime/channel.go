package realtime

import (
	"errors"
	"log"
	"time"
)

// idleChannelTimeout is how long a channel with no subscribers is kept
// before the broker unloads it.
const idleChannelTimeout = 30 * time.Second

var ErrChannelClosed = errors.New("realtime: channel closed")

type joinReq struct {
	sub   *Subscription
	reply chan error
}

type leaveReq struct {
	subId string
	reply chan error
}

type trackReq struct {
	subId string
	rec   PresenceRecord
	reply chan error
}

type publishReq struct {
	fromId string
	ev     Event
	reply  chan error
}

type stateReq struct {
	reply chan map[string][]PresenceRecord
}

// channel is a single named pub/sub channel. All state is owned by the run
// loop; external callers talk to it through the request channels.
type channel struct {
	name   string
	broker *Broker
	log    *log.Logger

	joinChan    chan joinReq
	leaveChan   chan leaveReq
	trackChan   chan trackReq
	publishChan chan publishReq
	stateChan   chan stateReq
	// exit is closed by the broker on shutdown
	exit chan struct{}
	// done is closed when the run loop returns; pending callers observe it
	// instead of blocking on a reply
	done chan struct{}

	subs     map[string]*Subscription
	presence map[string]PresenceRecord
	// killTimer unloads the channel once it has no subscribers
	killTimer *time.Timer
}

func newChannel(name string, b *Broker, logger *log.Logger) *channel {
	return &channel{
		name:        name,
		broker:      b,
		log:         logger,
		joinChan:    make(chan joinReq, 16),
		leaveChan:   make(chan leaveReq, 16),
		trackChan:   make(chan trackReq, 16),
		publishChan: make(chan publishReq, 256),
		stateChan:   make(chan stateReq, 16),
		exit:        make(chan struct{}),
		done:        make(chan struct{}),
		subs:        make(map[string]*Subscription),
		presence:    make(map[string]PresenceRecord),
	}
}

func (c *channel) run() {
	c.log.Printf("starting channel %q", c.name)
	c.killTimer = time.NewTimer(idleChannelTimeout)

	for {
		select {
		case join := <-c.joinChan:
			c.handleJoin(join)
		case leave := <-c.leaveChan:
			c.handleLeave(leave)
		case track := <-c.trackChan:
			c.handleTrack(track)
		case pub := <-c.publishChan:
			c.handlePublish(pub)
		case state := <-c.stateChan:
			state.reply <- c.snapshotPresence()
		case <-c.killTimer.C:
			if len(c.subs) == 0 {
				c.log.Printf("channel %q idle, unloading", c.name)
				c.broker.removeChannel(c.name, c)
				c.shutdown()
				return
			}
		case <-c.exit:
			c.log.Printf("channel %q is exiting", c.name)
			c.shutdown()
			return
		}
	}
}

func (c *channel) shutdown() {
	c.killTimer.Stop()
	for _, sub := range c.subs {
		close(sub.inbox)
	}
	c.subs = nil
	close(c.done)
}

func (c *channel) handleJoin(join joinReq) {
	c.killTimer.Stop()
	c.subs[join.sub.id] = join.sub

	// give the new subscriber a sync event so it can read the current
	// presence state
	join.sub.queueEvent(Event{Kind: EventPresenceSync})
	join.reply <- nil
}

func (c *channel) handleLeave(leave leaveReq) {
	sub, ok := c.subs[leave.subId]
	if !ok {
		leave.reply <- nil
		return
	}

	delete(c.subs, leave.subId)
	close(sub.inbox)

	// an implicitly destroyed presence record becomes a leave event for the
	// remaining subscribers
	if rec, tracked := c.presence[leave.subId]; tracked {
		delete(c.presence, leave.subId)
		c.broadcast(newPresenceEvent(EventPresenceLeave, rec))
	}

	if len(c.subs) == 0 {
		c.killTimer.Reset(idleChannelTimeout)
	}

	leave.reply <- nil
}

func (c *channel) handleTrack(track trackReq) {
	if _, ok := c.subs[track.subId]; !ok {
		track.reply <- ErrChannelClosed
		return
	}

	c.presence[track.subId] = track.rec
	c.broadcast(newPresenceEvent(EventPresenceJoin, track.rec))
	track.reply <- nil
}

func (c *channel) handlePublish(pub publishReq) {
	c.broadcast(pub.ev)
	pub.reply <- nil
}

func (c *channel) broadcast(ev Event) {
	for _, sub := range c.subs {
		sub.queueEvent(ev)
	}
}

func (c *channel) snapshotPresence() map[string][]PresenceRecord {
	state := make(map[string][]PresenceRecord, len(c.presence))
	for _, rec := range c.presence {
		state[rec.ParticipantId] = append(state[rec.ParticipantId], rec)
	}

	return state
}

func (c *channel) join(sub *Subscription) error {
	reply := make(chan error, 1)
	select {
	case c.joinChan <- joinReq{sub: sub, reply: reply}:
	case <-c.done:
		return ErrChannelClosed
	}

	select {
	case err := <-reply:
		return err
	case <-c.done:
		return ErrChannelClosed
	}
}

func (c *channel) leave(subId string) error {
	reply := make(chan error, 1)
	select {
	case c.leaveChan <- leaveReq{subId: subId, reply: reply}:
	case <-c.done:
		return nil
	}

	select {
	case err := <-reply:
		return err
	case <-c.done:
		return nil
	}
}

func (c *channel) track(subId string, rec PresenceRecord) error {
	reply := make(chan error, 1)
	select {
	case c.trackChan <- trackReq{subId: subId, rec: rec, reply: reply}:
	case <-c.done:
		return ErrChannelClosed
	}

	select {
	case err := <-reply:
		return err
	case <-c.done:
		return ErrChannelClosed
	}
}

func (c *channel) publish(fromId string, ev Event) error {
	reply := make(chan error, 1)
	select {
	case c.publishChan <- publishReq{fromId: fromId, ev: ev, reply: reply}:
	case <-c.done:
		return ErrChannelClosed
	}

	select {
	case err := <-reply:
		return err
	case <-c.done:
		return ErrChannelClosed
	}
}

func (c *channel) presenceState() map[string][]PresenceRecord {
	reply := make(chan map[string][]PresenceRecord, 1)
	select {
	case c.stateChan <- stateReq{reply: reply}:
	case <-c.done:
		return nil
	}

	select {
	case state := <-reply:
		return state
	case <-c.done:
		return nil
	}
}
