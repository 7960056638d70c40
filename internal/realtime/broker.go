package realtime

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/rashomon-app/rashomon/internal/stats"
)

var ErrBrokerClosed = errors.New("realtime: broker closed")

// Broker is the in-process channel transport: a registry of named pub/sub
// channels, each run by its own goroutine. Channels are created on first
// subscribe and unloaded after sitting idle with no subscribers.
type Broker struct {
	log   *log.Logger
	stats stats.StatsProvider

	mu       sync.Mutex
	channels map[string]*channel
	closed   bool
}

func NewBroker(logger *log.Logger, sp stats.StatsProvider) *Broker {
	return &Broker{
		log:      logger,
		stats:    sp,
		channels: make(map[string]*channel),
	}
}

func (b *Broker) Subscribe(name string) (Channel, error) {
	if name == "" {
		return nil, fmt.Errorf("channel name cannot be empty")
	}

	for {
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return nil, ErrBrokerClosed
		}

		c, ok := b.channels[name]
		if !ok {
			c = newChannel(name, b, b.log)
			b.channels[name] = c
			go c.run()
			b.stats.Incr(stats.ActiveChannels)
		}
		b.mu.Unlock()

		sub := &Subscription{
			id:       uuid.NewString(),
			ch:       c,
			log:      b.log,
			handlers: make(map[EventKind][]func(Event)),
			inbox:    make(chan Event, subscriptionBufSize),
		}

		if err := c.join(sub); err != nil {
			if errors.Is(err, ErrChannelClosed) {
				// lost a race with an idle unload, retry against a fresh
				// channel
				continue
			}
			return nil, err
		}

		return sub, nil
	}
}

func (b *Broker) removeChannel(name string, c *channel) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cur, ok := b.channels[name]; ok && cur == c {
		delete(b.channels, name)
		b.stats.Decr(stats.ActiveChannels)
	}
}

// Shutdown stops every channel loop and waits for them to finish.
func (b *Broker) Shutdown() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	channels := b.channels
	b.channels = make(map[string]*channel)
	b.mu.Unlock()

	for name, c := range channels {
		b.log.Printf("shutting down channel %q", name)
		close(c.exit)
		<-c.done
		b.stats.Decr(stats.ActiveChannels)
	}
}
