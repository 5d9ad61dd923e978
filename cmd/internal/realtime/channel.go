package realtime

import (
	"log/slog"
	"sync"
)

// Channel is the in-memory subscriber set for one event.
//
// Concurrency guarantees:
// - Join/Leave are safe under concurrent Broadcast.
// - Broadcast never blocks (drops under backpressure).
// - Broadcast is panic-safe because Subscription.C is never closed.
type Channel struct {
	log     *slog.Logger
	EventID string

	// onEmpty runs after the last member leaves, outside mu.
	onEmpty func(*Channel)

	mu      sync.RWMutex
	members map[string]*Subscription
}

func newChannel(log *slog.Logger, eventID string, onEmpty func(*Channel)) *Channel {
	return &Channel{
		log:     log,
		EventID: eventID,
		onEmpty: onEmpty,
		members: make(map[string]*Subscription),
	}
}

// Join adds a subscription to the channel.
func (c *Channel) Join(sub *Subscription) {
	if c == nil || sub == nil || sub.ID == "" {
		return
	}

	c.mu.Lock()
	c.members[sub.ID] = sub
	sub.leave = c.Leave
	c.mu.Unlock()

	Subscribers.Inc()
	c.log.Debug("live.subscriber.join", "event_id", c.EventID, "subscription_id", sub.ID)
}

// Leave removes a subscription from the channel and signals it to stop.
func (c *Channel) Leave(id string) {
	if c == nil || id == "" {
		return
	}

	c.mu.Lock()
	sub, ok := c.members[id]
	delete(c.members, id)
	empty := len(c.members) == 0
	c.mu.Unlock()

	// Removal happens before shutdown so a broadcaster never targets a closing member.
	if ok {
		Subscribers.Dec()
		sub.stop()
		c.log.Debug("live.subscriber.leave", "event_id", c.EventID, "subscription_id", id)
		if empty && c.onEmpty != nil {
			c.onEmpty(c)
		}
	}
}

// Broadcast fans a change out to all members.
// Non-blocking: if a member queue is full or the member is shutting down, it is dropped.
func (c *Channel) Broadcast(ch Change) {
	if c == nil {
		return
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, m := range c.members {
		if m == nil {
			continue
		}

		select {
		case <-m.Done():
			continue
		default:
		}

		select {
		case m.C <- ch:
		default:
			DroppedChanges.Inc()
			c.log.Warn("live.change.dropped", "event_id", c.EventID, "subscription_id", m.ID, "kind", ch.Kind)
		}
	}
}

// Len returns the number of members.
func (c *Channel) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.members)
}
