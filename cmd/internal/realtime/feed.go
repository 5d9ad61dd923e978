package realtime

import (
	"log/slog"
	"sync"
	"time"

	"guestgate/cmd/internal/ticket"
)

// Change is one mutation of an event's guest list.
// Kind is one of the live v1 Kind* constants.
type Change struct {
	Kind     string
	EventID  string
	Attendee ticket.Attendee
	At       time.Time
}

// Feed owns one Channel per event and fans changes out to subscribers.
// Persistence stays in the ticket store; the feed only carries notifications.
type Feed struct {
	log *slog.Logger

	mu       sync.RWMutex
	channels map[string]*Channel
}

// NewFeed constructs a Feed. log may be nil.
func NewFeed(log *slog.Logger) *Feed {
	if log == nil {
		log = slog.Default()
	}
	return &Feed{
		log:      log,
		channels: make(map[string]*Channel),
	}
}

// Publish delivers c to every subscriber of c.EventID without blocking.
func (f *Feed) Publish(c Change) {
	if f == nil || c.EventID == "" {
		return
	}
	if c.At.IsZero() {
		c.At = time.Now().UTC()
	}

	f.mu.RLock()
	ch := f.channels[c.EventID]
	f.mu.RUnlock()

	if ch != nil {
		ch.Broadcast(c)
	}
}

// Subscribe registers a bounded queue for eventID. Close the subscription to leave.
func (f *Feed) Subscribe(eventID string, queueSize int) *Subscription {
	sub := newSubscription(eventID, queueSize)

	// Join under the feed lock so a concurrent prune cannot orphan the channel.
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channelLocked(eventID).Join(sub)
	return sub
}

// OnAttendeeChanged calls fn for each change to eventID until cancel is called.
// fn runs on a dedicated goroutine, one change at a time.
func (f *Feed) OnAttendeeChanged(eventID string, fn func(Change)) (cancel func()) {
	sub := f.Subscribe(eventID, 0)
	go func() {
		for {
			select {
			case <-sub.Done():
				return
			case c := <-sub.C:
				fn(c)
			}
		}
	}()
	return sub.Close
}

// Subscribers returns the number of live subscriptions for eventID.
func (f *Feed) Subscribers(eventID string) int {
	f.mu.RLock()
	ch := f.channels[eventID]
	f.mu.RUnlock()
	if ch == nil {
		return 0
	}
	return ch.Len()
}

// Channels returns the number of events with at least one subscriber.
func (f *Feed) Channels() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.channels)
}

func (f *Feed) channelLocked(eventID string) *Channel {
	if ch, ok := f.channels[eventID]; ok {
		return ch
	}
	ch := newChannel(f.log, eventID, f.prune)
	f.channels[eventID] = ch
	return ch
}

// prune drops ch once its last member is gone. A Subscribe that raced in
// first keeps it alive.
func (f *Feed) prune(ch *Channel) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.channels[ch.EventID] != ch || ch.Len() > 0 {
		return
	}
	delete(f.channels, ch.EventID)
	f.log.Debug("live.channel.pruned", "event_id", ch.EventID)
}
