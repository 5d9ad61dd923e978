package realtime

import (
	"sync"
	"time"

	"guestgate/cmd/identity/ids"
)

const defaultQueueSize = 64

// Subscription is one listener on an event's change feed.
//
// C is never closed by the feed to keep concurrent broadcasts safe;
// watch Done to learn when the subscription ended.
type Subscription struct {
	ID      string
	EventID string
	C       chan Change

	leave     func(id string)
	done      chan struct{}
	closeOnce sync.Once
}

func newSubscription(eventID string, queueSize int) *Subscription {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	id, err := ids.NewULID(time.Now().UTC())
	if err != nil {
		// crypto/rand failure; fall back to a time-only id that is still unique per process.
		id = time.Now().UTC().Format("20060102150405.000000000")
	}
	return &Subscription{
		ID:      id,
		EventID: eventID,
		C:       make(chan Change, queueSize),
		done:    make(chan struct{}),
	}
}

// Done returns a channel that is closed when the subscription ends.
func (s *Subscription) Done() <-chan struct{} {
	if s == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return s.done
}

// Close leaves the channel and ends the subscription (idempotent).
func (s *Subscription) Close() {
	if s == nil {
		return
	}
	if s.leave != nil {
		s.leave(s.ID)
		return
	}
	s.stop()
}

func (s *Subscription) stop() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}
