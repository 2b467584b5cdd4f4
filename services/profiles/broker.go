package profiles

import (
	"sync"

	"animeshelf/internal/metrics"
	"animeshelf/models"
)

// Subscription receives committed versions of one profile. A slow reader only
// ever sees the newest version; older undelivered snapshots are replaced.
type Subscription struct {
	updates chan models.Profile
	done    chan struct{}
	once    sync.Once
	broker  *broker
	userID  string
	last    int64
}

// Updates returns the delivery channel. It is closed by Close.
func (s *Subscription) Updates() <-chan models.Profile {
	return s.updates
}

// Done is closed once the subscription is detached.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Close detaches the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.broker.detach(s)
		close(s.done)
	})
}

type broker struct {
	mu   sync.Mutex
	subs map[string]map[*Subscription]struct{}
}

func newBroker() *broker {
	return &broker{subs: make(map[string]map[*Subscription]struct{})}
}

func (b *broker) attach(userID string) *Subscription {
	sub := &Subscription{
		updates: make(chan models.Profile, 1),
		done:    make(chan struct{}),
		broker:  b,
		userID:  userID,
	}
	b.mu.Lock()
	set, ok := b.subs[userID]
	if !ok {
		set = make(map[*Subscription]struct{})
		b.subs[userID] = set
	}
	set[sub] = struct{}{}
	b.mu.Unlock()
	metrics.ActiveSubscriptions.Inc()
	return sub
}

func (b *broker) detach(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set := b.subs[sub.userID]
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(b.subs, sub.userID)
	}
	close(sub.updates)
	metrics.ActiveSubscriptions.Dec()
}

// publish offers p to every subscriber of its user. It never blocks.
func (b *broker) publish(p models.Profile) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs[p.UserID] {
		sub.offer(p.Clone())
	}
}

// deliver offers p to a single subscriber.
func (b *broker) deliver(sub *Subscription, p models.Profile) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub.userID][sub]; !ok {
		return
	}
	sub.offer(p)
}

// offer must be called with the broker lock held.
func (s *Subscription) offer(p models.Profile) {
	if p.Version <= s.last {
		return
	}
	s.last = p.Version
	for {
		select {
		case s.updates <- p:
			return
		default:
		}
		select {
		case <-s.updates:
		default:
		}
	}
}

func (b *broker) count(userID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[userID])
}
