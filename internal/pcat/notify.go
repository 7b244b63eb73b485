package pcat

import "sync"

// Change is one catalog mutation signal. Seq increases by one per
// successful mutating call, starting at 1; it carries no other payload.
type Change struct {
	Seq uint64
}

// Subscription delivers Changes in the order the mutations completed.
// Delivery never blocks the publisher: each subscription buffers without
// bound and drains on its own goroutine.
type Subscription struct {
	C <-chan Change

	b    *Broadcaster
	sub  *subscriber
	once sync.Once
}

// Close stops delivery and closes C. Undelivered changes are dropped.
// Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.b.remove(s.sub)
	})
}

// Broadcaster fans Changes out to subscribers.
type Broadcaster struct {
	mu     sync.Mutex
	seq    uint64
	subs   map[*subscriber]struct{}
	closed bool
}

// NewBroadcaster returns an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[*subscriber]struct{})}
}

// Subscribe registers a new subscriber. On a closed Broadcaster the
// returned subscription's channel is already closed.
func (b *Broadcaster) Subscribe() *Subscription {
	s := newSubscriber()
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		s.stop()
	} else {
		b.subs[s] = struct{}{}
		b.mu.Unlock()
	}
	return &Subscription{C: s.out, b: b, sub: s}
}

// Publish assigns the next sequence number and queues it for every subscriber.
func (b *Broadcaster) Publish() Change {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	c := Change{Seq: b.seq}
	for s := range b.subs {
		s.enqueue(c)
	}
	return c
}

// Close closes every subscription. Later Publish calls reach nobody.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		s.stop()
	}
	clear(b.subs)
}

func (b *Broadcaster) remove(s *subscriber) {
	b.mu.Lock()
	_, ok := b.subs[s]
	delete(b.subs, s)
	b.mu.Unlock()
	if ok {
		s.stop()
	}
}

type subscriber struct {
	mu    sync.Mutex
	queue []Change
	wake  chan struct{}
	done  chan struct{}
	out   chan Change
}

func newSubscriber() *subscriber {
	s := &subscriber{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
		out:  make(chan Change),
	}
	go s.run()
	return s
}

func (s *subscriber) enqueue(c Change) {
	s.mu.Lock()
	s.queue = append(s.queue, c)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) stop() {
	close(s.done)
}

func (s *subscriber) run() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}
		c := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- c:
		case <-s.done:
			return
		}
	}
}
