package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"topic-preview-go/internal/msgs"
)

var ErrClosed = errors.New("subscription closed")

// Info is the per-delivery metadata that accompanies a message.
type Info struct {
	Topic      string
	TypeName   string
	Seq        uint64
	ReceivedAt time.Time
	Size       int
	// Dropped is the number of messages the history buffer has discarded so far.
	Dropped uint64
}

// Item is one element of a subscription's sequence: either a message with
// its Info, or a per-delivery error.
type Item struct {
	Msg  msgs.Message
	Info Info
	Err  error
}

// Subscriber opens live subscriptions on one backend.
type Subscriber interface {
	Subscribe(ctx context.Context, topic Topic) (*Subscription, error)
	Close() error
}

// Publisher is the sending side, used by the simulator.
type Publisher interface {
	Publish(ctx context.Context, topic Topic, m msgs.Message) error
	Close() error
}

type SubscriptionStats struct {
	Received uint64
	Errors   uint64
	Dropped  uint64
}

// Subscription is a live, non-restartable sequence of Items. Once Items()
// is closed a new Subscription has to be created.
type Subscription struct {
	topic  Topic
	items  chan Item
	cancel context.CancelFunc
	done   chan struct{}

	seq     atomic.Uint64
	errs    atomic.Uint64
	dropped atomic.Uint64

	mu       sync.Mutex
	finished bool

	closeOnce sync.Once
	stop      func()
}

func newSubscription(parent context.Context, topic Topic, qos QoS) (*Subscription, context.Context) {
	ctx, cancel := context.WithCancel(parent)
	return &Subscription{
		topic:  topic,
		items:  make(chan Item, qos.depth()),
		cancel: cancel,
		done:   make(chan struct{}),
	}, ctx
}

func (s *Subscription) Topic() Topic { return s.topic }

func (s *Subscription) Items() <-chan Item { return s.items }

func (s *Subscription) Stats() SubscriptionStats {
	return SubscriptionStats{
		Received: s.seq.Load(),
		Errors:   s.errs.Load(),
		Dropped:  s.dropped.Load(),
	}
}

// Close stops the backend and waits for the sequence to end.
func (s *Subscription) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		if s.stop != nil {
			s.stop()
		}
	})
	<-s.done
	return nil
}

// deliver decodes one datagram and offers it to the history buffer.
func (s *Subscription) deliver(payload []byte, receivedAt time.Time) {
	m, err := msgs.DecodeAs(payload, s.topic.Type)
	if err != nil {
		s.fail(err)
		return
	}
	seq := s.seq.Add(1)
	s.push(Item{
		Msg: m,
		Info: Info{
			Topic:      s.topic.FullName(),
			TypeName:   msgs.FullTypeName(s.topic.Type),
			Seq:        seq,
			ReceivedAt: receivedAt,
			Size:       len(payload),
			Dropped:    s.dropped.Load(),
		},
	})
}

func (s *Subscription) fail(err error) {
	s.errs.Add(1)
	s.push(Item{Err: err, Info: Info{Topic: s.topic.FullName(), ReceivedAt: time.Now()}})
}

// push never blocks: when the buffer is full the oldest item is discarded.
// Pushes after finish are ignored.
func (s *Subscription) push(item Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	for {
		select {
		case s.items <- item:
			return
		default:
		}
		select {
		case <-s.items:
			s.dropped.Add(1)
		default:
		}
	}
}

// finish ends the sequence. Backends call it exactly once.
func (s *Subscription) finish() {
	s.mu.Lock()
	s.finished = true
	close(s.items)
	s.mu.Unlock()
	close(s.done)
}
