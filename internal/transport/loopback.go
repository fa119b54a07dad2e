package transport

import (
	"context"
	"sync"
	"time"

	"topic-preview-go/internal/msgs"
)

// Loopback is an in-process bus. Messages still go through the wire codec so
// subscribers see exactly what a network backend would hand them.
type Loopback struct {
	qos    QoS
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	closed bool
}

func NewLoopback(qos QoS) *Loopback {
	return &Loopback{qos: qos, subs: make(map[string]map[*Subscription]struct{})}
}

func (l *Loopback) Subscribe(ctx context.Context, topic Topic) (*Subscription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}
	sub, subCtx := newSubscription(ctx, topic, l.qos)
	key := topic.FullName()
	if l.subs[key] == nil {
		l.subs[key] = make(map[*Subscription]struct{})
	}
	l.subs[key][sub] = struct{}{}

	go func() {
		<-subCtx.Done()
		l.mu.Lock()
		delete(l.subs[key], sub)
		if len(l.subs[key]) == 0 {
			delete(l.subs, key)
		}
		l.mu.Unlock()
		sub.finish()
	}()
	return sub, nil
}

func (l *Loopback) Publish(ctx context.Context, topic Topic, m msgs.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := msgs.Encode(m)
	if err != nil {
		return err
	}
	return l.PublishRaw(topic, payload)
}

// PublishRaw hands an already encoded datagram to every subscriber of topic.
func (l *Loopback) PublishRaw(topic Topic, payload []byte) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrClosed
	}
	now := time.Now()
	for sub := range l.subs[topic.FullName()] {
		sub.deliver(payload, now)
	}
	return nil
}

// Close ends every open subscription.
func (l *Loopback) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	var open []*Subscription
	for _, set := range l.subs {
		for sub := range set {
			open = append(open, sub)
		}
	}
	l.mu.Unlock()

	for _, sub := range open {
		_ = sub.Close()
	}
	return nil
}
