package transport

import (
	"context"
	"fmt"
	"sync"
	"syscall"
	"time"

	"github.com/pebbe/zmq4"
	"go.uber.org/zap"

	"topic-preview-go/internal/msgs"
)

// ZMQSubscriber connects SUB sockets to a publisher endpoint. Datagrams are
// two-frame messages: [wire topic, CBOR envelope].
type ZMQSubscriber struct {
	endpoint string
	node     Node
	qos      QoS
	log      *zap.Logger
}

func NewZMQSubscriber(endpoint string, node Node, qos QoS, log *zap.Logger) *ZMQSubscriber {
	return &ZMQSubscriber{endpoint: endpoint, node: node, qos: qos, log: log}
}

func (z *ZMQSubscriber) Subscribe(ctx context.Context, topic Topic) (*Subscription, error) {
	if z.qos.Durability != Volatile {
		return nil, fmt.Errorf("zmq: durability %s not supported", z.qos.Durability)
	}
	socket, err := zmq4.NewSocket(zmq4.SUB)
	if err != nil {
		return nil, fmt.Errorf("zmq socket: %w", err)
	}
	if err := z.configure(socket, topic); err != nil {
		_ = socket.Close()
		return nil, err
	}
	if err := socket.Connect(z.endpoint); err != nil {
		_ = socket.Close()
		return nil, fmt.Errorf("zmq connect %s: %w", z.endpoint, err)
	}

	sub, subCtx := newSubscription(ctx, topic, z.qos)
	z.log.Info("zmq subscription established",
		zap.String("endpoint", z.endpoint),
		zap.String("topic", topic.FullName()),
		zap.String("type", msgs.FullTypeName(topic.Type)),
		zap.Int("history_depth", z.qos.depth()),
	)

	go z.receive(subCtx, socket, sub)
	return sub, nil
}

func (z *ZMQSubscriber) configure(socket *zmq4.Socket, topic Topic) error {
	steps := []struct {
		name string
		fn   func() error
	}{
		{"identity", func() error { return socket.SetIdentity(z.node.ID) }},
		{"rcvhwm", func() error { return socket.SetRcvhwm(z.qos.depth()) }},
		{"rcvtimeo", func() error { return socket.SetRcvtimeo(z.qos.blockingTime()) }},
		{"reconnect_ivl", func() error { return socket.SetReconnectIvl(z.qos.blockingTime()) }},
		{"linger", func() error { return socket.SetLinger(0) }},
		{"subscribe", func() error { return socket.SetSubscribe(topic.wireName()) }},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			return fmt.Errorf("zmq set %s: %w", step.name, err)
		}
	}
	return nil
}

// receive owns the socket. The receive timeout doubles as the cancellation
// poll interval.
func (z *ZMQSubscriber) receive(ctx context.Context, socket *zmq4.Socket, sub *Subscription) {
	defer sub.finish()
	defer socket.Close()

	want := sub.topic.wireName()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		parts, err := socket.RecvMessageBytes(0)
		if err != nil {
			switch zmq4.AsErrno(err) {
			case zmq4.Errno(syscall.EAGAIN), zmq4.Errno(syscall.EINTR):
				continue
			case zmq4.ETERM:
				z.log.Warn("zmq context terminated", zap.String("topic", sub.topic.FullName()))
				return
			}
			sub.fail(fmt.Errorf("zmq recv: %w", err))
			continue
		}
		if len(parts) != 2 {
			sub.fail(fmt.Errorf("zmq recv: expected 2 frames, got %d", len(parts)))
			continue
		}
		if string(parts[0]) != want {
			// Prefix match on a longer topic name.
			continue
		}
		sub.deliver(parts[1], time.Now())
	}
}

func (z *ZMQSubscriber) Close() error { return nil }

// ZMQPublisher binds a PUB socket. Safe for concurrent use.
type ZMQPublisher struct {
	mu     sync.Mutex
	socket *zmq4.Socket
	qos    QoS
}

func NewZMQPublisher(endpoint string, qos QoS) (*ZMQPublisher, error) {
	socket, err := zmq4.NewSocket(zmq4.PUB)
	if err != nil {
		return nil, fmt.Errorf("zmq socket: %w", err)
	}
	if err := socket.SetSndhwm(qos.depth()); err != nil {
		_ = socket.Close()
		return nil, fmt.Errorf("zmq set sndhwm: %w", err)
	}
	if err := socket.SetSndtimeo(qos.blockingTime()); err != nil {
		_ = socket.Close()
		return nil, fmt.Errorf("zmq set sndtimeo: %w", err)
	}
	if err := socket.Bind(endpoint); err != nil {
		_ = socket.Close()
		return nil, fmt.Errorf("zmq bind %s: %w", endpoint, err)
	}
	return &ZMQPublisher{socket: socket, qos: qos}, nil
}

func (p *ZMQPublisher) Publish(ctx context.Context, topic Topic, m msgs.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := msgs.Encode(m)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.socket == nil {
		return ErrClosed
	}
	if _, err := p.socket.SendMessage(topic.wireName(), payload); err != nil {
		return fmt.Errorf("zmq send: %w", err)
	}
	return nil
}

func (p *ZMQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.socket == nil {
		return nil
	}
	err := p.socket.Close()
	p.socket = nil
	return err
}
