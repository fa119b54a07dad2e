package transport

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"topic-preview-go/internal/msgs"
)

const mqttSetupTimeout = 5 * time.Second

// MQTTClient wraps one broker connection that serves both subscriptions and
// publishing.
type MQTTClient struct {
	client    mqtt.Client
	broker    string
	qos       QoS
	log       *zap.Logger
	connected atomic.Bool
}

func DialMQTT(ctx context.Context, broker string, node Node, qos QoS, log *zap.Logger) (*MQTTClient, error) {
	c := &MQTTClient{broker: broker, qos: qos, log: log}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(node.ID)
	// A clean session never replays what was queued before we connected.
	opts.SetCleanSession(qos.Durability == Volatile)
	opts.SetOrderMatters(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(false)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetWriteTimeout(qos.blockingTime())
	opts.OnConnect = func(mqtt.Client) {
		c.connected.Store(true)
		log.Info("mqtt connection established", zap.String("broker", broker), zap.String("client_id", node.ID))
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		c.connected.Store(false)
		log.Warn("mqtt connection lost, will auto-reconnect", zap.String("broker", broker), zap.Error(err))
	}

	c.client = mqtt.NewClient(opts)
	log.Info("connecting to mqtt broker", zap.String("broker", broker))
	if err := wait(ctx, c.client.Connect(), mqttSetupTimeout); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, err)
	}
	return c, nil
}

func (c *MQTTClient) Subscribe(ctx context.Context, topic Topic) (*Subscription, error) {
	sub, subCtx := newSubscription(ctx, topic, c.qos)
	wire := topic.wireName()

	handler := func(_ mqtt.Client, m mqtt.Message) {
		sub.deliver(m.Payload(), time.Now())
	}
	if err := wait(ctx, c.client.Subscribe(wire, c.qos.mqttQoS(), handler), mqttSetupTimeout); err != nil {
		sub.cancel()
		sub.finish()
		return nil, fmt.Errorf("mqtt subscribe %s: %w", wire, err)
	}
	c.log.Info("mqtt subscription established",
		zap.String("topic", topic.FullName()),
		zap.String("type", msgs.FullTypeName(topic.Type)),
		zap.Uint8("qos", c.qos.mqttQoS()),
	)

	// Either side may end the subscription: caller Close or parent ctx.
	go func() {
		<-subCtx.Done()
		token := c.client.Unsubscribe(wire)
		if !token.WaitTimeout(c.qos.blockingTime()) {
			c.log.Warn("mqtt unsubscribe timed out", zap.String("topic", wire))
		}
		sub.finish()
	}()
	return sub, nil
}

func (c *MQTTClient) Publish(ctx context.Context, topic Topic, m msgs.Message) error {
	payload, err := msgs.Encode(m)
	if err != nil {
		return err
	}
	if !c.connected.Load() {
		return fmt.Errorf("mqtt not connected")
	}
	// Reliable publishing blocks at most MaxBlockingTime.
	return wait(ctx, c.client.Publish(topic.wireName(), c.qos.mqttQoS(), false, payload), c.qos.blockingTime())
}

func (c *MQTTClient) Close() error {
	if c.client.IsConnected() {
		c.client.Disconnect(250)
		c.log.Info("mqtt disconnected", zap.String("broker", c.broker))
	}
	c.connected.Store(false)
	return nil
}

func wait(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return fmt.Errorf("timed out after %s", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}
