package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"topic-preview-go/internal/msgs"
)

func mustTopic(t *testing.T, name, typeName string) Topic {
	t.Helper()
	topic, err := NewTopic("/", name, typeName)
	if err != nil {
		t.Fatalf("NewTopic error: %v", err)
	}
	return topic
}

func recv(t *testing.T, sub *Subscription) Item {
	t.Helper()
	select {
	case item, ok := <-sub.Items():
		if !ok {
			t.Fatalf("subscription ended unexpectedly")
		}
		return item
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for item")
	}
	return Item{}
}

func TestDefaultQoS(t *testing.T) {
	q := DefaultQoS()
	if q.History.Depth != 2 {
		t.Fatalf("unexpected depth %d", q.History.Depth)
	}
	if !q.Reliability.Reliable || q.Reliability.MaxBlockingTime != 100*time.Millisecond {
		t.Fatalf("unexpected reliability %+v", q.Reliability)
	}
	if q.Durability != Volatile {
		t.Fatalf("unexpected durability %v", q.Durability)
	}
	if q.mqttQoS() != 1 {
		t.Fatalf("reliable should map to mqtt qos 1")
	}
}

func TestNewTopic(t *testing.T) {
	topic, err := NewTopic("", "ssbu_c", msgs.TypeCompressedImage)
	if err != nil {
		t.Fatalf("NewTopic error: %v", err)
	}
	if topic.FullName() != "/ssbu_c" || topic.wireName() != "ssbu_c" {
		t.Fatalf("unexpected names %q %q", topic.FullName(), topic.wireName())
	}

	topic, err = NewTopic("robot/", "cam", msgs.TypeImage)
	if err != nil {
		t.Fatalf("NewTopic error: %v", err)
	}
	if topic.FullName() != "/robot/cam" {
		t.Fatalf("unexpected full name %q", topic.FullName())
	}

	for _, bad := range []string{"", "a b", "cam/#", "x+"} {
		if _, err := NewTopic("/", bad, msgs.TypeImage); !errors.Is(err, ErrInvalidName) {
			t.Fatalf("NewTopic(%q) expected ErrInvalidName, got %v", bad, err)
		}
	}
	if _, err := NewTopic("/", "cam", "PointCloud2"); !errors.Is(err, msgs.ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
}

func TestNewNodeID(t *testing.T) {
	a, err := NewNode("/", "listener")
	if err != nil {
		t.Fatalf("NewNode error: %v", err)
	}
	b, _ := NewNode("/", "listener")
	if a.ID == b.ID {
		t.Fatalf("node ids should be unique: %q", a.ID)
	}
}

func TestLoopbackDelivers(t *testing.T) {
	bus := NewLoopback(DefaultQoS())
	defer bus.Close()
	topic := mustTopic(t, "t", msgs.TypeCompressedImage)

	sub, err := bus.Subscribe(context.Background(), topic)
	if err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}
	defer sub.Close()

	if err := bus.Publish(context.Background(), topic, &msgs.CompressedImage{Format: "png", Data: []byte{1}}); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	item := recv(t, sub)
	if item.Err != nil {
		t.Fatalf("unexpected item error: %v", item.Err)
	}
	if item.Info.Seq != 1 || item.Info.Topic != "/t" || item.Info.TypeName != "sensor_msgs/msg/CompressedImage" {
		t.Fatalf("unexpected info %+v", item.Info)
	}
	if _, ok := item.Msg.(*msgs.CompressedImage); !ok {
		t.Fatalf("unexpected message %T", item.Msg)
	}
}

func TestLoopbackTypeMismatchIsItemError(t *testing.T) {
	bus := NewLoopback(DefaultQoS())
	defer bus.Close()
	topic := mustTopic(t, "t", msgs.TypeCompressedImage)

	sub, err := bus.Subscribe(context.Background(), topic)
	if err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}
	defer sub.Close()

	if err := bus.Publish(context.Background(), topic, &msgs.RawImage{Encoding: "bgr8"}); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	item := recv(t, sub)
	if !errors.Is(item.Err, msgs.ErrTypeMismatch) {
		t.Fatalf("expected ErrTypeMismatch item, got %v", item.Err)
	}
	if err := bus.PublishRaw(topic, []byte("junk")); err != nil {
		t.Fatalf("PublishRaw error: %v", err)
	}
	if item := recv(t, sub); item.Err == nil {
		t.Fatalf("expected decode error item")
	}
	if got := sub.Stats().Errors; got != 2 {
		t.Fatalf("unexpected error count %d", got)
	}
}

func TestHistoryKeepsLastTwo(t *testing.T) {
	bus := NewLoopback(DefaultQoS())
	defer bus.Close()
	topic := mustTopic(t, "t", msgs.TypeCompressedImage)

	sub, err := bus.Subscribe(context.Background(), topic)
	if err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}
	defer sub.Close()

	for i := 0; i < 5; i++ {
		msg := &msgs.CompressedImage{Header: msgs.Header{FrameID: string(rune('a' + i))}}
		if err := bus.Publish(context.Background(), topic, msg); err != nil {
			t.Fatalf("Publish error: %v", err)
		}
	}

	first := recv(t, sub)
	second := recv(t, sub)
	if first.Info.Seq != 4 || second.Info.Seq != 5 {
		t.Fatalf("expected seq 4 and 5, got %d and %d", first.Info.Seq, second.Info.Seq)
	}
	if got := second.Msg.MessageHeader().FrameID; got != "e" {
		t.Fatalf("unexpected newest frame %q", got)
	}
	if got := sub.Stats().Dropped; got != 3 {
		t.Fatalf("expected 3 dropped, got %d", got)
	}
}

func TestSubscriptionEndsAndStaysClosed(t *testing.T) {
	bus := NewLoopback(DefaultQoS())
	defer bus.Close()
	topic := mustTopic(t, "t", msgs.TypeImage)

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := bus.Subscribe(ctx, topic)
	if err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}
	cancel()

	select {
	case _, ok := <-sub.Items():
		if ok {
			t.Fatalf("expected closed sequence")
		}
	case <-time.After(time.Second):
		t.Fatalf("sequence did not end after cancel")
	}

	// Publishing afterwards must not resurrect it.
	if err := bus.Publish(context.Background(), topic, &msgs.RawImage{}); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	if _, ok := <-sub.Items(); ok {
		t.Fatalf("closed subscription received an item")
	}
	if err := sub.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
}

func TestLoopbackCloseEndsSubscriptions(t *testing.T) {
	bus := NewLoopback(DefaultQoS())
	sub, err := bus.Subscribe(context.Background(), mustTopic(t, "t", msgs.TypeImage))
	if err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if _, ok := <-sub.Items(); ok {
		t.Fatalf("expected closed sequence")
	}
	if _, err := bus.Subscribe(context.Background(), mustTopic(t, "t", msgs.TypeImage)); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
