package transport

import "time"

type Durability int

const (
	Volatile Durability = iota
	TransientLocal
)

func (d Durability) String() string {
	if d == TransientLocal {
		return "transient_local"
	}
	return "volatile"
}

// History bounds how many received, not yet consumed messages a
// subscription keeps. Older ones are dropped once Depth is reached.
type History struct {
	Depth int
}

type Reliability struct {
	Reliable        bool
	MaxBlockingTime time.Duration
}

type QoS struct {
	History     History
	Reliability Reliability
	Durability  Durability
}

// DefaultQoS is the policy every preview subscription uses: keep last 2,
// reliable with a 100ms blocking bound, volatile.
func DefaultQoS() QoS {
	return QoS{
		History:     History{Depth: 2},
		Reliability: Reliability{Reliable: true, MaxBlockingTime: 100 * time.Millisecond},
		Durability:  Volatile,
	}
}

func (q QoS) depth() int {
	if q.History.Depth < 1 {
		return 1
	}
	return q.History.Depth
}

func (q QoS) blockingTime() time.Duration {
	if q.Reliability.MaxBlockingTime <= 0 {
		return 100 * time.Millisecond
	}
	return q.Reliability.MaxBlockingTime
}

// mqttQoS maps reliability onto MQTT delivery levels: at-least-once when
// reliable, at-most-once otherwise.
func (q QoS) mqttQoS() byte {
	if q.Reliability.Reliable {
		return 1
	}
	return 0
}
