package transport

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"topic-preview-go/internal/msgs"
)

var ErrInvalidName = errors.New("invalid name")

// Node identifies this process on the bus.
type Node struct {
	Namespace string
	Name      string
	ID        string
}

func NewNode(namespace, name string) (Node, error) {
	ns, err := normalizeNamespace(namespace)
	if err != nil {
		return Node{}, err
	}
	if err := validateBase(name); err != nil {
		return Node{}, fmt.Errorf("node %w", err)
	}
	return Node{
		Namespace: ns,
		Name:      name,
		ID:        name + "-" + uuid.NewString()[:8],
	}, nil
}

// Topic binds a topic name to the message type expected on it.
type Topic struct {
	Namespace string
	Name      string
	Type      string
}

func NewTopic(namespace, name, typeName string) (Topic, error) {
	ns, err := normalizeNamespace(namespace)
	if err != nil {
		return Topic{}, err
	}
	if err := validateBase(name); err != nil {
		return Topic{}, fmt.Errorf("topic %w", err)
	}
	if typeName != msgs.TypeImage && typeName != msgs.TypeCompressedImage {
		return Topic{}, fmt.Errorf("topic %q: %w %q", name, msgs.ErrUnknownType, typeName)
	}
	return Topic{Namespace: ns, Name: name, Type: typeName}, nil
}

// FullName is the fully qualified topic, e.g. "/ssbu_c".
func (t Topic) FullName() string {
	if t.Namespace == "/" {
		return "/" + t.Name
	}
	return t.Namespace + "/" + t.Name
}

// wireName is the topic as carried on MQTT and in the ZMQ topic frame.
// MQTT discourages a leading slash, so it is stripped.
func (t Topic) wireName() string {
	return strings.TrimPrefix(t.FullName(), "/")
}

func normalizeNamespace(ns string) (string, error) {
	ns = strings.TrimSpace(ns)
	if ns == "" || ns == "/" {
		return "/", nil
	}
	if !strings.HasPrefix(ns, "/") {
		ns = "/" + ns
	}
	ns = strings.TrimRight(ns, "/")
	for _, part := range strings.Split(ns[1:], "/") {
		if err := validateBase(part); err != nil {
			return "", fmt.Errorf("namespace %w", err)
		}
	}
	return ns, nil
}

func validateBase(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if strings.ContainsAny(name, " \t\n/#+*") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
