package msgs

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Envelope is the CBOR frame carried by every datagram on the bus.
// Msg stays raw until the type name has been checked.
type Envelope struct {
	Type string          `cbor:"type"`
	Msg  cbor.RawMessage `cbor:"msg"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

func Encode(m Message) ([]byte, error) {
	body, err := encMode.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.TypeName(), err)
	}
	return encMode.Marshal(Envelope{Type: FullTypeName(m.TypeName()), Msg: body})
}

// Decode unwraps an envelope and decodes the message it names.
func Decode(data []byte) (Message, error) {
	env, err := DecodeEnvelope(data)
	if err != nil {
		return nil, err
	}
	return decodeBody(env)
}

// DecodeAs is Decode with a check that the envelope carries typeName.
func DecodeAs(data []byte, typeName string) (Message, error) {
	env, err := DecodeEnvelope(data)
	if err != nil {
		return nil, err
	}
	if env.Type != FullTypeName(typeName) {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrTypeMismatch, env.Type, FullTypeName(typeName))
	}
	return decodeBody(env)
}

func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := decMode.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("decode envelope: %w: empty type", ErrUnknownType)
	}
	return env, nil
}

func decodeBody(env Envelope) (Message, error) {
	m, err := newMessage(env.Type)
	if err != nil {
		return nil, err
	}
	if err := decMode.Unmarshal(env.Msg, m); err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Type, err)
	}
	if err := m.MessageHeader().Stamp.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}
