package msgs

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Package = "sensor_msgs"

	TypeImage           = "Image"
	TypeCompressedImage = "CompressedImage"

	EncodingBGR8 = "bgr8"
)

var (
	ErrInvalidStamp = errors.New("stamp nanosec out of range")
	ErrUnknownType  = errors.New("unknown message type")
	ErrTypeMismatch = errors.New("message type mismatch")
)

type Time struct {
	Sec     int32  `cbor:"sec" json:"sec"`
	Nanosec uint32 `cbor:"nanosec" json:"nanosec"`
}

func (t Time) Validate() error {
	if t.Nanosec > 999_999_999 {
		return fmt.Errorf("%w: %d", ErrInvalidStamp, t.Nanosec)
	}
	return nil
}

func (t Time) Time() time.Time {
	return time.Unix(int64(t.Sec), int64(t.Nanosec))
}

func StampFrom(ts time.Time) Time {
	return Time{Sec: int32(ts.Unix()), Nanosec: uint32(ts.Nanosecond())}
}

type Header struct {
	Stamp   Time   `cbor:"stamp" json:"stamp"`
	FrameID string `cbor:"frame_id" json:"frame_id"`
}

// Message is implemented only by RawImage and CompressedImage.
type Message interface {
	TypeName() string
	MessageHeader() Header
	sealed()
}

// RawImage carries an uncompressed pixel buffer. Data holds Height rows of
// Step bytes each.
type RawImage struct {
	Header      Header `cbor:"header" json:"header"`
	Height      uint32 `cbor:"height" json:"height"`
	Width       uint32 `cbor:"width" json:"width"`
	Encoding    string `cbor:"encoding" json:"encoding"`
	IsBigEndian uint8  `cbor:"is_bigendian" json:"is_bigendian"`
	Step        uint32 `cbor:"step" json:"step"`
	Data        []byte `cbor:"data" json:"-"`
}

func (*RawImage) TypeName() string        { return TypeImage }
func (m *RawImage) MessageHeader() Header { return m.Header }
func (*RawImage) sealed()                 {}

// CompressedImage carries an encoded container. Format is informational;
// decoders sniff the actual container from Data.
type CompressedImage struct {
	Header Header `cbor:"header" json:"header"`
	Format string `cbor:"format" json:"format"`
	Data   []byte `cbor:"data" json:"-"`
}

func (*CompressedImage) TypeName() string        { return TypeCompressedImage }
func (m *CompressedImage) MessageHeader() Header { return m.Header }
func (*CompressedImage) sealed()                 {}

// FullTypeName qualifies a short type name, e.g. "sensor_msgs/msg/Image".
func FullTypeName(name string) string {
	if strings.Contains(name, "/") {
		return name
	}
	return Package + "/msg/" + name
}

// ParseKind maps the CLI spelling of a message variant to its type name.
func ParseKind(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "raw", "image", strings.ToLower(TypeImage):
		return TypeImage, nil
	case "compressed", "compressedimage":
		return TypeCompressedImage, nil
	default:
		return "", fmt.Errorf("%w %q", ErrUnknownType, kind)
	}
}

func newMessage(fullType string) (Message, error) {
	switch fullType {
	case FullTypeName(TypeImage):
		return &RawImage{}, nil
	case FullTypeName(TypeCompressedImage):
		return &CompressedImage{}, nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownType, fullType)
	}
}
