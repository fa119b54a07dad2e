// Package capture stores wire envelopes in an append-only log so published
// streams can be inspected offline. Each record is a little-endian
// [unix nanos uint64][length uint32] header followed by the envelope bytes.
package capture

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const magic = "TPVCAP01"

// MaxRecordSize bounds a single record: an 8K bgr8 frame plus envelope overhead.
const MaxRecordSize = 7680*4320*3 + 64<<10

var (
	ErrBadMagic       = errors.New("not a capture log")
	ErrClosed         = errors.New("capture writer closed")
	ErrRecordTooLarge = errors.New("capture record too large")
)

type Writer struct {
	mu   sync.Mutex
	f    *os.File
	w    *bufio.Writer
	path string
}

// Create opens a new timestamped log under dir.
func Create(dir, prefix string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	name := filepath.Join(dir, fmt.Sprintf("%s_%s.cap", time.Now().Format("20060102_150405"), prefix))
	f, err := os.Create(name)
	if err != nil {
		return nil, err
	}
	w := bufio.NewWriterSize(f, 1<<20)
	if _, err := w.WriteString(magic); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Writer{f: f, w: w, path: name}, nil
}

func (c *Writer) Path() string { return c.path }

func (c *Writer) Record(at time.Time, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.w == nil {
		return ErrClosed
	}
	if len(payload) > MaxRecordSize {
		return fmt.Errorf("%w: %d bytes", ErrRecordTooLarge, len(payload))
	}
	var header [12]byte
	binary.LittleEndian.PutUint64(header[:8], uint64(at.UnixNano()))
	binary.LittleEndian.PutUint32(header[8:], uint32(len(payload)))
	if _, err := c.w.Write(header[:]); err != nil {
		return err
	}
	_, err := c.w.Write(payload)
	return err
}

func (c *Writer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.w == nil {
		return nil
	}
	err := c.w.Flush()
	if cerr := c.f.Close(); err == nil {
		err = cerr
	}
	c.w = nil
	return err
}

type Record struct {
	At      time.Time
	Payload []byte
}

type Reader struct {
	r io.Reader
}

func NewReader(r io.Reader) (*Reader, error) {
	head := make([]byte, len(magic))
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadMagic, err)
	}
	if string(head) != magic {
		return nil, fmt.Errorf("%w: %q", ErrBadMagic, head)
	}
	return &Reader{r: bufio.NewReader(r)}, nil
}

// Next returns io.EOF after the last complete record.
func (c *Reader) Next() (Record, error) {
	var header [12]byte
	if _, err := io.ReadFull(c.r, header[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Record{}, fmt.Errorf("truncated record header: %w", err)
		}
		return Record{}, err
	}
	ts := int64(binary.LittleEndian.Uint64(header[:8]))
	size := binary.LittleEndian.Uint32(header[8:])
	if size > MaxRecordSize {
		return Record{}, fmt.Errorf("%w: header claims %d bytes", ErrRecordTooLarge, size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(c.r, payload); err != nil {
		return Record{}, fmt.Errorf("truncated record payload: %w", err)
	}
	return Record{At: time.Unix(0, ts), Payload: payload}, nil
}
