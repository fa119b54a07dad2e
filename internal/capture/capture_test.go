package capture

import (
	"bytes"
	"errors"
	"io"
	"os"
	"testing"
	"time"
)

func TestWriterReaderRoundTrip(t *testing.T) {
	w, err := Create(t.TempDir(), "test")
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	at := time.Unix(1700000000, 42)
	if err := w.Record(at, []byte("first")); err != nil {
		t.Fatalf("Record error: %v", err)
	}
	if err := w.Record(at.Add(time.Second), nil); err != nil {
		t.Fatalf("Record error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if err := w.Record(at, []byte("late")); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}

	f, err := os.Open(w.Path())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	r, err := NewReader(f)
	if err != nil {
		t.Fatalf("NewReader error: %v", err)
	}

	rec, err := r.Next()
	if err != nil {
		t.Fatalf("Next error: %v", err)
	}
	if !rec.At.Equal(at) || string(rec.Payload) != "first" {
		t.Fatalf("unexpected record %v %q", rec.At, rec.Payload)
	}
	rec, err = r.Next()
	if err != nil || len(rec.Payload) != 0 {
		t.Fatalf("unexpected empty record %v %v", rec, err)
	}
	if _, err := r.Next(); err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestReaderRejectsForeignFile(t *testing.T) {
	if _, err := NewReader(bytes.NewReader([]byte("STXMRAW1"))); !errors.Is(err, ErrBadMagic) {
		t.Fatalf("expected ErrBadMagic, got %v", err)
	}
	if _, err := NewReader(bytes.NewReader(nil)); !errors.Is(err, ErrBadMagic) {
		t.Fatalf("expected ErrBadMagic for empty input, got %v", err)
	}
}

func TestReaderTruncatedPayload(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString(magic)
	buf.Write([]byte{0, 0, 0, 0, 0, 0, 0, 0, 10, 0, 0, 0})
	buf.WriteString("abc")

	r, err := NewReader(&buf)
	if err != nil {
		t.Fatalf("NewReader error: %v", err)
	}
	if _, err := r.Next(); err == nil || err == io.EOF {
		t.Fatalf("expected truncation error, got %v", err)
	}
}

func TestReaderRejectsOversizedRecord(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString(magic)
	buf.Write([]byte{0, 0, 0, 0, 0, 0, 0, 0, 0xff, 0xff, 0xff, 0xff})

	r, err := NewReader(&buf)
	if err != nil {
		t.Fatalf("NewReader error: %v", err)
	}
	if _, err := r.Next(); !errors.Is(err, ErrRecordTooLarge) {
		t.Fatalf("expected ErrRecordTooLarge, got %v", err)
	}
}
