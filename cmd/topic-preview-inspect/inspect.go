package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"topic-preview-go/internal/capture"
	"topic-preview-go/internal/decode"
	"topic-preview-go/internal/msgs"
)

type inspector struct {
	out     io.Writer
	limit   int
	decoder *decode.Decoder

	records   int
	byType    map[string]int
	envErrors int
	decErrors int
}

func newInspector(out io.Writer, limit int, decoder *decode.Decoder) *inspector {
	return &inspector{out: out, limit: limit, decoder: decoder, byType: map[string]int{}}
}

func (ins *inspector) inspectFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r, err := capture.NewReader(f)
	if err != nil {
		return err
	}
	fmt.Fprintf(ins.out, "file: %s\n", path)
	for i := 0; ; i++ {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		line := ins.describe(rec)
		if ins.limit <= 0 || i < ins.limit {
			fmt.Fprintf(ins.out, "  #%d %s %s\n", i, rec.At.Format(time.RFC3339Nano), line)
		}
	}
}

func (ins *inspector) describe(rec capture.Record) string {
	ins.records++
	msg, err := msgs.Decode(rec.Payload)
	if err != nil {
		ins.envErrors++
		return fmt.Sprintf("envelope error: %v (%d bytes)", err, len(rec.Payload))
	}
	ins.byType[msg.TypeName()]++
	header := msg.MessageHeader()
	desc := fmt.Sprintf("%s frame_id=%q stamp=%s", msg.TypeName(), header.FrameID, header.Stamp.Time().UTC().Format(time.RFC3339Nano))

	switch m := msg.(type) {
	case *msgs.RawImage:
		desc += fmt.Sprintf(" %dx%d %s step=%d", m.Width, m.Height, m.Encoding, m.Step)
	case *msgs.CompressedImage:
		desc += fmt.Sprintf(" format=%q sniffed=%s %d bytes", m.Format, mimetype.Detect(m.Data).String(), len(m.Data))
	}

	bmp, err := ins.decoder.Decode(msg)
	if err != nil {
		ins.decErrors++
		return desc + fmt.Sprintf(" decode error: %v", err)
	}
	return desc + fmt.Sprintf(" -> %dx%d", bmp.Width, bmp.Height)
}

func (ins *inspector) printSummary() {
	types := make([]string, 0, len(ins.byType))
	for name := range ins.byType {
		types = append(types, name)
	}
	sort.Strings(types)
	fmt.Fprintf(ins.out, "summary: records=%d envelope_errors=%d decode_errors=%d", ins.records, ins.envErrors, ins.decErrors)
	for _, name := range types {
		fmt.Fprintf(ins.out, " %s=%d", name, ins.byType[name])
	}
	fmt.Fprintln(ins.out)
}

func listFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	var files []string
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Ext(p) == ".cap" {
			files = append(files, p)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}
