package preview

import "sync/atomic"

type Stats struct {
	received        atomic.Uint64
	transportErrors atomic.Uint64
	decodeErrors    atomic.Uint64
	renderErrors    atomic.Uint64
	rendered        atomic.Uint64
	decodeNanos     atomic.Uint64
	lastSeq         atomic.Uint64
	dropped         atomic.Uint64
}

func (s *Stats) Rendered() uint64 { return s.rendered.Load() }

func (s *Stats) Snapshot() map[string]any {
	decoded := s.rendered.Load() + s.renderErrors.Load()
	avg := uint64(0)
	if decoded > 0 {
		avg = s.decodeNanos.Load() / decoded
	}
	return map[string]any{
		"items_total":            s.received.Load(),
		"transport_errors_total": s.transportErrors.Load(),
		"decode_errors_total":    s.decodeErrors.Load(),
		"render_errors_total":    s.renderErrors.Load(),
		"frames_rendered_total":  s.rendered.Load(),
		"history_dropped_total":  s.dropped.Load(),
		"decode_nanos_avg":       avg,
		"last_seq":               s.lastSeq.Load(),
	}
}
