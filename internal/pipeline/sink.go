package pipeline

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
)

// EventSink receives job events in emission order.
type EventSink interface {
	Emit(ctx context.Context, ev Event) error
}

// NDJSONSink writes one JSON document per line and flushes after each when
// the writer supports it.
type NDJSONSink struct {
	mu  sync.Mutex
	enc *json.Encoder
	w   io.Writer
}

func NewNDJSONSink(w io.Writer) *NDJSONSink {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &NDJSONSink{enc: enc, w: w}
}

func (s *NDJSONSink) Emit(_ context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enc.Encode(ev); err != nil {
		return err
	}
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

// discardSink is used when the caller does not want a stream.
type discardSink struct{}

func (discardSink) Emit(context.Context, Event) error { return nil }
