package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, Event) { s.count.Add(1) }

type gateSink struct {
	gate chan struct{}
}

func (s *gateSink) Emit(context.Context, Event) { <-s.gate }

func TestDisabledDispatcherIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, &countingSink{})
	if d != nil {
		t.Fatal("expected nil dispatcher when disabled")
	}
	d.Emit(context.Background(), Event{EventType: EventLogout})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher must report zero drops")
	}
}

func TestDispatcherDeliversAndStamps(t *testing.T) {
	sink := NewChannelSink(4)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, sink)
	fixed := time.Unix(1_700_000_000, 0).UTC()
	d.now = func() time.Time { return fixed }

	d.Emit(context.Background(), Event{EventType: EventLoginSuccess, AccountID: "1", Success: true})

	select {
	case ev := <-sink.Events():
		if ev.EventType != EventLoginSuccess || ev.AccountID != "1" || !ev.Success {
			t.Fatalf("unexpected event %+v", ev)
		}
		if !ev.Timestamp.Equal(fixed) {
			t.Fatalf("expected timestamp %v, got %v", fixed, ev.Timestamp)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
	d.Close()
}

func TestDispatcherDropIfFull(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{EventType: EventLoginFailure})
	}
	if d.Dropped() == 0 {
		t.Fatal("expected drops with a blocked sink and full buffer")
	}
	close(sink.gate)
	d.Close()
}

func TestDispatcherCloseFlushes(t *testing.T) {
	sink := &countingSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 64}, sink)
	for i := 0; i < 20; i++ {
		d.Emit(context.Background(), Event{EventType: EventRegister})
	}
	d.Close()
	if got := sink.count.Load(); got != 20 {
		t.Fatalf("expected 20 flushed events, got %d", got)
	}

	d.Emit(context.Background(), Event{EventType: EventRegister})
	if got := sink.count.Load(); got != 20 {
		t.Fatalf("expected emit after close to be ignored, got %d", got)
	}
}

func TestJSONWriterAndMultiSink(t *testing.T) {
	var buf bytes.Buffer
	counter := &countingSink{}
	sink := MultiSink{NewJSONWriterSink(&buf), counter, nil}

	sink.Emit(context.Background(), Event{EventType: EventRefreshReuse, AccountID: "9", IP: "203.0.113.7"})
	sink.Emit(context.Background(), Event{EventType: EventLogout, AccountID: "9", Success: true})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}
	var ev map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev["event_type"] != EventRefreshReuse || ev["account_id"] != "9" || ev["ip"] != "203.0.113.7" {
		t.Fatalf("unexpected json %v", ev)
	}
	if counter.count.Load() != 2 {
		t.Fatalf("expected fan-out to reach counter, got %d", counter.count.Load())
	}
}

func TestSinkFunc(t *testing.T) {
	var got Event
	SinkFunc(func(_ context.Context, e Event) { got = e }).Emit(context.Background(), Event{EventType: EventTOTPEnabled})
	if got.EventType != EventTOTPEnabled {
		t.Fatalf("unexpected %+v", got)
	}
}
