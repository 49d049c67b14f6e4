package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mercuryim/authd/internal/requestctx"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, Event) {
	s.count.Add(1)
}

func TestNilDispatcherIsSafe(t *testing.T) {
	var d *Dispatcher

	d.Record(context.Background(), Event{EventType: EventLoginSuccess})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher should report zero drops")
	}

	if NewDispatcher(Config{Enabled: false}, nil) != nil {
		t.Fatal("disabled config should yield a nil dispatcher")
	}
}

func TestRecordStampsRequestContext(t *testing.T) {
	sink := NewChannelSink(1)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, sink)
	defer d.Close()

	ctx := requestctx.With(context.Background(), requestctx.Snapshot{
		IP:        "203.0.113.10",
		UserAgent: "test-agent/1.0",
	})
	d.Record(ctx, Event{EventType: EventLoginSuccess, UserID: "user-1", Success: true})

	select {
	case event := <-sink.Events():
		if event.IP != "203.0.113.10" || event.UserAgent != "test-agent/1.0" {
			t.Fatalf("request snapshot not stamped: %+v", event)
		}
		if event.Timestamp.IsZero() {
			t.Fatal("timestamp not stamped")
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestCloseDrainsBuffer(t *testing.T) {
	sink := &countingSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 64}, sink)

	const n = 32
	for i := 0; i < n; i++ {
		d.Record(context.Background(), Event{EventType: EventRefreshSuccess})
	}
	d.Close()

	if got := sink.count.Load(); got != n {
		t.Fatalf("expected %d events after drain, got %d", n, got)
	}
}

func TestDropIfFullCounts(t *testing.T) {
	gate := make(chan struct{})
	blocking := sinkFunc(func(context.Context, Event) { <-gate })

	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, blocking)

	// One event occupies the worker, one fills the buffer; the rest drop.
	for i := 0; i < 8; i++ {
		d.Record(context.Background(), Event{EventType: EventLoginFailure})
	}

	if d.Dropped() == 0 {
		t.Fatal("expected dropped events under backpressure")
	}
	close(gate)
	d.Close()
}

type sinkFunc func(context.Context, Event)

func (f sinkFunc) Emit(ctx context.Context, event Event) { f(ctx, event) }

func TestJSONWriterSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), Event{
		EventType: EventSessionRevoked,
		UserID:    "user-1",
		Reason:    "ip_mismatch",
	})

	line := strings.TrimSpace(buf.String())
	var decoded Event
	if err := json.Unmarshal([]byte(line), &decoded); err != nil {
		t.Fatalf("sink output is not JSON: %v", err)
	}
	if decoded.EventType != EventSessionRevoked || decoded.Reason != "ip_mismatch" {
		t.Fatalf("unexpected event: %+v", decoded)
	}
}
