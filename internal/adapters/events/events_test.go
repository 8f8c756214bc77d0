package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/swaptacular/swpt-login/internal/domain"
	"github.com/swaptacular/swpt-login/internal/ports"
)

type fakeFlusher struct {
	mu         sync.Mutex
	signalType string
	counts     []int
	err        error
	calls      int
}

func (f *fakeFlusher) SignalType() string { return f.signalType }

func (f *fakeFlusher) FlushBurst(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	if len(f.counts) == 0 {
		return 0, nil
	}
	n := f.counts[0]
	f.counts = f.counts[1:]
	return n, nil
}

func (f *fakeFlusher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFlushOnceSumsBursts(t *testing.T) {
	t.Parallel()

	failing := &fakeFlusher{signalType: "deactivate_user", err: errors.New("db down")}
	flushers := []ports.SignalFlusher{
		&fakeFlusher{signalType: "activate_user", counts: []int{3}},
		failing,
		&fakeFlusher{signalType: "user_update", counts: []int{2}},
	}
	engine := NewFlushEngine(discardLogger(), flushers, FlushConfig{})

	n, err := engine.FlushOnce(context.Background(), "w1")
	if n != 5 {
		t.Fatalf("expected 5 processed rows, got %d", n)
	}
	if err == nil || !errors.Is(err, failing.err) {
		t.Fatalf("expected the failing flusher's error, got %v", err)
	}
}

func TestRunQuitEarly(t *testing.T) {
	t.Parallel()

	flusher := &fakeFlusher{signalType: "activate_user"}
	engine := NewFlushEngine(discardLogger(), []ports.SignalFlusher{flusher}, FlushConfig{
		Period:    time.Hour,
		Processes: 3,
		QuitEarly: true,
	})
	if err := engine.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if got := flusher.callCount(); got != 3 {
		t.Fatalf("expected one burst per worker, got %d", got)
	}
}

func TestRunStopsOnUserIDReuse(t *testing.T) {
	t.Parallel()

	reused := &fakeFlusher{signalType: "activate_user", err: domain.ErrUserIDReused}
	other := &fakeFlusher{signalType: "user_update"}
	engine := NewFlushEngine(discardLogger(), []ports.SignalFlusher{reused, other}, FlushConfig{Period: time.Millisecond})

	err := engine.Run(context.Background())
	if !errors.Is(err, domain.ErrUserIDReused) {
		t.Fatalf("expected ErrUserIDReused, got %v", err)
	}
	if other.callCount() != 0 {
		t.Fatalf("flushing must stop at the consistency violation")
	}
}

func TestRunStopsBetweenCycles(t *testing.T) {
	t.Parallel()

	flusher := &fakeFlusher{signalType: "activate_user"}
	engine := NewFlushEngine(discardLogger(), []ports.SignalFlusher{flusher}, FlushConfig{Period: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- engine.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for flusher.callCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("flush engine did not stop")
	}
	if flusher.callCount() < 2 {
		t.Fatalf("expected repeated cycles, got %d", flusher.callCount())
	}
}

func TestKafkaTopicMapping(t *testing.T) {
	t.Parallel()

	if _, err := NewKafkaPublisher(nil, nil, 0); err == nil {
		t.Fatal("expected an error without brokers")
	}
	p, err := NewKafkaPublisher([]string{"localhost:9092"}, map[string]string{"user.updated": "swpt-login.user-update"}, 0)
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	defer p.Close()

	if got := p.topicFor("user.updated"); got != "swpt-login.user-update" {
		t.Fatalf("unexpected mapped topic %q", got)
	}
	if got := p.topicFor("other"); got != "other" {
		t.Fatalf("unmapped events must use their type as topic, got %q", got)
	}
}
