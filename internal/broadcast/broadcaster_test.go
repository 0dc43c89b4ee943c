package broadcast

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/haldardhruv/foamchalak/internal/domain"
)

type recordingSink struct {
	lines []string
}

func (s *recordingSink) WriteLine(line domain.OutputLine) error {
	s.lines = append(s.lines, line.Text)
	return nil
}

func publishN(b *Broadcaster, n int) {
	for i := 0; i < n; i++ {
		b.Publish(domain.OutputLine{RunID: "r", Text: fmt.Sprintf("line-%d", i), Channel: domain.ChannelStdout})
	}
}

func TestPublish_DeliversInOrder(t *testing.T) {
	b := New()
	sink := &recordingSink{}
	b.SetSink(sink)

	sub := b.Subscribe(16)
	publishN(b, 10)
	b.Unsubscribe(sub)

	var got []string
	for line := range sub.Lines() {
		got = append(got, line.Text)
	}

	if len(got) != 10 {
		t.Fatalf("got %d lines, want 10", len(got))
	}
	for i, text := range got {
		if text != fmt.Sprintf("line-%d", i) {
			t.Errorf("line %d = %q", i, text)
		}
		if text != sink.lines[i] {
			t.Errorf("subscriber order diverges from sink at %d: %q vs %q", i, text, sink.lines[i])
		}
	}
}

func TestPublish_LateSubscriberMissesEarlierLines(t *testing.T) {
	b := New()

	publishN(b, 5)
	sub := b.Subscribe(16)
	publishN(b, 2)
	b.Unsubscribe(sub)

	count := 0
	for range sub.Lines() {
		count++
	}
	if count != 2 {
		t.Errorf("late subscriber got %d lines, want 2", count)
	}
}

func TestPublish_SlowSubscriberIsDropped(t *testing.T) {
	b := New()
	sink := &recordingSink{}
	b.SetSink(sink)

	slow := b.Subscribe(2)
	fast := b.Subscribe(16)

	publishN(b, 5)

	if b.SubscriberCount() != 1 {
		t.Errorf("subscriber count = %d, want 1 after overflow drop", b.SubscriberCount())
	}
	if !errors.Is(slow.Err(), domain.ErrSubscriberOverflow) {
		t.Errorf("slow.Err() = %v, want ErrSubscriberOverflow", slow.Err())
	}

	// The sink never drops.
	if len(sink.lines) != 5 {
		t.Errorf("sink got %d lines, want 5", len(sink.lines))
	}

	// The surviving subscriber got everything.
	b.Unsubscribe(fast)
	count := 0
	for range fast.Lines() {
		count++
	}
	if count != 5 {
		t.Errorf("fast subscriber got %d lines, want 5", count)
	}
	if fast.Err() != nil {
		t.Errorf("fast.Err() = %v, want nil", fast.Err())
	}
}

func TestUnsubscribe_AfterDropIsSafe(t *testing.T) {
	b := New()
	sub := b.Subscribe(1)
	publishN(b, 3)

	// Dropped by overflow; a duplicate unsubscribe must not panic.
	b.Unsubscribe(sub)
	b.Unsubscribe(sub)
}

func TestSubscribe_DefaultBuffer(t *testing.T) {
	b := New()
	sub := b.Subscribe(0)
	if cap(sub.ch) != DefaultBuffer {
		t.Errorf("cap = %d, want %d", cap(sub.ch), DefaultBuffer)
	}
}

type failingSink struct {
	failAfter int
	writes    int
}

func (s *failingSink) WriteLine(line domain.OutputLine) error {
	s.writes++
	if s.writes > s.failAfter {
		return fmt.Errorf("write %d: disk full", s.writes)
	}
	return nil
}

func TestSinkErr_FirstErrorIsRecorded(t *testing.T) {
	b := New()
	b.SetSink(&failingSink{failAfter: 2})

	publishN(b, 5)

	err := b.SinkErr()
	if err == nil {
		t.Fatal("SinkErr() = nil, want the first write failure")
	}
	if err.Error() != "write 3: disk full" {
		t.Errorf("SinkErr() = %v, want the first failure, not a later one", err)
	}
}

func TestSinkErr_ClearedOnNewSink(t *testing.T) {
	b := New()
	b.SetSink(&failingSink{})
	publishN(b, 1)
	if b.SinkErr() == nil {
		t.Fatal("expected a sink error")
	}

	// Detaching keeps the error visible for the terminal summary.
	b.SetSink(nil)
	if b.SinkErr() == nil {
		t.Error("SinkErr() cleared on detach, must survive until the next run")
	}

	// A fresh sink starts clean.
	b.SetSink(&recordingSink{})
	if b.SinkErr() != nil {
		t.Errorf("SinkErr() = %v after new sink, want nil", b.SinkErr())
	}
}

func TestPublish_ConcurrentSubscriberReads(t *testing.T) {
	b := New()
	sub := b.Subscribe(128)

	done := make(chan int)
	go func() {
		count := 0
		for range sub.Lines() {
			count++
		}
		done <- count
	}()

	publishN(b, 100)
	b.Unsubscribe(sub)

	select {
	case count := <-done:
		if count != 100 {
			t.Errorf("got %d lines, want 100", count)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("reader did not finish")
	}
}
