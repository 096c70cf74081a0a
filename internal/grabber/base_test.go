package grabber

import (
	"errors"
	"sync"
	"testing"
	"time"

	"vimix/internal/types"
)

type fakeSink struct {
	mu       sync.Mutex
	pushed   []time.Duration
	initErr  error
	pushErr  error
	closed   bool
}

func (s *fakeSink) Init(caps types.Caps) (string, error) {
	if s.initErr != nil {
		return "", s.initErr
	}
	return "ok", nil
}

func (s *fakeSink) Push(frame *types.Frame, ts time.Duration) error {
	if s.pushErr != nil {
		return s.pushErr
	}
	s.mu.Lock()
	s.pushed = append(s.pushed, ts)
	s.mu.Unlock()
	return nil
}

func (s *fakeSink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fakeSink) pushCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pushed)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestBaseLazyInitDropsTriggeringFrame(t *testing.T) {
	sink := &fakeSink{}
	b := NewBase(types.KindGeneric, sink, 0, 0)

	b.AddFrame(&types.Frame{}, types.Caps{})
	waitFor(t, func() bool { return b.Active() })

	if sink.pushCount() != 0 {
		t.Fatalf("triggering frame should be dropped during init, got %d pushes", sink.pushCount())
	}

	b.AddFrame(&types.Frame{}, types.Caps{})
	waitFor(t, func() bool { return sink.pushCount() == 1 })
}

func TestBaseInitFailureMarksFinished(t *testing.T) {
	sink := &fakeSink{initErr: errors.New("boom")}
	b := NewBase(types.KindGeneric, sink, 0, 0)
	b.AddFrame(&types.Frame{}, types.Caps{})
	waitFor(t, func() bool { return b.Finished() })
	if b.Active() {
		t.Fatal("finished grabber must not be active (§8 property 3)")
	}
}

func TestBasePushErrorClearsAcceptBuffer(t *testing.T) {
	sink := &fakeSink{pushErr: errors.New("encoder crashed")}
	b := NewBase(types.KindGeneric, sink, 0, 0)
	b.AddFrame(&types.Frame{}, types.Caps{}) // triggering frame, dropped during init
	waitFor(t, func() bool { return b.Active() })

	b.AddFrame(&types.Frame{}, types.Caps{}) // this push fails and finishes the grabber
	waitFor(t, func() bool { return b.Finished() })

	if b.Active() || b.AcceptBuffer() {
		t.Fatal("§8 property 3: finished ⇒ ¬active ∧ ¬accept_buffer, even on a fatal push error")
	}
}

func TestBaseStopIsIdempotentAndFinalizes(t *testing.T) {
	sink := &fakeSink{}
	b := NewBase(types.KindGeneric, sink, 0, 0)
	b.AddFrame(&types.Frame{}, types.Caps{})
	waitFor(t, func() bool { return b.Active() })

	b.Stop()
	b.Stop() // idempotent, must not panic or double-close

	waitFor(t, func() bool { return b.Finished() })
	if b.Active() || b.AcceptBuffer() {
		t.Fatal("stopped+finished grabber must not be active or accept_buffer")
	}
	sink.mu.Lock()
	closed := sink.closed
	sink.mu.Unlock()
	if !closed {
		t.Fatal("sink should have been closed on EOS")
	}
}

func TestBaseDurationConstantWhilePaused(t *testing.T) {
	sink := &fakeSink{}
	b := NewBase(types.KindGeneric, sink, 0, 0)
	b.AddFrame(&types.Frame{}, types.Caps{})
	waitFor(t, func() bool { return b.Active() })

	time.Sleep(20 * time.Millisecond)
	b.Pause(true)
	d1 := b.Duration()
	time.Sleep(30 * time.Millisecond)
	d2 := b.Duration()
	if d1 != d2 {
		t.Fatalf("duration must be constant while paused: %v vs %v", d1, d2)
	}

	b.Pause(false)
	time.Sleep(10 * time.Millisecond)
	if b.Duration() < d2 {
		t.Fatal("duration must resume increasing after unpause")
	}
}

func TestBaseDropsFramesWhilePaused(t *testing.T) {
	sink := &fakeSink{}
	b := NewBase(types.KindGeneric, sink, 0, 0)
	b.AddFrame(&types.Frame{}, types.Caps{})
	waitFor(t, func() bool { return b.Active() })

	b.Pause(true)
	b.AddFrame(&types.Frame{}, types.Caps{})
	time.Sleep(10 * time.Millisecond)
	if sink.pushCount() != 0 {
		t.Fatal("frames must be dropped while paused")
	}
}

func TestBaseCheckTimeoutStopsNearDeadline(t *testing.T) {
	sink := &fakeSink{}
	frameDur := 10 * time.Millisecond
	b := NewBase(types.KindGeneric, sink, 25*time.Millisecond, frameDur)
	b.AddFrame(&types.Frame{}, types.Caps{})
	waitFor(t, func() bool { return b.Active() })

	time.Sleep(15 * time.Millisecond) // duration now >= 25 - 2*10 = 5ms
	b.CheckTimeout()
	waitFor(t, func() bool { return b.Finished() })
}

func TestBaseTerminateRunsOnce(t *testing.T) {
	sink := &fakeSink{}
	calls := 0
	b := NewBase(types.KindGeneric, sink, 0, 0).WithTerminate(func() { calls++ })
	b.Terminate()
	b.Terminate()
	if calls != 1 {
		t.Fatalf("terminate hook ran %d times, want 1", calls)
	}
}
