package viewer

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"vimix/internal/grabber"
	"vimix/internal/types"
)

type stubSink struct{}

func (stubSink) Init(types.Caps) (string, error)       { return "ok", nil }
func (stubSink) Push(*types.Frame, time.Duration) error { return nil }
func (stubSink) Close() error                          { return nil }

type fakeFabric struct {
	registered int
}

func (f *fakeFabric) Register(g interface {
	ID() uint64
	AddFrame(frame *types.Frame, caps types.Caps)
	Active() bool
	AcceptBuffer() bool
	Finished() bool
	Stop()
	Terminate()
	CheckTimeout()
}) {
	f.registered++
}

func TestCheckAuthNoTokenAlwaysPasses(t *testing.T) {
	s := New(Config{})
	req := httptest.NewRequest(http.MethodPost, "/whep", nil)
	if !s.checkAuth(req) {
		t.Fatal("empty Token config must allow every request")
	}
}

func TestCheckAuthRequiresBearerToken(t *testing.T) {
	s := New(Config{Token: "secret"})
	req := httptest.NewRequest(http.MethodPost, "/whep", nil)
	if s.checkAuth(req) {
		t.Fatal("missing Authorization header should fail auth")
	}
	req.Header.Set("Authorization", "Bearer secret")
	if !s.checkAuth(req) {
		t.Fatal("correct bearer token should pass auth")
	}
}

func TestWatchRemovesSessionOnStop(t *testing.T) {
	s := New(Config{Fabric: &fakeFabric{}})
	sess, err := newSession("sess-1", "h264")
	if err != nil {
		t.Fatal(err)
	}
	sess.Grabber = grabber.NewBase(types.KindWebRTC, stubSink{}, 0, time.Millisecond)

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.watch(sess)
		close(done)
	}()

	sess.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not return after session close")
	}

	s.mu.Lock()
	_, exists := s.sessions[sess.ID]
	s.mu.Unlock()
	if exists {
		t.Fatal("watch must remove the session from the registry on Stop")
	}
}

func TestTeardownClosesAllSessions(t *testing.T) {
	s := New(Config{})
	sess, err := newSession("sess-1", "h264")
	if err != nil {
		t.Fatal(err)
	}
	sess.Grabber = grabber.NewBase(types.KindWebRTC, stubSink{}, 0, time.Millisecond)
	s.sessions[sess.ID] = sess

	s.Teardown()

	if !sess.IsClosed() {
		t.Fatal("Teardown must close every tracked session")
	}
	if len(s.sessions) != 0 {
		t.Fatalf("Teardown must empty the session registry, got %d left", len(s.sessions))
	}
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	sess, err := newSession("sess-1", "h265")
	if err != nil {
		t.Fatal(err)
	}
	sess.Close()
	sess.Close() // must not panic on double-close (closing a closed channel)
	if !sess.IsClosed() {
		t.Fatal("expected session to report closed")
	}
}
