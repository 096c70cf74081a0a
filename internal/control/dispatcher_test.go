package control

import (
	"net"
	"testing"

	"vimix/internal/oscwire"
	"vimix/internal/types"
)

type fakeSource struct {
	name  string
	alpha float64
}

func (s *fakeSource) Name() string          { return s.name }
func (s *fakeSource) Play(bool)              {}
func (s *fakeSource) Pause(bool)             {}
func (s *fakeSource) Replay()                {}
func (s *fakeSource) Alpha() float64         { return s.alpha }
func (s *fakeSource) SetAlpha(v float64)     { s.alpha = v }
func (s *fakeSource) SetDepth(float64)       {}
func (s *fakeSource) Loom(float64)           {}
func (s *fakeSource) Grab(float64, float64)  {}
func (s *fakeSource) Resize(float64, float64) {}
func (s *fakeSource) Turn(float64)           {}
func (s *fakeSource) ResetGeometry()         {}

type fakeSources struct {
	sources []*fakeSource
	current int
}

func (f *fakeSources) Count() int { return len(f.sources) }
func (f *fakeSources) ByIndex(i int) (types.Source, bool) {
	if i < 0 || i >= len(f.sources) {
		return nil, false
	}
	return f.sources[i], true
}
func (f *fakeSources) ByName(name string) (types.Source, int, bool) {
	for i, s := range f.sources {
		if s.name == name {
			return s, i, true
		}
	}
	return nil, 0, false
}
func (f *fakeSources) AllIndices() []int {
	idx := make([]int, len(f.sources))
	for i := range idx {
		idx[i] = i
	}
	return idx
}
func (f *fakeSources) SelectedIndices() []int { return f.AllIndices() }
func (f *fakeSources) CurrentIndex() int      { return f.current }
func (f *fakeSources) SetCurrentIndex(i int)  { f.current = i }

type fakeSnapshots struct {
	count     int
	restored  int
	restoreErr error
}

func (s *fakeSnapshots) Count() int { return s.count }
func (s *fakeSnapshots) Restore(i int) error {
	s.restored = i
	return s.restoreErr
}

func newTestDispatcher() (*Dispatcher, *fakeSnapshots, *fakeSources) {
	snaps := &fakeSnapshots{count: 5}
	srcs := &fakeSources{sources: []*fakeSource{
		{name: "a", alpha: 0.1}, {name: "b", alpha: 0.5}, {name: "c", alpha: 0.9},
	}, current: 1}
	d := New("vimix", 7001, snaps, srcs)
	return d, snaps, srcs
}

func TestDispatchCurrentNextAdvancesIndex(t *testing.T) {
	d, _, srcs := newTestDispatcher()
	msg := oscwire.Message{Address: "/vimix/current/next"}
	d.Dispatch(msg, &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 9000})

	if srcs.CurrentIndex() != 2 {
		t.Fatalf("current index = %d, want 2", srcs.CurrentIndex())
	}
}

func TestDispatchSessionVersionRestoresSnapshot(t *testing.T) {
	d, snaps, _ := newTestDispatcher()
	msg := oscwire.Message{Address: "/vimix/session/version", Args: []any{float32(2.0)}}
	d.Dispatch(msg, &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 9000})

	if snaps.restored != 2 {
		t.Fatalf("restored index = %d, want 2", snaps.restored)
	}
}

func TestDispatchSessionVersionCountsBackFromMostRecent(t *testing.T) {
	d, snaps, _ := newTestDispatcher()
	snaps.count = 10
	msg := oscwire.Message{Address: "/vimix/session/version", Args: []any{float32(2.0)}}
	d.Dispatch(msg, &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 9000})

	if snaps.restored != 7 {
		t.Fatalf("restored index = %d, want 7 (2nd-from-the-end of 10)", snaps.restored)
	}
}

func TestDispatchSessionVersionOutOfRangeIsNoop(t *testing.T) {
	d, snaps, _ := newTestDispatcher()
	snaps.restored = -1
	msg := oscwire.Message{Address: "/vimix/session/version", Args: []any{float32(99)}}
	d.Dispatch(msg, &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 9000})

	if snaps.restored != -1 {
		t.Fatal("out-of-range snapshot index must not call Restore")
	}
}

func TestDispatchOutputEnableDisable(t *testing.T) {
	d, _, _ := newTestDispatcher()
	d.Dispatch(oscwire.Message{Address: "/vimix/output/disable", Args: []any{float32(1.0)}}, nil)
	if !d.OutputState().RenderDisabled {
		t.Fatal("expected render_disabled = true after /output/disable 1.0")
	}
	d.Dispatch(oscwire.Message{Address: "/vimix/output/enable", Args: []any{float32(1.0)}}, nil)
	if d.OutputState().RenderDisabled {
		t.Fatal("expected render_disabled = false after /output/enable 1.0")
	}
}

func TestDispatchNamedSourceAlpha(t *testing.T) {
	d, _, srcs := newTestDispatcher()
	d.Dispatch(oscwire.Message{Address: "/vimix/a/alpha", Args: []any{float32(0.75)}}, nil)
	if srcs.sources[0].alpha != 0.75 {
		t.Fatalf("alpha = %v, want 0.75", srcs.sources[0].alpha)
	}
}

func TestDispatchTransparencyIsOneMinusAlpha(t *testing.T) {
	d, _, srcs := newTestDispatcher()
	d.Dispatch(oscwire.Message{Address: "/vimix/b/transparency", Args: []any{float32(0.3)}}, nil)
	// The argument travels as float32, so the exact result is 1 - float64(float32(0.3)).
	want := 1 - float64(float32(0.3))
	if srcs.sources[1].alpha != want {
		t.Fatalf("alpha = %v, want %v (transparency=0.3)", srcs.sources[1].alpha, want)
	}
}

func TestDispatchUnknownAddressLogsAndDoesNotPanic(t *testing.T) {
	d, _, _ := newTestDispatcher()
	d.Dispatch(oscwire.Message{Address: "/vimix/nonexistent/thing"}, nil)
}

func TestTranslatorIdempotence(t *testing.T) {
	tr := NewTranslator()
	table := map[string]string{"/old/path": "/new/path"}
	tr.table.Store(&table)

	once := tr.Translate("/old/path")
	twice := tr.Translate(once)
	if once != twice {
		t.Fatalf("translate(translate(x)) = %q, want %q (idempotent, acyclic table)", twice, once)
	}
}
