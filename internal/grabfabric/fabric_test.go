package grabfabric

import (
	"sync"
	"testing"

	"vimix/internal/types"
)

type fakeFB struct {
	w, h  int
	alpha bool
	fill  byte
}

func (f *fakeFB) TextureID() uint64 { return 1 }
func (f *fakeFB) Width() int        { return f.w }
func (f *fakeFB) Height() int       { return f.h }
func (f *fakeFB) Alpha() bool       { return f.alpha }
func (f *fakeFB) RequestReadback(dst []byte) error {
	for i := range dst {
		dst[i] = f.fill
	}
	return nil
}

type fakeGrabber struct {
	mu       sync.Mutex
	id       uint64
	active   bool
	accept   bool
	finished bool
	frames   int
	termed   bool
}

func (g *fakeGrabber) ID() uint64 { return g.id }
func (g *fakeGrabber) AddFrame(frame *types.Frame, caps types.Caps) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.frames++
}
func (g *fakeGrabber) Active() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}
func (g *fakeGrabber) AcceptBuffer() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.accept
}
func (g *fakeGrabber) Finished() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.finished
}
func (g *fakeGrabber) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.active = false
}
func (g *fakeGrabber) Terminate() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.termed = true
}
func (g *fakeGrabber) CheckTimeout() {}

func (g *fakeGrabber) frameCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.frames
}

func TestGrabFrameResizeSkipsFanOutOnSecondTick(t *testing.T) {
	f := New()
	g := &fakeGrabber{id: 1, active: true, accept: true}
	f.Register(g)

	fb1 := &fakeFB{w: 4, h: 4, fill: 1}
	if err := f.GrabFrame(fb1); err != nil {
		t.Fatalf("first GrabFrame: %v", err)
	}
	if g.frameCount() != 0 {
		t.Fatalf("first tick must not fan out, got %d frames", g.frameCount())
	}

	fb2 := &fakeFB{w: 8, h: 8, fill: 2} // differing resolution
	if err := f.GrabFrame(fb2); err != nil {
		t.Fatalf("second GrabFrame: %v", err)
	}
	if g.frameCount() != 0 {
		t.Fatalf("resize tick must not fan out (S6), got %d frames", g.frameCount())
	}
	if len(f.staging[0]) != 8*8*3 {
		t.Fatalf("staging buffers not reallocated to new size: got %d bytes", len(f.staging[0]))
	}
}

func TestGrabFrameFansOutAfterStableResolution(t *testing.T) {
	f := New()
	g := &fakeGrabber{id: 1, active: true, accept: true}
	f.Register(g)

	fb := &fakeFB{w: 4, h: 4, fill: 7}
	_ = f.GrabFrame(fb) // tick 1: allocates, stages buffer 0, no fan-out
	_ = f.GrabFrame(fb) // tick 2: restages buffer 0, buffer 1 still empty-flagged
	_ = f.GrabFrame(fb) // tick 3: stages buffer 1, buffer 0 full from tick 2 -> fan out

	if g.frameCount() == 0 {
		t.Fatal("expected at least one fan-out once buffers settle")
	}
}

func TestWalkChainStopsPredecessorOnceSuccessorReady(t *testing.T) {
	f := New()
	oldG := &fakeGrabber{id: 1, active: true, accept: true}
	newG := &fakeGrabber{id: 2, active: false, accept: false}
	f.Register(oldG)
	f.Chain(newG, oldG)

	fb := &fakeFB{w: 2, h: 2}
	_ = f.GrabFrame(fb)
	_ = f.GrabFrame(fb)
	_ = f.GrabFrame(fb)

	if !oldG.Active() {
		t.Fatal("predecessor should still be active before successor accepts a buffer")
	}

	newG.mu.Lock()
	newG.active, newG.accept = true, true
	newG.mu.Unlock()

	_ = f.GrabFrame(fb)
	_ = f.GrabFrame(fb)

	if oldG.Active() {
		t.Fatal("predecessor should have been stopped once successor became active+accept_buffer")
	}
}

func TestPruneTerminatesFinishedGrabbers(t *testing.T) {
	f := New()
	g := &fakeGrabber{id: 9, active: false, accept: false, finished: true}
	f.Register(g)

	fb := &fakeFB{w: 2, h: 2}
	_ = f.GrabFrame(fb)

	if f.Count() != 0 {
		t.Fatalf("finished grabber should have been pruned, Count() = %d", f.Count())
	}
	if !g.termed {
		t.Fatal("Terminate() should have been invoked on the finished grabber")
	}
}
