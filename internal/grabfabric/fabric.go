// Package grabfabric implements the Grab Fabric (§4.4): double-buffered
// asynchronous readback of the render output and fan-out to every
// registered grabber, plus the chain-map handover between a successor and
// the predecessor it replaces.
//
// Grounded on the teacher's internal/server/server.go runPipeline, which
// already runs a single per-tick loop (capture → encode → deliver) guarded
// by one mutex; here the per-tick body is generalized from "one encoder"
// to "fan out to an arbitrary registered set", and the capture step is
// split into the spec's explicit double-buffer dance.
package grabfabric

import (
	"fmt"
	"log"
	"sync"

	"vimix/internal/types"
)

// Grabber is the subset of the grabber lifecycle contract (§4.5) the fabric
// needs to drive fan-out, chaining, and pruning. It is an alias of the
// interface literal, so the structurally matched Fabric interfaces in
// internal/streaming and internal/viewer accept *Fabric.
type Grabber = interface {
	ID() uint64
	AddFrame(frame *types.Frame, caps types.Caps)
	Active() bool
	AcceptBuffer() bool
	Finished() bool
	Stop()
	Terminate()
	CheckTimeout()
}

// Fabric owns the pinned staging buffers and the grabber registry.
type Fabric struct {
	mu sync.Mutex

	width, height int
	alpha         bool
	caps          types.Caps

	staging   [2][]byte
	writeFull [2]bool
	writeIdx  int
	readIdx   int

	grabbers map[uint64]Grabber
	chain    map[uint64]uint64 // successor id -> predecessor id
}

// New returns an empty fabric; the first GrabFrame call allocates staging
// buffers sized to the frame buffer it is given.
func New() *Fabric {
	return &Fabric{
		grabbers: make(map[uint64]Grabber),
		chain:    make(map[uint64]uint64),
	}
}

// Register adds a grabber to the fan-out set.
func (f *Fabric) Register(g Grabber) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.grabbers[g.ID()] = g
}

// Chain records that successor must replace predecessor once the successor
// becomes active and accept_buffer (§4.4 step 5, §8 property 5).
func (f *Fabric) Chain(successor, predecessor Grabber) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.grabbers[successor.ID()] = successor
	f.chain[successor.ID()] = predecessor.ID()
}

// GrabFrame is the one-call-per-render-tick entry point (§4.4).
func (f *Fabric) GrabFrame(fb types.FrameBuffer) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	resized := f.resizeIfNeeded(fb.Width(), fb.Height(), fb.Alpha())

	if err := f.stageWriteBuffer(fb); err != nil {
		return fmt.Errorf("grabfabric: readback failed: %w", err)
	}

	if resized {
		// No valid previously-staged frame at the new resolution yet;
		// skip fan-out this tick (§8 scenario S6). Finished grabbers are
		// still pruned.
		f.prune()
		return nil
	}

	if frame, ok := f.harvestOtherBuffer(); ok {
		f.fanOut(frame)
		f.walkChain()
	}

	f.prune()
	return nil
}

func (f *Fabric) resizeIfNeeded(w, h int, alpha bool) bool {
	if w == f.width && h == f.height && alpha == f.alpha {
		return false
	}
	f.width, f.height, f.alpha = w, h, alpha
	channels := types.Channels(alpha)
	size := w * h * channels
	f.staging[0] = make([]byte, size)
	f.staging[1] = make([]byte, size)
	f.writeFull[0], f.writeFull[1] = false, false
	f.writeIdx, f.readIdx = 0, 0

	format := types.PixFmtRGB
	if alpha {
		format = types.PixFmtRGBA
	}
	f.caps = types.Caps{Format: format, Width: w, Height: h}
	return true
}

func (f *Fabric) stageWriteBuffer(fb types.FrameBuffer) error {
	if err := fb.RequestReadback(f.staging[f.writeIdx]); err != nil {
		return err
	}
	f.writeFull[f.writeIdx] = true
	return nil
}

func (f *Fabric) harvestOtherBuffer() (*types.Frame, bool) {
	other := 1 - f.writeIdx
	var frame *types.Frame
	if f.writeFull[other] {
		data := make([]byte, len(f.staging[other]))
		copy(data, f.staging[other])
		frame = &types.Frame{
			Data:   data,
			Width:  f.width,
			Height: f.height,
			Stride: f.width * types.Channels(f.alpha),
			Alpha:  f.alpha,
		}
		f.writeFull[other] = false
	}

	f.readIdx = f.writeIdx
	f.writeIdx = other

	return frame, frame != nil
}

func (f *Fabric) fanOut(frame *types.Frame) {
	for _, g := range f.grabbers {
		g.AddFrame(frame, f.caps)
	}
	for _, g := range f.grabbers {
		g.CheckTimeout()
	}
}

func (f *Fabric) walkChain() {
	for successorID, predecessorID := range f.chain {
		successor, ok := f.grabbers[successorID]
		if !ok {
			delete(f.chain, successorID)
			continue
		}
		if successor.Active() && successor.AcceptBuffer() {
			if predecessor, ok := f.grabbers[predecessorID]; ok {
				predecessor.Stop()
			}
			delete(f.chain, successorID)
		}
	}
}

func (f *Fabric) prune() {
	for id, g := range f.grabbers {
		if g.Finished() {
			g.Terminate()
			delete(f.grabbers, id)
			log.Printf("grabfabric: grabber %d terminated and pruned", id)
		}
	}
}

// Count returns the number of currently registered grabbers (for tests/UI).
func (f *Fabric) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.grabbers)
}
