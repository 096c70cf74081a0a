// Package grabber implements the Grabber Lifecycle base contract (§4.5):
// a single state machine (Idle → Initializing → Running ↔ Paused → Draining
// → Finished) shared by every sink variant (PNG, Video, P2P Stream, SRT
// Broadcast, Shared Memory, Loopback, WebRTC viewer).
//
// The worker-goroutine-plus-mutex-plus-idempotent-stop shape is grounded on
// the teacher's internal/session/session.go Close() (guarded by a `closed
// bool` under a mutex) and internal/audio/udp_capture.go Run()/Close()
// (sync.Once-guarded shutdown of a goroutine reading off a channel).
package grabber

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"vimix/internal/types"
)

// State is a snapshot of where a grabber sits in the lifecycle diagram.
type State int

const (
	Idle State = iota
	Initializing
	Running
	Paused
	Draining
	Finished
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Initializing:
		return "initializing"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Draining:
		return "draining"
	case Finished:
		return "finished"
	default:
		return "unknown"
	}
}

// Sink is the per-variant behaviour a Base delegates to: build the pipeline,
// push timestamped frames, and release resources at EOS.
type Sink interface {
	// Init builds the sink's pipeline for the given caps and returns a
	// human-readable status string, or an error if construction fails.
	Init(caps types.Caps) (string, error)
	// Push writes one frame at the given pipeline timestamp. Called only
	// from the grabber's own worker goroutine — never concurrently.
	Push(frame *types.Frame, ts time.Duration) error
	// Close finalizes the sink (flush encoder, close file/socket).
	Close() error
}

var idCounter uint64

func nextID() uint64 {
	return atomic.AddUint64(&idCounter, 1)
}

type queuedFrame struct {
	frame *types.Frame
	ts    time.Duration
}

const frameQueueDepth = 8

// Base implements the state machine and bookkeeping common to every
// grabber variant. Variants embed *Base and supply a Sink plus, optionally,
// a terminate hook for OS-level cleanup beyond what Sink.Close does.
type Base struct {
	id            uint64
	kind          types.GrabberKind
	sink          Sink
	maxDuration   time.Duration // 0 = unlimited
	frameDuration time.Duration

	mu               sync.Mutex
	state            State
	initialized      bool
	active           bool
	acceptBuffer     bool
	bufferFull       bool
	paused           bool
	finished         bool
	frameCount       uint64
	keyFrameCount    uint64
	droppedCount     uint64
	firstFrameTime   time.Time
	pauseStart       time.Time
	pauseAccumulated time.Duration
	initStatus       string
	lastErr          error

	frames chan queuedFrame
	stopCh chan struct{}

	stopOnce      sync.Once
	terminateOnce sync.Once
	terminateFunc func()
}

// NewBase constructs a grabber in the Idle state. maxDuration of 0 means no
// timeout; frameDuration is used to compute the timeout guard band
// (max − 2·frame_duration).
func NewBase(kind types.GrabberKind, sink Sink, maxDuration, frameDuration time.Duration) *Base {
	return &Base{
		id:            nextID(),
		kind:          kind,
		sink:          sink,
		maxDuration:   maxDuration,
		frameDuration: frameDuration,
		state:         Idle,
		frames:        make(chan queuedFrame, frameQueueDepth),
		stopCh:        make(chan struct{}),
	}
}

// WithTerminate registers a hook invoked exactly once by Terminate, for
// OS-level cleanup beyond Sink.Close (e.g. removing a socket file).
func (b *Base) WithTerminate(fn func()) *Base {
	b.terminateFunc = fn
	return b
}

func (b *Base) ID() uint64           { return b.id }
func (b *Base) Kind() types.GrabberKind { return b.kind }

func (b *Base) Active() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

func (b *Base) AcceptBuffer() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.acceptBuffer
}

func (b *Base) BufferFull() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bufferFull
}

func (b *Base) Paused() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.paused
}

func (b *Base) Finished() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.finished
}

func (b *Base) FrameCount() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.frameCount
}

// AddFrame is the §4.5 fast path. The very first call lazily starts the
// async init worker; that triggering frame is itself dropped, matching the
// spec's "producer silently drops frames for that grabber" note in §5.
func (b *Base) AddFrame(frame *types.Frame, caps types.Caps) {
	b.mu.Lock()
	if b.state == Idle {
		b.state = Initializing
		go b.runWorker(caps)
	}
	active, paused, full := b.active, b.paused, b.bufferFull
	if !active || paused || full {
		b.droppedCount++
		b.mu.Unlock()
		return
	}
	ts := time.Since(b.firstFrameTime) - b.pauseAccumulated
	b.mu.Unlock()

	select {
	case b.frames <- queuedFrame{frame: frame, ts: ts}:
		b.mu.Lock()
		b.frameCount++
		b.bufferFull = len(b.frames) == cap(b.frames)
		b.mu.Unlock()
	default:
		b.mu.Lock()
		b.bufferFull = true
		b.droppedCount++
		b.mu.Unlock()
	}
}

func (b *Base) runWorker(caps types.Caps) {
	status, err := b.sink.Init(caps)
	if err != nil {
		log.Printf("grabber %d (%s): init failed: %v", b.id, b.kind, err)
		b.mu.Lock()
		b.finished = true
		b.active = false
		b.acceptBuffer = false
		b.lastErr = err
		b.mu.Unlock()
		return
	}

	b.mu.Lock()
	b.initialized = true
	b.active = true
	b.acceptBuffer = true
	b.state = Running
	b.firstFrameTime = time.Now()
	b.initStatus = status
	b.mu.Unlock()

	for {
		select {
		case qf := <-b.frames:
			b.mu.Lock()
			b.bufferFull = len(b.frames) == cap(b.frames)
			b.mu.Unlock()
			if err := b.sink.Push(qf.frame, qf.ts); err != nil {
				log.Printf("grabber %d (%s): sink error, finishing: %v", b.id, b.kind, err)
				b.mu.Lock()
				b.finished = true
				b.active = false
				b.acceptBuffer = false
				b.lastErr = err
				b.mu.Unlock()
				return
			}
		case <-b.stopCh:
			b.drainAndClose()
			return
		}
	}
}

func (b *Base) drainAndClose() {
	b.mu.Lock()
	b.state = Draining
	b.mu.Unlock()

drain:
	for {
		select {
		case qf := <-b.frames:
			_ = b.sink.Push(qf.frame, qf.ts)
		default:
			break drain
		}
	}

	if err := b.sink.Close(); err != nil {
		log.Printf("grabber %d (%s): close error: %v", b.id, b.kind, err)
	}

	b.mu.Lock()
	b.finished = true
	b.state = Finished
	b.mu.Unlock()
}

// Stop is idempotent and asynchronous (§4.5): it marks the grabber inactive
// immediately and signals the worker to drain and finalize.
func (b *Base) Stop() {
	b.stopOnce.Do(func() {
		b.mu.Lock()
		b.active = false
		b.acceptBuffer = false
		b.mu.Unlock()
		close(b.stopCh)
	})
}

// Pause toggles the paused flag, tracking accumulated pause time so that
// Duration stays constant while paused (§8 property 2).
func (b *Base) Pause(p bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p == b.paused {
		return
	}
	if p {
		b.paused = true
		b.pauseStart = time.Now()
		b.state = Paused
	} else {
		b.paused = false
		b.pauseAccumulated += time.Since(b.pauseStart)
		if b.active {
			b.state = Running
		}
	}
}

// Duration returns (now - first_frame_time) - pause_accumulated, held
// constant while paused.
func (b *Base) Duration() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.firstFrameTime.IsZero() {
		return 0
	}
	d := time.Since(b.firstFrameTime) - b.pauseAccumulated
	if b.paused {
		d -= time.Since(b.pauseStart)
	}
	return d
}

// CheckTimeout stops the grabber once duration() ≥ max − 2·frame_duration,
// ensuring a graceful EOS ahead of the sink's own truncation (§4.5).
func (b *Base) CheckTimeout() {
	if b.maxDuration <= 0 {
		return
	}
	if b.Duration() >= b.maxDuration-2*b.frameDuration {
		b.Stop()
	}
}

// Terminate releases OS-level resources beyond what Sink.Close already
// did (e.g. unlinking a socket file). Invoked by the grab fabric once
// Finished is observed; safe to call multiple times.
func (b *Base) Terminate() {
	b.terminateOnce.Do(func() {
		if b.terminateFunc != nil {
			b.terminateFunc()
		}
	})
}

// Info renders a short (or, if extended, multi-field) human-readable status
// line for the UI.
func (b *Base) Info(extended bool) string {
	var d time.Duration
	if extended {
		d = b.Duration() // takes b.mu itself, so read before locking
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !extended {
		return fmt.Sprintf("%s [%s]", b.kind, b.state)
	}
	return fmt.Sprintf(
		"%s #%d [%s] frames=%d dropped=%d key=%d duration=%s status=%q",
		b.kind, b.id, b.state, b.frameCount, b.droppedCount, b.keyFrameCount,
		d.Round(time.Millisecond), b.initStatus,
	)
}
