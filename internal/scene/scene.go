// Package scene is a minimal in-memory stand-in for the (out-of-scope)
// scene graph: a named, ordered set of sources implementing types.Source
// plus a session snapshot list implementing types.SessionSnapshots. The
// real scene graph, its views and its XML (de)serialisation are explicit
// Non-goals of the core (§1); this package exists only so cmd/vimix has a
// concrete collaborator to hand internal/control, the same way the
// teacher's own cmd/bunghole supplies NewCapturer/NewEncoder factories for
// collaborators that live outside the core package tree.
//
// Grounded on internal/output's flat mutex-guarded struct-of-slices shape
// (teacher-style bookkeeping, not a library) — stdlib only, justified in
// SPEC_FULL.md: there is no session/scene-graph library in the pack to
// reach for.
package scene

import (
	"fmt"
	"sync"

	"vimix/internal/types"
)

// source is the default in-memory implementation of types.Source.
type source struct {
	mu    sync.Mutex
	name  string
	alpha float64
	depth float64
	x, y  float64
	sx, sy float64
	angle float64
	playing bool
}

// NewSource returns a types.Source with neutral geometry and full opacity.
func NewSource(name string) types.Source {
	return &source{name: name, alpha: 1, sx: 1, sy: 1}
}

func (s *source) Name() string { return s.name }

func (s *source) Play(on bool)  { s.mu.Lock(); s.playing = on; s.mu.Unlock() }
func (s *source) Pause(on bool) { s.mu.Lock(); s.playing = !on; s.mu.Unlock() }
func (s *source) Replay()       {}

func (s *source) Alpha() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alpha
}

func (s *source) SetAlpha(v float64) {
	s.mu.Lock()
	s.alpha = types.Clamp01(v)
	s.mu.Unlock()
}

func (s *source) SetDepth(v float64) { s.mu.Lock(); s.depth = v; s.mu.Unlock() }

// Loom applies a relative nudge to alpha (§9 open question resolution).
func (s *source) Loom(delta float64) {
	s.mu.Lock()
	s.alpha = types.Clamp01(s.alpha + delta)
	s.mu.Unlock()
}

func (s *source) Grab(dx, dy float64) {
	s.mu.Lock()
	s.x += dx
	s.y += dy
	s.mu.Unlock()
}

func (s *source) Resize(dx, dy float64) {
	s.mu.Lock()
	s.sx += dx
	s.sy += dy
	s.mu.Unlock()
}

func (s *source) Turn(angle float64) {
	s.mu.Lock()
	s.angle += angle
	s.mu.Unlock()
}

func (s *source) ResetGeometry() {
	s.mu.Lock()
	s.x, s.y, s.sx, s.sy, s.angle = 0, 0, 1, 1, 0
	s.mu.Unlock()
}

// Set is an ordered, named collection of sources implementing
// control.SourceSet, plus a "current" and "selected" cursor.
type Set struct {
	mu       sync.Mutex
	sources  []types.Source
	names    map[string]int
	current  int
	selected map[int]bool
}

// NewSet returns an empty source set.
func NewSet() *Set {
	return &Set{names: make(map[string]int), selected: make(map[int]bool)}
}

// Add appends src and returns its index.
func (s *Set) Add(src types.Source) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := len(s.sources)
	s.sources = append(s.sources, src)
	s.names[src.Name()] = i
	return i
}

func (s *Set) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sources)
}

func (s *Set) ByIndex(i int) (types.Source, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.sources) {
		return nil, false
	}
	return s.sources[i], true
}

func (s *Set) ByName(name string) (types.Source, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.names[name]
	if !ok {
		return nil, 0, false
	}
	return s.sources[i], i, true
}

func (s *Set) AllIndices() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, len(s.sources))
	for i := range out {
		out[i] = i
	}
	return out
}

// Select marks an index as part of the "selected" set (§4.7 target).
func (s *Set) Select(i int, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if on {
		s.selected[i] = true
	} else {
		delete(s.selected, i)
	}
}

func (s *Set) SelectedIndices() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []int
	for i := range s.sources {
		if s.selected[i] {
			out = append(out, i)
		}
	}
	return out
}

func (s *Set) CurrentIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Set) SetCurrentIndex(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.sources) {
		return
	}
	s.current = i
}

// snapshotRecord is the minimal bit of state a Snapshots entry restores:
// which index was current. A full session graph snapshot is out of scope
// (§1 Non-goals: "Session XML (de)serialisation"); only what
// /session/version needs to demonstrably restore is modeled here.
type snapshotRecord struct {
	label        string
	currentIndex int
}

// Snapshots is an append-only, ordinal-addressed list implementing
// types.SessionSnapshots (§4.7 "/session/version").
type Snapshots struct {
	mu      sync.Mutex
	records []snapshotRecord
	set     *Set
}

// NewSnapshots returns a Snapshots collaborator that restores onto set.
func NewSnapshots(set *Set) *Snapshots {
	return &Snapshots{set: set}
}

// Take appends a new snapshot capturing the set's current index.
func (sn *Snapshots) Take(label string) {
	sn.mu.Lock()
	defer sn.mu.Unlock()
	sn.records = append(sn.records, snapshotRecord{label: label, currentIndex: sn.set.CurrentIndex()})
}

func (sn *Snapshots) Count() int {
	sn.mu.Lock()
	defer sn.mu.Unlock()
	return len(sn.records)
}

func (sn *Snapshots) Restore(index int) error {
	sn.mu.Lock()
	if index < 0 || index >= len(sn.records) {
		sn.mu.Unlock()
		return fmt.Errorf("scene: snapshot %d out of range (have %d)", index, len(sn.records))
	}
	rec := sn.records[index]
	sn.mu.Unlock()

	sn.set.SetCurrentIndex(rec.currentIndex)
	return nil
}
