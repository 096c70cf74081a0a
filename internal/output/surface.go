// Package output implements the Output Surface Distributor (§4.8): the
// in-memory state for up to MaxWindows physical output windows that the
// collaborating GUI mutates and the renderer samples once per tick.
//
// The flat, mutex-guarded struct-of-fields shape follows the teacher's own
// Config/Server field layout (internal/server/server.go) rather than any
// windowing library — window management itself is out of scope, only the
// state bookkeeping is in scope here.
package output

import (
	"fmt"
	"sync"
)

// MaxWindows bounds the number of output windows the distributor tracks
// (§4.8).
const MaxWindows = 4

// Mode is a window's display mode.
type Mode int

const (
	Windowed Mode = iota
	Fullscreen
)

func (m Mode) String() string {
	if m == Fullscreen {
		return "fullscreen"
	}
	return "windowed"
}

// Rect is a window's position and size in screen coordinates.
type Rect struct {
	X, Y, W, H int
}

// Vec2 is one distortion-fit control point.
type Vec2 struct {
	X, Y float64
}

// WhiteBalance is a window's per-channel colour temperature correction.
type WhiteBalance struct {
	R, G, B, K float64
}

// Window is the per-window state named in §4.8.
type Window struct {
	Enabled         bool
	Mode            Mode
	MonitorName     string
	Rect            Rect
	Decoration      bool
	WhiteBalance    WhiteBalance
	Brightness      float64
	Contrast        float64
	DistortionNodes [4]Vec2
	ShowTestPattern bool
}

func newWindow() Window {
	return Window{
		Enabled:    true,
		Decoration: true,
		Brightness: 1,
		Contrast:   1,
	}
}

// Distributor tracks the output windows. Every mutator is idempotent and
// takes effect immediately; the renderer samples Window() once per tick
// (§4.8: "applying any parameter is idempotent and immediate").
type Distributor struct {
	mu      sync.Mutex
	windows []Window
}

// New returns a Distributor with one default window, matching a freshly
// started single-monitor session.
func New() *Distributor {
	return &Distributor{windows: []Window{newWindow()}}
}

// Count returns the number of tracked windows.
func (d *Distributor) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.windows)
}

// Window returns a copy of window i's state.
func (d *Distributor) Window(i int) (Window, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i < 0 || i >= len(d.windows) {
		return Window{}, false
	}
	return d.windows[i], true
}

// AddWindow appends a new default window, up to MaxWindows. Returns the new
// window's index, or -1 if the cap is already reached.
func (d *Distributor) AddWindow() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.windows) >= MaxWindows {
		return -1
	}
	d.windows = append(d.windows, newWindow())
	return len(d.windows) - 1
}

// RemoveWindow drops window i. The remaining windows keep their own
// indices shifted down, same as a slice delete.
func (d *Distributor) RemoveWindow(i int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i < 0 || i >= len(d.windows) {
		return fmt.Errorf("output: window index %d out of range", i)
	}
	d.windows = append(d.windows[:i], d.windows[i+1:]...)
	return nil
}

// SetEnabled toggles a window on or off without disturbing its other state.
func (d *Distributor) SetEnabled(i int, enabled bool) error {
	return d.mutate(i, func(w *Window) { w.Enabled = enabled })
}

// SetRect changes a window's position and size.
func (d *Distributor) SetRect(i int, r Rect) error {
	return d.mutate(i, func(w *Window) { w.Rect = r })
}

// SetFullscreen toggles fullscreen mode on the named monitor, or returns to
// windowed mode when fullscreen is false (monitorName is then ignored).
func (d *Distributor) SetFullscreen(i int, fullscreen bool, monitorName string) error {
	return d.mutate(i, func(w *Window) {
		if fullscreen {
			w.Mode = Fullscreen
			w.MonitorName = monitorName
		} else {
			w.Mode = Windowed
		}
	})
}

// SetDecoration toggles the window chrome.
func (d *Distributor) SetDecoration(i int, decorated bool) error {
	return d.mutate(i, func(w *Window) { w.Decoration = decorated })
}

// SetColorCorrection sets a window's white balance, brightness and
// contrast in one atomic update.
func (d *Distributor) SetColorCorrection(i int, wb WhiteBalance, brightness, contrast float64) error {
	return d.mutate(i, func(w *Window) {
		w.WhiteBalance = wb
		w.Brightness = brightness
		w.Contrast = contrast
	})
}

// SetDistortionNodes sets the custom-fit distortion control points.
func (d *Distributor) SetDistortionNodes(i int, nodes [4]Vec2) error {
	return d.mutate(i, func(w *Window) { w.DistortionNodes = nodes })
}

// SetTestPattern toggles the window's test-pattern overlay.
func (d *Distributor) SetTestPattern(i int, show bool) error {
	return d.mutate(i, func(w *Window) { w.ShowTestPattern = show })
}

func (d *Distributor) mutate(i int, fn func(w *Window)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i < 0 || i >= len(d.windows) {
		return fmt.Errorf("output: window index %d out of range", i)
	}
	fn(&d.windows[i])
	return nil
}
