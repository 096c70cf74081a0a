package output

import "testing"

func TestNewHasOneDefaultWindow(t *testing.T) {
	d := New()
	if d.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", d.Count())
	}
	w, ok := d.Window(0)
	if !ok || !w.Enabled || !w.Decoration {
		t.Fatalf("default window = %+v, want enabled+decorated", w)
	}
}

func TestAddWindowRespectsMaxWindows(t *testing.T) {
	d := New()
	for d.Count() < MaxWindows {
		if idx := d.AddWindow(); idx < 0 {
			t.Fatalf("AddWindow failed before reaching MaxWindows (have %d)", d.Count())
		}
	}
	if idx := d.AddWindow(); idx != -1 {
		t.Fatalf("AddWindow beyond MaxWindows = %d, want -1", idx)
	}
}

func TestSetFullscreenSetsMonitorName(t *testing.T) {
	d := New()
	if err := d.SetFullscreen(0, true, "DP-1"); err != nil {
		t.Fatal(err)
	}
	w, _ := d.Window(0)
	if w.Mode != Fullscreen || w.MonitorName != "DP-1" {
		t.Fatalf("window = %+v, want fullscreen on DP-1", w)
	}

	if err := d.SetFullscreen(0, false, ""); err != nil {
		t.Fatal(err)
	}
	w, _ = d.Window(0)
	if w.Mode != Windowed {
		t.Fatalf("window mode = %v, want windowed", w.Mode)
	}
}

func TestMutateOutOfRangeReturnsError(t *testing.T) {
	d := New()
	if err := d.SetEnabled(5, false); err == nil {
		t.Fatal("expected error for out-of-range window index")
	}
}

func TestRemoveWindowShiftsIndices(t *testing.T) {
	d := New()
	d.AddWindow()
	d.AddWindow()
	if err := d.SetTestPattern(1, true); err != nil {
		t.Fatal(err)
	}
	if err := d.RemoveWindow(0); err != nil {
		t.Fatal(err)
	}
	w, ok := d.Window(0)
	if !ok || !w.ShowTestPattern {
		t.Fatalf("window 0 after removal = %+v, want the old window 1's state", w)
	}
}

func TestSetColorCorrectionIsAtomic(t *testing.T) {
	d := New()
	wb := WhiteBalance{R: 1.1, G: 0.9, B: 1.0, K: 6500}
	if err := d.SetColorCorrection(0, wb, 1.2, 0.8); err != nil {
		t.Fatal(err)
	}
	w, _ := d.Window(0)
	if w.WhiteBalance != wb || w.Brightness != 1.2 || w.Contrast != 0.8 {
		t.Fatalf("window = %+v, want wb=%+v brightness=1.2 contrast=0.8", w, wb)
	}
}
