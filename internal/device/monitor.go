// Package device implements the Device Monitor (§4.2): an ordered,
// lock-protected list of audio capture devices, refreshed by a background
// poll loop and exposed through indexed accessors.
package device

import (
	"log"
	"sort"
	"sync"
	"time"
)

// Handle describes one audio capture device (§3 Device handle).
type Handle struct {
	Name                string
	IsMonitor           bool
	PipelineDescription string
}

// Source lists the capture devices currently present on the host. It is
// implemented per-OS (pulse_linux.go for linux, stub_other.go elsewhere),
// mirroring the teacher's own per-OS audio backend split.
type Source interface {
	// List returns the current device list. Called from the monitor's
	// background poll loop only; implementations need not be
	// concurrency-safe against concurrent List calls.
	List() ([]Handle, error)
}

// pollInterval is how often the monitor re-enumerates devices. The OS
// notification the spec describes ("subscribed to the OS device-add/remove
// notifications") is emulated here as a tight poll, since PulseAudio's Go
// client used by internal/device/pulse_linux.go does not expose a portable
// subscribe callback the rest of the pack demonstrates using.
const pollInterval = 2 * time.Second

// Monitor is the Device Monitor registry (§4.2).
type Monitor struct {
	mu   sync.Mutex
	devs []Handle

	initCh chan struct{}
	once   sync.Once

	stop chan struct{}
	done chan struct{}
}

// New creates a Monitor. It does not start polling until Run is called.
func New() *Monitor {
	return &Monitor{
		initCh: make(chan struct{}),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Run starts the background poll loop against src and blocks until Stop is
// called. It is meant to be launched with `go m.Run(src)`.
func (m *Monitor) Run(src Source) {
	defer close(m.done)

	m.poll(src)
	m.markInitialized()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.poll(src)
		}
	}
}

// Stop breaks the poll loop and waits for Run to return.
func (m *Monitor) Stop() {
	select {
	case <-m.stop:
		// already stopped
	default:
		close(m.stop)
	}
	<-m.done
}

func (m *Monitor) poll(src Source) {
	devs, err := src.List()
	if err != nil {
		log.Printf("device: enumeration failed: %v", err)
		return
	}
	sort.Slice(devs, func(i, j int) bool { return devs[i].Name < devs[j].Name })

	m.mu.Lock()
	added, removed := diff(m.devs, devs)
	m.devs = devs
	m.mu.Unlock()

	for _, d := range added {
		log.Printf("device: added %q (monitor=%v)", d.Name, d.IsMonitor)
	}
	for _, d := range removed {
		log.Printf("device: removed %q", d.Name)
	}
}

func diff(old, new []Handle) (added, removed []Handle) {
	oldSet := make(map[string]bool, len(old))
	for _, d := range old {
		oldSet[d.Name] = true
	}
	newSet := make(map[string]bool, len(new))
	for _, d := range new {
		newSet[d.Name] = true
		if !oldSet[d.Name] {
			added = append(added, d)
		}
	}
	for _, d := range old {
		if !newSet[d.Name] {
			removed = append(removed, d)
		}
	}
	return added, removed
}

// WaitInitialized blocks until the first enumeration pass completes. If
// initialization fails the device list is left empty, per §4.2.
func (m *Monitor) WaitInitialized() {
	<-m.initCh
}

func (m *Monitor) markInitialized() {
	m.once.Do(func() { close(m.initCh) })
}

func (m *Monitor) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.devs)
}

func (m *Monitor) Name(index int) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if index < 0 || index >= len(m.devs) {
		return ""
	}
	return m.devs[index].Name
}

func (m *Monitor) IsMonitor(index int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if index < 0 || index >= len(m.devs) {
		return false
	}
	return m.devs[index].IsMonitor
}

func (m *Monitor) Pipeline(index int) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if index < 0 || index >= len(m.devs) {
		return ""
	}
	return m.devs[index].PipelineDescription
}

func (m *Monitor) IndexOf(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, d := range m.devs {
		if d.Name == name {
			return i
		}
	}
	return -1
}

func (m *Monitor) Exists(name string) bool {
	return m.IndexOf(name) >= 0
}
