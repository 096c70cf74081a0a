//go:build linux

package device

import (
	"fmt"

	"github.com/jfreymuth/pulse"
)

// PulseSource enumerates PulseAudio sources, grounded on the teacher's own
// pulse.NewClient construction in internal/audio/pulse_linux.go — here
// repointed from "open a record stream on the default sink" to "list every
// source currently known to the server".
type PulseSource struct {
	client *pulse.Client
}

// NewPulseSource connects to the local PulseAudio server.
func NewPulseSource() (*PulseSource, error) {
	client, err := pulse.NewClient(pulse.ClientApplicationName("vimix"))
	if err != nil {
		return nil, fmt.Errorf("pulse connect: %w", err)
	}
	return &PulseSource{client: client}, nil
}

func (p *PulseSource) List() ([]Handle, error) {
	sources, err := p.client.ListSources()
	if err != nil {
		return nil, fmt.Errorf("pulse list sources: %w", err)
	}

	devs := make([]Handle, 0, len(sources))
	for _, s := range sources {
		devs = append(devs, Handle{
			Name:                s.Name(),
			IsMonitor:           s.IsMonitor(),
			PipelineDescription: fmt.Sprintf("pulsesrc device=%s", s.Name()),
		})
	}
	return devs, nil
}

func (p *PulseSource) Close() {
	p.client.Close()
}
