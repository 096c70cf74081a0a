//go:build !linux

package device

import "errors"

// PulseSource is unavailable outside Linux; mirrors the teacher's own
// internal/audio/stub_darwin.go per-OS stub pattern.
type PulseSource struct{}

func NewPulseSource() (*PulseSource, error) {
	return nil, errors.New("device: pulseaudio source enumeration is linux-only")
}

func (p *PulseSource) List() ([]Handle, error) {
	return nil, errors.New("device: pulseaudio source enumeration is linux-only")
}

func (p *PulseSource) Close() {}
