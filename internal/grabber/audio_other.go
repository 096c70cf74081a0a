//go:build !linux

package grabber

import "errors"

// PulseAudioSource is unavailable outside Linux; mirrors the teacher's own
// per-OS audio stub pattern (internal/audio/stub_darwin.go).
type PulseAudioSource struct{}

// NewPulseAudioSource always fails on non-Linux hosts.
func NewPulseAudioSource() (*PulseAudioSource, error) {
	return nil, errors.New("grabber: pulseaudio audio source is linux-only")
}

func (s *PulseAudioSource) NextPacket() ([]byte, bool) { return nil, false }
func (s *PulseAudioSource) Close() error               { return nil }
