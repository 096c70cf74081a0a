//go:build !linux

package grabber

import (
	"errors"
	"time"

	"vimix/internal/types"
)

type loopbackSink struct{}

// NewLoopback is unavailable outside Linux: v4l2loopback is Linux-only.
func NewLoopback(devPath string) *Base {
	return NewBase(types.KindLoopback, &loopbackSink{}, 0, time.Second/30)
}

func (s *loopbackSink) Init(caps types.Caps) (string, error) {
	return "", errors.New("grabber: loopback sink is linux-only")
}

func (s *loopbackSink) Push(frame *types.Frame, ts time.Duration) error { return nil }
func (s *loopbackSink) Close() error                                   { return nil }
