package grabber

import "vimix/internal/types"

// passthroughEncoder is the default VideoEncoder wired when no hardware
// encoder backend is available. It wraps each raw frame as a single NALU
// of raw pixel data rather than performing real H.264 compression — actual
// encoder backends are an external collaborator (spec.md places source and
// encoder implementations out of scope), so this only exists to keep the
// Video grabber's muxing path exercisable end to end without one.
type passthroughEncoder struct {
	sps, pps []byte
}

// NewPassthroughEncoder returns the default, always-available VideoEncoder.
func NewPassthroughEncoder() VideoEncoder {
	return &passthroughEncoder{
		sps: []byte{0x67, 0x42, 0x00, 0x1f},
		pps: []byte{0x68, 0xce, 0x3c, 0x80},
	}
}

func (e *passthroughEncoder) Encode(frame *types.Frame) (nalus [][]byte, keyframe bool, err error) {
	return [][]byte{frame.Data}, true, nil
}

func (e *passthroughEncoder) SPS() []byte { return e.sps }
func (e *passthroughEncoder) PPS() []byte { return e.pps }
func (e *passthroughEncoder) Close() error { return nil }
