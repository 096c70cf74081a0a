//go:build linux

package grabber

import (
	"fmt"
	"os"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"vimix/internal/types"
)

// v4l2 ioctl/format constants used to push frames into a pre-initialised
// v4l2loopback device. Grounded on golang.org/x/sys/unix's raw ioctl
// wrappers, the same package family the teacher's own internal/capture
// would have reached for had it targeted Video4Linux instead of XShm.
const (
	vidiocSFmt  = 0xc0d05605 // VIDIOC_S_FMT
	v4l2BufTypeVideoOutput = 2
	v4l2PixFmtRGB24        = 0x33424752 // 'RGB3'
)

type v4l2Format struct {
	Type   uint32
	Width  uint32
	Height uint32
	Pixfmt uint32
	Field  uint32
	_      [40]byte // remaining union fields, unused for OUTPUT negotiation
}

// loopbackSink is the Loopback variant (§4.5 table): pushes raw frames to a
// virtual camera device pre-initialised at the OS level (e.g. via
// v4l2loopback). Framerate is fixed at 30 per the spec's variant table.
type loopbackSink struct {
	devPath string
	f       *os.File
}

// NewLoopback returns a Loopback grabber writing raw RGB frames to the
// v4l2 device at devPath (e.g. "/dev/video10").
func NewLoopback(devPath string) *Base {
	return NewBase(types.KindLoopback, &loopbackSink{devPath: devPath}, 0, time.Second/30)
}

func (s *loopbackSink) Init(caps types.Caps) (string, error) {
	f, err := os.OpenFile(s.devPath, os.O_WRONLY, 0)
	if err != nil {
		return "", fmt.Errorf("loopback: open %s: %w", s.devPath, err)
	}

	format := v4l2Format{
		Type:   v4l2BufTypeVideoOutput,
		Width:  uint32(caps.Width),
		Height: uint32(caps.Height),
		Pixfmt: v4l2PixFmtRGB24,
	}
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), vidiocSFmt, uintptr(unsafe.Pointer(&format))); errno != 0 {
		f.Close()
		return "", fmt.Errorf("loopback: VIDIOC_S_FMT: %w", errno)
	}

	s.f = f
	return fmt.Sprintf("loopback device %s (%dx%d)", s.devPath, caps.Width, caps.Height), nil
}

func (s *loopbackSink) Push(frame *types.Frame, ts time.Duration) error {
	_, err := s.f.Write(frame.Data)
	return err
}

func (s *loopbackSink) Close() error {
	if s.f == nil {
		return nil
	}
	return s.f.Close()
}
