package grabber

import (
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"vimix/internal/types"
)

// p2pSink is the P2P Stream variant (§4.5 table): sends raw frames,
// unencoded, to a single negotiated peer address over UDP. One instance per
// peer, created by the streaming manager (§4.6). Grounded on the teacher's
// internal/audio/udp_capture.go Run loop, mirrored for writing instead of
// reading.
type p2pSink struct {
	addr    *net.UDPAddr
	conn    *net.UDPConn
	onFail  func()
	failed  bool
}

// NewP2P returns a P2P Stream grabber targeting addr. onFail is invoked at
// most once if a send ever errors, letting the streaming manager append the
// client to its blacklist (§4.6).
func NewP2P(addr *net.UDPAddr, onFail func()) *Base {
	return NewBase(types.KindP2P, &p2pSink{addr: addr, onFail: onFail}, 0, time.Second/30)
}

func (s *p2pSink) Init(caps types.Caps) (string, error) {
	conn, err := net.DialUDP("udp", nil, s.addr)
	if err != nil {
		return "", fmt.Errorf("p2p: dial %s: %w", s.addr, err)
	}
	s.conn = conn
	return fmt.Sprintf("p2p stream -> %s (%dx%d)", s.addr, caps.Width, caps.Height), nil
}

// Push writes a frame as a single UDP datagram: an 8-byte big-endian
// timestamp followed by the frame bytes. Datagrams exceeding a safe MTU
// are truncated by the OS layer's own fragmentation. The payload is the
// raw frame whatever protocol was negotiated (§4.6); this sink does no
// JPEG or H.264 encoding.
func (s *p2pSink) Push(frame *types.Frame, ts time.Duration) error {
	header := make([]byte, 8)
	binary.BigEndian.PutUint64(header, uint64(ts))
	if _, err := s.conn.Write(append(header, frame.Data...)); err != nil {
		if !s.failed && s.onFail != nil {
			s.failed = true
			s.onFail()
		}
		return fmt.Errorf("p2p: write: %w", err)
	}
	return nil
}

func (s *p2pSink) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
