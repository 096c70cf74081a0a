package grabber

import (
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"vimix/internal/types"
)

// shmSink is the Shared Memory variant (§4.5 table): publishes raw frames
// to a local socket path, removing the socket file on terminate. Grounded
// on the teacher's internal/server WHEP listener pattern of owning a single
// net.Listener for the lifetime of the component, generalized from TCP/TLS
// to a Unix domain socket broadcasting to whichever peer is connected.
type shmSink struct {
	path string

	mu       sync.Mutex
	ln       net.Listener
	conns    map[net.Conn]struct{}
	acceptWg sync.WaitGroup
	closed   bool
}

// NewSHM returns a Shared Memory grabber publishing raw frames on the Unix
// domain socket at path.
func NewSHM(path string) *Base {
	sink := &shmSink{path: path, conns: make(map[net.Conn]struct{})}
	return NewBase(types.KindShm, sink, 0, time.Second/30).WithTerminate(func() {
		os.Remove(path)
	})
}

func (s *shmSink) Init(caps types.Caps) (string, error) {
	os.Remove(s.path) // stale socket file from a prior unclean shutdown
	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return "", fmt.Errorf("shm: listen %s: %w", s.path, err)
	}
	s.ln = ln
	go s.acceptLoop()
	return fmt.Sprintf("shm socket %s (%dx%d)", s.path, caps.Width, caps.Height), nil
}

func (s *shmSink) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()
	}
}

func (s *shmSink) Push(frame *types.Frame, ts time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		if _, err := c.Write(frame.Data); err != nil {
			c.Close()
			delete(s.conns, c)
		}
	}
	return nil
}

func (s *shmSink) Close() error {
	s.mu.Lock()
	s.closed = true
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()
	if s.ln != nil {
		return s.ln.Close()
	}
	return nil
}
