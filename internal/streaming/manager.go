// Package streaming implements the Streaming Manager (§4.6): peer stream
// negotiation over a well-known request port, protocol selection, a
// shared-memory blacklist, and registration of the resulting P2P-stream
// grabbers with the grab fabric.
package streaming

import (
	"fmt"
	"log"
	"net"
	"sync"

	"vimix/internal/grabber"
	"vimix/internal/hostinfo"
	"vimix/internal/oscwire"
	"vimix/internal/types"
)

const addressPrefix = "/vimix"

// Fabric is the subset of grabfabric.Fabric the manager needs to register
// P2P-stream grabbers.
type Fabric interface {
	Register(g interface {
		ID() uint64
		AddFrame(frame *types.Frame, caps types.Caps)
		Active() bool
		AcceptBuffer() bool
		Finished() bool
		Stop()
		Terminate()
		CheckTimeout()
	})
}

// stream is one active negotiated peer stream.
type stream struct {
	port       int
	protocol   types.StreamProtocol
	clientName string
	clientIP   string
	grabberID  uint64
	grabber    *grabber.Base
	sending    bool
}

// Manager is the Streaming Manager (§4.6).
type Manager struct {
	conn   *net.UDPConn
	fabric Fabric
	width  int
	height int

	mu         sync.Mutex
	enabled    bool
	streams    map[int]*stream // keyed by assigned port
	blacklist  map[string]bool
	nextPort   int
}

// New constructs a disabled Manager; call Enable(true) and Listen to start
// serving requests on port.
func New(fabric Fabric, width, height, firstEphemeralPort int) *Manager {
	return &Manager{
		fabric:    fabric,
		width:     width,
		height:    height,
		streams:   make(map[int]*stream),
		blacklist: make(map[string]bool),
		nextPort:  firstEphemeralPort,
	}
}

// Listen binds the request port and starts the receive loop.
func (m *Manager) Listen(port int) error {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		return fmt.Errorf("streaming: listen :%d: %w", port, err)
	}
	m.conn = conn
	go m.receiveLoop()
	return nil
}

// Enable toggles request handling (§4.6: "when disabled, new requests are
// answered with reject; all existing streams are stopped").
func (m *Manager) Enable(on bool) {
	m.mu.Lock()
	m.enabled = on
	var toStop []*stream
	if !on {
		for _, s := range m.streams {
			toStop = append(toStop, s)
		}
		m.streams = make(map[int]*stream)
	}
	m.mu.Unlock()

	for _, s := range toStop {
		s.grabber.Stop()
	}
}

// Busy reports whether any registered stream is currently sending.
func (m *Manager) Busy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.streams {
		if s.grabber.Active() {
			return true
		}
	}
	return false
}

func (m *Manager) receiveLoop() {
	buf := make([]byte, 2048)
	for {
		n, addr, err := m.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		msg, err := oscwire.Decode(buf[:n])
		if err != nil {
			log.Printf("streaming: malformed message from %s: %v", addr, err)
			continue
		}
		m.dispatch(msg, addr)
	}
}

func (m *Manager) dispatch(msg oscwire.Message, addr *net.UDPAddr) {
	switch msg.Address {
	case addressPrefix + "/request":
		m.handleRequest(msg, addr)
	case addressPrefix + "/disconnect":
		m.handleDisconnect(msg)
	default:
		log.Printf("streaming: unknown address %q", msg.Address)
	}
}

func (m *Manager) handleRequest(msg oscwire.Message, addr *net.UDPAddr) {
	replyPort, ok1 := oscwire.ArgInt32(msg.Args, 0)
	clientName, ok2 := oscwire.ArgString(msg.Args, 1)
	if !ok1 || !ok2 {
		log.Printf("streaming: malformed request from %s", addr)
		return
	}

	m.mu.Lock()
	enabled := m.enabled
	m.mu.Unlock()

	replyTo := &net.UDPAddr{IP: addr.IP, Port: int(replyPort)}
	if !enabled {
		m.sendReject(replyTo)
		return
	}

	protocol := m.selectProtocol(addr.IP.String(), clientName)
	port := m.allocatePort()

	g := grabber.NewP2P(&net.UDPAddr{IP: addr.IP, Port: port}, func() {
		m.onStreamFailed(port, clientName, protocol)
	})

	m.mu.Lock()
	m.streams[port] = &stream{
		port:       port,
		protocol:   protocol,
		clientName: clientName,
		clientIP:   addr.IP.String(),
		grabberID:  g.ID(),
		grabber:    g,
	}
	m.mu.Unlock()

	m.fabric.Register(g)

	offer := oscwire.Message{
		Address: addressPrefix + "/offer",
		Args:    []any{int32(port), int32(protocol), int32(m.width), int32(m.height)},
	}
	m.send(offer, replyTo)
}

func (m *Manager) handleDisconnect(msg oscwire.Message) {
	port, ok := oscwire.ArgInt32(msg.Args, 0)
	if !ok {
		return
	}
	failed, _ := oscwire.ArgBool(msg.Args, 1)

	m.mu.Lock()
	s, found := m.streams[int(port)]
	if found {
		delete(m.streams, int(port))
	}
	m.mu.Unlock()

	if !found {
		return
	}
	s.grabber.Stop()

	if failed && s.protocol == types.ProtoShmLocal {
		m.mu.Lock()
		m.blacklist[s.clientName] = true
		m.mu.Unlock()
	}
}

func (m *Manager) onStreamFailed(port int, clientName string, protocol types.StreamProtocol) {
	m.mu.Lock()
	delete(m.streams, port)
	if protocol == types.ProtoShmLocal {
		m.blacklist[clientName] = true
	}
	m.mu.Unlock()
}

// selectProtocol implements §4.6's negotiation rule: SHM_LOCAL for
// localhost unless the client is blacklisted, JPEG_UDP otherwise.
func (m *Manager) selectProtocol(ip, clientName string) types.StreamProtocol {
	m.mu.Lock()
	blacklisted := m.blacklist[clientName]
	m.mu.Unlock()

	if hostinfo.IsLocal(ip) && !blacklisted {
		return types.ProtoShmLocal
	}
	return types.ProtoJPEGUDP
}

func (m *Manager) allocatePort() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.nextPort
	m.nextPort++
	return p
}

func (m *Manager) sendReject(to *net.UDPAddr) {
	m.send(oscwire.Message{Address: addressPrefix + "/reject"}, to)
}

func (m *Manager) send(msg oscwire.Message, to *net.UDPAddr) {
	data, err := oscwire.Encode(msg)
	if err != nil {
		log.Printf("streaming: encode %s: %v", msg.Address, err)
		return
	}
	if _, err := m.conn.WriteToUDP(data, to); err != nil {
		log.Printf("streaming: send to %s: %v", to, err)
	}
}

// Close stops the receive loop.
func (m *Manager) Close() error {
	if m.conn == nil {
		return nil
	}
	return m.conn.Close()
}
