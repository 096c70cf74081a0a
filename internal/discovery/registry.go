// Package discovery implements the Connection Registry (§4.3): local-network
// peer discovery via a periodic multicast hello/handshake, TTL-based peer
// eviction, and a lookup-by-name/endpoint index.
//
// The prober/listener goroutine pairing is grounded on the teacher's
// internal/audio/udp_capture.go, which runs one read-loop goroutine plus a
// second goroutine ticking out periodic stats on the same stop channel;
// here that shape becomes "probe on a ticker" + "listen for replies", using
// golang.org/x/net/ipv4 multicast group membership instead of plain
// broadcast-address arithmetic.
package discovery

import (
	"encoding/json"
	"log"
	"net"
	"sync"
	"time"

	"vimix/internal/hostinfo"

	"golang.org/x/net/ipv4"
)

const (
	// DefaultMulticastGroup is the well-known multicast address the prober
	// and listener both join.
	DefaultMulticastGroup = "239.19.22.1"

	probeInterval  = 2 * time.Second
	initialTTL     = 5 // sweeps before an unresponsive peer is evicted
	maxHelloBytes  = 512
)

// hello is the wire message exchanged on the handshake port (§6: "A 'hello'
// message on the handshake port carries {host_name, stream_request_port,
// control_port}; replies carry the same structure from the responder").
type hello struct {
	HostName          string `json:"host_name"`
	StreamRequestPort int    `json:"stream_request_port"`
	ControlPort       int    `json:"control_port"`
}

// Registry is the Connection Registry (§4.3). Index 0 of the peer list is
// always "self".
type Registry struct {
	self          Endpoint
	group         string
	handshakePort int

	mu    sync.Mutex
	peers []Endpoint // peers[0] is always self

	pconn *ipv4.PacketConn
	raw   net.PacketConn

	stop chan struct{}
	wg   sync.WaitGroup
}

// New constructs a Registry describing this host. Init starts the
// background prober and listener.
func New(streamRequestPort, controlPort, handshakePort int) *Registry {
	self := Endpoint{
		HostName:          hostinfo.HostName(),
		IP:                firstOrEmpty(hostinfo.HostIPs()),
		HandshakePort:     handshakePort,
		StreamRequestPort: streamRequestPort,
		ControlPort:       controlPort,
		LivenessTTL:       initialTTL,
	}
	return &Registry{
		self:          self,
		group:         DefaultMulticastGroup,
		handshakePort: handshakePort,
		peers:         []Endpoint{self},
		stop:          make(chan struct{}),
	}
}

func firstOrEmpty(ips []string) string {
	if len(ips) == 0 {
		return "127.0.0.1"
	}
	return ips[0]
}

// Init starts the prober and listener background tasks (§4.3).
func (r *Registry) Init() error {
	conn, err := net.ListenPacket("udp4", netAddrAny(r.handshakePort))
	if err != nil {
		return err
	}
	pconn := ipv4.NewPacketConn(conn)

	if ifaces, err := net.Interfaces(); err == nil {
		group := &net.UDPAddr{IP: net.ParseIP(r.group)}
		for _, iface := range ifaces {
			_ = pconn.JoinGroup(&iface, group)
		}
	}

	r.raw = conn
	r.pconn = pconn

	r.wg.Add(2)
	go r.listenLoop()
	go r.probeLoop()
	return nil
}

func netAddrAny(port int) string {
	return (&net.UDPAddr{Port: port}).String()
}

// Close breaks both background loops and releases the socket.
func (r *Registry) Close() {
	select {
	case <-r.stop:
	default:
		close(r.stop)
	}
	if r.raw != nil {
		r.raw.Close()
	}
	r.wg.Wait()
}

func (r *Registry) probeLoop() {
	defer r.wg.Done()
	ticker := time.NewTicker(probeInterval)
	defer ticker.Stop()

	groupAddr := &net.UDPAddr{IP: net.ParseIP(r.group), Port: r.handshakePort}

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.sendHello(groupAddr)
			r.sweepTTL()
		}
	}
}

func (r *Registry) sendHello(dst *net.UDPAddr) {
	msg := hello{
		HostName:          r.self.HostName,
		StreamRequestPort: r.self.StreamRequestPort,
		ControlPort:       r.self.ControlPort,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if _, err := r.pconn.WriteTo(data, nil, dst); err != nil {
		log.Printf("discovery: probe send failed: %v", err)
	}
}

// sweepTTL decrements every known (non-self) peer's TTL and evicts those
// that reach zero.
func (r *Registry) sweepTTL() {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.peers[:1] // keep self
	for _, p := range r.peers[1:] {
		p.LivenessTTL--
		if p.LivenessTTL <= 0 {
			log.Printf("discovery: peer %s (%s) evicted (TTL expired)", p.HostName, p.IP)
			continue
		}
		kept = append(kept, p)
	}
	r.peers = kept
}

func (r *Registry) listenLoop() {
	defer r.wg.Done()
	buf := make([]byte, maxHelloBytes)

	for {
		n, _, src, err := r.pconn.ReadFrom(buf)
		if err != nil {
			select {
			case <-r.stop:
				return
			default:
				return
			}
		}

		udpSrc, ok := src.(*net.UDPAddr)
		if !ok {
			continue
		}
		if hostinfo.IsLocal(udpSrc.IP.String()) {
			continue // ignore our own multicast hello
		}

		var msg hello
		if err := json.Unmarshal(buf[:n], &msg); err != nil {
			continue // malformed hello, dropped per §7
		}

		r.upsertPeer(Endpoint{
			HostName:          msg.HostName,
			IP:                udpSrc.IP.String(),
			HandshakePort:     r.handshakePort,
			StreamRequestPort: msg.StreamRequestPort,
			ControlPort:       msg.ControlPort,
			LivenessTTL:       initialTTL,
		})

		r.replySelf(udpSrc)
	}
}

func (r *Registry) replySelf(to *net.UDPAddr) {
	msg := hello{
		HostName:          r.self.HostName,
		StreamRequestPort: r.self.StreamRequestPort,
		ControlPort:       r.self.ControlPort,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	_, _ = r.pconn.WriteTo(data, nil, to)
}

func (r *Registry) upsertPeer(e Endpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := 1; i < len(r.peers); i++ {
		if r.peers[i].Equal(e) {
			r.peers[i].LivenessTTL = initialTTL
			r.peers[i].HostName = e.HostName
			r.peers[i].StreamRequestPort = e.StreamRequestPort
			r.peers[i].ControlPort = e.ControlPort
			return
		}
	}
	log.Printf("discovery: peer %s (%s) discovered", e.HostName, e.IP)
	r.peers = append(r.peers, e)
}

// NumHosts returns the number of known hosts, including self.
func (r *Registry) NumHosts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}

// Info returns the endpoint at index i (0 is always self).
func (r *Registry) Info(i int) (Endpoint, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i < 0 || i >= len(r.peers) {
		return Endpoint{}, false
	}
	return r.peers[i], true
}

// IndexOfName returns the index of the peer with the given host name, or -1.
func (r *Registry) IndexOfName(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, p := range r.peers {
		if p.HostName == name {
			return i
		}
	}
	return -1
}

// IndexOfEndpoint returns the index of a peer equal (§8 property 6) to e,
// or -1.
func (r *Registry) IndexOfEndpoint(e Endpoint) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, p := range r.peers {
		if p.Equal(e) {
			return i
		}
	}
	return -1
}
