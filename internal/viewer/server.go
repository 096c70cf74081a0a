package viewer

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"vimix/internal/grabber"
	"vimix/internal/tlscert"
	"vimix/internal/types"
)

// Fabric is the subset of grabfabric.Fabric the viewer server needs to
// register each negotiated WebRTC viewer grabber, matched structurally
// the same way internal/streaming does.
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

// EncoderFactory builds a fresh VideoEncoder for one viewer session; each
// viewer encodes independently since WHEP viewers may negotiate different
// codecs or join at different times.
type EncoderFactory func() (grabber.VideoEncoder, error)

// Config holds the WHEP signaling server's configuration (§ new
// WebRTC-viewer surface), mirroring the field layout of the teacher's
// server.Config.
type Config struct {
	Addr          string
	Token         string // optional bearer token; empty disables auth
	Codec         string
	FrameDuration time.Duration
	UseTLS        bool

	Fabric     Fabric
	NewEncoder EncoderFactory
}

// Server is the WHEP HTTP signaling surface. Each accepted offer gets its
// own Session and its own WebRTC-viewer grabber registered with the fabric
// — there is no shared pipeline to start or stop, unlike the teacher's
// single capture/encode loop.
type Server struct {
	cfg Config

	mu       sync.Mutex
	sessions map[string]*Session
}

// New constructs a Server. Call ListenAndServe to start serving.
func New(cfg Config) *Server {
	return &Server{cfg: cfg, sessions: make(map[string]*Session)}
}

// ListenAndServe starts the WHEP HTTP(S) listener.
func (s *Server) ListenAndServe() error {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /whep", s.handleOffer)
	mux.HandleFunc("PATCH /whep/{id}", s.handlePatch)
	mux.HandleFunc("DELETE /whep/{id}", s.handleDelete)
	mux.HandleFunc("OPTIONS /whep", s.handleOptions)
	mux.HandleFunc("OPTIONS /whep/{id}", s.handleOptions)

	log.Printf("viewer: WHEP listener starting on %s (codec %s)", s.cfg.Addr, s.cfg.Codec)

	if !s.cfg.UseTLS {
		return http.ListenAndServe(s.cfg.Addr, mux)
	}

	tlsCfg, err := tlscert.Generate()
	if err != nil {
		return fmt.Errorf("viewer: generate TLS cert: %w", err)
	}
	server := &http.Server{Addr: s.cfg.Addr, Handler: mux, TLSConfig: tlsCfg}
	return server.ListenAndServeTLS("", "")
}

// Teardown closes every active viewer session.
func (s *Server) Teardown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		sess.Close()
		delete(s.sessions, id)
	}
}

func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, PATCH, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Expose-Headers", "Location")
	w.WriteHeader(204)
}

func (s *Server) handleOffer(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Expose-Headers", "Location")

	if !s.checkAuth(r) {
		http.Error(w, "unauthorized", 401)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "bad request", 400)
		return
	}

	encoder, err := s.cfg.NewEncoder()
	if err != nil {
		log.Printf("viewer: encoder init failed: %v", err)
		http.Error(w, "internal error", 500)
		return
	}

	sessionID := uuid.New().String()
	sess, err := newSession(sessionID, s.cfg.Codec)
	if err != nil {
		encoder.Close()
		log.Printf("viewer: session create failed: %v", err)
		http.Error(w, "internal error", 500)
		return
	}

	g := grabber.NewWebRTCViewer(sess.Track, encoder, s.cfg.FrameDuration)
	sess.Grabber = g
	s.cfg.Fabric.Register(g)

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: string(body)}
	if err := sess.PC.SetRemoteDescription(offer); err != nil {
		sess.Close()
		http.Error(w, "bad SDP offer", 400)
		return
	}

	answer, err := sess.PC.CreateAnswer(nil)
	if err != nil {
		sess.Close()
		log.Printf("viewer: create answer failed: %v", err)
		http.Error(w, "internal error", 500)
		return
	}
	if err := sess.PC.SetLocalDescription(answer); err != nil {
		sess.Close()
		log.Printf("viewer: set local description failed: %v", err)
		http.Error(w, "internal error", 500)
		return
	}
	<-webrtc.GatheringCompletePromise(sess.PC)

	s.mu.Lock()
	s.sessions[sessionID] = sess
	s.mu.Unlock()

	go s.watch(sess)

	w.Header().Set("Content-Type", "application/sdp")
	w.Header().Set("Location", fmt.Sprintf("/whep/%s", sessionID))
	w.WriteHeader(201)
	w.Write([]byte(sess.PC.LocalDescription().SDP))
}

func (s *Server) handlePatch(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if !s.checkAuth(r) {
		http.Error(w, "unauthorized", 401)
		return
	}

	id := r.PathValue("id")
	s.mu.Lock()
	sess := s.sessions[id]
	s.mu.Unlock()
	if sess == nil {
		http.Error(w, "not found", 404)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "bad request", 400)
		return
	}
	candidate := strings.TrimSpace(string(body))
	if candidate == "" {
		w.WriteHeader(204)
		return
	}
	for _, line := range strings.Split(candidate, "\r\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "a=candidate:") {
			c := strings.TrimPrefix(line, "a=")
			if err := sess.PC.AddICECandidate(webrtc.ICECandidateInit{Candidate: c}); err != nil {
				log.Printf("viewer: add ice candidate failed: %v", err)
			}
		}
	}
	w.WriteHeader(204)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if !s.checkAuth(r) {
		http.Error(w, "unauthorized", 401)
		return
	}

	id := r.PathValue("id")
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	s.mu.Unlock()
	if !ok {
		http.Error(w, "not found", 404)
		return
	}
	sess.Close()
	w.WriteHeader(200)
}

func (s *Server) watch(sess *Session) {
	<-sess.Stop
	s.mu.Lock()
	if s.sessions[sess.ID] == sess {
		delete(s.sessions, sess.ID)
	}
	s.mu.Unlock()
}

func (s *Server) checkAuth(r *http.Request) bool {
	if s.cfg.Token == "" {
		return true
	}
	return r.Header.Get("Authorization") == "Bearer "+s.cfg.Token
}
