// Package viewer implements the (new) WebRTC viewer signaling surface:
// WHEP HTTP negotiation that hands each browser viewer its own WebRTC
// viewer grabber, fed by the grab fabric's fan-out rather than a local
// capture pipeline.
//
// Grounded on the teacher's internal/session (session lifecycle,
// PeerConnection wiring) and internal/server (WHEP HTTP verbs), redirected
// from "one shared screen-capture track" to "one fresh track per viewer
// wrapped by a grabber.Base" so each viewer's encode cadence, back-pressure
// and teardown follow the same grabber state machine every other sink
// uses.
package viewer

import (
	"fmt"
	"log"
	"sync"

	"github.com/pion/webrtc/v4"

	"vimix/internal/grabber"
)

// Session is one negotiated WHEP viewer connection.
type Session struct {
	ID    string
	PC    *webrtc.PeerConnection
	Track *webrtc.TrackLocalStaticSample

	Grabber *grabber.Base

	Stop   chan struct{}
	mu     sync.Mutex
	closed bool
}

// newSession builds a PeerConnection with a single outbound video track
// and registers the teardown triggers the teacher wires up in
// internal/session.NewSession (connection-state watcher, idempotent
// Close).
func newSession(id, codec string) (*Session, error) {
	var mimeType, fmtp string
	switch codec {
	case "h265":
		mimeType, fmtp = webrtc.MimeTypeH265, "profile-id=1"
	default:
		mimeType, fmtp = webrtc.MimeTypeH264, "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42001f"
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return nil, fmt.Errorf("viewer: create peer connection: %w", err)
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: mimeType, ClockRate: 90000, SDPFmtpLine: fmtp},
		"video", "vimix",
	)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("viewer: create video track: %w", err)
	}

	if _, err := pc.AddTrack(track); err != nil {
		pc.Close()
		return nil, fmt.Errorf("viewer: add video track: %w", err)
	}

	sess := &Session{
		ID:    id,
		PC:    pc,
		Track: track,
		Stop:  make(chan struct{}),
	}

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Printf("viewer: %s peer connection state %s", id, state)
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateClosed:
			sess.Close()
		}
	})

	return sess, nil
}

// Close tears the session down once, stopping its grabber and the
// underlying PeerConnection (§5: grabber Stop is best-effort/async; the
// fabric finishes teardown once Finished() is observed).
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.Stop)

	if s.Grabber != nil {
		s.Grabber.Stop()
	}
	s.PC.Close()
	log.Printf("viewer: session %s closed", s.ID)
}

func (s *Session) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
