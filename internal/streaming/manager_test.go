package streaming

import (
	"testing"
	"time"

	"vimix/internal/grabber"
	"vimix/internal/oscwire"
	"vimix/internal/types"
)

type stubSink struct{}

func (stubSink) Init(caps types.Caps) (string, error)            { return "ok", nil }
func (stubSink) Push(frame *types.Frame, ts time.Duration) error { return nil }
func (stubSink) Close() error                                    { return nil }

func newStubBase() *grabber.Base {
	return grabber.NewBase(types.KindP2P, stubSink{}, 0, 0)
}

type fakeFabric struct {
	registered []uint64
}

func (f *fakeFabric) Register(g interface {
	ID() uint64
	AddFrame(frame *types.Frame, caps types.Caps)
	Active() bool
	AcceptBuffer() bool
	Finished() bool
	Stop()
	Terminate()
	CheckTimeout()
}) {
	f.registered = append(f.registered, g.ID())
}

func TestSelectProtocolLocalhostPrefersShm(t *testing.T) {
	m := New(&fakeFabric{}, 1920, 1080, 7200)
	m.enabled = true

	proto := m.selectProtocol("127.0.0.1", "probe")
	if proto != types.ProtoShmLocal {
		t.Fatalf("expected SHM_LOCAL for localhost, got %s", proto)
	}
}

func TestSelectProtocolBlacklistedFallsBackToJPEG(t *testing.T) {
	m := New(&fakeFabric{}, 1920, 1080, 7200)
	m.blacklist["probe"] = true

	proto := m.selectProtocol("127.0.0.1", "probe")
	if proto != types.ProtoJPEGUDP {
		t.Fatalf("expected JPEG_UDP for blacklisted client, got %s", proto)
	}
}

func TestEnableFalseStopsAllStreams(t *testing.T) {
	m := New(&fakeFabric{}, 1920, 1080, 7200)
	m.enabled = true
	m.streams[7200] = &stream{port: 7200, grabber: newStubBase()}

	m.Enable(false)

	if len(m.streams) != 0 {
		t.Fatalf("Enable(false) must empty the stream list, got %d", len(m.streams))
	}
}

func TestDisconnectBlacklistsOnFailedShmStream(t *testing.T) {
	m := New(&fakeFabric{}, 1920, 1080, 7200)
	m.enabled = true
	m.streams[7200] = &stream{port: 7200, protocol: types.ProtoShmLocal, clientName: "probe", grabber: newStubBase()}

	msg := oscwire.Message{Address: addressPrefix + "/disconnect", Args: []any{int32(7200), true}}
	m.handleDisconnect(msg)

	if !m.blacklist["probe"] {
		t.Fatal("failed SHM_LOCAL disconnect should blacklist the client")
	}
	if _, exists := m.streams[7200]; exists {
		t.Fatal("disconnected stream should be removed from the registry")
	}
}
