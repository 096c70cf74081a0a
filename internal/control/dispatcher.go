// Package control implements the Control Endpoint (§4.7): an OSC-style UDP
// command surface that mutates output, session, and per-source state, with
// a user-editable address translator and a bundled status reply.
//
// The decode → branch-on-address → narrow-typed-handler → log-and-ignore
// shape is grounded on alxayo-rtmp-go's internal/rtmp/rpc/dispatcher.go,
// generalized from AMF0 RTMP commands to OSC messages.
package control

import (
	"fmt"
	"log"
	"math"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"vimix/internal/oscwire"
	"vimix/internal/types"
)

// SourceSet is the source-set collaborator (§4.7 targets all/selected/
// current/<name-or-index>) the dispatcher mutates and queries.
type SourceSet interface {
	Count() int
	ByIndex(i int) (types.Source, bool)
	ByName(name string) (types.Source, int, bool)
	AllIndices() []int
	SelectedIndices() []int
	CurrentIndex() int
	SetCurrentIndex(i int)
}

// Dispatcher listens on a configured UDP port and dispatches inbound OSC
// messages (§6) to the output/session/source collaborators.
type Dispatcher struct {
	prefix     string
	sendPort   int
	snapshots  types.SessionSnapshots
	sources    SourceSet
	translator *Translator

	mu     sync.Mutex
	output types.OutputState

	conn    *net.UDPConn
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New constructs a Dispatcher. prefix is the app address prefix (e.g.
// "vimix"); sendPort is where replies are sent on the sender's IP.
func New(prefix string, sendPort int, snapshots types.SessionSnapshots, sources SourceSet) *Dispatcher {
	return &Dispatcher{
		prefix:     prefix,
		sendPort:   sendPort,
		snapshots:  snapshots,
		sources:    sources,
		translator: NewTranslator(),
	}
}

// Reload rebuilds the translator table from a user file (§4.7).
func (d *Dispatcher) Reload(path string) error {
	return d.translator.Reload(path)
}

// Init starts the receive loop on port; idempotent if already running.
func (d *Dispatcher) Init(port int) error {
	if d.conn != nil {
		return nil
	}
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		return fmt.Errorf("control: listen :%d: %w", port, err)
	}
	d.conn = conn
	d.stopCh = make(chan struct{})
	d.doneCh = make(chan struct{})
	go d.receiveLoop()
	return nil
}

func (d *Dispatcher) receiveLoop() {
	defer close(d.doneCh)
	buf := make([]byte, 2048)
	for {
		n, addr, err := d.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		msg, err := oscwire.Decode(buf[:n])
		if err != nil {
			log.Printf("control: malformed message from %s: %v", addr, err)
			continue
		}
		d.Dispatch(msg, addr)
	}
}

// Terminate breaks the receive loop and waits up to 2s for the worker to
// exit (§4.7); beyond that it logs and abandons the receiver.
func (d *Dispatcher) Terminate() {
	if d.conn == nil {
		return
	}
	close(d.stopCh)
	d.conn.Close()
	select {
	case <-d.doneCh:
	case <-time.After(2 * time.Second):
		log.Printf("control: receiver did not exit within 2s, abandoning")
	}
	d.conn = nil
}

// Dispatch routes one already-decoded message. Exported so the streaming
// manager's own listener (a distinct port, §5) is not required to share
// this receive loop.
func (d *Dispatcher) Dispatch(msg oscwire.Message, from *net.UDPAddr) {
	addr := d.translator.Translate(msg.Address)

	parts := strings.Split(strings.TrimPrefix(addr, "/"), "/")
	if len(parts) < 3 || parts[0] != d.prefix {
		log.Printf("control: unrecognised address %q", addr)
		return
	}
	target := parts[1]
	attribute := "/" + strings.Join(parts[2:], "/")

	if attribute == "/sync" {
		d.replyStatus(from)
		return
	}

	switch target {
	case "info":
		log.Printf("control: info %s %v", attribute, msg.Args)
	case "output":
		d.dispatchOutput(attribute, msg.Args, from)
	case "session":
		d.dispatchSession(attribute, msg.Args, from)
	case "all":
		d.applyToIndices(d.sources.AllIndices(), attribute, msg.Args)
	case "selected":
		d.applyToIndices(d.sources.SelectedIndices(), attribute, msg.Args)
	case "current":
		d.dispatchCurrent(attribute, msg.Args, from)
	default:
		d.dispatchNamed(target, attribute, msg.Args)
	}
}

func (d *Dispatcher) dispatchOutput(attribute string, args []any, from *net.UDPAddr) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch attribute {
	case "/enable":
		arg, ok := oscwire.ArgFloat32(args, 0)
		if !ok {
			d.output.RenderDisabled = false
			return
		}
		d.output.RenderDisabled = arg < 0.5
	case "/disable":
		arg, ok := oscwire.ArgFloat32(args, 0)
		if !ok {
			d.output.RenderDisabled = true
			return
		}
		d.output.RenderDisabled = arg > 0.5
	case "/fading":
		target, ok := oscwire.ArgFloat32(args, 0)
		if !ok {
			log.Printf("control: /output/fading missing required float argument")
			return
		}
		var duration time.Duration
		if ms, ok := oscwire.ArgFloat32(args, 1); ok {
			duration = time.Duration(ms) * time.Millisecond
		}
		d.output.FadingTarget = types.Clamp01(float64(target))
		d.output.FadingDuration = duration
	case "/fade-in":
		arg, _ := oscwire.ArgFloat32(args, 0)
		if arg == 0 {
			arg = 1
		}
		d.output.FadingTarget = types.Clamp01(d.output.FadingTarget - 0.01*float64(arg))
	case "/fade-out":
		arg, _ := oscwire.ArgFloat32(args, 0)
		if arg == 0 {
			arg = 1
		}
		d.output.FadingTarget = types.Clamp01(d.output.FadingTarget + 0.01*float64(arg))
	default:
		log.Printf("control: unknown output attribute %q", attribute)
	}
}

func (d *Dispatcher) dispatchSession(attribute string, args []any, from *net.UDPAddr) {
	if attribute != "/version" {
		log.Printf("control: unknown session attribute %q", attribute)
		return
	}
	v, ok := oscwire.ArgFloat32(args, 0)
	if !ok {
		log.Printf("control: /session/version missing required float argument")
		return
	}

	// ceil(v) counts back from the most recent snapshot (original_source's
	// ControlManager.cpp pops ceil(v) entries off the back of the list and
	// restores the new back), not forward from the oldest.
	back := int(math.Ceil(float64(v)))
	count := d.snapshots.Count()
	idx := count - 1 - back
	if back < 0 || idx < 0 || idx >= count {
		// §9 open question: treat an out-of-range snapshot index as a
		// no-op and log, pending upstream clarification.
		log.Printf("control: snapshot index %d out of range (have %d), ignored", back, count)
		return
	}
	if err := d.snapshots.Restore(idx); err != nil {
		log.Printf("control: snapshot restore %d failed: %v", idx, err)
		return
	}
	d.replyStatus(from)
}

func (d *Dispatcher) dispatchCurrent(attribute string, args []any, from *net.UDPAddr) {
	count := d.sources.Count()
	if count == 0 {
		return
	}
	cur := d.sources.CurrentIndex()

	switch attribute {
	case "/next":
		d.sources.SetCurrentIndex((cur + 1) % count)
	case "/previous":
		d.sources.SetCurrentIndex((cur - 1 + count) % count)
	default:
		if idx, err := strconv.Atoi(strings.TrimPrefix(attribute, "/")); err == nil {
			if idx >= 0 && idx < count {
				d.sources.SetCurrentIndex(idx)
			}
			d.replyCurrentStatus(from)
			return
		}
		d.applyAttributeToIndices([]int{cur}, attribute, args)
		return
	}
	d.replyCurrentStatus(from)
}

// replyCurrentStatus sends the §8 scenario S2 reply shape: one
// /current/<i> message per source (1.0 for the new current index, 0.0
// otherwise) plus one /<i>/alpha message per source.
func (d *Dispatcher) replyCurrentStatus(from *net.UDPAddr) {
	count := d.sources.Count()
	cur := d.sources.CurrentIndex()

	var messages []oscwire.Message
	for i := 0; i < count; i++ {
		val := float32(0)
		if i == cur {
			val = 1
		}
		messages = append(messages, oscwire.Message{
			Address: fmt.Sprintf("/%s/current/%d", d.prefix, i),
			Args:    []any{val},
		})
	}
	for i := 0; i < count; i++ {
		src, ok := d.sources.ByIndex(i)
		if !ok {
			continue
		}
		messages = append(messages, oscwire.Message{
			Address: fmt.Sprintf("/%s/%d/alpha", d.prefix, i),
			Args:    []any{float32(src.Alpha())},
		})
	}

	d.send(oscwire.Bundle{Messages: messages}, from)
}

func (d *Dispatcher) dispatchNamed(target, attribute string, args []any) {
	src, _, ok := d.sources.ByName(target)
	if !ok {
		if i, err := strconv.Atoi(target); err == nil {
			src, ok = d.sources.ByIndex(i)
		}
	}
	if !ok {
		log.Printf("control: unknown source target %q", target)
		return
	}
	applySourceAttribute(src, attribute, args)
}

func (d *Dispatcher) applyToIndices(indices []int, attribute string, args []any) {
	d.applyAttributeToIndices(indices, attribute, args)
}

func (d *Dispatcher) applyAttributeToIndices(indices []int, attribute string, args []any) {
	for _, i := range indices {
		if src, ok := d.sources.ByIndex(i); ok {
			applySourceAttribute(src, attribute, args)
		}
	}
}

// applySourceAttribute implements the per-frame source attribute table
// (§4.7). All arguments are validated before any mutation — no attribute
// here partially applies.
func applySourceAttribute(src types.Source, attribute string, args []any) {
	switch attribute {
	case "/play":
		arg, ok := oscwire.ArgFloat32(args, 0)
		src.Play(!ok || arg >= 0.5)
	case "/pause":
		arg, ok := oscwire.ArgFloat32(args, 0)
		src.Pause(!ok || arg >= 0.5)
	case "/replay":
		src.Replay()
	case "/alpha":
		if v, ok := oscwire.ArgFloat32(args, 0); ok {
			src.SetAlpha(types.Clamp01(float64(v)))
		}
	case "/transparency":
		// transparency = 1 - alpha (§9 open question resolution).
		if v, ok := oscwire.ArgFloat32(args, 0); ok {
			src.SetAlpha(types.Clamp01(1 - float64(v)))
		}
	case "/loom":
		// loom is a relative nudge on alpha (§9 open question resolution).
		if v, ok := oscwire.ArgFloat32(args, 0); ok {
			src.Loom(float64(v))
		}
	case "/depth":
		if v, ok := oscwire.ArgFloat32(args, 0); ok {
			src.SetDepth(float64(v))
		}
	case "/grab":
		dx, ok1 := oscwire.ArgFloat32(args, 0)
		dy, ok2 := oscwire.ArgFloat32(args, 1)
		if !ok1 || !ok2 {
			log.Printf("control: /grab requires two float arguments")
			return
		}
		src.Grab(float64(dx), float64(dy))
	case "/resize":
		dx, ok1 := oscwire.ArgFloat32(args, 0)
		dy, ok2 := oscwire.ArgFloat32(args, 1)
		if !ok1 || !ok2 {
			log.Printf("control: /resize requires two float arguments")
			return
		}
		src.Resize(float64(dx), float64(dy))
	case "/turn":
		angle, ok := oscwire.ArgFloat32(args, 0)
		if !ok {
			log.Printf("control: /turn requires a float argument")
			return
		}
		src.Turn(float64(angle)) // second argument, if present, is ignored
	case "/reset":
		src.ResetGeometry()
	default:
		log.Printf("control: unknown source attribute %q", attribute)
	}
}

// replyStatus sends a feedback bundle covering output state (§8 scenario
// S1: snapshot recall expects at least /output/enable and /output/fading).
func (d *Dispatcher) replyStatus(from *net.UDPAddr) {
	d.mu.Lock()
	out := d.output
	d.mu.Unlock()

	enableArg := float32(0)
	if !out.RenderDisabled {
		enableArg = 1
	}

	bundle := oscwire.Bundle{Messages: []oscwire.Message{
		{Address: "/" + d.prefix + "/output/enable", Args: []any{enableArg}},
		{Address: "/" + d.prefix + "/output/fading", Args: []any{float32(out.FadingTarget)}},
	}}
	d.send(bundle, from)
}

func (d *Dispatcher) send(bundle oscwire.Bundle, from *net.UDPAddr) {
	if d.conn == nil || from == nil {
		return
	}
	data, err := oscwire.EncodeBundle(bundle)
	if err != nil {
		log.Printf("control: encode reply: %v", err)
		return
	}
	to := &net.UDPAddr{IP: from.IP, Port: d.sendPort}
	if _, err := d.conn.WriteToUDP(data, to); err != nil {
		log.Printf("control: send reply to %s: %v", to, err)
	}
}

// OutputState returns a snapshot of the current output-level control state.
func (d *Dispatcher) OutputState() types.OutputState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.output
}
