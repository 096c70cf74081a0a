// Command vimix composes the engine's core subsystems (§2) into a runnable
// process: a synthetic render tick feeding the grab fabric, the device
// monitor, the peer-discovery registry, the streaming manager, the OSC
// control endpoint, the output surface distributor, and the WHEP viewer
// signaling surface.
//
// The flag surface and graceful-shutdown goroutine are grounded on the
// teacher's cmd/bunghole/main.go (flag.String/.Int knobs, a signal channel
// driving an explicit teardown call before os.Exit). Optional recorder
// flags (--record-dir, --png-snapshot, --srt-port, --shm-path,
// --loopback-device) mirror that same main's NewCapturer/NewEncoder
// factory-wiring pattern, here standing up one-shot/continuous grabbers
// registered directly with the fabric instead of a single fixed pipeline.
package main

import (
	"crypto/rand"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vimix/internal/control"
	"vimix/internal/device"
	"vimix/internal/discovery"
	"vimix/internal/grabber"
	"vimix/internal/grabfabric"
	"vimix/internal/hostinfo"
	"vimix/internal/output"
	"vimix/internal/pattern"
	"vimix/internal/scene"
	"vimix/internal/streaming"
	"vimix/internal/viewer"
)

var (
	flagWidth   = flag.Int("width", 1280, "composited output width")
	flagHeight  = flag.Int("height", 720, "composited output height")
	flagAlpha   = flag.Bool("alpha", false, "composite with an alpha channel")
	flagPrefix  = flag.String("osc-prefix", "vimix", "OSC address prefix for the control endpoint")
	flagControl = flag.Int("control-port", 7000, "UDP port the control endpoint listens on")
	flagReply   = flag.Int("send-port", 7001, "UDP port control replies are sent to on the sender's IP")
	flagHandshake = flag.Int("handshake-port", 7002, "UDP port for peer discovery handshakes")
	flagStreamReq = flag.Int("stream-port", 7003, "UDP port the streaming manager listens on for peer requests")
	flagTranslator = flag.String("translator", "", "path to an OSC translator table XML file")

	flagWhepAddr  = flag.String("whep-addr", "", "HTTP(S) address for the WHEP viewer listener (empty disables it)")
	flagWhepToken = flag.String("whep-token", "", "bearer token for the WHEP listener (empty disables auth)")
	flagWhepTLS   = flag.Bool("whep-tls", false, "serve WHEP over self-signed HTTPS")
	flagCodec     = flag.String("codec", "h264", "video codec for WHEP/recording/broadcast sinks (h264 or h265)")

	flagRecordDir  = flag.String("record-dir", "", "start a continuous Video grabber writing fMP4 files under this directory")
	flagRecordAudio = flag.Bool("record-audio", false, "capture the default PulseAudio monitor alongside the Video grabber (not muxed into the file)")
	flagPNGOnce    = flag.String("png-snapshot", "", "take one PNG snapshot into this directory (later frames are ignored)")
	flagSRTPort    = flag.Int("srt-port", 0, "start an SRT Broadcast grabber listening/publishing on this port (0 disables)")
	flagSHMPath    = flag.String("shm-path", "", "start a Shared Memory grabber publishing on this unix socket path")
	flagLoopback   = flag.String("loopback-device", "", "start a Loopback grabber pushing frames to this v4l2 device")
)

func main() {
	flag.Parse()

	log.Printf("vimix: host %s, ips %v", hostinfo.HostName(), hostinfo.HostIPs())

	fabric := grabfabric.New()
	outputs := output.New()
	sources := scene.NewSet()
	snapshots := scene.NewSnapshots(sources)
	snapshots.Take("startup")

	deviceMon := device.New()
	deviceStarted := false
	pulseSrc, err := device.NewPulseSource()
	if err != nil {
		log.Printf("device: pulseaudio unavailable, monitor disabled: %v", err)
	} else {
		deviceStarted = true
		go deviceMon.Run(pulseSrc)
	}

	discReg := discovery.New(*flagStreamReq, *flagControl, *flagHandshake)
	if err := discReg.Init(); err != nil {
		log.Printf("discovery: init failed, peer discovery disabled: %v", err)
	}

	streamMgr := streaming.New(fabric, *flagWidth, *flagHeight, 20000)
	if err := streamMgr.Listen(*flagStreamReq); err != nil {
		log.Fatalf("streaming: %v", err)
	}
	streamMgr.Enable(true)

	dispatcher := control.New(*flagPrefix, *flagReply, snapshots, sources)
	if *flagTranslator != "" {
		if err := dispatcher.Reload(*flagTranslator); err != nil {
			log.Printf("control: translator load failed: %v", err)
		}
	}
	if err := dispatcher.Init(*flagControl); err != nil {
		log.Fatalf("control: %v", err)
	}

	var whepServer *viewer.Server
	if *flagWhepAddr != "" {
		whepServer = viewer.New(viewer.Config{
			Addr:          *flagWhepAddr,
			Token:         *flagWhepToken,
			Codec:         *flagCodec,
			FrameDuration: pattern.FrameDuration,
			UseTLS:        *flagWhepTLS,
			Fabric:        fabric,
			NewEncoder:    func() (grabber.VideoEncoder, error) { return grabber.NewPassthroughEncoder(), nil },
		})
		go func() {
			if err := whepServer.ListenAndServe(); err != nil {
				log.Printf("viewer: listener stopped: %v", err)
			}
		}()
	}

	registerOptionalGrabbers(fabric)

	stop := make(chan struct{})
	go renderLoop(fabric, outputs, stop)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("vimix: received %s, shutting down", sig)

	// Shutdown order: disable streaming (stops the P2P stream grabbers) →
	// stop the render loop → close WHEP sessions (stops their grabbers) →
	// break control receiver → break discovery → stop device monitor.
	// Grabbers started by registerOptionalGrabbers are not stopped before
	// the process exits.
	streamMgr.Enable(false)
	_ = streamMgr.Close()
	close(stop)
	if whepServer != nil {
		whepServer.Teardown()
	}
	dispatcher.Terminate()
	discReg.Close()
	if deviceStarted {
		deviceMon.Stop()
	}
}

// renderLoop drives GrabFrame at ~60Hz (§1, §5) using a synthetic pattern
// in place of the (out-of-scope) GPU renderer.
func renderLoop(fabric *grabfabric.Fabric, outputs *output.Distributor, stop chan struct{}) {
	gen := pattern.New(*flagWidth, *flagHeight, *flagAlpha)
	ticker := time.NewTicker(pattern.FrameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := fabric.GrabFrame(gen); err != nil {
				log.Printf("grabfabric: %v", err)
			}
		}
	}
}

// registerOptionalGrabbers stands up the sink variants requested on the
// command line (§4.5 table). None are required for the engine to run; a
// bare invocation composites and discards frames it cannot distribute,
// same as the grab fabric fanning out to zero grabbers by design.
func registerOptionalGrabbers(fabric *grabfabric.Fabric) {
	if *flagPNGOnce != "" {
		fabric.Register(grabber.NewPNG(*flagPNGOnce, "vimix"))
	}
	if *flagRecordDir != "" {
		var audio grabber.AudioSource
		if *flagRecordAudio {
			src, err := grabber.NewPulseAudioSource()
			if err != nil {
				log.Printf("video: audio mix-in unavailable: %v", err)
			} else {
				audio = src
			}
		}
		fabric.Register(grabber.NewVideo(*flagRecordDir, "vimix", grabber.NewPassthroughEncoder(), audio, 0, pattern.FrameDuration))
	}
	if *flagSRTPort != 0 {
		key := make([]byte, 30)
		if _, err := rand.Read(key); err != nil {
			log.Fatalf("srt: generate key: %v", err)
		}
		fabric.Register(grabber.NewSRTBroadcast(*flagSRTPort, key, grabber.NewPassthroughEncoder()))
	}
	if *flagSHMPath != "" {
		fabric.Register(grabber.NewSHM(*flagSHMPath))
	}
	if *flagLoopback != "" {
		fabric.Register(grabber.NewLoopback(*flagLoopback))
	}
}
