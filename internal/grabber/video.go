package grabber

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Eyevinn/mp4ff/mp4"

	"vimix/internal/types"
)

// videoTimescale is the fMP4 track timescale; 90kHz is the conventional
// choice for video, matching the helix pack's fMP4 muxer.
const videoTimescale = 90000

// VideoEncoder turns a raw composited frame into one or more AVCC NAL
// units. The core never implements an encoder itself (source/encoder
// implementations are an external collaborator); composition roots supply
// one, the same way the teacher's own cmd/bunghole wires NewEncoder.
type VideoEncoder interface {
	Encode(frame *types.Frame) (nalus [][]byte, keyframe bool, err error)
	SPS() []byte
	PPS() []byte
	Close() error
}

// AudioSource is an optional Opus-encoded audio source attached to a
// recording. The Video sink only closes it when the recording ends; its
// packets are not written into the MP4 file.
type AudioSource interface {
	NextPacket() (data []byte, ok bool)
	Close() error
}

// videoSink is the Video variant (§4.5 table): muxes encoded frames into a
// fragmented MP4 file, with optional timeout. The file holds a single
// video track; an attached AudioSource is closed with the sink but its
// audio is not muxed in. Grounded
// on helixml-helix's api/pkg/server/fmp4_stream_handler.go fMP4Muxer,
// repointed from an HTTP response stream to a file, and on the teacher's
// own file-naming convention for recorder outputs.
type videoSink struct {
	dir, base string
	encoder   VideoEncoder
	audio     AudioSource

	f            *os.File
	frameNum     uint32
	baseTime     time.Duration
	haveBaseTime bool
	initWritten  bool
	width, height uint32
}

// NewVideo returns a Video grabber. maxDuration of 0 disables the timeout
// policy; frameDuration drives the timeout guard band (§4.5).
func NewVideo(dir, base string, encoder VideoEncoder, audio AudioSource, maxDuration, frameDuration time.Duration) *Base {
	return NewBase(types.KindVideo, &videoSink{dir: dir, base: base, encoder: encoder, audio: audio}, maxDuration, frameDuration)
}

func (s *videoSink) Init(caps types.Caps) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("video: mkdir: %w", err)
	}
	name := removeDot(fmt.Sprintf("%s_%s.mp4", s.base, time.Now().Format("20060102150405.000")))
	f, err := os.Create(filepath.Join(s.dir, name))
	if err != nil {
		return "", fmt.Errorf("video: create: %w", err)
	}
	s.f = f
	s.width, s.height = uint32(caps.Width), uint32(caps.Height)
	return fmt.Sprintf("video sink %s (%dx%d)", name, caps.Width, caps.Height), nil
}

func (s *videoSink) Push(frame *types.Frame, ts time.Duration) error {
	nalus, keyframe, err := s.encoder.Encode(frame)
	if err != nil {
		return fmt.Errorf("video: encode: %w", err)
	}
	if len(nalus) == 0 {
		return nil
	}

	if !s.initWritten {
		if err := s.writeInitSegment(); err != nil {
			return err
		}
		s.initWritten = true
		s.baseTime = ts
		s.haveBaseTime = true
	}

	return s.writeMediaSegment(nalus, keyframe, ts)
}

func (s *videoSink) writeInitSegment() error {
	init := mp4.CreateEmptyInit()
	init.AddEmptyTrack(videoTimescale, "video", "und")

	avcC, err := mp4.CreateAvcC([][]byte{s.encoder.SPS()}, [][]byte{s.encoder.PPS()}, true)
	if err != nil {
		return fmt.Errorf("video: avcC: %w", err)
	}
	stsd := init.Moov.Trak.Mdia.Minf.Stbl.Stsd
	stsd.AddChild(mp4.CreateVisualSampleEntryBox("avc1", uint16(s.width), uint16(s.height), avcC))

	var buf bytes.Buffer
	if err := init.Encode(&buf); err != nil {
		return fmt.Errorf("video: encode init: %w", err)
	}
	_, err = s.f.Write(buf.Bytes())
	return err
}

func (s *videoSink) writeMediaSegment(nalus [][]byte, keyframe bool, ts time.Duration) error {
	s.frameNum++

	var data []byte
	for _, n := range nalus {
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(n)))
		data = append(data, lenBuf[:]...)
		data = append(data, n...)
	}

	frag, err := mp4.CreateFragment(s.frameNum, 1)
	if err != nil {
		return fmt.Errorf("video: fragment: %w", err)
	}

	decodeTime := uint64((ts - s.baseTime) * videoTimescale / time.Second)
	sample := mp4.FullSample{
		Sample: mp4.Sample{
			Flags: mp4.NonSyncSampleFlags,
			Dur:   videoTimescale / 30,
			Size:  uint32(len(data)),
		},
		DecodeTime: decodeTime,
		Data:       data,
	}
	if keyframe {
		sample.Sample.Flags = mp4.SyncSampleFlags
	}
	frag.AddFullSample(sample)

	var buf bytes.Buffer
	if err := frag.Encode(&buf); err != nil {
		return fmt.Errorf("video: encode fragment: %w", err)
	}
	_, err = s.f.Write(buf.Bytes())
	return err
}

func (s *videoSink) Close() error {
	if s.audio != nil {
		_ = s.audio.Close()
	}
	if err := s.encoder.Close(); err != nil {
		return err
	}
	if s.f != nil {
		return s.f.Close()
	}
	return nil
}
