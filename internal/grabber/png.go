package grabber

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"time"

	"vimix/internal/types"
)

// pngSink is the PNG variant (§4.5 table): single-shot, encodes the first
// staged frame to a time-stamped file and ignores every later frame. The
// grabber does not mark itself finished after the write; it stays active
// until Stop is called. Grounded on the
// teacher's own debug PNG dump in internal/capture/xshm_linux.go
// (bgraToImage + image/png.Encode), generalized from a debug HTTP handler
// to a grabber sink.
type pngSink struct {
	dir     string
	base    string
	wrote   bool
}

// NewPNG returns a single-shot PNG grabber writing under dir with the given
// file-name base (§6: "<base>_<YYYYMMDDhhmmssmmm>.png").
func NewPNG(dir, base string) *Base {
	return NewBase(types.KindPng, &pngSink{dir: dir, base: base}, 0, 0)
}

func (s *pngSink) Init(caps types.Caps) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("png: mkdir: %w", err)
	}
	return fmt.Sprintf("png sink ready in %s (%dx%d)", s.dir, caps.Width, caps.Height), nil
}

func (s *pngSink) Push(frame *types.Frame, ts time.Duration) error {
	if s.wrote {
		return nil // single-shot: ignore any frame after the first
	}
	s.wrote = true

	img := toImage(frame)
	name := fmt.Sprintf("%s_%s.png", s.base, time.Now().Format("20060102150405.000"))
	name = removeDot(name)
	path := filepath.Join(s.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("png: create %s: %w", path, err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("png: encode: %w", err)
	}
	return nil
}

func (s *pngSink) Close() error { return nil }

// removeDot strips the decimal point Go's time layout leaves in the
// milliseconds field, matching the spec's YYYYMMDDhhmmssmmm (no separator).
func removeDot(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			continue
		}
		out = append(out, s[i])
	}
	return string(out)
}

// toImage converts a raw RGB/RGBA Frame, flipped vertically per §6, into an
// image.Image suitable for png.Encode.
func toImage(frame *types.Frame) image.Image {
	channels := types.Channels(frame.Alpha)
	img := image.NewRGBA(image.Rect(0, 0, frame.Width, frame.Height))
	for y := 0; y < frame.Height; y++ {
		srcY := frame.Height - 1 - y // vertical flip
		srcRow := srcY * frame.Stride
		for x := 0; x < frame.Width; x++ {
			o := srcRow + x*channels
			i := img.PixOffset(x, y)
			img.Pix[i+0] = frame.Data[o]
			img.Pix[i+1] = frame.Data[o+1]
			img.Pix[i+2] = frame.Data[o+2]
			if channels == 4 {
				img.Pix[i+3] = frame.Data[o+3]
			} else {
				img.Pix[i+3] = 0xff
			}
		}
	}
	return img
}
