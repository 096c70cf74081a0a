// Package pattern is a synthetic types.FrameBuffer: a generated test
// pattern (moving colour bars) standing in for the (out-of-scope)
// renderer's GPU output texture. The real render tick is an external
// collaborator (§1: "the core only sees a Source interface"; §5: "driven
// by an external render loop") — this package exists so cmd/vimix can
// drive internal/grabfabric.Fabric.GrabFrame once per tick without a real
// GPU context, the same way a "pattern" source is one of the heterogeneous
// inputs named in §1's purpose section.
//
// Stdlib only: generating a synthetic image is a handful of arithmetic
// loops, and no pack library offers a procedural pattern generator.
package pattern

import "time"

// Generator is a types.FrameBuffer that renders a shifting vertical
// colour-bar pattern into its readback destination on every tick, sized to
// a fixed resolution until Resize is called.
type Generator struct {
	width, height int
	alpha         bool
	tick          int
}

// New returns a pattern generator at the given resolution.
func New(width, height int, alpha bool) *Generator {
	return &Generator{width: width, height: height, alpha: alpha}
}

// Resize changes the generator's resolution for the next tick, exercising
// internal/grabfabric's resize-detection path (§8 scenario S6).
func (g *Generator) Resize(width, height int, alpha bool) {
	g.width, g.height, g.alpha = width, height, alpha
}

func (g *Generator) TextureID() uint64 { return 0 }
func (g *Generator) Width() int        { return g.width }
func (g *Generator) Height() int       { return g.height }
func (g *Generator) Alpha() bool       { return g.alpha }

var barColors = [8][3]byte{
	{255, 255, 255}, {255, 255, 0}, {0, 255, 255}, {0, 255, 0},
	{255, 0, 255}, {255, 0, 0}, {0, 0, 255}, {0, 0, 0},
}

// RequestReadback fills dst with the current tick's pattern, advancing a
// horizontal shift each call so successive frames visibly differ
// (exercising the strictly-increasing-timestamp invariant downstream,
// §8 property 1).
func (g *Generator) RequestReadback(dst []byte) error {
	channels := 3
	if g.alpha {
		channels = 4
	}
	barWidth := g.width/8 + 1
	shift := g.tick % g.width
	g.tick++

	for y := 0; y < g.height; y++ {
		row := y * g.width * channels
		for x := 0; x < g.width; x++ {
			sx := (x + shift) % g.width
			bar := sx / barWidth
			if bar >= len(barColors) {
				bar = len(barColors) - 1
			}
			c := barColors[bar]
			off := row + x*channels
			dst[off+0] = c[0]
			dst[off+1] = c[1]
			dst[off+2] = c[2]
			if channels == 4 {
				dst[off+3] = 255
			}
		}
	}
	return nil
}

// FrameDuration is the fixed tick period the render loop in cmd/vimix
// sleeps for between GrabFrame calls, matching §1's "~60 Hz" assumption.
const FrameDuration = time.Second / 60
