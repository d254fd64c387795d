package extractor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math/rand"
	"sync"

	"github.com/nfnt/resize"

	"github.com/example/bookcover/internal/descriptor"
)

const (
	// DefaultScaleSize is the width and height images are resized to
	// before keypoints are detected.
	DefaultScaleSize = 192

	// DefaultMaxFeatures caps the number of descriptors per image.
	DefaultMaxFeatures = 500

	// patchRadius bounds the pixel-pair sampling pattern around a
	// keypoint.
	patchRadius = 8

	// cellSize is the side length of the detection grid cells. One
	// keypoint at most is taken per cell.
	cellSize = 6

	// contrastThreshold is the minimum gradient magnitude for a pixel to
	// qualify as a keypoint. Flat regions produce no descriptors.
	contrastThreshold = 16

	// patternSeed fixes the sampling pattern so identical input bytes
	// always yield identical descriptors.
	patternSeed = 0x5eed
)

// BRIEF is an in-process extractor producing 256-bit binary descriptors from
// pseudo-random pixel-pair intensity comparisons around grid-detected
// keypoints. Zero-valued fields fall back to the package defaults.
type BRIEF struct {
	// ScaleSize is the working image size, e.g. 192 for 192x192.
	ScaleSize int

	// MaxFeatures caps the number of descriptors returned.
	MaxFeatures int
}

type pixelPair struct {
	x1, y1, x2, y2 int
}

var (
	patternOnce sync.Once
	pattern     []pixelPair
)

// samplingPattern returns the fixed pixel-pair pattern shared by all BRIEF
// extractors. Offsets are drawn once from a seeded generator.
func samplingPattern() []pixelPair {
	patternOnce.Do(func() {
		rng := rand.New(rand.NewSource(patternSeed))
		pattern = make([]pixelPair, 8*descriptor.Length)
		for i := range pattern {
			pattern[i] = pixelPair{
				x1: rng.Intn(2*patchRadius+1) - patchRadius,
				y1: rng.Intn(2*patchRadius+1) - patchRadius,
				x2: rng.Intn(2*patchRadius+1) - patchRadius,
				y2: rng.Intn(2*patchRadius+1) - patchRadius,
			}
		}
	})
	return pattern
}

// Extract decodes the image, detects keypoints on a contrast grid, and
// computes one binary descriptor per keypoint. A decodable image with no
// contrast yields an empty set and no error.
func (b *BRIEF) Extract(ctx context.Context, data []byte) (descriptor.Set, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("extractor: decode image: %w", err)
	}

	scaleSize := b.ScaleSize
	if scaleSize == 0 {
		scaleSize = DefaultScaleSize
	}
	maxFeatures := b.MaxFeatures
	if maxFeatures == 0 {
		maxFeatures = DefaultMaxFeatures
	}

	gray := toGray(resize.Resize(uint(scaleSize), uint(scaleSize), img, resize.Bicubic))
	keypoints := detectKeypoints(gray, maxFeatures)

	set := make(descriptor.Set, 0, len(keypoints))
	pairs := samplingPattern()
	for _, kp := range keypoints {
		d := make(descriptor.Descriptor, descriptor.Length)
		for i, p := range pairs {
			first := gray.at(kp.x+p.x1, kp.y+p.y1)
			second := gray.at(kp.x+p.x2, kp.y+p.y2)
			if first < second {
				d[i/8] |= 1 << uint(i%8)
			}
		}
		set = append(set, d)
	}
	return set, nil
}

type grayImage struct {
	pix    []uint8
	width  int
	height int
}

// at reads a pixel with coordinates clamped to the image bounds, so the
// sampling pattern never falls off the edge.
func (g *grayImage) at(x, y int) uint8 {
	if x < 0 {
		x = 0
	} else if x >= g.width {
		x = g.width - 1
	}
	if y < 0 {
		y = 0
	} else if y >= g.height {
		y = g.height - 1
	}
	return g.pix[y*g.width+x]
}

func toGray(img image.Image) *grayImage {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	g := &grayImage{pix: make([]uint8, width*height), width: width, height: height}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, gr, bl, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			// Standard luma weights on 16-bit channel values.
			luma := (299*r + 587*gr + 114*bl) / 1000
			g.pix[y*width+x] = uint8(luma >> 8)
		}
	}
	return g
}

type keypoint struct {
	x, y int
}

// detectKeypoints walks the image in fixed-size cells, row major, and keeps
// the strongest-gradient pixel of each cell that clears the contrast
// threshold. Row-major order makes extraction order deterministic.
func detectKeypoints(g *grayImage, maxFeatures int) []keypoint {
	var keypoints []keypoint
	for cy := 0; cy < g.height; cy += cellSize {
		for cx := 0; cx < g.width; cx += cellSize {
			best := keypoint{-1, -1}
			bestResponse := 0
			for y := cy; y < cy+cellSize && y < g.height; y++ {
				for x := cx; x < cx+cellSize && x < g.width; x++ {
					response := gradient(g, x, y)
					if response > bestResponse {
						bestResponse = response
						best = keypoint{x, y}
					}
				}
			}
			if bestResponse >= contrastThreshold {
				keypoints = append(keypoints, best)
				if len(keypoints) >= maxFeatures {
					return keypoints
				}
			}
		}
	}
	return keypoints
}

// gradient is the L1 magnitude of the central-difference gradient.
func gradient(g *grayImage, x, y int) int {
	dx := int(g.at(x+1, y)) - int(g.at(x-1, y))
	dy := int(g.at(x, y+1)) - int(g.at(x, y-1))
	if dx < 0 {
		dx = -dx
	}
	if dy < 0 {
		dy = -dy
	}
	return dx + dy
}
