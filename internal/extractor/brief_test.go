package extractor

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"testing"

	"github.com/example/bookcover/internal/descriptor"
)

// encodeTestCover renders a deterministic high-contrast test image.
func encodeTestCover(t *testing.T, seed int64) []byte {
	t.Helper()

	rng := rand.New(rand.NewSource(seed))
	img := image.NewGray(image.Rect(0, 0, 120, 160))
	for y := 0; y < 160; y++ {
		for x := 0; x < 120; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(rng.Intn(256))})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test image: %v", err)
	}
	return buf.Bytes()
}

func encodeFlatCover(t *testing.T) []byte {
	t.Helper()

	img := image.NewGray(image.Rect(0, 0, 120, 160))
	for y := 0; y < 160; y++ {
		for x := 0; x < 120; x++ {
			img.SetGray(x, y, color.Gray{Y: 128})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode flat image: %v", err)
	}
	return buf.Bytes()
}

func TestExtractProducesDescriptors(t *testing.T) {
	b := &BRIEF{}
	set, err := b.Extract(context.Background(), encodeTestCover(t, 1))
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if len(set) == 0 {
		t.Fatal("expected descriptors from a high-contrast image")
	}
	for i, d := range set {
		if len(d) != descriptor.Length {
			t.Fatalf("descriptor %d has length %d, want %d", i, len(d), descriptor.Length)
		}
	}
}

func TestExtractDeterministic(t *testing.T) {
	data := encodeTestCover(t, 2)
	b := &BRIEF{}

	first, err := b.Extract(context.Background(), data)
	if err != nil {
		t.Fatalf("first extraction: %v", err)
	}
	second, err := b.Extract(context.Background(), data)
	if err != nil {
		t.Fatalf("second extraction: %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("descriptor count changed: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if !bytes.Equal(first[i], second[i]) {
			t.Fatalf("descriptor %d differs between runs", i)
		}
	}
}

func TestExtractFlatImageYieldsEmptySet(t *testing.T) {
	b := &BRIEF{}
	set, err := b.Extract(context.Background(), encodeFlatCover(t))
	if err != nil {
		t.Fatalf("a featureless image is a degenerate input, not a fault: %v", err)
	}
	if len(set) != 0 {
		t.Fatalf("expected empty set for flat image, got %d descriptors", len(set))
	}
}

func TestExtractUndecodableImage(t *testing.T) {
	b := &BRIEF{}
	if _, err := b.Extract(context.Background(), []byte("not an image")); err == nil {
		t.Fatal("expected error for undecodable bytes")
	}
}

func TestExtractRespectsMaxFeatures(t *testing.T) {
	b := &BRIEF{MaxFeatures: 10}
	set, err := b.Extract(context.Background(), encodeTestCover(t, 3))
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if len(set) > 10 {
		t.Fatalf("expected at most 10 descriptors, got %d", len(set))
	}
}

func TestExtractCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := &BRIEF{}
	if _, err := b.Extract(ctx, encodeTestCover(t, 4)); err == nil {
		t.Fatal("expected error from canceled context")
	}
}
