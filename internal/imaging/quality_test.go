package imaging

import (
	"image"
	"image/color"
	"math"
	"testing"
)

func TestQualityScore_Uniform(t *testing.T) {
	// A single-valued plane occupies no range at all.
	img := newUniformImage(20, 20, color.RGBA{147, 147, 147, 255})
	if got := QualityScore(img); got != 0 {
		t.Errorf("uniform image: got %g, want 0", got)
	}
}

func TestQualityScore_FullRange(t *testing.T) {
	img := newUniformImage(20, 20, color.RGBA{255, 255, 255, 255})
	img.SetRGBA(0, 0, color.RGBA{0, 0, 0, 255})
	if got := QualityScore(img); got != 1 {
		t.Errorf("black-on-white image: got %g, want 1", got)
	}
}

func TestQualityScore_NarrowBand(t *testing.T) {
	img := newUniformImage(20, 20, color.RGBA{100, 100, 100, 255})
	img.SetRGBA(0, 0, color.RGBA{150, 150, 150, 255})

	want := 50.0 / 255.0
	if got := QualityScore(img); math.Abs(got-want) > 1e-9 {
		t.Errorf("narrow band: got %g, want %g", got, want)
	}
}

func TestQualityScore_EmptyImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 0, 0))
	if got := QualityScore(img); got != 0 {
		t.Errorf("empty image: got %g, want 0", got)
	}
}

func TestQualityScore_Bounded(t *testing.T) {
	imgs := []*image.RGBA{
		newUniformImage(5, 5, color.RGBA{0, 0, 0, 255}),
		newUniformImage(5, 5, color.RGBA{255, 255, 255, 255}),
		newUniformImage(5, 5, color.RGBA{37, 41, 43, 255}),
	}
	for i, img := range imgs {
		got := QualityScore(img)
		if got < 0 || got > 1 {
			t.Errorf("image %d: score %g outside [0,1]", i, got)
		}
	}
}
