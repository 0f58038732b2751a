package detect

import (
	"errors"
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/ironsheep/omr-scan/internal/template"
)

// newSheet creates a white canvas; marks are painted on with fillRect.
func newSheet(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, color.RGBA{255, 255, 255, 255})
		}
	}
	return img
}

func fillRect(img *image.RGBA, x0, y0, x1, y1 int) {
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			img.SetRGBA(x, y, color.RGBA{0, 0, 0, 255})
		}
	}
}

// oneQuestion returns a template with a single question whose choices sit at
// (0.1,0.1) and (0.3,0.1), each 0.1x0.1 — on a 100px canvas, 10x10 pixel
// boxes at x=10 and x=30.
func oneQuestion(kind template.Kind) *template.Template {
	return &template.Template{
		ID: "t", Version: "1",
		Questions: []template.Question{{ID: "q1", Label: "Q1", Kind: kind}},
		Regions: []template.MarkRegion{
			{X: 0.1, Y: 0.1, Width: 0.1, Height: 0.1, QuestionID: "q1", ChoiceIndex: 0},
			{X: 0.3, Y: 0.1, Width: 0.1, Height: 0.1, QuestionID: "q1", ChoiceIndex: 1},
		},
	}
}

func TestDetect_FilledAndEmpty(t *testing.T) {
	img := newSheet(100, 100)
	fillRect(img, 10, 10, 20, 20) // choice 0 fully filled

	samples, err := Detect(img, oneQuestion(template.KindRating), 128)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("sample count: got %d, want 2", len(samples))
	}

	if samples[0].FillRatio != 1.0 {
		t.Errorf("filled region: got fill %g, want 1.0", samples[0].FillRatio)
	}
	if samples[0].Confidence != 1.0 {
		t.Errorf("filled region: got confidence %g, want 1.0", samples[0].Confidence)
	}
	if samples[1].FillRatio != 0.0 {
		t.Errorf("empty region: got fill %g, want 0.0", samples[1].FillRatio)
	}
	if samples[1].Confidence != 0.0 {
		t.Errorf("empty region: got confidence %g, want 0.0", samples[1].Confidence)
	}
}

func TestDetect_ConfidenceMapping(t *testing.T) {
	// Fill k of the 10 rows of the 10x10 box to get exact ratios.
	tests := []struct {
		rows     int
		wantFill float64
		wantConf float64
	}{
		{0, 0.0, 0.0},
		{1, 0.1, 0.2},
		{2, 0.2, 0.4},
		{5, 0.5, 1.0}, // half-filled already yields full confidence
		{8, 0.8, 1.0},
		{10, 1.0, 1.0},
	}

	for _, tt := range tests {
		img := newSheet(100, 100)
		fillRect(img, 10, 10, 20, 10+tt.rows)

		samples, err := Detect(img, oneQuestion(template.KindRating), 128)
		if err != nil {
			t.Fatalf("rows=%d: Detect failed: %v", tt.rows, err)
		}
		if math.Abs(samples[0].FillRatio-tt.wantFill) > 1e-9 {
			t.Errorf("rows=%d: fill got %g, want %g", tt.rows, samples[0].FillRatio, tt.wantFill)
		}
		if math.Abs(samples[0].Confidence-tt.wantConf) > 1e-9 {
			t.Errorf("rows=%d: confidence got %g, want %g", tt.rows, samples[0].Confidence, tt.wantConf)
		}
	}
}

func TestDetect_ConfidenceMonotonic(t *testing.T) {
	prev := -1.0
	for rows := 0; rows <= 10; rows++ {
		img := newSheet(100, 100)
		fillRect(img, 10, 10, 20, 10+rows)

		samples, err := Detect(img, oneQuestion(template.KindRating), 128)
		if err != nil {
			t.Fatalf("rows=%d: Detect failed: %v", rows, err)
		}
		if samples[0].Confidence < prev {
			t.Errorf("rows=%d: confidence %g decreased below %g", rows, samples[0].Confidence, prev)
		}
		prev = samples[0].Confidence
	}
}

func TestDetect_RegionOutsideBounds(t *testing.T) {
	// Constructed directly: a post-calibration region can land off-canvas
	// even though authored templates validate against the unit square.
	tpl := &template.Template{
		ID: "t", Version: "1",
		Questions: []template.Question{{ID: "q1", Kind: template.KindRating}},
		Regions: []template.MarkRegion{
			{X: 0.1, Y: 0.1, Width: 0.1, Height: 0.1, QuestionID: "q1", ChoiceIndex: 0},
			{X: 2.0, Y: 2.0, Width: 0.1, Height: 0.1, QuestionID: "q1", ChoiceIndex: 1},
		},
	}

	// Everything dark: an off-canvas region must still report zero.
	img := newSheet(100, 100)
	fillRect(img, 0, 0, 100, 100)

	samples, err := Detect(img, tpl, 128)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if samples[0].FillRatio != 1.0 {
		t.Errorf("in-bounds region: got fill %g, want 1.0", samples[0].FillRatio)
	}
	if samples[1].FillRatio != 0.0 {
		t.Errorf("out-of-bounds region: got fill %g, want 0.0", samples[1].FillRatio)
	}
}

func TestDetect_RegionClipped(t *testing.T) {
	tpl := &template.Template{
		ID: "t", Version: "1",
		Questions: []template.Question{{ID: "q1", Kind: template.KindRating}},
		Regions: []template.MarkRegion{
			// Right half of this region hangs past the canvas edge.
			{X: 0.95, Y: 0.1, Width: 0.1, Height: 0.1, QuestionID: "q1", ChoiceIndex: 0},
		},
	}

	img := newSheet(100, 100)
	fillRect(img, 95, 10, 100, 20) // all in-bounds pixels dark

	samples, err := Detect(img, tpl, 128)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	// Only the 5x10 in-bounds slice counts, and it is fully dark.
	if samples[0].FillRatio != 1.0 {
		t.Errorf("clipped region: got fill %g, want 1.0", samples[0].FillRatio)
	}
}

func TestDetect_TemplateMismatch(t *testing.T) {
	tpl := &template.Template{
		ID: "t", Version: "1",
		Questions: []template.Question{{ID: "q1", Kind: template.KindRating}},
		Regions: []template.MarkRegion{
			{X: 3.0, Y: 3.0, Width: 0.1, Height: 0.1, QuestionID: "q1", ChoiceIndex: 0},
			{X: 5.0, Y: 5.0, Width: 0.1, Height: 0.1, QuestionID: "q1", ChoiceIndex: 1},
		},
	}

	_, err := Detect(newSheet(100, 100), tpl, 128)
	var mismatch *TemplateMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("error: got %v, want *TemplateMismatchError", err)
	}
	if mismatch.Regions != 2 {
		t.Errorf("regions in error: got %d, want 2", mismatch.Regions)
	}
}

func TestDetect_EmptyTemplate(t *testing.T) {
	tpl := &template.Template{ID: "t", Version: "1"}
	samples, err := Detect(newSheet(50, 50), tpl, 128)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(samples) != 0 {
		t.Errorf("sample count: got %d, want 0", len(samples))
	}
}

func TestDetect_DarkThreshold(t *testing.T) {
	// Gray 100 is dark under threshold 128 but not under threshold 64.
	img := newSheet(100, 100)
	for y := 10; y < 20; y++ {
		for x := 10; x < 20; x++ {
			img.SetRGBA(x, y, color.RGBA{100, 100, 100, 255})
		}
	}
	tpl := oneQuestion(template.KindRating)

	samples, err := Detect(img, tpl, 128)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if samples[0].FillRatio != 1.0 {
		t.Errorf("threshold 128: got fill %g, want 1.0", samples[0].FillRatio)
	}

	samples, err = Detect(img, tpl, 64)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if samples[0].FillRatio != 0.0 {
		t.Errorf("threshold 64: got fill %g, want 0.0", samples[0].FillRatio)
	}
}
