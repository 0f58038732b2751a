// Package detect computes fill ratios and confidences for mark regions.
//
// The detector is the second pipeline stage: it takes a preprocessed sheet
// image and a template, and produces one Sample per template region. It has
// no opinion about which mark wins a question; that is the aggregator's job.
package detect

import (
	"fmt"
	"image"

	"github.com/ironsheep/omr-scan/internal/template"
)

// Sample is the raw detector output for one mark region. Samples are
// immutable and consumed only by the aggregator.
type Sample struct {
	QuestionID  string  `json:"question_id"`
	ChoiceIndex int     `json:"choice_index"`
	FillRatio   float64 `json:"fill_ratio"` // fraction of dark pixels, 0-1
	Confidence  float64 `json:"confidence"` // min(1, 2*FillRatio)
}

// TemplateMismatchError reports that every region of a non-empty template
// fell entirely outside the image canvas, which almost always means the
// sheet was scanned against the wrong template or version.
type TemplateMismatchError struct {
	TemplateID string
	Regions    int
}

func (e *TemplateMismatchError) Error() string {
	return fmt.Sprintf("template %s: all %d regions outside image bounds", e.TemplateID, e.Regions)
}

// Detect computes a Sample for every region in the template.
//
// FillRatio is the fraction of pixels inside the region whose grayscale
// brightness is below darkThreshold. Regions are clipped to the image
// bounds; only in-bounds pixels count toward the ratio, and a region fully
// outside the canvas yields FillRatio 0.
//
// Confidence is min(1, 2*FillRatio): a half-filled bubble already earns full
// confidence. The mapping deliberately favors false positives over missed
// marks; ambiguity is resolved downstream, where over-eager detections force
// a sheet into review instead of silently dropping answers.
//
// An empty template yields an empty slice and no error. If the template has
// regions but none of them intersects the canvas, Detect returns
// *TemplateMismatchError.
func Detect(img image.Image, tpl *template.Template, darkThreshold uint8) ([]Sample, error) {
	bounds := img.Bounds()
	regions := tpl.ResolveRegions(bounds.Dx(), bounds.Dy())
	if len(regions) == 0 {
		return []Sample{}, nil
	}

	samples := make([]Sample, 0, len(regions))
	anyInBounds := false
	canvas := image.Rect(0, 0, bounds.Dx(), bounds.Dy())

	for _, reg := range regions {
		clipped := reg.Rect.Intersect(canvas)

		var fill float64
		if !clipped.Empty() {
			anyInBounds = true
			dark := 0
			total := 0
			for y := clipped.Min.Y; y < clipped.Max.Y; y++ {
				for x := clipped.Min.X; x < clipped.Max.X; x++ {
					r, g, b, _ := img.At(x+bounds.Min.X, y+bounds.Min.Y).RGBA()
					lum := 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
					if lum < float64(darkThreshold) {
						dark++
					}
					total++
				}
			}
			fill = float64(dark) / float64(total)
		}

		conf := fill * 2
		if conf > 1 {
			conf = 1
		}
		samples = append(samples, Sample{
			QuestionID:  reg.QuestionID,
			ChoiceIndex: reg.ChoiceIndex,
			FillRatio:   fill,
			Confidence:  conf,
		})
	}

	if !anyInBounds {
		return nil, &TemplateMismatchError{TemplateID: tpl.ID, Regions: len(regions)}
	}
	return samples, nil
}
