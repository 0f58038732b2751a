package imaging

import (
	"image"

	"github.com/anthonynsimon/bild/histogram"
)

// QualityScore rates a preprocessed sheet image in [0,1].
//
// The score is the occupied dynamic range of the luminance histogram: the
// distance between the darkest and brightest populated bins, over the full
// 0-255 range. A well-exposed scan with dark marks on light paper spans most
// of the range and scores near 1; a blank or washed-out scan collapses into
// a narrow band and scores near 0.
//
// The score is informational. It is recorded on the sheet result for human
// reviewers and does not gate any transition.
func QualityScore(img image.Image) float64 {
	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return 0
	}

	// After preprocessing R==G==B, so the red histogram is the luminance
	// histogram.
	h := histogram.NewRGBAHistogram(img).R

	lo, hi := -1, -1
	for i, n := range h.Bins {
		if n == 0 {
			continue
		}
		if lo < 0 {
			lo = i
		}
		hi = i
	}
	if lo < 0 || hi <= lo {
		return 0
	}
	return float64(hi-lo) / 255.0
}
