package imaging

import (
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// InvalidImageError reports an image that cannot be processed at all,
// typically because one of its dimensions is zero.
type InvalidImageError struct {
	Width  int
	Height int
}

func (e *InvalidImageError) Error() string {
	return fmt.Sprintf("invalid image: %dx%d", e.Width, e.Height)
}

// Preprocess normalizes a raw raster image for mark detection.
//
// The input is never mutated; the result is a fresh NRGBA image. Three steps
// run in fixed order:
//
//  1. Grayscale conversion using ITU-R BT.601 luminance weights
//     (0.299*R + 0.587*G + 0.114*B), written back uniformly to R, G and B.
//     Alpha is untouched.
//
//  2. Linear contrast stretch around the midpoint 128 with the given factor,
//     clamped to [0,255]. A factor of 1.5 (the default configuration) pushes
//     pencil marks further from paper background.
//
//  3. 3x3 box blur averaging over interior pixels. Border pixels are left
//     untouched; the one-pixel frame never has a full neighborhood and
//     skipping it avoids out-of-bounds sampling.
//
// Returns *InvalidImageError if the image has zero width or height. No other
// failure mode exists for a well-formed image.
func Preprocess(img image.Image, contrastFactor float64) (*image.NRGBA, error) {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width <= 0 || height <= 0 {
		return nil, &InvalidImageError{Width: width, Height: height}
	}

	// Clone re-bases the image at (0,0) and gives us a mutable copy,
	// keeping the caller's image intact.
	out := imaging.Clone(img)

	// Grayscale + contrast in one pass over the luminance plane.
	lum := make([]uint8, width*height)
	for y := 0; y < height; y++ {
		row := out.Pix[y*out.Stride:]
		for x := 0; x < width; x++ {
			i := x * 4
			r := float64(row[i])
			g := float64(row[i+1])
			b := float64(row[i+2])
			v := 0.299*r + 0.587*g + 0.114*b

			v = 128 + (v-128)*contrastFactor
			if v < 0 {
				v = 0
			} else if v > 255 {
				v = 255
			}
			// Round, don't truncate: the midpoint must be a fixed point
			// of the stretch, and truncation would bias every pixel a
			// level darkward into the threshold comparison.
			lum[y*width+x] = uint8(math.Round(v))
		}
	}

	// Box blur reads from the stretched plane and writes the final value,
	// so neighboring averages never see already-blurred pixels.
	for y := 0; y < height; y++ {
		row := out.Pix[y*out.Stride:]
		for x := 0; x < width; x++ {
			v := lum[y*width+x]
			if x > 0 && y > 0 && x < width-1 && y < height-1 {
				var sum int
				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						sum += int(lum[(y+dy)*width+(x+dx)])
					}
				}
				v = uint8(sum / 9)
			}
			i := x * 4
			row[i] = v
			row[i+1] = v
			row[i+2] = v
		}
	}

	return out, nil
}
