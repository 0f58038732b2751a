// Package template models the declarative layout of mark regions on a sheet.
//
// A Template describes, for one form version, where every answer bubble sits
// on the page and which question and choice it belongs to. Region coordinates
// are expressed in a normalized [0,1] space shared with the calibration
// points; ResolveRegions projects them onto a concrete pixel canvas.
//
// Templates are immutable once constructed. Sheets record the template id and
// version they were scanned against so results stay reproducible even after
// the template author publishes a new version.
package template

import (
	"encoding/json"
	"fmt"
	"image"
	"math"
	"os"
)

// Kind distinguishes how a question's marks are interpreted.
type Kind string

const (
	// KindRating questions map choice index i to a rating value i+1 on a
	// 1..K scale and contribute to the sheet score.
	KindRating Kind = "rating"

	// KindMultipleChoice questions record a selection but carry no numeric
	// value; they are excluded from the sheet score average.
	KindMultipleChoice Kind = "multiple_choice"

	// KindYesNo questions have exactly two regions (no=0, yes=1) and, like
	// multiple choice, are selection-only.
	KindYesNo Kind = "yes_no"
)

// Point is a coordinate in the template's normalized [0,1] space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Question describes one question on the form.
type Question struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Kind  Kind   `json:"kind"`
}

// MarkRegion is one answer bubble: a rectangle in normalized coordinates
// tied to a question and a choice index.
type MarkRegion struct {
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Width       float64 `json:"width"`
	Height      float64 `json:"height"`
	QuestionID  string  `json:"question_id"`
	ChoiceIndex int     `json:"choice_index"`
}

// Template is the full layout description for one form version.
type Template struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Version     string       `json:"version"`
	Questions   []Question   `json:"questions"`
	Regions     []MarkRegion `json:"regions"`
	Calibration [4]Point     `json:"calibration"`
}

// PixelRegion is a MarkRegion resolved onto a concrete canvas.
type PixelRegion struct {
	Rect        image.Rectangle
	QuestionID  string
	ChoiceIndex int
}

// Transform is an affine scale and offset applied to normalized coordinates
// before projection onto the canvas. The zero-correction transform is
// Identity.
type Transform struct {
	ScaleX, ScaleY   float64
	OffsetX, OffsetY float64
}

// Identity is the transform that leaves coordinates unchanged.
var Identity = Transform{ScaleX: 1, ScaleY: 1}

// Load reads and validates a template from a JSON file.
func Load(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template: %w", err)
	}
	var t Template
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Validate checks the structural invariants of the template:
//
//   - id and version are non-empty
//   - every region has positive width and height and lies inside the unit
//     square
//   - every region references a declared question
//   - no two regions of the same question overlap
//   - yes/no questions have exactly two regions
func (t *Template) Validate() error {
	if t.ID == "" || t.Version == "" {
		return fmt.Errorf("template id and version are required")
	}
	questions := make(map[string]Kind, len(t.Questions))
	for _, q := range t.Questions {
		if q.ID == "" {
			return fmt.Errorf("template %s: question with empty id", t.ID)
		}
		if _, dup := questions[q.ID]; dup {
			return fmt.Errorf("template %s: duplicate question %q", t.ID, q.ID)
		}
		switch q.Kind {
		case KindRating, KindMultipleChoice, KindYesNo:
		default:
			return fmt.Errorf("template %s: question %q has unknown kind %q", t.ID, q.ID, q.Kind)
		}
		questions[q.ID] = q.Kind
	}

	perQuestion := make(map[string][]MarkRegion)
	for i, r := range t.Regions {
		if r.Width <= 0 || r.Height <= 0 {
			return fmt.Errorf("template %s: region %d has non-positive size %gx%g", t.ID, i, r.Width, r.Height)
		}
		if r.X < 0 || r.Y < 0 || r.X+r.Width > 1 || r.Y+r.Height > 1 {
			return fmt.Errorf("template %s: region %d extends outside the unit square", t.ID, i)
		}
		if _, ok := questions[r.QuestionID]; !ok {
			return fmt.Errorf("template %s: region %d references unknown question %q", t.ID, i, r.QuestionID)
		}
		for _, other := range perQuestion[r.QuestionID] {
			if overlaps(r, other) {
				return fmt.Errorf("template %s: overlapping regions for question %q", t.ID, r.QuestionID)
			}
		}
		perQuestion[r.QuestionID] = append(perQuestion[r.QuestionID], r)
	}

	for id, kind := range questions {
		if kind == KindYesNo && len(perQuestion[id]) != 2 {
			return fmt.Errorf("template %s: yes/no question %q needs exactly 2 regions, has %d",
				t.ID, id, len(perQuestion[id]))
		}
	}
	return nil
}

// RegionsFor returns the regions of one question in declaration order.
func (t *Template) RegionsFor(questionID string) []MarkRegion {
	var out []MarkRegion
	for _, r := range t.Regions {
		if r.QuestionID == questionID {
			out = append(out, r)
		}
	}
	return out
}

// RatingScale returns the largest choice count among rating questions, i.e.
// the K of the 1..K rating scale. Zero if the template has no rating
// questions.
func (t *Template) RatingScale() int {
	max := 0
	for _, q := range t.Questions {
		if q.Kind != KindRating {
			continue
		}
		if n := len(t.RegionsFor(q.ID)); n > max {
			max = n
		}
	}
	return max
}

// Calibrate derives the scale/offset correction that maps the declared
// calibration quad onto the observed positions of the same four fiducials.
//
// Both quads are reduced to their bounding boxes; rotation and skew are out
// of scope here and belong to a preprocessing step that deskews the raster
// before region lookup. A degenerate declared quad yields Identity.
func (t *Template) Calibrate(observed [4]Point) Transform {
	dMinX, dMinY, dMaxX, dMaxY := quadBounds(t.Calibration)
	oMinX, oMinY, oMaxX, oMaxY := quadBounds(observed)

	dw, dh := dMaxX-dMinX, dMaxY-dMinY
	if dw <= 0 || dh <= 0 {
		return Identity
	}
	return Transform{
		ScaleX:  (oMaxX - oMinX) / dw,
		ScaleY:  (oMaxY - oMinY) / dh,
		OffsetX: oMinX - dMinX*(oMaxX-oMinX)/dw,
		OffsetY: oMinY - dMinY*(oMaxY-oMinY)/dh,
	}
}

// ResolveRegions projects all regions onto a w×h pixel canvas using the
// declared calibration as-is (no correction).
func (t *Template) ResolveRegions(w, h int) []PixelRegion {
	return t.ResolveRegionsWith(w, h, Identity)
}

// ResolveRegionsWith projects all regions onto a w×h pixel canvas after
// applying a calibration transform. Results preserve region order. Edges
// round to the nearest pixel; rects are not clipped to the canvas, detection
// clips while counting.
func (t *Template) ResolveRegionsWith(w, h int, tf Transform) []PixelRegion {
	out := make([]PixelRegion, 0, len(t.Regions))
	for _, r := range t.Regions {
		x0 := (r.X*tf.ScaleX + tf.OffsetX) * float64(w)
		y0 := (r.Y*tf.ScaleY + tf.OffsetY) * float64(h)
		x1 := ((r.X+r.Width)*tf.ScaleX + tf.OffsetX) * float64(w)
		y1 := ((r.Y+r.Height)*tf.ScaleY + tf.OffsetY) * float64(h)
		out = append(out, PixelRegion{
			Rect: image.Rect(
				int(math.Round(x0)), int(math.Round(y0)),
				int(math.Round(x1)), int(math.Round(y1)),
			),
			QuestionID:  r.QuestionID,
			ChoiceIndex: r.ChoiceIndex,
		})
	}
	return out
}

func overlaps(a, b MarkRegion) bool {
	return a.X < b.X+b.Width && b.X < a.X+a.Width &&
		a.Y < b.Y+b.Height && b.Y < a.Y+a.Height
}

func quadBounds(q [4]Point) (minX, minY, maxX, maxY float64) {
	minX, minY = q[0].X, q[0].Y
	maxX, maxY = q[0].X, q[0].Y
	for _, p := range q[1:] {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	return
}
