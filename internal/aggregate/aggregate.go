// Package aggregate reduces raw mark samples into per-question responses and
// a sheet-level score.
package aggregate

import (
	"sort"

	"github.com/ironsheep/omr-scan/internal/config"
	"github.com/ironsheep/omr-scan/internal/detect"
	"github.com/ironsheep/omr-scan/internal/template"
)

// Response is the resolved answer for one question.
//
// SelectedChoice is nil when the question is unanswered or ambiguous; in
// both cases Confidence is 0, which drags the sheet confidence down and is
// the intended trigger for human review.
type Response struct {
	QuestionID     string `json:"question_id"`
	SelectedChoice *int   `json:"selected_choice"`
	// Confidence is 0-1; non-zero only when SelectedChoice is set.
	Confidence float64 `json:"confidence"`
}

// Result is the aggregated outcome for one sheet.
type Result struct {
	// Responses holds one entry per template question, in template order.
	Responses []Response `json:"responses"`

	// OverallScore is the mean rating over answered rating questions only.
	// Unanswered questions are excluded from the denominator rather than
	// scored as zero; scoring them as zero would bias averages downward
	// inconsistently with partial-credit policies.
	OverallScore float64 `json:"overall_score"`

	// OverallConfidence is the mean response confidence over all questions,
	// including the zeros contributed by unanswered and ambiguous ones.
	OverallConfidence float64 `json:"overall_confidence"`

	// RatingScale is the K of the template's 1..K rating scale, carried
	// along so score percentages can be derived without the template.
	RatingScale int `json:"rating_scale"`
}

// Aggregate resolves samples into one Response per template question plus
// the sheet score and confidence.
//
// Per question:
//   - a region is filled iff its fill ratio exceeds cfg.FillThreshold
//   - exactly one filled region selects that choice with the region's
//     confidence
//   - zero filled regions leave the question unanswered (nil, confidence 0)
//   - with several filled regions, the top two fill ratios are compared: a
//     gap above cfg.DisambiguationMargin lets the higher one win with its
//     confidence scaled by cfg.AmbiguityPenalty; a smaller gap is treated
//     as ambiguous (nil, confidence 0) so the sheet lands in review instead
//     of guessing
//
// Yes/no questions have exactly two regions and go through the same margin
// rule; rating questions additionally contribute ChoiceIndex+1 to the score
// mean. Multiple-choice and yes/no answers are selection-only and never
// enter the score.
//
// Aggregate is a pure function: identical inputs yield identical results.
func Aggregate(samples []detect.Sample, tpl *template.Template, cfg config.Config) Result {
	byQuestion := make(map[string][]detect.Sample)
	for _, s := range samples {
		byQuestion[s.QuestionID] = append(byQuestion[s.QuestionID], s)
	}

	res := Result{
		Responses:   make([]Response, 0, len(tpl.Questions)),
		RatingScale: tpl.RatingScale(),
	}

	var confSum float64
	var scoreSum float64
	answered := 0

	for _, q := range tpl.Questions {
		resp := resolve(q.ID, byQuestion[q.ID], cfg)
		res.Responses = append(res.Responses, resp)
		confSum += resp.Confidence

		if q.Kind == template.KindRating && resp.SelectedChoice != nil {
			scoreSum += float64(*resp.SelectedChoice + 1)
			answered++
		}
	}

	if len(res.Responses) > 0 {
		res.OverallConfidence = confSum / float64(len(res.Responses))
	}
	if answered > 0 {
		res.OverallScore = scoreSum / float64(answered)
	}
	return res
}

// resolve applies the fill/margin rules to one question's samples.
func resolve(questionID string, samples []detect.Sample, cfg config.Config) Response {
	resp := Response{QuestionID: questionID}

	filled := make([]detect.Sample, 0, len(samples))
	for _, s := range samples {
		if s.FillRatio > cfg.FillThreshold {
			filled = append(filled, s)
		}
	}

	switch len(filled) {
	case 0:
		return resp
	case 1:
		choice := filled[0].ChoiceIndex
		resp.SelectedChoice = &choice
		resp.Confidence = filled[0].Confidence
		return resp
	}

	sort.Slice(filled, func(i, j int) bool {
		return filled[i].FillRatio > filled[j].FillRatio
	})
	if filled[0].FillRatio-filled[1].FillRatio <= cfg.DisambiguationMargin {
		// Too close to call; reviewers decide.
		return resp
	}
	choice := filled[0].ChoiceIndex
	resp.SelectedChoice = &choice
	resp.Confidence = filled[0].Confidence * cfg.AmbiguityPenalty
	return resp
}
