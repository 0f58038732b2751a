// Package export renders batch results for download.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/ironsheep/omr-scan/internal/batch"
	"github.com/ironsheep/omr-scan/internal/lifecycle"
)

// WriteCSV writes one row per sheet, preceded by a header. Scores and
// percentages are blank for failed sheets, which never carry a computed
// score.
func WriteCSV(w io.Writer, sum batch.Summary, sheets []lifecycle.SheetResult) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{
		"batch_code", "sheet_id", "label", "status", "score", "percent",
		"confidence", "image_quality", "duration_ms", "failure_reason",
	}); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, s := range sheets {
		score, percent := "", ""
		if s.Status == lifecycle.StatusProcessed || s.Status == lifecycle.StatusReviewNeeded {
			score = strconv.FormatFloat(s.OverallScore, 'f', 2, 64)
			if s.RatingScale > 0 {
				percent = strconv.FormatFloat(s.OverallScore/float64(s.RatingScale)*100, 'f', 1, 64)
			}
		}
		row := []string{
			sum.BatchCode,
			s.SheetID,
			s.Label,
			string(s.Status),
			score,
			percent,
			strconv.FormatFloat(s.OverallConfidence, 'f', 3, 64),
			strconv.FormatFloat(s.ImageQualityScore, 'f', 3, 64),
			strconv.FormatInt(s.ProcessingDurationMs, 10),
			s.FailureReason,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write sheet row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}
