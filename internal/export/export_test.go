package export

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/ironsheep/omr-scan/internal/batch"
	"github.com/ironsheep/omr-scan/internal/lifecycle"
)

func TestWriteCSV(t *testing.T) {
	sum := batch.Summary{BatchCode: "B1", TotalSheets: 3}
	sheets := []lifecycle.SheetResult{
		{
			SheetID: "a", Label: "Math / Smith", Status: lifecycle.StatusProcessed,
			OverallScore: 4.5, OverallConfidence: 0.92,
			RatingScale: 5, ImageQualityScore: 0.8, ProcessingDurationMs: 120,
		},
		{
			SheetID: "b", Status: lifecycle.StatusReviewNeeded,
			OverallScore: 2.0, OverallConfidence: 0.4,
			RatingScale: 5, ImageQualityScore: 0.6, ProcessingDurationMs: 95,
		},
		{
			SheetID: "c", Status: lifecycle.StatusFailed,
			FailureReason: "failed to open sheet image",
		},
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, sum, sheets); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("row count: got %d, want 4 (header + 3 sheets)", len(rows))
	}
	if rows[0][0] != "batch_code" || rows[0][2] != "label" || rows[0][3] != "status" {
		t.Errorf("header: got %v", rows[0])
	}

	// Processed sheet carries label, score and percent.
	if rows[1][2] != "Math / Smith" {
		t.Errorf("label: got %q, want \"Math / Smith\"", rows[1][2])
	}
	if rows[1][4] != "4.50" {
		t.Errorf("score: got %q, want \"4.50\"", rows[1][4])
	}
	if rows[1][5] != "90.0" {
		t.Errorf("percent: got %q, want \"90.0\"", rows[1][5])
	}

	// Failed sheet has blank score/percent but keeps its reason.
	if rows[3][4] != "" || rows[3][5] != "" {
		t.Errorf("failed sheet score/percent: got %q/%q, want blanks", rows[3][4], rows[3][5])
	}
	if rows[3][9] != "failed to open sheet image" {
		t.Errorf("failure reason: got %q", rows[3][9])
	}
}

func TestWriteCSV_EmptyBatch(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, batch.Summary{BatchCode: "B1"}, nil); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("row count: got %d, want 1 (header only)", len(rows))
	}
}
