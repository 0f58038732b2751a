package config

import "testing"

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.DarkPixelThreshold != 128 {
		t.Errorf("DarkPixelThreshold: got %d, want 128", cfg.DarkPixelThreshold)
	}
	if cfg.ContrastFactor != 1.5 {
		t.Errorf("ContrastFactor: got %g, want 1.5", cfg.ContrastFactor)
	}
	if cfg.FillThreshold != 0.3 {
		t.Errorf("FillThreshold: got %g, want 0.3", cfg.FillThreshold)
	}
	if cfg.DisambiguationMargin != 0.1 {
		t.Errorf("DisambiguationMargin: got %g, want 0.1", cfg.DisambiguationMargin)
	}
	if cfg.AmbiguityPenalty != 0.7 {
		t.Errorf("AmbiguityPenalty: got %g, want 0.7", cfg.AmbiguityPenalty)
	}
	if cfg.ConfidenceThreshold != 0.8 {
		t.Errorf("ConfidenceThreshold: got %g, want 0.8", cfg.ConfidenceThreshold)
	}
	if cfg.Workers < 1 {
		t.Errorf("Workers: got %d, want >= 1", cfg.Workers)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("OMR_DARK_THRESHOLD", "100")
	t.Setenv("OMR_FILL_THRESHOLD", "0.45")
	t.Setenv("OMR_CONFIDENCE_THRESHOLD", "0.6")
	t.Setenv("OMR_WORKERS", "3")

	cfg := FromEnv()
	if cfg.DarkPixelThreshold != 100 {
		t.Errorf("DarkPixelThreshold: got %d, want 100", cfg.DarkPixelThreshold)
	}
	if cfg.FillThreshold != 0.45 {
		t.Errorf("FillThreshold: got %g, want 0.45", cfg.FillThreshold)
	}
	if cfg.ConfidenceThreshold != 0.6 {
		t.Errorf("ConfidenceThreshold: got %g, want 0.6", cfg.ConfidenceThreshold)
	}
	if cfg.Workers != 3 {
		t.Errorf("Workers: got %d, want 3", cfg.Workers)
	}
	// Untouched fields keep defaults.
	if cfg.ContrastFactor != 1.5 {
		t.Errorf("ContrastFactor: got %g, want default 1.5", cfg.ContrastFactor)
	}
}

func TestFromEnv_IgnoresGarbage(t *testing.T) {
	t.Setenv("OMR_DARK_THRESHOLD", "very dark")
	t.Setenv("OMR_FILL_THRESHOLD", "lots")
	t.Setenv("OMR_WORKERS", "-2")

	cfg := FromEnv()
	def := Default()
	if cfg.DarkPixelThreshold != def.DarkPixelThreshold {
		t.Errorf("DarkPixelThreshold: got %d, want default", cfg.DarkPixelThreshold)
	}
	if cfg.FillThreshold != def.FillThreshold {
		t.Errorf("FillThreshold: got %g, want default", cfg.FillThreshold)
	}
	if cfg.Workers != def.Workers {
		t.Errorf("Workers: got %d, want default", cfg.Workers)
	}
}
