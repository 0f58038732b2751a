// Package config holds the tunable parameters for the scanning pipeline.
//
// All thresholds live in one immutable Config value constructed up front and
// passed into the pipeline at build time. Nothing in the pipeline reads
// configuration dynamically at call time.
package config

import (
	"os"
	"runtime"
	"strconv"
)

// Config is the full configuration surface of the scanning core.
//
// The zero value is not usable; start from Default() and override fields,
// or use FromEnv() to pick up environment overrides.
type Config struct {
	// DarkPixelThreshold is the grayscale brightness below which a pixel
	// counts as "dark" during mark detection. Range 0-255.
	DarkPixelThreshold uint8

	// ContrastFactor is the linear stretch applied around the midpoint (128)
	// during preprocessing. 1.0 leaves the image unchanged.
	ContrastFactor float64

	// FillThreshold is the fill ratio above which a mark region counts as
	// filled. Range 0-1.
	FillThreshold float64

	// DisambiguationMargin is the minimum fill-ratio gap between the top two
	// filled regions of a question for the higher one to win. Questions whose
	// top two regions are closer than this are treated as ambiguous.
	DisambiguationMargin float64

	// AmbiguityPenalty scales down the confidence of an answer that won a
	// margin comparison against a runner-up.
	AmbiguityPenalty float64

	// ConfidenceThreshold is the minimum sheet-level confidence for a sheet
	// to finish as processed rather than review_needed.
	ConfidenceThreshold float64

	// Workers is the number of concurrent sheet pipelines.
	Workers int
}

// Default returns the documented default configuration.
func Default() Config {
	return Config{
		DarkPixelThreshold:   128,
		ContrastFactor:       1.5,
		FillThreshold:        0.3,
		DisambiguationMargin: 0.1,
		AmbiguityPenalty:     0.7,
		ConfidenceThreshold:  0.8,
		Workers:              runtime.NumCPU(),
	}
}

// FromEnv returns Default() with any OMR_* environment overrides applied.
//
// Recognized variables:
//
//	OMR_DARK_THRESHOLD        int, 0-255
//	OMR_CONTRAST_FACTOR       float
//	OMR_FILL_THRESHOLD        float
//	OMR_DISAMBIGUATION_MARGIN float
//	OMR_AMBIGUITY_PENALTY     float
//	OMR_CONFIDENCE_THRESHOLD  float
//	OMR_WORKERS               int
//
// Unset or unparseable variables keep their defaults.
func FromEnv() Config {
	cfg := Default()
	if v := getEnvInt("OMR_DARK_THRESHOLD", -1); v >= 0 && v <= 255 {
		cfg.DarkPixelThreshold = uint8(v)
	}
	cfg.ContrastFactor = getEnvFloat("OMR_CONTRAST_FACTOR", cfg.ContrastFactor)
	cfg.FillThreshold = getEnvFloat("OMR_FILL_THRESHOLD", cfg.FillThreshold)
	cfg.DisambiguationMargin = getEnvFloat("OMR_DISAMBIGUATION_MARGIN", cfg.DisambiguationMargin)
	cfg.AmbiguityPenalty = getEnvFloat("OMR_AMBIGUITY_PENALTY", cfg.AmbiguityPenalty)
	cfg.ConfidenceThreshold = getEnvFloat("OMR_CONFIDENCE_THRESHOLD", cfg.ConfidenceThreshold)
	if v := getEnvInt("OMR_WORKERS", 0); v > 0 {
		cfg.Workers = v
	}
	return cfg
}

func getEnvInt(key string, def int) int {
	if s := os.Getenv(key); s != "" {
		if v, err := strconv.Atoi(s); err == nil {
			return v
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if s := os.Getenv(key); s != "" {
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			return v
		}
	}
	return def
}
