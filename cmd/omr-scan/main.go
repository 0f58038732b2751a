package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ironsheep/omr-scan/internal/batch"
	"github.com/ironsheep/omr-scan/internal/config"
	"github.com/ironsheep/omr-scan/internal/export"
	"github.com/ironsheep/omr-scan/internal/imaging"
	"github.com/ironsheep/omr-scan/internal/lifecycle"
	"github.com/ironsheep/omr-scan/internal/pipeline"
	"github.com/ironsheep/omr-scan/internal/store"
	"github.com/ironsheep/omr-scan/internal/template"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("omr-scan %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		}
	}

	fs := flag.NewFlagSet("omr-scan", flag.ExitOnError)
	templatePath := fs.String("template", "", "Path to the template JSON (required)")
	sheetDir := fs.String("dir", "", "Directory of sheet images to process (required)")
	batchCode := fs.String("batch", "", "Batch code for this upload (required)")
	label := fs.String("label", "", "Free-form label stamped on every sheet, e.g. subject/teacher (optional)")
	dbPath := fs.String("db", "", "Sqlite database to persist results into (optional)")
	csvPath := fs.String("csv", "", "Write the batch report as CSV to this file (optional)")
	fs.Usage = usage(fs)
	fs.Parse(os.Args[1:])

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if *templatePath == "" || *sheetDir == "" || *batchCode == "" {
		fs.Usage()
		os.Exit(2)
	}

	// .env is optional; real environments set variables directly.
	_ = godotenv.Load()
	cfg := config.FromEnv()

	tpl, err := template.Load(*templatePath)
	if err != nil {
		logger.Error("failed to load template", "error", err)
		os.Exit(1)
	}

	paths, err := sheetImages(*sheetDir)
	if err != nil {
		logger.Error("failed to list sheet images", "error", err)
		os.Exit(1)
	}
	if len(paths) == 0 {
		logger.Error("no sheet images found", "dir", *sheetDir)
		os.Exit(1)
	}

	var sink pipeline.Sink
	var db *store.Store
	if *dbPath != "" {
		db, err = store.Open(*dbPath)
		if err != nil {
			logger.Error("failed to open result store", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		sink = db
	}

	ctrl := lifecycle.NewController(cfg.ConfidenceThreshold)
	coord := batch.NewCoordinator(ctrl)
	runner := pipeline.NewRunner(cfg, imaging.NewCache(), ctrl, coord, sink, logger)

	for _, p := range paths {
		if _, err := runner.Submit(pipeline.Job{
			BatchCode: *batchCode,
			Label:     *label,
			ImagePath: p,
			Template:  tpl,
		}); err != nil {
			logger.Error("failed to submit sheet", "path", p, "error", err)
		}
	}

	// The pipeline is fire-and-forget; the CLI is the one caller that does
	// want the final numbers, so it polls the coordinator like any external
	// status consumer would.
	var sum batch.Summary
	for {
		sum = coord.Summarize(*batchCode)
		if sum.Complete {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	runner.Close()

	if db != nil {
		if err := db.SaveSummary(sum); err != nil {
			logger.Error("failed to persist batch summary", "error", err)
		}
	}

	if *csvPath != "" {
		f, err := os.Create(*csvPath)
		if err != nil {
			logger.Error("failed to create CSV file", "error", err)
			os.Exit(1)
		}
		if err := export.WriteCSV(f, sum, coord.Sheets(*batchCode)); err != nil {
			f.Close()
			logger.Error("failed to write CSV", "error", err)
			os.Exit(1)
		}
		f.Close()
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(sum); err != nil {
		logger.Error("failed to encode summary", "error", err)
		os.Exit(1)
	}
}

// sheetImages lists the processable images in dir, sorted by name.
func sheetImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg", ".gif":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func usage(fs *flag.FlagSet) func() {
	return func() {
		fmt.Fprintln(os.Stderr, "omr-scan - process a batch of scanned answer sheets")
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "Usage: omr-scan -template form.json -dir ./sheets -batch BATCH-01 [-db results.db] [-csv report.csv]")
		fmt.Fprintln(os.Stderr)
		fs.PrintDefaults()
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "Thresholds are read from OMR_* environment variables (or a .env file);")
		fmt.Fprintln(os.Stderr, "see internal/config for the full list and defaults.")
	}
}
