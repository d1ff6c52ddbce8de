package pipeline

import (
	"fmt"
	"log/slog"
	"os"
)

// Finder lists candidate files under a root. The DICOM file walker satisfies
// it in production; tests substitute fixtures.
type Finder func(root string, recursive bool) ([]string, error)

// Stats accumulates the outcome counts of one import run.
type Stats struct {
	Processed int
	Done      int
	Rejected  int
	Failed    int
	Retryable int
	ByStatus  map[Status]int
}

func newStats() *Stats {
	return &Stats{ByStatus: make(map[Status]int)}
}

func (s *Stats) record(r Result) {
	s.Processed++
	s.ByStatus[r.Status]++
	switch {
	case r.Status == StatusDone:
		s.Done++
	case r.Status.Rejected():
		s.Rejected++
	case r.Status.Terminal():
		s.Failed++
	default:
		s.Retryable++
	}
}

// Importer is the manual-import path: a synchronous walk of a user-selected
// file or directory tree, feeding each file through the shared pipeline.
type Importer struct {
	pipe *Pipeline
	find Finder
	log  *slog.Logger
}

// NewImporter creates an Importer.
func NewImporter(pipe *Pipeline, find Finder, log *slog.Logger) *Importer {
	if log == nil {
		log = slog.Default()
	}
	return &Importer{pipe: pipe, find: find, log: log}
}

// ImportTree processes every candidate file under root and returns the run's
// statistics plus a per-file report. Individual failures never abort the run.
func (im *Importer) ImportTree(root string, recursive bool) (*Stats, *Report, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, nil, fmt.Errorf("could not read import source: %w", err)
	}

	var files []string
	if info.IsDir() {
		files, err = im.find(root, recursive)
		if err != nil {
			return nil, nil, fmt.Errorf("could not scan import source: %w", err)
		}
	} else {
		files = []string{root}
	}

	im.log.Info("import started", "source", root, "files", len(files))

	stats := newStats()
	report := NewReport()
	for _, f := range files {
		res := im.pipe.Process(f)
		stats.record(res)
		report.Record(f, res)
	}

	im.log.Info("import finished",
		"processed", stats.Processed,
		"done", stats.Done,
		"rejected", stats.Rejected,
		"failed", stats.Failed,
		"retryable", stats.Retryable)
	return stats, report, nil
}
