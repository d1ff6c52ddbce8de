package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"dicom-archive/internal/config"
	"dicom-archive/internal/dicom"
	"dicom-archive/internal/filter"
	"dicom-archive/internal/index"
	"dicom-archive/internal/logger"
	"dicom-archive/internal/pipeline"
	"dicom-archive/internal/queue"
)

func main() {
	configPath := flag.String("config", "archive.json", "Path to the archive configuration file")

	importPath := flag.String("import", "", "Import a DICOM file or directory tree and exit")
	recursive := flag.Bool("recursive", true, "Search subdirectories when importing")
	reportPath := flag.String("report", "", "Write a per-file import report to this JSON file")

	serve := flag.Bool("serve", false, "Run the queue worker until interrupted")

	list := flag.Bool("list", false, "Print the patient index and exit")
	lookup := flag.String("lookup", "", "Resolve an anonymized PatientID to the original identity")

	storageDir := flag.String("storage", "", "Override the configured storage directory")
	filterScript := flag.String("filter-script", "", "Override the configured filter script")
	logLevel := flag.String("log-level", "", "Override the configured log level")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *storageDir != "" {
		cfg.StorageDir = *storageDir
	}
	if *filterScript != "" {
		cfg.FilterScript = *filterScript
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg, log, *importPath, *recursive, *reportPath, *serve, *list, *lookup); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger, importPath string, recursive bool, reportPath string, serve, list bool, lookup string) error {
	if err := cfg.EnsureDirs(); err != nil {
		return err
	}

	idx, err := index.Open(cfg.DatabaseDir, log)
	if err != nil {
		return err
	}
	defer idx.Close()

	seq, err := index.OpenAllocator(cfg.DatabaseDir)
	if err != nil {
		return err
	}
	defer seq.Close()

	reader := pipeline.ReaderFunc(func(path string) (pipeline.Object, error) {
		return dicom.Read(path)
	})
	pipe := pipeline.New(pipeline.Config{
		StorageDir:    cfg.StorageDir,
		TempDir:       cfg.TempDir,
		QuarantineDir: cfg.QuarantineDir,
		SiteID:        cfg.SiteID,
		UIDRoot:       cfg.UIDRoot,
		Filter: filter.Settings{
			RejectSR:          cfg.RejectSR,
			RejectSC:          cfg.RejectSC,
			AcceptReformatted: cfg.AcceptReformatted,
			Script:            cfg.FilterScript,
		},
		SaveRejected: cfg.SaveRejected,
	}, reader, idx, seq, log)

	switch {
	case importPath != "":
		return runImport(pipe, log, importPath, recursive, reportPath)
	case serve:
		return runServe(cfg, pipe, log)
	case list:
		return runList(idx)
	case lookup != "":
		return runLookup(idx, lookup)
	default:
		flag.Usage()
		return fmt.Errorf("one of -import, -serve, -list, or -lookup is required")
	}
}

func runImport(pipe *pipeline.Pipeline, log *slog.Logger, importPath string, recursive bool, reportPath string) error {
	importer := pipeline.NewImporter(pipe, dicom.Find, log)
	stats, report, err := importer.ImportTree(importPath, recursive)
	if err != nil {
		return err
	}
	if reportPath != "" {
		if err := report.Save(reportPath); err != nil {
			return err
		}
	}
	fmt.Printf("Processed %d files: %d stored, %d rejected, %d failed, %d to retry\n",
		stats.Processed, stats.Done, stats.Rejected, stats.Failed, stats.Retryable)
	return nil
}

// runServe runs the receiving side: external producers drop files into the
// queue's pending directory, the worker drains it until SIGINT or SIGTERM.
func runServe(cfg config.Config, pipe *pipeline.Pipeline, log *slog.Logger) error {
	q, err := queue.Open(cfg.QueueDir, cfg.MinFileAge(), log)
	if err != nil {
		return err
	}
	log.Info("watching for incoming files", "inbox", q.PendingDir())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	worker := pipeline.NewWorker(q, pipe, cfg.PollInterval(), log)
	worker.Run(ctx)
	return nil
}

func runList(idx *index.Index) error {
	for _, p := range idx.List() {
		fmt.Printf("%-16s %-16s -> %s (%s)\n",
			p.Forward.Name, p.Forward.ID, p.Inverse.Name, p.Inverse.ID)
	}
	return nil
}

func runLookup(idx *index.Index, anonID string) error {
	entry, ok := idx.Inverse(anonID)
	if !ok {
		return fmt.Errorf("no patient with anonymized id %q", anonID)
	}
	fmt.Printf("Original: %s (%s)\n", entry.Name, entry.ID)
	for _, s := range idx.StudiesFor(entry.ID) {
		fmt.Printf("  %s %s -> %s %s\n", s.PHIDate, s.PHIAccession, s.AnonDate, s.AnonAccession)
	}
	return nil
}
