package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileOutcome is one file's entry in an import report.
type FileOutcome struct {
	Status    Status `json:"status"`
	Reason    string `json:"reason,omitempty"`
	Dest      string `json:"dest,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`
}

// reportData is the JSON structure written to disk.
type reportData struct {
	Files   map[string]*FileOutcome `json:"files"`
	Updated string                  `json:"updated"`
	Summary struct {
		Done     int `json:"done"`
		Rejected int `json:"rejected"`
		Failed   int `json:"failed"`
		Total    int `json:"total"`
	} `json:"summary"`
}

// Report records the structured per-file outcome of an import run, so
// headless use gets the same taxonomy the interactive shell shows as
// rejection strings.
type Report struct {
	mu    sync.Mutex
	files map[string]*FileOutcome
}

// NewReport creates an empty report.
func NewReport() *Report {
	return &Report{files: make(map[string]*FileOutcome)}
}

// Record adds one file's outcome.
func (r *Report) Record(path string, res Result) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := &FileOutcome{
		Status:    res.Status,
		Reason:    res.Reason,
		Dest:      res.Dest,
		Timestamp: time.Now().Format(time.RFC3339),
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	r.files[path] = out
}

// Save writes the report as indented JSON.
func (r *Report) Save(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := reportData{
		Files:   r.files,
		Updated: time.Now().Format(time.RFC3339),
	}
	for _, out := range r.files {
		data.Summary.Total++
		switch {
		case out.Status == StatusDone:
			data.Summary.Done++
		case out.Status.Rejected():
			data.Summary.Rejected++
		default:
			data.Summary.Failed++
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("could not create report directory: %w", err)
	}
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("could not marshal report: %w", err)
	}
	if err := os.WriteFile(path, raw, 0644); err != nil {
		return fmt.Errorf("could not save report: %w", err)
	}
	return nil
}
