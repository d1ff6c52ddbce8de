package pipeline

// Status classifies the terminal or retryable outcome of processing one file.
type Status string

const (
	StatusDone                Status = "done"
	StatusNotDICOM            Status = "not-dicom"
	StatusNotImage            Status = "not-an-image"
	StatusFilteredSR          Status = "filtered-sr"
	StatusFilteredSC          Status = "filtered-sc"
	StatusFilteredScript      Status = "filtered-script"
	StatusAnonymizationFailed Status = "anonymization-failed"
	StatusRelocationFailed    Status = "relocation-failed"
	StatusIndexFailed         Status = "index-failed"
)

// Terminal reports whether the status ends processing for the file. A
// non-terminal status leaves the original in place for retry on a later poll.
func (s Status) Terminal() bool {
	switch s {
	case StatusRelocationFailed, StatusIndexFailed:
		return false
	}
	return true
}

// Rejected reports whether the file was turned away by parse or filter rather
// than failed by the machinery.
func (s Status) Rejected() bool {
	switch s {
	case StatusNotDICOM, StatusNotImage, StatusFilteredSR, StatusFilteredSC, StatusFilteredScript:
		return true
	}
	return false
}

// Result is the structured outcome of processing one file.
type Result struct {
	Status Status
	// Reason is the operator-facing explanation, mirroring the classic
	// per-file rejection strings.
	Reason string
	// Dest is the canonical storage path, set only on success.
	Dest string
	Err  error
}
