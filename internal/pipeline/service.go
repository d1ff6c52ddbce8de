package pipeline

import (
	"dicom-archive/internal/index"
	"dicom-archive/internal/queue"
)

// Service is the surface the shell, receiver, and audit tooling consume:
// submit a file, look a patient up by anonymized id, list the index.
type Service struct {
	pipe  *Pipeline
	queue *queue.Queue // nil when only manual import is wired
	idx   *index.Index
}

// NewService creates a Service.
func NewService(pipe *Pipeline, q *queue.Queue, idx *index.Index) *Service {
	return &Service{pipe: pipe, queue: q, idx: idx}
}

// Submit processes one file synchronously and reports the structured result.
func (s *Service) Submit(path string) Result {
	return s.pipe.Process(path)
}

// Enqueue accepts a file into the durable queue for background processing.
func (s *Service) Enqueue(path string) error {
	return s.queue.Enqueue(path)
}

// LookupByAnonymizedID resolves an anonymized PatientID back to the original
// identity.
func (s *Service) LookupByAnonymizedID(id string) (index.PatientEntry, bool) {
	return s.idx.Inverse(id)
}

// ListIndex returns the audit listing: (inverse, forward) pairs ordered by
// anonymized patient name.
func (s *Service) ListIndex() []index.Pair {
	return s.idx.List()
}

// StudiesFor lists the indexed studies for an original PatientID.
func (s *Service) StudiesFor(origID string) []index.Study {
	return s.idx.StudiesFor(origID)
}

// QueueSize reports the number of pending queue items.
func (s *Service) QueueSize() int {
	if s.queue == nil {
		return 0
	}
	return s.queue.Size()
}
