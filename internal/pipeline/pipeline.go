// Package pipeline orchestrates the processing of one file: filter
// evaluation, identifier substitution, placement into the canonical storage
// layout, and the index update. Both the manual-import path and the queue
// worker run through the same Pipeline instance.
package pipeline

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"dicom-archive/internal/codec"
	"dicom-archive/internal/filter"
	"dicom-archive/internal/index"
)

// Config carries the pipeline's site settings.
type Config struct {
	StorageDir    string
	TempDir       string
	QuarantineDir string

	SiteID  string
	UIDRoot string

	Filter filter.Settings
	// SaveRejected copies rejected files into the quarantine directory for
	// manual review instead of leaving them only at their source.
	SaveRejected bool
}

// Pipeline processes files one at a time. Safe for concurrent use; the index
// serializes its own writes.
type Pipeline struct {
	cfg    Config
	reader Reader
	filter *filter.Filter
	index  *index.Index
	seq    *index.Allocator
	log    *slog.Logger
}

// New assembles a Pipeline around a long-lived index and allocator.
func New(cfg Config, reader Reader, idx *index.Index, seq *index.Allocator, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		cfg:    cfg,
		reader: reader,
		filter: filter.New(),
		index:  idx,
		seq:    seq,
		log:    log,
	}
}

// Process runs one file through parse, filter, anonymize, relocate, and
// index. Every failure leaves the original file undisturbed at path; only the
// temporary copy is at risk mid-anonymization.
func (p *Pipeline) Process(path string) Result {
	obj, err := p.reader.Read(path)
	if err != nil {
		return p.reject(path, StatusNotDICOM, "not a DICOM file", err)
	}
	if !obj.IsImage() {
		return p.reject(path, StatusNotImage, "not an image", nil)
	}

	decision, err := p.filter.Evaluate(obj, p.cfg.Filter)
	if err != nil {
		// A broken script must not silently discard files; the gate goes
		// inert and the error is surfaced to the operator.
		p.log.Error("filter script error; gate disabled for this file", "error", err)
	} else if !decision.Accepted {
		switch decision.Reason {
		case filter.ReasonSR:
			return p.reject(path, StatusFilteredSR, "Structured Report", nil)
		case filter.ReasonSC:
			return p.reject(path, StatusFilteredSC, "Secondary Capture", nil)
		default:
			return p.reject(path, StatusFilteredScript, "filter", nil)
		}
	}

	return p.anonymize(path, obj)
}

func (p *Pipeline) anonymize(path string, obj Object) Result {
	origName := obj.GetAttr(attrPatientName)
	origID := strings.TrimSpace(obj.GetAttr(attrPatientID))
	origStudyUID := obj.GetAttr(attrStudyInstanceUID)
	origStudyDate := obj.GetAttr(attrStudyDate)
	origAccession := obj.GetAttr(attrAccessionNumber)

	if origID == "" {
		return Result{Status: StatusAnonymizationFailed, Reason: "missing PatientID",
			Err: fmt.Errorf("no PatientID in %s", path)}
	}

	seq, err := p.seq.Allocate(origID)
	if err != nil {
		// The sequence store is down; the file is retried, never defaulted.
		return Result{Status: StatusIndexFailed, Reason: "sequence allocation failed", Err: err}
	}
	anonID := codec.PatientID(p.cfg.SiteID, seq)
	anonName := codec.PatientName(p.cfg.SiteID, seq)

	offset, err := codec.DateOffset(anonID)
	if err != nil {
		return Result{Status: StatusAnonymizationFailed, Reason: "date offset", Err: err}
	}
	anonStudyDate, err := codec.ShiftDate(origStudyDate, offset)
	if err != nil {
		return Result{Status: StatusAnonymizationFailed, Reason: "malformed StudyDate", Err: err}
	}
	anonAccession := codec.AccessionNumber(origAccession)

	anonStudyUID, err := codec.UID(p.cfg.UIDRoot, origStudyUID)
	if err != nil {
		return Result{Status: StatusAnonymizationFailed, Reason: "missing StudyInstanceUID", Err: err}
	}

	sets := map[string]string{
		attrPatientName:      anonName,
		attrPatientID:        anonID,
		attrStudyInstanceUID: anonStudyUID,
		attrStudyDate:        anonStudyDate,
		attrAccessionNumber:  anonAccession,
	}
	for _, attr := range []struct{ name, orig string }{
		{attrSeriesInstanceUID, obj.GetAttr(attrSeriesInstanceUID)},
		{attrSOPInstanceUID, obj.GetAttr(attrSOPInstanceUID)},
	} {
		if attr.orig == "" {
			continue
		}
		anon, err := codec.UID(p.cfg.UIDRoot, attr.orig)
		if err != nil {
			return Result{Status: StatusAnonymizationFailed, Reason: "UID derivation", Err: err}
		}
		sets[attr.name] = anon
		if attr.name == attrSOPInstanceUID {
			sets[attrMediaStorageSOPInstance] = anon
		}
	}
	for _, name := range shiftedDateAttrs {
		v := obj.GetAttr(name)
		if v == "" {
			continue
		}
		shifted, err := codec.ShiftDate(v, offset)
		if err != nil {
			return Result{Status: StatusAnonymizationFailed,
				Reason: fmt.Sprintf("malformed %s", name), Err: err}
		}
		sets[name] = shifted
	}

	for name, value := range sets {
		if err := obj.SetAttr(name, value); err != nil {
			return Result{Status: StatusAnonymizationFailed, Reason: "attribute substitution", Err: err}
		}
	}
	for _, name := range clearedAttrs {
		obj.ClearAttr(name)
	}

	// Write the anonymized copy to a temp file; the original stays intact
	// until relocation and indexing both succeed.
	tmp, err := os.CreateTemp(p.cfg.TempDir, "anon-*.dcm")
	if err != nil {
		return Result{Status: StatusAnonymizationFailed, Reason: "temp file", Err: err}
	}
	tmpPath := tmp.Name()
	tmp.Close()
	if err := obj.SaveTo(tmpPath); err != nil {
		os.Remove(tmpPath)
		return Result{Status: StatusAnonymizationFailed, Reason: "could not write anonymized copy", Err: err}
	}

	dest := p.destination(obj, anonID, anonStudyDate, anonStudyUID)
	if err := p.relocate(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return Result{Status: StatusRelocationFailed, Reason: "could not store anonymized copy", Err: err}
	}

	// Index writes, in order. They are not one cross-table transaction; a
	// crash in between is repaired by reprocessing the same file.
	if err := p.index.AddPatient(origName, origID, anonName, anonID); err != nil {
		return Result{Status: StatusIndexFailed, Reason: "patient index write failed", Err: err}
	}
	if err := p.index.AddStudy(origID, origStudyDate, origAccession, anonStudyDate, anonAccession); err != nil {
		return Result{Status: StatusIndexFailed, Reason: "study index write failed", Err: err}
	}
	if err := p.index.AddStudyInstanceUID(anonID, anonStudyDate, anonAccession, origStudyUID, anonStudyUID); err != nil {
		return Result{Status: StatusIndexFailed, Reason: "UID index write failed", Err: err}
	}

	p.log.Info("file anonymized", "source", filepath.Base(path), "dest", dest)
	return Result{Status: StatusDone, Dest: dest}
}

// destination computes the canonical storage path from the anonymized
// identifiers. The study directory embeds a short hash of the anonymized
// Study UID to keep apart two studies that share modality and date.
func (p *Pipeline) destination(obj Object, anonID, anonStudyDate, anonStudyUID string) string {
	modality := obj.GetAttr(attrModality)
	series := obj.GetAttr(attrSeriesNumber)
	if series == "" {
		series = "1"
	}
	instance := obj.GetAttr(attrInstanceNumber)
	if instance == "" {
		instance = codec.ShortHash(anonStudyUID+obj.GetAttr(attrSOPInstanceUID), 6)
	}
	study := fmt.Sprintf("Study-%s-%s-%s", modality, anonStudyDate, codec.ShortHash(anonStudyUID, 4))
	return filepath.Join(p.cfg.StorageDir, anonID, study, "Series-"+series, "Image-"+instance+".dcm")
}

// relocate moves the temp copy into place, overwriting any previous copy so
// reprocessing is idempotent at the file level.
func (p *Pipeline) relocate(tmpPath, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("could not create storage directory: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		// The temp dir may sit on a different filesystem than storage.
		if err := copyFile(tmpPath, dest); err != nil {
			return fmt.Errorf("could not place file: %w", err)
		}
		os.Remove(tmpPath)
	}
	return nil
}

// reject reports a rejection, optionally copying the file into quarantine.
// The original is never deleted here.
func (p *Pipeline) reject(path string, status Status, reason string, cause error) Result {
	if p.cfg.SaveRejected && p.cfg.QuarantineDir != "" {
		dst := filepath.Join(p.cfg.QuarantineDir, filepath.Base(path))
		if err := os.MkdirAll(p.cfg.QuarantineDir, 0755); err == nil {
			if err := copyFile(path, dst); err != nil {
				p.log.Warn("could not quarantine rejected file", "file", path, "error", err)
			}
		}
	}
	p.log.Info("file rejected", "file", filepath.Base(path), "reason", reason)
	return Result{Status: status, Reason: reason, Err: cause}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
