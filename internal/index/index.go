// Package index persists the bidirectional mapping between original and
// anonymized identities, the per-patient study history, and the Study UID
// cross-reference. It is backed by an embedded SQLite database; every logical
// write commits before it reports success.
package index

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// PatientEntry is one row of the patient index. In the forward table the key
// is the original (PHI) PatientID and name/id are anonymized; in the inverse
// table the key is the anonymized PatientID and name/id are PHI.
type PatientEntry struct {
	Key  string
	Name string
	ID   string
}

// Study records one study of a patient, carrying both the PHI and anonymized
// date and accession number. Two studies are the same when their PHI date and
// accession match.
type Study struct {
	PHIDate       string
	PHIAccession  string
	AnonDate      string
	AnonAccession string
}

// UIDEntry cross-references an original StudyInstanceUID with its anonymized
// replacement.
type UIDEntry struct {
	OrigStudyUID string
	AnonStudyUID string
}

// Pair couples the inverse and forward entries of one patient for audit
// listings.
type Pair struct {
	Inverse PatientEntry
	Forward PatientEntry
}

// Index is the persistent patient/study/UID index. Each public method holds
// the index lock; the store is not safe for concurrent multi-step transactions
// without it.
type Index struct {
	mu  sync.Mutex
	db  *sql.DB
	log *slog.Logger
}

const indexSchema = `
CREATE TABLE IF NOT EXISTS fwd_patient (
	key  TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	id   TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS inv_patient (
	key  TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	id   TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS study (
	patient_key    TEXT NOT NULL,
	phi_date       TEXT NOT NULL,
	phi_accession  TEXT NOT NULL,
	anon_date      TEXT NOT NULL,
	anon_accession TEXT NOT NULL,
	PRIMARY KEY (patient_key, phi_date, phi_accession)
);
CREATE TABLE IF NOT EXISTS uid (
	key      TEXT PRIMARY KEY,
	orig_uid TEXT NOT NULL,
	anon_uid TEXT NOT NULL
);
`

// Open opens (or creates) the index database under dir.
func Open(dir string, log *slog.Logger) (*Index, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("could not create database directory: %w", err)
	}
	db, err := sql.Open("sqlite", filepath.Join(dir, "index.db"))
	if err != nil {
		return nil, fmt.Errorf("could not open index database: %w", err)
	}
	if _, err := db.Exec(indexSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not create index tables: %w", err)
	}
	return &Index{db: db, log: log}, nil
}

// Close flushes and closes the index.
func (x *Index) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.db.Close()
}

// AddPatient upserts the forward and inverse entries for one patient. Keys are
// lower-cased; identifiers arrive with inconsistent casing from different
// source systems. The two writes share one transaction so the tables cannot
// disagree about a patient.
func (x *Index) AddPatient(origName, origID, anonName, anonID string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	tx, err := x.db.Begin()
	if err != nil {
		return fmt.Errorf("could not start patient write: %w", err)
	}
	defer tx.Rollback()

	const upsert = `INSERT INTO %s (key, name, id) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET name = excluded.name, id = excluded.id`
	if _, err := tx.Exec(fmt.Sprintf(upsert, "fwd_patient"), normalizeKey(origID), anonName, anonID); err != nil {
		return fmt.Errorf("could not write forward patient entry: %w", err)
	}
	if _, err := tx.Exec(fmt.Sprintf(upsert, "inv_patient"), normalizeKey(anonID), origName, origID); err != nil {
		return fmt.Errorf("could not write inverse patient entry: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("could not commit patient write: %w", err)
	}
	return nil
}

// AddStudy appends a study to the patient's study set. Reprocessing the same
// file hits the (patient, phi date, phi accession) primary key and is a no-op.
func (x *Index) AddStudy(origID, phiDate, phiAccession, anonDate, anonAccession string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	_, err := x.db.Exec(`INSERT INTO study
		(patient_key, phi_date, phi_accession, anon_date, anon_accession)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(patient_key, phi_date, phi_accession) DO UPDATE SET
			anon_date = excluded.anon_date, anon_accession = excluded.anon_accession`,
		normalizeKey(origID), phiDate, phiAccession, anonDate, anonAccession)
	if err != nil {
		return fmt.Errorf("could not write study entry: %w", err)
	}
	return nil
}

// AddStudyInstanceUID writes the UID cross-reference, keyed by the anonymized
// patient/date/accession triple. Rewrites with identical content are
// idempotent.
func (x *Index) AddStudyInstanceUID(anonID, anonDate, anonAccession, origUID, anonUID string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	_, err := x.db.Exec(`INSERT INTO uid (key, orig_uid, anon_uid) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET orig_uid = excluded.orig_uid, anon_uid = excluded.anon_uid`,
		uidKey(anonID, anonDate, anonAccession), origUID, anonUID)
	if err != nil {
		return fmt.Errorf("could not write UID entry: %w", err)
	}
	return nil
}

// Forward looks up the anonymized identity for an original PatientID.
func (x *Index) Forward(origID string) (PatientEntry, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.getPatient("fwd_patient", normalizeKey(origID))
}

// Inverse looks up the original identity for an anonymized PatientID.
func (x *Index) Inverse(anonID string) (PatientEntry, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.getPatient("inv_patient", normalizeKey(anonID))
}

func (x *Index) getPatient(table, key string) (PatientEntry, bool) {
	e := PatientEntry{Key: key}
	err := x.db.QueryRow(
		fmt.Sprintf("SELECT name, id FROM %s WHERE key = ?", table), key,
	).Scan(&e.Name, &e.ID)
	if err != nil {
		if err != sql.ErrNoRows {
			x.log.Warn("patient index lookup failed", "table", table, "error", err)
		}
		return PatientEntry{}, false
	}
	return e, true
}

// StudiesFor returns the studies recorded for an original PatientID, in
// chronological order by PHI study date (the anonymized dates share a fixed
// offset, so their order is the same).
func (x *Index) StudiesFor(origID string) []Study {
	x.mu.Lock()
	defer x.mu.Unlock()

	rows, err := x.db.Query(`SELECT phi_date, phi_accession, anon_date, anon_accession
		FROM study WHERE patient_key = ? ORDER BY phi_date, phi_accession`,
		normalizeKey(origID))
	if err != nil {
		x.log.Warn("study index lookup failed", "error", err)
		return nil
	}
	defer rows.Close()

	var studies []Study
	for rows.Next() {
		var s Study
		if err := rows.Scan(&s.PHIDate, &s.PHIAccession, &s.AnonDate, &s.AnonAccession); err != nil {
			x.log.Warn("study index scan failed", "error", err)
			return nil
		}
		studies = append(studies, s)
	}
	return studies
}

// UIDFor looks up the Study UID cross-reference for an anonymized
// patient/date/accession triple.
func (x *Index) UIDFor(anonID, anonDate, anonAccession string) (UIDEntry, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()

	var e UIDEntry
	err := x.db.QueryRow("SELECT orig_uid, anon_uid FROM uid WHERE key = ?",
		uidKey(anonID, anonDate, anonAccession)).Scan(&e.OrigStudyUID, &e.AnonStudyUID)
	if err != nil {
		if err != sql.ErrNoRows {
			x.log.Warn("UID index lookup failed", "error", err)
		}
		return UIDEntry{}, false
	}
	return e, true
}

// List returns (inverse, forward) pairs for every patient, ordered by
// anonymized patient name. Every inverse entry has a matching forward entry;
// a pair whose forward half went missing would indicate index corruption and
// is logged and skipped.
func (x *Index) List() []Pair {
	x.mu.Lock()
	defer x.mu.Unlock()

	rows, err := x.db.Query("SELECT key, name, id FROM inv_patient")
	if err != nil {
		x.log.Warn("patient index listing failed", "error", err)
		return nil
	}
	inverse := make([]PatientEntry, 0)
	for rows.Next() {
		var e PatientEntry
		if err := rows.Scan(&e.Key, &e.Name, &e.ID); err != nil {
			rows.Close()
			x.log.Warn("patient index scan failed", "error", err)
			return nil
		}
		inverse = append(inverse, e)
	}
	rows.Close()

	pairs := make([]Pair, 0, len(inverse))
	for _, inv := range inverse {
		fwd, ok := x.getPatient("fwd_patient", normalizeKey(inv.ID))
		if !ok {
			x.log.Warn("orphan inverse entry", "key", inv.Key)
			continue
		}
		pairs = append(pairs, Pair{Inverse: inv, Forward: fwd})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Forward.Name != pairs[j].Forward.Name {
			return pairs[i].Forward.Name < pairs[j].Forward.Name
		}
		return pairs[i].Inverse.Key < pairs[j].Inverse.Key
	})
	return pairs
}

func normalizeKey(k string) string {
	return strings.ToLower(strings.TrimSpace(k))
}

func uidKey(anonID, anonDate, anonAccession string) string {
	return normalizeKey(anonID) + "|" + anonDate + "|" + anonAccession
}
