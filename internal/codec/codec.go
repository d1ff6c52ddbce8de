package codec

import (
	"crypto/md5"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"
)

// dateOffsetRange is the number of days a patient's dates may be shifted by.
// Ten years keeps shifted studies plausible while breaking linkage to the
// original calendar.
const dateOffsetRange = 3650

// maxUIDLength is the DICOM limit for a UI value.
const maxUIDLength = 64

// DecimalHash returns the MD5 digest of s rendered as an unsigned decimal
// integer string. All derived identifiers are built from this primitive so
// that archives anonymized by earlier versions of the tool remain compatible.
func DecimalHash(s string) string {
	sum := md5.Sum([]byte(s))
	return new(big.Int).SetBytes(sum[:]).String()
}

// PatientID formats the anonymized patient ID for a site and an allocated
// sequence number.
func PatientID(siteID string, seq int64) string {
	return fmt.Sprintf("%s-%06d", siteID, seq)
}

// PatientName returns the anonymized patient name. The name carries the same
// value as the anonymized ID; nothing of the original name survives.
func PatientName(siteID string, seq int64) string {
	return PatientID(siteID, seq)
}

// AccessionNumber deterministically derives an anonymized accession number.
// The same original accession always yields the same replacement. An empty
// original stays empty.
func AccessionNumber(orig string) string {
	orig = strings.TrimSpace(orig)
	if orig == "" {
		return ""
	}
	h := DecimalHash(orig)
	if len(h) > 10 {
		h = h[:10]
	}
	return "A" + h
}

// UID derives an anonymized UID under the configured UID root. The derivation
// is deterministic: the same original UID always anonymizes to the same value.
func UID(root, orig string) (string, error) {
	orig = strings.TrimSpace(orig)
	if orig == "" {
		return "", fmt.Errorf("empty UID")
	}
	root = strings.TrimSuffix(strings.TrimSpace(root), ".")
	if root == "" {
		return "", fmt.Errorf("empty UID root")
	}
	h := DecimalHash(orig)
	if max := maxUIDLength - len(root) - 1; len(h) > max {
		h = h[:max]
	}
	return root + "." + h, nil
}

// DateOffset computes the fixed per-patient date shift, in days, for an
// anonymized patient ID: the last four digits of the decimal hash of the id,
// reduced modulo the offset range. The rule is load-bearing; previously
// anonymized data sets depend on it.
func DateOffset(id string) (int, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return 0, fmt.Errorf("empty patient ID")
	}
	h := DecimalHash(id)
	if len(h) > 4 {
		h = h[len(h)-4:]
	}
	n, err := strconv.Atoi(h)
	if err != nil {
		return 0, fmt.Errorf("could not reduce hash %q: %w", h, err)
	}
	return n % dateOffsetRange, nil
}

// ShiftDate moves a DICOM DA value (YYYYMMDD) earlier by offset days. An empty
// value passes through unchanged; a malformed value is an error so the caller
// can reject the record rather than substitute a default.
func ShiftDate(da string, offset int) (string, error) {
	da = strings.TrimSpace(da)
	if da == "" {
		return "", nil
	}
	t, err := time.Parse("20060102", da)
	if err != nil {
		return "", fmt.Errorf("could not parse date %q: %w", da, err)
	}
	return t.AddDate(0, 0, -offset).Format("20060102"), nil
}

// ShortHash returns the first n digits of the decimal hash of s. Study storage
// directories embed a short hash of the anonymized StudyInstanceUID to keep two
// same-day studies of one patient apart.
func ShortHash(s string, n int) string {
	h := DecimalHash(s)
	if len(h) > n {
		h = h[:n]
	}
	return h
}
