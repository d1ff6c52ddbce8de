package codec

import (
	"strings"
	"testing"
)

func TestDecimalHashDeterminism(t *testing.T) {
	inputs := []string{"", "PT-12345", "1.2.840.113619.2.55.3", "Smith^John"}
	for _, in := range inputs {
		a := DecimalHash(in)
		b := DecimalHash(in)
		if a != b {
			t.Errorf("DecimalHash(%q) not deterministic: %s != %s", in, a, b)
		}
		for _, r := range a {
			if r < '0' || r > '9' {
				t.Errorf("DecimalHash(%q) contains non-digit %q", in, r)
			}
		}
	}
}

func TestDateOffset(t *testing.T) {
	off, err := DateOffset("SITE-000042")
	if err != nil {
		t.Fatalf("DateOffset: %v", err)
	}
	if off < 0 || off >= 3650 {
		t.Errorf("offset %d out of range [0, 3650)", off)
	}

	again, err := DateOffset("SITE-000042")
	if err != nil {
		t.Fatalf("DateOffset: %v", err)
	}
	if off != again {
		t.Errorf("offset changed between calls: %d != %d", off, again)
	}

	if _, err := DateOffset(""); err == nil {
		t.Error("expected error for empty id")
	}
}

func TestShiftDate(t *testing.T) {
	tests := []struct {
		da     string
		offset int
		want   string
		ok     bool
	}{
		{"20200115", 14, "20200101", true},
		{"20200101", 1, "20191231", true},
		{"20200301", 0, "20200301", true},
		{"", 100, "", true},
		{"2020011", 1, "", false},
		{"not-a-date", 1, "", false},
	}
	for _, tt := range tests {
		got, err := ShiftDate(tt.da, tt.offset)
		if tt.ok && err != nil {
			t.Errorf("ShiftDate(%q, %d) returned error: %v", tt.da, tt.offset, err)
			continue
		}
		if !tt.ok {
			if err == nil {
				t.Errorf("ShiftDate(%q, %d) expected error", tt.da, tt.offset)
			}
			continue
		}
		if got != tt.want {
			t.Errorf("ShiftDate(%q, %d) = %q, want %q", tt.da, tt.offset, got, tt.want)
		}
	}
}

func TestShiftDatePreservesOrder(t *testing.T) {
	// Two studies of one patient shift by the same fixed offset, so their
	// chronological order survives anonymization.
	off, err := DateOffset("SITE-000007")
	if err != nil {
		t.Fatalf("DateOffset: %v", err)
	}
	d1, err := ShiftDate("20190405", off)
	if err != nil {
		t.Fatalf("ShiftDate: %v", err)
	}
	d2, err := ShiftDate("20210911", off)
	if err != nil {
		t.Fatalf("ShiftDate: %v", err)
	}
	if !(d1 < d2) {
		t.Errorf("order not preserved: %s >= %s", d1, d2)
	}
}

func TestAccessionNumber(t *testing.T) {
	if got := AccessionNumber(""); got != "" {
		t.Errorf("empty accession should stay empty, got %q", got)
	}
	a := AccessionNumber("ACC-991")
	if a != AccessionNumber("ACC-991") {
		t.Error("accession derivation not deterministic")
	}
	if !strings.HasPrefix(a, "A") || len(a) != 11 {
		t.Errorf("unexpected accession shape: %q", a)
	}
	if a == AccessionNumber("ACC-992") {
		t.Error("distinct accessions collided")
	}
}

func TestUID(t *testing.T) {
	u, err := UID("1.2.840.99999999", "1.2.840.113619.2.55.3.604688")
	if err != nil {
		t.Fatalf("UID: %v", err)
	}
	if !strings.HasPrefix(u, "1.2.840.99999999.") {
		t.Errorf("UID not under root: %q", u)
	}
	if len(u) > 64 {
		t.Errorf("UID exceeds 64 characters: %d", len(u))
	}

	again, err := UID("1.2.840.99999999", "1.2.840.113619.2.55.3.604688")
	if err != nil {
		t.Fatalf("UID: %v", err)
	}
	if u != again {
		t.Error("UID derivation not deterministic")
	}

	if _, err := UID("1.2.840.99999999", ""); err == nil {
		t.Error("expected error for empty original UID")
	}
	if _, err := UID("", "1.2.3"); err == nil {
		t.Error("expected error for empty root")
	}
}

func TestPatientID(t *testing.T) {
	if got := PatientID("471234", 7); got != "471234-000007" {
		t.Errorf("PatientID = %q", got)
	}
	if PatientName("471234", 7) != PatientID("471234", 7) {
		t.Error("anonymized name must equal anonymized id")
	}
}

func TestShortHash(t *testing.T) {
	h := ShortHash("1.2.840.99999999.123", 4)
	if len(h) != 4 {
		t.Errorf("ShortHash length = %d, want 4", len(h))
	}
	if h != ShortHash("1.2.840.99999999.123", 4) {
		t.Error("ShortHash not deterministic")
	}
}
