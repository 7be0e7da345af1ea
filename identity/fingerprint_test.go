package identity

import (
	"testing"

	"jobscout/models"
)

func f64(v float64) *float64 { return &v }

func TestFingerprint_StableAcrossNoise(t *testing.T) {
	a := &models.JobFields{
		Title:       "Senior Go Engineer",
		Company:     "Acme, Inc.",
		Location:    "Berlin, Germany",
		Description: "Build distributed systems.",
	}
	b := &models.JobFields{
		Title:       "  senior   GO engineer ",
		Company:     "acme inc",
		Location:    "berlin germany",
		Description: "Build  distributed systems!",
	}

	if Fingerprint(a) != Fingerprint(b) {
		t.Fatalf("expected identical fingerprints for normalized-equal fields")
	}
}

func TestFingerprint_ChangesWithSalary(t *testing.T) {
	base := &models.JobFields{Title: "Engineer", Company: "Acme"}
	withSalary := &models.JobFields{
		Title: "Engineer", Company: "Acme",
		SalaryMin: f64(90000), SalaryMax: f64(120000),
	}
	bumped := &models.JobFields{
		Title: "Engineer", Company: "Acme",
		SalaryMin: f64(95000), SalaryMax: f64(120000),
	}

	if Fingerprint(base) == Fingerprint(withSalary) {
		t.Fatalf("adding salary should change the fingerprint")
	}
	if Fingerprint(withSalary) == Fingerprint(bumped) {
		t.Fatalf("salary bump should change the fingerprint")
	}
}

func TestFingerprint_Length(t *testing.T) {
	fp := Fingerprint(&models.JobFields{Title: "x"})
	if len(fp) != 32 {
		t.Fatalf("expected 32 hex chars, got %d (%s)", len(fp), fp)
	}
}

func TestNormalizeText(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"  Hello,   World! ", "hello world"},
		{"C++ & Go (remote)", "c go remote"},
		{"node.js dev", "node.js dev"},
		{"Acme, Inc.", "acme inc"},
		{"co-op placement - Toronto", "co-op placement toronto"},
		{"", ""},
	}
	for _, c := range cases {
		if got := NormalizeText(c.in); got != c.want {
			t.Fatalf("NormalizeText(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
