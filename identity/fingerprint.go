package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"jobscout/models"
)

var nonAlnumRegex = regexp.MustCompile(`[^a-z0-9\s.\-]`)

// Fingerprint hashes the normalized monitored fields of a posting. Two
// fetches of unchanged content produce the same value regardless of
// whitespace, casing, or punctuation noise in the page.
func Fingerprint(fields *models.JobFields) string {
	input := fmt.Sprintf("%s|%s|%s|%s|%s|%s|%s",
		NormalizeText(fields.Title),
		NormalizeText(fields.Company),
		NormalizeText(fields.Location),
		salaryComponent(fields.SalaryMin, fields.SalaryMax),
		strings.ToLower(strings.TrimSpace(fields.EmploymentType)),
		NormalizeText(fields.Requirements),
		NormalizeText(fields.Description),
	)
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:16])
}

// NormalizeText lowercases, strips punctuation, and collapses whitespace.
// Dots and hyphens survive inside a token (node.js, co-op) but not at its
// edges, so "Acme, Inc." and "acme inc" normalize identically.
func NormalizeText(s string) string {
	s = strings.ToLower(s)
	s = nonAlnumRegex.ReplaceAllString(s, " ")
	tokens := strings.Fields(s)
	out := tokens[:0]
	for _, tok := range tokens {
		tok = strings.Trim(tok, ".-")
		if tok != "" {
			out = append(out, tok)
		}
	}
	return strings.Join(out, " ")
}

func salaryComponent(min, max *float64) string {
	if min == nil && max == nil {
		return ""
	}
	var lo, hi float64
	if min != nil {
		lo = *min
	}
	if max != nil {
		hi = *max
	}
	return fmt.Sprintf("%.0f-%.0f", lo, hi)
}
