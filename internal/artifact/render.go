// Package artifact renders the CMS-1500 claim form and persists the
// resulting bytes in a blob store.
package artifact

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Fields carries everything the form needs, assembled from the run context.
type Fields struct {
	ClaimID       string
	PatientID     string
	Name          string
	DOB           string
	Gender        string
	Address       string
	Phone         string
	PolicyNumber  string
	Provider      string
	ProviderNPI   string
	Facility      string
	DateOfService string
	Diagnoses     []string
	Procedures    []string
	ICD10         []string
	CPT4          []string
	Charge        decimal.Decimal
}

// Render produces the claim form as a deterministic fixed-layout document.
// The byte output is what gets persisted and later retrieved by reference.
func Render(f Fields) ([]byte, error) {
	if f.ClaimID == "" {
		return nil, fmt.Errorf("artifact: claim id is required")
	}
	if f.PatientID == "" {
		return nil, fmt.Errorf("artifact: patient id is required")
	}

	var b strings.Builder
	line := strings.Repeat("=", 64)

	fmt.Fprintf(&b, "%s\n", line)
	fmt.Fprintf(&b, "HEALTH INSURANCE CLAIM FORM (CMS-1500)\n")
	fmt.Fprintf(&b, "CLAIM ID: %s\n", f.ClaimID)
	fmt.Fprintf(&b, "%s\n\n", line)

	fmt.Fprintf(&b, "PATIENT\n")
	fmt.Fprintf(&b, "  ID:          %s\n", f.PatientID)
	fmt.Fprintf(&b, "  Name:        %s\n", f.Name)
	fmt.Fprintf(&b, "  DOB:         %s\n", f.DOB)
	fmt.Fprintf(&b, "  Gender:      %s\n", valueOr(f.Gender, "-"))
	fmt.Fprintf(&b, "  Address:     %s\n", valueOr(f.Address, "-"))
	fmt.Fprintf(&b, "  Phone:       %s\n\n", valueOr(f.Phone, "-"))

	fmt.Fprintf(&b, "INSURANCE\n")
	fmt.Fprintf(&b, "  Policy:      %s\n", valueOr(f.PolicyNumber, "-"))
	fmt.Fprintf(&b, "  Carrier:     %s\n\n", valueOr(f.Provider, "-"))

	fmt.Fprintf(&b, "RENDERING PROVIDER\n")
	fmt.Fprintf(&b, "  NPI:         %s\n", valueOr(f.ProviderNPI, "-"))
	fmt.Fprintf(&b, "  Facility:    %s\n", valueOr(f.Facility, "-"))
	fmt.Fprintf(&b, "  Service on:  %s\n\n", valueOr(f.DateOfService, "-"))

	fmt.Fprintf(&b, "DIAGNOSES (ICD-10)\n")
	writePaired(&b, f.ICD10, f.Diagnoses)

	fmt.Fprintf(&b, "PROCEDURES (CPT-4)\n")
	writePaired(&b, f.CPT4, f.Procedures)

	fmt.Fprintf(&b, "TOTAL CHARGE: $%s\n", f.Charge.StringFixed(2))
	fmt.Fprintf(&b, "%s\n", line)

	return []byte(b.String()), nil
}

func writePaired(b *strings.Builder, codes, terms []string) {
	if len(codes) == 0 && len(terms) == 0 {
		fmt.Fprintf(b, "  (none)\n\n")
		return
	}
	for i, code := range codes {
		term := ""
		if i < len(terms) {
			term = terms[i]
		}
		fmt.Fprintf(b, "  %-10s %s\n", code, term)
	}
	for i := len(codes); i < len(terms); i++ {
		fmt.Fprintf(b, "  %-10s %s\n", "-", terms[i])
	}
	fmt.Fprintf(b, "\n")
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
