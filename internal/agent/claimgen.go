package agent

import (
	"context"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medirun/medisuite/internal/artifact"
	"github.com/medirun/medisuite/internal/claim"
)

// ClaimGenerationAgent assembles the claim form from everything the earlier
// stages produced, renders it, and persists it in the artifact store. It
// needs patient facts, coding, and a coverage determination; any of them
// missing means the pipeline is broken upstream and the stage hard-fails.
type ClaimGenerationAgent struct {
	store artifact.Store

	// advisory downgrades storage faults to SoftFail: the claim form is a
	// filing artifact, and some deployments prefer to triage without it.
	advisory bool
}

func NewClaimGenerationAgent(store artifact.Store, advisory bool) *ClaimGenerationAgent {
	return &ClaimGenerationAgent{store: store, advisory: advisory}
}

var _ StageAgent = (*ClaimGenerationAgent)(nil)

func (a *ClaimGenerationAgent) Stage() claim.Stage { return claim.StageClaimGeneration }

func (a *ClaimGenerationAgent) Execute(ctx context.Context, run *claim.Run) *claim.StageResult {
	start := time.Now()

	patient, ok := run.Context.Patient()
	if !ok {
		return hardFail(claim.StageClaimGeneration, "claim generation: patient facts absent from run context")
	}
	coding, ok := run.Context.Coding()
	if !ok {
		return hardFail(claim.StageClaimGeneration, "claim generation: coding absent from run context")
	}
	coverage, ok := run.Context.Coverage()
	if !ok {
		return hardFail(claim.StageClaimGeneration, "claim generation: coverage determination absent from run context")
	}

	claimID := NewClaimID()
	sub := run.Submission
	prov := scrapeProviderInfo(sub.ClinicalNotes)

	fields := artifact.Fields{
		ClaimID:       claimID,
		PatientID:     sub.PatientID,
		Name:          sub.Name,
		DOB:           sub.DOB,
		Gender:        sub.Gender,
		Address:       sub.Address,
		Phone:         sub.Phone,
		PolicyNumber:  coverage.PolicyNumber,
		Provider:      coverage.Provider,
		ProviderNPI:   prov.npi,
		Facility:      prov.facility,
		DateOfService: prov.dateOfService,
		Diagnoses:     patient.Diagnoses,
		Procedures:    patient.Procedures,
		ICD10:         codeValues(coding.ICD10),
		CPT4:          codeValues(coding.CPT4),
		Charge:        coding.Charge,
	}
	if fields.Provider == "" {
		fields.Provider = prov.provider
	}
	if fields.PolicyNumber == "" {
		fields.PolicyNumber = sub.Insurance.PolicyNumber
	}

	form, err := artifact.Render(fields)
	if err != nil {
		return a.storageFault(claimID, start, fmt.Sprintf("claim generation: render: %v", err))
	}
	ref, err := a.store.Put(claimID+".txt", form)
	if err != nil {
		return a.storageFault(claimID, start, fmt.Sprintf("claim generation: store: %v", err))
	}

	return &claim.StageResult{
		Stage:        claim.StageClaimGeneration,
		Status:       claim.StatusSuccess,
		Duration:     time.Since(start),
		Detail:       fmt.Sprintf("claim %s rendered to %s", claimID, ref),
		Contribution: &claim.Contribution{Artifact: &claim.ArtifactRef{ClaimID: claimID, Ref: ref}},
	}
}

// storageFault reports a render or persistence failure. The claim id is kept
// in the contribution even without a stored form so the run remains
// traceable; in advisory mode the run continues and triage surfaces the gap.
func (a *ClaimGenerationAgent) storageFault(claimID string, start time.Time, msg string) *claim.StageResult {
	if !a.advisory {
		return hardFail(claim.StageClaimGeneration, msg)
	}
	return &claim.StageResult{
		Stage:        claim.StageClaimGeneration,
		Status:       claim.StatusSoftFail,
		Duration:     time.Since(start),
		Err:          msg,
		Contribution: &claim.Contribution{Artifact: &claim.ArtifactRef{ClaimID: claimID}},
	}
}

// NewClaimID produces a claim identifier of the form CLM-XXXXXXXX, eight
// upper-case hex digits drawn from a fresh UUID.
func NewClaimID() string {
	id := uuid.New()
	return "CLM-" + strings.ToUpper(hex.EncodeToString(id[:4]))
}

type providerInfo struct {
	provider      string
	npi           string
	facility      string
	dateOfService string
}

var providerLineRe = regexp.MustCompile(`(?im)^\s*(provider|npi|facility|date of visit|date of service)\s*:\s*(.+)$`)

// scrapeProviderInfo pulls billing-provider lines out of the clinical notes.
// Notes commonly carry a trailing block like "Provider: Dr. Chen / NPI:
// 1234567890 / Facility: ...".
func scrapeProviderInfo(notes string) providerInfo {
	var info providerInfo
	for _, m := range providerLineRe.FindAllStringSubmatch(notes, -1) {
		val := strings.TrimSpace(m[2])
		switch strings.ToLower(m[1]) {
		case "provider":
			info.provider = val
		case "npi":
			info.npi = val
		case "facility":
			info.facility = val
		case "date of visit", "date of service":
			info.dateOfService = val
		}
	}
	return info
}

func codeValues(codes []claim.Code) []string {
	vals := make([]string, len(codes))
	for i, c := range codes {
		vals[i] = c.Value
	}
	return vals
}
