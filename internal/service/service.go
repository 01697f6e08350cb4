// Package service is the claim-processing surface: it validates submissions,
// drives runs through the orchestrator, and serves run records and audit
// trails back to callers.
package service

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/medirun/medisuite/internal/audit"
	"github.com/medirun/medisuite/internal/claim"
	"github.com/medirun/medisuite/internal/kb"
	"github.com/medirun/medisuite/internal/orchestrator"
)

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = fmt.Errorf("service: run not found")

// batchConcurrency caps how many runs a batch submission processes at once.
const batchConcurrency = 4

// Service coordinates submissions end to end. It is safe for concurrent use.
type Service struct {
	runner *orchestrator.Runner
	runs   *RunStore
	sink   audit.Sink
	kb     *kb.Store
}

// Option configures optional service collaborators.
type Option func(*Service)

// WithKnowledgeBase enables indexing of processed runs into the knowledge
// base for later retrieval.
func WithKnowledgeBase(store *kb.Store) Option {
	return func(s *Service) { s.kb = store }
}

// New wires the service over an orchestrator runner and the audit sink the
// runner writes to.
func New(runner *orchestrator.Runner, sink audit.Sink, opts ...Option) *Service {
	s := &Service{
		runner: runner,
		runs:   NewRunStore(),
		sink:   sink,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates the submission and processes it to a terminal status.
// A malformed submission comes back as *claim.ValidationError and no run is
// created. Stage failures do not surface as errors: the returned run record
// carries them.
func (s *Service) Submit(ctx context.Context, sub claim.Submission) (*claim.Run, error) {
	if err := sub.Validate(); err != nil {
		return nil, err
	}
	run := claim.NewRun(sub)
	if err := s.runner.Process(ctx, run); err != nil {
		return nil, fmt.Errorf("service: process run %s: %w", run.ID, err)
	}
	// Runs are indexed only once terminal, so readers never observe a run
	// mid-mutation.
	s.runs.Put(run)
	s.index(run)
	return run, nil
}

// index records the run's facts in the knowledge base, when one is attached.
func (s *Service) index(run *claim.Run) {
	if s.kb == nil {
		return
	}
	s.kb.Insert(kb.DocPatientData, map[string]string{
		"run_id":     run.ID,
		"patient_id": run.Submission.PatientID,
		"name":       run.Submission.Name,
	})
	if run.Submission.ClinicalNotes != "" {
		s.kb.Insert(kb.DocClinicalNotes, map[string]string{
			"run_id": run.ID,
			"notes":  run.Submission.ClinicalNotes,
		})
	}
	if coding, ok := run.Context.Coding(); ok {
		for _, c := range coding.ICD10 {
			s.kb.Insert(kb.DocICD10Code, map[string]string{
				"run_id": run.ID, "code": c.Value, "description": c.Description,
			})
		}
		for _, c := range coding.CPT4 {
			s.kb.Insert(kb.DocCPT4Code, map[string]string{
				"run_id": run.ID, "code": c.Value, "description": c.Description,
			})
		}
	}
	if ref, ok := run.Context.Artifact(); ok {
		s.kb.Insert(kb.DocClaim, map[string]string{
			"run_id": run.ID, "claim_id": ref.ClaimID, "ref": ref.Ref,
		})
	}
	if run.Assessment != nil {
		s.kb.Insert(kb.DocTriageDecision, map[string]string{
			"run_id":        run.ID,
			"decision":      string(run.Assessment.Decision),
			"justification": run.Assessment.Justification,
		})
	}
}

// SearchKB retrieves knowledge base documents by keyword. It returns nil
// when no knowledge base is attached.
func (s *Service) SearchKB(query string, docType kb.DocType, topK int) []kb.Document {
	if s.kb == nil {
		return nil
	}
	return s.kb.Retrieve(query, docType, topK)
}

// SubmitBatch processes submissions concurrently with bounded parallelism.
// All submissions are validated up front; one malformed entry rejects the
// whole batch before any run starts. Results are returned in input order.
func (s *Service) SubmitBatch(ctx context.Context, subs []claim.Submission) ([]*claim.Run, error) {
	for i, sub := range subs {
		if err := sub.Validate(); err != nil {
			return nil, fmt.Errorf("service: batch entry %d: %w", i, err)
		}
	}

	runs := make([]*claim.Run, len(subs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)
	for i, sub := range subs {
		g.Go(func() error {
			run, err := s.Submit(gctx, sub)
			if err != nil {
				return err
			}
			runs[i] = run
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return runs, nil
}

// GetRun returns the run record by id.
func (s *Service) GetRun(id string) (*claim.Run, error) {
	run, ok := s.runs.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, nil
}

// ListRuns returns all terminal runs in submission order.
func (s *Service) ListRuns() []*claim.Run {
	return s.runs.List()
}

// AuditTrail returns the append-ordered audit entries for a run. The trail
// exists even for halted runs and outlives nothing: entries are never
// deleted.
func (s *Service) AuditTrail(ctx context.Context, runID string) ([]audit.Entry, error) {
	entries, err := s.sink.ByRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("service: audit trail for %s: %w", runID, err)
	}
	return entries, nil
}
