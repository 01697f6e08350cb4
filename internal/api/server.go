// Package api exposes the claim-processing service over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/medirun/medisuite/internal/chat"
	"github.com/medirun/medisuite/internal/claim"
	"github.com/medirun/medisuite/internal/kb"
	"github.com/medirun/medisuite/internal/service"
)

// Server is the HTTP front end over the service layer.
type Server struct {
	svc    *service.Service
	router *chat.Router
	http   *http.Server
}

// NewServer creates the API server. The chat router may be nil, in which
// case the chat endpoint answers 404.
func NewServer(svc *service.Service, router *chat.Router) *Server {
	return &Server{svc: svc, router: router}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/claims", s.handleSubmit)
	mux.HandleFunc("POST /api/claims/batch", s.handleSubmitBatch)
	mux.HandleFunc("GET /api/claims", s.handleListRuns)
	mux.HandleFunc("GET /api/claims/{id}", s.handleGetRun)
	mux.HandleFunc("GET /api/audit/{id}", s.handleAuditTrail)
	mux.HandleFunc("GET /api/kb", s.handleKBSearch)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.router != nil {
		mux.HandleFunc("POST /api/chat", s.handleChat)
	}
	return mux
}

// Start begins serving in a background goroutine and returns immediately.
func (s *Server) Start(ctx context.Context, addr string) error {
	s.http = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	go s.http.ListenAndServe()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// runView is the wire representation of a run record.
type runView struct {
	ID          string                `json:"id"`
	Status      claim.RunStatus       `json:"status"`
	PatientID   string                `json:"patient_id"`
	Results     []*claim.StageResult  `json:"results"`
	Assessment  *claim.RiskAssessment `json:"assessment,omitempty"`
	ClaimID     string                `json:"claim_id,omitempty"`
	ArtifactRef string                `json:"artifact_ref,omitempty"`
}

func viewOf(run *claim.Run) runView {
	v := runView{
		ID:         run.ID,
		Status:     run.Status,
		PatientID:  run.Submission.PatientID,
		Results:    run.Results[:],
		Assessment: run.Assessment,
	}
	if ref, ok := run.Context.Artifact(); ok {
		v.ClaimID = ref.ClaimID
		v.ArtifactRef = ref.Ref
	}
	return v
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var sub claim.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
		return
	}

	run, err := s.svc.Submit(r.Context(), sub)
	if err != nil {
		var verr *claim.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusUnprocessableEntity, verr.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(run))
}

func (s *Server) handleSubmitBatch(w http.ResponseWriter, r *http.Request) {
	var subs []claim.Submission
	if err := json.NewDecoder(r.Body).Decode(&subs); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
		return
	}

	runs, err := s.svc.SubmitBatch(r.Context(), subs)
	if err != nil {
		var verr *claim.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	views := make([]runView, len(runs))
	for i, run := range runs {
		views[i] = viewOf(run)
	}
	writeJSON(w, http.StatusCreated, views)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.svc.GetRun(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, viewOf(run))
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs := s.svc.ListRuns()
	views := make([]runView, len(runs))
	for i, run := range runs {
		views[i] = viewOf(run)
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	entries, err := s.svc.AuditTrail(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleKBSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	topK, _ := strconv.Atoi(q.Get("k"))
	docs := s.svc.SearchKB(q.Get("q"), kb.DocType(q.Get("type")), topK)
	if docs == nil {
		docs = []kb.Document{}
	}
	writeJSON(w, http.StatusOK, docs)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"reply": s.router.Reply(req.Message)})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
