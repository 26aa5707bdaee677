package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dharsanguruparan/certdossier/internal/model"
	"github.com/dharsanguruparan/certdossier/internal/orchestrator"
)

const triggerAccepted = "Emissão das certidões iniciada em background."

// triggerRequest accepts both the JSON body and the legacy query parameters.
type triggerRequest struct {
	CaseID      int64  `json:"case_id"`
	SubjectID   string `json:"subject_id"`
	MotherName  string `json:"mother_name"`
	SubjectType string `json:"subject_type"`
}

type triggerResponse struct {
	Message string `json:"message"`
	RunID   string `json:"run_id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleFile serves one stored document by exact name. Directories and
// names with separators are not found.
func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "*")
	if !s.deps.Files.Exists(name) {
		respondError(w, http.StatusNotFound, "file not found")
		return
	}
	path, err := s.deps.Files.Path(name)
	if err != nil {
		respondError(w, http.StatusNotFound, "file not found")
		return
	}
	f, err := os.Open(path)
	if err != nil {
		respondError(w, http.StatusNotFound, "file not found")
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		respondError(w, http.StatusNotFound, "file not found")
		return
	}
	if strings.EqualFold(filepath.Ext(name), ".pdf") {
		w.Header().Set("Content-Type", "application/pdf")
	}
	http.ServeContent(w, r, name, info.ModTime(), f)
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	in, err := decodeTrigger(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	req := orchestrator.Request{
		RunID:       uuid.NewString(),
		CaseID:      in.CaseID,
		SubjectID:   in.SubjectID,
		MotherName:  in.MotherName,
		SubjectType: in.SubjectType,
	}
	run := orchestrator.NewRun(req, s.deps.Now().UTC())
	if err := s.deps.Runs.SaveRun(ctx, run); err != nil {
		s.deps.Logger.ErrorContext(ctx, "save scheduled run", "case_id", in.CaseID, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to record run")
		return
	}
	if err := s.deps.Scheduler.Schedule(ctx, req); err != nil {
		s.deps.Logger.ErrorContext(ctx, "schedule run", "run_id", run.ID, "case_id", in.CaseID, "error", err)
		now := s.deps.Now().UTC()
		run.State = model.RunAborted
		run.Errors = append(run.Errors, err.Error())
		run.UpdatedAt = now
		run.FinishedAt = &now
		if err := s.deps.Runs.SaveRun(ctx, run); err != nil {
			s.deps.Logger.ErrorContext(ctx, "save aborted run", "run_id", run.ID, "error", err)
		}
		respondError(w, http.StatusServiceUnavailable, "could not schedule certificate run")
		return
	}
	s.deps.Logger.InfoContext(ctx, "certificate run scheduled", "run_id", run.ID, "case_id", in.CaseID, "subject_type", in.SubjectType)
	respondJSON(w, http.StatusAccepted, triggerResponse{Message: triggerAccepted, RunID: run.ID})
}

func decodeTrigger(r *http.Request) (triggerRequest, error) {
	var in triggerRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&in); err != nil && !errors.Is(err, io.EOF) {
			return in, fmt.Errorf("invalid request body")
		}
	}
	q := r.URL.Query()
	if in.CaseID == 0 && q.Get("analise_id") != "" {
		id, err := strconv.ParseInt(q.Get("analise_id"), 10, 64)
		if err != nil {
			return in, fmt.Errorf("analise_id must be an integer")
		}
		in.CaseID = id
	}
	if in.SubjectID == "" {
		in.SubjectID = q.Get("cnpj_cpf")
	}
	if in.MotherName == "" {
		in.MotherName = q.Get("nome_mae")
	}
	if in.SubjectType == "" {
		in.SubjectType = q.Get("doc_type")
	}
	in.SubjectID = strings.TrimSpace(in.SubjectID)
	in.SubjectType = strings.TrimSpace(in.SubjectType)
	switch {
	case in.CaseID <= 0:
		return in, fmt.Errorf("case_id must be a positive integer")
	case in.SubjectID == "":
		return in, fmt.Errorf("subject_id is required")
	case in.SubjectType == "":
		return in, fmt.Errorf("subject_type is required")
	}
	return in, nil
}

func (s *Server) handleCase(w http.ResponseWriter, r *http.Request) {
	id, ok := caseID(w, r)
	if !ok {
		return
	}
	c, err := s.deps.Cases.GetCase(r.Context(), id)
	if err != nil {
		s.storeError(w, r, "analise", err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (s *Server) handleOwners(w http.ResponseWriter, r *http.Request) {
	id, ok := caseID(w, r)
	if !ok {
		return
	}
	if _, err := s.deps.Cases.GetCase(r.Context(), id); err != nil {
		s.storeError(w, r, "analise", err)
		return
	}
	owners, err := s.deps.Cases.ListOwners(r.Context(), id)
	if err != nil {
		s.storeError(w, r, "proprietarios", err)
		return
	}
	if owners == nil {
		owners = []model.Owner{}
	}
	respondJSON(w, http.StatusOK, owners)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	id, ok := caseID(w, r)
	if !ok {
		return
	}
	runs, err := s.deps.Runs.ListRuns(r.Context(), id)
	if err != nil {
		s.storeError(w, r, "runs", err)
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	respondJSON(w, http.StatusOK, runs)
}

func (s *Server) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	id, ok := caseID(w, r)
	if !ok {
		return
	}
	run, err := s.deps.Runs.LatestRun(r.Context(), id)
	if err != nil {
		s.storeError(w, r, "run", err)
		return
	}
	respondJSON(w, http.StatusOK, run)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.deps.Runs.GetRun(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		s.storeError(w, r, "run", err)
		return
	}
	respondJSON(w, http.StatusOK, run)
}

func (s *Server) storeError(w http.ResponseWriter, r *http.Request, what string, err error) {
	if errors.Is(err, model.ErrNotFound) {
		respondError(w, http.StatusNotFound, what+" not found")
		return
	}
	s.deps.Logger.ErrorContext(r.Context(), "store lookup failed", "resource", what, "error", err)
	respondError(w, http.StatusInternalServerError, "failed to load "+what)
}

func caseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "caseID"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid analise id")
		return 0, false
	}
	return id, true
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorResponse{Error: msg})
}
