package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/pesio-ai/be-st-sourcing/internal/apperrors"
	"github.com/pesio-ai/be-st-sourcing/internal/logger"
	"github.com/pesio-ai/be-st-sourcing/internal/middleware"
	"github.com/pesio-ai/be-st-sourcing/internal/repository"
	"github.com/pesio-ai/be-st-sourcing/internal/service"
	"github.com/pesio-ai/be-st-sourcing/internal/workflow"
)

// HTTPHandler handles HTTP requests
type HTTPHandler struct {
	offers      *service.OfferService
	jobs        *service.JobService
	submissions *service.SubmissionService
	workflows   *service.WorkflowService
	log         *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(
	offers *service.OfferService,
	jobs *service.JobService,
	submissions *service.SubmissionService,
	workflows *service.WorkflowService,
	log *logger.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		offers:      offers,
		jobs:        jobs,
		submissions: submissions,
		workflows:   workflows,
		log:         log,
	}
}

// ── offers ────────────────────────────────────────────────────────────────────

type offerRequest struct {
	ProgramID     string                 `json:"program_id"`
	JobID         string                 `json:"job_id"`
	CandidateID   string                 `json:"candidate_id"`
	SubmissionID  string                 `json:"submission_id"`
	ParentOfferID string                 `json:"parent_offer_id"`
	HierarchyIDs  []string               `json:"hierarchy_ids"`
	CustomFields  map[string]interface{} `json:"custom_fields"`
	StartDate     *time.Time             `json:"start_date"`
	EndDate       *time.Time             `json:"end_date"`
	CreatedBy     string                 `json:"created_by"`
}

func (r offerRequest) toCreateRequest() service.CreateOfferRequest {
	return service.CreateOfferRequest{
		ProgramID:    r.ProgramID,
		JobID:        r.JobID,
		CandidateID:  r.CandidateID,
		SubmissionID: r.SubmissionID,
		HierarchyIDs: r.HierarchyIDs,
		CustomFields: r.CustomFields,
		StartDate:    r.StartDate,
		EndDate:      r.EndDate,
		CreatedBy:    r.CreatedBy,
	}
}

// Offers handles create and list offer HTTP requests
func (h *HTTPHandler) Offers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createOffer(w, r)
	case http.MethodGet:
		h.listOffers(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *HTTPHandler) createOffer(w http.ResponseWriter, r *http.Request) {
	var req offerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	offer, err := h.offers.CreateOffer(r.Context(), req.toCreateRequest())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, offer)
}

func (h *HTTPHandler) listOffers(w http.ResponseWriter, r *http.Request) {
	programID := r.URL.Query().Get("program_id")
	if programID == "" {
		http.Error(w, "Program ID is required", http.StatusBadRequest)
		return
	}

	var statusPtr *string
	if status := r.URL.Query().Get("status"); status != "" {
		statusPtr = &status
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	offers, total, err := h.offers.ListOffers(r.Context(), programID, statusPtr, page, pageSize)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"offers":   offers,
		"total":    total,
		"page":     page,
		"pageSize": pageSize,
	})
}

// GetOffer handles get offer HTTP requests
func (h *HTTPHandler) GetOffer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	offerID := r.URL.Query().Get("id")
	programID := r.URL.Query().Get("program_id")
	if offerID == "" || programID == "" {
		http.Error(w, "Offer ID and Program ID are required", http.StatusBadRequest)
		return
	}

	offer, err := h.offers.GetOffer(r.Context(), offerID, programID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, offer)
}

// UpdateOffer handles update offer HTTP requests
func (h *HTTPHandler) UpdateOffer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut && r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		ID           string                 `json:"id"`
		ProgramID    string                 `json:"program_id"`
		CustomFields map[string]interface{} `json:"custom_fields"`
		StartDate    *time.Time             `json:"start_date"`
		EndDate      *time.Time             `json:"end_date"`
		UpdatedBy    string                 `json:"updated_by"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ID == "" {
		http.Error(w, "Offer ID is required", http.StatusBadRequest)
		return
	}

	offer, err := h.offers.UpdateOffer(r.Context(), req.ID, service.UpdateOfferRequest{
		ProgramID:    req.ProgramID,
		CustomFields: req.CustomFields,
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
		UpdatedBy:    req.UpdatedBy,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, offer)
}

// CounterOffer handles counter offer HTTP requests
func (h *HTTPHandler) CounterOffer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req offerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ParentOfferID == "" {
		http.Error(w, "Parent offer ID is required", http.StatusBadRequest)
		return
	}

	offer, err := h.offers.CounterOffer(r.Context(), req.ParentOfferID, req.toCreateRequest())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, offer)
}

// AcceptOffer handles accept offer HTTP requests
func (h *HTTPHandler) AcceptOffer(w http.ResponseWriter, r *http.Request) {
	h.offerAction(w, r, h.offers.AcceptOffer)
}

// WithdrawOffer handles withdraw offer HTTP requests
func (h *HTTPHandler) WithdrawOffer(w http.ResponseWriter, r *http.Request) {
	h.offerAction(w, r, h.offers.WithdrawOffer)
}

func (h *HTTPHandler) offerAction(
	w http.ResponseWriter,
	r *http.Request,
	action func(ctx context.Context, offerID, programID, actedBy string) (*repository.Offer, error),
) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		ID        string `json:"id"`
		ProgramID string `json:"program_id"`
		ActedBy   string `json:"acted_by"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ID == "" || req.ProgramID == "" {
		http.Error(w, "Offer ID and Program ID are required", http.StatusBadRequest)
		return
	}

	offer, err := action(r.Context(), req.ID, req.ProgramID, req.ActedBy)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, offer)
}

// ── jobs ──────────────────────────────────────────────────────────────────────

// Jobs handles create and get job HTTP requests
func (h *HTTPHandler) Jobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createJob(w, r)
	case http.MethodGet:
		h.getJob(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *HTTPHandler) createJob(w http.ResponseWriter, r *http.Request) {
	var req service.CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	job, err := h.jobs.CreateJob(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, job)
}

func (h *HTTPHandler) getJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("id")
	programID := r.URL.Query().Get("program_id")
	if jobID == "" || programID == "" {
		http.Error(w, "Job ID and Program ID are required", http.StatusBadRequest)
		return
	}

	job, err := h.jobs.GetJob(r.Context(), jobID, programID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, job)
}

// ── submissions ───────────────────────────────────────────────────────────────

// SubmitCandidate handles candidate submission HTTP requests
func (h *HTTPHandler) SubmitCandidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req service.SubmitCandidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	sub, err := h.submissions.SubmitCandidate(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, sub)
}

// CandidateHistory handles candidate history HTTP requests
func (h *HTTPHandler) CandidateHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	programID := r.URL.Query().Get("program_id")
	candidateID := r.URL.Query().Get("candidate_id")
	if programID == "" || candidateID == "" {
		http.Error(w, "Program ID and Candidate ID are required", http.StatusBadRequest)
		return
	}

	entries, err := h.submissions.CandidateHistory(r.Context(), programID, candidateID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"history": entries,
		"total":   len(entries),
	})
}

// ── workflows ─────────────────────────────────────────────────────────────────

// AdvanceWorkflow handles workflow decision HTTP requests
func (h *HTTPHandler) AdvanceWorkflow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		WorkflowID     string `json:"workflow_id"`
		PlacementOrder int    `json:"placement_order"`
		UserID         string `json:"user_id"`
		Decision       string `json:"decision"`
		ImpersonatorID string `json:"impersonator_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.WorkflowID == "" {
		http.Error(w, "Workflow ID is required", http.StatusBadRequest)
		return
	}

	inst, err := h.workflows.AdvanceWorkflow(r.Context(), service.AdvanceRequest{
		WorkflowID:     req.WorkflowID,
		PlacementOrder: req.PlacementOrder,
		UserID:         req.UserID,
		Decision:       workflow.Decision(req.Decision),
		ImpersonatorID: req.ImpersonatorID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, inst)
}

// GetWorkflow handles get workflow HTTP requests
func (h *HTTPHandler) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	workflowID := r.URL.Query().Get("id")
	triggerID := r.URL.Query().Get("trigger_id")

	switch {
	case workflowID != "":
		inst, err := h.workflows.GetWorkflow(r.Context(), workflowID)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		h.writeJSON(w, http.StatusOK, inst)
	case triggerID != "":
		inst, err := h.workflows.GetActiveWorkflowForEntity(r.Context(), triggerID)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		if inst == nil {
			h.writeError(w, r, apperrors.NotFound("workflow for trigger", triggerID))
			return
		}
		h.writeJSON(w, http.StatusOK, inst)
	default:
		http.Error(w, "Workflow ID or Trigger ID is required", http.StatusBadRequest)
	}
}

// PendingWorkflows handles pending workflow listing HTTP requests
func (h *HTTPHandler) PendingWorkflows(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	programID, userID, triggerType, ok := h.pendingParams(w, r)
	if !ok {
		return
	}

	pending, err := h.workflows.PendingForUser(r.Context(), programID, userID, triggerType)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"workflows": pending,
		"total":     len(pending),
	})
}

// CountPendingWorkflows handles the pending-count badge HTTP requests
func (h *HTTPHandler) CountPendingWorkflows(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	programID, userID, triggerType, ok := h.pendingParams(w, r)
	if !ok {
		return
	}

	count, err := h.workflows.CountPendingForUser(r.Context(), programID, userID, triggerType)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"count": count})
}

func (h *HTTPHandler) pendingParams(w http.ResponseWriter, r *http.Request) (string, string, workflow.EntityType, bool) {
	programID := r.URL.Query().Get("program_id")
	userID := r.URL.Query().Get("user_id")
	if programID == "" || userID == "" {
		http.Error(w, "Program ID and User ID are required", http.StatusBadRequest)
		return "", "", "", false
	}

	triggerType := workflow.EntityType(r.URL.Query().Get("trigger_type"))
	switch triggerType {
	case workflow.EntityOffer, workflow.EntityJob, workflow.EntitySubmission:
	default:
		http.Error(w, "Trigger type must be offer, job or submission", http.StatusBadRequest)
		return "", "", "", false
	}
	return programID, userID, triggerType, true
}

// ── helpers ───────────────────────────────────────────────────────────────────

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Warn().Err(err).Msg("failed to encode response body")
	}
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).
			Str("request_id", middleware.RequestIDFrom(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
	}
	h.writeJSON(w, status, map[string]interface{}{
		"error": err.Error(),
		"code":  string(apperrors.CodeOf(err)),
	})
}
