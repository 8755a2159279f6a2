package handlers

import (
	"net/http"
	"time"

	"github.com/agentstation/ecomap/internal/server/response"
	"github.com/agentstation/ecomap/pkg/entity"
)

// CorrectionRequest is the body of POST /api/v1/entities/{id}/corrections.
type CorrectionRequest struct {
	Field string `json:"field"`
	Value any    `json:"value"`
	By    string `json:"by"`
}

// ReportRequest is the body of POST /api/v1/entities/{id}/reports.
type ReportRequest struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
	By     string `json:"by"`
}

// ReviewRequest is the body of POST /api/v1/entities/{id}/review.
type ReviewRequest struct {
	By string `json:"by"`
}

// HandleCorrect handles POST /api/v1/entities/{id}/corrections.
func (h *Handlers) HandleCorrect(w http.ResponseWriter, r *http.Request) {
	var req CorrectionRequest
	if err := decodeBody(w, r, &req); err != nil {
		response.ErrorFromType(w, err)
		return
	}
	e, err := h.client.Correct(r.Context(), entity.UserCorrection{
		EntityID:     r.PathValue("id"),
		Field:        req.Field,
		NewValue:     req.Value,
		SubmittedAt:  time.Now().UTC(),
		SubmitterRef: req.By,
	})
	if err != nil {
		response.ErrorFromType(w, err)
		return
	}
	response.OK(w, e)
}

// HandleReport handles POST /api/v1/entities/{id}/reports.
func (h *Handlers) HandleReport(w http.ResponseWriter, r *http.Request) {
	var req ReportRequest
	if err := decodeBody(w, r, &req); err != nil {
		response.ErrorFromType(w, err)
		return
	}
	rep, err := h.client.Report(r.Context(), entity.UserReport{
		EntityID:     r.PathValue("id"),
		Field:        req.Field,
		Reason:       req.Reason,
		SubmitterRef: req.By,
	})
	if err != nil {
		response.ErrorFromType(w, err)
		return
	}
	response.Created(w, rep)
}

// HandleReview handles POST /api/v1/entities/{id}/review.
func (h *Handlers) HandleReview(w http.ResponseWriter, r *http.Request) {
	var req ReviewRequest
	if err := decodeBody(w, r, &req); err != nil {
		response.ErrorFromType(w, err)
		return
	}
	e, err := h.client.Review(r.Context(), r.PathValue("id"), req.By)
	if err != nil {
		response.ErrorFromType(w, err)
		return
	}
	response.OK(w, e)
}
