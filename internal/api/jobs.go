package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) handleListJobs(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"userId"`
		Status string `json:"status"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	userID, ok := requireCaller(w, r, req.UserID)
	if !ok {
		return
	}

	jobs, err := h.jobs.List(r.Context(), userID, req.Status)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs})
}

func (h *Handler) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimSpace(chi.URLParam(r, "jobId"))
	if jobID == "" {
		respondWithError(w, http.StatusBadRequest, msgMissingParams)
		return
	}
	job, err := h.jobs.Get(r.Context(), jobID)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, job)
}

func (h *Handler) handleSampleJobs(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Count int `json:"count"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	jobs, err := h.jobs.SeedSample(r.Context(), req.Count)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, map[string]interface{}{"success": true, "jobs": jobs})
}
