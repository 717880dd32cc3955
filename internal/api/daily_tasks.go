package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vishwadoshi-19/zense-staff/internal/domain"
)

// dateParam checks presence before format so a missing date reads as a
// missing parameter rather than a malformed one.
func dateParam(w http.ResponseWriter, raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		respondWithError(w, http.StatusBadRequest, msgMissingParams)
		return "", false
	}
	if _, err := domain.ParseDateKey(raw); err != nil {
		respondWithError(w, http.StatusBadRequest, domain.ErrInvalidDate.Error())
		return "", false
	}
	return raw, true
}

func (h *Handler) handleGetDailyTask(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if strings.TrimSpace(query.Get("userId")) == "" || strings.TrimSpace(query.Get("date")) == "" {
		respondWithError(w, http.StatusBadRequest, msgMissingParams)
		return
	}
	userID, ok := requireCaller(w, r, query.Get("userId"))
	if !ok {
		return
	}
	date, ok := dateParam(w, query.Get("date"))
	if !ok {
		return
	}

	task, err := h.dailyLog.Get(r.Context(), userID, date)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, task)
}

func (h *Handler) handlePutDailyTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string                     `json:"userId"`
		Date   string                     `json:"date"`
		Data   map[string]json.RawMessage `json:"data"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.Date) == "" || req.Data == nil {
		respondWithError(w, http.StatusBadRequest, msgMissingParams)
		return
	}
	userID, ok := requireCaller(w, r, req.UserID)
	if !ok {
		return
	}
	date, ok := dateParam(w, req.Date)
	if !ok {
		return
	}

	if _, err := h.dailyLog.Merge(r.Context(), userID, date, req.Data); err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handlePatchDailyTaskField is the autosave path: one field per request.
func (h *Handler) handlePatchDailyTaskField(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	date, ok := dateParam(w, chi.URLParam(r, "date"))
	if !ok {
		return
	}
	var req struct {
		Value json.RawMessage `json:"value"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Value) == 0 {
		respondWithError(w, http.StatusBadRequest, msgMissingParams)
		return
	}

	task, err := h.dailyLog.UpdateField(r.Context(), userID, date, chi.URLParam(r, "field"), req.Value)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": task})
}

func (h *Handler) handleClockIn(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	date, ok := dateParam(w, chi.URLParam(r, "date"))
	if !ok {
		return
	}
	task, err := h.dailyLog.ClockIn(r.Context(), userID, date)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": task})
}

func (h *Handler) handleClockOut(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	date, ok := dateParam(w, chi.URLParam(r, "date"))
	if !ok {
		return
	}
	task, err := h.dailyLog.ClockOut(r.Context(), userID, date)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": task})
}

func (h *Handler) handleRecordMood(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	date, ok := dateParam(w, chi.URLParam(r, "date"))
	if !ok {
		return
	}
	var req struct {
		Mood string `json:"mood"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Mood) == "" {
		respondWithError(w, http.StatusBadRequest, msgMissingParams)
		return
	}

	task, err := h.dailyLog.RecordMood(r.Context(), userID, date, req.Mood)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": task})
}

func (h *Handler) handleRecordVitals(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	date, ok := dateParam(w, chi.URLParam(r, "date"))
	if !ok {
		return
	}
	var req struct {
		Vitals *domain.Vitals `json:"vitals"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Vitals == nil {
		respondWithError(w, http.StatusBadRequest, msgMissingParams)
		return
	}

	task, err := h.dailyLog.RecordVitals(r.Context(), userID, date, *req.Vitals)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": task})
}

func (h *Handler) handleSampleDailyTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"userId"`
		Date   string `json:"date"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.Date) == "" {
		respondWithError(w, http.StatusBadRequest, msgMissingParams)
		return
	}
	userID, ok := requireCaller(w, r, req.UserID)
	if !ok {
		return
	}
	date, ok := dateParam(w, req.Date)
	if !ok {
		return
	}

	task, err := h.dailyLog.SeedSample(r.Context(), userID, date)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": task})
}

func (h *Handler) handleAddTask(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireCaller(w, r, chi.URLParam(r, "userId"))
	if !ok {
		return
	}
	var req struct {
		Date  string `json:"date"`
		Title string `json:"title"`
		Time  string `json:"time"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		respondWithError(w, http.StatusBadRequest, msgMissingParams)
		return
	}
	date, ok := dateParam(w, req.Date)
	if !ok {
		return
	}

	task, err := h.dailyLog.AddTask(r.Context(), userID, date, req.Title, req.Time)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": task})
}

func (h *Handler) handleTaskRange(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if strings.TrimSpace(query.Get("userId")) == "" ||
		strings.TrimSpace(query.Get("startDate")) == "" ||
		strings.TrimSpace(query.Get("endDate")) == "" {
		respondWithError(w, http.StatusBadRequest, msgMissingParams)
		return
	}
	userID, ok := requireCaller(w, r, query.Get("userId"))
	if !ok {
		return
	}
	start, ok := dateParam(w, query.Get("startDate"))
	if !ok {
		return
	}
	end, ok := dateParam(w, query.Get("endDate"))
	if !ok {
		return
	}

	entries, err := h.dailyLog.Range(r.Context(), userID, start, end)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": entries})
}
