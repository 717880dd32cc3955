package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/vishwadoshi-19/zense-staff/internal/app"
	"github.com/vishwadoshi-19/zense-staff/internal/domain"
	"github.com/vishwadoshi-19/zense-staff/internal/store"
)

const (
	msgMissingParams = "Missing required parameters"
	msgInvalidBody   = "Invalid request body"
	maxBodyBytes     = 1 << 20
)

// respondWithJSON writes payload with the given status code.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, `{"error":"Internal Server Error"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

// decodeBody reads a JSON request body into dst.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondWithError(w, http.StatusBadRequest, msgInvalidBody)
		return false
	}
	return true
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, msgInvalidBody)
		return nil, false
	}
	return body, true
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	var (
		inputErr      *app.InputError
		validationErr *domain.ValidationError
		rateErr       *app.RateLimitError
	)
	switch {
	case errors.As(err, &inputErr),
		errors.As(err, &validationErr),
		errors.Is(err, domain.ErrInvalidDate),
		errors.Is(err, domain.ErrUnknownStep),
		errors.Is(err, app.ErrInvalidRange),
		errors.Is(err, app.ErrUnknownField),
		errors.Is(err, app.ErrInvalidMood),
		errors.Is(err, app.ErrInvalidPhone),
		errors.Is(err, store.ErrChallengeNotFound):
		return http.StatusBadRequest
	case errors.As(err, &rateErr):
		return http.StatusTooManyRequests
	case errors.Is(err, app.ErrInvalidOTP), errors.Is(err, app.ErrTooManyAttempts):
		return http.StatusUnauthorized
	case errors.Is(err, app.ErrNotApproved):
		return http.StatusForbidden
	case errors.Is(err, store.ErrUserNotFound),
		errors.Is(err, store.ErrJobNotFound),
		errors.Is(err, store.ErrDailyTaskNotFound):
		return http.StatusNotFound
	case errors.Is(err, app.ErrOnboardingCompleted),
		errors.Is(err, app.ErrNoOpenShift),
		errors.Is(err, app.ErrShiftAlreadyOpen):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respondWithServiceError writes err using the shared {"error": ...} shape.
// Internal failures are logged and reported without detail.
func (h *Handler) respondWithServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
		return
	}

	code := statusFor(err)
	var rateErr *app.RateLimitError
	if errors.As(err, &rateErr) {
		w.Header().Set("Retry-After", strconv.Itoa(rateErr.RetryAfterSeconds))
	}

	message := err.Error()
	if code >= http.StatusInternalServerError {
		h.logger.Error("request failed", slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.Any("error", err))
		message = http.StatusText(code)
	}
	respondWithError(w, code, message)
}
