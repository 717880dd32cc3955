/**
 * @description
 * HTTP handlers for the staff portal. Handlers parse the request, check that
 * any userId the client names is the signed-in caller, delegate to the app
 * services and render the result as JSON.
 */
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vishwadoshi-19/zense-staff/internal/app"
	"github.com/vishwadoshi-19/zense-staff/internal/domain"
)

// AuthService is the phone sign-in flow.
type AuthService interface {
	SendOTP(ctx context.Context, phone string) (string, error)
	VerifyOTP(ctx context.Context, verificationID, code string) (*app.VerifyResult, error)
}

// SessionService resolves and streams sessions.
type SessionService interface {
	Resolve(ctx context.Context, identity *app.Identity) app.Session
	Subscribe(ctx context.Context, identity app.Identity) (<-chan app.Session, func())
	SignOut(ctx context.Context, claims *app.SessionClaims) error
}

// OnboardingService is the registration wizard.
type OnboardingService interface {
	Progress(ctx context.Context, identity app.Identity) (*app.OnboardingProgress, error)
	Advance(ctx context.Context, identity app.Identity, step domain.Step, slice domain.Slice) (*app.OnboardingProgress, error)
	StaffDetails(ctx context.Context, userID string) (*domain.User, error)
}

// DailyLogService is the per-day care log.
type DailyLogService interface {
	Get(ctx context.Context, userID, dateKey string) (*domain.DailyTask, error)
	UpdateField(ctx context.Context, userID, dateKey, field string, value json.RawMessage) (*domain.DailyTask, error)
	Merge(ctx context.Context, userID, dateKey string, fields map[string]json.RawMessage) (*domain.DailyTask, error)
	ClockIn(ctx context.Context, userID, dateKey string) (*domain.DailyTask, error)
	ClockOut(ctx context.Context, userID, dateKey string) (*domain.DailyTask, error)
	AddTask(ctx context.Context, userID, dateKey, title, timeLabel string) (*domain.DailyTask, error)
	RecordMood(ctx context.Context, userID, dateKey, mood string) (*domain.DailyTask, error)
	RecordVitals(ctx context.Context, userID, dateKey string, vitals domain.Vitals) (*domain.DailyTask, error)
	Range(ctx context.Context, userID, startKey, endKey string) ([]app.RangeEntry, error)
	SeedSample(ctx context.Context, userID, dateKey string) (*domain.DailyTask, error)
}

// JobService is the job browser.
type JobService interface {
	List(ctx context.Context, userID, facet string) ([]domain.JobPosting, error)
	Get(ctx context.Context, id string) (*domain.JobPosting, error)
	SeedSample(ctx context.Context, count int) ([]domain.JobPosting, error)
}

// Services bundles everything the handlers call into.
type Services struct {
	Auth        AuthService
	Sessions    SessionService
	Onboarding  OnboardingService
	DailyLog    DailyLogService
	Jobs        JobService
	Tokens      TokenVerifier
	Revocations RevocationChecker
}

// Handler holds the application services the routes interact with.
type Handler struct {
	auth        AuthService
	sessions    SessionService
	onboarding  OnboardingService
	dailyLog    DailyLogService
	jobs        JobService
	tokens      TokenVerifier
	revocations RevocationChecker
	logger      *slog.Logger
	heartbeat   time.Duration

	streamsDone  chan struct{}
	closeStreams sync.Once
}

// NewHandler creates a new Handler with the given services.
func NewHandler(s Services, logger *slog.Logger) *Handler {
	return &Handler{
		auth:        s.Auth,
		sessions:    s.Sessions,
		onboarding:  s.Onboarding,
		dailyLog:    s.DailyLog,
		jobs:        s.Jobs,
		tokens:      s.Tokens,
		revocations: s.Revocations,
		logger:      logger,
		heartbeat:   25 * time.Second,
		streamsDone: make(chan struct{}),
	}
}

// CloseStreams ends every open session event stream. http.Server.Shutdown
// does not cancel request contexts, so main registers this with
// RegisterOnShutdown.
func (h *Handler) CloseStreams() {
	h.closeStreams.Do(func() { close(h.streamsDone) })
}

// caller returns the signed-in user's id.
func caller(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return "", false
	}
	return userID, true
}

// requireCaller checks that a client-supplied userId names the signed-in user.
func requireCaller(w http.ResponseWriter, r *http.Request, userID string) (string, bool) {
	self, ok := caller(w, r)
	if !ok {
		return "", false
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		respondWithError(w, http.StatusBadRequest, msgMissingParams)
		return "", false
	}
	if userID != self {
		respondWithError(w, http.StatusForbidden, "Forbidden: userId does not match the signed-in user")
		return "", false
	}
	return self, true
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "zense-staff"})
}

func (h *Handler) handleSendOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PhoneNumber string `json:"phoneNumber"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.PhoneNumber) == "" {
		respondWithError(w, http.StatusBadRequest, msgMissingParams)
		return
	}

	verificationID, err := h.auth.SendOTP(r.Context(), req.PhoneNumber)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"success": true, "verificationId": verificationID})
}

type verifyResponse struct {
	Success bool `json:"success"`
	*app.VerifyResult
}

func (h *Handler) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		VerificationID string `json:"verificationId"`
		OTP            string `json:"otp"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.VerificationID) == "" || strings.TrimSpace(req.OTP) == "" {
		respondWithError(w, http.StatusBadRequest, msgMissingParams)
		return
	}

	result, err := h.auth.VerifyOTP(r.Context(), strings.TrimSpace(req.VerificationID), strings.TrimSpace(req.OTP))
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, verifyResponse{Success: true, VerifyResult: result})
}

func (h *Handler) handleSignOut(w http.ResponseWriter, r *http.Request) {
	claims, ok := GetSessionClaims(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	if err := h.sessions.SignOut(r.Context(), claims); err != nil {
		h.logger.Error("sign-out failed", slog.String("user_id", claims.Subject), slog.Any("error", err))
		respondWithError(w, http.StatusInternalServerError, "Failed to sign out. Please try again.")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	claims, ok := GetSessionClaims(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	identity := identityFromClaims(claims)
	respondWithJSON(w, http.StatusOK, h.sessions.Resolve(r.Context(), &identity))
}

// handleSessionEvents streams session snapshots as server-sent events until
// the client disconnects or the session is signed out.
func (h *Handler) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	claims, ok := GetSessionClaims(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondWithError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	updates, unsubscribe := h.sessions.Subscribe(r.Context(), identityFromClaims(claims))
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-h.streamsDone:
			return
		case session, open := <-updates:
			if !open {
				return
			}
			payload, err := json.Marshal(session)
			if err != nil {
				h.logger.Error("encode session event", slog.Any("error", err))
				return
			}
			fmt.Fprintf(w, "event: session\ndata: %s\n\n", payload)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

// handleRoute evaluates the navigation guard. An absent or invalid token is
// treated as a signed-out visitor.
func (h *Handler) handleRoute(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSpace(r.URL.Query().Get("path"))
	if path == "" {
		respondWithError(w, http.StatusBadRequest, msgMissingParams)
		return
	}

	session := app.Session{}
	if claims := optionalClaims(r, h.tokens, h.revocations); claims != nil {
		identity := identityFromClaims(claims)
		session = h.sessions.Resolve(r.Context(), &identity)
	}
	respondWithJSON(w, http.StatusOK, app.DecideRoute(app.RouteInputFor(session, path)))
}

func (h *Handler) handleGetOnboarding(w http.ResponseWriter, r *http.Request) {
	claims, ok := GetSessionClaims(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	progress, err := h.onboarding.Progress(r.Context(), identityFromClaims(claims))
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, progress)
}

func (h *Handler) handleAdvanceOnboarding(w http.ResponseWriter, r *http.Request) {
	claims, ok := GetSessionClaims(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	step, err := domain.ParseStep(chi.URLParam(r, "step"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	slice, err := domain.DecodeSlice(step, body)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	progress, err := h.onboarding.Advance(r.Context(), identityFromClaims(claims), step, slice)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, progress)
}

func (h *Handler) handleGetStaff(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireCaller(w, r, r.URL.Query().Get("userId"))
	if !ok {
		return
	}
	user, err := h.onboarding.StaffDetails(r.Context(), userID)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, user)
}
