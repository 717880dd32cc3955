package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vishwadoshi-19/zense-staff/internal/app"
	"github.com/vishwadoshi-19/zense-staff/internal/domain"
	"github.com/vishwadoshi-19/zense-staff/internal/store"
)

const testSecret = "0123456789abcdef0123456789abcdef"

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type revocationStub struct {
	mu      sync.Mutex
	revoked map[string]bool
	err     error
}

func (s *revocationStub) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revoked[jti], s.err
}

func (s *revocationStub) RevokeToken(ctx context.Context, jti string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[jti] = true
	return nil
}

type usersStub struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func (s *usersStub) set(u *domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

func (s *usersStub) GetUser(ctx context.Context, id string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

type authStub struct {
	send   func(phone string) (string, error)
	verify func(id, code string) (*app.VerifyResult, error)
}

func (s *authStub) SendOTP(ctx context.Context, phone string) (string, error) {
	return s.send(phone)
}

func (s *authStub) VerifyOTP(ctx context.Context, id, code string) (*app.VerifyResult, error) {
	return s.verify(id, code)
}

// Embedded interfaces panic on calls a test did not expect.
type onboardingStub struct {
	OnboardingService
	advance func(step domain.Step, slice domain.Slice) (*app.OnboardingProgress, error)
	staff   func(userID string) (*domain.User, error)
}

func (s *onboardingStub) Advance(ctx context.Context, identity app.Identity, step domain.Step, slice domain.Slice) (*app.OnboardingProgress, error) {
	return s.advance(step, slice)
}

func (s *onboardingStub) StaffDetails(ctx context.Context, userID string) (*domain.User, error) {
	return s.staff(userID)
}

type dailyLogStub struct {
	DailyLogService
	get      func(userID, date string) (*domain.DailyTask, error)
	merge    func(userID, date string, fields map[string]json.RawMessage) (*domain.DailyTask, error)
	clockOut func(userID, date string) (*domain.DailyTask, error)
	rangeFn  func(userID, start, end string) ([]app.RangeEntry, error)
}

func (s *dailyLogStub) Get(ctx context.Context, userID, date string) (*domain.DailyTask, error) {
	return s.get(userID, date)
}

func (s *dailyLogStub) Merge(ctx context.Context, userID, date string, fields map[string]json.RawMessage) (*domain.DailyTask, error) {
	return s.merge(userID, date, fields)
}

func (s *dailyLogStub) ClockOut(ctx context.Context, userID, date string) (*domain.DailyTask, error) {
	return s.clockOut(userID, date)
}

func (s *dailyLogStub) Range(ctx context.Context, userID, start, end string) ([]app.RangeEntry, error) {
	return s.rangeFn(userID, start, end)
}

type jobsStub struct {
	JobService
	list func(userID, facet string) ([]domain.JobPosting, error)
	get  func(id string) (*domain.JobPosting, error)
}

func (s *jobsStub) List(ctx context.Context, userID, facet string) ([]domain.JobPosting, error) {
	return s.list(userID, facet)
}

func (s *jobsStub) Get(ctx context.Context, id string) (*domain.JobPosting, error) {
	return s.get(id)
}

type testEnv struct {
	router      http.Handler
	handler     *Handler
	issuer      *app.TokenIssuer
	revocations *revocationStub
	users       *usersStub
	sessions    *app.SessionProvider
}

func newTestEnv(t *testing.T, svc Services, cfg RouterConfig) *testEnv {
	t.Helper()
	env := &testEnv{
		issuer:      app.NewTokenIssuer(testSecret, time.Hour),
		revocations: &revocationStub{revoked: map[string]bool{}},
		users:       &usersStub{users: map[string]*domain.User{}},
	}
	env.sessions = app.NewSessionProvider(env.users, env.revocations, time.Second, discardLogger)

	svc.Tokens = env.issuer
	svc.Revocations = env.revocations
	if svc.Sessions == nil {
		svc.Sessions = env.sessions
	}
	env.handler = NewHandler(svc, discardLogger)
	env.router = NewRouter(env.handler, cfg)
	return env
}

func (e *testEnv) token(t *testing.T, userID string) string {
	t.Helper()
	token, _, err := e.issuer.Issue(userID, "+919876543210")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func (e *testEnv) do(method, target, token, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return body.Error
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, Services{}, RouterConfig{})
	rec := env.do(http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestSendOTP(t *testing.T) {
	auth := &authStub{send: func(phone string) (string, error) {
		if phone == "+919999999999" {
			return "", &app.RateLimitError{RetryAfterSeconds: 42}
		}
		return "verification-1", nil
	}}
	env := newTestEnv(t, Services{Auth: auth}, RouterConfig{})

	rec := env.do(http.MethodPost, "/api/auth/send-otp", "", `{"phoneNumber":"9876543210"}`)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"verificationId":"verification-1"`) {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}

	rec = env.do(http.MethodPost, "/api/auth/send-otp", "", `{"phoneNumber":"+919999999999"}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "42" {
		t.Fatalf("expected Retry-After 42, got %q", got)
	}

	rec = env.do(http.MethodPost, "/api/auth/send-otp", "", `{}`)
	if rec.Code != http.StatusBadRequest || errorMessage(t, rec) != msgMissingParams {
		t.Fatalf("expected missing parameter error, got %d %s", rec.Code, rec.Body.String())
	}

	rec = env.do(http.MethodPost, "/api/auth/send-otp", "", `not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", rec.Code)
	}
}

func TestVerifyOTP(t *testing.T) {
	auth := &authStub{verify: func(id, code string) (*app.VerifyResult, error) {
		switch {
		case id == "expired":
			return nil, store.ErrChallengeNotFound
		case code != "123456":
			return nil, app.ErrInvalidOTP
		}
		return &app.VerifyResult{
			Token:     "signed-token",
			User:      &domain.User{ID: "u1", Status: domain.StatusUnregistered},
			IsNewUser: true,
		}, nil
	}}
	env := newTestEnv(t, Services{Auth: auth}, RouterConfig{})

	rec := env.do(http.MethodPost, "/api/auth/verify-otp", "", `{"verificationId":"v1","otp":"123456"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Success   bool         `json:"success"`
		Token     string       `json:"token"`
		IsNewUser bool         `json:"isNewUser"`
		User      *domain.User `json:"user"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Success || body.Token != "signed-token" || !body.IsNewUser || body.User == nil || body.User.ID != "u1" {
		t.Fatalf("unexpected body %+v", body)
	}

	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "wrong code", body: `{"verificationId":"v1","otp":"000000"}`, want: http.StatusUnauthorized},
		{name: "expired challenge", body: `{"verificationId":"expired","otp":"123456"}`, want: http.StatusBadRequest},
		{name: "missing otp", body: `{"verificationId":"v1"}`, want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(http.MethodPost, "/api/auth/verify-otp", "", tt.body)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestAuthMiddleware(t *testing.T) {
	env := newTestEnv(t, Services{}, RouterConfig{})
	env.users.set(&domain.User{ID: "u1", Status: domain.StatusLive})
	valid := env.token(t, "u1")

	revokedToken, revokedClaims, _ := env.issuer.Issue("u1", "")
	env.revocations.revoked[revokedClaims.ID] = true

	otherIssuer := app.NewTokenIssuer("ffffffffffffffffffffffffffffffff", time.Hour)
	forged, _, _ := otherIssuer.Issue("u1", "")

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "missing header", header: "", want: http.StatusUnauthorized},
		{name: "not bearer", header: "Basic abc", want: http.StatusUnauthorized},
		{name: "forged token", header: "Bearer " + forged, want: http.StatusUnauthorized},
		{name: "revoked token", header: "Bearer " + revokedToken, want: http.StatusUnauthorized},
		{name: "valid token", header: "Bearer " + valid, want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			env.router.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}

	env.revocations.err = errors.New("redis down")
	rec := env.do(http.MethodGet, "/api/session", valid, "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when revocations cannot be checked, got %d", rec.Code)
	}
}

func TestGetSessionResolvesStatus(t *testing.T) {
	env := newTestEnv(t, Services{}, RouterConfig{})
	env.users.set(&domain.User{ID: "u1", Status: domain.StatusRegistered})

	rec := env.do(http.MethodGet, "/api/session", env.token(t, "u1"), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var session app.Session
	if err := json.Unmarshal(rec.Body.Bytes(), &session); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !session.Authenticated || session.Loading || session.IsNewUser || session.Status.Status != domain.StatusRegistered {
		t.Fatalf("unexpected session %+v", session)
	}
}

func TestSignOutRevokesToken(t *testing.T) {
	env := newTestEnv(t, Services{}, RouterConfig{})
	env.users.set(&domain.User{ID: "u1", Status: domain.StatusLive})
	token := env.token(t, "u1")

	rec := env.do(http.MethodPost, "/api/auth/sign-out", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	rec = env.do(http.MethodGet, "/api/session", token, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected signed-out token to be rejected, got %d", rec.Code)
	}
}

func TestRouteDecisionEndpoint(t *testing.T) {
	env := newTestEnv(t, Services{}, RouterConfig{})
	env.users.set(&domain.User{ID: "live", Status: domain.StatusLive})
	env.users.set(&domain.User{ID: "busy", Status: domain.StatusLive, HasOngoingJob: true})
	env.users.set(&domain.User{ID: "new", Status: domain.StatusUnregistered})

	tests := []struct {
		name   string
		token  string
		path   string
		action app.RouteAction
		target string
	}{
		{name: "anonymous on protected page", path: "/jobs", action: app.RouteRedirect, target: app.PathSignIn},
		{name: "anonymous on sign-in", path: "/sign-in", action: app.RouteAllow},
		{name: "garbage token is anonymous", token: "garbage", path: "/daily-tasks", action: app.RouteRedirect, target: app.PathSignIn},
		{name: "unregistered sent to onboarding", token: env.token(t, "new"), path: "/jobs", action: app.RouteRedirect, target: app.PathOnboarding},
		{name: "live user leaves sign-in", token: env.token(t, "live"), path: "/sign-in", action: app.RouteRedirect, target: app.PathJobs},
		{name: "ongoing job lands on daily tasks", token: env.token(t, "busy"), path: "/onboarding", action: app.RouteRedirect, target: app.PathDailyTasks},
		{name: "live user on jobs", token: env.token(t, "live"), path: "/jobs", action: app.RouteAllow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(http.MethodGet, "/api/session/route?path="+tt.path, tt.token, "")
			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", rec.Code)
			}
			var got app.RouteDecision
			if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got.Action != tt.action || got.Target != tt.target {
				t.Fatalf("expected %s %q, got %+v", tt.action, tt.target, got)
			}
		})
	}

	rec := env.do(http.MethodGet, "/api/session/route", "", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without path, got %d", rec.Code)
	}
}

func TestAdvanceOnboarding(t *testing.T) {
	var gotStep domain.Step
	onboarding := &onboardingStub{advance: func(step domain.Step, slice domain.Slice) (*app.OnboardingProgress, error) {
		gotStep = step
		if err := slice.Validate(); err != nil {
			return nil, err
		}
		return &app.OnboardingProgress{Step: domain.StepEducation, Status: domain.StatusUnregistered}, nil
	}}
	env := newTestEnv(t, Services{Onboarding: onboarding}, RouterConfig{})
	token := env.token(t, "u1")

	rec := env.do(http.MethodPost, "/api/onboarding/wages", token, `{"lessThan5Hours":400,"hours12":700,"hours24":1000}`)
	if rec.Code != http.StatusOK || gotStep != domain.StepWages {
		t.Fatalf("unexpected response %d %s (step %s)", rec.Code, rec.Body.String(), gotStep)
	}
	if !strings.Contains(rec.Body.String(), `"step":"education"`) {
		t.Fatalf("expected next step in body, got %s", rec.Body.String())
	}

	rec = env.do(http.MethodPost, "/api/onboarding/wages", token, `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected validation failure to be 400, got %d", rec.Code)
	}

	rec = env.do(http.MethodPost, "/api/onboarding/payroll", token, `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected unknown step to be 400, got %d", rec.Code)
	}
}

func TestDailyTaskParameterChecks(t *testing.T) {
	daily := &dailyLogStub{get: func(userID, date string) (*domain.DailyTask, error) {
		task := domain.NewDailyTask()
		return &task, nil
	}}
	env := newTestEnv(t, Services{DailyLog: daily}, RouterConfig{})
	token := env.token(t, "u1")

	tests := []struct {
		name    string
		target  string
		want    int
		message string
	}{
		{name: "ok", target: "/api/daily-tasks?userId=u1&date=2024-03-05", want: http.StatusOK},
		{name: "missing date", target: "/api/daily-tasks?userId=u1", want: http.StatusBadRequest, message: msgMissingParams},
		{name: "missing user", target: "/api/daily-tasks?date=2024-03-05", want: http.StatusBadRequest, message: msgMissingParams},
		{name: "bad format", target: "/api/daily-tasks?userId=u1&date=05-03-2024", want: http.StatusBadRequest, message: "Invalid date format. Use YYYY-MM-DD"},
		{name: "not a calendar day", target: "/api/daily-tasks?userId=u1&date=2024-02-30", want: http.StatusBadRequest, message: "Invalid date format. Use YYYY-MM-DD"},
		{name: "someone else", target: "/api/daily-tasks?userId=u2&date=2024-03-05", want: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(http.MethodGet, tt.target, token, "")
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d %s", tt.want, rec.Code, rec.Body.String())
			}
			if tt.message != "" && errorMessage(t, rec) != tt.message {
				t.Fatalf("expected message %q, got %q", tt.message, errorMessage(t, rec))
			}
		})
	}
}

func TestPutDailyTask(t *testing.T) {
	var got map[string]json.RawMessage
	daily := &dailyLogStub{merge: func(userID, date string, fields map[string]json.RawMessage) (*domain.DailyTask, error) {
		if _, ok := fields["clockInTimes"]; ok {
			return nil, app.ErrUnknownField
		}
		got = fields
		task := domain.NewDailyTask()
		return &task, nil
	}}
	env := newTestEnv(t, Services{DailyLog: daily}, RouterConfig{})
	token := env.token(t, "u1")

	rec := env.do(http.MethodPut, "/api/daily-tasks", token, `{"userId":"u1","date":"2024-03-05","data":{"activities":["walk"]}}`)
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `{"success":true}` {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
	if string(got["activities"]) != `["walk"]` {
		t.Fatalf("unexpected fields %v", got)
	}

	rec = env.do(http.MethodPut, "/api/daily-tasks", token, `{"userId":"u1","date":"2024-03-05"}`)
	if rec.Code != http.StatusBadRequest || errorMessage(t, rec) != msgMissingParams {
		t.Fatalf("expected missing data to be rejected, got %d %s", rec.Code, rec.Body.String())
	}

	rec = env.do(http.MethodPut, "/api/daily-tasks", token, `{"userId":"u1","date":"2024-03-05","data":{"clockInTimes":[]}}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected non-editable field to be 400, got %d", rec.Code)
	}
}

func TestClockOutWithoutOpenShift(t *testing.T) {
	daily := &dailyLogStub{clockOut: func(userID, date string) (*domain.DailyTask, error) {
		return nil, app.ErrNoOpenShift
	}}
	env := newTestEnv(t, Services{DailyLog: daily}, RouterConfig{})

	rec := env.do(http.MethodPost, "/api/daily-tasks/2024-03-05/clock-out", env.token(t, "u1"), "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestTaskRange(t *testing.T) {
	daily := &dailyLogStub{rangeFn: func(userID, start, end string) ([]app.RangeEntry, error) {
		if start > end {
			return nil, app.ErrInvalidRange
		}
		task := domain.NewDailyTask()
		return []app.RangeEntry{{Date: start, Data: &task}, {Date: end}}, nil
	}}
	env := newTestEnv(t, Services{DailyLog: daily}, RouterConfig{})
	token := env.token(t, "u1")

	rec := env.do(http.MethodGet, "/api/tasks/range?userId=u1&startDate=2024-03-01&endDate=2024-03-02", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Success bool             `json:"success"`
		Data    []app.RangeEntry `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Success || len(body.Data) != 2 || body.Data[0].Data == nil || body.Data[1].Data != nil {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}

	rec = env.do(http.MethodGet, "/api/tasks/range?userId=u1&startDate=2024-03-05&endDate=2024-03-01", token, "")
	if rec.Code != http.StatusBadRequest || errorMessage(t, rec) != "startDate must be before endDate" {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
}

func TestListJobs(t *testing.T) {
	jobs := &jobsStub{list: func(userID, facet string) ([]domain.JobPosting, error) {
		if userID == "pending" {
			return nil, app.ErrNotApproved
		}
		return []domain.JobPosting{{ID: "j1", Status: domain.JobAvailable}}, nil
	}}
	env := newTestEnv(t, Services{Jobs: jobs}, RouterConfig{})

	rec := env.do(http.MethodPost, "/api/job", env.token(t, "live"), `{"userId":"live","status":"available"}`)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"jobs":[`) {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}

	rec = env.do(http.MethodPost, "/api/job", env.token(t, "pending"), `{"userId":"pending"}`)
	if rec.Code != http.StatusForbidden || errorMessage(t, rec) != app.ErrNotApproved.Error() {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "jobs") {
		t.Fatalf("no postings may be returned when not approved: %s", rec.Body.String())
	}
}

func TestGetJobNotFound(t *testing.T) {
	jobs := &jobsStub{get: func(id string) (*domain.JobPosting, error) {
		return nil, store.ErrJobNotFound
	}}
	env := newTestEnv(t, Services{Jobs: jobs}, RouterConfig{})

	rec := env.do(http.MethodGet, "/api/job/missing", env.token(t, "u1"), "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestStaffDetails(t *testing.T) {
	onboarding := &onboardingStub{staff: func(userID string) (*domain.User, error) {
		return nil, store.ErrUserNotFound
	}}
	env := newTestEnv(t, Services{Onboarding: onboarding}, RouterConfig{})

	rec := env.do(http.MethodGet, "/api/staff?userId=u1", env.token(t, "u1"), "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestSampleRoutesAreOptIn(t *testing.T) {
	env := newTestEnv(t, Services{}, RouterConfig{})
	rec := env.do(http.MethodPost, "/api/jobs/sample", env.token(t, "u1"), `{"count":3}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected sample route to be absent, got %d", rec.Code)
	}
}

func TestInternalErrorsHideDetail(t *testing.T) {
	jobs := &jobsStub{get: func(id string) (*domain.JobPosting, error) {
		return nil, errors.New("pq: connection refused to 10.0.0.3")
	}}
	env := newTestEnv(t, Services{Jobs: jobs}, RouterConfig{})

	rec := env.do(http.MethodGet, "/api/job/j1", env.token(t, "u1"), "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "10.0.0.3") {
		t.Fatalf("internal detail leaked: %s", rec.Body.String())
	}
}

func readEvent(t *testing.T, r *bufio.Reader) app.Session {
	t.Helper()
	var data string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read event: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		if line == "" && data != "" {
			break
		}
		if strings.HasPrefix(line, "data: ") {
			data = strings.TrimPrefix(line, "data: ")
		}
	}
	var s app.Session
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		t.Fatalf("decode event %q: %v", data, err)
	}
	return s
}

func TestSessionEventsStream(t *testing.T) {
	env := newTestEnv(t, Services{}, RouterConfig{})
	env.users.set(&domain.User{ID: "u1", Status: domain.StatusRegistered})

	server := httptest.NewServer(env.router)
	defer server.Close()

	req, _ := http.NewRequest(http.MethodGet, server.URL+"/api/session/events", nil)
	req.Header.Set("Authorization", "Bearer "+env.token(t, "u1"))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	if first := readEvent(t, reader); !first.Loading {
		t.Fatalf("expected a loading snapshot first, got %+v", first)
	}
	second := readEvent(t, reader)
	if second.Loading || !second.Authenticated || second.Status.Status != domain.StatusRegistered {
		t.Fatalf("unexpected resolved snapshot %+v", second)
	}

	env.users.set(&domain.User{ID: "u1", Status: domain.StatusLive})
	env.sessions.Notify(context.Background(), "u1")
	if third := readEvent(t, reader); third.Status == nil || third.Status.Status != domain.StatusLive {
		t.Fatalf("expected pushed update, got %+v", third)
	}
}

func TestShutdownClosesSessionStreams(t *testing.T) {
	env := newTestEnv(t, Services{}, RouterConfig{})
	env.users.set(&domain.User{ID: "u1", Status: domain.StatusRegistered})

	server := httptest.NewServer(env.router)
	defer server.Close()
	server.Config.RegisterOnShutdown(env.handler.CloseStreams)

	req, _ := http.NewRequest(http.MethodGet, server.URL+"/api/session/events", nil)
	req.Header.Set("Authorization", "Bearer "+env.token(t, "u1"))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	readEvent(t, reader)
	readEvent(t, reader)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := server.Config.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown waited on the open stream: %v", err)
	}
	if _, err := io.ReadAll(reader); err != nil {
		t.Fatalf("expected the stream to end cleanly, got %v", err)
	}
}
