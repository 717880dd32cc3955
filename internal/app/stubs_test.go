package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/vishwadoshi-19/zense-staff/internal/domain"
	"github.com/vishwadoshi-19/zense-staff/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type queuedEvent struct {
	exchange   string
	routingKey string
	payload    interface{}
}

// usersStub is an in-memory user repository.
type usersStub struct {
	mu          sync.Mutex
	byID        map[string]*domain.User
	getErr      error
	patchErr    error
	completeErr error
	createErr   error
	onCreate    func(byID map[string]*domain.User)
	touched     []string
	events      []queuedEvent
}

func newUsersStub(users ...*domain.User) *usersStub {
	s := &usersStub{byID: map[string]*domain.User{}}
	for _, u := range users {
		s.byID[u.ID] = u
	}
	return s
}

func cloneUser(u *domain.User) *domain.User {
	c := *u
	c.Profile = domain.Profile{}
	for k, v := range u.Profile {
		c.Profile[k] = v
	}
	return &c
}

func (s *usersStub) GetUser(ctx context.Context, id string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	u, ok := s.byID[id]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (s *usersStub) GetUserByPhone(ctx context.Context, phone string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.byID {
		if u.Phone == phone {
			return cloneUser(u), nil
		}
	}
	return nil, store.ErrUserNotFound
}

func (s *usersStub) CreateUserAndEnqueueEvent(ctx context.Context, user *domain.User, exchange, routingKey string, payload interface{}) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.onCreate != nil {
		s.onCreate(s.byID)
	}
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.byID[user.ID] = cloneUser(user)
	s.events = append(s.events, queuedEvent{exchange, routingKey, payload})
	return cloneUser(user), nil
}

func (s *usersStub) TouchUser(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched = append(s.touched, id)
	return nil
}

func (s *usersStub) applyPatch(u *domain.User, patch domain.UserPatch) {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&u.Name, patch.Name)
	set(&u.Location, patch.Location)
	set(&u.Gender, patch.Gender)
	set(&u.ProfilePhoto, patch.ProfilePhoto)
	set(&u.ProviderID, patch.ProviderID)
	if patch.LastStep != "" {
		u.LastStep = patch.LastStep
	}
	if u.Profile == nil {
		u.Profile = domain.Profile{}
	}
	for k, v := range patch.Profile {
		u.Profile[k] = v
	}
}

func (s *usersStub) ApplyUserPatch(ctx context.Context, id string, patch domain.UserPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.patchErr != nil {
		return s.patchErr
	}
	u, ok := s.byID[id]
	if !ok {
		return store.ErrUserNotFound
	}
	s.applyPatch(u, patch)
	return nil
}

func (s *usersStub) CompleteOnboarding(ctx context.Context, user *domain.User, patch domain.UserPatch, exchange, routingKey string, payload interface{}) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.completeErr != nil {
		return nil, s.completeErr
	}
	u, ok := s.byID[user.ID]
	if !ok {
		u = &domain.User{ID: user.ID, Phone: user.Phone, Role: domain.RoleStaff, Status: domain.StatusUnregistered}
		s.byID[user.ID] = u
	}
	s.applyPatch(u, patch)
	if u.Status.CanAdvanceTo(domain.StatusRegistered) {
		u.Status = domain.StatusRegistered
	}
	s.events = append(s.events, queuedEvent{exchange, routingKey, payload})
	return cloneUser(u), nil
}

func (s *usersStub) AdvanceStatus(ctx context.Context, id string, to domain.Lifecycle) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return false, store.ErrUserNotFound
	}
	if u.Status.Rank() >= to.Rank() {
		return false, nil
	}
	u.Status = to
	return true, nil
}

func (s *usersStub) status(id string) domain.Lifecycle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.byID[id]; ok {
		return u.Status
	}
	return ""
}

// notifierStub records Notify calls.
type notifierStub struct {
	mu      sync.Mutex
	userIDs []string
}

func (n *notifierStub) Notify(ctx context.Context, userID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.userIDs = append(n.userIDs, userID)
}

func (n *notifierStub) calls() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.userIDs...)
}

// dailyStub is an in-memory daily task store keyed by user and date.
type dailyStub struct {
	mu       sync.Mutex
	records  map[string]*domain.DailyTask
	mergeErr error
}

func newDailyStub() *dailyStub {
	return &dailyStub{records: map[string]*domain.DailyTask{}}
}

func dailyKey(userID string, date time.Time) string {
	return userID + "/" + domain.DateKey(date)
}

func (s *dailyStub) load(key string) *domain.DailyTask {
	task, ok := s.records[key]
	if !ok {
		fresh := domain.NewDailyTask()
		task = &fresh
		s.records[key] = task
	}
	return task
}

func copyTask(t *domain.DailyTask) *domain.DailyTask {
	raw, _ := json.Marshal(t)
	var out domain.DailyTask
	_ = json.Unmarshal(raw, &out)
	out.Normalize()
	return &out
}

func (s *dailyStub) GetOrCreateDailyTask(ctx context.Context, userID string, date time.Time) (*domain.DailyTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyTask(s.load(dailyKey(userID, date))), nil
}

func (s *dailyStub) MergeDailyTaskFields(ctx context.Context, userID string, date time.Time, fields map[string]json.RawMessage) (*domain.DailyTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mergeErr != nil {
		return nil, s.mergeErr
	}
	task := s.load(dailyKey(userID, date))
	doc := map[string]json.RawMessage{}
	raw, _ := json.Marshal(task)
	_ = json.Unmarshal(raw, &doc)
	for k, v := range fields {
		doc[k] = v
	}
	merged, _ := json.Marshal(doc)
	var out domain.DailyTask
	if err := json.Unmarshal(merged, &out); err != nil {
		return nil, err
	}
	out.Normalize()
	s.records[dailyKey(userID, date)] = &out
	return copyTask(&out), nil
}

func (s *dailyStub) UpdateDailyTask(ctx context.Context, userID string, date time.Time, fn func(*domain.DailyTask) error) (*domain.DailyTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	working := copyTask(s.load(dailyKey(userID, date)))
	if err := fn(working); err != nil {
		return nil, err
	}
	working.Normalize()
	s.records[dailyKey(userID, date)] = working
	return copyTask(working), nil
}

func (s *dailyStub) ListDailyTasks(ctx context.Context, userID string, start, end time.Time) (map[string]domain.DailyTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]domain.DailyTask{}
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if task, ok := s.records[dailyKey(userID, d)]; ok {
			out[domain.DateKey(d)] = *copyTask(task)
		}
	}
	return out, nil
}
