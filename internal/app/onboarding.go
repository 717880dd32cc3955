package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vishwadoshi-19/zense-staff/internal/domain"
	"github.com/vishwadoshi-19/zense-staff/internal/store"
)

// OnboardingStore persists wizard progress onto the status record.
type OnboardingStore interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
	ApplyUserPatch(ctx context.Context, id string, patch domain.UserPatch) error
	CompleteOnboarding(ctx context.Context, user *domain.User, patch domain.UserPatch, exchange, routingKey string, payload interface{}) (*domain.User, error)
}

// OnboardingProgress is the wizard position plus the accumulated answers.
type OnboardingProgress struct {
	Step   domain.Step      `json:"step"`
	Form   domain.FormState `json:"form"`
	Status domain.Lifecycle `json:"status"`
}

// OnboardingService drives the registration wizard.
type OnboardingService struct {
	store    OnboardingStore
	notifier SessionNotifier
	exchange string
	logger   *slog.Logger
}

func NewOnboardingService(store OnboardingStore, notifier SessionNotifier, exchange string, logger *slog.Logger) *OnboardingService {
	return &OnboardingService{store: store, notifier: notifier, exchange: exchange, logger: logger}
}

func (s *OnboardingService) loadUser(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.store.GetUser(ctx, id)
	if errors.Is(err, store.ErrUserNotFound) {
		return nil, nil
	}
	return user, err
}

// Progress returns where identity should resume and the answers collected so far.
func (s *OnboardingService) Progress(ctx context.Context, identity Identity) (*OnboardingProgress, error) {
	user, err := s.loadUser(ctx, identity.UserID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	return progressFor(user, domain.FormStateFromUser(user), domain.ResumeStep(user)), nil
}

func progressFor(user *domain.User, form domain.FormState, step domain.Step) *OnboardingProgress {
	status := domain.StatusUnregistered
	if user != nil {
		status = user.Status
	}
	form.LastStep = step
	return &OnboardingProgress{Step: step, Form: form, Status: status}
}

// Advance validates and persists one step. The wizard moves on only after the
// write succeeds. Submitting the last data step registers the identity.
func (s *OnboardingService) Advance(ctx context.Context, identity Identity, step domain.Step, slice domain.Slice) (*OnboardingProgress, error) {
	if slice == nil || slice.Step() != step {
		return nil, &InputError{Field: "step", Message: "payload does not match step"}
	}
	if err := slice.Validate(); err != nil {
		return nil, err
	}

	user, err := s.loadUser(ctx, identity.UserID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user != nil && user.Status.Active() {
		return nil, ErrOnboardingCompleted
	}

	resume := domain.ResumeStep(user)
	// With no record on file only the final step may run; it creates one.
	if resume.Before(step) && (user != nil || !step.Final()) {
		return nil, &InputError{Field: "step", Message: fmt.Sprintf("complete %s first", resume)}
	}

	next, _ := step.Next()
	form := domain.FormStateFromUser(user).Apply(slice)
	// Revisiting an earlier page does not move the resume point backwards.
	if resume.Before(next) {
		form.LastStep = next
	} else {
		form.LastStep = resume
	}
	patch := form.Patch()

	if !step.Final() {
		if user == nil {
			return nil, fmt.Errorf("save %s: %w", step, store.ErrUserNotFound)
		}
		if err := s.store.ApplyUserPatch(ctx, identity.UserID, patch); err != nil {
			return nil, fmt.Errorf("save %s: %w", step, err)
		}
		user.LastStep = form.LastStep
		return progressFor(user, form, form.LastStep), nil
	}

	subject := &domain.User{ID: identity.UserID, Phone: identity.Phone}
	if user != nil {
		subject = user
	}
	event := domain.UserRegisteredEvent{
		UserID:     identity.UserID,
		Name:       stringOr(patch.Name, subject.Name),
		ProviderID: stringOr(patch.ProviderID, domain.DefaultAgency),
		Registered: time.Now().UTC(),
	}
	if form.Skills != nil {
		event.JobRole = form.Skills.JobRole
	}

	registered, err := s.store.CompleteOnboarding(ctx, subject, patch, s.exchange, domain.RoutingKeyUserRegistered, event)
	if err != nil {
		return nil, fmt.Errorf("complete onboarding: %w", err)
	}
	s.logger.Info("staff registered", "user_id", registered.ID, "provider_id", registered.ProviderID)

	if s.notifier != nil {
		s.notifier.Notify(ctx, registered.ID)
	}
	return progressFor(registered, domain.FormStateFromUser(registered), domain.StepCompleted), nil
}

// StaffDetails returns the stored record of a staff member attached to an agency.
func (s *OnboardingService) StaffDetails(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.ProviderID == "" {
		return nil, store.ErrUserNotFound
	}
	return user, nil
}

func stringOr(v *string, fallback string) string {
	if v != nil && *v != "" {
		return *v
	}
	return fallback
}
