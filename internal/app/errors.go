package app

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidPhone        = errors.New("a valid phone number is required")
	ErrInvalidOTP          = errors.New("invalid verification code")
	ErrTooManyAttempts     = errors.New("too many incorrect attempts; request a new code")
	ErrNotApproved         = errors.New("Your application is under verification. You can take jobs after you have been approved.")
	ErrOnboardingCompleted = errors.New("onboarding already completed")
	ErrNoOpenShift         = errors.New("no open clock-in to close")
	ErrShiftAlreadyOpen    = errors.New("already clocked in; clock out first")
	ErrInvalidRange        = errors.New("startDate must be before endDate")
	ErrUnknownField        = errors.New("field cannot be written")
	ErrInvalidMood         = errors.New("unknown mood")
)

// RateLimitError is returned when a caller exceeds a request budget.
type RateLimitError struct {
	RetryAfterSeconds int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("too many requests; retry in %ds", e.RetryAfterSeconds)
}

// InputError reports a request value that failed validation.
type InputError struct {
	Field   string
	Message string
}

func (e *InputError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}
