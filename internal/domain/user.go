package domain

import (
	"strings"
	"time"
)

// Role is the account role carried on a user record.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleProvider Role = "provider"
	RoleStaff    Role = "staff"
	RoleAdmin    Role = "admin"
)

// Lifecycle is the onboarding/vetting status of a staff identity.
type Lifecycle string

const (
	StatusUnregistered Lifecycle = "unregistered"
	StatusRegistered   Lifecycle = "registered"
	StatusLive         Lifecycle = "live"
)

// Rank orders lifecycle values. Unknown values rank below unregistered.
func (l Lifecycle) Rank() int {
	switch l {
	case StatusUnregistered:
		return 1
	case StatusRegistered:
		return 2
	case StatusLive:
		return 3
	default:
		return 0
	}
}

// Valid reports whether l is one of the known lifecycle values.
func (l Lifecycle) Valid() bool {
	return l.Rank() > 0
}

// CanAdvanceTo reports whether moving from l to next keeps the lifecycle monotonic.
// Staying in place is allowed.
func (l Lifecycle) CanAdvanceTo(next Lifecycle) bool {
	if !next.Valid() {
		return false
	}
	return next.Rank() >= l.Rank()
}

// Active reports whether the identity has finished onboarding.
func (l Lifecycle) Active() bool {
	return l == StatusRegistered || l == StatusLive
}

// User is the status record kept per identity.
type User struct {
	ID            string    `json:"id"`
	Phone         string    `json:"phone"`
	Name          string    `json:"name,omitempty"`
	ProfilePhoto  string    `json:"profilePhoto,omitempty"`
	Location      string    `json:"location,omitempty"`
	Gender        string    `json:"gender,omitempty"`
	Role          Role      `json:"role"`
	Status        Lifecycle `json:"status"`
	LastStep      Step      `json:"lastStep,omitempty"`
	ProviderID    string    `json:"providerId,omitempty"`
	HasOngoingJob bool      `json:"hasOngoingJob"`
	Profile       Profile   `json:"profile,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Profile holds the extended onboarding fields stored alongside the user record.
type Profile map[string]interface{}

// NormalizePhone strips formatting from a phone number and prefixes bare
// ten-digit numbers with the +91 country code.
func NormalizePhone(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	var digits strings.Builder
	for _, r := range trimmed {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()

	switch {
	case len(d) == 10:
		return "+91" + d
	case len(d) == 11 && strings.HasPrefix(d, "0"):
		return "+91" + d[1:]
	case len(d) == 12 && strings.HasPrefix(d, "91"):
		return "+" + d
	case strings.HasPrefix(trimmed, "+") && len(d) >= 8 && len(d) <= 15:
		return "+" + d
	default:
		return ""
	}
}
