package domain

import "time"

// Routing keys for lifecycle events on the events exchange.
const (
	RoutingKeyUserCreated    = "user.created"
	RoutingKeyUserRegistered = "user.registered"
	RoutingKeyStaffApproved  = "staff.approved"
)

// UserCreatedEvent is published after the first OTP verification for a phone number.
type UserCreatedEvent struct {
	UserID    string    `json:"user_id"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

// UserRegisteredEvent is published when a staff member finishes onboarding.
type UserRegisteredEvent struct {
	UserID     string    `json:"user_id"`
	Name       string    `json:"name"`
	ProviderID string    `json:"provider_id"`
	JobRole    string    `json:"job_role,omitempty"`
	Registered time.Time `json:"registered_at"`
}

// StaffApprovedEvent is consumed from the vetting process and moves a staff member to live.
type StaffApprovedEvent struct {
	UserID     string `json:"user_id"`
	ApprovedBy string `json:"approved_by,omitempty"`
}
