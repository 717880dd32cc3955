package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/vishwadoshi-19/zense-staff/internal/domain"
	"github.com/vishwadoshi-19/zense-staff/internal/store"
)

// StatusAdvancer moves a user's lifecycle forward.
type StatusAdvancer interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
	AdvanceStatus(ctx context.Context, id string, to domain.Lifecycle) (bool, error)
}

// ApprovalHandler consumes staff approvals issued by the admin side.
type ApprovalHandler struct {
	users    StatusAdvancer
	notifier SessionNotifier
	logger   *slog.Logger
}

func NewApprovalHandler(users StatusAdvancer, notifier SessionNotifier, logger *slog.Logger) *ApprovalHandler {
	return &ApprovalHandler{users: users, notifier: notifier, logger: logger}
}

// HandleStaffApproved applies one approval message. It returns false only
// when the message should be redelivered.
func (h *ApprovalHandler) HandleStaffApproved(ctx context.Context, body []byte) bool {
	var event domain.StaffApprovedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		h.logger.Error("dropping malformed approval", "error", err)
		return true
	}
	event.UserID = strings.TrimSpace(event.UserID)
	if event.UserID == "" {
		h.logger.Error("dropping approval without user id")
		return true
	}

	user, err := h.users.GetUser(ctx, event.UserID)
	if errors.Is(err, store.ErrUserNotFound) {
		h.logger.Warn("approval for unknown user", "user_id", event.UserID)
		return true
	}
	if err != nil {
		h.logger.Error("failed to load approved user", "user_id", event.UserID, "error", err)
		return false
	}
	if user.Status != domain.StatusRegistered {
		h.logger.Info("approval ignored", "user_id", event.UserID, "status", user.Status)
		return true
	}

	changed, err := h.users.AdvanceStatus(ctx, event.UserID, domain.StatusLive)
	if err != nil {
		h.logger.Error("failed to approve user", "user_id", event.UserID, "error", err)
		return false
	}
	if changed {
		h.logger.Info("staff approved", "user_id", event.UserID, "approved_by", event.ApprovedBy)
		if h.notifier != nil {
			h.notifier.Notify(ctx, event.UserID)
		}
	}
	return true
}
