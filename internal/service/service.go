// Package service holds the domain operations. Every service receives its
// storage.Store and logger at construction; store failures are converted to
// apperr internal errors here so callers only see classified errors.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"hackathon-bot/internal/logger"
	"hackathon-bot/internal/storage"
)

// Clock returns the current time. Tests substitute a fixed clock.
type Clock func() time.Time

// Audit actions.
const (
	ActionConsent          = "consent_decision"
	ActionRegistered       = "registration_completed"
	ActionTeamCreated      = "team_created"
	ActionTeamJoined       = "team_joined"
	ActionTeamLeft         = "team_left"
	ActionMemberRemoved    = "team_member_removed"
	ActionSubmitted        = "submission"
	ActionStageActivated   = "stage_activated"
	ActionHackathonStatus  = "hackathon_status"
	ActionAdminChanged     = "admin_changed"
	ActionBroadcastSent    = "broadcast"
	ActionHackathonCreated = "hackathon_created"
	ActionStageCreated     = "stage_created"
)

// audit records an action. Failures are logged and never fail the caller.
func audit(ctx context.Context, r storage.Repository, log *logger.Logger, userID uuid.UUID, action string, details map[string]any) {
	var uid *uuid.UUID
	if userID != uuid.Nil {
		uid = &userID
	}
	if err := r.LogAction(ctx, storage.AuditEntry{UserID: uid, Action: action, Details: details}); err != nil {
		log.Warn("audit log write failed", zap.String("action", action), zap.Error(err))
	}
}
