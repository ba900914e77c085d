package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"hackathon-bot/internal/apperr"
	"hackathon-bot/internal/logger"
	"hackathon-bot/internal/models"
	"hackathon-bot/internal/storage"
)

type Users struct {
	store          storage.Store
	log            *logger.Logger
	adminIDs       map[int64]bool
	consentVersion string
	now            Clock
}

func NewUsers(store storage.Store, log *logger.Logger, adminIDs map[int64]bool, consentVersion string, now Clock) *Users {
	if adminIDs == nil {
		adminIDs = map[int64]bool{}
	}
	return &Users{store: store, log: log, adminIDs: adminIDs, consentVersion: consentVersion, now: now}
}

// Profile is what the transport knows about a user on first contact.
type Profile struct {
	TelegramID int64
	Username   string
	FirstName  string
	LastName   string
	Language   models.Language
}

// Ensure returns the user for p.TelegramID, creating it on first contact.
// created reports whether a new row was inserted.
func (s *Users) Ensure(ctx context.Context, p Profile) (u *models.User, created bool, err error) {
	u, err = s.store.GetUserByTelegramID(ctx, p.TelegramID)
	if err != nil {
		return nil, false, apperr.Wrap("load user", err)
	}
	if u != nil {
		if p.Username != "" && p.Username != u.Username {
			username := p.Username
			if err := s.store.UpdateUser(ctx, u.ID, models.UserUpdate{Username: &username}); err != nil {
				s.log.ForUser(p.TelegramID).WithError(err).Warn("username refresh failed")
			} else {
				u.Username = username
			}
		}
		return u, false, nil
	}
	lang := p.Language
	if lang == "" {
		lang = models.LangUz
	}
	u = &models.User{
		TelegramID: p.TelegramID,
		Username:   p.Username,
		FirstName:  p.FirstName,
		LastName:   p.LastName,
		Language:   lang,
		IsAdmin:    s.adminIDs[p.TelegramID],
		IsActive:   true,
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			// Lost a race with a concurrent first message.
			existing, gerr := s.store.GetUserByTelegramID(ctx, p.TelegramID)
			if gerr == nil && existing != nil {
				return existing, false, nil
			}
		}
		return nil, false, apperr.Wrap("create user", err)
	}
	s.log.ForUser(p.TelegramID).Info("user created", zap.String("language", string(lang)))
	return u, true, nil
}

// ByTelegramID fails with user_not_found when the user never wrote to the bot.
func (s *Users) ByTelegramID(ctx context.Context, tgID int64) (*models.User, error) {
	u, err := s.store.GetUserByTelegramID(ctx, tgID)
	if err != nil {
		return nil, apperr.Wrap("load user", err)
	}
	if u == nil {
		return nil, apperr.NotFound(apperr.CodeUserNotFound, "user not found")
	}
	return u, nil
}

// Update applies the supplied profile fields.
func (s *Users) Update(ctx context.Context, u *models.User, upd models.UserUpdate) error {
	if err := s.store.UpdateUser(ctx, u.ID, upd); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.NotFound(apperr.CodeUserNotFound, "user not found")
		}
		return apperr.Wrap("update user", err)
	}
	upd.Apply(u)
	return nil
}

func (s *Users) SetLanguage(ctx context.Context, u *models.User, lang models.Language) error {
	return s.Update(ctx, u, models.UserUpdate{Language: &lang})
}

// SetConsent records the decision. Declining also soft-deactivates the user.
func (s *Users) SetConsent(ctx context.Context, u *models.User, agree bool) error {
	at := s.now()
	err := s.store.InTx(ctx, func(r storage.Repository) error {
		if err := r.SetConsent(ctx, u.ID, agree, s.consentVersion, at); err != nil {
			return err
		}
		active := agree
		if err := r.UpdateUser(ctx, u.ID, models.UserUpdate{IsActive: &active}); err != nil {
			return err
		}
		audit(ctx, r, s.log, u.ID, ActionConsent, map[string]any{"consented": agree, "version": s.consentVersion})
		return nil
	})
	if err != nil {
		return apperr.Wrap("set consent", err)
	}
	u.ConsentGiven = agree
	u.ConsentVersion = s.consentVersion
	u.IsActive = agree
	u.ConsentGivenAt = nil
	if agree {
		u.ConsentGivenAt = &at
	}
	return nil
}

// RequireConsent fails with consent_required unless the user has agreed.
func RequireConsent(u *models.User) error {
	if u == nil || !u.ConsentGiven || !u.IsActive {
		return apperr.Permission(apperr.CodeConsentRequired, "consent required")
	}
	return nil
}

// CompleteRegistration marks the profile complete.
func (s *Users) CompleteRegistration(ctx context.Context, u *models.User) error {
	ok := true
	if err := s.Update(ctx, u, models.UserUpdate{RegistrationOK: &ok}); err != nil {
		return err
	}
	audit(ctx, s.store, s.log, u.ID, ActionRegistered, nil)
	return nil
}

// IsAdmin honours both the configured admin list and the stored flag.
func (s *Users) IsAdmin(ctx context.Context, tgID int64) bool {
	if s.adminIDs[tgID] {
		return true
	}
	u, err := s.store.GetUserByTelegramID(ctx, tgID)
	if err != nil {
		s.log.ForUser(tgID).WithError(err).Warn("admin lookup failed")
		return false
	}
	return u != nil && u.IsAdmin
}

// RequireAdmin fails with a permission error for non-admins.
func (s *Users) RequireAdmin(ctx context.Context, tgID int64) error {
	if !s.IsAdmin(ctx, tgID) {
		return apperr.Permission(apperr.CodeAdminOnly, "admin only")
	}
	return nil
}

// SetAdmin grants or revokes the stored admin flag of another user.
func (s *Users) SetAdmin(ctx context.Context, actorTGID, targetTGID int64, admin bool) error {
	if err := s.RequireAdmin(ctx, actorTGID); err != nil {
		return err
	}
	target, err := s.ByTelegramID(ctx, targetTGID)
	if err != nil {
		return err
	}
	if err := s.Update(ctx, target, models.UserUpdate{IsAdmin: &admin}); err != nil {
		return err
	}
	audit(ctx, s.store, s.log, target.ID, ActionAdminChanged, map[string]any{"admin": admin, "by": actorTGID})
	return nil
}

func (s *Users) Stats(ctx context.Context) (models.Stats, error) {
	st, err := s.store.Stats(ctx)
	if err != nil {
		return models.Stats{}, apperr.Wrap("load stats", err)
	}
	return st, nil
}
