package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"hackathon-bot/internal/apperr"
	"hackathon-bot/internal/logger"
	"hackathon-bot/internal/models"
	"hackathon-bot/internal/storage"
)

const (
	CodeLength          = 6
	defaultCodeAttempts = 10
)

// CodeGenerator produces candidate join codes.
type CodeGenerator func() (string, error)

// RandomCode returns a uniformly random six digit code.
func RandomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

var errCodeTaken = errors.New("team code taken")

type Teams struct {
	store    storage.Store
	log      *logger.Logger
	codes    CodeGenerator
	attempts int
}

func NewTeams(store storage.Store, log *logger.Logger, codes CodeGenerator) *Teams {
	if codes == nil {
		codes = RandomCode
	}
	return &Teams{store: store, log: log, codes: codes, attempts: defaultCodeAttempts}
}

type NewTeam struct {
	HackathonID uuid.UUID
	OwnerID     uuid.UUID
	Name        string
	Role        models.TeamRole
	Field       string
	Portfolio   string
}

// Create inserts the team and the owner's lead membership in one
// transaction. Codes are regenerated until no active team holds them; the
// partial unique index on active codes backs the check against races.
func (s *Teams) Create(ctx context.Context, in NewTeam) (*models.Team, error) {
	if in.Role == "" {
		in.Role = models.RoleProjectManager
	}
	for attempt := 0; attempt < s.attempts; attempt++ {
		code, err := s.codes()
		if err != nil {
			return nil, apperr.Internal("generate team code", err)
		}
		team, err := s.create(ctx, in, code)
		if errors.Is(err, errCodeTaken) || errors.Is(err, storage.ErrDuplicate) {
			s.log.Debug("team code collision", zap.String("code", code), zap.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			return nil, apperr.Wrap("create team", err)
		}
		s.log.ForTeam(team.ID).Info("team created",
			zap.String("hackathon_id", in.HackathonID.String()),
			zap.String("code", team.Code))
		return team, nil
	}
	return nil, apperr.Conflict(apperr.CodeCodeExhausted, "could not allocate a unique team code")
}

func (s *Teams) create(ctx context.Context, in NewTeam, code string) (*models.Team, error) {
	var team *models.Team
	err := s.store.InTx(ctx, func(r storage.Repository) error {
		owner, err := r.GetUser(ctx, in.OwnerID)
		if err != nil {
			return err
		}
		if owner == nil {
			return apperr.NotFound(apperr.CodeUserNotFound, "team owner not found")
		}
		h, err := r.GetHackathon(ctx, in.HackathonID)
		if err != nil {
			return err
		}
		if h == nil {
			return apperr.NotFound(apperr.CodeHackathonNotFound, "hackathon not found")
		}
		existing, err := r.UserTeamInHackathon(ctx, in.OwnerID, in.HackathonID)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperr.Conflict(apperr.CodeAlreadyRegistered, "user already has a team in this hackathon")
		}
		taken, err := r.ActiveCodeExists(ctx, code)
		if err != nil {
			return err
		}
		if taken {
			return errCodeTaken
		}
		t := &models.Team{
			HackathonID:   in.HackathonID,
			Name:          in.Name,
			Code:          code,
			OwnerID:       in.OwnerID,
			Field:         in.Field,
			PortfolioLink: in.Portfolio,
			IsActive:      true,
		}
		if err := r.CreateTeam(ctx, t); err != nil {
			return err
		}
		lead := &models.Membership{TeamID: t.ID, UserID: in.OwnerID, Role: in.Role, IsLead: true}
		if err := r.AddMember(ctx, lead); err != nil {
			return err
		}
		audit(ctx, r, s.log, in.OwnerID, ActionTeamCreated, map[string]any{"team_id": t.ID.String(), "code": code})
		team = t
		return nil
	})
	return team, err
}

// Join adds userID to the active team holding code. Checks run in the order
// team exists, team not full, user not already in a team of that hackathon.
func (s *Teams) Join(ctx context.Context, code string, userID uuid.UUID, role models.TeamRole) (*models.Team, error) {
	var team *models.Team
	err := s.store.InTx(ctx, func(r storage.Repository) error {
		t, err := r.GetActiveTeamByCode(ctx, code)
		if err != nil {
			return err
		}
		if t == nil {
			return apperr.NotFound(apperr.CodeTeamNotFound, "no active team with this code")
		}
		if err := r.LockTeam(ctx, t.ID); err != nil {
			return err
		}
		n, err := r.CountMembers(ctx, t.ID)
		if err != nil {
			return err
		}
		if n >= models.MaxTeamSize {
			return apperr.Capacity(apperr.CodeTeamFull, "team is full")
		}
		u, err := r.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if u == nil {
			return apperr.NotFound(apperr.CodeUserNotFound, "user not found")
		}
		existing, err := r.UserTeamInHackathon(ctx, userID, t.HackathonID)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperr.Conflict(apperr.CodeAlreadyRegistered, "user already has a team in this hackathon")
		}
		m := &models.Membership{TeamID: t.ID, UserID: userID, Role: role}
		if err := r.AddMember(ctx, m); err != nil {
			if errors.Is(err, storage.ErrDuplicate) {
				return apperr.Conflict(apperr.CodeAlreadyRegistered, "user already in this team")
			}
			return err
		}
		audit(ctx, r, s.log, userID, ActionTeamJoined, map[string]any{"team_id": t.ID.String(), "role": string(role)})
		team = t
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap("join team", err)
	}
	return team, nil
}

// RemoveMember deletes a non-lead membership. It reports false when the user
// is not a member or is the lead; leads leave through Leave.
func (s *Teams) RemoveMember(ctx context.Context, teamID, userID uuid.UUID) (bool, error) {
	var removed bool
	err := s.store.InTx(ctx, func(r storage.Repository) error {
		m, err := r.GetMembership(ctx, teamID, userID)
		if err != nil || m == nil || m.IsLead {
			return err
		}
		if err := r.DeleteMembership(ctx, teamID, userID); err != nil {
			return err
		}
		audit(ctx, r, s.log, userID, ActionMemberRemoved, map[string]any{"team_id": teamID.String()})
		removed = true
		return nil
	})
	if err != nil {
		return false, apperr.Wrap("remove member", err)
	}
	return removed, nil
}

// RemoveMemberAs is RemoveMember restricted to the team lead.
func (s *Teams) RemoveMemberAs(ctx context.Context, actorID, teamID, userID uuid.UUID) (bool, error) {
	m, err := s.store.GetMembership(ctx, teamID, actorID)
	if err != nil {
		return false, apperr.Wrap("load membership", err)
	}
	if m == nil || !m.IsLead {
		return false, apperr.Permission(apperr.CodeNotTeamLead, "only the team lead can remove members")
	}
	return s.RemoveMember(ctx, teamID, userID)
}

type LeaveResult struct {
	Deactivated bool
}

// Leave removes userID from the team. When the lead leaves the team is
// deactivated and every membership row is kept.
func (s *Teams) Leave(ctx context.Context, teamID, userID uuid.UUID) (LeaveResult, error) {
	var res LeaveResult
	err := s.store.InTx(ctx, func(r storage.Repository) error {
		t, err := r.GetTeam(ctx, teamID)
		if err != nil {
			return err
		}
		if t == nil || !t.IsActive {
			return apperr.NotFound(apperr.CodeTeamNotFound, "team not found")
		}
		m, err := r.GetMembership(ctx, teamID, userID)
		if err != nil {
			return err
		}
		if m == nil {
			return apperr.NotFound(apperr.CodeNotMember, "not a member of this team")
		}
		if m.IsLead {
			// TODO: decide with organizers whether remaining members should be notified or get a new lead.
			if err := r.SetTeamActive(ctx, teamID, false); err != nil {
				return err
			}
			res.Deactivated = true
		} else if err := r.DeleteMembership(ctx, teamID, userID); err != nil {
			return err
		}
		audit(ctx, r, s.log, userID, ActionTeamLeft, map[string]any{"team_id": teamID.String(), "deactivated": res.Deactivated})
		return nil
	})
	if err != nil {
		return LeaveResult{}, apperr.Wrap("leave team", err)
	}
	return res, nil
}

func (s *Teams) Get(ctx context.Context, id uuid.UUID) (*models.Team, error) {
	t, err := s.store.GetTeam(ctx, id)
	if err != nil {
		return nil, apperr.Wrap("load team", err)
	}
	if t == nil {
		return nil, apperr.NotFound(apperr.CodeTeamNotFound, "team not found")
	}
	return t, nil
}

// ByCode returns the active team holding code.
func (s *Teams) ByCode(ctx context.Context, code string) (*models.Team, error) {
	t, err := s.store.GetActiveTeamByCode(ctx, code)
	if err != nil {
		return nil, apperr.Wrap("load team", err)
	}
	if t == nil {
		return nil, apperr.NotFound(apperr.CodeTeamNotFound, "no active team with this code")
	}
	return t, nil
}

func (s *Teams) Members(ctx context.Context, teamID uuid.UUID) ([]models.Member, error) {
	ms, err := s.store.ListMembers(ctx, teamID)
	if err != nil {
		return nil, apperr.Wrap("list members", err)
	}
	return ms, nil
}

// Membership returns the user's membership in the team or a not_member error.
func (s *Teams) Membership(ctx context.Context, teamID, userID uuid.UUID) (*models.Membership, error) {
	m, err := s.store.GetMembership(ctx, teamID, userID)
	if err != nil {
		return nil, apperr.Wrap("load membership", err)
	}
	if m == nil {
		return nil, apperr.NotFound(apperr.CodeNotMember, "not a member of this team")
	}
	return m, nil
}

func (s *Teams) ForUser(ctx context.Context, userID uuid.UUID) ([]models.UserTeam, error) {
	ts, err := s.store.ListUserTeams(ctx, userID)
	if err != nil {
		return nil, apperr.Wrap("list user teams", err)
	}
	return ts, nil
}

// InHackathon returns the user's active team in the hackathon, or nil.
func (s *Teams) InHackathon(ctx context.Context, userID, hackathonID uuid.UUID) (*models.Team, error) {
	t, err := s.store.UserTeamInHackathon(ctx, userID, hackathonID)
	if err != nil {
		return nil, apperr.Wrap("load user team", err)
	}
	return t, nil
}
