package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"hackathon-bot/internal/apperr"
	"hackathon-bot/internal/logger"
	"hackathon-bot/internal/models"
	"hackathon-bot/internal/storage"
)

// Hackathons manages hackathons, their stages and stage activation.
type Hackathons struct {
	store storage.Store
	log   *logger.Logger
}

func NewHackathons(store storage.Store, log *logger.Logger) *Hackathons {
	return &Hackathons{store: store, log: log}
}

type NewHackathon struct {
	Name                 models.Localized
	Description          models.Localized
	PrizePool            models.Localized
	StartsAt             *time.Time
	EndsAt               *time.Time
	RegistrationDeadline *time.Time
	Status               models.HackathonStatus
	CreatedBy            uuid.UUID
}

func (s *Hackathons) Create(ctx context.Context, in NewHackathon) (*models.Hackathon, error) {
	if in.Name.Default == "" {
		return nil, apperr.Validation(apperr.CodeEmptyInput, "hackathon name is empty")
	}
	if in.StartsAt != nil && in.EndsAt != nil && in.EndsAt.Before(*in.StartsAt) {
		return nil, apperr.Validation(apperr.CodeInvalidDate, "hackathon ends before it starts")
	}
	status := in.Status
	if status == "" {
		status = models.StatusOpen
	}
	h := &models.Hackathon{
		Name:                 in.Name,
		Description:          in.Description,
		PrizePool:            in.PrizePool,
		StartsAt:             in.StartsAt,
		EndsAt:               in.EndsAt,
		RegistrationDeadline: in.RegistrationDeadline,
		Status:               status,
		IsActive:             true,
	}
	if err := s.store.CreateHackathon(ctx, h); err != nil {
		return nil, apperr.Wrap("create hackathon", err)
	}
	audit(ctx, s.store, s.log, in.CreatedBy, ActionHackathonCreated, map[string]any{"hackathon_id": h.ID.String()})
	s.log.Info("hackathon created", zap.String("hackathon_id", h.ID.String()), zap.String("name", h.Name.Default))
	return h, nil
}

func (s *Hackathons) Get(ctx context.Context, id uuid.UUID) (*models.Hackathon, error) {
	h, err := s.store.GetHackathon(ctx, id)
	if err != nil {
		return nil, apperr.Wrap("load hackathon", err)
	}
	if h == nil {
		return nil, apperr.NotFound(apperr.CodeHackathonNotFound, "hackathon not found")
	}
	return h, nil
}

func (s *Hackathons) List(ctx context.Context) ([]models.Hackathon, error) {
	hs, err := s.store.ListHackathons(ctx)
	if err != nil {
		return nil, apperr.Wrap("list hackathons", err)
	}
	return hs, nil
}

// Visible lists hackathons participants may register for.
func (s *Hackathons) Visible(ctx context.Context) ([]models.Hackathon, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0:0]
	for _, h := range all {
		if h.IsActive && h.Status.Visible() {
			out = append(out, h)
		}
	}
	return out, nil
}

// SetStatus moves a hackathon forward through its lifecycle.
func (s *Hackathons) SetStatus(ctx context.Context, id uuid.UUID, to models.HackathonStatus, by uuid.UUID) (*models.Hackathon, error) {
	h, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !h.Status.CanTransition(to) {
		return nil, apperr.Validation(apperr.CodeInvalidStatus, fmt.Sprintf("cannot move from %s to %s", h.Status, to))
	}
	if err := s.store.UpdateHackathonStatus(ctx, id, to); err != nil {
		return nil, apperr.Wrap("update hackathon status", err)
	}
	audit(ctx, s.store, s.log, by, ActionHackathonStatus, map[string]any{
		"hackathon_id": id.String(), "from": string(h.Status), "to": string(to),
	})
	h.Status = to
	return h, nil
}

type NewStage struct {
	HackathonID uuid.UUID
	Number      int
	Name        models.Localized
	Description models.Localized
	Task        models.Localized
	StartsAt    *time.Time
	Deadline    time.Time
	CreatedBy   uuid.UUID
}

func (s *Hackathons) CreateStage(ctx context.Context, in NewStage) (*models.Stage, error) {
	if in.Number < 1 {
		return nil, apperr.Validation(apperr.CodeInvalidNumber, "stage number must be positive")
	}
	if in.Deadline.IsZero() {
		return nil, apperr.Validation(apperr.CodeInvalidDateTime, "stage deadline is required")
	}
	if _, err := s.Get(ctx, in.HackathonID); err != nil {
		return nil, err
	}
	st := &models.Stage{
		HackathonID: in.HackathonID,
		Number:      in.Number,
		Name:        in.Name,
		Description: in.Description,
		Task:        in.Task,
		StartsAt:    in.StartsAt,
		Deadline:    in.Deadline,
	}
	if err := s.store.CreateStage(ctx, st); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return nil, apperr.Validation(apperr.CodeInvalidNumber, "stage number already used")
		}
		return nil, apperr.Wrap("create stage", err)
	}
	audit(ctx, s.store, s.log, in.CreatedBy, ActionStageCreated, map[string]any{
		"stage_id": st.ID.String(), "hackathon_id": in.HackathonID.String(), "number": in.Number,
	})
	return st, nil
}

func (s *Hackathons) Stage(ctx context.Context, id uuid.UUID) (*models.Stage, error) {
	st, err := s.store.GetStage(ctx, id)
	if err != nil {
		return nil, apperr.Wrap("load stage", err)
	}
	if st == nil {
		return nil, apperr.NotFound(apperr.CodeStageNotFound, "stage not found")
	}
	return st, nil
}

func (s *Hackathons) Stages(ctx context.Context, hackathonID uuid.UUID) ([]models.Stage, error) {
	sts, err := s.store.ListStages(ctx, hackathonID)
	if err != nil {
		return nil, apperr.Wrap("list stages", err)
	}
	return sts, nil
}

// ActiveStage returns the active stage of a hackathon, or nil.
func (s *Hackathons) ActiveStage(ctx context.Context, hackathonID uuid.UUID) (*models.Stage, error) {
	sts, err := s.Stages(ctx, hackathonID)
	if err != nil {
		return nil, err
	}
	for i := range sts {
		if sts[i].IsActive {
			return &sts[i], nil
		}
	}
	return nil, nil
}

// Activate makes stageID the only active stage of its hackathon. It reports
// false when the stage does not exist.
func (s *Hackathons) Activate(ctx context.Context, stageID uuid.UUID, by uuid.UUID) (bool, error) {
	var found bool
	err := s.store.InTx(ctx, func(r storage.Repository) error {
		st, err := r.GetStage(ctx, stageID)
		if err != nil || st == nil {
			return err
		}
		if err := r.DeactivateStages(ctx, st.HackathonID); err != nil {
			return err
		}
		if err := r.SetStageActive(ctx, stageID, true); err != nil {
			return err
		}
		audit(ctx, r, s.log, by, ActionStageActivated, map[string]any{
			"stage_id": stageID.String(), "hackathon_id": st.HackathonID.String(),
		})
		found = true
		return nil
	})
	if err != nil {
		return false, apperr.Wrap("activate stage", err)
	}
	if found {
		s.log.ForStage(stageID).Info("stage activated")
	}
	return found, nil
}
