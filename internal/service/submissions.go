package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"hackathon-bot/internal/apperr"
	"hackathon-bot/internal/logger"
	"hackathon-bot/internal/models"
	"hackathon-bot/internal/storage"
)

// Submissions is a pure upsert keyed by (team, stage). Deadline policy
// belongs to the caller.
type Submissions struct {
	store storage.Store
	log   *logger.Logger
}

func NewSubmissions(store storage.Store, log *logger.Logger) *Submissions {
	return &Submissions{store: store, log: log}
}

// Payload is either a link or a file reference.
type Payload struct {
	Type      models.SubmissionType
	URL       string
	FileID    string
	FileName  string
	MediaKind models.MediaKind
}

func LinkPayload(url string) Payload {
	return Payload{Type: models.SubmissionLink, URL: url}
}

func FilePayload(fileID, fileName string, kind models.MediaKind) Payload {
	return Payload{Type: models.SubmissionFile, FileID: fileID, FileName: fileName, MediaKind: kind}
}

func (s *Submissions) Submit(ctx context.Context, teamID, stageID, submitterID uuid.UUID, p Payload) (*models.Submission, error) {
	sub := &models.Submission{
		TeamID:      teamID,
		StageID:     stageID,
		Type:        p.Type,
		SubmittedBy: submitterID,
	}
	switch p.Type {
	case models.SubmissionLink:
		sub.Content = p.URL
	case models.SubmissionFile:
		sub.Content = p.FileName
		sub.FileID = p.FileID
		sub.FileName = p.FileName
		sub.MediaKind = p.MediaKind
	default:
		return nil, apperr.Validation(apperr.CodeInvalidChoice, "unknown submission type")
	}
	if err := s.store.UpsertSubmission(ctx, sub); err != nil {
		return nil, apperr.Wrap("save submission", err)
	}
	audit(ctx, s.store, s.log, submitterID, ActionSubmitted, map[string]any{
		"team_id": teamID.String(), "stage_id": stageID.String(), "type": string(p.Type),
	})
	s.log.ForTeam(teamID).ForStage(stageID).Info("submission saved", zap.String("type", string(p.Type)))
	return sub, nil
}

// Get returns the team's submission for the stage, or nil.
func (s *Submissions) Get(ctx context.Context, teamID, stageID uuid.UUID) (*models.Submission, error) {
	sub, err := s.store.GetSubmission(ctx, teamID, stageID)
	if err != nil {
		return nil, apperr.Wrap("load submission", err)
	}
	return sub, nil
}

// ForStage lists a stage's submissions, newest first.
func (s *Submissions) ForStage(ctx context.Context, stageID uuid.UUID) ([]models.Submission, error) {
	subs, err := s.store.ListStageSubmissions(ctx, stageID)
	if err != nil {
		return nil, apperr.Wrap("list stage submissions", err)
	}
	return subs, nil
}

// All lists every submission joined with team, stage and hackathon names,
// newest first.
func (s *Submissions) All(ctx context.Context) ([]models.SubmissionRecord, error) {
	subs, err := s.store.ListSubmissions(ctx)
	if err != nil {
		return nil, apperr.Wrap("list submissions", err)
	}
	return subs, nil
}
