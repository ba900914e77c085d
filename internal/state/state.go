// Package state holds the per-user conversation record: the current step
// token plus a typed accumulator for the flow being run.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"hackathon-bot/internal/models"
)

type Flow string

const (
	FlowRegistration   Flow = "registration"
	FlowTeamCreate     Flow = "team_create"
	FlowTeamJoin       Flow = "team_join"
	FlowEditProfile    Flow = "edit_profile"
	FlowSubmission     Flow = "submission"
	FlowAdminHackathon Flow = "admin_hackathon"
	FlowAdminStage     Flow = "admin_stage"
	FlowAdminBroadcast Flow = "admin_broadcast"
)

// Payload is the flow-specific accumulator. Each flow has exactly one
// implementation.
type Payload interface {
	Flow() Flow
}

// Registration commits each field as soon as it is validated, so nothing
// accumulates here.
type Registration struct{}

type TeamCreate struct {
	HackathonID uuid.UUID       `json:"hackathon_id"`
	Name        string          `json:"name,omitempty"`
	Role        models.TeamRole `json:"role,omitempty"`
	Field       string          `json:"field,omitempty"`
}

type TeamJoin struct {
	HackathonID uuid.UUID `json:"hackathon_id,omitempty"`
	TeamID      uuid.UUID `json:"team_id,omitempty"`
	Code        string    `json:"code,omitempty"`
}

type EditProfile struct {
	Field string `json:"field"`
}

type Submission struct {
	TeamID  uuid.UUID             `json:"team_id"`
	StageID uuid.UUID             `json:"stage_id"`
	Kind    models.SubmissionType `json:"kind,omitempty"`
}

type AdminHackathon struct {
	Name        string     `json:"name,omitempty"`
	NameRu      string     `json:"name_ru,omitempty"`
	NameEn      string     `json:"name_en,omitempty"`
	Description string     `json:"description,omitempty"`
	Prize       string     `json:"prize,omitempty"`
	StartsAt    *time.Time `json:"starts_at,omitempty"`
	EndsAt      *time.Time `json:"ends_at,omitempty"`
	RegDeadline *time.Time `json:"registration_deadline,omitempty"`
}

type AdminStage struct {
	HackathonID uuid.UUID `json:"hackathon_id,omitempty"`
	Number      int       `json:"number,omitempty"`
	Name        string    `json:"name,omitempty"`
	NameRu      string    `json:"name_ru,omitempty"`
	NameEn      string    `json:"name_en,omitempty"`
	Task        string    `json:"task,omitempty"`
	TaskRu      string    `json:"task_ru,omitempty"`
	TaskEn      string    `json:"task_en,omitempty"`
}

// AdminBroadcast targets every consented user when HackathonID is nil.
type AdminBroadcast struct {
	HackathonID uuid.UUID `json:"hackathon_id,omitempty"`
}

func (Registration) Flow() Flow   { return FlowRegistration }
func (TeamCreate) Flow() Flow     { return FlowTeamCreate }
func (TeamJoin) Flow() Flow       { return FlowTeamJoin }
func (EditProfile) Flow() Flow    { return FlowEditProfile }
func (Submission) Flow() Flow     { return FlowSubmission }
func (AdminHackathon) Flow() Flow { return FlowAdminHackathon }
func (AdminStage) Flow() Flow     { return FlowAdminStage }
func (AdminBroadcast) Flow() Flow { return FlowAdminBroadcast }

// State is the persisted conversation record of one user.
type State struct {
	TelegramID int64
	Step       string
	Data       Payload
	UpdatedAt  time.Time
}

func (s State) Flow() Flow {
	if s.Data == nil {
		return ""
	}
	return s.Data.Flow()
}

// Store persists at most one State per user. Get returns (nil, nil) when the
// user has no state or the state has expired.
type Store interface {
	Get(ctx context.Context, tgID int64) (*State, error)
	Put(ctx context.Context, st State) error
	Delete(ctx context.Context, tgID int64) error
}

// Reaper is implemented by stores that need an explicit sweep to drop
// expired records.
type Reaper interface {
	Reap(ctx context.Context, olderThan time.Time) (int64, error)
}

// ErrCorrupt is returned by Get when a stored record cannot be decoded, e.g.
// a flow that no longer exists. Callers should drop the record.
var ErrCorrupt = errors.New("conversation state is corrupt")

type envelope struct {
	Flow Flow            `json:"flow"`
	Data json.RawMessage `json:"data"`
}

// EncodePayload serializes p together with its flow tag.
func EncodePayload(p Payload) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("encode payload: nil payload")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", p.Flow(), err)
	}
	return json.Marshal(envelope{Flow: p.Flow(), Data: data})
}

// DecodePayload is the inverse of EncodePayload.
func DecodePayload(b []byte) (Payload, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("%w: payload envelope: %v", ErrCorrupt, err)
	}
	p, err := decodeFlow(env.Flow, env.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s payload: %v", ErrCorrupt, env.Flow, err)
	}
	return p, nil
}

func decodeFlow(flow Flow, data json.RawMessage) (Payload, error) {
	switch flow {
	case FlowRegistration:
		return into[Registration](data)
	case FlowTeamCreate:
		return into[TeamCreate](data)
	case FlowTeamJoin:
		return into[TeamJoin](data)
	case FlowEditProfile:
		return into[EditProfile](data)
	case FlowSubmission:
		return into[Submission](data)
	case FlowAdminHackathon:
		return into[AdminHackathon](data)
	case FlowAdminStage:
		return into[AdminStage](data)
	case FlowAdminBroadcast:
		return into[AdminBroadcast](data)
	}
	return nil, fmt.Errorf("unknown flow %q", flow)
}

func into[T Payload](data json.RawMessage) (Payload, error) {
	var v T
	if len(data) > 0 {
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// record is the wire form used by key-value backends.
type record struct {
	Step      string          `json:"step"`
	Payload   json.RawMessage `json:"payload"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func marshalState(st State) ([]byte, error) {
	p, err := EncodePayload(st.Data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(record{Step: st.Step, Payload: p, UpdatedAt: st.UpdatedAt})
}

func unmarshalState(tgID int64, b []byte) (*State, error) {
	var rec record
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("%w: state record: %v", ErrCorrupt, err)
	}
	p, err := DecodePayload(rec.Payload)
	if err != nil {
		return nil, err
	}
	return &State{TelegramID: tgID, Step: rec.Step, Data: p, UpdatedAt: rec.UpdatedAt}, nil
}
