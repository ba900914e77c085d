package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const MaxTeamSize = 5

type Language string

const (
	LangUz Language = "uz"
	LangRu Language = "ru"
	LangEn Language = "en"
)

var Languages = []Language{LangUz, LangRu, LangEn}

// ParseLanguage falls back to uz for anything unknown.
func ParseLanguage(s string) Language {
	switch Language(strings.ToLower(strings.TrimSpace(s))) {
	case LangRu:
		return LangRu
	case LangEn:
		return LangEn
	default:
		return LangUz
	}
}

type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

type HackathonStatus string

const (
	StatusDraft    HackathonStatus = "DRAFT"
	StatusOpen     HackathonStatus = "OPEN_TO_REGISTRATION"
	StatusActive   HackathonStatus = "ACTIVE"
	StatusFinished HackathonStatus = "FINISHED"
	StatusArchived HackathonStatus = "ARCHIVED"
)

var statusOrder = []HackathonStatus{StatusDraft, StatusOpen, StatusActive, StatusFinished, StatusArchived}

func ParseHackathonStatus(s string) (HackathonStatus, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for _, st := range statusOrder {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

func (s HackathonStatus) rank() int {
	for i, st := range statusOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// CanTransition allows forward moves only.
func (s HackathonStatus) CanTransition(to HackathonStatus) bool {
	from, next := s.rank(), to.rank()
	return from >= 0 && next > from
}

// Visible reports whether participants can see and join the hackathon.
func (s HackathonStatus) Visible() bool {
	return s == StatusOpen || s == StatusActive
}

type TeamRole string

const (
	RoleBackend        TeamRole = "BACKEND"
	RoleFrontend       TeamRole = "FRONTEND"
	RoleDesigner       TeamRole = "DESIGNER"
	RoleProjectManager TeamRole = "PROJECT_MANAGER"
)

var TeamRoles = []TeamRole{RoleBackend, RoleFrontend, RoleDesigner, RoleProjectManager}

func ParseTeamRole(s string) (TeamRole, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "_")
	for _, r := range TeamRoles {
		if string(r) == s {
			return r, true
		}
	}
	return "", false
}

type SubmissionType string

const (
	SubmissionLink SubmissionType = "link"
	SubmissionFile SubmissionType = "file"
)

type MediaKind string

const (
	MediaImage    MediaKind = "image"
	MediaVideo    MediaKind = "video"
	MediaAudio    MediaKind = "audio"
	MediaDocument MediaKind = "document"
	MediaFile     MediaKind = "file"
)

type User struct {
	ID             uuid.UUID
	TelegramID     int64
	Username       string
	FirstName      string
	LastName       string
	BirthDate      *time.Time
	Gender         Gender
	Location       string
	Phone          string
	Email          string
	PINFL          string
	Language       Language
	ConsentGiven   bool
	ConsentGivenAt *time.Time
	ConsentVersion string
	RegistrationOK bool
	IsAdmin        bool
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// UserUpdate lists the profile fields a caller may change. Nil fields are left untouched.
type UserUpdate struct {
	Username       *string
	FirstName      *string
	LastName       *string
	BirthDate      *time.Time
	Gender         *Gender
	Location       *string
	Phone          *string
	Email          *string
	PINFL          *string
	Language       *Language
	RegistrationOK *bool
	IsAdmin        *bool
	IsActive       *bool
}

func (u UserUpdate) Empty() bool {
	return u == UserUpdate{}
}

// Apply copies the supplied fields onto user.
func (u UserUpdate) Apply(user *User) {
	if u.Username != nil {
		user.Username = *u.Username
	}
	if u.FirstName != nil {
		user.FirstName = *u.FirstName
	}
	if u.LastName != nil {
		user.LastName = *u.LastName
	}
	if u.BirthDate != nil {
		d := *u.BirthDate
		user.BirthDate = &d
	}
	if u.Gender != nil {
		user.Gender = *u.Gender
	}
	if u.Location != nil {
		user.Location = *u.Location
	}
	if u.Phone != nil {
		user.Phone = *u.Phone
	}
	if u.Email != nil {
		user.Email = *u.Email
	}
	if u.PINFL != nil {
		user.PINFL = *u.PINFL
	}
	if u.Language != nil {
		user.Language = *u.Language
	}
	if u.RegistrationOK != nil {
		user.RegistrationOK = *u.RegistrationOK
	}
	if u.IsAdmin != nil {
		user.IsAdmin = *u.IsAdmin
	}
	if u.IsActive != nil {
		user.IsActive = *u.IsActive
	}
}

// Localized holds optional ru/en variants next to the default (uz) text.
type Localized struct {
	Default string
	Ru      string
	En      string
}

// In returns the variant for lang, falling back to the default text.
func (l Localized) In(lang Language) string {
	switch lang {
	case LangRu:
		if l.Ru != "" {
			return l.Ru
		}
	case LangEn:
		if l.En != "" {
			return l.En
		}
	}
	return l.Default
}

type Hackathon struct {
	ID                   uuid.UUID
	Name                 Localized
	Description          Localized
	PrizePool            Localized
	StartsAt             *time.Time
	EndsAt               *time.Time
	RegistrationDeadline *time.Time
	Status               HackathonStatus
	IsActive             bool
	CreatedAt            time.Time
}

type Stage struct {
	ID          uuid.UUID
	HackathonID uuid.UUID
	Number      int
	Name        Localized
	Description Localized
	Task        Localized
	StartsAt    *time.Time
	Deadline    time.Time
	IsActive    bool
	CreatedAt   time.Time
}

// Open reports whether submissions are accepted at now.
func (s Stage) Open(now time.Time) bool {
	return now.Before(s.Deadline)
}

type Team struct {
	ID            uuid.UUID
	HackathonID   uuid.UUID
	Name          string
	Code          string
	OwnerID       uuid.UUID
	Field         string
	PortfolioLink string
	IsActive      bool
	CreatedAt     time.Time
}

type Membership struct {
	ID       uuid.UUID
	TeamID   uuid.UUID
	UserID   uuid.UUID
	Role     TeamRole
	IsLead   bool
	JoinedAt time.Time
}

// Member is a membership joined with the member's profile.
type Member struct {
	Membership
	TelegramID int64
	FirstName  string
	LastName   string
	Username   string
	Phone      string
}

func (m Member) FullName() string {
	return strings.TrimSpace(m.FirstName + " " + m.LastName)
}

// UserTeam is a team seen from one member's perspective.
type UserTeam struct {
	Team
	HackathonName string
	Role          TeamRole
	IsLead        bool
}

type Submission struct {
	ID          uuid.UUID
	TeamID      uuid.UUID
	StageID     uuid.UUID
	Type        SubmissionType
	Content     string
	FileID      string
	FileName    string
	MediaKind   MediaKind
	SubmittedBy uuid.UUID
	SubmittedAt time.Time
}

// SubmissionRecord is a submission joined with its team, stage and hackathon names.
type SubmissionRecord struct {
	Submission
	TeamName      string
	TeamCode      string
	StageNumber   int
	StageName     string
	HackathonName string
}

// TeamRecord is a team joined with hackathon name and member count.
type TeamRecord struct {
	Team
	HackathonName string
	OwnerTGID     int64
	MemberCount   int
}

// MemberRecord is one membership row for export.
type MemberRecord struct {
	Member
	TeamName string
	TeamCode string
}

type Stats struct {
	TotalUsers       int
	ConsentedUsers   int
	ActiveTeams      int
	ActiveHackathons int
	Submissions      int
}
