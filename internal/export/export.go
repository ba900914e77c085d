// Package export builds the read-only tabular projections used by the CSV
// download, the signed export links and the spreadsheet mirror.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"hackathon-bot/internal/models"
	"hackathon-bot/internal/util"
)

type Kind string

const (
	KindUsers       Kind = "users"
	KindTeams       Kind = "teams"
	KindMembers     Kind = "members"
	KindSubmissions Kind = "submissions"
)

var Kinds = []Kind{KindUsers, KindTeams, KindMembers, KindSubmissions}

func ParseKind(s string) (Kind, bool) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// Source is the subset of the store the projections read.
type Source interface {
	ListUsers(ctx context.Context) ([]models.User, error)
	ListTeams(ctx context.Context) ([]models.TeamRecord, error)
	ListAllMembers(ctx context.Context) ([]models.MemberRecord, error)
	ListSubmissions(ctx context.Context) ([]models.SubmissionRecord, error)
}

// Table is a header plus string rows.
type Table struct {
	Kind   Kind
	Header []string
	Rows   [][]string
}

// Builder produces one projection table.
type Builder interface {
	Build(ctx context.Context, kind Kind) (Table, error)
}

type Exporter struct {
	src Source
	loc *time.Location
}

func New(src Source, loc *time.Location) *Exporter {
	if loc == nil {
		loc = time.UTC
	}
	return &Exporter{src: src, loc: loc}
}

func (e *Exporter) Build(ctx context.Context, kind Kind) (Table, error) {
	switch kind {
	case KindUsers:
		return e.users(ctx)
	case KindTeams:
		return e.teams(ctx)
	case KindMembers:
		return e.members(ctx)
	case KindSubmissions:
		return e.submissions(ctx)
	}
	return Table{}, fmt.Errorf("unknown export kind %q", kind)
}

func (e *Exporter) users(ctx context.Context) (Table, error) {
	us, err := e.src.ListUsers(ctx)
	if err != nil {
		return Table{}, fmt.Errorf("list users: %w", err)
	}
	t := Table{Kind: KindUsers, Header: []string{
		"telegram_id", "username", "first_name", "last_name", "birth_date", "gender", "location",
		"phone", "email", "pinfl", "language", "consent", "consent_at", "registered", "active", "created_at",
	}}
	for _, u := range us {
		t.Rows = append(t.Rows, []string{
			strconv.FormatInt(u.TelegramID, 10), u.Username, u.FirstName, u.LastName,
			util.FormatDate(u.BirthDate), string(u.Gender), u.Location, u.Phone, u.Email, u.PINFL,
			string(u.Language), yesNo(u.ConsentGiven), util.ISO(u.ConsentGivenAt),
			yesNo(u.RegistrationOK), yesNo(u.IsActive), e.at(u.CreatedAt),
		})
	}
	return t, nil
}

func (e *Exporter) teams(ctx context.Context) (Table, error) {
	ts, err := e.src.ListTeams(ctx)
	if err != nil {
		return Table{}, fmt.Errorf("list teams: %w", err)
	}
	t := Table{Kind: KindTeams, Header: []string{
		"hackathon", "team", "code", "field", "portfolio", "owner_telegram_id", "members", "active", "created_at",
	}}
	for _, r := range ts {
		t.Rows = append(t.Rows, []string{
			r.HackathonName, r.Name, r.Code, r.Field, r.PortfolioLink,
			strconv.FormatInt(r.OwnerTGID, 10), strconv.Itoa(r.MemberCount), yesNo(r.IsActive), e.at(r.CreatedAt),
		})
	}
	return t, nil
}

func (e *Exporter) members(ctx context.Context) (Table, error) {
	ms, err := e.src.ListAllMembers(ctx)
	if err != nil {
		return Table{}, fmt.Errorf("list members: %w", err)
	}
	t := Table{Kind: KindMembers, Header: []string{
		"team", "code", "telegram_id", "name", "username", "phone", "role", "lead", "joined_at",
	}}
	for _, m := range ms {
		t.Rows = append(t.Rows, []string{
			m.TeamName, m.TeamCode, strconv.FormatInt(m.TelegramID, 10), m.FullName(), m.Username,
			m.Phone, string(m.Role), yesNo(m.IsLead), e.at(m.JoinedAt),
		})
	}
	return t, nil
}

func (e *Exporter) submissions(ctx context.Context) (Table, error) {
	ss, err := e.src.ListSubmissions(ctx)
	if err != nil {
		return Table{}, fmt.Errorf("list submissions: %w", err)
	}
	t := Table{Kind: KindSubmissions, Header: []string{
		"hackathon", "team", "code", "stage", "stage_name", "type", "content", "file_id", "media_kind", "submitted_at",
	}}
	for _, s := range ss {
		t.Rows = append(t.Rows, []string{
			s.HackathonName, s.TeamName, s.TeamCode, strconv.Itoa(s.StageNumber), s.StageName,
			string(s.Type), s.Content, s.FileID, string(s.MediaKind), e.at(s.SubmittedAt),
		})
	}
	return t, nil
}

func (e *Exporter) at(t time.Time) string {
	return util.FormatDateTime(t, e.loc)
}

// Values returns the table as spreadsheet rows, header first.
func (t Table) Values() [][]interface{} {
	out := make([][]interface{}, 0, len(t.Rows)+1)
	out = append(out, cells(t.Header))
	for _, r := range t.Rows {
		out = append(out, cells(r))
	}
	return out
}

func cells(r []string) []interface{} {
	out := make([]interface{}, len(r))
	for i, v := range r {
		out[i] = v
	}
	return out
}

// WriteCSV writes t with a UTF-8 byte order mark so spreadsheet tools
// detect the encoding of Cyrillic and Uzbek text.
func WriteCSV(w io.Writer, t Table) error {
	if _, err := io.WriteString(w, "\uFEFF"); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return err
	}
	return cw.Error()
}

// FileName is the download name for a table built at now.
func FileName(kind Kind, now time.Time) string {
	return fmt.Sprintf("%s_%s.csv", kind, now.Format("20060102_1504"))
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
