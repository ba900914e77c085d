package conversation

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"hackathon-bot/internal/apperr"
	"hackathon-bot/internal/models"
	"hackathon-bot/internal/service"
	"hackathon-bot/internal/state"
	"hackathon-bot/internal/validate"
)

// done is returned by a handler when its flow is complete.
const done = ""

// Profile fields editable through FlowEditProfile.
const (
	FieldFirstName = "first_name"
	FieldLastName  = "last_name"
	FieldBirthDate = "birth_date"
	FieldGender    = "gender"
	FieldLocation  = "location"
	FieldPhone     = "phone"
	FieldEmail     = "email"
	FieldPINFL     = "pinfl"
)

var ProfileFields = []string{
	FieldFirstName, FieldLastName, FieldBirthDate, FieldGender,
	FieldLocation, FieldPhone, FieldEmail, FieldPINFL,
}

type handler func(ctx context.Context, t *turn, in Input) (next string, err error)

type step struct {
	prompt    string
	promptFor func(*state.State) string
	choices   func(context.Context, *state.State) ([]Choice, error)
	contact   bool
	optional  bool
	handle    handler
}

type flow struct {
	first    string
	admin    bool
	finished string
	enter    func(ctx context.Context, t *turn) error
	steps    map[string]*step
}

// turn is the working set of a single Begin or Advance call.
type turn struct {
	user *models.User
	st   *state.State
	res  *Result
}

func (e *Engine) buildFlows() map[state.Flow]*flow {
	return map[state.Flow]*flow{
		state.FlowRegistration:   e.registrationFlow(),
		state.FlowEditProfile:    e.editProfileFlow(),
		state.FlowTeamCreate:     e.teamCreateFlow(),
		state.FlowTeamJoin:       e.teamJoinFlow(),
		state.FlowSubmission:     e.submissionFlow(),
		state.FlowAdminHackathon: e.adminHackathonFlow(),
		state.FlowAdminStage:     e.adminStageFlow(),
		state.FlowAdminBroadcast: e.adminBroadcastFlow(),
	}
}

func (e *Engine) registrationFlow() *flow {
	return &flow{
		first:    FieldFirstName,
		finished: "reg.done",
		steps: map[string]*step{
			FieldFirstName: {prompt: "reg.first_name", handle: e.profileStep(FieldFirstName, FieldLastName)},
			FieldLastName:  {prompt: "reg.last_name", handle: e.profileStep(FieldLastName, FieldBirthDate)},
			FieldBirthDate: {prompt: "reg.birth_date", handle: e.profileStep(FieldBirthDate, FieldGender)},
			FieldGender:    {prompt: "reg.gender", choices: fixedChoices(genderChoices), handle: e.profileStep(FieldGender, FieldLocation)},
			FieldLocation:  {prompt: "reg.location", handle: e.profileStep(FieldLocation, FieldPhone)},
			FieldPhone:     {prompt: "reg.phone", contact: true, handle: e.profileStep(FieldPhone, FieldEmail)},
			FieldEmail:     {prompt: "reg.email", optional: true, handle: e.profileStep(FieldEmail, FieldPINFL)},
			FieldPINFL: {prompt: "reg.pinfl", handle: then(e.profileStep(FieldPINFL, done), func(ctx context.Context, t *turn) error {
				return e.users.CompleteRegistration(ctx, t.user)
			})},
		},
	}
}

func (e *Engine) editProfileFlow() *flow {
	return &flow{
		first:    "value",
		finished: "profile.updated",
		enter: func(_ context.Context, t *turn) error {
			field := t.st.Data.(state.EditProfile).Field
			for _, f := range ProfileFields {
				if f == field {
					return nil
				}
			}
			return apperr.Validation(apperr.CodeInvalidChoice, "unknown profile field")
		},
		steps: map[string]*step{
			"value": {
				promptFor: func(st *state.State) string { return "reg." + st.Data.(state.EditProfile).Field },
				choices: func(_ context.Context, st *state.State) ([]Choice, error) {
					if st.Data.(state.EditProfile).Field == FieldGender {
						return genderChoices, nil
					}
					return nil, nil
				},
				handle: func(ctx context.Context, t *turn, in Input) (string, error) {
					return e.profileStep(t.st.Data.(state.EditProfile).Field, done)(ctx, t, in)
				},
			},
		},
	}
}

// profileStep validates one profile field and commits it immediately, so
// an abandoned registration keeps what was already entered.
func (e *Engine) profileStep(field, next string) handler {
	return func(ctx context.Context, t *turn, in Input) (string, error) {
		upd, err := e.parseField(field, in)
		if err != nil {
			return "", err
		}
		if !upd.Empty() {
			if err := e.users.Update(ctx, t.user, upd); err != nil {
				return "", err
			}
		}
		return next, nil
	}
}

func (e *Engine) parseField(field string, in Input) (models.UserUpdate, error) {
	var upd models.UserUpdate
	if field == FieldEmail && skipped(in) {
		return upd, nil
	}
	s, err := textOf(in)
	if err != nil {
		return upd, err
	}
	switch field {
	case FieldFirstName, FieldLastName:
		v, err := validate.Name(s)
		if err != nil {
			return upd, err
		}
		if field == FieldFirstName {
			upd.FirstName = &v
		} else {
			upd.LastName = &v
		}
	case FieldBirthDate:
		v, err := validate.Date(s, e.now())
		if err != nil {
			return upd, err
		}
		upd.BirthDate = &v
	case FieldGender:
		v, err := validate.Gender(s)
		if err != nil {
			return upd, err
		}
		upd.Gender = &v
	case FieldLocation:
		v, err := validate.Text(s)
		if err != nil {
			return upd, err
		}
		upd.Location = &v
	case FieldPhone:
		v, err := validate.Phone(s)
		if err != nil {
			return upd, err
		}
		upd.Phone = &v
	case FieldEmail:
		v, err := validate.Email(s)
		if err != nil {
			return upd, err
		}
		upd.Email = &v
	case FieldPINFL:
		v, err := validate.PINFL(s)
		if err != nil {
			return upd, err
		}
		upd.PINFL = &v
	default:
		return upd, apperr.Validation(apperr.CodeInvalidChoice, "unknown profile field")
	}
	return upd, nil
}

func (e *Engine) teamCreateFlow() *flow {
	return &flow{
		first: "name",
		enter: func(ctx context.Context, t *turn) error {
			return e.canRegister(ctx, t.user, t.st.Data.(state.TeamCreate).HackathonID)
		},
		steps: map[string]*step{
			"name": {prompt: "team.name", handle: textStep("role", false, func(p *state.TeamCreate, v string) { p.Name = v })},
			"role": {prompt: "team.role", choices: fixedChoices(roleChoices), handle: func(_ context.Context, t *turn, in Input) (string, error) {
				r, err := roleOf(in)
				if err != nil {
					return "", err
				}
				edit(t, func(p *state.TeamCreate) { p.Role = r })
				return "field", nil
			}},
			"field": {prompt: "team.field", handle: textStep("portfolio", false, func(p *state.TeamCreate, v string) { p.Field = v })},
			"portfolio": {prompt: "team.portfolio", optional: true, handle: func(ctx context.Context, t *turn, in Input) (string, error) {
				var link string
				if !skipped(in) {
					s, err := textOf(in)
					if err != nil {
						return "", err
					}
					if link, err = validate.URL(s); err != nil {
						return "", err
					}
				}
				p := t.st.Data.(state.TeamCreate)
				team, err := e.teams.Create(ctx, service.NewTeam{
					HackathonID: p.HackathonID,
					OwnerID:     t.user.ID,
					Name:        p.Name,
					Role:        p.Role,
					Field:       p.Field,
					Portfolio:   link,
				})
				if err != nil {
					return "", err
				}
				t.res.Team = team
				t.res.Prompt = "team.created"
				t.res.Args = []any{team.Name, team.Code}
				return done, nil
			}},
		},
	}
}

func (e *Engine) teamJoinFlow() *flow {
	return &flow{
		first: "code",
		enter: func(ctx context.Context, t *turn) error {
			p := t.st.Data.(state.TeamJoin)
			if p.HackathonID == uuid.Nil {
				return requireRegistered(t.user)
			}
			return e.canRegister(ctx, t.user, p.HackathonID)
		},
		steps: map[string]*step{
			"code": {prompt: "team.code", handle: func(ctx context.Context, t *turn, in Input) (string, error) {
				s, err := textOf(in)
				if err != nil {
					return "", err
				}
				code, err := validate.TeamCode(s)
				if err != nil {
					return "", err
				}
				team, err := e.teams.ByCode(ctx, code)
				if err != nil {
					return "", err
				}
				p := t.st.Data.(state.TeamJoin)
				if p.HackathonID != uuid.Nil && team.HackathonID != p.HackathonID {
					return "", apperr.NotFound(apperr.CodeTeamNotFound, "team belongs to another hackathon")
				}
				// Joins by bare code skipped the hackathon checks on entry.
				if p.HackathonID == uuid.Nil {
					if err := e.canRegister(ctx, t.user, team.HackathonID); err != nil {
						return "", err
					}
				}
				edit(t, func(p *state.TeamJoin) {
					p.Code = code
					p.TeamID = team.ID
				})
				return "role", nil
			}},
			"role": {prompt: "team.join_role", choices: fixedChoices(roleChoices), handle: func(ctx context.Context, t *turn, in Input) (string, error) {
				r, err := roleOf(in)
				if err != nil {
					return "", err
				}
				team, err := e.teams.Join(ctx, t.st.Data.(state.TeamJoin).Code, t.user.ID, r)
				if err != nil {
					return "", err
				}
				t.res.Team = team
				t.res.Prompt = "team.joined"
				t.res.Args = []any{team.Name}
				return done, nil
			}},
		},
	}
}

// canRegister checks that u may form or join a team in the hackathon.
func (e *Engine) canRegister(ctx context.Context, u *models.User, hackathonID uuid.UUID) error {
	if err := requireRegistered(u); err != nil {
		return err
	}
	h, err := e.hackathons.Get(ctx, hackathonID)
	if err != nil {
		return err
	}
	if !h.IsActive || !h.Status.Visible() {
		return apperr.NotFound(apperr.CodeHackathonNotFound, "hackathon is not open")
	}
	if h.RegistrationDeadline != nil && e.now().After(*h.RegistrationDeadline) {
		return apperr.Conflict(apperr.CodeDeadlinePassed, "registration is closed")
	}
	existing, err := e.teams.InHackathon(ctx, u.ID, hackathonID)
	if err != nil {
		return err
	}
	if existing != nil {
		return apperr.Conflict(apperr.CodeAlreadyRegistered, "user already has a team in this hackathon")
	}
	return nil
}

func requireRegistered(u *models.User) error {
	if !u.RegistrationOK {
		return apperr.Permission(apperr.CodeNotRegistered, "profile registration is incomplete")
	}
	return nil
}

func (e *Engine) submissionFlow() *flow {
	submit := func(ctx context.Context, t *turn, payload service.Payload) (string, error) {
		p := t.st.Data.(state.Submission)
		if _, err := e.openStage(ctx, p.StageID); err != nil {
			return "", err
		}
		sub, err := e.submissions.Submit(ctx, p.TeamID, p.StageID, t.user.ID, payload)
		if err != nil {
			return "", err
		}
		t.res.Submission = sub
		return done, nil
	}
	return &flow{
		first:    "kind",
		finished: "sub.saved",
		enter: func(ctx context.Context, t *turn) error {
			p := t.st.Data.(state.Submission)
			team, err := e.teams.Get(ctx, p.TeamID)
			if err != nil {
				return err
			}
			if !team.IsActive {
				return apperr.NotFound(apperr.CodeTeamNotFound, "team is inactive")
			}
			if _, err := e.teams.Membership(ctx, team.ID, t.user.ID); err != nil {
				return err
			}
			st, err := e.openStage(ctx, p.StageID)
			if err != nil {
				return err
			}
			if st.HackathonID != team.HackathonID {
				return apperr.NotFound(apperr.CodeStageNotFound, "stage belongs to another hackathon")
			}
			return nil
		},
		steps: map[string]*step{
			"kind": {prompt: "sub.kind", choices: fixedChoices(kindChoices), handle: func(_ context.Context, t *turn, in Input) (string, error) {
				s, err := textOf(in)
				if err != nil {
					return "", err
				}
				kind := models.SubmissionType(strings.ToLower(strings.TrimSpace(s)))
				if kind != models.SubmissionLink && kind != models.SubmissionFile {
					return "", apperr.Validation(apperr.CodeInvalidChoice, "submission kind must be link or file")
				}
				edit(t, func(p *state.Submission) { p.Kind = kind })
				return string(kind), nil
			}},
			string(models.SubmissionLink): {prompt: "sub.link", handle: func(ctx context.Context, t *turn, in Input) (string, error) {
				s, err := textOf(in)
				if err != nil {
					return "", err
				}
				link, err := validate.URL(s)
				if err != nil {
					return "", err
				}
				return submit(ctx, t, service.LinkPayload(link))
			}},
			string(models.SubmissionFile): {prompt: "sub.file", handle: func(ctx context.Context, t *turn, in Input) (string, error) {
				if in.Kind != InputFile || in.File == nil {
					return "", apperr.Validation(apperr.CodeUnexpectedInput, "expected a file")
				}
				f := in.File
				return submit(ctx, t, service.FilePayload(f.ID, f.Name, validate.MediaKind(f.Name, f.MIME)))
			}},
		},
	}
}

// openStage loads the stage and fails once its deadline has passed.
func (e *Engine) openStage(ctx context.Context, id uuid.UUID) (*models.Stage, error) {
	st, err := e.hackathons.Stage(ctx, id)
	if err != nil {
		return nil, err
	}
	if !st.Open(e.now()) {
		return nil, apperr.Conflict(apperr.CodeDeadlinePassed, "stage deadline has passed")
	}
	return st, nil
}

func (e *Engine) adminHackathonFlow() *flow {
	type P = state.AdminHackathon
	return &flow{
		first: "name",
		admin: true,
		steps: map[string]*step{
			"name":        {prompt: "admin.h_name", handle: textStep("name_ru", false, func(p *P, v string) { p.Name = v })},
			"name_ru":     {prompt: "admin.h_name_ru", optional: true, handle: textStep("name_en", true, func(p *P, v string) { p.NameRu = v })},
			"name_en":     {prompt: "admin.h_name_en", optional: true, handle: textStep("description", true, func(p *P, v string) { p.NameEn = v })},
			"description": {prompt: "admin.h_description", optional: true, handle: textStep("prize", true, func(p *P, v string) { p.Description = v })},
			"prize":       {prompt: "admin.h_prize", optional: true, handle: textStep("starts_at", true, func(p *P, v string) { p.Prize = v })},
			"starts_at": {prompt: "admin.h_starts_at", optional: true, handle: momentStep(e.loc, "ends_at", nil, func(p *P, v time.Time) {
				p.StartsAt = &v
			})},
			"ends_at": {prompt: "admin.h_ends_at", optional: true, handle: momentStep(e.loc, "reg_deadline", func(p *P, v time.Time) error {
				if p.StartsAt != nil && v.Before(*p.StartsAt) {
					return apperr.Validation(apperr.CodeInvalidDate, "hackathon ends before it starts")
				}
				return nil
			}, func(p *P, v time.Time) { p.EndsAt = &v })},
			"reg_deadline": {prompt: "admin.h_reg_deadline", optional: true, handle: then(
				momentStep(e.loc, done, nil, func(p *P, v time.Time) { p.RegDeadline = &v }),
				func(ctx context.Context, t *turn) error {
					p := t.st.Data.(P)
					h, err := e.hackathons.Create(ctx, service.NewHackathon{
						Name:                 models.Localized{Default: p.Name, Ru: p.NameRu, En: p.NameEn},
						Description:          models.Localized{Default: p.Description},
						PrizePool:            models.Localized{Default: p.Prize},
						StartsAt:             p.StartsAt,
						EndsAt:               p.EndsAt,
						RegistrationDeadline: p.RegDeadline,
						CreatedBy:            t.user.ID,
					})
					if err != nil {
						return err
					}
					t.res.Hackathon = h
					t.res.Prompt = "admin.h_created"
					t.res.Args = []any{h.Name.Default}
					return nil
				})},
		},
	}
}

func (e *Engine) adminStageFlow() *flow {
	type P = state.AdminStage
	return &flow{
		first: "hackathon",
		admin: true,
		enter: func(ctx context.Context, t *turn) error {
			p := t.st.Data.(P)
			if p.HackathonID == uuid.Nil {
				return nil
			}
			if _, err := e.hackathons.Get(ctx, p.HackathonID); err != nil {
				return err
			}
			t.st.Step = "number"
			return nil
		},
		steps: map[string]*step{
			"hackathon": {prompt: "admin.s_hackathon", choices: e.hackathonChoices, handle: func(ctx context.Context, t *turn, in Input) (string, error) {
				s, err := textOf(in)
				if err != nil {
					return "", err
				}
				id, err := uuid.Parse(strings.TrimSpace(s))
				if err != nil {
					return "", apperr.Validation(apperr.CodeInvalidChoice, "pick a hackathon from the list")
				}
				h, err := e.hackathons.Get(ctx, id)
				if err != nil {
					return "", err
				}
				edit(t, func(p *P) { p.HackathonID = h.ID })
				return "number", nil
			}},
			"number": {prompt: "admin.s_number", handle: func(ctx context.Context, t *turn, in Input) (string, error) {
				s, err := textOf(in)
				if err != nil {
					return "", err
				}
				n, err := strconv.Atoi(strings.TrimSpace(s))
				if err != nil || n < 1 {
					return "", apperr.Validation(apperr.CodeInvalidNumber, "stage number must be a positive integer")
				}
				existing, err := e.hackathons.Stages(ctx, t.st.Data.(P).HackathonID)
				if err != nil {
					return "", err
				}
				for _, st := range existing {
					if st.Number == n {
						return "", apperr.Validation(apperr.CodeInvalidNumber, "stage number already used")
					}
				}
				edit(t, func(p *P) { p.Number = n })
				return "name", nil
			}},
			"name":    {prompt: "admin.s_name", handle: textStep("name_ru", false, func(p *P, v string) { p.Name = v })},
			"name_ru": {prompt: "admin.s_name_ru", optional: true, handle: textStep("name_en", true, func(p *P, v string) { p.NameRu = v })},
			"name_en": {prompt: "admin.s_name_en", optional: true, handle: textStep("task", true, func(p *P, v string) { p.NameEn = v })},
			"task":    {prompt: "admin.s_task", handle: textStep("task_ru", false, func(p *P, v string) { p.Task = v })},
			"task_ru": {prompt: "admin.s_task_ru", optional: true, handle: textStep("task_en", true, func(p *P, v string) { p.TaskRu = v })},
			"task_en": {prompt: "admin.s_task_en", optional: true, handle: textStep("deadline", true, func(p *P, v string) { p.TaskEn = v })},
			"deadline": {prompt: "admin.s_deadline", handle: func(ctx context.Context, t *turn, in Input) (string, error) {
				s, err := textOf(in)
				if err != nil {
					return "", err
				}
				deadline, err := validate.Moment(s, e.loc)
				if err != nil {
					return "", err
				}
				p := t.st.Data.(P)
				st, err := e.hackathons.CreateStage(ctx, service.NewStage{
					HackathonID: p.HackathonID,
					Number:      p.Number,
					Name:        models.Localized{Default: p.Name, Ru: p.NameRu, En: p.NameEn},
					Task:        models.Localized{Default: p.Task, Ru: p.TaskRu, En: p.TaskEn},
					Deadline:    deadline,
					CreatedBy:   t.user.ID,
				})
				if err != nil {
					return "", err
				}
				t.res.Stage = st
				t.res.Prompt = "admin.s_created"
				t.res.Args = []any{st.Number, st.Name.Default}
				return done, nil
			}},
		},
	}
}

func (e *Engine) hackathonChoices(ctx context.Context, _ *state.State) ([]Choice, error) {
	hs, err := e.hackathons.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Choice, 0, len(hs))
	for _, h := range hs {
		if h.Status == models.StatusArchived {
			continue
		}
		out = append(out, Choice{Value: h.ID.String(), Label: h.Name.Default, Literal: true})
	}
	return out, nil
}

func (e *Engine) adminBroadcastFlow() *flow {
	return &flow{
		first: "text",
		admin: true,
		enter: func(ctx context.Context, t *turn) error {
			if id := t.st.Data.(state.AdminBroadcast).HackathonID; id != uuid.Nil {
				_, err := e.hackathons.Get(ctx, id)
				return err
			}
			return nil
		},
		steps: map[string]*step{
			"text": {prompt: "admin.b_text", handle: func(ctx context.Context, t *turn, in Input) (string, error) {
				s, err := textOf(in)
				if err != nil {
					return "", err
				}
				text, err := validate.Text(s)
				if err != nil {
					return "", err
				}
				var rep service.Report
				if id := t.st.Data.(state.AdminBroadcast).HackathonID; id != uuid.Nil {
					rep, err = e.broadcaster.ToHackathon(ctx, id, text, t.user.ID)
				} else {
					rep, err = e.broadcaster.ToConsented(ctx, text, t.user.ID)
				}
				if err != nil {
					return "", err
				}
				t.res.Broadcast = &rep
				t.res.Prompt = "admin.b_done"
				t.res.Args = []any{rep.Sent, rep.Failed}
				return done, nil
			}},
		},
	}
}

// then runs finish once h reports the flow complete.
func then(h handler, finish func(ctx context.Context, t *turn) error) handler {
	return func(ctx context.Context, t *turn, in Input) (string, error) {
		next, err := h(ctx, t, in)
		if err != nil || next != done {
			return next, err
		}
		return done, finish(ctx, t)
	}
}

// edit applies fn to the flow payload of t.
func edit[P state.Payload](t *turn, fn func(*P)) {
	p := t.st.Data.(P)
	fn(&p)
	t.st.Data = p
}

func textStep[P state.Payload](next string, optional bool, set func(*P, string)) handler {
	return func(_ context.Context, t *turn, in Input) (string, error) {
		if optional && skipped(in) {
			return next, nil
		}
		s, err := textOf(in)
		if err != nil {
			return "", err
		}
		v, err := validate.Text(s)
		if err != nil {
			return "", err
		}
		edit(t, func(p *P) { set(p, v) })
		return next, nil
	}
}

// momentStep parses an optional operator-entered date.
func momentStep[P state.Payload](loc *time.Location, next string, check func(*P, time.Time) error, set func(*P, time.Time)) handler {
	return func(_ context.Context, t *turn, in Input) (string, error) {
		if skipped(in) {
			return next, nil
		}
		s, err := textOf(in)
		if err != nil {
			return "", err
		}
		v, err := validate.Moment(s, loc)
		if err != nil {
			return "", err
		}
		p := t.st.Data.(P)
		if check != nil {
			if err := check(&p, v); err != nil {
				return "", err
			}
		}
		set(&p, v)
		t.st.Data = p
		return next, nil
	}
}

func textOf(in Input) (string, error) {
	switch in.Kind {
	case InputText, InputChoice, InputContact:
		return in.Text, nil
	}
	return "", apperr.Validation(apperr.CodeUnexpectedInput, "expected a text message")
}

func skipped(in Input) bool {
	if in.Kind != InputText && in.Kind != InputChoice {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(in.Text)) {
	case SkipValue, "/skip", "-":
		return true
	}
	return false
}

func roleOf(in Input) (models.TeamRole, error) {
	s, err := textOf(in)
	if err != nil {
		return "", err
	}
	return validate.Role(s)
}

var (
	genderChoices = []Choice{
		{Value: string(models.GenderMale), Label: "choice.male"},
		{Value: string(models.GenderFemale), Label: "choice.female"},
	}
	kindChoices = []Choice{
		{Value: string(models.SubmissionLink), Label: "choice.link"},
		{Value: string(models.SubmissionFile), Label: "choice.file"},
	}
	roleChoices = func() []Choice {
		out := make([]Choice, 0, len(models.TeamRoles))
		for _, r := range models.TeamRoles {
			out = append(out, Choice{Value: string(r), Label: "role." + strings.ToLower(string(r))})
		}
		return out
	}()
)

func fixedChoices(cs []Choice) func(context.Context, *state.State) ([]Choice, error) {
	return func(context.Context, *state.State) ([]Choice, error) { return cs, nil }
}
