// Package conversation drives the multi-step flows (registration, team
// creation and joining, profile edits, submissions and the admin wizards).
// The engine is transport-agnostic: it consumes Input values and returns a
// Result naming the next prompt. State survives restarts through state.Store.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"hackathon-bot/internal/apperr"
	"hackathon-bot/internal/logger"
	"hackathon-bot/internal/models"
	"hackathon-bot/internal/service"
	"hackathon-bot/internal/state"
)

type InputKind int

const (
	InputText InputKind = iota
	InputChoice
	InputContact
	InputFile
	InputCancel
)

// File references an uploaded document by its transport id.
type File struct {
	ID   string
	Name string
	MIME string
}

// Input is one user action. Text carries typed text, the selected choice
// value or the shared contact phone, depending on Kind.
type Input struct {
	Kind InputKind
	Text string
	File *File
}

func Text(s string) Input   { return Input{Kind: InputText, Text: s} }
func Choose(v string) Input { return Input{Kind: InputChoice, Text: v} }
func Contact(phone string) Input {
	return Input{Kind: InputContact, Text: phone}
}
func Upload(f File) Input { return Input{Kind: InputFile, File: &f} }
func Cancel() Input       { return Input{Kind: InputCancel} }

// SkipValue is the choice value offered on optional steps.
const SkipValue = "skip"

// Choice is one selectable option. Label is a message key unless Literal
// is set, in which case it is shown verbatim.
type Choice struct {
	Value   string
	Label   string
	Literal bool
}

// Result describes what the transport should show next.
type Result struct {
	Flow    state.Flow
	Step    string
	Prompt  string
	Args    []any
	Choices []Choice
	// RequestContact asks the transport for a share-contact button.
	RequestContact bool

	// Err is a user-facing failure. On validation errors the step is
	// unchanged and Prompt repeats it; any other kind ended the flow.
	Err error

	Done      bool
	Cancelled bool
	Idle      bool
	// Discarded names the flow that Begin replaced, if any.
	Discarded state.Flow

	Team       *models.Team
	Submission *models.Submission
	Hackathon  *models.Hackathon
	Stage      *models.Stage
	Broadcast  *service.Report
}

// Engine runs flows for every user. Calls for one user must be serialized
// by the caller.
type Engine struct {
	states      state.Store
	users       *service.Users
	hackathons  *service.Hackathons
	teams       *service.Teams
	submissions *service.Submissions
	broadcaster *service.Broadcaster
	log         *logger.Logger
	now         service.Clock
	loc         *time.Location

	flows map[state.Flow]*flow
}

type Deps struct {
	States      state.Store
	Users       *service.Users
	Hackathons  *service.Hackathons
	Teams       *service.Teams
	Submissions *service.Submissions
	Broadcaster *service.Broadcaster
	Log         *logger.Logger
	Now         service.Clock
	// Location interprets operator-entered dates. Defaults to UTC.
	Location *time.Location
}

func New(d Deps) *Engine {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Location == nil {
		d.Location = time.UTC
	}
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	e := &Engine{
		states:      d.States,
		users:       d.Users,
		hackathons:  d.Hackathons,
		teams:       d.Teams,
		submissions: d.Submissions,
		broadcaster: d.Broadcaster,
		log:         d.Log,
		now:         d.Now,
		loc:         d.Location,
	}
	e.flows = e.buildFlows()
	return e
}

// Begin starts a flow, discarding whatever flow was in progress.
func (e *Engine) Begin(ctx context.Context, tgID int64, p state.Payload) (Result, error) {
	f, ok := e.flows[p.Flow()]
	if !ok {
		return Result{}, apperr.Internal(fmt.Sprintf("unknown flow %q", p.Flow()), nil)
	}
	u, err := e.users.ByTelegramID(ctx, tgID)
	if err != nil {
		return e.fail(Result{Flow: p.Flow()}, err)
	}
	if err := e.authorize(ctx, f, u); err != nil {
		return e.fail(Result{Flow: p.Flow()}, err)
	}

	res := Result{Flow: p.Flow()}
	prev, err := e.load(ctx, tgID)
	if err != nil {
		return res, apperr.Wrap("load state", err)
	}
	if prev != nil {
		res.Discarded = prev.Flow()
		e.log.ForUser(tgID).ForFlow(string(prev.Flow()), prev.Step).
			Info("conversation discarded", zap.String("replaced_by", string(p.Flow())))
		if err := e.states.Delete(ctx, tgID); err != nil {
			return res, apperr.Wrap("discard state", err)
		}
	}

	t := &turn{user: u, st: &state.State{TelegramID: tgID, Step: f.first, Data: p}, res: &res}
	if f.enter != nil {
		if err := f.enter(ctx, t); err != nil {
			return e.fail(res, err)
		}
	}
	if err := e.states.Put(ctx, *t.st); err != nil {
		return res, apperr.Wrap("save state", err)
	}
	return e.render(ctx, f, t.st, res)
}

// Advance feeds one input into the user's current flow.
func (e *Engine) Advance(ctx context.Context, tgID int64, in Input) (Result, error) {
	st, err := e.load(ctx, tgID)
	if err != nil {
		return Result{}, apperr.Wrap("load state", err)
	}
	if st == nil {
		return Result{Idle: true}, nil
	}
	if in.Kind == InputCancel {
		return e.Cancel(ctx, tgID)
	}
	res := Result{Flow: st.Flow(), Step: st.Step}
	f, ok := e.flows[st.Flow()]
	if !ok {
		_ = e.states.Delete(ctx, tgID)
		return res, apperr.Internal(fmt.Sprintf("unknown flow %q", st.Flow()), nil)
	}
	s, ok := f.steps[st.Step]
	if !ok {
		_ = e.states.Delete(ctx, tgID)
		return res, apperr.Internal(fmt.Sprintf("unknown step %q in flow %s", st.Step, st.Flow()), nil)
	}

	u, err := e.users.ByTelegramID(ctx, tgID)
	if err != nil {
		return e.abort(ctx, tgID, res, err)
	}
	if err := e.authorize(ctx, f, u); err != nil {
		return e.abort(ctx, tgID, res, err)
	}

	t := &turn{user: u, st: st, res: &res}
	next, err := s.handle(ctx, t, in)
	if err != nil {
		switch apperr.KindOf(err) {
		case apperr.KindValidation:
			e.log.ForUser(tgID).ForFlow(string(st.Flow()), st.Step).
				Debug("step rejected input", zap.String("code", apperr.CodeOf(err)))
			res.Err = err
			return e.render(ctx, f, st, res)
		case apperr.KindInternal:
			return res, err
		default:
			return e.abort(ctx, tgID, res, err)
		}
	}

	if next == done {
		if err := e.states.Delete(ctx, tgID); err != nil {
			return res, apperr.Wrap("clear state", err)
		}
		res.Done = true
		res.Step = ""
		if res.Prompt == "" {
			res.Prompt = f.finished
		}
		e.log.ForUser(tgID).ForFlow(string(st.Flow()), "").Info("conversation finished")
		return res, nil
	}
	st.Step = next
	if err := e.states.Put(ctx, *st); err != nil {
		return res, apperr.Wrap("save state", err)
	}
	return e.render(ctx, f, st, res)
}

// Resume repeats the current prompt, e.g. after a restart.
func (e *Engine) Resume(ctx context.Context, tgID int64) (Result, error) {
	st, err := e.load(ctx, tgID)
	if err != nil {
		return Result{}, apperr.Wrap("load state", err)
	}
	if st == nil {
		return Result{Idle: true}, nil
	}
	f, ok := e.flows[st.Flow()]
	if !ok || f.steps[st.Step] == nil {
		_ = e.states.Delete(ctx, tgID)
		return Result{Idle: true}, nil
	}
	return e.render(ctx, f, st, Result{Flow: st.Flow()})
}

// Cancel drops any flow in progress.
func (e *Engine) Cancel(ctx context.Context, tgID int64) (Result, error) {
	st, err := e.load(ctx, tgID)
	if err != nil {
		return Result{}, apperr.Wrap("load state", err)
	}
	res := Result{Cancelled: true, Prompt: "flow.cancelled"}
	if st == nil {
		res.Idle = true
		return res, nil
	}
	res.Flow = st.Flow()
	if err := e.states.Delete(ctx, tgID); err != nil {
		return res, apperr.Wrap("clear state", err)
	}
	e.log.ForUser(tgID).ForFlow(string(st.Flow()), st.Step).Info("conversation cancelled")
	return res, nil
}

// load reads the user's state. A record that no longer decodes is removed
// and reads as absent, so the user is never stuck behind it.
func (e *Engine) load(ctx context.Context, tgID int64) (*state.State, error) {
	st, err := e.states.Get(ctx, tgID)
	if !errors.Is(err, state.ErrCorrupt) {
		return st, err
	}
	e.log.ForUser(tgID).WithError(err).Warn("dropping unreadable conversation state")
	if err := e.states.Delete(ctx, tgID); err != nil {
		return nil, err
	}
	return nil, nil
}

func (e *Engine) authorize(ctx context.Context, f *flow, u *models.User) error {
	if f.admin {
		return e.users.RequireAdmin(ctx, u.TelegramID)
	}
	return service.RequireConsent(u)
}

// fail reports a non-validation error raised before state was written.
func (e *Engine) fail(res Result, err error) (Result, error) {
	if apperr.KindOf(err) == apperr.KindInternal {
		return res, err
	}
	res.Err = err
	res.Done = true
	return res, nil
}

// abort ends the flow on a domain error: the state is cleared and err is
// handed back in Result.Err.
func (e *Engine) abort(ctx context.Context, tgID int64, res Result, err error) (Result, error) {
	if apperr.KindOf(err) == apperr.KindInternal {
		return res, err
	}
	if derr := e.states.Delete(ctx, tgID); derr != nil {
		return res, apperr.Wrap("clear state", derr)
	}
	e.log.ForUser(tgID).ForFlow(string(res.Flow), res.Step).
		Info("conversation aborted", zap.String("code", apperr.CodeOf(err)))
	res.Err = err
	res.Done = true
	res.Step = ""
	return res, nil
}

func (e *Engine) render(ctx context.Context, f *flow, st *state.State, res Result) (Result, error) {
	s := f.steps[st.Step]
	res.Flow = st.Flow()
	res.Step = st.Step
	res.Prompt = s.prompt
	if s.promptFor != nil {
		res.Prompt = s.promptFor(st)
	}
	res.RequestContact = s.contact
	if s.choices != nil {
		cs, err := s.choices(ctx, st)
		if err != nil {
			return res, err
		}
		res.Choices = cs
	}
	if s.optional {
		res.Choices = append(res.Choices, Choice{Value: SkipValue, Label: "choice.skip"})
	}
	return res, nil
}
