// Package memory is an in-process storage.Store. Transactions run on a copy
// of the tables that replaces the live data only when the function succeeds.
package memory

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"hackathon-bot/internal/models"
	"hackathon-bot/internal/storage"
)

type tables struct {
	users       map[uuid.UUID]models.User
	hackathons  map[uuid.UUID]models.Hackathon
	stages      map[uuid.UUID]models.Stage
	teams       map[uuid.UUID]models.Team
	members     map[uuid.UUID]models.Membership
	submissions map[uuid.UUID]models.Submission
	audit       []storage.AuditEntry
	// seq records write order so newest-first listings are stable when
	// timestamps collide.
	seq  map[uuid.UUID]uint64
	next uint64
}

func newTables() *tables {
	return &tables{
		users:       map[uuid.UUID]models.User{},
		hackathons:  map[uuid.UUID]models.Hackathon{},
		stages:      map[uuid.UUID]models.Stage{},
		teams:       map[uuid.UUID]models.Team{},
		members:     map[uuid.UUID]models.Membership{},
		submissions: map[uuid.UUID]models.Submission{},
		seq:         map[uuid.UUID]uint64{},
	}
}

func (t *tables) clone() *tables {
	return &tables{
		users:       maps.Clone(t.users),
		hackathons:  maps.Clone(t.hackathons),
		stages:      maps.Clone(t.stages),
		teams:       maps.Clone(t.teams),
		members:     maps.Clone(t.members),
		submissions: maps.Clone(t.submissions),
		audit:       append([]storage.AuditEntry(nil), t.audit...),
		seq:         maps.Clone(t.seq),
		next:        t.next,
	}
}

func (t *tables) touch(id uuid.UUID) {
	t.next++
	t.seq[id] = t.next
}

type nopLocker struct{}

func (nopLocker) Lock()   {}
func (nopLocker) Unlock() {}

// Store implements storage.Store.
type Store struct {
	*repo
	mu sync.Mutex
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	s := &Store{}
	s.repo = &repo{data: newTables(), lock: &s.mu, now: time.Now}
	return s
}

// InTx holds the store lock for the whole function, so transactions are
// serialized against every other call.
func (s *Store) InTx(ctx context.Context, fn func(storage.Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.data.clone()
	if err := fn(&repo{data: work, lock: nopLocker{}, now: s.now}); err != nil {
		return err
	}
	*s.data = *work
	return nil
}

// AuditLog returns a copy of the recorded audit entries.
func (s *Store) AuditLog() []storage.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]storage.AuditEntry(nil), s.data.audit...)
}

type repo struct {
	data *tables
	lock sync.Locker
	now  func() time.Time
}

func ptr[T any](v T) *T { return &v }

// Users

func (r *repo) CreateUser(_ context.Context, u *models.User) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	for _, existing := range r.data.users {
		if existing.TelegramID == u.TelegramID {
			return storage.ErrDuplicate
		}
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	now := r.now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	r.data.users[u.ID] = *u
	r.data.touch(u.ID)
	return nil
}

func (r *repo) GetUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	u, ok := r.data.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (r *repo) GetUserByTelegramID(_ context.Context, tgID int64) (*models.User, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	for _, u := range r.data.users {
		if u.TelegramID == tgID {
			return &u, nil
		}
	}
	return nil, nil
}

func (r *repo) UpdateUser(_ context.Context, id uuid.UUID, upd models.UserUpdate) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	u, ok := r.data.users[id]
	if !ok {
		return storage.ErrNotFound
	}
	upd.Apply(&u)
	u.UpdatedAt = r.now()
	r.data.users[id] = u
	return nil
}

func (r *repo) SetConsent(_ context.Context, id uuid.UUID, given bool, version string, at time.Time) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	u, ok := r.data.users[id]
	if !ok {
		return storage.ErrNotFound
	}
	u.ConsentGiven = given
	u.ConsentVersion = version
	u.ConsentGivenAt = nil
	if given {
		u.ConsentGivenAt = ptr(at)
	}
	u.UpdatedAt = r.now()
	r.data.users[id] = u
	return nil
}

func (r *repo) ListUsers(_ context.Context) ([]models.User, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.usersWhere(func(models.User) bool { return true }), nil
}

func (r *repo) ListConsentedUsers(_ context.Context) ([]models.User, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.usersWhere(func(u models.User) bool { return u.IsActive && u.ConsentGiven }), nil
}

func (r *repo) usersWhere(keep func(models.User) bool) []models.User {
	out := make([]models.User, 0, len(r.data.users))
	for _, u := range r.data.users {
		if keep(u) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return r.data.seq[out[i].ID] < r.data.seq[out[j].ID] })
	return out
}

// Hackathons and stages

func (r *repo) CreateHackathon(_ context.Context, h *models.Hackathon) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = r.now()
	}
	r.data.hackathons[h.ID] = *h
	r.data.touch(h.ID)
	return nil
}

func (r *repo) GetHackathon(_ context.Context, id uuid.UUID) (*models.Hackathon, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	h, ok := r.data.hackathons[id]
	if !ok {
		return nil, nil
	}
	return &h, nil
}

func (r *repo) ListHackathons(_ context.Context) ([]models.Hackathon, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	out := make([]models.Hackathon, 0, len(r.data.hackathons))
	for _, h := range r.data.hackathons {
		out = append(out, h)
	}
	r.newestFirst(len(out), func(i int) uuid.UUID { return out[i].ID }, func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out, nil
}

func (r *repo) UpdateHackathonStatus(_ context.Context, id uuid.UUID, status models.HackathonStatus) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	h, ok := r.data.hackathons[id]
	if !ok {
		return storage.ErrNotFound
	}
	h.Status = status
	r.data.hackathons[id] = h
	return nil
}

func (r *repo) CreateStage(_ context.Context, s *models.Stage) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if _, ok := r.data.hackathons[s.HackathonID]; !ok {
		return storage.ErrNotFound
	}
	for _, existing := range r.data.stages {
		if existing.HackathonID == s.HackathonID && existing.Number == s.Number {
			return storage.ErrDuplicate
		}
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = r.now()
	}
	r.data.stages[s.ID] = *s
	r.data.touch(s.ID)
	return nil
}

func (r *repo) GetStage(_ context.Context, id uuid.UUID) (*models.Stage, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	s, ok := r.data.stages[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (r *repo) ListStages(_ context.Context, hackathonID uuid.UUID) ([]models.Stage, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	var out []models.Stage
	for _, s := range r.data.stages {
		if s.HackathonID == hackathonID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (r *repo) DeactivateStages(_ context.Context, hackathonID uuid.UUID) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	for id, s := range r.data.stages {
		if s.HackathonID == hackathonID && s.IsActive {
			s.IsActive = false
			r.data.stages[id] = s
		}
	}
	return nil
}

func (r *repo) SetStageActive(_ context.Context, id uuid.UUID, active bool) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	s, ok := r.data.stages[id]
	if !ok {
		return storage.ErrNotFound
	}
	s.IsActive = active
	r.data.stages[id] = s
	return nil
}

func (r *repo) StagesDueBetween(_ context.Context, from, to time.Time) ([]models.Stage, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	var out []models.Stage
	for _, s := range r.data.stages {
		if s.Deadline.After(from) && !s.Deadline.After(to) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Deadline.Before(out[j].Deadline) })
	return out, nil
}

// Teams and memberships

func (r *repo) CreateTeam(_ context.Context, t *models.Team) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.codeTaken(t.Code) {
		return storage.ErrDuplicate
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = r.now()
	}
	r.data.teams[t.ID] = *t
	r.data.touch(t.ID)
	return nil
}

func (r *repo) codeTaken(code string) bool {
	for _, t := range r.data.teams {
		if t.IsActive && t.Code == code {
			return true
		}
	}
	return false
}

func (r *repo) GetTeam(_ context.Context, id uuid.UUID) (*models.Team, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	t, ok := r.data.teams[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (r *repo) GetActiveTeamByCode(_ context.Context, code string) (*models.Team, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	for _, t := range r.data.teams {
		if t.IsActive && t.Code == code {
			return &t, nil
		}
	}
	return nil, nil
}

func (r *repo) ActiveCodeExists(_ context.Context, code string) (bool, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.codeTaken(code), nil
}

// LockTeam is a no-op: transactions already hold the store lock.
func (r *repo) LockTeam(_ context.Context, id uuid.UUID) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if _, ok := r.data.teams[id]; !ok {
		return storage.ErrNotFound
	}
	return nil
}

func (r *repo) SetTeamActive(_ context.Context, id uuid.UUID, active bool) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	t, ok := r.data.teams[id]
	if !ok {
		return storage.ErrNotFound
	}
	t.IsActive = active
	r.data.teams[id] = t
	return nil
}

func (r *repo) UserTeamInHackathon(_ context.Context, userID, hackathonID uuid.UUID) (*models.Team, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	for _, m := range r.data.members {
		if m.UserID != userID {
			continue
		}
		t, ok := r.data.teams[m.TeamID]
		if ok && t.IsActive && t.HackathonID == hackathonID {
			return &t, nil
		}
	}
	return nil, nil
}

func (r *repo) ListUserTeams(_ context.Context, userID uuid.UUID) ([]models.UserTeam, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	var out []models.UserTeam
	var ids []uuid.UUID
	for _, m := range r.data.members {
		if m.UserID != userID {
			continue
		}
		t, ok := r.data.teams[m.TeamID]
		if !ok || !t.IsActive {
			continue
		}
		out = append(out, models.UserTeam{
			Team:          t,
			HackathonName: r.data.hackathons[t.HackathonID].Name.Default,
			Role:          m.Role,
			IsLead:        m.IsLead,
		})
		ids = append(ids, m.ID)
	}
	r.newestFirst(len(out), func(i int) uuid.UUID { return ids[i] }, func(i, j int) {
		out[i], out[j] = out[j], out[i]
		ids[i], ids[j] = ids[j], ids[i]
	})
	return out, nil
}

func (r *repo) ListTeams(_ context.Context) ([]models.TeamRecord, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	out := make([]models.TeamRecord, 0, len(r.data.teams))
	for _, t := range r.data.teams {
		out = append(out, models.TeamRecord{
			Team:          t,
			HackathonName: r.data.hackathons[t.HackathonID].Name.Default,
			OwnerTGID:     r.data.users[t.OwnerID].TelegramID,
			MemberCount:   r.countMembers(t.ID),
		})
	}
	r.newestFirst(len(out), func(i int) uuid.UUID { return out[i].ID }, func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out, nil
}

func (r *repo) AddMember(_ context.Context, m *models.Membership) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if _, ok := r.data.teams[m.TeamID]; !ok {
		return storage.ErrNotFound
	}
	for _, existing := range r.data.members {
		if existing.TeamID == m.TeamID && existing.UserID == m.UserID {
			return storage.ErrDuplicate
		}
	}
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.JoinedAt.IsZero() {
		m.JoinedAt = r.now()
	}
	r.data.members[m.ID] = *m
	r.data.touch(m.ID)
	return nil
}

func (r *repo) CountMembers(_ context.Context, teamID uuid.UUID) (int, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.countMembers(teamID), nil
}

func (r *repo) countMembers(teamID uuid.UUID) int {
	n := 0
	for _, m := range r.data.members {
		if m.TeamID == teamID {
			n++
		}
	}
	return n
}

func (r *repo) GetMembership(_ context.Context, teamID, userID uuid.UUID) (*models.Membership, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	for _, m := range r.data.members {
		if m.TeamID == teamID && m.UserID == userID {
			return &m, nil
		}
	}
	return nil, nil
}

func (r *repo) DeleteMembership(_ context.Context, teamID, userID uuid.UUID) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	for id, m := range r.data.members {
		if m.TeamID == teamID && m.UserID == userID {
			delete(r.data.members, id)
			delete(r.data.seq, id)
			return nil
		}
	}
	return storage.ErrNotFound
}

func (r *repo) ListMembers(_ context.Context, teamID uuid.UUID) ([]models.Member, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.members(func(m models.Membership) bool { return m.TeamID == teamID }), nil
}

// members returns matching memberships joined with profiles, lead first,
// then in join order.
func (r *repo) members(keep func(models.Membership) bool) []models.Member {
	var out []models.Member
	for _, m := range r.data.members {
		if !keep(m) {
			continue
		}
		u := r.data.users[m.UserID]
		out = append(out, models.Member{
			Membership: m,
			TelegramID: u.TelegramID,
			FirstName:  u.FirstName,
			LastName:   u.LastName,
			Username:   u.Username,
			Phone:      u.Phone,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsLead != out[j].IsLead {
			return out[i].IsLead
		}
		return r.data.seq[out[i].ID] < r.data.seq[out[j].ID]
	})
	return out
}

func (r *repo) ListAllMembers(_ context.Context) ([]models.MemberRecord, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	all := r.members(func(models.Membership) bool { return true })
	out := make([]models.MemberRecord, 0, len(all))
	for _, m := range all {
		t := r.data.teams[m.TeamID]
		out = append(out, models.MemberRecord{Member: m, TeamName: t.Name, TeamCode: t.Code})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TeamName < out[j].TeamName })
	return out, nil
}

func (r *repo) HackathonParticipants(_ context.Context, hackathonID uuid.UUID) ([]models.User, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	in := map[uuid.UUID]bool{}
	for _, m := range r.data.members {
		t, ok := r.data.teams[m.TeamID]
		if ok && t.IsActive && t.HackathonID == hackathonID {
			in[m.UserID] = true
		}
	}
	return r.usersWhere(func(u models.User) bool { return u.IsActive && in[u.ID] }), nil
}

// Submissions

func (r *repo) UpsertSubmission(_ context.Context, s *models.Submission) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if s.SubmittedAt.IsZero() {
		s.SubmittedAt = r.now()
	}
	for id, existing := range r.data.submissions {
		if existing.TeamID == s.TeamID && existing.StageID == s.StageID {
			s.ID = id
			r.data.submissions[id] = *s
			r.data.touch(id)
			return nil
		}
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	r.data.submissions[s.ID] = *s
	r.data.touch(s.ID)
	return nil
}

func (r *repo) GetSubmission(_ context.Context, teamID, stageID uuid.UUID) (*models.Submission, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	for _, s := range r.data.submissions {
		if s.TeamID == teamID && s.StageID == stageID {
			return &s, nil
		}
	}
	return nil, nil
}

func (r *repo) ListStageSubmissions(_ context.Context, stageID uuid.UUID) ([]models.Submission, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	var out []models.Submission
	for _, s := range r.data.submissions {
		if s.StageID == stageID {
			out = append(out, s)
		}
	}
	r.newestFirst(len(out), func(i int) uuid.UUID { return out[i].ID }, func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out, nil
}

func (r *repo) ListSubmissions(_ context.Context) ([]models.SubmissionRecord, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	out := make([]models.SubmissionRecord, 0, len(r.data.submissions))
	for _, s := range r.data.submissions {
		t := r.data.teams[s.TeamID]
		st := r.data.stages[s.StageID]
		out = append(out, models.SubmissionRecord{
			Submission:    s,
			TeamName:      t.Name,
			TeamCode:      t.Code,
			StageNumber:   st.Number,
			StageName:     st.Name.Default,
			HackathonName: r.data.hackathons[st.HackathonID].Name.Default,
		})
	}
	r.newestFirst(len(out), func(i int) uuid.UUID { return out[i].ID }, func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out, nil
}

// Audit and stats

func (r *repo) LogAction(_ context.Context, e storage.AuditEntry) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.now()
	}
	r.data.audit = append(r.data.audit, e)
	return nil
}

func (r *repo) Stats(_ context.Context) (models.Stats, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	var st models.Stats
	for _, u := range r.data.users {
		if !u.IsActive {
			continue
		}
		st.TotalUsers++
		if u.ConsentGiven {
			st.ConsentedUsers++
		}
	}
	for _, t := range r.data.teams {
		if t.IsActive {
			st.ActiveTeams++
		}
	}
	for _, h := range r.data.hackathons {
		if h.IsActive && h.Status.Visible() {
			st.ActiveHackathons++
		}
	}
	st.Submissions = len(r.data.submissions)
	return st, nil
}

// newestFirst orders n rows by descending write sequence.
func (r *repo) newestFirst(n int, id func(int) uuid.UUID, swap func(i, j int)) {
	sort.Sort(bySeq{n: n, less: func(i, j int) bool { return r.data.seq[id(i)] > r.data.seq[id(j)] }, swap: swap})
}

type bySeq struct {
	n    int
	less func(i, j int) bool
	swap func(i, j int)
}

func (b bySeq) Len() int           { return b.n }
func (b bySeq) Less(i, j int) bool { return b.less(i, j) }
func (b bySeq) Swap(i, j int)      { b.swap(i, j) }
