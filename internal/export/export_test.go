package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hackathon-bot/internal/models"
	"hackathon-bot/internal/storage/memory"
)

func TestBuildFromStore(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	u := &models.User{TelegramID: 77, FirstName: "Ali", LastName: "Valiyev", Phone: "+998901234567", ConsentGiven: true, IsActive: true, Language: models.LangUz}
	require.NoError(t, store.CreateUser(ctx, u))
	h := &models.Hackathon{Name: models.Localized{Default: "H1"}, Status: models.StatusOpen, IsActive: true}
	require.NoError(t, store.CreateHackathon(ctx, h))
	team := &models.Team{HackathonID: h.ID, Name: "T1, \"the best\"", Code: "123456", OwnerID: u.ID, IsActive: true}
	require.NoError(t, store.CreateTeam(ctx, team))
	require.NoError(t, store.AddMember(ctx, &models.Membership{TeamID: team.ID, UserID: u.ID, Role: models.RoleBackend, IsLead: true}))

	e := New(store, time.UTC)
	for _, k := range Kinds {
		tbl, err := e.Build(ctx, k)
		require.NoError(t, err, k)
		assert.Equal(t, k, tbl.Kind)
		for _, row := range tbl.Rows {
			assert.Len(t, row, len(tbl.Header), k)
		}
	}

	members, err := e.Build(ctx, KindMembers)
	require.NoError(t, err)
	require.Len(t, members.Rows, 1)
	assert.Equal(t, []string{"T1, \"the best\"", "123456", "77", "Ali Valiyev"}, members.Rows[0][:4])
	assert.Equal(t, "yes", members.Rows[0][7])

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, members))
	assert.True(t, strings.HasPrefix(buf.String(), "\uFEFF"))
	records, err := csv.NewReader(strings.NewReader(strings.TrimPrefix(buf.String(), "\uFEFF"))).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, members.Header, records[0])
	assert.Equal(t, "T1, \"the best\"", records[1][0])

	_, err = e.Build(ctx, Kind("payments"))
	assert.Error(t, err)
}

func TestParseKindAndValues(t *testing.T) {
	k, ok := ParseKind("teams")
	assert.True(t, ok)
	assert.Equal(t, KindTeams, k)
	_, ok = ParseKind("stage")
	assert.False(t, ok)

	tbl := Table{Header: []string{"a", "b"}, Rows: [][]string{{"1", "2"}}}
	assert.Equal(t, [][]interface{}{{"a", "b"}, {"1", "2"}}, tbl.Values())
	assert.Equal(t, "users_20260501_1200.csv", FileName(KindUsers, time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)))
}
