package sheets

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"hackathon-bot/internal/export"
)

type fakeAPI struct {
	mu       sync.Mutex
	calls    []string
	written  map[string][][]interface{}
	existing []string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, r.Method+" "+r.URL.Path)
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodGet:
		var sheets []map[string]any
		for _, title := range f.existing {
			sheets = append(sheets, map[string]any{"properties": map[string]any{"title": title}})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"sheets": sheets})
		return
	case r.Method == http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		var vr struct {
			Values [][]interface{} `json:"values"`
		}
		_ = json.Unmarshal(body, &vr)
		if f.written == nil {
			f.written = map[string][][]interface{}{}
		}
		f.written[r.URL.Path] = vr.Values
	}
	_, _ = io.WriteString(w, "{}")
}

func newTestClient(t *testing.T, api *fakeAPI) *Client {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	c, err := New(context.Background(), "", "sheet-1",
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return c
}

func TestPublishReplacesSheet(t *testing.T) {
	api := &fakeAPI{existing: []string{SheetUsers}}
	c := newTestClient(t, api)

	err := c.Publish(context.Background(), export.Table{
		Kind:   export.KindUsers,
		Header: []string{"telegram_id", "first_name"},
		Rows:   [][]string{{"77", "Ali"}},
	})
	require.NoError(t, err)

	joined := strings.Join(api.calls, "\n")
	assert.NotContains(t, joined, "batchUpdate")
	assert.Contains(t, joined, ":clear")
	require.Len(t, api.written, 1)
	for path, values := range api.written {
		assert.Contains(t, path, "Users!A1")
		assert.Equal(t, [][]interface{}{{"telegram_id", "first_name"}, {"77", "Ali"}}, values)
	}
}

func TestPublishAddsMissingSheet(t *testing.T) {
	api := &fakeAPI{}
	c := newTestClient(t, api)

	require.NoError(t, c.Publish(context.Background(), export.Table{Kind: export.KindTeams, Header: []string{"team"}}))
	assert.Contains(t, strings.Join(api.calls, "\n"), "sheet-1:batchUpdate")

	err := c.Publish(context.Background(), export.Table{Kind: export.Kind("payments")})
	assert.Error(t, err)
}

type staticBuilder map[export.Kind]int

func (b staticBuilder) Build(_ context.Context, k export.Kind) (export.Table, error) {
	t := export.Table{Kind: k, Header: []string{"x"}}
	for i := 0; i < b[k]; i++ {
		t.Rows = append(t.Rows, []string{"v"})
	}
	return t, nil
}

func TestPublishAll(t *testing.T) {
	api := &fakeAPI{existing: []string{SheetUsers, SheetTeams, SheetMembers, SheetSubmissions}}
	c := newTestClient(t, api)

	counts, err := c.PublishAll(context.Background(), staticBuilder{export.KindUsers: 3, export.KindMembers: 2})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{SheetUsers: 3, SheetTeams: 0, SheetMembers: 2, SheetSubmissions: 0}, counts)
	assert.Equal(t, "https://docs.google.com/spreadsheets/d/sheet-1", c.URL())
}
