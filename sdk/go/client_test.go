package compliancekitsdk

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compliancekit/internal/db"
	"compliancekit/internal/engine"
	"compliancekit/internal/migrate"
	"compliancekit/internal/server"
)

const secret = "sdk-secret"

func newClient(t *testing.T, user string) *Client {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_, err = migrate.Migrate(context.Background(), conn, db.DriverSQLite)
	require.NoError(t, err)

	h, err := server.New(server.Config{
		Engine:          engine.New(conn, db.DriverSQLite),
		Auth:            server.AuthConfig{JWTSecret: secret},
		Log:             zerolog.Nop(),
		StrictSelection: true,
	})
	require.NoError(t, err)
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)

	token, err := server.SignToken(secret, user, time.Hour, time.Now())
	require.NoError(t, err)
	c := New(ts.URL)
	c.BearerToken = token
	return c
}

func TestChecklistFlow(t *testing.T) {
	ctx := context.Background()
	c := newClient(t, "alice")

	me, err := c.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice", me)

	opts, err := c.Options(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, opts.CompanyTypes)

	created, err := c.CreateChecklist(ctx, Selection{
		CompanyType:  opts.CompanyTypes[0],
		Jurisdiction: "Karnataka",
		Industry:     "Healthcare",
	})
	require.NoError(t, err)
	assert.Len(t, created.Items, 16)

	got, err := c.GetChecklist(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	groups, err := c.Groups(ctx, created.ID)
	require.NoError(t, err)
	assert.Len(t, groups, 7)

	body, name, err := c.Download(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "compliance-checklist-"+created.ID+".txt", name)
	assert.True(t, strings.HasPrefix(string(body), "Compliance Checklist"))

	page, err := c.Checklists(ctx, 10, "")
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Empty(t, page.NextCursor)

	_, err = c.Archive(ctx, created.ID)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, "archive_disabled", apiErr.Code)
}

func TestReminderFlowAndAPIKey(t *testing.T) {
	ctx := context.Background()
	c := newClient(t, "alice")

	rem, err := c.CreateReminder(ctx, "Renew trade license", "municipal office", "2026-06-30")
	require.NoError(t, err)
	require.NotNil(t, rem.Description)

	toggled, err := c.ToggleReminder(ctx, rem.ID)
	require.NoError(t, err)
	assert.True(t, toggled.Completed)

	reopened, err := c.SetReminderCompleted(ctx, rem.ID, false)
	require.NoError(t, err)
	assert.False(t, reopened.Completed)

	list, err := c.Reminders(ctx, 0, "")
	require.NoError(t, err)
	require.Len(t, list.Items, 1)

	evts, err := c.Events(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, evts, 3)

	key, err := c.CreateAPIKey(ctx, "ci")
	require.NoError(t, err)
	require.NotEmpty(t, key.Key)

	keyed := New(c.BaseURL)
	keyed.APIKey = key.Key
	got, err := keyed.GetReminder(ctx, rem.ID)
	require.NoError(t, err)
	assert.Equal(t, rem.ID, got.ID)

	_, err = c.CreateReminder(ctx, "", "", "2026-06-30")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
}
