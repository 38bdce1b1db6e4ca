package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compliancekit/internal/checklist"
	"compliancekit/internal/db"
	"compliancekit/internal/domain"
	"compliancekit/internal/engine"
	"compliancekit/internal/events"
	"compliancekit/internal/generator"
	"compliancekit/internal/migrate"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	Engine *engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	return newTestServerWith(t, nil)
}

func newTestServerWith(t *testing.T, configure func(*Config)) (*testServer, func()) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	_, err = migrate.Migrate(context.Background(), conn, db.DriverSQLite)
	require.NoError(t, err)
	e := engine.New(conn, db.DriverSQLite)

	cfg := Config{
		Engine:   e,
		BasePath: "/v0",
		Auth: AuthConfig{
			JWTSecret:             testSecret,
			TokenTTL:              time.Hour,
			DevLogin:              true,
			AllowLegacyUserHeader: true,
		},
		Log:             zerolog.Nop(),
		StrictSelection: true,
	}
	if configure != nil {
		configure(&cfg)
	}
	handler, err := New(cfg)
	require.NoError(t, err)
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader = bytes.NewReader(nil)
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, data
}

func as(user string) map[string]string {
	return map[string]string{"X-User-Id": user}
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(data, &env), string(data))
	return env.Error.Code
}

var keralaBody = map[string]any{
	"company_type": "Partnership Firm",
	"jurisdiction": "Kerala",
	"industry":     "Education",
}

func createChecklist(t *testing.T, srv *testServer, user string) domain.ChecklistRecord {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/checklists", keralaBody, as(user))
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var rec domain.ChecklistRecord
	require.NoError(t, json.Unmarshal(data, &rec))
	return rec
}

func TestHealthAndAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/checklists", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "unauthorized", errorCode(t, data))

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"Authorization": "Bearer nope"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "invalid_credentials", errorCode(t, data))
}

func TestDevLoginAndMe(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/auth/dev/login", map[string]any{"user_id": "alice"}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var login DevLoginResponse
	require.NoError(t, json.Unmarshal(data, &login))
	require.NotEmpty(t, login.Token)

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"Authorization": "Bearer " + login.Token})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var me WhoAmIResponse
	require.NoError(t, json.Unmarshal(data, &me))
	assert.Equal(t, WhoAmIResponse{UserID: "alice", Source: "jwt"}, me)
}

func TestSignTokenRoundTrip(t *testing.T) {
	token, err := SignToken(testSecret, "bob", time.Minute, time.Now())
	require.NoError(t, err)
	p, err := authenticateJWT(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "bob", p.UserID)

	_, err = authenticateJWT(token, "other-secret")
	require.Error(t, err)
	expired, err := SignToken(testSecret, "bob", time.Minute, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	_, err = authenticateJWT(expired, testSecret)
	require.Error(t, err)
	_, err = SignToken("", "bob", time.Minute, time.Now())
	require.Error(t, err)

	foreign, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    "someone-else",
		Subject:   "bob",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = authenticateJWT(foreign, testSecret)
	require.Error(t, err)
}

func TestRejectedCredentials(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	for name, headers := range map[string]map[string]string{
		"basic scheme":    {"Authorization": "Basic YWxpY2U6cHc="},
		"empty bearer":    {"Authorization": "Bearer "},
		"unknown api key": {"X-Api-Key": "ck_deadbeef"},
	} {
		res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/me", nil, headers)
		assert.Equal(t, http.StatusUnauthorized, res.StatusCode, name)
		assert.Equal(t, "invalid_credentials", errorCode(t, data), name)
	}
}

func TestCreateGetAndOwnership(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	rec := createChecklist(t, srv, "alice")
	assert.Equal(t, "alice", rec.OwnerID)
	assert.Equal(t, checklist.DeriveChecklist(domain.Selection{CompanyType: "Partnership Firm", Jurisdiction: "Kerala", Industry: "Education"}), rec.Items)

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/checklists/"+rec.ID, nil, as("alice"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var got domain.ChecklistRecord
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, rec, got)

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/checklists/"+rec.ID, nil, as("mallory"))
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "not_found", errorCode(t, data))

	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/checklists/does-not-exist", nil, as("alice"))
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestCreateChecklistRejectsUnknownSelection(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/checklists", map[string]any{
		"company_type": "Partnership Firm",
		"jurisdiction": "Atlantis",
		"industry":     "",
	}, as("alice"))
	require.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))
	assert.Equal(t, "validation_failed", errorCode(t, data))
	assert.Contains(t, string(data), "jurisdiction")
	assert.Contains(t, string(data), "industry")

	page, err := srv.Engine.ListChecklists(context.Background(), "alice", engine.PageRequest{})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}

func TestListChecklistsPagination(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	var created []string
	for i := 0; i < 3; i++ {
		created = append(created, createChecklist(t, srv, "alice").ID)
	}
	createChecklist(t, srv, "bob")

	seen := map[string]bool{}
	cursor := ""
	pages := 0
	for {
		url := srv.URL + "/v0/checklists?limit=2"
		if cursor != "" {
			url += "&cursor=" + cursor
		}
		res, data := doJSON(t, srv.Client(), http.MethodGet, url, nil, as("alice"))
		require.Equal(t, http.StatusOK, res.StatusCode, string(data))
		var page domain.Page[domain.ChecklistRecord]
		require.NoError(t, json.Unmarshal(data, &page))
		for _, r := range page.Items {
			assert.Equal(t, "alice", r.OwnerID)
			seen[r.ID] = true
		}
		pages++
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	assert.Equal(t, 2, pages)
	for _, id := range created {
		assert.True(t, seen[id], id)
	}

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/checklists?cursor=garbage", nil, as("alice"))
	assert.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))
}

func TestGroupsAndDownload(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	rec := createChecklist(t, srv, "alice")

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/checklists/"+rec.ID+"/groups", nil, as("alice"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var grouped GroupedChecklistResponse
	require.NoError(t, json.Unmarshal(data, &grouped))
	assert.Equal(t, checklist.GroupByCategory(rec.Items), grouped.Groups)

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/checklists/"+rec.ID+"/download", nil, as("alice"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.True(t, strings.HasPrefix(res.Header.Get("Content-Type"), "text/plain"))
	assert.Contains(t, res.Header.Get("Content-Disposition"), "compliance-checklist-"+rec.ID+".txt")
	body := string(data)
	assert.True(t, strings.HasPrefix(body, "Compliance Checklist\n"))
	assert.Contains(t, body, "Company Type: Partnership Firm")
	assert.Contains(t, body, "State: Kerala")
	assert.Contains(t, body, "Industry: Education")

	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/checklists/"+rec.ID+"/download", nil, as("bob"))
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestTechnologyChecklistEndToEnd(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/checklists", map[string]any{
		"company_type": "Private Limited Company",
		"jurisdiction": "Delhi",
		"industry":     "Technology / IT Services",
	}, as("alice"))
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var rec domain.ChecklistRecord
	require.NoError(t, json.Unmarshal(data, &rec))

	priorities := map[string]domain.Priority{}
	for _, it := range rec.Items {
		priorities[it.Title] = it.Priority
	}
	assert.Equal(t, domain.PriorityHigh, priorities["Privacy Policy"])
	assert.Equal(t, domain.PriorityLow, priorities["Environmental Clearances"])

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/checklists/"+rec.ID+"/download", nil, as("alice"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	header := "Compliance Checklist\n\n" +
		"Company Type: Private Limited Company\n" +
		"State: Delhi\n" +
		"Industry: Technology / IT Services\n"
	assert.True(t, strings.HasPrefix(string(data), header), string(data))
	assert.Contains(t, string(data), "Privacy Policy\n")
}

func TestArchiveDisabledAndDocumentsPlaceholder(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	rec := createChecklist(t, srv, "alice")

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/checklists/"+rec.ID+"/archive", nil, as("alice"))
	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
	assert.Equal(t, "archive_disabled", errorCode(t, data))

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/checklists/"+rec.ID+"/documents", nil, as("alice"))
	assert.Equal(t, http.StatusNotImplemented, res.StatusCode)
	assert.Equal(t, "not_implemented", errorCode(t, data))
}

func TestReminderLifecycle(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/reminders", map[string]any{
		"title":    "File GST return",
		"due_date": "2026-04-20",
	}, as("alice"))
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var rem ReminderResponse
	require.NoError(t, json.Unmarshal(data, &rem))
	assert.False(t, rem.Completed)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/reminders/"+rem.ID+"/toggle", nil, as("alice"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/reminders/"+rem.ID, nil, as("alice"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var got ReminderResponse
	require.NoError(t, json.Unmarshal(data, &got))
	assert.True(t, got.Completed)
	assert.False(t, got.Overdue)

	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v0/reminders/"+rem.ID+"/completed", map[string]any{"completed": false}, as("alice"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	require.NoError(t, json.Unmarshal(data, &got))
	assert.False(t, got.Completed)

	res, _ = doJSON(t, client, http.MethodPost, srv.URL+"/v0/reminders/"+rem.ID+"/toggle", nil, as("bob"))
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/reminders", map[string]any{
		"title":    "Bad date",
		"due_date": "20-04-2026",
	}, as("alice"))
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "validation_failed", errorCode(t, data))

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/reminders", nil, as("alice"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var page ReminderPage
	require.NoError(t, json.Unmarshal(data, &page))
	require.Len(t, page.Items, 1)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?type="+events.ReminderCompleted, nil, as("alice"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var evts EventPage
	require.NoError(t, json.Unmarshal(data, &evts))
	require.Len(t, evts.Items, 1)
	assert.Equal(t, rem.ID, evts.Items[0].EntityID)

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?type=nope", nil, as("alice"))
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestFunctionEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/functions/generate-checklist", map[string]any{
		"companyType": "Sole Proprietorship",
		"state":       "Delhi",
		"industry":    "Manufacturing",
	}, as("alice"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var out generator.FunctionResponse
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Empty(t, out.Error)
	assert.Equal(t, checklist.DeriveChecklist(domain.Selection{CompanyType: "Sole Proprietorship", Jurisdiction: "Delhi", Industry: "Manufacturing"}), out.Checklist)

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/functions/generate-checklist", map[string]any{
		"companyType": "",
		"industry":    "Manufacturing",
	}, as("alice"))
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	out = generator.FunctionResponse{}
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Empty(t, out.Checklist)
	assert.Contains(t, out.Error, "company_type")
}

func TestFunctionEndpointUsesConfiguredRules(t *testing.T) {
	rs, err := checklist.Parse([]byte(`
items:
  - key: reg
    category: Business Registrations
    title: Registration
    description: "Register in {jurisdiction}."
    priority: Low
rules:
  - {item: reg, match_field: industry, match_value: Education, priority: High}
`))
	require.NoError(t, err)
	srv, cleanup := newTestServerWith(t, func(cfg *Config) { cfg.Rules = rs })
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/functions/generate-checklist", map[string]any{
		"companyType": "Partnership Firm",
		"state":       "Kerala",
		"industry":    "Education",
	}, as("alice"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var out generator.FunctionResponse
	require.NoError(t, json.Unmarshal(data, &out))
	require.Len(t, out.Checklist, 1)
	assert.Equal(t, "Register in Kerala.", out.Checklist[0].Description)
	assert.Equal(t, domain.PriorityHigh, out.Checklist[0].Priority)
}

func TestRemoteSourceAgainstFunctionEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	token, err := SignToken(testSecret, "svc", time.Minute, time.Now())
	require.NoError(t, err)

	remote := generator.NewRemote(srv.URL+"/v0/functions", "", token, 5*time.Second)
	sel := domain.Selection{CompanyType: "Partnership Firm", Jurisdiction: "Kerala", Industry: "Education"}
	items, err := remote.Generate(context.Background(), sel)
	require.NoError(t, err)
	assert.Equal(t, checklist.DeriveChecklist(sel), items)
}

func TestAPIKeyAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/api-keys", map[string]any{"name": "ci"}, as("alice"))
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var created CreatedAPIKeyResponse
	require.NoError(t, json.Unmarshal(data, &created))
	require.NotEmpty(t, created.Key)
	assert.NotContains(t, string(data), "key_hash")

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"X-Api-Key": created.Key})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var me WhoAmIResponse
	require.NoError(t, json.Unmarshal(data, &me))
	assert.Equal(t, "alice", me.UserID)
	assert.Equal(t, "api_key", me.Source)

	res, _ = doJSON(t, srv.Client(), http.MethodDelete, srv.URL+"/v0/api-keys/"+created.ID, nil, as("alice"))
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"X-Api-Key": created.Key})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestOptionsAndOpenAPI(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/options", nil, as("alice"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var opts OptionsResponse
	require.NoError(t, json.Unmarshal(data, &opts))
	assert.Len(t, opts.CompanyTypes, 5)
	assert.Len(t, opts.Jurisdictions, 10)
	assert.Len(t, opts.Industries, 10)
	assert.Equal(t, "rules", opts.Source)

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/openapi.json", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(data), "/v0/checklists/{id}/download")
}

func TestPublicPath(t *testing.T) {
	cases := []struct {
		path     string
		devLogin bool
		want     bool
	}{
		{"/v0/health", false, true},
		{"/v0/docs", false, true},
		{"/v0/openapi.json", false, true},
		{"/v0/openapi.yaml", false, true},
		{"/v0/auth/dev/login", false, false},
		{"/v0/auth/dev/login", true, true},
		{"/v0/checklists", true, false},
		{"/v0/checklists/openapi.json", false, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, publicPath("/v0", tc.path, tc.devLogin), tc.path)
	}
}
