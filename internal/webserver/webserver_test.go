package webserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetdesk/console/internal/apiclient"
	"github.com/fleetdesk/console/internal/config"
	"github.com/fleetdesk/console/internal/navigation"
	"github.com/fleetdesk/console/internal/session"
	"github.com/fleetdesk/console/internal/storage"
)

func mintToken(t *testing.T, sub string, roles ...string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":         sub,
		"roles":       roles,
		"permissions": []string{"READ"},
		"iat":         time.Now().Unix(),
		"exp":         time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return tok
}

func envelope(w http.ResponseWriter, status, code int, message string, result any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"code": code, "message": message, "result": result})
}

type backend struct {
	mu      sync.Mutex
	token   string
	bearers    []string
	requestIDs []string
	logouts    []string
}

func (b *backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.bearers = append(b.bearers, r.Header.Get("Authorization"))
	b.requestIDs = append(b.requestIDs, r.Header.Get(apiclient.RequestIDHeader))
	b.mu.Unlock()

	switch r.URL.Path {
	case apiclient.LoginPath:
		var creds apiclient.Credentials
		_ = json.NewDecoder(r.Body).Decode(&creds)
		switch creds.Username {
		case "locked":
			envelope(w, http.StatusOK, 1005, "Account is locked", nil)
		case "admin", "driver7":
			if creds.Password != "secret" {
				envelope(w, http.StatusUnauthorized, 1001, "Bad credentials", nil)
				return
			}
			envelope(w, http.StatusOK, apiclient.CodeSuccess, "", map[string]string{"token": b.token})
		}
	case apiclient.LogoutPath:
		var body struct {
			Token string `json:"token"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		b.mu.Lock()
		b.logouts = append(b.logouts, body.Token)
		b.mu.Unlock()
		envelope(w, http.StatusOK, apiclient.CodeSuccess, "", nil)
	case "/truck/viewTruck":
		envelope(w, http.StatusOK, apiclient.CodeSuccess, "", []map[string]any{{"id": 1, "status": "AVAILABLE"}})
	case "/cost/approveCost/3":
		envelope(w, http.StatusOK, 2004, "Cost already approved", nil)
	case "/user/viewUser":
		envelope(w, http.StatusForbidden, 403, "Forbidden", nil)
	case "/route/viewRoute":
		envelope(w, http.StatusUnauthorized, 401, "Token expired", nil)
	case "/inventory/exportInventory":
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte("PK\x03\x04"))
	default:
		http.NotFound(w, r)
	}
}

type fixture struct {
	server  *Webserver
	backend *backend
	session *session.Store
	storage *storage.MemoryStore
	router  *navigation.Router
}

func newFixture(t *testing.T, conf *config.Config, token string) *fixture {
	t.Helper()

	be := &backend{token: token}
	srv := httptest.NewServer(be)
	t.Cleanup(srv.Close)

	if conf == nil {
		t.Setenv(config.BaseURLEnvVar, "")
		conf = config.Default()
	}

	store := storage.NewMemoryStore()
	router := navigation.NewRouter()
	client := apiclient.New(apiclient.Options{BaseURL: srv.URL}, store, router)
	sess := session.NewStore(client, store, router)

	return &fixture{
		server:  New(conf, sess, client, router, nil),
		backend: be,
		session: sess,
		storage: store,
		router:  router,
	}
}

func (f *fixture) initialize(t *testing.T) *fixture {
	t.Helper()
	require.NoError(t, f.session.Initialize(context.Background()))
	return f
}

func (f *fixture) do(method, target, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (f *fixture) login(t *testing.T, username string) {
	t.Helper()
	rec := f.do(http.MethodPost, "/login", "application/json", `{"username":"`+username+`","password":"secret"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apiclient.Error {
	t.Helper()
	var res apiclient.Error
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res
}

func TestPing(t *testing.T) {
	f := newFixture(t, nil, "")
	rec := f.do(http.MethodGet, "/ping", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pong", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestAuth_LoadingUntilInitialized(t *testing.T) {
	f := newFixture(t, nil, "")

	assert.Equal(t, http.StatusServiceUnavailable, f.do(http.MethodGet, "/auth", "", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, f.do(http.MethodGet, "/api/trucks", "", "").Code)

	f.initialize(t)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/auth", "", "").Code)
}

func TestLogin_Success(t *testing.T) {
	f := newFixture(t, nil, "").initialize(t)
	f.backend.token = mintToken(t, "admin", "ADMIN")

	f.login(t, "admin")

	rec := f.do(http.MethodGet, "/auth", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var info AuthInfoRes
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "admin", info.Username)
	assert.Equal(t, "admin", info.DisplayName)
	assert.Equal(t, []string{"ADMIN"}, info.Roles)
	assert.Equal(t, []string{"READ"}, info.Permissions)
	assert.Greater(t, info.ExpiresAt, time.Now().Unix())

	assert.Equal(t, navigation.DashboardPath, f.router.Location())

	tok, err := storage.Token(context.Background(), f.storage)
	require.NoError(t, err)
	assert.Equal(t, f.backend.token, tok)
}

func TestLogin_FormWithRedirect(t *testing.T) {
	f := newFixture(t, nil, "").initialize(t)
	f.backend.token = mintToken(t, "admin", "ADMIN")

	form := url.Values{"username": {"admin"}, "password": {"secret"}, "redir": {"/api/trucks"}}
	rec := f.do(http.MethodPost, "/login", "application/x-www-form-urlencoded", form.Encode())
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/api/trucks", rec.Header().Get("Location"))

	// Already logged in, the login screen sends us on
	rec = f.do(http.MethodGet, "/login?redir=//evil.example.com", "", "")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, navigation.DashboardPath, rec.Header().Get("Location"))
}

func TestLogin_OffsiteRedirectIgnored(t *testing.T) {
	f := newFixture(t, nil, "").initialize(t)
	f.backend.token = mintToken(t, "admin", "ADMIN")

	rec := f.do(http.MethodPost, "/login?redir=https://evil.example.com", "application/json", `{"username":"admin","password":"secret"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogin_Failures(t *testing.T) {
	f := newFixture(t, nil, "").initialize(t)
	f.backend.token = mintToken(t, "admin", "ADMIN")

	rec := f.do(http.MethodPost, "/login", "application/json", `{"username":"admin"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/login", "application/json", `{"username":"admin","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	res := decodeError(t, rec)
	assert.Equal(t, 1001, res.Code)
	assert.Equal(t, "Bad credentials", res.Message)

	// Already on the login screen, so the 401 doesn't force another move
	assert.Equal(t, navigation.LoginPath, f.router.Location())
	assert.Zero(t, f.router.Redirects())

	rec = f.do(http.MethodPost, "/login", "application/json", `{"username":"locked","password":"secret"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	res = decodeError(t, rec)
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, 1005, res.Code)
	assert.Equal(t, "Account is locked", res.Message)

	assert.False(t, f.session.IsAuthenticated())
}

func TestLogin_NoTokenFromBackend(t *testing.T) {
	f := newFixture(t, nil, "").initialize(t)

	rec := f.do(http.MethodPost, "/login", "application/json", `{"username":"admin","password":"secret"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "No token received from server", decodeError(t, rec).Message)
}

func TestAPI_RequiresSession(t *testing.T) {
	f := newFixture(t, nil, "").initialize(t)

	rec := f.do(http.MethodGet, "/api/trucks?status=AVAILABLE", "", "")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login?redir="+url.QueryEscape("/api/trucks?status=AVAILABLE"), rec.Header().Get("Location"))
	assert.Equal(t, navigation.LoginPath, f.router.Location())
}

func TestAPI_ListAttachesBearer(t *testing.T) {
	f := newFixture(t, nil, "").initialize(t)
	f.backend.token = mintToken(t, "admin", "ADMIN")
	f.login(t, "admin")

	rec := f.do(http.MethodGet, "/api/trucks", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"id":1,"status":"AVAILABLE"}]`, rec.Body.String())

	f.backend.mu.Lock()
	last := f.backend.bearers[len(f.backend.bearers)-1]
	f.backend.mu.Unlock()
	assert.Equal(t, "Bearer "+f.backend.token, last)
	assert.Equal(t, "/api/trucks", f.router.Location())
}

func TestAPI_Errors(t *testing.T) {
	f := newFixture(t, nil, "").initialize(t)
	f.backend.token = mintToken(t, "admin", "ADMIN")
	f.login(t, "admin")

	rec := f.do(http.MethodPost, "/api/costs/3/approve", "", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "Cost already approved", decodeError(t, rec).Message)

	rec = f.do(http.MethodGet, "/api/users", "", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.True(t, f.session.IsAuthenticated())

	rec = f.do(http.MethodGet, "/api/spaceships", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodPost, "/api/trucks", "application/json", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/api/trucks/1/status", "application/json", `{"status":"FLYING"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_UnauthorizedEndsSession(t *testing.T) {
	f := newFixture(t, nil, "").initialize(t)
	f.backend.token = mintToken(t, "admin", "ADMIN")
	f.login(t, "admin")

	rec := f.do(http.MethodGet, "/api/routes", "", "")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login?redir="+url.QueryEscape("/api/routes"), rec.Header().Get("Location"))

	assert.Equal(t, navigation.LoginPath, f.router.Location())
	assert.Equal(t, 1, f.router.Redirects())

	tok, err := storage.Token(context.Background(), f.storage)
	require.NoError(t, err)
	assert.Empty(t, tok)

	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/auth", "", "").Code)
}

func TestAPI_PassesThroughExports(t *testing.T) {
	f := newFixture(t, nil, "").initialize(t)
	f.backend.token = mintToken(t, "admin", "ADMIN")
	f.login(t, "admin")

	rec := f.do(http.MethodPost, "/api/inventories/actions/export", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/octet-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "PK\x03\x04", rec.Body.String())
}

func TestAPI_Enums(t *testing.T) {
	f := newFixture(t, nil, "").initialize(t)
	f.backend.token = mintToken(t, "admin", "ADMIN")
	f.login(t, "admin")

	rec := f.do(http.MethodGet, "/api/enums", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var enums map[string]struct {
		Values []string `json:"values"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &enums))
	assert.Contains(t, enums["truck-status"].Values, "MAINTENANCE")
}

func TestAPI_ACLs(t *testing.T) {
	t.Setenv(config.BaseURLEnvVar, "")
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[storage]
type = "memory"

[access_control.route_groups]
money = ["/api/costs*", "/api/salary-reports*"]

[access_control.acls]
ADMIN = ["money"]
`), 0o600))
	conf, err := config.LoadFromTomlFileAndValidate(path)
	require.NoError(t, err)

	f := newFixture(t, conf, "").initialize(t)
	f.backend.token = mintToken(t, "driver7", "DRIVER")
	f.login(t, "driver7")

	rec := f.do(http.MethodGet, "/api/salary-reports", "", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(http.MethodGet, "/api/trucks", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogout(t *testing.T) {
	f := newFixture(t, nil, "").initialize(t)
	f.backend.token = mintToken(t, "admin", "ADMIN")
	f.login(t, "admin")

	rec := f.do(http.MethodPost, "/logout", "", "")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, navigation.LoginPath, rec.Header().Get("Location"))

	assert.Equal(t, []string{f.backend.token}, f.backend.logouts)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/auth", "", "").Code)

	// Second logout has nothing to tell the backend
	rec = f.do(http.MethodPost, "/logout", "", "")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Len(t, f.backend.logouts, 1)
}

func TestRun_StopsOnCancel(t *testing.T) {
	t.Setenv(config.BaseURLEnvVar, "")
	conf := config.Default()
	conf.ListenPort = 0

	f := newFixture(t, conf, "")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- f.server.Run(ctx)
	}()

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server didn't stop")
	}
}

func TestAPI_ForwardsRequestID(t *testing.T) {
	f := newFixture(t, nil, "").initialize(t)
	f.backend.token = mintToken(t, "admin", "ADMIN")
	f.login(t, "admin")

	req := httptest.NewRequest(http.MethodGet, "/api/trucks", nil)
	req.Header.Set("X-Request-ID", "console-req-1")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "console-req-1", rec.Header().Get("X-Request-ID"))

	rec = f.do(http.MethodGet, "/api/trucks", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	f.backend.mu.Lock()
	defer f.backend.mu.Unlock()
	ids := f.backend.requestIDs
	require.GreaterOrEqual(t, len(ids), 2)
	assert.Equal(t, "console-req-1", ids[len(ids)-2])
	assert.Equal(t, rec.Header().Get("X-Request-ID"), ids[len(ids)-1])
}
