package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/harrylevesque/makerdash/internal/auth"
	"github.com/harrylevesque/makerdash/internal/dashboard"
	"github.com/harrylevesque/makerdash/internal/events"
	"github.com/harrylevesque/makerdash/internal/files"
	"github.com/harrylevesque/makerdash/internal/maker"
	"github.com/harrylevesque/makerdash/internal/middleware"
	"github.com/harrylevesque/makerdash/internal/models"
	"github.com/harrylevesque/makerdash/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newService(t *testing.T) *dashboard.Service {
	t.Helper()
	root := t.TempDir()
	st, err := store.OpenStore(filepath.Join(root, "makerdash.db"), nil)
	require.NoError(t, err)
	settings, err := files.NewSettingsStore(root, nil)
	require.NoError(t, err)
	mgr := maker.NewManager(zap.NewNop())
	hub := events.NewHub(events.DefaultBuffer)
	t.Cleanup(func() {
		hub.Close()
		mgr.Close()
		st.Close()
	})

	svc := dashboard.New(st, mgr, settings, hub, zap.NewNop(), dashboard.Config{DataRoot: root})
	seeded, err := svc.SeedDemo(context.Background())
	require.NoError(t, err)
	require.True(t, seeded)
	return svc
}

func newTestServer(t *testing.T, opts Options) *httptest.Server {
	t.Helper()
	if opts.Service == nil {
		opts.Service = newService(t)
	}
	srv := httptest.NewServer(NewRouter(opts))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, token string, body any) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = strings.NewReader(string(raw))
	}
	req, err := http.NewRequest(method, url, rd)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func firstMakerID(t *testing.T, base string) string {
	t.Helper()
	_, body := do(t, http.MethodGet, base+"/api/makers", "", nil)
	var makers []models.MakerSummary
	require.NoError(t, json.Unmarshal(body, &makers))
	require.NotEmpty(t, makers)
	return makers[0].ID
}

func TestHealthAndTime(t *testing.T) {
	srv := newTestServer(t, Options{})

	for _, p := range []string{"/health", "/api/health"} {
		resp, body := do(t, http.MethodGet, srv.URL+p, "", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "OK\n", string(body))
		assert.NotEmpty(t, resp.Header.Get(middleware.TraceHeader))
	}

	resp, body := do(t, http.MethodGet, srv.URL+"/api/time", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var out map[string]string
	require.NoError(t, json.Unmarshal(body, &out))
	_, err := time.Parse(time.RFC3339, out["time"])
	assert.NoError(t, err)
}

func TestDashboardAndMakers(t *testing.T) {
	srv := newTestServer(t, Options{})

	resp, body := do(t, http.MethodGet, srv.URL+"/api/dashboard", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var d models.DashboardSummary
	require.NoError(t, json.Unmarshal(body, &d))
	assert.Equal(t, "3.32", d.TotalBalance)
	assert.Equal(t, 4, d.OnlineMakers)
	assert.Len(t, d.Activity, 5)

	id := firstMakerID(t, srv.URL)
	resp, body = do(t, http.MethodGet, srv.URL+"/api/makers/"+id, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var detail models.MakerDetail
	require.NoError(t, json.Unmarshal(body, &detail))
	assert.Equal(t, "Maker 1", detail.Name)
	assert.Contains(t, string(body), `"bitcoinPassword_set":false`)

	resp, body = do(t, http.MethodGet, srv.URL+"/api/makers/mk--nope", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), `"error"`)

	resp, _ = do(t, http.MethodGet, srv.URL+"/api/makers/"+id+"/utxos?kind=fidelity", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = do(t, http.MethodGet, srv.URL+"/api/makers/"+id+"/utxos?kind=bogus", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = do(t, http.MethodGet, srv.URL+"/api/makers/"+id+"/logs?limit=x", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = do(t, http.MethodGet, srv.URL+"/api/makers/"+id+"/tor-address", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), ".onion:5103")
}

func TestMakerLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t, Options{})
	id := firstMakerID(t, srv.URL)
	base := srv.URL + "/api/makers/" + id

	resp, _ := do(t, http.MethodPost, base+"/stop", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, body := do(t, http.MethodGet, base+"/balances", "", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, string(body), "not running")

	resp, _ = do(t, http.MethodPost, base+"/start", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = do(t, http.MethodPost, base+"/start", "", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = do(t, http.MethodPost, base+"/address", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"address":"tb1`)

	resp, _ = do(t, http.MethodPost, base+"/send", "", models.SendRequest{Address: "junk", Amount: 1000})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, body = do(t, http.MethodGet, base+"/config", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var cfg files.MakerFileConfig
	require.NoError(t, json.Unmarshal(body, &cfg))
	cfg.BaseFee = 321
	resp, _ = do(t, http.MethodPut, base+"/config", "", cfg)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, http.MethodDelete, base, "", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = do(t, http.MethodGet, base, "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAddMakerRejectsBadInput(t *testing.T) {
	srv := newTestServer(t, Options{})

	resp, _ := do(t, http.MethodPost, srv.URL+"/api/makers", "", models.AddMakerRequest{Name: "x", RPCPort: 0})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/makers", strings.NewReader("{not json"))
	require.NoError(t, err)
	raw, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	raw.Body.Close()
	assert.Equal(t, http.StatusBadRequest, raw.StatusCode)
}

func TestSettingsRoutes(t *testing.T) {
	srv := newTestServer(t, Options{})

	next := models.DefaultSettings()
	next.RPCPassword = "hunter2"
	resp, body := do(t, http.MethodPut, srv.URL+"/api/settings", "", next)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotContains(t, string(body), "hunter2")
	assert.Contains(t, string(body), `"rpcPassword_set":true`)

	resp, body = do(t, http.MethodGet, srv.URL+"/api/settings/zmq-config", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "zmqpubrawblock=tcp://127.0.0.1:28332")

	// Nothing listens on port 1, so the test reports a disconnected node.
	closed := models.DefaultSettings()
	closed.RPCPort = 1
	resp, body = do(t, http.MethodPost, srv.URL+"/api/settings/test-connection", "", closed)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status models.BitcoinStatus
	require.NoError(t, json.Unmarshal(body, &status))
	assert.False(t, status.Connected)
	assert.Equal(t, "--", status.BlockHeight)
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, Options{CORS: middleware.NewCORS([]string{"http://localhost:5173"})})

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/makers", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestAuthRequiredWhenConfigured(t *testing.T) {
	issuer, err := auth.NewIssuer([]byte(strings.Repeat("k", 32)), time.Hour)
	require.NoError(t, err)
	hash, err := auth.HashPassword("correct horse")
	require.NoError(t, err)
	srv := newTestServer(t, Options{
		Issuer:      issuer,
		Credentials: auth.Credentials{Username: "admin", PasswordHash: hash},
	})

	resp, _ := do(t, http.MethodGet, srv.URL+"/api/dashboard", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, _ = do(t, http.MethodGet, srv.URL+"/api/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = do(t, http.MethodGet, srv.URL+"/settings", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "pages stay public")
	resp, _ = do(t, http.MethodGet, srv.URL+"/metrics", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, _ = do(t, http.MethodGet, srv.URL+"/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/auth/login", "", auth.LoginRequest{Username: "admin", Password: "correct horse"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var login auth.LoginResponse
	require.NoError(t, json.Unmarshal(body, &login))

	resp, _ = do(t, http.MethodGet, srv.URL+"/api/dashboard", login.Token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, body = do(t, http.MethodGet, srv.URL+"/metrics", login.Token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "# HELP")
}

func TestSPAFallback(t *testing.T) {
	srv := newTestServer(t, Options{StaticDir: filepath.Join(t.TempDir(), "missing")})

	for _, p := range []string{"/", "/maker", "/makerDetails/mk--1", "/addMaker", "/settings"} {
		resp, body := do(t, http.MethodGet, srv.URL+p, "", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode, p)
		assert.Contains(t, string(body), "Coinswap Maker Dashboard", p)
	}

	resp, body := do(t, http.MethodGet, srv.URL+"/api/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), `"error"`)
}

func TestSPAServesBuildDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<p>built app</p>"), 0o600))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "assets"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "assets", "app.js"), []byte("console.log(1)"), 0o600))
	srv := newTestServer(t, Options{StaticDir: dir})

	_, body := do(t, http.MethodGet, srv.URL+"/makerDetails/mk--1", "", nil)
	assert.Equal(t, "<p>built app</p>", string(body))
	resp, body := do(t, http.MethodGet, srv.URL+"/assets/app.js", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "console.log(1)", string(body))
	_, body = do(t, http.MethodGet, srv.URL+"/assets", "", nil)
	assert.Equal(t, "<p>built app</p>", string(body))
}

func TestFindBuildDirUnderModuleRoot(t *testing.T) {
	// Tests run in internal/api, two levels below go.mod.
	dir, ok := findBuildDir(filepath.Join("internal", "web", "static"))
	require.True(t, ok)
	assert.True(t, filepath.IsAbs(dir))

	_, ok = findBuildDir(filepath.Join("no", "such", "build"))
	assert.False(t, ok)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, Options{})
	do(t, http.MethodGet, srv.URL+"/api/dashboard", "", nil)

	resp, body := do(t, http.MethodGet, srv.URL+"/metrics", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `makerdash_http_requests_total{method="GET",path="/api/dashboard",status="200"}`)
	assert.Contains(t, string(body), "makerdash_maker_running")
}

func TestActivityStream(t *testing.T) {
	srv := newTestServer(t, Options{})
	id := firstMakerID(t, srv.URL)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws?maker=" + id
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Activity for another maker is filtered out.
	_, body := do(t, http.MethodGet, srv.URL+"/api/makers", "", nil)
	var makers []models.MakerSummary
	require.NoError(t, json.Unmarshal(body, &makers))
	require.Len(t, makers, 4)
	do(t, http.MethodPost, srv.URL+"/api/makers/"+makers[1].ID+"/address", "", nil)
	do(t, http.MethodPost, srv.URL+"/api/makers/"+id+"/address", "", nil)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var a models.Activity
	require.NoError(t, conn.ReadJSON(&a))
	assert.Equal(t, models.ActivityNewAddress, a.Type)
	assert.Equal(t, id, a.MakerID)
	assert.Equal(t, "just now", a.Time)
}
