package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linesmerrill/sos-dispatch-api/api"
	"github.com/linesmerrill/sos-dispatch-api/api/handlers"
	"github.com/linesmerrill/sos-dispatch-api/api/testhelpers"
	"github.com/linesmerrill/sos-dispatch-api/config"
	"github.com/linesmerrill/sos-dispatch-api/databases"
	"github.com/linesmerrill/sos-dispatch-api/databases/memstore"
	"github.com/linesmerrill/sos-dispatch-api/geo"
	"github.com/linesmerrill/sos-dispatch-api/models"
)

var (
	centre = geo.Point{Lat: 20.2961, Lng: 85.8245}
	twoKm  = geo.Point{Lat: 20.3141, Lng: 85.8245}
	fiveKm = geo.Point{Lat: 20.3411, Lng: 85.8245}
)

type fixture struct {
	t     *testing.T
	app   *handlers.App
	store *databases.Store
}

func testConfig(autoAssign bool) config.Config {
	return config.Config{
		JWTSecret:      testhelpers.Secret,
		TokenTTL:       time.Hour,
		RequestTimeout: 5 * time.Second,
		Dispatch: config.Dispatch{
			AutoAssignEnabled:            autoAssign,
			MaxAssignmentDistanceKm:      10,
			MaxCommitAttempts:            3,
			OfficerLocationStaleAfter:    10 * time.Minute,
			LocationHistoryRetentionDays: 7,
		},
	}
}

func newFixture(t *testing.T, autoAssign bool) *fixture {
	store := memstore.New()
	return &fixture{t: t, app: handlers.NewApp(testConfig(autoAssign), store, nil), store: store}
}

// login seeds an account with role and exchanges its credentials for a token
func (f *fixture) login(email string, role models.Role) (models.Account, string) {
	f.t.Helper()
	account := testhelpers.SeedAccount(f.t, f.store, email, role)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", nil)
	req.SetBasicAuth(email, testhelpers.Password)
	rr := httptest.NewRecorder()
	f.app.Router.ServeHTTP(rr, req)
	require.Equal(f.t, http.StatusOK, rr.Code, rr.Body.String())

	var tok api.TokenResponse
	require.NoError(f.t, json.Unmarshal(rr.Body.Bytes(), &tok))
	return account, tok.Token
}

func (f *fixture) seedOfficer(account models.Account, code string, at geo.Point) models.Officer {
	f.t.Helper()
	now := time.Now().UTC()
	o := models.Officer{
		ID:                uuid.NewString(),
		UserID:            account.ID,
		OfficerCode:       code,
		Name:              "Officer " + code,
		Status:            models.OfficerAvailable,
		Position:          &at,
		PositionUpdatedAt: &now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	require.NoError(f.t, f.store.Officers.InsertOne(context.Background(), o))
	return o
}

func (f *fixture) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	f.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(f.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	f.app.Router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t, false)

	rr := f.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"alive": true}`, rr.Body.String())

	rr = f.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "go_goroutines")
}

func TestRoutesRequireAuthentication(t *testing.T) {
	f := newFixture(t, false)

	for _, route := range []struct{ method, path string }{
		{http.MethodPost, "/api/v1/cases"},
		{http.MethodGet, "/api/v1/cases"},
		{http.MethodGet, "/api/v1/case/abc"},
		{http.MethodGet, "/api/v1/officers/nearby?lat=1&lng=1"},
		{http.MethodPost, "/api/v1/officer/location"},
		{http.MethodGet, "/ws/notifications"},
	} {
		rr := f.do(route.method, route.path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code, "%s %s", route.method, route.path)

		var resp models.ErrorMessageResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, "unauthorized", resp.Response.Message)
	}
}

func TestCreateToken_BadCredentials(t *testing.T) {
	f := newFixture(t, false)
	f.login("citizen@example.com", models.RoleCitizen)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", nil)
	req.SetBasicAuth("citizen@example.com", "wrong")
	rr := httptest.NewRecorder()
	f.app.Router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestInitialize_RequiresSecret(t *testing.T) {
	a := handlers.App{Config: config.Config{Driver: config.DriverMemory}}
	assert.Error(t, a.Initialize(context.Background()))

	a.Config.JWTSecret = testhelpers.Secret
	require.NoError(t, a.Initialize(context.Background()))
	assert.NotNil(t, a.Router)
	assert.NotNil(t, a.Hub)
	assert.NoError(t, a.Close(context.Background()))
}
