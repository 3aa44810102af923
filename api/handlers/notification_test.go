package handlers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linesmerrill/sos-dispatch-api/api/handlers"
	"github.com/linesmerrill/sos-dispatch-api/models"
	"github.com/linesmerrill/sos-dispatch-api/notify"
)

func TestNotificationsHandler_ReceivesCaseUpdates(t *testing.T) {
	f := newFixture(t, false)
	_, adminToken := f.login("admin@example.com", models.RoleAdmin)
	_, citizenToken := f.login("citizen@example.com", models.RoleCitizen)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.app.Hub.Run(ctx)

	srv := httptest.NewServer(f.app.Router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/notifications?access_token=" + adminToken
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Eventually(t, func() bool { return f.app.Hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	rr := f.do(http.MethodPost, "/api/v1/cases", citizenToken, handlers.CreateCaseRequest{Position: centre})
	require.Equal(t, http.StatusCreated, rr.Code)
	created := decode[handlers.CreateCaseResponse](t, rr)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg notify.Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, notify.EventCaseStatusChanged, msg.Event)
	assert.Equal(t, created.Case.ID, msg.Data.CaseID)
	assert.Equal(t, models.CaseCreated, msg.Data.ToStatus)
}

func TestNotificationsHandler_RejectsBadToken(t *testing.T) {
	f := newFixture(t, false)
	srv := httptest.NewServer(f.app.Router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/notifications?access_token=nope"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
