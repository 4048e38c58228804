package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"commetrics-server/pkg/access"
	"commetrics-server/pkg/communication"
	"commetrics-server/pkg/messaging"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedScope access.Scope

func (s fixedScope) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(access.WithScope(r.Context(), access.Scope(s))))
	})
}

func startHub(t *testing.T, scope access.Scope) (*AlertHub, *httptest.Server) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	hub := NewAlertHub(quietLogger())
	go hub.Run(ctx)

	s := NewServer(quietLogger(), NewDefaultConfig())
	s.SetAccessMiddleware(fixedScope(scope))
	hub.RegisterHandlers(s)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		cancel()
	})
	return hub, ts
}

func dial(t *testing.T, ts *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + AlertsPath + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readAlert(t *testing.T, conn *websocket.Conn) messaging.Alert {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var alert messaging.Alert
	require.NoError(t, json.Unmarshal(data, &alert))
	return alert
}

func alertFor(manager, department string) messaging.Alert {
	return messaging.Alert{
		ID:         manager + "-1",
		Manager:    manager,
		Department: department,
		Severity:   communication.SeverityCritical,
		PeriodDays: 7,
	}
}

func TestAlertHub_DepartmentFilter(t *testing.T) {
	hub, ts := startHub(t, access.Unrestricted())

	all := dial(t, ts, "")
	sales := dial(t, ts, "?department=Sales")
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, time.Second, 10*time.Millisecond)

	ctx := context.Background()
	require.NoError(t, hub.Publish(ctx, alertFor("Bob", "Support")))
	require.NoError(t, hub.Publish(ctx, alertFor("Alice", "Sales")))

	assert.Equal(t, "Bob", readAlert(t, all).Manager)
	assert.Equal(t, "Alice", readAlert(t, all).Manager)

	// the Support alert is never delivered to the Sales subscriber
	assert.Equal(t, "Alice", readAlert(t, sales).Manager)
}

func TestAlertHub_ScopeLimitsStream(t *testing.T) {
	hub, ts := startHub(t, access.Scope{Departments: []string{"Sales"}})

	conn := dial(t, ts, "")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	ctx := context.Background()
	require.NoError(t, hub.Publish(ctx, alertFor("Bob", "Support")))
	require.NoError(t, hub.Publish(ctx, alertFor("Alice", "Sales")))

	assert.Equal(t, "Alice", readAlert(t, conn).Manager)
}

func TestAlertHub_ForbiddenDepartment(t *testing.T) {
	_, ts := startHub(t, access.Scope{Departments: []string{"Sales"}})

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + AlertsPath + "?department=Support"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAlertHub_DisconnectUnregisters(t *testing.T) {
	hub, ts := startHub(t, access.Unrestricted())

	conn := dial(t, ts, "")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestAlertHub_PublishAfterStop(t *testing.T) {
	hub := NewAlertHub(quietLogger())
	assert.Equal(t, "websocket", hub.Name())

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	require.Eventually(t, hub.IsRunning, time.Second, 10*time.Millisecond)

	cancel()
	<-stopped
	assert.False(t, hub.IsRunning())
	assert.ErrorIs(t, hub.Publish(context.Background(), alertFor("Alice", "Sales")), errHubStopped)
}
