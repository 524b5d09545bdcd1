package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auditflow/auditflow/internal/ports"
)

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(nil, nil)
	go hub.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		orgID, _ := strconv.ParseInt(r.URL.Query().Get("org"), 10, 64)
		hub.Serve(w, r, orgID, 1)
	}))
	t.Cleanup(func() {
		server.Close()
		cancel()
	})
	return hub, server
}

func dial(t *testing.T, server *httptest.Server, org int) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/?org=" + strconv.Itoa(org)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHub_BroadcastsWithinOrganization(t *testing.T) {
	hub, server := startHub(t)
	own := dial(t, server, 1)
	other := dial(t, server, 2)

	require.Eventually(t, func() bool {
		return hub.ClientCount(1) == 1 && hub.ClientCount(2) == 1
	}, time.Second, 10*time.Millisecond)

	event := ports.NewEvent(ports.EventTypeIssueApproved, "issue", 1, 21, 5, map[string]interface{}{"status": "approved"}, time.Now())
	require.NoError(t, hub.Publish(context.Background(), *event))

	own.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := own.ReadMessage()
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(msg, &got))
	assert.Equal(t, ports.EventTypeIssueApproved, got["type"])
	assert.EqualValues(t, 21, got["aggregate_id"])
	assert.NotContains(t, got, "OrganizationID")

	other.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err = other.ReadMessage()
	assert.Error(t, err, "another organization must not receive the event")
}

func TestHub_UnregistersClosedClients(t *testing.T) {
	hub, server := startHub(t)
	conn := dial(t, server, 3)

	require.Eventually(t, func() bool { return hub.ClientCount(3) == 1 }, time.Second, 10*time.Millisecond)
	conn.Close()
	assert.Eventually(t, func() bool { return hub.ClientCount(3) == 0 }, time.Second, 10*time.Millisecond)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://audit.example.com"})

	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Origin", "https://audit.example.com")
	assert.True(t, check(r))

	r.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, check(r))
}
