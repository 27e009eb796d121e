package wsrelay

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rcourtman/workbench-core/internal/eventbus"
	"github.com/rcourtman/workbench-core/internal/wkblog"
	"github.com/stretchr/testify/require"
)

func wsURLForHTTP(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func newTestServer(t *testing.T, allowedOrigins []string) (*httptest.Server, *eventbus.Hub) {
	t.Helper()
	wkblog.Init(false)
	hub := eventbus.NewHub()
	relay := New(hub, wkblog.For("wsrelay-test"), allowedOrigins)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		relay.ServeSession(w, r, "sess-1")
	}))
	t.Cleanup(ts.Close)
	return ts, hub
}

func TestServeSessionRelaysMatchingEvents(t *testing.T) {
	ts, hub := newTestServer(t, nil)

	conn, _, err := websocket.DefaultDialer.Dial(wsURLForHTTP(ts.URL), nil)
	require.NoError(t, err)
	defer conn.Close()

	time.Sleep(20 * time.Millisecond)

	hub.Publish(eventbus.Event{Kind: eventbus.KindOutput, SessionID: "sess-1", Line: "hello"})
	hub.Publish(eventbus.Event{Kind: eventbus.KindOutput, SessionID: "other-session", Line: "ignored"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, "hello", string(msg))
}

func TestServeSessionRejectsDisallowedOrigin(t *testing.T) {
	ts, _ := newTestServer(t, []string{"https://allowed.example"})

	header := http.Header{}
	header.Set("Origin", "https://evil.example")
	_, resp, err := websocket.DefaultDialer.Dial(wsURLForHTTP(ts.URL), header)
	require.Error(t, err)
	if resp != nil {
		require.NotEqual(t, http.StatusSwitchingProtocols, resp.StatusCode)
	}
}

func TestServeSessionAllowsMatchingOrigin(t *testing.T) {
	ts, _ := newTestServer(t, []string{"https://allowed.example"})

	header := http.Header{}
	header.Set("Origin", "https://allowed.example")
	conn, _, err := websocket.DefaultDialer.Dial(wsURLForHTTP(ts.URL), header)
	require.NoError(t, err)
	conn.Close()
}
