package ws

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harunnryd/avatarchat/pkg/conversation"
	"github.com/harunnryd/avatarchat/pkg/intent"
	"github.com/harunnryd/avatarchat/pkg/phase"
	"github.com/harunnryd/avatarchat/pkg/transports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, cfg Config, gatherer prometheus.Gatherer) (*Transport, *httptest.Server) {
	t.Helper()
	tr := New(cfg, gatherer, nil)
	srv := httptest.NewServer(tr.Handler())
	t.Cleanup(func() {
		_ = tr.Stop()
		srv.Close()
	})
	return tr, srv
}

func dial(t *testing.T, srv *httptest.Server, header http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func waitClients(t *testing.T, tr *Transport, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return tr.Clients() == n }, 2*time.Second, 5*time.Millisecond)
}

func TestNewClientReceivesSnapshot(t *testing.T) {
	tr, srv := startServer(t, Config{}, nil)
	tr.SetSnapshot(func() conversation.PhaseChanged {
		return conversation.PhaseChanged{To: phase.Listening, ConversationID: "c-1"}
	})

	conn := dial(t, srv, nil)
	msg := readMessage(t, conn)

	assert.Equal(t, typeSnapshot, msg.Type)
	assert.Equal(t, "listening", msg.To)
	assert.Equal(t, "Listening...", msg.Status)
	assert.Equal(t, "listening", msg.Clip)
	assert.True(t, msg.Loop)
	assert.Empty(t, msg.From)
	assert.Equal(t, "c-1", msg.ConversationID)
}

func TestSnapshotFallsBackToLastPhase(t *testing.T) {
	tr, srv := startServer(t, Config{}, nil)
	tr.OnNotification(conversation.PhaseChanged{From: phase.Idle, To: phase.Greeting, ConversationID: "c-2"})

	conn := dial(t, srv, nil)
	msg := readMessage(t, conn)
	assert.Equal(t, "greeting", msg.To)
	assert.Equal(t, "listening", msg.FollowUp)
}

func TestNotificationsBroadcast(t *testing.T) {
	tr, srv := startServer(t, Config{}, nil)
	a := dial(t, srv, nil)
	b := dial(t, srv, nil)
	readMessage(t, a)
	readMessage(t, b)
	waitClients(t, tr, 2)

	tr.OnNotification(conversation.PhaseChanged{
		From:   phase.Listening,
		To:     phase.Responding(intent.Weather),
		Reason: "speech_recognized",
	})
	tr.OnNotification(conversation.TextRecognized{Text: "what's the weather", Kind: intent.Weather})
	tr.OnNotification(conversation.SuspensionChanged{Held: true, ByUser: true})

	for _, conn := range []*websocket.Conn{a, b} {
		msg := readMessage(t, conn)
		assert.Equal(t, "phase_changed", msg.Type)
		assert.Equal(t, "listening", msg.From)
		assert.Equal(t, "responding(weather)", msg.To)
		assert.Equal(t, "weather", msg.Clip)
		assert.Equal(t, "Talking about weather...", msg.Status)

		msg = readMessage(t, conn)
		assert.Equal(t, "text_recognized", msg.Type)
		assert.Equal(t, "weather", msg.Kind)

		msg = readMessage(t, conn)
		assert.Equal(t, "suspension_changed", msg.Type)
		require.NotNil(t, msg.Held)
		assert.True(t, *msg.Held)
		require.NotNil(t, msg.ByUser)
		assert.True(t, *msg.ByUser)
	}
}

func TestCommandsAreDecoded(t *testing.T) {
	tr, srv := startServer(t, Config{}, nil)
	conn := dial(t, srv, nil)
	readMessage(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "start"}))
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "say", "text": "  hello there "}))

	var got []transports.Command
	for len(got) < 2 {
		select {
		case cmd := <-tr.Commands():
			got = append(got, cmd)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for commands")
		}
	}
	assert.Equal(t, transports.CommandStart, got[0].Type)
	assert.NotEmpty(t, got[0].ClientID)
	assert.Equal(t, transports.CommandSay, got[1].Type)
	assert.Equal(t, "hello there", got[1].Text)
}

func TestInvalidCommandGetsError(t *testing.T) {
	tr, srv := startServer(t, Config{}, nil)
	conn := dial(t, srv, nil)
	readMessage(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"dance"}`)))
	msg := readMessage(t, conn)
	assert.Equal(t, typeError, msg.Type)
	assert.Contains(t, msg.Error, "dance")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"say"}`)))
	msg = readMessage(t, conn)
	assert.Equal(t, typeError, msg.Type)

	select {
	case cmd := <-tr.Commands():
		t.Fatalf("unexpected command %v", cmd)
	default:
	}
}

func TestOriginIsChecked(t *testing.T) {
	_, srv := startServer(t, Config{AllowedOrigins: []string{"https://kiosk.local"}}, nil)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn := dial(t, srv, http.Header{"Origin": {"https://kiosk.local"}})
	assert.Equal(t, typeSnapshot, readMessage(t, conn).Type)
}

func TestHealthAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "avatarchat_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()
	tr, srv := startServer(t, Config{}, reg)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), "avatarchat_test_total 1")

	require.NoError(t, tr.Stop())
	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestMetricsRouteDisabledWithoutGatherer(t *testing.T) {
	_, srv := startServer(t, Config{}, nil)
	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStopClosesCommandsAndClients(t *testing.T) {
	tr, srv := startServer(t, Config{}, nil)
	conn := dial(t, srv, nil)
	readMessage(t, conn)
	waitClients(t, tr, 1)

	require.NoError(t, tr.Stop())
	require.NoError(t, tr.Stop())

	_, ok := <-tr.Commands()
	assert.False(t, ok)
	assert.Equal(t, 0, tr.Clients())
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestAttachRefusedOnceStopping(t *testing.T) {
	tr := New(Config{}, nil, nil)
	early := &session{id: "early", sendCh: make(chan []byte, 1)}
	require.True(t, tr.attach(early))
	tr.detach(early.id)

	require.NoError(t, tr.Stop())
	late := &session{id: "late", sendCh: make(chan []byte, 1)}
	assert.False(t, tr.attach(late))
	assert.Equal(t, 0, tr.Clients())
}
