package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"hedra-avatar-agent/internal/app/server/auth"
	"hedra-avatar-agent/internal/app/server/types"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func TestHandleAgentRequiresRoom(t *testing.T) {
	s := NewWebSocketServer(0, WithAuthManager(auth.NewAuthManager(false, nil)))
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "/agent/v1/"), nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleAgentAuth(t *testing.T) {
	s := NewWebSocketServer(0, WithAuthManager(auth.NewAuthManager(true, []string{"tk"})))
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	header := http.Header{"Room-Name": []string{"demo"}, "Authorization": []string{"Bearer nope"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "/agent/v1/"), header)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandleAgentConnection(t *testing.T) {
	connCh := make(chan types.IConn, 1)
	s := NewWebSocketServer(0,
		WithAuthManager(auth.NewAuthManager(true, []string{"tk"})),
		WithOnNewConnection(func(conn types.IConn) { connCh <- conn }),
	)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	header := http.Header{"Authorization": []string{"Bearer tk"}}
	client, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/agent/v1/?room=demo"), header)
	require.NoError(t, err)

	var conn types.IConn
	select {
	case conn = <-connCh:
	case <-time.After(2 * time.Second):
		t.Fatal("no connection")
	}
	assert.Equal(t, "demo", conn.GetRoom())
	assert.Equal(t, types.TransportTypeWebsocket, conn.GetTransportType())

	closed := make(chan string, 1)
	conn.OnClose(func(room string) { closed <- room })

	require.NoError(t, client.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3}))
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"type":"abort"}`)))

	audio, err := conn.RecvAudio(2)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, audio)
	cmd, err := conn.RecvCmd(2)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"abort"}`, string(cmd))

	require.NoError(t, conn.SendCmd([]byte(`{"type":"tts","state":"start"}`)))
	_, msg, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(msg), "tts")

	_ = client.Close()
	select {
	case room := <-closed:
		assert.Equal(t, "demo", room)
	case <-time.After(2 * time.Second):
		t.Fatal("close callback not called")
	}
	assert.ErrorIs(t, conn.SendAudio([]byte{1}), ErrConnClosed)
}

func TestHealthz(t *testing.T) {
	s := NewWebSocketServer(0,
		WithHealthChecker("redis", func(ctx context.Context) error { return errors.New("dial tcp: refused") }),
		WithHealthChecker("pool", func(ctx context.Context) error { return nil }),
	)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["pool"])
	assert.Contains(t, body["redis"], "refused")
}
