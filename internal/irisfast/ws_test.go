package irisfast

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// wsStub pushes one chat event and forwards every reply frame to got.
func wsStub(t *testing.T, got chan<- ReplyRequest, headers chan<- string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Get("X-Session-Id")
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close(websocket.StatusNormalClosure, "")
		ctx := r.Context()
		sender := "Ann"
		if err := wsjson.Write(ctx, c, Message{Msg: "5", Room: "room-1", Sender: &sender, JSON: &MessageJSON{UserID: "42"}}); err != nil {
			return
		}
		for {
			var req ReplyRequest
			if err := wsjson.Read(ctx, c, &req); err != nil {
				return
			}
			got <- req
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestWebSocketRoundTrip(t *testing.T) {
	got := make(chan ReplyRequest, 4)
	headers := make(chan string, 1)
	srv := wsStub(t, got, headers)

	ws := NewWebSocket("ws"+strings.TrimPrefix(srv.URL, "http"), 0, 0)
	ws.SetHeaderProvider(func() map[string]string { return map[string]string{"X-Session-Id": "s-1"} })
	msgs := make(chan *Message, 1)
	ws.OnMessage(func(m *Message) { msgs <- m })
	states := make(chan WebSocketState, 8)
	id := ws.OnStateChange(func(s WebSocketState) { states <- s })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, ws.Connect(ctx))
	assert.Equal(t, "s-1", <-headers)
	assert.Equal(t, WSStateConnecting, <-states)
	assert.Equal(t, WSStateConnected, <-states)
	ws.RemoveStateCallback(id)

	select {
	case m := <-msgs:
		assert.Equal(t, "5", m.Msg)
		assert.Equal(t, "42", m.UserID())
	case <-ctx.Done():
		t.Fatal("no message received")
	}

	eg := NewEgress(EgressWS, false, nil, ws)
	require.NoError(t, eg.SendText(ctx, "room-1", "Bot played 1."))
	select {
	case req := <-got:
		assert.Equal(t, ReplyRequest{Type: "text", Room: "room-1", Data: "Bot played 1."}, req)
	case <-ctx.Done():
		t.Fatal("no reply frame received")
	}

	require.NoError(t, ws.Close(ctx))
	assert.False(t, ws.Connected())
	assert.ErrorIs(t, ws.WriteJSON(ctx, ReplyRequest{}), errNotConnected)
}

func TestDryRunEgressSkipsSocket(t *testing.T) {
	ws := NewWebSocket("ws://unused", 0, 0)
	eg := NewEgress(EgressWS, true, nil, ws)
	assert.NoError(t, eg.SendImage(context.Background(), "room-1", "aGk="))
}

func TestAutoEgressFallsBackToHTTP(t *testing.T) {
	stub := &irisStub{}
	c := newStubClient(t, stub)
	ws := NewWebSocket("ws://unused", 0, 0)
	eg := NewEgress(EgressAuto, false, c, ws)
	require.NoError(t, eg.SendText(context.Background(), "room-9", "hi"))

	stub.mu.Lock()
	defer stub.mu.Unlock()
	require.Len(t, stub.replies, 1)
	assert.Equal(t, "room-9", stub.replies[0].Room)
}
