package signaling

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// relay is a single-connection signaling server stub.
func relay(t *testing.T, script func(conn *websocket.Conn)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		script(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestClientRegistersAndDispatches(t *testing.T) {
	received := make(chan Message, 4)
	url := relay(t, func(conn *websocket.Conn) {
		var reg Message
		if err := conn.ReadJSON(&reg); err != nil {
			return
		}
		received <- reg
		_ = conn.WriteJSON(Message{Type: TypeRegistered})
		_ = conn.WriteJSON(Message{Type: TypeOffer, From: "viewer-1", Payload: json.RawMessage(`{"sdp":"x"}`)})
		_ = conn.WriteJSON(Message{Type: TypeRecordersUpdated, Recorders: []RecorderInfo{{ID: "recorder-1", Online: true}}})

		var answer Message
		if err := conn.ReadJSON(&answer); err != nil {
			return
		}
		received <- answer
	})

	registered := make(chan struct{})
	offers := make(chan string, 1)
	lists := make(chan []RecorderInfo, 1)
	c := NewClient(url, "recorder-1", RoleRecorder, Handler{
		OnRegistered: func() { close(registered) },
		OnOffer: func(from string, payload json.RawMessage) {
			offers <- from + " " + string(payload)
		},
		OnRecordersUpdated: func(r []RecorderInfo) { lists <- r },
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx))
	defer c.Close()

	reg := <-received
	assert.Equal(t, TypeRegister, reg.Type)
	assert.Equal(t, "recorder-1", reg.ID)
	assert.Equal(t, RoleRecorder, reg.Role)

	select {
	case <-registered:
	case <-time.After(5 * time.Second):
		t.Fatal("not registered")
	}
	assert.Equal(t, `viewer-1 {"sdp":"x"}`, <-offers)
	assert.Equal(t, []RecorderInfo{{ID: "recorder-1", Online: true}}, <-lists)

	require.NoError(t, c.SendAnswer("viewer-1", json.RawMessage(`{"sdp":"y"}`)))
	answer := <-received
	assert.Equal(t, TypeAnswer, answer.Type)
	assert.Equal(t, "viewer-1", answer.Target)
	assert.JSONEq(t, `{"sdp":"y"}`, string(answer.Payload))
}

func TestClientClosesWhenServerHangsUp(t *testing.T) {
	url := relay(t, func(conn *websocket.Conn) {
		var reg Message
		_ = conn.ReadJSON(&reg)
	})

	c := NewClient(url, "viewer-1", RoleViewer, Handler{}, nil)
	require.NoError(t, c.Connect(context.Background()))

	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("client did not notice the hangup")
	}
	assert.ErrorIs(t, c.RequestRecorders(), ErrNotConnected)
	c.Close()
}

func TestSendBeforeConnect(t *testing.T) {
	c := NewClient("ws://127.0.0.1:1", "viewer-1", RoleViewer, Handler{}, nil)
	assert.ErrorIs(t, c.SendOffer("recorder-1", nil), ErrNotConnected)
}

func TestConnectFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c := NewClient("ws://127.0.0.1:1", "viewer-1", RoleViewer, Handler{}, nil)
	require.Error(t, c.Connect(ctx))
}
