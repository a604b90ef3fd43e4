package notification

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"splittab/pkg/logger"
)

const hubTestWallet = "GDQNY3PBOJOKYZSRMK2S7LHHGWZIUISD4QORETLMXEWXBI7KFZZMKTL3"

func dialHub(t *testing.T, hub *Hub, query string) *websocket.Conn {
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	// The handler subscribes after the handshake completes.
	time.Sleep(50 * time.Millisecond)
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) envelope {
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var env envelope
	require.NoError(t, json.Unmarshal(payload, &env))
	return env
}

func TestHubEmitToWallet(t *testing.T) {
	hub := NewHub(logger.NewNop())
	conn := dialHub(t, hub, "wallet="+hubTestWallet)

	hub.EmitToWallet(hubTestWallet, EventPaymentReceived, map[string]interface{}{
		"amount": "25",
	})

	env := readEnvelope(t, conn)
	assert.Equal(t, EventPaymentReceived, env.Event)
	assert.Equal(t, "wallet:"+hubTestWallet, env.Room)
	assert.Equal(t, "25", env.Data["amount"])
}

func TestHubEmitToSplit(t *testing.T) {
	hub := NewHub(logger.NewNop())
	splitID := uuid.New()
	conn := dialHub(t, hub, "split="+splitID.String())

	hub.EmitToSplit(splitID, EventParticipantJoined, map[string]interface{}{
		"wallet": hubTestWallet,
	})

	env := readEnvelope(t, conn)
	assert.Equal(t, EventParticipantJoined, env.Event)
	assert.Equal(t, "split:"+splitID.String(), env.Room)
}

func TestHubRoomIsolation(t *testing.T) {
	hub := NewHub(logger.NewNop())
	conn := dialHub(t, hub, "split="+uuid.New().String())

	// Event for an unrelated split must not reach this subscriber.
	hub.EmitToSplit(uuid.New(), EventSplitUpdated, nil)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}
