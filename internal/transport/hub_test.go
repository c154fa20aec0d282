package transport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/tokensentinel/sentinel/internal/domain"
)

func TestHub_BroadcastReachesConnectedClient(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// drain the connection_init handshake message
	_, _, err = conn.ReadMessage()
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		hub.clientsMu.Lock()
		defer hub.clientsMu.Unlock()
		return len(hub.clients) == 1
	}, time.Second, 10*time.Millisecond)

	hub.Broadcast(PositionEvent{Type: "position", Token: "sol:abc", Status: "OPEN"})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev PositionEvent
	require.NoError(t, json.Unmarshal(msg, &ev))
	require.Equal(t, "sol:abc", ev.Token)
	require.Equal(t, "OPEN", ev.Status)
}

func TestPositionThrottler_CoalescesUpdatesPerToken(t *testing.T) {
	hub := NewHub()
	pt := NewPositionThrottler(hub)
	pt.interval = 20 * time.Millisecond

	pt.Update(PositionEvent{Token: "a", PnLPct: 1})
	pt.Update(PositionEvent{Token: "a", PnLPct: 2})
	pt.Update(PositionEvent{Token: "b", PnLPct: 3})

	require.Len(t, pt.pending, 2)
	require.Equal(t, 2.0, pt.pending["a"].PnLPct)
}

func TestHub_BroadcastDecisionEncodesVerdict(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	_, _, err = conn.ReadMessage()
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		hub.clientsMu.Lock()
		defer hub.clientsMu.Unlock()
		return len(hub.clients) == 1
	}, time.Second, 10*time.Millisecond)

	token := domain.TokenFingerprint{Chain: domain.ChainSOL, Address: "abc"}
	hub.BroadcastDecision(token, domain.GateVerdict{Gate: "hard", Verdict: domain.VerdictReject, Reasons: []string{"low_liquidity"}})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev DecisionEvent
	require.NoError(t, json.Unmarshal(msg, &ev))
	require.Equal(t, "REJECT", ev.Verdict)
	require.Equal(t, []string{"low_liquidity"}, ev.Reasons)
}
