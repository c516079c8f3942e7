package progress

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"
)

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func dial(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws" + query
	ws, err := websocket.Dial(url, "", server.URL)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func receive(t *testing.T, ws *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	var f frame
	require.NoError(t, websocket.JSON.Receive(ws, &f))
	return f
}

func TestHubDeliversOnlyToOwningSession(t *testing.T) {
	hub := NewHub()
	server := httptest.NewServer(hub)
	defer server.Close()

	mine := dial(t, server, "?sessionId=s1")
	other := dial(t, server, "?sessionId=s2")
	require.Eventually(t, func() bool {
		return hub.Connections("s1") == 1 && hub.Connections("s2") == 1
	}, 5*time.Second, 10*time.Millisecond)

	hub.Emit("s1", EventConversionStarted, ConversionStarted{TotalPages: 3})
	hub.Emit("s2", EventOverallProgress, OverallProgress{PercentComplete: 50})

	got := receive(t, mine)
	assert.Equal(t, EventConversionStarted, got.Event)
	var started ConversionStarted
	require.NoError(t, json.Unmarshal(got.Data, &started))
	assert.Equal(t, 3, started.TotalPages)

	got = receive(t, other)
	assert.Equal(t, EventOverallProgress, got.Event)
}

func TestHubAssignsSessionWhenMissing(t *testing.T) {
	hub := NewHub()
	server := httptest.NewServer(hub)
	defer server.Close()

	ws := dial(t, server, "")
	got := receive(t, ws)
	require.Equal(t, EventSession, got.Event)

	var assigned SessionAssigned
	require.NoError(t, json.Unmarshal(got.Data, &assigned))
	require.NotEmpty(t, assigned.SessionID)

	require.Eventually(t, func() bool { return hub.Connections(assigned.SessionID) == 1 },
		5*time.Second, 10*time.Millisecond)
	hub.Emit(assigned.SessionID, EventError, FatalError{Message: "boom"})
	assert.Equal(t, EventError, receive(t, ws).Event)
}

func TestHubForgetsClosedConnections(t *testing.T) {
	hub := NewHub()
	server := httptest.NewServer(hub)
	defer server.Close()

	ws := dial(t, server, "?sessionId=gone")
	require.Eventually(t, func() bool { return hub.Connections("gone") == 1 },
		5*time.Second, 10*time.Millisecond)

	ws.Close()
	require.Eventually(t, func() bool { return hub.Connections("gone") == 0 },
		5*time.Second, 10*time.Millisecond)

	// emitting to a session without listeners is a no-op
	hub.Emit("gone", EventOverallProgress, OverallProgress{PercentComplete: 100})
}

func TestRecorderFilters(t *testing.T) {
	rec := NewRecorder()
	rec.Emit("a", EventOverallProgress, OverallProgress{PercentComplete: 50})
	rec.Emit("b", EventOverallProgress, OverallProgress{PercentComplete: 10})
	rec.Emit("a", EventOverallProgress, OverallProgress{PercentComplete: 100})

	assert.Len(t, rec.Events(), 3)
	assert.Len(t, rec.ForSession("a"), 2)
	assert.Equal(t, []float64{50, 10, 100}, rec.Percentages())
}

func TestHubClosesListenerThatFallsBehind(t *testing.T) {
	hub := NewHub()
	stalled := &listener{send: make(chan Event, sendBuffer), done: make(chan struct{})}
	roomy := &listener{send: make(chan Event, 4*sendBuffer), done: make(chan struct{})}
	hub.add("big", stalled)
	hub.add("big", roomy)

	pages := sendBuffer
	hub.Emit("big", EventConversionStarted, ConversionStarted{TotalPages: pages})
	for page := 1; page <= pages; page++ {
		hub.Emit("big", EventThumbnailGenerated, ThumbnailGenerated{Page: page})
		hub.Emit("big", EventOverallProgress, OverallProgress{PercentComplete: float64(page) * 100 / float64(pages)})
	}

	select {
	case <-stalled.done:
	default:
		t.Fatal("stalled listener should be closed once its queue is full")
	}
	assert.Equal(t, 1, hub.Connections("big"))

	// the listener that kept up still has every event, ending at 100
	require.Len(t, roomy.send, 1+2*pages)
	var last Event
	for len(roomy.send) > 0 {
		last = <-roomy.send
	}
	assert.Equal(t, EventOverallProgress, last.Event)
	assert.Equal(t, OverallProgress{PercentComplete: 100}, last.Data)
}
