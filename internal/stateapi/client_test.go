package stateapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fares7elsadek/syncspace-watch/internal/domain"
)

func TestFetchRoomState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v1/room/r1/state", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"data": domain.RoomState{
				RoomID:        "r1",
				VideoRef:      "dQw4w9WgXcQ",
				BaseTimestamp: 42,
				IsPlaying:     true,
				PlaybackRate:  1.0,
				HostID:        "u1",
			},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	state, err := client.FetchRoomState(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "r1", state.RoomID)
	assert.Equal(t, "dQw4w9WgXcQ", state.VideoRef)
	assert.Equal(t, 42.0, state.BaseTimestamp)
	assert.True(t, state.IsPlaying)
}

func TestSendControlEventPostsToControlEndpoint(t *testing.T) {
	var received domain.ControlEvent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/room/r1/control", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"data": "OK"})
	}))
	defer srv.Close()

	seconds := 12.5
	client := NewClient(srv.URL)
	err := client.SendControlEvent(context.Background(), domain.ControlEvent{
		RoomID:    "r1",
		Action:    domain.ActionPlay,
		Timestamp: &seconds,
		Actor:     domain.User{ID: "u1", Username: "alice"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ActionPlay, received.Action)
	require.NotNil(t, received.Timestamp)
	assert.Equal(t, 12.5, *received.Timestamp)
}

func TestErrorEnvelopeSurfacesMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]any{"error": "permission denied"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	err := client.SendControlEvent(context.Background(), domain.ControlEvent{
		RoomID: "r1",
		Action: domain.ActionPlay,
		Actor:  domain.User{ID: "u2"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Contains(t, err.Error(), "permission denied")
}

func TestResetRoomPostsResetSignal(t *testing.T) {
	var received domain.ResetSignal
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/room/r1/reset", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"data": "OK"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	require.NoError(t, client.ResetRoom(context.Background(), "r1", domain.User{ID: "u1"}))
	assert.Equal(t, "r1", received.RoomID)
	assert.Equal(t, "u1", received.By.ID)
}
