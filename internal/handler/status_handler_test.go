package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tcpchat/internal/configs"
	"tcpchat/internal/protocol"
	"tcpchat/internal/registry"
)

type fakeHandle struct{}

func (fakeHandle) Deliver(*protocol.Packet) error { return nil }

func TestHandleStatusReportsRegistrySnapshot(t *testing.T) {
	reg := registry.New(registry.PolicyReject)

	alice, cerr := reg.Register("alice", "pw")
	require.Nil(t, cerr)
	reg.Attach(alice, fakeHandle{})

	_, cerr = reg.Register("bob", "pw")
	require.Nil(t, cerr)

	require.Nil(t, reg.JoinRoom("lobby", alice))

	rr := httptest.NewRecorder()
	HandleStatus(reg)(rr, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Code int        `json:"code"`
		Data StatusData `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))

	assert.Equal(t, 0, body.Code)
	assert.Equal(t, 2, body.Data.RegisteredUsers)
	assert.Equal(t, []string{"alice"}, body.Data.OnlineUsers)
	require.Len(t, body.Data.Rooms, 1)
	assert.Equal(t, "lobby", body.Data.Rooms[0].Name)
	assert.Equal(t, []string{"alice"}, body.Data.Rooms[0].Members)
}

func TestRouterHealthEndpoint(t *testing.T) {
	cfg := &configs.AppConfig{Environment: "development"}
	router := Router(registry.New(registry.PolicyReject), cfg)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"ok"`)
}
