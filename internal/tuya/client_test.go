package tuya

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCloud struct {
	tokens       atomic.Int32
	commands     atomic.Int32
	rejectFirst  atomic.Bool
	rejectSwitch bool
	deviceOn     bool
}

func (f *fakeCloud) handler(t *testing.T) http.Handler {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1.0/token", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-id", r.Header.Get("client_id"))
		assert.Equal(t, "HMAC-SHA256", r.Header.Get("sign_method"))
		timestamp := r.Header.Get("t")
		assert.Equal(t, tokenSignature("test-id", "test-secret", timestamp, nil), r.Header.Get("sign"))
		f.tokens.Add(1)
		writeJSON(w, map[string]any{
			"success": true,
			"result":  map[string]any{"access_token": "token-1", "expire_time": 7200},
		})
	})
	mux.HandleFunc("GET /v1.0/devices/{deviceID}", func(w http.ResponseWriter, r *http.Request) {
		if !f.checkBusiness(t, r, nil) {
			writeJSON(w, map[string]any{"success": false, "code": 1010, "msg": "token invalid"})
			return
		}
		writeJSON(w, map[string]any{
			"success": true,
			"result": map[string]any{
				"id":     r.PathValue("deviceID"),
				"online": true,
				"status": []map[string]any{{"code": "switch_1", "value": f.deviceOn}},
			},
		})
	})
	mux.HandleFunc("POST /v1.0/devices/{deviceID}/commands", func(w http.ResponseWriter, r *http.Request) {
		var request commandsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&request))
		require.Len(t, request.Commands, 1)
		if f.rejectSwitch && request.Commands[0].Code == "switch_1" {
			writeJSON(w, map[string]any{"success": false, "code": 2008, "msg": "command not supported"})
			return
		}
		f.commands.Add(1)
		writeJSON(w, map[string]any{"success": true})
	})
	mux.HandleFunc("POST /v2.0/infrareds/{gatewayID}/air-conditioners/{remoteID}/scenes/command", func(w http.ResponseWriter, r *http.Request) {
		var cmd sceneCommand
		require.NoError(t, json.NewDecoder(r.Body).Decode(&cmd))
		assert.Equal(t, 1, cmd.Power)
		assert.Equal(t, 26, cmd.Temp)
		f.commands.Add(1)
		writeJSON(w, map[string]any{"success": true})
	})
	mux.HandleFunc("POST /v2.0/infrareds/{gatewayID}/remotes/{remoteID}/command", func(w http.ResponseWriter, r *http.Request) {
		var cmd keyCommand
		require.NoError(t, json.NewDecoder(r.Body).Decode(&cmd))
		assert.Equal(t, "PowerOff", cmd.Key)
		f.commands.Add(1)
		writeJSON(w, map[string]any{"success": true})
	})
	return mux
}

// checkBusiness returns false when the test asked for the first business
// call to be rejected with a token error.
func (f *fakeCloud) checkBusiness(t *testing.T, r *http.Request, _ []byte) bool {
	t.Helper()
	assert.Equal(t, "test-id", r.Header.Get("client_id"))
	assert.NotEmpty(t, r.Header.Get("access_token"))
	assert.NotEmpty(t, r.Header.Get("sign"))
	return !f.rejectFirst.CompareAndSwap(true, false)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func testClient(t *testing.T, cloud *fakeCloud) *Client {
	t.Helper()
	server := httptest.NewServer(cloud.handler(t))
	t.Cleanup(server.Close)
	ir := IRConfig{GatewayID: "gw-1", RemoteID: "remote-1", CategoryID: 5, Mode: 0, Temp: 26, Wind: 2}
	return NewClient(Config{AccessID: "test-id", AccessKey: "test-secret", BaseURL: server.URL}, ir, server.Client(), slog.New(slog.DiscardHandler))
}

func TestClient_GetStatus(t *testing.T) {
	cloud := &fakeCloud{deviceOn: true}
	c := testClient(t, cloud)
	ctx := context.Background()

	state, err := c.GetStatus(ctx, "plug-1", "switch_1")
	require.NoError(t, err)
	assert.True(t, state.Online)
	assert.True(t, state.On)

	// second call reuses the cached token
	_, err = c.GetStatus(ctx, "plug-1", "switch_1")
	require.NoError(t, err)
	assert.Equal(t, int32(1), cloud.tokens.Load())
}

func TestClient_TokenRefreshOnRejection(t *testing.T) {
	cloud := &fakeCloud{}
	cloud.rejectFirst.Store(true)
	c := testClient(t, cloud)

	_, err := c.GetStatus(context.Background(), "plug-1", "switch_1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), cloud.tokens.Load())
}

func TestClient_TokenExpiry(t *testing.T) {
	cloud := &fakeCloud{}
	c := testClient(t, cloud)
	now := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := c.GetStatus(ctx, "plug-1", "switch_1")
	require.NoError(t, err)

	// one second before the early-refresh window: still cached
	now = now.Add(7200*time.Second - tokenEarlyRefresh - time.Second)
	_, err = c.GetStatus(ctx, "plug-1", "switch_1")
	require.NoError(t, err)
	assert.Equal(t, int32(1), cloud.tokens.Load())

	now = now.Add(2 * time.Second)
	_, err = c.GetStatus(ctx, "plug-1", "switch_1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), cloud.tokens.Load())
}

func TestClient_SendCommand(t *testing.T) {
	tests := []struct {
		name         string
		code         string
		on           bool
		rejectSwitch bool
		wantCommands int32
	}{
		{name: "plug on", code: "switch_1", on: true, wantCommands: 1},
		{name: "plug off", code: "switch_1", on: false, wantCommands: 1},
		{name: "generic switch fallback", code: "switch_1", on: true, rejectSwitch: true, wantCommands: 1},
		{name: "aircon on via IR scene", code: ControlCodeIR, on: true, wantCommands: 1},
		{name: "aircon off via IR key", code: ControlCodeIR, on: false, wantCommands: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cloud := &fakeCloud{rejectSwitch: tt.rejectSwitch}
			c := testClient(t, cloud)
			require.NoError(t, c.SendCommand(context.Background(), "plug-1", tt.code, tt.on))
			assert.Equal(t, tt.wantCommands, cloud.commands.Load())
		})
	}
}

func TestClient_Unreachable(t *testing.T) {
	c := NewClient(Config{AccessID: "test-id", AccessKey: "test-secret", BaseURL: "http://localhost:0"}, IRConfig{}, nil, slog.New(slog.DiscardHandler))
	_, err := c.GetStatus(context.Background(), "plug-1", "switch_1")
	assert.ErrorIs(t, err, ErrUnreachable)
}

func TestClient_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1.0/token" {
			writeJSON(w, map[string]any{"success": true, "result": map[string]any{"access_token": "token-1", "expire_time": 7200}})
			return
		}
		writeJSON(w, map[string]any{"success": false, "code": 1106, "msg": "permission deny"})
	}))
	t.Cleanup(server.Close)

	c := NewClient(Config{AccessID: "test-id", AccessKey: "test-secret", BaseURL: server.URL}, IRConfig{}, server.Client(), slog.New(slog.DiscardHandler))
	err := c.SendCommand(context.Background(), "plug-1", "switch_9", true)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 1106, apiErr.Code)
}
