package bitcoind

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeNode(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "user" || pass != "pass" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		var result any
		switch req.Method {
		case "getnetworkinfo":
			result = map[string]any{"version": 260000, "subversion": "/Satoshi:26.0.0/"}
		case "getblockchaininfo":
			result = map[string]any{"chain": "regtest", "blocks": 276, "verificationprogress": 1.0}
		case "getblockcount":
			result = 276
		default:
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]any{
				"result": nil,
				"error":  map[string]any{"code": -32601, "message": "Method not found"},
				"id":     req.ID,
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"result": result, "error": nil, "id": req.ID})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTestConnection(t *testing.T) {
	srv := fakeNode(t)
	c := NewClient(strings.TrimPrefix(srv.URL, "http://"), "user", "pass", 0)

	status := c.TestConnection(context.Background())
	assert.True(t, status.Connected)
	assert.Equal(t, "/Satoshi:26.0.0/", status.Version)
	assert.Equal(t, "regtest", status.Network)
	assert.Equal(t, "276", status.BlockHeight)
	assert.Equal(t, "100.0%", status.SyncProgress)
	assert.Empty(t, status.Error)
}

func TestTestConnectionFailureUsesPlaceholders(t *testing.T) {
	srv := fakeNode(t)
	c := NewClient(srv.URL, "user", "wrong", 0)

	status := c.TestConnection(context.Background())
	assert.False(t, status.Connected)
	assert.Equal(t, "--", status.Version)
	assert.Equal(t, "--", status.Network)
	assert.Equal(t, "--", status.BlockHeight)
	assert.Equal(t, "--", status.SyncProgress)
	assert.Contains(t, status.Error, "unauthorized")
}

func TestGetBlockCountAndRPCError(t *testing.T) {
	srv := fakeNode(t)
	c := NewClient(srv.URL, "user", "pass", 0)

	height, err := c.GetBlockCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(276), height)

	err = c.Call(context.Background(), "nosuchmethod", nil)
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32601, rpcErr.Code)

	_, err = NewClient(srv.URL, "user", "nope", 0).GetBlockCount(context.Background())
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestZMQConfig(t *testing.T) {
	assert.Equal(t,
		"zmqpubrawblock=tcp://127.0.0.1:28332\nzmqpubrawtx=tcp://127.0.0.1:28332",
		ZMQConfig("tcp://127.0.0.1:28332"))

	assert.NoError(t, ValidateZMQEndpoint("tcp://127.0.0.1:28332"))
	for _, bad := range []string{"http://127.0.0.1:28332", "tcp://127.0.0.1", "tcp://:28332", "tcp://host:99999"} {
		assert.Error(t, ValidateZMQEndpoint(bad), bad)
	}
	assert.NoError(t, ValidateHostPort("127.0.0.1:18443"))
	assert.Error(t, ValidateHostPort("127.0.0.1"))
}
