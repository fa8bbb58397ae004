package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrylevesque/makerdash/internal/models"
)

func fakeServer(t *testing.T, register func(r *mux.Router)) *httptest.Server {
	t.Helper()
	r := mux.NewRouter()
	register(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientSendsTokenAndDecodes(t *testing.T) {
	srv := fakeServer(t, func(r *mux.Router) {
		r.HandleFunc("/api/makers", func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			json.NewEncoder(w).Encode([]models.MakerSummary{{ID: "mk--1", Name: "Maker 1", Port: 6103}})
		}).Methods(http.MethodGet)
	})

	c := New(srv.URL+"/", "tok")
	makers, err := c.ListMakers(context.Background())
	require.NoError(t, err)
	require.Len(t, makers, 1)
	assert.Equal(t, 6103, makers[0].Port)
}

func TestClientAPIError(t *testing.T) {
	srv := fakeServer(t, func(r *mux.Router) {
		r.HandleFunc("/api/makers/{id}/start", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"error":"maker already exists: Maker 1 is already running"}`))
		}).Methods(http.MethodPost)
		r.HandleFunc("/api/makers/{id}/stop", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "plain failure", http.StatusBadGateway)
		}).Methods(http.MethodPost)
	})
	c := New(srv.URL, "")

	err := c.StartMaker(context.Background(), "mk--1")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, "maker already exists: Maker 1 is already running", apiErr.Message)

	err = c.StopMaker(context.Background(), "mk--1")
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, "plain failure", apiErr.Message)
}

func TestClientPathsAndBodies(t *testing.T) {
	var sent models.SendRequest
	var testBody string
	srv := fakeServer(t, func(r *mux.Router) {
		r.HandleFunc("/api/makers/{id}/send", func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "mk 1", mux.Vars(r)["id"])
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&sent))
			json.NewEncoder(w).Encode(map[string]string{"txid": "abcd"})
		}).Methods(http.MethodPost)
		r.HandleFunc("/api/makers/{id}/utxos", func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "swap", r.URL.Query().Get("kind"))
			w.Write([]byte(`[]`))
		}).Methods(http.MethodGet)
		r.HandleFunc("/api/makers/{id}/logs", func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "3", r.URL.Query().Get("limit"))
			w.Write([]byte(`[{"type":"Maker Started"}]`))
		}).Methods(http.MethodGet)
		r.HandleFunc("/api/makers/{id}", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}).Methods(http.MethodDelete)
		r.HandleFunc("/api/settings/test-connection", func(w http.ResponseWriter, r *http.Request) {
			raw, _ := io.ReadAll(r.Body)
			testBody = string(raw)
			json.NewEncoder(w).Encode(models.DisconnectedStatus(errors.New("refused")))
		}).Methods(http.MethodPost)
	})
	c := New(srv.URL, "")
	ctx := context.Background()

	txid, err := c.Send(ctx, "mk 1", "tb1qdest", 5000, 0)
	require.NoError(t, err)
	assert.Equal(t, "abcd", txid)
	assert.Equal(t, int64(5000), sent.Amount)

	utxos, err := c.UTXOs(ctx, "mk--1", "swap")
	require.NoError(t, err)
	assert.Empty(t, utxos)

	logs, err := c.Logs(ctx, "mk--1", 3)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.ActivityMakerStarted, logs[0].Type)

	require.NoError(t, c.RemoveMaker(ctx, "mk--1"))

	status, err := c.TestConnection(ctx, nil)
	require.NoError(t, err)
	assert.False(t, status.Connected)
	assert.Equal(t, "refused", status.Error)
	assert.Empty(t, testBody)
}

func TestLoginStoresToken(t *testing.T) {
	srv := fakeServer(t, func(r *mux.Router) {
		r.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]string{"token": "fresh", "expires_at": "2030-01-01T00:00:00Z"})
		}).Methods(http.MethodPost)
		r.HandleFunc("/api/dashboard", func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer fresh" {
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"missing bearer token"}`))
				return
			}
			json.NewEncoder(w).Encode(models.DashboardSummary{TotalBalance: "3.32"})
		}).Methods(http.MethodGet)
	})
	c := New(srv.URL, "")
	ctx := context.Background()

	_, err := c.Dashboard(ctx)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)

	resp, err := c.Login(ctx, "admin", "pw")
	require.NoError(t, err)
	assert.Equal(t, "fresh", resp.Token)

	d, err := c.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, "3.32", d.TotalBalance)
}
