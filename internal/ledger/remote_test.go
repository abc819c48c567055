package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tributeboard/internal/model"
)

func boardServer(t *testing.T) (*httptest.Server, *[]model.LedgerUpsert) {
	t.Helper()
	var received []model.LedgerUpsert

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/board/raw", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(model.Response{
			Success: true,
			Data: []model.LeaderboardEntry{
				{Address: "alice", TotalUSD: 30, Count: 2},
				{Address: "bob", TotalUSD: 10, Count: 1},
			},
		})
	})
	mux.HandleFunc("GET /api/v1/board/alice", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(model.Response{
			Success: true,
			Data: map[string]any{
				"entry": model.LeaderboardEntry{Address: "alice", TotalUSD: 30, Count: 2},
			},
		})
	})
	mux.HandleFunc("GET /api/v1/board/nobody", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(model.Response{Success: false, Error: "participant not found"})
	})
	mux.HandleFunc("POST /api/v1/ledger", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var up model.LedgerUpsert
		require.NoError(t, json.NewDecoder(r.Body).Decode(&up))
		received = append(received, up)
		json.NewEncoder(w).Encode(model.Response{Success: true})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &received
}

func TestHTTPRemoteGetEntries(t *testing.T) {
	srv, _ := boardServer(t)
	remote := NewHTTPRemote(srv.URL, "secret")

	entries, err := remote.GetEntries(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "alice", entries[0].Address)
	assert.Equal(t, 30.0, entries[0].TotalUSD)
}

func TestHTTPRemoteGetEntry(t *testing.T) {
	srv, _ := boardServer(t)
	remote := NewHTTPRemote(srv.URL, "secret")

	entry, err := remote.GetEntry(context.Background(), "alice")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "alice", entry.Address)
	assert.Equal(t, 2, entry.Count)
}

func TestHTTPRemoteGetEntryNotFound(t *testing.T) {
	srv, _ := boardServer(t)
	remote := NewHTTPRemote(srv.URL, "secret")

	entry, err := remote.GetEntry(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestHTTPRemoteUpsert(t *testing.T) {
	srv, received := boardServer(t)
	remote := NewHTTPRemote(srv.URL, "secret")

	err := remote.UpsertAfterPayment(context.Background(), model.LedgerUpsert{
		Payer:     "alice",
		Asset:     "TON",
		Amount:    2.5,
		Signature: "sig-1",
		USDValue:  10,
	})
	require.NoError(t, err)
	require.Len(t, *received, 1)
	assert.Equal(t, "sig-1", (*received)[0].Signature)
}

func TestHTTPRemoteUpsertRejectedKey(t *testing.T) {
	srv, _ := boardServer(t)
	remote := NewHTTPRemote(srv.URL, "wrong")

	err := remote.UpsertAfterPayment(context.Background(), model.LedgerUpsert{
		Payer:     "alice",
		Signature: "sig-1",
	})
	require.Error(t, err)
}
