package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tributeboard/internal/ledger"
	"tributeboard/internal/model"
	"tributeboard/internal/rank"
	"tributeboard/internal/store"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st, err := store.New(filepath.Join(t.TempDir(), "board.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	return &Handler{
		st:      st,
		board:   st,
		config:  model.Config{AdminAPIKey: "secret"},
		recon:   ledger.NewReconciler(zerolog.Nop()),
		tracker: rank.NewTracker(),
		log:     zerolog.Nop(),
	}
}

func router(h *Handler) *gin.Engine {
	r := gin.New()
	r.GET("/api/v1/board", h.GetBoard)
	r.GET("/api/v1/board/:address", h.GetEntry)
	r.DELETE("/api/v1/board/:address", h.AdminAuth(), h.DeleteParticipant)
	r.POST("/api/v1/ledger", h.AdminAuth(), h.UpsertLedger)
	return r
}

func postLedger(t *testing.T, r *gin.Engine, key string, up model.LedgerUpsert) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(up)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/api/v1/ledger", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", key)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestUpsertLedgerRequiresAPIKey(t *testing.T) {
	h := newTestHandler(t)
	r := router(h)

	w := postLedger(t, r, "wrong", model.LedgerUpsert{Payer: "alice", Signature: "sig-1"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUpsertLedgerRejectsMissingSignature(t *testing.T) {
	h := newTestHandler(t)
	r := router(h)

	w := postLedger(t, r, "secret", model.LedgerUpsert{Payer: "alice"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBoardReflectsUpserts(t *testing.T) {
	h := newTestHandler(t)
	r := router(h)

	w := postLedger(t, r, "secret", model.LedgerUpsert{
		Payer: "alice", Asset: "TON", Amount: 2.5, Signature: "sig-1", USDValue: 10,
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = postLedger(t, r, "secret", model.LedgerUpsert{
		Payer: "bob", Asset: "TON", Amount: 7.5, Signature: "sig-2", USDValue: 30,
	})
	require.Equal(t, http.StatusOK, w.Code)

	req := httptest.NewRequest("GET", "/api/v1/board", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool                `json:"success"`
		Data    []model.RankedEntry `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.Len(t, resp.Data, 2)

	assert.Equal(t, "bob", resp.Data[0].Address)
	assert.Equal(t, 1, resp.Data[0].Rank)
	assert.Equal(t, model.RankNew, resp.Data[0].Change.Direction)
	assert.Equal(t, "alice", resp.Data[1].Address)
	assert.Equal(t, 2, resp.Data[1].Rank)
}

func TestGetEntryMergesLocalRecords(t *testing.T) {
	h := newTestHandler(t)
	r := router(h)

	// The board knows nothing yet, but a confirmed local record exists.
	h.recon.RecordConfirmed("alice", "TON", model.PaymentOutcome{
		Status:        model.OutcomeConfirmed,
		Signature:     "sig-1",
		SettledAmount: 2.5,
		SettledUSD:    10,
	})

	req := httptest.NewRequest("GET", "/api/v1/board/alice", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Entry   model.LeaderboardEntry     `json:"entry"`
			Records []model.LocalDepositRecord `json:"records"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 10.0, resp.Data.Entry.TotalUSD)
	require.Len(t, resp.Data.Records, 1)
	assert.Equal(t, "sig-1", resp.Data.Records[0].Signature)
}

func TestGetEntryUnknownParticipant(t *testing.T) {
	h := newTestHandler(t)
	r := router(h)

	req := httptest.NewRequest("GET", "/api/v1/board/nobody", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

type fakeBoard struct {
	entries []model.LeaderboardEntry
}

func (b *fakeBoard) GetEntry(ctx context.Context, identity string) (*model.LeaderboardEntry, error) {
	for i := range b.entries {
		if b.entries[i].Address == identity {
			return &b.entries[i], nil
		}
	}
	return nil, nil
}

func (b *fakeBoard) GetEntries(ctx context.Context, limit int) ([]model.LeaderboardEntry, error) {
	return b.entries, nil
}

func (b *fakeBoard) UpsertAfterPayment(ctx context.Context, up model.LedgerUpsert) error {
	return nil
}

func TestBoardServesFromRemoteLedger(t *testing.T) {
	h := newTestHandler(t)
	h.board = &fakeBoard{entries: []model.LeaderboardEntry{
		{Address: "alice", TotalUSD: 30, Count: 2},
	}}
	r := router(h)

	// The local store is empty; rows come from the configured board.
	req := httptest.NewRequest("GET", "/api/v1/board", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool                `json:"success"`
		Data    []model.RankedEntry `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "alice", resp.Data[0].Address)

	req = httptest.NewRequest("GET", "/api/v1/board/alice", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDeleteParticipant(t *testing.T) {
	h := newTestHandler(t)
	r := router(h)

	w := postLedger(t, r, "secret", model.LedgerUpsert{
		Payer: "alice", Asset: "TON", Amount: 2.5, Signature: "sig-1", USDValue: 10,
	})
	require.Equal(t, http.StatusOK, w.Code)

	req := httptest.NewRequest("DELETE", "/api/v1/board/alice", nil)
	req.Header.Set("X-API-Key", "secret")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest("GET", "/api/v1/board/alice", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
