package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"tributeboard/internal/model"
)

// RemoteLedger is the capability interface of the authoritative board
// ledger. UpsertAfterPayment is fire-and-forget from the payment
// flow's perspective: its failure never invalidates a confirmed
// on-chain transfer, it only delays when the board reflects it.
type RemoteLedger interface {
	GetEntry(ctx context.Context, identity string) (*model.LeaderboardEntry, error)
	GetEntries(ctx context.Context, limit int) ([]model.LeaderboardEntry, error)
	UpsertAfterPayment(ctx context.Context, up model.LedgerUpsert) error
}

// HTTPRemote talks to a tributeboard API instance over HTTP, for
// deployments where the board ledger runs as a separate service.
type HTTPRemote struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPRemote(baseURL, apiKey string) *HTTPRemote {
	return &HTTPRemote{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (h *HTTPRemote) GetEntry(ctx context.Context, identity string) (*model.LeaderboardEntry, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", fmt.Sprintf("%s/api/v1/board/%s", h.baseURL, identity), nil)
	if err != nil {
		return nil, err
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch board entry: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("board returned status %d", resp.StatusCode)
	}

	var envelope struct {
		Success bool `json:"success"`
		Data    struct {
			Entry model.LeaderboardEntry `json:"entry"`
		} `json:"data"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to parse board entry: %w", err)
	}
	if !envelope.Success {
		return nil, fmt.Errorf("board error: %s", envelope.Error)
	}
	return &envelope.Data.Entry, nil
}

func (h *HTTPRemote) GetEntries(ctx context.Context, limit int) ([]model.LeaderboardEntry, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", fmt.Sprintf("%s/api/v1/board/raw?limit=%d", h.baseURL, limit), nil)
	if err != nil {
		return nil, err
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch board: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("board returned status %d", resp.StatusCode)
	}

	var envelope struct {
		Success bool                     `json:"success"`
		Data    []model.LeaderboardEntry `json:"data"`
		Error   string                   `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to parse board: %w", err)
	}
	if !envelope.Success {
		return nil, fmt.Errorf("board error: %s", envelope.Error)
	}
	return envelope.Data, nil
}

func (h *HTTPRemote) UpsertAfterPayment(ctx context.Context, up model.LedgerUpsert) error {
	payload, err := json.Marshal(up)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", h.baseURL+"/api/v1/ledger", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", h.apiKey)

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to upsert ledger entry: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ledger upsert returned status %d", resp.StatusCode)
	}
	return nil
}
