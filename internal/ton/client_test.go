package ton

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tributeboard/internal/model"
)

func TestAwaitConfirmationResolvesCommittedTransfers(t *testing.T) {
	c := NewClient(model.ChainConfig{Network: "testnet"}, zerolog.Nop())

	// Jetton and swap sends commit sender-side and record their wallet
	// transaction hash; confirmation must resolve from that record
	// without touching the network.
	sig := c.markSettled("tb:att-1", []byte{0xab, 0xcd})
	assert.Equal(t, "abcd", sig)

	hash, err := c.AwaitConfirmation(context.Background(), "tb:att-1", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "abcd", hash)

	// Resolution is one-shot; the record does not linger.
	c.mu.Lock()
	_, lingering := c.settled["tb:att-1"]
	c.mu.Unlock()
	assert.False(t, lingering)
}

func TestNetworkSelection(t *testing.T) {
	mainnet := NewClient(model.ChainConfig{Network: "mainnet"}, zerolog.Nop())
	assert.Equal(t, "https://toncenter.com/api/v2", mainnet.baseURL)

	testnet := NewClient(model.ChainConfig{Network: "testnet"}, zerolog.Nop())
	assert.Equal(t, "https://testnet.toncenter.com/api/v2", testnet.baseURL)
	assert.True(t, testnet.isTestnet)
}
