package ton

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/liteclient"
	"github.com/xssnick/tonutils-go/tlb"
	"github.com/xssnick/tonutils-go/ton"
	"github.com/xssnick/tonutils-go/ton/jetton"
	"github.com/xssnick/tonutils-go/ton/wallet"
	"github.com/xssnick/tonutils-go/tvm/cell"

	"tributeboard/internal/model"
	"tributeboard/internal/payment"
)

const stonfiSwapOp = 0x25938561

// stonfiProxyTON is STON.fi's proxy jetton master standing in for the
// native asset on the router
const stonfiProxyTON = "EQCM3B12QK1e4yZSf8GtBRT0aLMNyEsBc_DhVfRRtOEffLez"

// Client signs and submits transfers from the configured wallet and
// watches the collection address for their confirmation.
type Client struct {
	apiKey     string
	baseURL    string
	isTestnet  bool
	seedPhrase string
	walletType wallet.Version
	collection string
	log        zerolog.Logger

	mu      sync.Mutex
	api     ton.APIClientWrapped
	w       *wallet.Wallet
	addr    string
	settled map[string]string // memo -> committed wallet tx hash
}

func NewClient(cfg model.ChainConfig, log zerolog.Logger) *Client {
	baseURL := "https://toncenter.com/api/v2"
	isTestnet := cfg.Network == "testnet"
	if isTestnet {
		baseURL = "https://testnet.toncenter.com/api/v2"
	}

	version := wallet.V4R2
	switch cfg.WalletVersion {
	case "V3R1":
		version = wallet.V3R1
	case "V3R2":
		version = wallet.V3R2
	case "V4R1":
		version = wallet.V4R1
	case "V4R2":
		version = wallet.V4R2
	case "HighloadV2R2":
		version = wallet.HighloadV2R2
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		isTestnet:  isTestnet,
		seedPhrase: cfg.Mnemonic,
		walletType: version,
		collection: cfg.CollectionAddress,
		settled:    make(map[string]string),
		log:        log.With().Str("component", "ton").Logger(),
	}
}

// connect lazily opens the liteclient connection pool and derives the
// wallet from the seed phrase; both are cached for the process.
func (c *Client) connect(ctx context.Context) (*wallet.Wallet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.w != nil {
		return c.w, nil
	}

	pool := liteclient.NewConnectionPool()
	configURL := "https://ton.org/global.config.json"
	if c.isTestnet {
		configURL = "https://ton-blockchain.github.io/testnet-global.config.json"
	}
	if err := pool.AddConnectionsFromConfigUrl(ctx, configURL); err != nil {
		return nil, fmt.Errorf("failed to connect to TON: %w", err)
	}

	api := ton.NewAPIClient(pool).WithRetry()

	words := strings.Split(c.seedPhrase, " ")
	w, err := wallet.FromSeed(api, words, c.walletType)
	if err != nil {
		return nil, fmt.Errorf("failed to create wallet from seed: %w", err)
	}

	c.api = api
	c.w = w
	c.addr = w.WalletAddress().String()
	return w, nil
}

// Address returns the signing wallet address
func (c *Client) Address() string {
	c.mu.Lock()
	if c.addr != "" {
		addr := c.addr
		c.mu.Unlock()
		return addr
	}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := c.connect(ctx); err != nil {
		c.log.Error().Err(err).Msg("failed to derive wallet address")
		return ""
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addr
}

// SendNative broadcasts a single TON transfer to the collection
// address with the memo as its comment and returns the external
// message hash. It does not wait for the transfer to commit.
func (c *Client) SendNative(ctx context.Context, amount float64, memo string) (string, error) {
	w, err := c.connect(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", payment.ErrSigningRejected, err)
	}

	to, err := address.ParseAddr(c.collection)
	if err != nil {
		return "", fmt.Errorf("invalid collection address: %w", err)
	}

	msg, err := w.BuildTransfer(to, tlb.MustFromNano(big.NewInt(toNano(amount)), 9), false, memo)
	if err != nil {
		return "", fmt.Errorf("failed to build transfer: %w", err)
	}

	hash, err := w.SendManyGetInMsgHash(ctx, []*wallet.Message{msg})
	if err != nil {
		return "", fmt.Errorf("failed to send transfer: %w", err)
	}

	return hex.EncodeToString(hash), nil
}

// SendJetton sends a single jetton transfer of the given asset to the
// collection address, carrying the memo as the forward comment. The
// collection sees the transfer as a notification from its own jetton
// wallet, not as a plain comment, so confirmation waits for the sending
// wallet's transaction to commit instead of watching the collection.
func (c *Client) SendJetton(ctx context.Context, asset model.AssetConfig, amount float64, memo string) (string, error) {
	w, err := c.connect(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", payment.ErrSigningRejected, err)
	}

	to, err := address.ParseAddr(c.collection)
	if err != nil {
		return "", fmt.Errorf("invalid collection address: %w", err)
	}
	master, err := address.ParseAddr(asset.Master)
	if err != nil {
		return "", fmt.Errorf("invalid jetton master for %s: %w", asset.Symbol, err)
	}

	token := jetton.NewJettonMasterClient(c.api, master)
	tokenWallet, err := token.GetJettonWallet(ctx, w.WalletAddress())
	if err != nil {
		return "", fmt.Errorf("failed to resolve jetton wallet: %w", err)
	}

	comment, err := wallet.CreateCommentCell(memo)
	if err != nil {
		return "", fmt.Errorf("failed to build comment: %w", err)
	}

	units := tlb.MustFromNano(big.NewInt(toUnits(amount, asset.Decimals)), asset.Decimals)
	body, err := tokenWallet.BuildTransferPayloadV2(to, w.WalletAddress(), units, tlb.MustFromNano(big.NewInt(1), 9), comment, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build jetton transfer: %w", err)
	}

	msg := wallet.SimpleMessage(tokenWallet.Address(), tlb.MustFromTON("0.05"), body)
	hash, err := w.SendManyWaitTxHash(ctx, []*wallet.Message{msg})
	if err != nil {
		return "", fmt.Errorf("failed to send jetton transfer: %w", err)
	}

	return c.markSettled(memo, hash), nil
}

// ExecuteSwap sends the quoted swap: a jetton transfer of the offered
// asset to the aggregator router whose forward payload instructs the
// router to settle at least the quoted minimum into the collection
// address. The router's payout carries no memo, so confirmation waits
// for the sending wallet's transaction to commit.
func (c *Client) ExecuteSwap(ctx context.Context, asset model.AssetConfig, quote *model.Quote, memo string) (string, error) {
	w, err := c.connect(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", payment.ErrSigningRejected, err)
	}

	router, err := address.ParseAddr(quote.RouterAddress)
	if err != nil {
		return "", fmt.Errorf("invalid router address in quote: %w", err)
	}
	collection, err := address.ParseAddr(c.collection)
	if err != nil {
		return "", fmt.Errorf("invalid collection address: %w", err)
	}
	master, err := address.ParseAddr(asset.Master)
	if err != nil {
		return "", fmt.Errorf("invalid jetton master for %s: %w", asset.Symbol, err)
	}

	token := jetton.NewJettonMasterClient(c.api, master)
	tokenWallet, err := token.GetJettonWallet(ctx, w.WalletAddress())
	if err != nil {
		return "", fmt.Errorf("failed to resolve jetton wallet: %w", err)
	}

	// The swap settles into the native asset, which the router holds as
	// its proxy-TON jetton wallet (token_wallet1 in the swap body).
	proxy := jetton.NewJettonMasterClient(c.api, address.MustParseAddr(stonfiProxyTON))
	askWallet, err := proxy.GetJettonWallet(ctx, router)
	if err != nil {
		return "", fmt.Errorf("failed to resolve router ask wallet: %w", err)
	}

	// swap#25938561 token_wallet1:MsgAddress min_out:Coins
	// to_address:MsgAddress referral_address:(Maybe MsgAddress)
	swap := cell.BeginCell().
		MustStoreUInt(stonfiSwapOp, 32).
		MustStoreAddr(askWallet.Address()).
		MustStoreCoins(uint64(toNano(quote.MinOutAmount))).
		MustStoreAddr(collection).
		MustStoreBoolBit(false).
		EndCell()

	units := tlb.MustFromNano(big.NewInt(toUnits(quote.InAmount, asset.Decimals)), asset.Decimals)
	body, err := tokenWallet.BuildTransferPayloadV2(router, w.WalletAddress(), units, tlb.MustFromTON("0.25"), swap, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build swap transfer: %w", err)
	}

	msg := wallet.SimpleMessage(tokenWallet.Address(), tlb.MustFromTON("0.3"), body)
	hash, err := w.SendManyWaitTxHash(ctx, []*wallet.Message{msg})
	if err != nil {
		return "", fmt.Errorf("failed to send swap: %w", err)
	}

	return c.markSettled(memo, hash), nil
}

// markSettled records a transfer whose wallet transaction has already
// committed, so AwaitConfirmation resolves it without polling
func (c *Client) markSettled(memo string, txHash []byte) string {
	sig := hex.EncodeToString(txHash)
	c.mu.Lock()
	c.settled[memo] = sig
	c.mu.Unlock()
	return sig
}

type tcMessage struct {
	Value   string `json:"value"`
	Message string `json:"message"`
}

type tcTransaction struct {
	Utime         int64 `json:"utime"`
	TransactionID struct {
		Hash string `json:"hash"`
	} `json:"transaction_id"`
	InMsg tcMessage `json:"in_msg"`
}

type tcTransactionsResponse struct {
	OK     bool            `json:"ok"`
	Result []tcTransaction `json:"result"`
}

type tcBalanceResponse struct {
	OK     bool   `json:"ok"`
	Result string `json:"result"`
}

// AwaitConfirmation resolves a transfer identified by memo. Jetton and
// swap transfers were already committed sender-side by their send call
// and resolve immediately; native transfers are confirmed by polling
// the collection address for a transaction carrying the memo as its
// comment. It returns ErrConfirmTimeout once the bound elapses; the
// transfer may still land after that.
func (c *Client) AwaitConfirmation(ctx context.Context, memo string, timeout time.Duration) (string, error) {
	c.mu.Lock()
	if sig, ok := c.settled[memo]; ok {
		delete(c.settled, memo)
		c.mu.Unlock()
		return sig, nil
	}
	c.mu.Unlock()

	deadline := time.Now().Add(timeout)
	since := time.Now().Add(-time.Minute)

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		hash, err := c.findTransaction(ctx, memo, since)
		if err != nil {
			c.log.Debug().Err(err).Msg("confirmation poll failed")
		} else if hash != "" {
			return hash, nil
		}

		if time.Now().After(deadline) {
			return "", payment.ErrConfirmTimeout
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

// findTransaction scans recent transactions on the collection address
// for one whose incoming message carries the memo
func (c *Client) findTransaction(ctx context.Context, memo string, since time.Time) (string, error) {
	endpoint := fmt.Sprintf("%s/getTransactions", c.baseURL)
	params := url.Values{
		"address":  {c.collection},
		"limit":    {"50"},
		"archival": {"true"},
	}

	req, err := http.NewRequestWithContext(ctx, "GET", fmt.Sprintf("%s?%s", endpoint, params.Encode()), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var result tcTransactionsResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if !result.OK {
		return "", errors.New("API returned not OK status")
	}

	threshold := since.Unix()
	for _, tx := range result.Result {
		if tx.Utime < threshold {
			continue
		}
		if tx.InMsg.Message != memo {
			continue
		}
		return tx.TransactionID.Hash, nil
	}

	return "", nil
}

// GetWalletBalance returns the balance of a wallet in TON
func (c *Client) GetWalletBalance(ctx context.Context, addr string) (float64, error) {
	endpoint := fmt.Sprintf("%s/getAddressBalance", c.baseURL)
	params := url.Values{
		"address": {addr},
	}

	req, err := http.NewRequestWithContext(ctx, "GET", fmt.Sprintf("%s?%s", endpoint, params.Encode()), nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to read response: %w", err)
	}

	var result tcBalanceResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, fmt.Errorf("failed to parse response: %w", err)
	}
	if !result.OK {
		return 0, errors.New("API returned not OK status")
	}

	var nano big.Int
	if _, ok := nano.SetString(result.Result, 10); !ok {
		return 0, fmt.Errorf("failed to parse balance %q", result.Result)
	}

	return fromNano(nano.Int64()), nil
}

func toNano(tons float64) int64 {
	return toUnits(tons, 9)
}

func fromNano(nanotons int64) float64 {
	return float64(nanotons) / 1e9
}

func toUnits(amount float64, decimals int) int64 {
	return int64(math.Round(amount * math.Pow10(decimals)))
}
