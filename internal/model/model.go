package model

// Response is the envelope every API endpoint returns
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// AssetConfig describes one asset the board accepts
type AssetConfig struct {
	Symbol      string `json:"symbol"`
	Master      string `json:"master"` // jetton master address, empty for the native asset
	Decimals    int    `json:"decimals"`
	CoingeckoID string `json:"coingecko_id"`
	Native      bool   `json:"native"`
	Stable      bool   `json:"stable"` // designated stable settlement asset
}

type ChainConfig struct {
	Network           string `json:"network"` // "mainnet" or "testnet"
	Mnemonic          string `json:"mnemonic"`
	APIKey            string `json:"api_key"`
	WalletVersion     string `json:"wallet_version"`
	CollectionAddress string `json:"collection_address"`
}

type TelegramConfig struct {
	BotToken string `json:"bot_token"`
	ChatID   int64  `json:"chat_id"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `json:"requests_per_second"`
	BurstSize         int `json:"burst_size"`
}

type PricingConfig struct {
	QuoteTTLSeconds    int     `json:"quote_ttl_seconds"`
	QuoteAttempts      int     `json:"quote_attempts"`
	SlippageTolerance  float64 `json:"slippage_tolerance"`
	RequestsPerSecond  float64 `json:"requests_per_second"`
	BreakerMaxFailures uint32  `json:"breaker_max_failures"`
}

// Config holds the product configuration loaded from config.json
type Config struct {
	Assets      []AssetConfig   `json:"assets"`
	Chain       ChainConfig     `json:"chain"`
	Pricing     PricingConfig   `json:"pricing"`
	Telegram    TelegramConfig  `json:"telegram"`
	RateLimit   RateLimitConfig `json:"rate_limit"`
	AdminAPIKey string          `json:"admin_api_key"`

	// BoardURL points at a separately deployed board API. Empty means
	// this instance owns the board and serves it from its own store.
	BoardURL string `json:"board_url"`

	// ConfirmTimeoutSeconds bounds the post-submission confirmation wait.
	ConfirmTimeoutSeconds int `json:"confirm_timeout_seconds"`
}

// Asset returns the configured asset for a symbol, or nil
func (c *Config) Asset(symbol string) *AssetConfig {
	for i := range c.Assets {
		if c.Assets[i].Symbol == symbol {
			return &c.Assets[i]
		}
	}
	return nil
}

// NativeAsset returns the chain's native settlement asset, or nil
func (c *Config) NativeAsset() *AssetConfig {
	for i := range c.Assets {
		if c.Assets[i].Native {
			return &c.Assets[i]
		}
	}
	return nil
}
