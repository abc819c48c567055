package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tributeboard/internal/ledger"
	"tributeboard/internal/model"
	"tributeboard/internal/notify"
	"tributeboard/internal/payment"
	"tributeboard/internal/pricing"
	"tributeboard/internal/rank"
	"tributeboard/internal/store"
	"tributeboard/internal/ton"
)

// Handler manages HTTP request handling and wires the payment core to
// the board ledger
type Handler struct {
	st        *store.Store
	board     ledger.RemoteLedger
	config    model.Config
	wallet    *ton.Client
	resolver  *pricing.Resolver
	recon     *ledger.Reconciler
	orch      *payment.Orchestrator
	tracker   *rank.Tracker
	announcer *notify.Announcer
	log       zerolog.Logger
}

// NewHandler creates a new Handler instance with the given store and config
func NewHandler(st *store.Store, configPath string, log zerolog.Logger) (*Handler, error) {
	configFile, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config model.Config
	if err := json.Unmarshal(configFile, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	native := config.NativeAsset()
	if native == nil {
		return nil, fmt.Errorf("config declares no native asset")
	}

	wallet := ton.NewClient(config.Chain, log)

	rates := pricing.NewCoinGecko(config.Pricing.RequestsPerSecond, config.Pricing.BreakerMaxFailures, log)
	quotes := pricing.NewStonFi(config.Pricing.SlippageTolerance, config.Pricing.RequestsPerSecond, config.Pricing.BreakerMaxFailures, log)
	resolver := pricing.NewResolver(rates, quotes, time.Duration(config.Pricing.QuoteTTLSeconds)*time.Second, log)

	recon := ledger.NewReconciler(log)

	// The board is served from the local store unless config points at a
	// separately deployed board API.
	var board ledger.RemoteLedger = st
	if config.BoardURL != "" {
		board = ledger.NewHTTPRemote(config.BoardURL, config.AdminAPIKey)
	}

	orch := payment.NewOrchestrator(wallet, resolver, resolver, recon, board, payment.Config{
		SettleAsset:    *native,
		QuoteAttempts:  config.Pricing.QuoteAttempts,
		ConfirmTimeout: time.Duration(config.ConfirmTimeoutSeconds) * time.Second,
	}, log)

	announcer, err := notify.NewAnnouncer(config.Telegram, log)
	if err != nil {
		log.Warn().Err(err).Msg("telegram announcer disabled")
	}

	return &Handler{
		st:        st,
		board:     board,
		config:    config,
		wallet:    wallet,
		resolver:  resolver,
		recon:     recon,
		orch:      orch,
		tracker:   rank.NewTracker(),
		announcer: announcer,
		log:       log.With().Str("component", "handler").Logger(),
	}, nil
}

// AdminAuth middleware checks if the request has a valid admin API key
func (h *Handler) AdminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader("X-API-Key")
		if apiKey != h.config.AdminAPIKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, model.Response{
				Success: false,
				Error:   "invalid API key",
			})
			return
		}
		c.Next()
	}
}

// GetConfigPublic returns the product configuration without secrets
func (h *Handler) GetConfigPublic() gin.H {
	return gin.H{
		"assets":             h.config.Assets,
		"collection_address": h.config.Chain.CollectionAddress,
		"network":            h.config.Chain.Network,
	}
}

// GetBoard handles ranked leaderboard requests
func (h *Handler) GetBoard(c *gin.Context) {
	limit := 100
	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 500 {
			limit = l
		}
	}

	entries, err := h.board.GetEntries(c.Request.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to load board entries")
		c.JSON(http.StatusInternalServerError, model.Response{
			Success: false,
			Error:   "failed to load the board",
		})
		return
	}

	ranked := h.tracker.Rank(entries)
	go h.announcer.AnnounceOvertakes(ranked)

	c.JSON(http.StatusOK, model.Response{
		Success: true,
		Data:    ranked,
	})
}

// GetBoardRaw returns unranked board rows, for remote ledger clients
func (h *Handler) GetBoardRaw(c *gin.Context) {
	limit := 100
	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 500 {
			limit = l
		}
	}

	entries, err := h.board.GetEntries(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, model.Response{
			Success: false,
			Error:   "failed to load the board",
		})
		return
	}

	c.JSON(http.StatusOK, model.Response{
		Success: true,
		Data:    entries,
	})
}

// GetEntry returns one participant's row merged with this client's own
// not-yet-synced tributes, so a payment that just confirmed shows up
// immediately
func (h *Handler) GetEntry(c *gin.Context) {
	address := c.Param("address")
	if address == "" {
		c.JSON(http.StatusBadRequest, model.Response{
			Success: false,
			Error:   "address is required",
		})
		return
	}

	remote, err := h.board.GetEntry(c.Request.Context(), address)
	if err != nil {
		h.log.Error().Err(err).Str("address", address).Msg("failed to load board entry")
		c.JSON(http.StatusInternalServerError, model.Response{
			Success: false,
			Error:   "failed to load board entry",
		})
		return
	}

	records := h.recon.Records(address)
	if remote == nil && len(records) == 0 {
		c.JSON(http.StatusNotFound, model.Response{
			Success: false,
			Error:   "participant not found",
		})
		return
	}

	merged := h.recon.MergeForUser(address, remote)

	c.JSON(http.StatusOK, model.Response{
		Success: true,
		Data: gin.H{
			"entry":   merged,
			"records": records,
		},
	})
}

// SubmitTribute runs one payment attempt to its terminal outcome
func (h *Handler) SubmitTribute(c *gin.Context) {
	var req model.TributeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.Response{
			Success: false,
			Error:   "invalid request body",
		})
		return
	}

	asset := h.config.Asset(req.Asset)
	if asset == nil {
		c.JSON(http.StatusBadRequest, model.Response{
			Success: false,
			Error:   fmt.Sprintf("unsupported asset %q", req.Asset),
		})
		return
	}

	mode := model.AmountInAsset
	if req.Mode == string(model.AmountInUSD) {
		mode = model.AmountInUSD
	}

	attempt := h.orch.Submit(c.Request.Context(), model.PaymentRequest{
		ID:         uuid.NewString(),
		Payer:      h.wallet.Address(),
		Name:       req.Name,
		Asset:      *asset,
		Amount:     req.Amount,
		Mode:       mode,
		Annotation: req.Annotation,
	})

	outcome := attempt.Wait(c.Request.Context())

	c.JSON(outcomeStatus(outcome), model.Response{
		Success: outcome.Status == model.OutcomeConfirmed,
		Data:    outcome,
	})
}

// outcomeStatus maps a terminal outcome to an HTTP status. Ambiguous
// confirmation timeouts map to 504 so callers can tell "verify your
// transaction" apart from a definite rejection.
func outcomeStatus(outcome model.PaymentOutcome) int {
	switch outcome.Status {
	case model.OutcomeConfirmed, model.OutcomeCancelled:
		return http.StatusOK
	}
	switch outcome.Kind {
	case model.KindInvalidInput, model.KindSigningRejected:
		return http.StatusBadRequest
	case model.KindConfirmationTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// GetRate handles USD rate lookups
func (h *Handler) GetRate(c *gin.Context) {
	asset := h.config.Asset(c.Param("asset"))
	if asset == nil {
		c.JSON(http.StatusBadRequest, model.Response{
			Success: false,
			Error:   "unsupported asset",
		})
		return
	}

	rate, err := h.resolver.Rate(c.Request.Context(), *asset)
	if err != nil {
		c.JSON(http.StatusBadGateway, model.Response{
			Success: false,
			Error:   fmt.Sprintf("failed to resolve rate: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, model.Response{
		Success: true,
		Data: gin.H{
			"asset": asset.Symbol,
			"usd":   rate,
		},
	})
}

// GetQuote handles swap quote lookups for non-settlement assets
func (h *Handler) GetQuote(c *gin.Context) {
	asset := h.config.Asset(c.Query("asset"))
	if asset == nil {
		c.JSON(http.StatusBadRequest, model.Response{
			Success: false,
			Error:   "unsupported asset",
		})
		return
	}
	if asset.Native || asset.Stable {
		c.JSON(http.StatusBadRequest, model.Response{
			Success: false,
			Error:   "settlement assets need no quote",
		})
		return
	}

	amount, err := strconv.ParseFloat(c.Query("amount"), 64)
	if err != nil || amount <= 0 {
		c.JSON(http.StatusBadRequest, model.Response{
			Success: false,
			Error:   "amount must be a positive number",
		})
		return
	}

	native := h.config.NativeAsset()
	quote, err := h.resolver.Quote(c.Request.Context(), *asset, *native, amount)
	if err != nil {
		c.JSON(http.StatusBadGateway, model.Response{
			Success: false,
			Error:   fmt.Sprintf("failed to resolve quote: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, model.Response{
		Success: true,
		Data:    quote,
	})
}

// UpsertLedger records a confirmed tribute in the board ledger; used
// by remote payment clients (admin only)
func (h *Handler) UpsertLedger(c *gin.Context) {
	var up model.LedgerUpsert
	if err := c.ShouldBindJSON(&up); err != nil {
		c.JSON(http.StatusBadRequest, model.Response{
			Success: false,
			Error:   "invalid request body",
		})
		return
	}
	if up.Signature == "" || up.Payer == "" {
		c.JSON(http.StatusBadRequest, model.Response{
			Success: false,
			Error:   "signature and payer are required",
		})
		return
	}

	if err := h.st.UpsertAfterPayment(c.Request.Context(), up); err != nil {
		c.JSON(http.StatusInternalServerError, model.Response{
			Success: false,
			Error:   fmt.Sprintf("failed to record tribute: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, model.Response{
		Success: true,
		Data:    gin.H{"signature": up.Signature},
	})
}

// DeleteParticipant removes a participant from the board (admin only)
func (h *Handler) DeleteParticipant(c *gin.Context) {
	address := c.Param("address")
	if address == "" {
		c.JSON(http.StatusBadRequest, model.Response{
			Success: false,
			Error:   "address is required",
		})
		return
	}

	if err := h.st.DeleteParticipant(c.Request.Context(), address); err != nil {
		c.JSON(http.StatusInternalServerError, model.Response{
			Success: false,
			Error:   "failed to delete participant",
		})
		return
	}

	c.JSON(http.StatusOK, model.Response{
		Success: true,
		Data:    gin.H{"address": address},
	})
}

// GetConfig returns the current configuration
func (h *Handler) GetConfig() model.Config {
	return h.config
}
