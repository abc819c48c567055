package payment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"tributeboard/internal/model"
)

// State is one step of the orchestration state machine
type State string

const (
	StateIdle                 State = "idle"
	StateValidating           State = "validating"
	StateDirectNativeTransfer State = "direct_native_transfer"
	StateDirectAssetTransfer  State = "direct_asset_transfer"
	StateSwapAndSettle        State = "swap_and_settle"
	StateConfirming           State = "confirming"
	StateTerminal             State = "terminal"
)

// Sentinel errors a Wallet implementation returns so failures can be
// classified without string matching.
var (
	ErrSigningRejected = errors.New("signing rejected by wallet")
	ErrConfirmTimeout  = errors.New("confirmation wait timed out")
)

// Wallet is the signing/submission/confirmation capability. Send
// methods broadcast exactly one transfer and return its signature, or
// fail before anything reaches the network. AwaitConfirmation blocks
// until the transfer identified by memo is observed on-chain, the
// timeout elapses, or ctx is done.
type Wallet interface {
	Address() string
	SendNative(ctx context.Context, amount float64, memo string) (string, error)
	SendJetton(ctx context.Context, asset model.AssetConfig, amount float64, memo string) (string, error)
	ExecuteSwap(ctx context.Context, asset model.AssetConfig, quote *model.Quote, memo string) (string, error)
	AwaitConfirmation(ctx context.Context, memo string, timeout time.Duration) (string, error)
}

// Quoter supplies time-boxed swap quotes
type Quoter interface {
	Quote(ctx context.Context, from, to model.AssetConfig, amount float64) (*model.Quote, error)
	Fresh(q *model.Quote) bool
}

// Rater supplies USD-per-unit rates
type Rater interface {
	Rate(ctx context.Context, asset model.AssetConfig) (float64, error)
}

// Recorder receives confirmed outcomes for local bookkeeping
type Recorder interface {
	RecordConfirmed(payer, asset string, outcome model.PaymentOutcome) model.LocalDepositRecord
}

// LedgerSync pushes confirmed tributes to the board ledger. Calls are
// fire-and-forget: failure is retried out-of-band and never reported
// as a payment failure.
type LedgerSync interface {
	UpsertAfterPayment(ctx context.Context, up model.LedgerUpsert) error
}

// Config bounds the orchestrator's external waits
type Config struct {
	SettleAsset      model.AssetConfig // swap target, the chain's native asset
	QuoteAttempts    int
	ConfirmTimeout   time.Duration
	LedgerRetries    int
	LedgerRetryDelay time.Duration
	MaxMessageLen    int
}

// Orchestrator drives one payment attempt through validation, one of
// three execution strategies, and confirmation. It is strictly
// sequential per attempt and never retries a broadcast submission: a
// failed attempt returns control to the caller and a fresh attempt
// starts over from idle.
type Orchestrator struct {
	wallet   Wallet
	quoter   Quoter
	rater    Rater
	recorder Recorder
	sync     LedgerSync
	cfg      Config
	log      zerolog.Logger
}

func NewOrchestrator(wallet Wallet, quoter Quoter, rater Rater, recorder Recorder, sync LedgerSync, cfg Config, log zerolog.Logger) *Orchestrator {
	if cfg.QuoteAttempts <= 0 {
		cfg.QuoteAttempts = 3
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 90 * time.Second
	}
	if cfg.LedgerRetries <= 0 {
		cfg.LedgerRetries = 3
	}
	if cfg.LedgerRetryDelay <= 0 {
		cfg.LedgerRetryDelay = 2 * time.Second
	}
	if cfg.MaxMessageLen <= 0 {
		cfg.MaxMessageLen = 256
	}
	return &Orchestrator{
		wallet:   wallet,
		quoter:   quoter,
		rater:    rater,
		recorder: recorder,
		sync:     sync,
		cfg:      cfg,
		log:      log.With().Str("component", "orchestrator").Logger(),
	}
}

// Attempt is one in-flight payment. Statuses streams state transitions
// and closes once the terminal outcome is available from Wait.
type Attempt struct {
	ID        string
	statuses  chan State
	outcome   chan model.PaymentOutcome
	cancelled atomic.Bool
	broadcast atomic.Bool
}

func (a *Attempt) Statuses() <-chan State { return a.statuses }

// Cancel requests cooperative cancellation. It only takes effect
// before submission; once a transfer is broadcast the attempt runs to
// a correctly classified terminal state regardless.
func (a *Attempt) Cancel() { a.cancelled.Store(true) }

// Wait blocks for the terminal outcome. A caller that gives up after
// the transfer was broadcast gets the ambiguous timeout classification;
// giving up before broadcast cancels the attempt cleanly.
func (a *Attempt) Wait(ctx context.Context) model.PaymentOutcome {
	select {
	case out := <-a.outcome:
		return out
	case <-ctx.Done():
		if a.broadcast.Load() {
			return model.PaymentOutcome{
				Status:  model.OutcomeFailed,
				Kind:    model.KindConfirmationTimeout,
				Message: "gave up waiting after submission; check your transaction before retrying",
			}
		}
		a.Cancel()
		return model.PaymentOutcome{
			Status:  model.OutcomeCancelled,
			Message: "abandoned before submission",
		}
	}
}

// Submit starts one attempt and returns immediately
func (o *Orchestrator) Submit(ctx context.Context, req model.PaymentRequest) *Attempt {
	a := &Attempt{
		ID:       req.ID,
		statuses: make(chan State, 8),
		outcome:  make(chan model.PaymentOutcome, 1),
	}
	go func() {
		out := o.run(ctx, req, a)
		a.outcome <- out
		close(a.statuses)
	}()
	return a
}

// Run executes one attempt synchronously
func (o *Orchestrator) Run(ctx context.Context, req model.PaymentRequest) model.PaymentOutcome {
	a := &Attempt{statuses: make(chan State, 8), outcome: make(chan model.PaymentOutcome, 1)}
	out := o.run(ctx, req, a)
	close(a.statuses)
	return out
}

func (o *Orchestrator) run(ctx context.Context, req model.PaymentRequest, a *Attempt) model.PaymentOutcome {
	emit := func(s State) {
		select {
		case a.statuses <- s:
		default:
		}
	}

	emit(StateValidating)
	if out, ok := o.validate(req); !ok {
		emit(StateTerminal)
		return out
	}

	if o.shouldCancel(ctx, a) {
		emit(StateTerminal)
		return model.PaymentOutcome{Status: model.OutcomeCancelled}
	}

	// The USD rate is needed both to resolve USD-denominated input and
	// to value the settled amount. Last-known-good fallback lives in
	// the resolver; a hard failure here is pre-submission and safe to
	// retry.
	rate, err := o.rater.Rate(ctx, req.Asset)
	if err != nil || rate <= 0 {
		emit(StateTerminal)
		return failure(model.KindQuoteUnavailable, fmt.Sprintf("no usd rate for %s", req.Asset.Symbol))
	}

	assetAmount := req.Amount
	if req.Mode == model.AmountInUSD {
		assetAmount = req.Amount / rate
	}
	if assetAmount <= 0 || math.IsNaN(assetAmount) || math.IsInf(assetAmount, 0) {
		emit(StateTerminal)
		return failure(model.KindInvalidInput, "amount does not resolve to a positive quantity")
	}

	memo := "tb:" + req.ID

	signature, out, ok := o.execute(ctx, a, req, assetAmount, memo, emit)
	if !ok {
		emit(StateTerminal)
		return out
	}

	// Broadcast is irrevocable: from here on cancellation is ignored
	// and the attempt must end in a correctly classified state.
	emit(StateConfirming)
	confirmCtx := context.WithoutCancel(ctx)
	txHash, err := o.wallet.AwaitConfirmation(confirmCtx, memo, o.cfg.ConfirmTimeout)
	if err != nil {
		o.log.Warn().Err(err).Str("attempt", req.ID).Str("signature", signature).Msg("confirmation not observed within bound")
		emit(StateTerminal)
		return model.PaymentOutcome{
			Status:  model.OutcomeFailed,
			Kind:    model.KindConfirmationTimeout,
			Message: "confirmation not observed in time; the transfer may still land, check your transaction before retrying",
		}
	}
	if txHash != "" {
		signature = txHash
	}

	outcome := model.PaymentOutcome{
		Status:        model.OutcomeConfirmed,
		Signature:     signature,
		SettledAmount: assetAmount,
		SettledUSD:    assetAmount * rate,
	}

	if o.recorder != nil {
		o.recorder.RecordConfirmed(req.Payer, req.Asset.Symbol, outcome)
	}
	o.syncLedger(confirmCtx, req, outcome)

	emit(StateTerminal)
	return outcome
}

// validate is the only fully synchronous, side-effect-free gate: no
// network call happens before it passes.
func (o *Orchestrator) validate(req model.PaymentRequest) (model.PaymentOutcome, bool) {
	if req.Amount <= 0 || math.IsNaN(req.Amount) || math.IsInf(req.Amount, 0) {
		return failure(model.KindInvalidInput, "amount must be positive"), false
	}
	if req.Asset.Symbol == "" {
		return failure(model.KindInvalidInput, "asset is required"), false
	}
	if req.Payer == "" {
		return failure(model.KindInvalidInput, "payer identity is required"), false
	}
	if o.wallet == nil || o.wallet.Address() == "" {
		return failure(model.KindInvalidInput, "no signing wallet available"), false
	}
	if ann := req.Annotation; ann != nil {
		if len(ann.Message) > o.cfg.MaxMessageLen {
			return failure(model.KindInvalidInput, fmt.Sprintf("message exceeds %d characters", o.cfg.MaxMessageLen)), false
		}
		if ann.URL != "" {
			u, err := url.Parse(ann.URL)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
				return failure(model.KindInvalidInput, "annotation url must be http(s)"), false
			}
		}
	}
	return model.PaymentOutcome{}, true
}

// execute runs the selected strategy to exactly one broadcast transfer
// or a pre-submission failure. Strategy selection is deterministic by
// asset identity: native transfer, stable-asset transfer, then
// swap-and-settle.
func (o *Orchestrator) execute(ctx context.Context, a *Attempt, req model.PaymentRequest, assetAmount float64, memo string, emit func(State)) (string, model.PaymentOutcome, bool) {
	var signature string
	var err error

	switch {
	case req.Asset.Native:
		emit(StateDirectNativeTransfer)
		if o.shouldCancel(ctx, a) {
			return "", model.PaymentOutcome{Status: model.OutcomeCancelled}, false
		}
		a.broadcast.Store(true)
		signature, err = o.wallet.SendNative(ctx, assetAmount, memo)

	case req.Asset.Stable:
		emit(StateDirectAssetTransfer)
		if o.shouldCancel(ctx, a) {
			return "", model.PaymentOutcome{Status: model.OutcomeCancelled}, false
		}
		a.broadcast.Store(true)
		signature, err = o.wallet.SendJetton(ctx, req.Asset, assetAmount, memo)

	default:
		emit(StateSwapAndSettle)
		quote, out, ok := o.obtainQuote(ctx, a, req.Asset, assetAmount)
		if !ok {
			return "", out, false
		}
		if o.shouldCancel(ctx, a) {
			return "", model.PaymentOutcome{Status: model.OutcomeCancelled}, false
		}
		a.broadcast.Store(true)
		signature, err = o.wallet.ExecuteSwap(ctx, req.Asset, quote, memo)
	}

	if err != nil {
		if errors.Is(err, ErrSigningRejected) {
			return "", failure(model.KindSigningRejected, "user declined to sign the transfer"), false
		}
		return "", failure(model.KindSubmissionFailed, err.Error()), false
	}
	return signature, model.PaymentOutcome{}, true
}

// obtainQuote gets a fresh, executable quote within a bounded attempt
// budget; it fails fast rather than hanging on a dead aggregator.
func (o *Orchestrator) obtainQuote(ctx context.Context, a *Attempt, asset model.AssetConfig, amount float64) (*model.Quote, model.PaymentOutcome, bool) {
	var lastErr error
	for i := 0; i < o.cfg.QuoteAttempts; i++ {
		if o.shouldCancel(ctx, a) {
			return nil, model.PaymentOutcome{Status: model.OutcomeCancelled}, false
		}
		q, err := o.quoter.Quote(ctx, asset, o.cfg.SettleAsset, amount)
		if err != nil {
			lastErr = err
			continue
		}
		if o.quoter.Fresh(q) {
			return q, model.PaymentOutcome{}, true
		}
		lastErr = errors.New("quote went stale before execution")
	}

	msg := "could not obtain a usable quote"
	if lastErr != nil {
		msg = fmt.Sprintf("%s: %v", msg, lastErr)
	}
	return nil, failure(model.KindQuoteUnavailable, msg), false
}

// syncLedger pushes the confirmed tribute (and its annotation, which
// has no on-chain channel) to the board ledger with bounded retries.
// Failure is logged, never escalated: the payment already succeeded.
func (o *Orchestrator) syncLedger(ctx context.Context, req model.PaymentRequest, outcome model.PaymentOutcome) {
	if o.sync == nil {
		return
	}

	up := model.LedgerUpsert{
		Payer:      req.Payer,
		Name:       req.Name,
		Asset:      req.Asset.Symbol,
		Amount:     outcome.SettledAmount,
		Signature:  outcome.Signature,
		USDValue:   outcome.SettledUSD,
		Annotation: req.Annotation,
	}

	go func() {
		var err error
		for i := 0; i < o.cfg.LedgerRetries; i++ {
			if err = o.sync.UpsertAfterPayment(ctx, up); err == nil {
				return
			}
			time.Sleep(time.Duration(i+1) * o.cfg.LedgerRetryDelay)
		}
		o.log.Error().Err(err).
			Str("kind", string(model.KindLedgerSyncFailed)).
			Str("signature", up.Signature).
			Msg("board ledger sync failed; payment outcome unaffected")
	}()
}

func (o *Orchestrator) shouldCancel(ctx context.Context, a *Attempt) bool {
	return a.cancelled.Load() || ctx.Err() != nil
}

func failure(kind model.FailureKind, msg string) model.PaymentOutcome {
	return model.PaymentOutcome{Status: model.OutcomeFailed, Kind: kind, Message: msg}
}
