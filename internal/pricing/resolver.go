package pricing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tributeboard/internal/model"
)

var (
	// ErrNoRate means the provider failed and no prior rate exists for
	// the asset in this session.
	ErrNoRate = errors.New("no rate available for asset")
	// ErrSuperseded means a newer quote request was issued for the same
	// pair while this one was in flight; its result was discarded.
	ErrSuperseded = errors.New("quote request superseded")
)

// Resolver fronts the rate and quote providers. Rates fall back to the
// last-known-good value from the current session. Quote requests for
// the same asset pair supersede each other: only the most recently
// issued request may surface its result, so a slow early response can
// never overwrite a faster later one.
type Resolver struct {
	rates  RateProvider
	quotes QuoteProvider
	ttl    time.Duration
	log    zerolog.Logger

	mu       sync.Mutex
	lastGood map[string]rateSample
	pairs    map[string]*pairState
}

type rateSample struct {
	rate float64
	at   time.Time
}

type pairState struct {
	issued  uint64 // generation of the most recently issued request
	current *model.Quote
}

func NewResolver(rates RateProvider, quotes QuoteProvider, ttl time.Duration, log zerolog.Logger) *Resolver {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Resolver{
		rates:    rates,
		quotes:   quotes,
		ttl:      ttl,
		log:      log.With().Str("component", "resolver").Logger(),
		lastGood: make(map[string]rateSample),
		pairs:    make(map[string]*pairState),
	}
}

// Rate returns the USD-per-unit rate for an asset. Provider failure is
// tolerated by serving the last-known-good rate; only when no prior
// rate exists does the failure propagate.
func (r *Resolver) Rate(ctx context.Context, asset model.AssetConfig) (float64, error) {
	rate, err := r.rates.GetRate(ctx, asset.CoingeckoID)
	if err == nil && rate > 0 {
		r.mu.Lock()
		r.lastGood[asset.Symbol] = rateSample{rate: rate, at: time.Now()}
		r.mu.Unlock()
		return rate, nil
	}

	r.mu.Lock()
	sample, ok := r.lastGood[asset.Symbol]
	r.mu.Unlock()
	if ok {
		r.log.Warn().Err(err).Str("asset", asset.Symbol).Time("sampled_at", sample.at).Msg("rate provider failed, serving last-known-good")
		return sample.rate, nil
	}

	if err == nil {
		err = ErrNoRate
	}
	return 0, fmt.Errorf("resolve rate for %s: %w", asset.Symbol, err)
}

// Quote requests a fresh quote for the pair. Issuing a new request for
// the same pair invalidates any in-flight one: when a superseded call
// completes, its result is discarded and ErrSuperseded is returned.
func (r *Resolver) Quote(ctx context.Context, from, to model.AssetConfig, amount float64) (*model.Quote, error) {
	key := pairKey(from.Symbol, to.Symbol)

	r.mu.Lock()
	st, ok := r.pairs[key]
	if !ok {
		st = &pairState{}
		r.pairs[key] = st
	}
	st.issued++
	gen := st.issued
	r.mu.Unlock()

	q, err := r.quotes.GetQuote(ctx, from, to, amount)

	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != st.issued {
		return nil, ErrSuperseded
	}
	if err != nil {
		return nil, fmt.Errorf("quote %s: %w", key, err)
	}
	st.current = q
	return q, nil
}

// Current returns the most recently completed quote for the pair, if
// one exists and is still fresh.
func (r *Resolver) Current(fromSymbol, toSymbol string) (*model.Quote, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.pairs[pairKey(fromSymbol, toSymbol)]
	if !ok || st.current == nil || st.current.Age() > r.ttl {
		return nil, false
	}
	return st.current, true
}

// Fresh reports whether a quote is still executable without re-validation
func (r *Resolver) Fresh(q *model.Quote) bool {
	return q != nil && q.Age() <= r.ttl
}

func pairKey(from, to string) string {
	return from + "/" + to
}
