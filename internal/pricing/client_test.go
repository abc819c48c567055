package pricing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyProvider struct {
	mu      sync.Mutex
	failing bool
	calls   int
}

func (p *flakyProvider) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		p.calls++
		failing := p.failing
		p.mu.Unlock()

		if failing {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"the-open-network":{"usd":5.5}}`))
	}
}

func (p *flakyProvider) setFailing(v bool) {
	p.mu.Lock()
	p.failing = v
	p.mu.Unlock()
}

func (p *flakyProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	provider := &flakyProvider{}
	srv := httptest.NewServer(provider.handler())
	t.Cleanup(srv.Close)

	cg := &CoinGecko{
		baseURL: srv.URL,
		http:    newProviderClient("coingecko", 1000, 3, zerolog.Nop()),
	}
	r := NewResolver(cg, nil, time.Minute, zerolog.Nop())
	ctx := context.Background()

	rate, err := r.Rate(ctx, tonAsset)
	require.NoError(t, err)
	assert.Equal(t, 5.5, rate)

	// Three consecutive failures trip the breaker; every one of them is
	// absorbed by the last-known-good cache.
	provider.setFailing(true)
	for i := 0; i < 3; i++ {
		rate, err = r.Rate(ctx, tonAsset)
		require.NoError(t, err)
		assert.Equal(t, 5.5, rate)
	}
	tripped := provider.callCount()

	// Open breaker fails fast: the provider sees no further traffic and
	// the cache still serves.
	for i := 0; i < 5; i++ {
		rate, err = r.Rate(ctx, tonAsset)
		require.NoError(t, err)
		assert.Equal(t, 5.5, rate)
	}
	assert.Equal(t, tripped, provider.callCount())
}

func TestProviderClientRejectsNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	pc := newProviderClient("test", 1000, 5, zerolog.Nop())
	_, err := pc.call(context.Background(), "GET", srv.URL, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}
