package usage

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"tark/pkg/types"
)

// refreshInterval bounds how often PricingSource re-fetches the
// external capability database.
const refreshInterval = time.Hour

// defaultPricing seeds cost lookups before any external fetch
// succeeds, and serves as the permanent fallback for models the
// external source never lists.
var defaultPricing = map[string]types.ModelPricing{
	"claude-opus-4":      {InputPerMillion: 15, OutputPerMillion: 75},
	"claude-sonnet-4":    {InputPerMillion: 3, OutputPerMillion: 15},
	"claude-haiku-4":     {InputPerMillion: 0.8, OutputPerMillion: 4},
	"gpt-4o":             {InputPerMillion: 2.5, OutputPerMillion: 10},
	"gpt-4o-mini":        {InputPerMillion: 0.15, OutputPerMillion: 0.6},
	"o1":                 {InputPerMillion: 15, OutputPerMillion: 60},
	"gemini-1.5-pro":     {InputPerMillion: 1.25, OutputPerMillion: 5},
	"gemini-1.5-flash":   {InputPerMillion: 0.075, OutputPerMillion: 0.3},
}

// PricingSource resolves a model to its per-token cost, consulting an
// hourly-cached external capability database before falling back to
// the embedded default map. A model unknown to both sources costs 0.
type PricingSource struct {
	fetchURL   string
	httpClient *http.Client

	mu        sync.RWMutex
	cached    map[string]types.ModelPricing
	fetchedAt time.Time
}

// NewPricingSource builds a pricing source. fetchURL may be empty, in
// which case the embedded default map is used exclusively.
func NewPricingSource(fetchURL string) *PricingSource {
	return &PricingSource{
		fetchURL:   fetchURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Lookup returns the pricing for model and whether it came from a
// real source (external or default) as opposed to an unknown-model 0.
func (p *PricingSource) Lookup(ctx context.Context, model string) (types.ModelPricing, bool) {
	p.refreshIfStale(ctx)

	p.mu.RLock()
	cached, ok := p.cached[model]
	p.mu.RUnlock()
	if ok {
		return cached, true
	}
	if dflt, ok := defaultPricing[model]; ok {
		return dflt, true
	}
	return types.ModelPricing{}, false
}

func (p *PricingSource) refreshIfStale(ctx context.Context) {
	if p.fetchURL == "" {
		return
	}
	p.mu.RLock()
	stale := time.Since(p.fetchedAt) > refreshInterval
	p.mu.RUnlock()
	if !stale {
		return
	}

	fetched, err := p.fetch(ctx)
	if err != nil {
		log.Warn().Err(err).Str("url", p.fetchURL).Msg("pricing refresh failed, using cached/default pricing")
		p.mu.Lock()
		p.fetchedAt = time.Now()
		p.mu.Unlock()
		return
	}

	p.mu.Lock()
	p.cached = fetched
	p.fetchedAt = time.Now()
	p.mu.Unlock()
}

func (p *PricingSource) fetch(ctx context.Context) (map[string]types.ModelPricing, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.fetchURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var parsed map[string]types.ModelPricing
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, err
	}
	return parsed, nil
}

// CostUSD computes the dollar cost of inputTokens/outputTokens of
// model, and whether the figure is estimated (pricing-map miss).
func (p *PricingSource) CostUSD(ctx context.Context, model string, inputTokens, outputTokens int) (cost float64, estimated bool) {
	pricing, ok := p.Lookup(ctx, model)
	if !ok {
		return 0, true
	}
	cost = float64(inputTokens)/1_000_000*pricing.InputPerMillion +
		float64(outputTokens)/1_000_000*pricing.OutputPerMillion
	return cost, false
}
