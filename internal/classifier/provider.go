package classifier

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ahmetcoskunkizilkaya/anonboard/internal/metrics"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	SourceStore  = "store"
	SourceStatic = "static"

	activeRulesetKey = "active"
)

// Provider resolves the active Ruleset: the mutable store when it is
// reachable and non-empty, otherwise the static snapshot. Results are cached
// for ttl; reads never take a lock beyond the LRU's own.
type Provider struct {
	store    Source
	fallback *Ruleset
	cache    *expirable.LRU[string, *Ruleset]

	// generation is bumped by Invalidate so a load that raced a write does
	// not repopulate the cache with the old ruleset.
	generation atomic.Uint64
}

// NewProvider builds a provider. store may be nil, in which case only the
// static snapshot is served.
func NewProvider(store Source, static *StaticSource, ttl time.Duration) *Provider {
	cfg, _ := static.Load(context.Background())
	return &Provider{
		store:    store,
		fallback: Compile(cfg, SourceStatic),
		cache:    expirable.NewLRU[string, *Ruleset](1, nil, ttl),
	}
}

// Ruleset returns the active ruleset. It never fails.
func (p *Provider) Ruleset(ctx context.Context) *Ruleset {
	if rs, ok := p.cache.Get(activeRulesetKey); ok {
		return rs
	}

	gen := p.generation.Load()
	rs := p.load(ctx)
	if p.generation.Load() == gen {
		p.cache.Add(activeRulesetKey, rs)
	}
	metrics.ClassifierConfigLoads.WithLabelValues(rs.Source()).Inc()
	return rs
}

func (p *Provider) load(ctx context.Context) *Ruleset {
	if p.store == nil {
		return p.fallback
	}
	cfg, err := p.store.Load(ctx)
	if err != nil {
		slog.Warn("classifier store unavailable, using static config", "error", err)
		return p.fallback
	}
	if cfg.IsEmpty() {
		slog.Info("classifier store is empty, using static config")
		return p.fallback
	}
	return Compile(cfg, SourceStore)
}

// Invalidate drops the cached ruleset so the next read reloads it.
func (p *Provider) Invalidate() {
	p.generation.Add(1)
	p.cache.Purge()
}

// Classifier classifies text with whatever ruleset is currently active.
type Classifier struct {
	provider *Provider
}

func New(provider *Provider) *Classifier {
	return &Classifier{provider: provider}
}

func (c *Classifier) Classify(ctx context.Context, text, boardID string) Result {
	return c.provider.Ruleset(ctx).Classify(text, boardID)
}

func (c *Classifier) Provider() *Provider {
	return c.provider
}
