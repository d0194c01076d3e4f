package linkpreview

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/PuerkitoBio/purell"
	"github.com/ahmetcoskunkizilkaya/anonboard/internal/cachestore"
	"github.com/ahmetcoskunkizilkaya/anonboard/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/anonboard/internal/models"
)

const previewCacheName = "link-preview"

// PreviewFetcher is what the post flow depends on.
type PreviewFetcher interface {
	FetchPreview(ctx context.Context, rawText string) *models.LinkPreview
}

var (
	_ PreviewFetcher = (*Fetcher)(nil)
	_ PreviewFetcher = (*CachedFetcher)(nil)
)

type cacheEntry struct {
	Preview *models.LinkPreview `json:"preview"`
}

// CachedFetcher remembers previews per normalized URL, including misses, so
// the same link posted repeatedly is only fetched once per TTL.
type CachedFetcher struct {
	inner *Fetcher
	store cachestore.CacheStore
}

func NewCachedFetcher(inner *Fetcher, store cachestore.CacheStore) *CachedFetcher {
	return &CachedFetcher{inner: inner, store: store}
}

func (c *CachedFetcher) FetchPreview(ctx context.Context, rawText string) *models.LinkPreview {
	target := FirstURL(rawText)
	if target == "" {
		return nil
	}
	key := CacheKey(target)

	raw, err := c.store.Get(ctx, previewCacheName, key)
	if err != nil {
		slog.Warn("link preview cache read failed", "error", err)
	} else if raw != "" {
		var entry cacheEntry
		if err := json.Unmarshal([]byte(raw), &entry); err == nil {
			metrics.PreviewCacheHits.Inc()
			return entry.Preview
		}
	}

	preview := c.inner.FetchURL(ctx, target)
	if ctx.Err() != nil {
		// Caller gave up; the miss says nothing about the URL.
		return preview
	}
	b, err := json.Marshal(cacheEntry{Preview: preview})
	if err == nil {
		err = c.store.Set(ctx, previewCacheName, key, string(b))
	}
	if err != nil {
		slog.Warn("link preview cache write failed", "error", err)
	}
	return preview
}

// CacheKey normalizes a URL so trivially different spellings share an entry.
func CacheKey(target string) string {
	key, err := purell.NormalizeURLString(target, purell.FlagsSafe|purell.FlagRemoveFragment)
	if err != nil {
		return target
	}
	return key
}
