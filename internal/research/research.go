// Package research answers research actions. A query is triaged into one of
// three shapes: a URL (fetched and readability-extracted), a local document
// path (parsed, gated by the safety filter), or a plain question for the
// oracle. Results go through two cache tiers: the in-process TTL cache and
// the durable cache table in the memory index.
package research

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/jeanpaul/autopilot/internal/cache"
	"github.com/jeanpaul/autopilot/internal/memory"
	"github.com/jeanpaul/autopilot/internal/provider"
	"github.com/jeanpaul/autopilot/internal/safety"
	"github.com/jeanpaul/autopilot/internal/textutil"
)

// Extracted page and document content is capped before it reaches the
// oracle or the caches.
const contentCap = 8000

type Researcher struct {
	oracle   provider.Oracle
	opts     provider.Options
	cache    *cache.Cache
	index    *memory.Index
	filter   *safety.Filter
	renderJS bool
	log      *logrus.Entry

	mu        sync.Mutex
	searches  int
	cacheHits int
}

type Stats struct {
	Searches  int `json:"searches"`
	CacheHits int `json:"cache_hits"`
}

// New builds a Researcher. index may be nil, in which case only the
// in-process cache tier is used.
func New(oracle provider.Oracle, opts provider.Options, c *cache.Cache, index *memory.Index, filter *safety.Filter, renderJS bool, logger *logrus.Logger) *Researcher {
	return &Researcher{
		oracle:   oracle,
		opts:     opts,
		cache:    c,
		index:    index,
		filter:   filter,
		renderJS: renderJS,
		log:      logger.WithField("component", "research"),
	}
}

// Search resolves a research query, consulting both cache tiers before
// doing any work.
func (r *Researcher) Search(ctx context.Context, query string) (string, error) {
	r.mu.Lock()
	r.searches++
	r.mu.Unlock()

	key := "research_" + textutil.Truncate(query, 50)
	if v, ok := r.cache.Get(key); ok {
		r.hit()
		return v.(string), nil
	}
	if r.index != nil {
		if v, ok, err := r.index.GetCache(key); err == nil && ok {
			r.hit()
			r.cache.Set(key, v)
			return v, nil
		}
	}

	result, err := r.resolve(ctx, query)
	if err != nil {
		return "", err
	}

	r.cache.Set(key, result)
	if r.index != nil {
		if err := r.index.PutCache(key, result); err != nil {
			r.log.WithError(err).Error("failed to persist research result")
		}
	}
	return result, nil
}

func (r *Researcher) resolve(ctx context.Context, query string) (string, error) {
	switch {
	case isURL(query):
		return r.researchURL(ctx, query)
	case isLocalDocument(query):
		return r.researchDocument(query)
	}
	return r.researchQuestion(ctx, query)
}

func (r *Researcher) researchURL(ctx context.Context, url string) (string, error) {
	content, err := r.fetchArticle(ctx, url)
	if err != nil && r.renderJS {
		r.log.WithError(err).Debug("plain fetch failed, trying rendered fetch")
		content, err = r.renderedFetch(ctx, url)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", url, err)
	}
	return r.summarize(ctx, url, content)
}

func (r *Researcher) researchDocument(path string) (string, error) {
	if !r.filter.CheckFileAccess(path) {
		return "", fmt.Errorf("file access denied: %s", path)
	}

	var content string
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		content, err = parsePDF(path)
	case ".xlsx", ".xls":
		content, err = parseExcel(path)
	default:
		var data []byte
		data, err = os.ReadFile(path)
		content = string(data)
	}
	if err != nil {
		return "", fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return textutil.Truncate(content, contentCap), nil
}

func (r *Researcher) researchQuestion(ctx context.Context, query string) (string, error) {
	prompt := fmt.Sprintf("Research the following topic and summarize the key findings concisely:\n\n%s", query)
	out, err := r.oracle.Complete(ctx, []provider.Message{
		{Role: provider.RoleUser, Content: prompt},
	}, r.opts)
	if err != nil {
		return "", fmt.Errorf("research failed: %w", err)
	}
	return out, nil
}

func (r *Researcher) summarize(ctx context.Context, source, content string) (string, error) {
	prompt := fmt.Sprintf("Summarize the key points of this page (%s) for an engineering log:\n\n%s",
		source, textutil.Truncate(content, contentCap))
	out, err := r.oracle.Complete(ctx, []provider.Message{
		{Role: provider.RoleUser, Content: prompt},
	}, r.opts)
	if err != nil {
		// The extracted content is still useful on its own
		r.log.WithError(err).Warn("summarization failed, returning raw extract")
		return textutil.Truncate(content, contentCap), nil
	}
	return out, nil
}

func (r *Researcher) hit() {
	r.mu.Lock()
	r.cacheHits++
	r.mu.Unlock()
}

func (r *Researcher) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{Searches: r.searches, CacheHits: r.cacheHits}
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func isLocalDocument(s string) bool {
	if strings.ContainsAny(s, "\n?") {
		return false
	}
	info, err := os.Stat(s)
	return err == nil && !info.IsDir()
}
