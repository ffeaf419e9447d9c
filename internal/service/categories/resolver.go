// Package categories resolves website domains to taxonomy categories.
//
// Resolution is cache-aside: an in-process memo, then the category store, and
// only on a miss the classifier. A successful classification is persisted so
// the classifier runs at most once per previously unseen domain. Any failure
// degrades that one domain to Uncategorized and is never cached, so the next
// request re-attempts it.
package categories

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ashita-ai/bunrui/internal/classifier"
	"github.com/ashita-ai/bunrui/internal/model"
	"github.com/ashita-ai/bunrui/internal/telemetry"
)

// DefaultParallelism bounds concurrent classifier calls within one Resolve.
const DefaultParallelism = 4

// Store is the domain→category persistence the resolver reads and writes.
// PutCategory must be an upsert: concurrent writers for the same new domain
// are tolerated and the last write wins.
type Store interface {
	GetCategory(ctx context.Context, domain string) (model.DomainCategory, bool, error)
	PutCategory(ctx context.Context, rec model.DomainCategory) error
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithPrecheck installs a domain pre-check. Domains it rejects resolve to
// Uncategorized without a store lookup or classifier call.
func WithPrecheck(p Precheck) Option {
	return func(r *Resolver) { r.precheck = p }
}

// WithMemoTTL enables the in-process memo with the given TTL. Zero disables it.
func WithMemoTTL(ttl time.Duration) Option {
	return func(r *Resolver) { r.memoTTL = ttl }
}

// WithParallelism sets the maximum number of domains resolved concurrently.
func WithParallelism(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.parallelism = n
		}
	}
}

// WithTimeout sets the per-call classifier deadline.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) { r.timeout = d }
}

// Resolver maps domains to categories. Safe for concurrent use.
type Resolver struct {
	store       Store
	classifier  classifier.Classifier
	logger      *slog.Logger
	precheck    Precheck
	memoTTL     time.Duration
	memo        *memo
	parallelism int
	timeout     time.Duration

	// Concurrent misses for the same domain share one lookup and one
	// classifier call.
	inflight singleflight.Group

	lookups         metric.Int64Counter
	classifierCalls metric.Int64Counter
	classifierDur   metric.Float64Histogram
}

// New creates a Resolver. Call Close to release the memo's eviction goroutine.
func New(store Store, c classifier.Classifier, logger *slog.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		store:       store,
		classifier:  c,
		logger:      logger,
		parallelism: DefaultParallelism,
		timeout:     classifier.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.memoTTL > 0 {
		r.memo = newMemo(r.memoTTL)
	}

	meter := telemetry.Meter("bunrui/categories")
	r.lookups, _ = meter.Int64Counter("bunrui.categories.lookups",
		metric.WithDescription("Category lookups by result (hit, miss)"),
	)
	r.classifierCalls, _ = meter.Int64Counter("bunrui.classifier.calls",
		metric.WithDescription("Classifier calls by outcome (ok, error)"),
	)
	r.classifierDur, _ = meter.Float64Histogram("bunrui.classifier.duration",
		metric.WithDescription("Classifier call latency (ms)"),
		metric.WithUnit("ms"),
	)
	return r
}

// Close stops background work. The Resolver must not be used afterwards.
func (r *Resolver) Close() {
	if r.memo != nil {
		r.memo.Close()
	}
}

// Resolve returns a category for every input domain. It never fails as a
// whole: each domain that cannot be classified maps to Uncategorized.
// Duplicate domains in one call are resolved once. Once ctx is done, domains
// not yet started map to Uncategorized.
func (r *Resolver) Resolve(ctx context.Context, domains []string) map[string]string {
	out := make(map[string]string, len(domains))

	pending := make([]string, 0, len(domains))
	seen := make(map[string]struct{}, len(domains))
	for _, d := range domains {
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}

		if isTrivial(d) {
			out[d] = model.CategoryUncategorized
			continue
		}
		if r.precheck != nil && !r.precheck(d) {
			r.logger.Debug("categories: domain rejected by precheck", "domain", d)
			out[d] = model.CategoryUncategorized
			continue
		}
		pending = append(pending, d)
	}

	results := make([]string, len(pending))
	var g errgroup.Group
	g.SetLimit(r.parallelism)
	for i, d := range pending {
		g.Go(func() error {
			// A gone caller gets no new classifier calls. Domains already
			// started finish under the shared call.
			if ctx.Err() != nil {
				results[i] = model.CategoryUncategorized
				return nil
			}
			results[i] = r.resolveOne(ctx, d)
			return nil
		})
	}
	_ = g.Wait() // resolveOne absorbs every error

	for i, d := range pending {
		out[d] = results[i]
	}
	return out
}

// isTrivial reports whether d carries no domain at all.
func isTrivial(d string) bool {
	return d == "" || strings.TrimSpace(d) == "/"
}

func (r *Resolver) resolveOne(ctx context.Context, domain string) string {
	if r.memo != nil {
		if cat, ok := r.memo.Get(domain); ok {
			r.lookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "hit")))
			return cat
		}
	}

	// The shared call must not inherit one caller's cancellation, otherwise
	// every waiter would see that caller's error.
	sharedCtx := context.WithoutCancel(ctx)
	v, _, _ := r.inflight.Do(domain, func() (any, error) {
		return r.lookupOrClassify(sharedCtx, domain), nil
	})
	return v.(string)
}

func (r *Resolver) lookupOrClassify(ctx context.Context, domain string) string {
	rec, found, err := r.store.GetCategory(ctx, domain)
	if err != nil {
		r.logger.Warn("categories: lookup failed", "domain", domain, "error", err)
		return model.CategoryUncategorized
	}
	if found {
		r.lookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "hit")))
		if rec.Category == "" {
			return model.CategoryUncategorized
		}
		r.remember(domain, rec.Category)
		return rec.Category
	}
	r.lookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "miss")))

	start := time.Now()
	out := classifier.Run(ctx, r.classifier, classifier.NewRequest(domain), r.timeout)
	r.classifierDur.Record(ctx, float64(time.Since(start).Milliseconds()))
	if !out.OK() {
		r.classifierCalls.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "error")))
		r.logger.Warn("categories: classification failed", "domain", domain, "error", out.Err)
		return model.CategoryUncategorized
	}
	r.classifierCalls.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "ok")))

	err = r.store.PutCategory(ctx, model.DomainCategory{
		Domain:    domain,
		Category:  out.Category,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		r.logger.Warn("categories: persist failed", "domain", domain, "error", err)
		return model.CategoryUncategorized
	}
	r.remember(domain, out.Category)
	return out.Category
}

func (r *Resolver) remember(domain, category string) {
	if r.memo != nil {
		r.memo.Set(domain, category)
	}
}
