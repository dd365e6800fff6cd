// Package pipeline runs the poll cycle: fetch quotes from every source,
// resolve names to canonical entities, aggregate per market, classify
// against destinations, and hand qualifying opportunities to the
// notifier via the alert state machine.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mcqweb/goosealerts/internal/aggregator"
	"github.com/mcqweb/goosealerts/internal/alerting"
	"github.com/mcqweb/goosealerts/internal/classifier"
	"github.com/mcqweb/goosealerts/internal/fetchcache"
	"github.com/mcqweb/goosealerts/internal/logger"
	"github.com/mcqweb/goosealerts/internal/models"
	"github.com/mcqweb/goosealerts/internal/resolver"
)

// Source yields price quotes for one fixture. Implementations wrap a
// bookmaker or exchange client; a failed or timed-out fetch costs the
// cycle that source's quotes and nothing else.
type Source interface {
	ID() string
	Fetch(ctx context.Context, fixture models.Fixture) ([]models.Quote, error)
}

// Notifier delivers formatted alerts. A nil error is the delivery ack
// that gates alert-record persistence.
type Notifier interface {
	Notify(req models.NotificationRequest) error
	NotifySummary(dest models.Destination, reqs []models.NotificationRequest) error
}

// Options configures a pipeline.
type Options struct {
	FreshnessWindow time.Duration
	FetchTimeout    time.Duration
	MaxConcurrent   int
}

// Pipeline wires the cycle stages together. One cycle runs to
// completion before the next begins; concurrency lives inside the
// fetch fan-out only.
type Pipeline struct {
	sources      []Source
	resolver     *resolver.Resolver
	engine       *alerting.Engine
	cache        *fetchcache.Cache[[]models.Quote]
	notifier     Notifier
	destinations []models.Destination
	opts         Options
}

// New creates a pipeline.
func New(
	sources []Source,
	res *resolver.Resolver,
	engine *alerting.Engine,
	cache *fetchcache.Cache[[]models.Quote],
	notifier Notifier,
	destinations []models.Destination,
	opts Options,
) *Pipeline {
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = 1
	}
	return &Pipeline{
		sources:      sources,
		resolver:     res,
		engine:       engine,
		cache:        cache,
		notifier:     notifier,
		destinations: destinations,
		opts:         opts,
	}
}

// fixtureQuotes is one fetch unit's surviving output.
type fixtureQuotes struct {
	fixture models.Fixture
	quotes  []models.Quote
}

// RunCycle executes one full poll cycle over the given fixtures.
// Source failures are logged and dropped; the only fatal condition is
// storage failure, which aborts the cycle before any send.
func (p *Pipeline) RunCycle(ctx context.Context, fixtures []models.Fixture) error {
	now := time.Now()

	fetched, err := p.fetchAll(ctx, fixtures)
	if err != nil {
		return err
	}

	groups, err := p.resolveAndGroup(fetched)
	if err != nil {
		return fmt.Errorf("resolving entities: %w", err)
	}

	for _, g := range groups {
		opp := aggregator.Aggregate(g.entity, g.market, g.fixture, g.quotes, p.opts.FreshnessWindow, now)
		if opp == nil {
			continue
		}
		if err := p.dispatch(opp, now); err != nil {
			return err
		}
	}

	return p.flushSummaries(now)
}

// fetchAll fans out over (fixture, source) units with bounded
// concurrency. Each fetch goes through the fingerprint cache so two
// fixtures sharing an upstream request within the TTL cost one call.
func (p *Pipeline) fetchAll(ctx context.Context, fixtures []models.Fixture) ([]fixtureQuotes, error) {
	var (
		mu  sync.Mutex
		out []fixtureQuotes
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.MaxConcurrent)
	for _, fixture := range fixtures {
		for _, src := range p.sources {
			g.Go(func() error {
				fp := fetchcache.Fingerprint(src.ID(), fixture.ID)
				quotes, err := p.cache.Do(gctx, fp, []string{fixture.ID}, func(ctx context.Context) ([]models.Quote, error) {
					fctx, cancel := context.WithTimeout(ctx, p.opts.FetchTimeout)
					defer cancel()
					return src.Fetch(fctx, fixture)
				})
				if err != nil {
					// Source unavailable this cycle; its quotes are dropped.
					logger.Warn("Fetch from %q for fixture %q failed: %v", src.ID(), fixture.ID, err)
					return nil
				}
				mu.Lock()
				out = append(out, fixtureQuotes{fixture: fixture, quotes: quotes})
				mu.Unlock()
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

type quoteGroup struct {
	entity  *models.CanonicalEntity
	market  models.Market
	fixture models.Fixture
	quotes  []models.Quote
}

// resolveAndGroup maps every raw quote name to a canonical entity and
// buckets quotes by (entity, market, fixture). Invalid quotes are
// logged and skipped; resolver storage errors are fatal.
func (p *Pipeline) resolveAndGroup(fetched []fixtureQuotes) ([]*quoteGroup, error) {
	groups := make(map[string]*quoteGroup)
	var order []string

	for _, fq := range fetched {
		for _, q := range fq.quotes {
			if err := q.Validate(); err != nil {
				logger.Warn("Dropping invalid quote from %q: %v", q.SourceID, err)
				continue
			}
			entity, err := p.resolver.Resolve(q.EntityName, resolver.Context{
				Team:      q.TeamName,
				FixtureID: fq.fixture.ID,
			})
			if err != nil {
				return nil, err
			}
			key := entity.ID + "|" + string(q.Market) + "|" + fq.fixture.ID
			g, ok := groups[key]
			if !ok {
				g = &quoteGroup{entity: entity, market: q.Market, fixture: fq.fixture}
				groups[key] = g
				order = append(order, key)
			}
			g.quotes = append(g.quotes, q)
		}
	}

	out := make([]*quoteGroup, 0, len(order))
	for _, key := range order {
		out = append(out, groups[key])
	}
	return out, nil
}

// dispatch classifies one opportunity against every destination and
// routes NEW/RE-ALERT decisions: immediate destinations get a send plus
// a confirm on ack, summary destinations get queued.
func (p *Pipeline) dispatch(opp *models.Opportunity, now time.Time) error {
	classifications := classifier.Classify(opp, p.destinations)
	for _, dest := range p.destinations {
		cls := classifications[dest.ID]
		decision, err := p.engine.Decide(opp, dest, cls)
		if err != nil {
			return fmt.Errorf("deciding for destination %q: %w", dest.ID, err)
		}
		switch decision.Action {
		case models.ActionNotQualified:
			if len(cls.Reasons) > 0 {
				logger.Debug("Entity %q market %q rejected for %q: %v",
					opp.Entity.ID, opp.Market, dest.ID, cls.Reasons)
			}
			continue
		case models.ActionSuppressed:
			logger.Debug("Entity %q market %q suppressed for %q", opp.Entity.ID, opp.Market, dest.ID)
			continue
		}

		req := models.NotificationRequest{
			ID:          uuid.NewString(),
			Destination: dest,
			Opportunity: opp,
			IsReAlert:   decision.Action == models.ActionReAlert,
			Delta:       decision.Delta,
		}
		if dest.SummaryMode {
			p.engine.QueueSummary(dest, req)
			continue
		}
		if err := p.notifier.Notify(req); err != nil {
			// Record untouched: the opportunity comes back NEW next cycle.
			logger.Error("Notify %q for entity %q failed: %v", dest.ID, opp.Entity.ID, err)
			continue
		}
		if err := p.engine.Confirm(opp, dest, now); err != nil {
			return fmt.Errorf("confirming alert for %q: %w", dest.ID, err)
		}
		logger.Info("Alerted %q: entity %q market %q rating %.1f (%s)",
			dest.ID, opp.Entity.ID, opp.Market, opp.Rating, decision.Action)
	}
	return nil
}

// flushSummaries sends every due summary batch and confirms the ones
// that were acked. A failed batch send is retried by later cycles.
func (p *Pipeline) flushSummaries(now time.Time) error {
	batches, err := p.engine.FlushDue(now)
	if err != nil {
		return fmt.Errorf("flushing summary batches: %w", err)
	}
	for _, batch := range batches {
		if err := p.notifier.NotifySummary(batch.Destination, batch.Requests); err != nil {
			logger.Error("Summary to %q failed: %v", batch.Destination.ID, err)
			continue
		}
		if err := p.engine.ConfirmSummary(batch.Destination, batch.Requests, now); err != nil {
			return fmt.Errorf("confirming summary for %q: %w", batch.Destination.ID, err)
		}
		logger.Info("Summary sent to %q with %d opportunities", batch.Destination.ID, len(batch.Requests))
	}
	return nil
}
