package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mcqweb/goosealerts/internal/alerting"
	"github.com/mcqweb/goosealerts/internal/config"
	"github.com/mcqweb/goosealerts/internal/feed"
	"github.com/mcqweb/goosealerts/internal/fetchcache"
	"github.com/mcqweb/goosealerts/internal/logger"
	"github.com/mcqweb/goosealerts/internal/models"
	"github.com/mcqweb/goosealerts/internal/pipeline"
	"github.com/mcqweb/goosealerts/internal/resolver"
	"github.com/mcqweb/goosealerts/internal/storage"
	"github.com/mcqweb/goosealerts/internal/telegram"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

// logNotifier stands in when Telegram is disabled: alerts are logged
// and treated as delivered so local runs still exercise the full cycle.
type logNotifier struct{}

func (logNotifier) Notify(req models.NotificationRequest) error {
	logger.Info("ALERT [%s] %s %s rating %.1f (back %.2f @ %s / lay %.2f @ %s)",
		req.Destination.ID, req.Opportunity.Entity.DisplayName, req.Opportunity.Market,
		req.Opportunity.Rating,
		req.Opportunity.BestBack.Price, req.Opportunity.BestBack.SourceID,
		req.Opportunity.BestLay.Price, req.Opportunity.BestLay.SourceID)
	return nil
}

func (logNotifier) NotifySummary(dest models.Destination, reqs []models.NotificationRequest) error {
	logger.Info("SUMMARY [%s] %d opportunities", dest.ID, len(reqs))
	return nil
}

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	store, err := storage.New(cfg.Storage.DBPath)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	feeds := make([]*feed.Client, 0, len(cfg.Sources))
	sources := make([]pipeline.Source, 0, len(cfg.Sources))
	for _, s := range cfg.Sources {
		c := feed.NewClient(s.ID, s.BaseURL, cfg.Poller.FetchTimeout)
		feeds = append(feeds, c)
		sources = append(sources, c)
	}

	var telegramClient *telegram.Client
	var notifier pipeline.Notifier = logNotifier{}
	if cfg.Telegram.Enabled {
		telegramClient, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.OpsChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		notifier = telegramClient
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled; alerts will be logged only")
	}

	destinations := cfg.DestinationModels()
	engine := alerting.NewEngine(store)
	p := pipeline.New(
		sources,
		resolver.New(store),
		engine,
		fetchcache.New[[]models.Quote](cfg.Cache.TTL),
		notifier,
		destinations,
		pipeline.Options{
			FreshnessWindow: cfg.Poller.FreshnessWindow,
			FetchTimeout:    cfg.Poller.FetchTimeout,
			MaxConcurrent:   cfg.Poller.MaxConcurrentFetch,
		},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")
		cancel()
	}()

	logger.Info("Starting alert service (interval: %v, sources: %d, destinations: %d)",
		cfg.Poller.PollInterval, len(sources), len(destinations))

	ticker := time.NewTicker(cfg.Poller.PollInterval)
	defer ticker.Stop()

	consecutiveFailures := 0

	handleCycleResult := func(err error) {
		if err != nil {
			consecutiveFailures++
			logger.Error("Poll cycle failed: %v", err)
			if consecutiveFailures == 1 && telegramClient != nil {
				if sendErr := telegramClient.SendError(err); sendErr != nil {
					logger.Warn("Failed to send error notification to Telegram: %v", sendErr)
				}
			}
		} else {
			if consecutiveFailures > 0 && telegramClient != nil {
				if sendErr := telegramClient.SendRecovery(consecutiveFailures); sendErr != nil {
					logger.Warn("Failed to send recovery notification to Telegram: %v", sendErr)
				}
			}
			consecutiveFailures = 0
		}
	}

	logger.Debug("Running initial poll cycle")
	handleCycleResult(runPollCycle(ctx, p, feeds, engine, cfg))

	for {
		select {
		case <-ctx.Done():
			logger.Info("Service stopped")
			return

		case <-ticker.C:
			logger.Debug("Starting scheduled poll cycle")
			handleCycleResult(runPollCycle(ctx, p, feeds, engine, cfg))
		}
	}
}

func runPollCycle(
	ctx context.Context,
	p *pipeline.Pipeline,
	feeds []*feed.Client,
	engine *alerting.Engine,
	cfg *config.Config,
) error {
	startTime := time.Now()
	logger.Info("Starting poll cycle")

	fixtures := collectFixtures(ctx, feeds, cfg.Poller.FetchTimeout)
	logger.Info("Discovered %d fixtures from %d feeds", len(fixtures), len(feeds))
	if len(fixtures) == 0 {
		logger.Info("No fixtures this cycle")
		return nil
	}

	if err := p.RunCycle(ctx, fixtures); err != nil {
		return err
	}

	purged, err := engine.PurgeBefore(time.Now().Add(-cfg.Alerting.PurgeAfter))
	if err != nil {
		logger.Warn("Failed to purge stale alert records: %v", err)
	} else if purged > 0 {
		logger.Debug("Purged %d stale alert records", purged)
	}

	logger.Info("Poll cycle completed in %v", time.Since(startTime))
	return nil
}

// collectFixtures unions fixture lists across feeds, first feed wins on
// duplicate ids. A feed that cannot list fixtures costs this cycle its
// fixtures and nothing else.
func collectFixtures(ctx context.Context, feeds []*feed.Client, timeout time.Duration) []models.Fixture {
	seen := make(map[string]bool)
	var fixtures []models.Fixture
	for _, f := range feeds {
		fctx, cancel := context.WithTimeout(ctx, timeout)
		list, err := f.Fixtures(fctx)
		cancel()
		if err != nil {
			logger.Warn("Fixture discovery from %q failed: %v", f.ID(), err)
			continue
		}
		for _, fixture := range list {
			if seen[fixture.ID] {
				continue
			}
			seen[fixture.ID] = true
			fixtures = append(fixtures, fixture)
		}
	}
	return fixtures
}
