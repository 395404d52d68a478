// Package main provides a routing simulator: it loads a deployment pool
// from a YAML config, drives synthetic traffic through the usage router,
// and reports how selections were distributed. The config file is watched
// while the simulation runs, so pool edits take effect mid-run.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/modelmux/modelmux/internal/config"
	"github.com/modelmux/modelmux/internal/ledger"
	llmerrors "github.com/modelmux/modelmux/pkg/errors"
	"github.com/modelmux/modelmux/pkg/pricing"
	"github.com/modelmux/modelmux/pkg/provider"
	"github.com/modelmux/modelmux/pkg/router"
	"github.com/modelmux/modelmux/pkg/types"
	"github.com/modelmux/modelmux/routers"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "routersim.yaml", "Path to the pool configuration file")
	model := flag.String("model", "", "Model group to route (defaults to the first configured group)")
	requests := flag.Int("requests", 1000, "Total number of requests")
	concurrency := flag.Int("concurrency", 50, "Number of concurrent workers")
	rps := flag.Float64("rps", 200, "Request pacing (requests per second)")
	promptWords := flag.Int("prompt-words", 80, "Approximate synthetic prompt size in words")
	flag.Parse()

	boot, err := config.LoadFromFile(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}
	logger := newLogger(boot.Logging)
	slog.SetDefault(logger)

	manager, err := config.NewManager(*configPath, logger)
	if err != nil {
		logger.Error("config manager setup failed", "error", err)
		return 1
	}
	defer manager.Close()
	cfg := manager.Get()

	store, err := newStore(cfg.Ledger)
	if err != nil {
		logger.Error("ledger setup failed", "error", err)
		return 1
	}
	defer store.Close()

	registry := pricing.NewRegistry()
	if cfg.PricingFile != "" {
		if err := registry.Load(cfg.PricingFile); err != nil {
			logger.Error("pricing file load failed", "path", cfg.PricingFile, "error", err)
			return 1
		}
	}

	routerCfg := router.DefaultConfig()
	if cfg.Router.CooldownPeriod > 0 {
		routerCfg.CooldownPeriod = cfg.Router.CooldownPeriod
	}
	if cfg.Router.LedgerTimeout > 0 {
		routerCfg.LedgerTimeout = cfg.Router.LedgerTimeout
	}

	r := routers.NewUsageRouter(store,
		routers.WithConfig(routerCfg),
		routers.WithLogger(logger),
		routers.WithPricingRegistry(registry),
	)
	pool := cfg.Deployments()
	for _, d := range pool {
		r.AddDeployment(d)
	}

	// Config edits during the run swap the deployment pool in place.
	manager.Subscribe(func(next *config.Config) {
		pool = rebuildPool(r, pool, next.Deployments())
		logger.Info("deployment pool rebuilt", "deployments", len(pool))
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := manager.Watch(ctx); err != nil {
		logger.Error("config watch failed", "error", err)
		return 1
	}

	group := *model
	if group == "" {
		if len(cfg.ModelGroups) == 0 {
			logger.Error("no model groups configured")
			return 1
		}
		group = cfg.ModelGroups[0].Name
	}

	reqCtx := routers.NewRequestContext(group, syntheticRequest(group, *promptWords))

	logger.Info("starting simulation",
		"model_group", group,
		"requests", *requests,
		"concurrency", *concurrency,
		"rps", *rps,
		"estimated_input_tokens", reqCtx.EstimatedInputTokens,
	)

	counts := simulate(r, reqCtx, *requests, *concurrency, *rps)
	printDistribution(counts, *requests)
	return 0
}

// rebuildPool replaces the router's deployments with the next config's,
// returning the new pool. Removal by ID also clears stale cooldown state.
func rebuildPool(r *routers.UsageRouter, current, next []*provider.Deployment) []*provider.Deployment {
	for _, d := range current {
		r.RemoveDeployment(d.ID)
	}
	for _, d := range next {
		r.AddDeployment(d)
	}
	return next
}

// syntheticRequest builds the fixed chat request every simulated call
// carries; its size is measured by the tokenizer, not assumed.
func syntheticRequest(group string, words int) *types.ChatRequest {
	var b strings.Builder
	for i := 0; i < words; i++ {
		b.WriteString("synthetic routing payload ")
	}
	return &types.ChatRequest{
		Model: group,
		Messages: []types.ChatMessage{
			types.TextMessage("system", "You are a load-test target."),
			types.TextMessage("user", b.String()),
		},
	}
}

func simulate(r *routers.UsageRouter, reqCtx *router.RequestContext, requests, concurrency int, rps float64) map[string]int {
	limiter := rate.NewLimiter(rate.Limit(rps), concurrency)
	jobs := make(chan struct{})

	var mu sync.Mutex
	counts := make(map[string]int)

	var wg sync.WaitGroup
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range jobs {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				_ = limiter.Wait(ctx)

				d, err := r.PickWithContext(ctx, reqCtx)
				cancel()

				mu.Lock()
				switch {
				case err == nil:
					counts[d.ID]++
				default:
					counts[errorBucket(err)]++
				}
				mu.Unlock()

				if err != nil {
					continue
				}

				r.ReportRequestStart(d)
				// Simulate a provider response sized 1:1 to the input.
				r.ReportSuccess(d, &router.ResponseMetrics{
					TotalTokens: reqCtx.EstimatedInputTokens * 2,
					Latency:     20 * time.Millisecond,
				})
			}
		}()
	}

	for i := 0; i < requests; i++ {
		jobs <- struct{}{}
	}
	close(jobs)
	wg.Wait()
	return counts
}

func errorBucket(err error) string {
	var noEligible *llmerrors.NoEligibleDeploymentError
	if errors.As(err, &noEligible) {
		return "(rate limited)"
	}
	return "(error)"
}

func printDistribution(counts map[string]int, total int) {
	ids := make([]string, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	fmt.Println("selection distribution:")
	for _, id := range ids {
		n := counts[id]
		fmt.Printf("  %-40s %6d  (%.1f%%)\n", id, n, 100*float64(n)/float64(total))
	}
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func newStore(cfg config.LedgerConfig) (ledger.CounterStore, error) {
	if cfg.Backend != "redis" {
		return ledger.NewMemoryStore(), nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
	}

	opts := []ledger.RedisOption{}
	if cfg.KeyPrefix != "" {
		opts = append(opts, ledger.WithKeyPrefix(cfg.KeyPrefix))
	}
	return ledger.NewRedisStore(client, opts...), nil
}
