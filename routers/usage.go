package routers

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/modelmux/modelmux/internal/ledger"
	"github.com/modelmux/modelmux/internal/metrics"
	llmerrors "github.com/modelmux/modelmux/pkg/errors"
	"github.com/modelmux/modelmux/pkg/pricing"
	"github.com/modelmux/modelmux/pkg/provider"
	"github.com/modelmux/modelmux/pkg/router"
)

// UsageRouter routes requests for a model group to the cheapest deployment
// whose projected usage stays within all six of its rate limits.
//
// The counter store is injected and owned by the caller; the router keeps
// no global state, so two routers with separate stores are fully
// independent and a shared Redis store links a fleet. Deployment
// configuration is read-only during a decision; mutation happens only
// through Add/RemoveDeployment (e.g. a config reload), and a stale read
// between reloads is acceptable.
type UsageRouter struct {
	mu            sync.RWMutex
	rngMu         sync.Mutex
	deployments   map[string][]*provider.Deployment
	cooldownUntil map[string]time.Time

	config    router.Config
	store     ledger.CounterStore
	estimator *CostEstimator
	hooks     *DispatchHooks
	logger    *slog.Logger
	rng       *rand.Rand
}

// Option configures a UsageRouter.
type Option func(*UsageRouter)

// WithConfig overrides the default router configuration.
func WithConfig(config router.Config) Option {
	return func(r *UsageRouter) {
		config.Strategy = router.StrategyUsageBased
		r.config = config
	}
}

// WithLogger sets the router's logger (default: slog.Default()).
func WithLogger(logger *slog.Logger) Option {
	return func(r *UsageRouter) {
		r.logger = logger
	}
}

// WithPricingRegistry sets the global price table consulted when a
// deployment carries no pricing of its own.
func WithPricingRegistry(registry *pricing.Registry) Option {
	return func(r *UsageRouter) {
		r.estimator = NewCostEstimator(registry)
	}
}

// NewUsageRouter creates a usage-aware router writing counters to store.
func NewUsageRouter(store ledger.CounterStore, opts ...Option) *UsageRouter {
	config := router.DefaultConfig()
	r := &UsageRouter{
		deployments:   make(map[string][]*provider.Deployment),
		cooldownUntil: make(map[string]time.Time),
		config:        config,
		store:         store,
		logger:        slog.Default(),
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.estimator == nil {
		r.estimator = NewCostEstimator(pricing.NewRegistry())
	}
	r.hooks = NewDispatchHooks(store, r.logger, r.config.LedgerTimeout)
	return r
}

// GetStrategy returns the current routing strategy.
func (r *UsageRouter) GetStrategy() router.Strategy {
	return router.StrategyUsageBased
}

// Hooks exposes the dispatch hooks for callers that drive the provider
// call themselves instead of going through Report*.
func (r *UsageRouter) Hooks() *DispatchHooks {
	return r.hooks
}

// AddDeployment registers a deployment under its model group.
func (r *UsageRouter) AddDeployment(d *provider.Deployment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	group := d.Group()
	r.deployments[group] = append(r.deployments[group], d)
}

// RemoveDeployment removes a deployment from the router.
func (r *UsageRouter) RemoveDeployment(deploymentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for group, deps := range r.deployments {
		for i, d := range deps {
			if d.ID == deploymentID {
				r.deployments[group] = append(deps[:i], deps[i+1:]...)
				break
			}
		}
	}
	delete(r.cooldownUntil, deploymentID)
}

// GetDeployments returns all deployments for a model group.
func (r *UsageRouter) GetDeployments(model string) []*provider.Deployment {
	r.mu.RLock()
	defer r.mu.RUnlock()
	deps := r.deployments[model]
	result := make([]*provider.Deployment, len(deps))
	copy(result, deps)
	return result
}

// Pick selects a deployment for the model group with no token size hint.
func (r *UsageRouter) Pick(ctx context.Context, model string) (*provider.Deployment, error) {
	return r.PickWithContext(ctx, &router.RequestContext{Model: model})
}

// PickWithContext selects the cheapest deployment that can still accept
// this request. Returns ErrNoAvailableDeployment for an empty or fully
// cooled-down pool, or *llmerrors.NoEligibleDeploymentError when every
// candidate would exceed a rate limit, carrying each candidate's resolved
// limits and usage snapshot for diagnostics.
func (r *UsageRouter) PickWithContext(ctx context.Context, reqCtx *router.RequestContext) (*provider.Deployment, error) {
	healthy := r.healthySnapshot(reqCtx.Model)
	if len(healthy) == 0 {
		return nil, ErrNoAvailableDeployment
	}

	readCtx, cancel := context.WithTimeout(ctx, r.config.LedgerTimeout)
	eligible, excluded := filterEligible(readCtx, r.store, r.logger, healthy, reqCtx.EstimatedInputTokens, time.Now())
	cancel()

	if len(eligible) == 0 {
		metrics.RouterNoEligibleDeployment.WithLabelValues(reqCtx.Model).Inc()
		err := &llmerrors.NoEligibleDeploymentError{ModelGroup: reqCtx.Model}
		for _, ex := range excluded {
			err.Snapshots = append(err.Snapshots, ex.snapshot(ex.exceeded))
		}
		return nil, err
	}

	scored := make([]scoredCandidate, len(eligible))
	for i, c := range eligible {
		scored[i] = scoredCandidate{
			candidate: c,
			estimate:  r.estimator.Estimate(c, reqCtx.EstimatedInputTokens),
		}
	}

	best := pickBest(scored, r.randFloat64)
	metrics.RouterSelections.WithLabelValues(best.deployment.ID, reqCtx.Model).Inc()
	r.logger.Debug("deployment selected",
		"model_group", reqCtx.Model,
		"deployment_id", best.deployment.ID,
		"cost_mode", string(best.estimate.Mode),
		"cost_source", string(best.estimate.Source),
		"metric", best.estimate.Metric,
		"candidates", len(eligible),
		"excluded", len(excluded),
	)
	return best.deployment, nil
}

// PickResult carries the outcome of an asynchronous selection.
type PickResult struct {
	Deployment *provider.Deployment
	Err        error
}

// PickAsync runs PickWithContext on its own goroutine so the caller can
// interleave other work while the usage read is in flight.
func (r *UsageRouter) PickAsync(ctx context.Context, reqCtx *router.RequestContext) <-chan PickResult {
	result := make(chan PickResult, 1)
	go func() {
		d, err := r.PickWithContext(ctx, reqCtx)
		result <- PickResult{Deployment: d, Err: err}
	}()
	return result
}

// ReportRequestStart records the dispatched request; the three request
// counters are incremented off the caller's goroutine.
func (r *UsageRouter) ReportRequestStart(d *provider.Deployment) {
	r.hooks.PreCallAsync(d)
}

// ReportSuccess records a successful response with its measured token
// usage and clears any cooldown bookkeeping implicitly via expiry.
func (r *UsageRouter) ReportSuccess(d *provider.Deployment, m *router.ResponseMetrics) {
	if m == nil {
		return
	}
	r.hooks.PostCallSuccessAsync(d, m.TotalTokens)
}

// ReportFailure records a failed request. Failures with cooldown-worthy
// status codes (429, auth, timeouts, 5xx) take the deployment out of the
// pool for the configured cooldown period. Failed calls never touch the
// token counters.
func (r *UsageRouter) ReportFailure(d *provider.Deployment, err error) {
	var llmErr *llmerrors.LLMError
	if !errors.As(err, &llmErr) || !llmerrors.IsCooldownRequired(llmErr.StatusCode) {
		return
	}

	until := time.Now().Add(r.config.CooldownPeriod)
	r.mu.Lock()
	r.cooldownUntil[d.ID] = until
	r.mu.Unlock()

	metrics.RouterCooldowns.WithLabelValues(d.ID).Inc()
	r.logger.Warn("deployment entering cooldown",
		"deployment_id", d.ID,
		"model", d.ModelName,
		"status_code", llmErr.StatusCode,
		"until", until,
	)
}

func (r *UsageRouter) healthySnapshot(model string) []*provider.Deployment {
	now := time.Now()

	r.mu.RLock()
	defer r.mu.RUnlock()

	deps := r.deployments[model]
	healthy := make([]*provider.Deployment, 0, len(deps))
	for _, d := range deps {
		if until, ok := r.cooldownUntil[d.ID]; ok && now.Before(until) {
			continue
		}
		healthy = append(healthy, d)
	}
	return healthy
}

func (r *UsageRouter) randFloat64() float64 {
	r.rngMu.Lock()
	defer r.rngMu.Unlock()
	return r.rng.Float64()
}
