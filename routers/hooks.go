package routers

import (
	"context"
	"log/slog"
	"time"

	"github.com/modelmux/modelmux/internal/ledger"
	"github.com/modelmux/modelmux/pkg/provider"
	"github.com/modelmux/modelmux/pkg/router"
)

// DispatchHooks maintains the usage counters around a provider call.
//
// PreCall runs exactly once per dispatched request, after selection and
// before the provider call; PostCallSuccess runs exactly once per
// successful response and never for failed calls, which consumed no
// billable tokens in this accounting model. Ledger failures are logged and
// swallowed in both hooks: the request already happened, and a lost
// increment degrades rate-limit accuracy without dropping the response.
//
// The Async variants run the same code on a goroutine with a bounded
// timeout and are the expected hot path under load. Correctness under many
// in-flight requests rests entirely on the store's atomic increment.
type DispatchHooks struct {
	store   ledger.CounterStore
	logger  *slog.Logger
	timeout time.Duration
}

// NewDispatchHooks creates hooks writing to the given counter store.
func NewDispatchHooks(store ledger.CounterStore, logger *slog.Logger, timeout time.Duration) *DispatchHooks {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = router.DefaultConfig().LedgerTimeout
	}
	return &DispatchHooks{store: store, logger: logger, timeout: timeout}
}

// PreCall increments the three request counters for the chosen deployment,
// each with its window's TTL, and returns the deployment unchanged.
// Selection is never blocked on a counter write.
func (h *DispatchHooks) PreCall(ctx context.Context, d *provider.Deployment) *provider.Deployment {
	h.increment(ctx, d, router.MetricRequests, 1, time.Now())
	return d
}

// PreCallAsync is PreCall off the caller's goroutine.
func (h *DispatchHooks) PreCallAsync(d *provider.Deployment) *provider.Deployment {
	h.incrementAsync(d, router.MetricRequests, 1, time.Now())
	return d
}

// PostCallSuccess increments the three token counters by the measured
// total-token count from the provider response.
func (h *DispatchHooks) PostCallSuccess(ctx context.Context, d *provider.Deployment, totalTokens int) {
	if totalTokens <= 0 {
		return
	}
	h.increment(ctx, d, router.MetricTokens, int64(totalTokens), time.Now())
}

// PostCallSuccessAsync is PostCallSuccess off the caller's goroutine.
func (h *DispatchHooks) PostCallSuccessAsync(d *provider.Deployment, totalTokens int) {
	if totalTokens <= 0 {
		return
	}
	h.incrementAsync(d, router.MetricTokens, int64(totalTokens), time.Now())
}

func (h *DispatchHooks) increment(ctx context.Context, d *provider.Deployment, metric router.Metric, delta int64, now time.Time) {
	if d == nil || d.ID == "" {
		return
	}
	windows := usageWindows(now)
	for _, window := range router.Windows {
		key := counterKey(d, metric, window, windows.Bucket(window))
		opCtx, cancel := context.WithTimeout(ctx, h.timeout)
		_, err := h.store.IncrBy(opCtx, key, delta, window.TTL())
		cancel()
		if err != nil {
			h.logger.Warn("usage counter increment dropped",
				"deployment_id", d.ID,
				"metric", string(metric),
				"window", string(window),
				"error", err,
			)
		}
	}
}

func (h *DispatchHooks) incrementAsync(d *provider.Deployment, metric router.Metric, delta int64, now time.Time) {
	if d == nil || d.ID == "" {
		return
	}
	windows := usageWindows(now)
	for _, window := range router.Windows {
		key := counterKey(d, metric, window, windows.Bucket(window))
		ledger.GoIncrBy(h.store, h.logger, h.timeout, key, delta, window.TTL())
	}
}
