package routers

import (
	"context"
	"log/slog"
	"time"

	"github.com/modelmux/modelmux/internal/ledger"
	"github.com/modelmux/modelmux/internal/metrics"
	llmerrors "github.com/modelmux/modelmux/pkg/errors"
	"github.com/modelmux/modelmux/pkg/provider"
	"github.com/modelmux/modelmux/pkg/router"
)

// candidate pairs a deployment with its resolved limits and the usage
// snapshot read for this routing decision.
type candidate struct {
	deployment *provider.Deployment
	limits     router.RateLimitSet
	usage      router.UsageSnapshot

	// meterable is false when the deployment has no stable ID and so
	// cannot be tracked in the ledger. Such deployments pass rate-limit
	// filtering unconditionally.
	meterable bool
}

// exclusion records a candidate rejected by the filter and which of its six
// limits the projected usage exceeded.
type exclusion struct {
	candidate
	exceeded []string
}

// limitName renders a metric/window pair as one of the six conventional
// limit names: rpm, rph, rpd, tpm, tph, tpd.
func limitName(metric router.Metric, window router.Window) string {
	prefix := "r"
	if metric == router.MetricTokens {
		prefix = "t"
	}
	switch window {
	case router.WindowMinute:
		return prefix + "pm"
	case router.WindowHour:
		return prefix + "ph"
	default:
		return prefix + "pd"
	}
}

// filterEligible returns the subset of deployments that can legally accept
// one more request of the given token size, preserving input order, plus
// the rejected remainder with the limits that blocked each one.
//
// All deployments' counters are read in a single batched fetch; issuing one
// read per deployment would defeat the point of batching under high
// deployment counts. A failed read counts as zero usage for every key: the
// ledger being down degrades rate-limit accuracy, never availability.
func filterEligible(ctx context.Context, store ledger.CounterStore, logger *slog.Logger,
	deployments []*provider.Deployment, inputTokens int, now time.Time) (eligible []candidate, excluded []exclusion) {

	windows := usageWindows(now)

	keys := make([]string, 0, len(deployments)*6)
	offsets := make([]int, len(deployments))
	for i, d := range deployments {
		offsets[i] = -1
		if d.ID == "" {
			logger.Warn("deployment has no id and cannot be rate-limit tracked; treating as always eligible",
				"model", d.ModelName,
				"provider", d.ProviderName,
			)
			continue
		}
		offsets[i] = len(keys)
		keys = append(keys, deploymentKeys(d, windows)...)
	}

	var values []int64
	if len(keys) > 0 {
		var err error
		values, err = store.BatchGet(ctx, keys)
		if err != nil || len(values) != len(keys) {
			logger.Warn("usage counter read failed; assuming zero usage",
				"keys", len(keys),
				"error", err,
			)
			values = make([]int64, len(keys))
		}
	}

	eligible = make([]candidate, 0, len(deployments))
	for i, d := range deployments {
		c := candidate{
			deployment: d,
			limits:     resolveLimits(d),
			meterable:  offsets[i] >= 0,
		}
		if c.meterable {
			v := values[offsets[i] : offsets[i]+6]
			c.usage = router.UsageSnapshot{
				RPM: v[0], RPH: v[1], RPD: v[2],
				TPM: v[3], TPH: v[4], TPD: v[5],
			}
		}

		exceeded := exceededLimits(c, inputTokens)
		if len(exceeded) == 0 {
			eligible = append(eligible, c)
			continue
		}
		for _, name := range exceeded {
			metrics.RouterExclusions.WithLabelValues(d.ID, name).Inc()
		}
		excluded = append(excluded, exclusion{candidate: c, exceeded: exceeded})
	}
	return eligible, excluded
}

// exceededLimits evaluates the six projected-usage comparisons for one
// candidate. All six must be satisfiable simultaneously: any single
// violation excludes the deployment. The comparison is strictly
// greater-than, so a projection landing exactly on the limit still passes.
func exceededLimits(c candidate, inputTokens int) []string {
	if !c.meterable {
		return nil
	}

	var exceeded []string
	for _, metric := range []router.Metric{router.MetricRequests, router.MetricTokens} {
		delta := int64(1)
		if metric == router.MetricTokens {
			delta = int64(inputTokens)
		}
		for _, window := range router.Windows {
			limit := c.limits.Limit(metric, window)
			if limit == router.Unlimited {
				continue
			}
			if c.usage.Used(metric, window)+delta > limit {
				exceeded = append(exceeded, limitName(metric, window))
			}
		}
	}
	return exceeded
}

// snapshot renders a candidate for the structured no-eligible-deployment
// error. Unlimited limits render as -1.
func (c candidate) snapshot(exceeded []string) llmerrors.DeploymentSnapshot {
	limits := make(map[string]int64, 6)
	usage := make(map[string]int64, 6)
	for _, metric := range []router.Metric{router.MetricRequests, router.MetricTokens} {
		for _, window := range router.Windows {
			name := limitName(metric, window)
			limit := c.limits.Limit(metric, window)
			if limit == router.Unlimited {
				limit = -1
			}
			limits[name] = limit
			usage[name] = c.usage.Used(metric, window)
		}
	}
	return llmerrors.DeploymentSnapshot{
		DeploymentID: c.deployment.ID,
		Model:        c.deployment.ModelName,
		Limits:       limits,
		Usage:        usage,
		Exceeded:     exceeded,
	}
}
