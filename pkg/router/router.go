// Package router provides the public routing contract: the Router interface,
// the resolved rate-limit and usage types, and the request context used for
// deployment selection.
package router

import (
	"context"
	"math"
	"time"

	"github.com/modelmux/modelmux/pkg/provider"
)

// Strategy defines the routing strategy type.
type Strategy string

const (
	// StrategyUsageBased selects the cheapest deployment that can still
	// legally accept one more request under its six rate limits.
	StrategyUsageBased Strategy = "usage-based"
)

// Unlimited is the resolved value of a limit that was not configured at any
// scope. Comparisons against it never exclude a deployment.
const Unlimited = int64(math.MaxInt64)

// Window identifies one of the three rolling usage granularities.
type Window string

const (
	WindowMinute Window = "minute"
	WindowHour   Window = "hour"
	WindowDay    Window = "day"
)

// Windows lists the granularities in resolution order, shortest first.
var Windows = []Window{WindowMinute, WindowHour, WindowDay}

// TTL returns how long a counter bucket for this window persists in the
// usage store. Expiry, not wall-clock boundary alignment, is what retires
// old buckets.
func (w Window) TTL() time.Duration {
	switch w {
	case WindowMinute:
		return time.Minute
	case WindowHour:
		return time.Hour
	default:
		return 24 * time.Hour
	}
}

// Metric identifies what a usage counter measures.
type Metric string

const (
	MetricRequests Metric = "rpm"
	MetricTokens   Metric = "tpm"
)

// RateLimitSet holds the six resolved limits for a deployment. Every field
// is either a finite non-negative value or Unlimited; resolution never
// yields an unset field.
type RateLimitSet struct {
	RPM int64
	RPH int64
	RPD int64
	TPM int64
	TPH int64
	TPD int64
}

// Limit returns the resolved limit for a metric/window pair.
func (s RateLimitSet) Limit(metric Metric, window Window) int64 {
	switch {
	case metric == MetricRequests && window == WindowMinute:
		return s.RPM
	case metric == MetricRequests && window == WindowHour:
		return s.RPH
	case metric == MetricRequests && window == WindowDay:
		return s.RPD
	case metric == MetricTokens && window == WindowMinute:
		return s.TPM
	case metric == MetricTokens && window == WindowHour:
		return s.TPH
	default:
		return s.TPD
	}
}

// UsageSnapshot holds a deployment's current counters across the six
// metric/window pairs, as read in a single batched fetch.
type UsageSnapshot struct {
	RPM int64
	RPH int64
	RPD int64
	TPM int64
	TPH int64
	TPD int64
}

// Used returns the current usage for a metric/window pair.
func (s UsageSnapshot) Used(metric Metric, window Window) int64 {
	switch {
	case metric == MetricRequests && window == WindowMinute:
		return s.RPM
	case metric == MetricRequests && window == WindowHour:
		return s.RPH
	case metric == MetricRequests && window == WindowDay:
		return s.RPD
	case metric == MetricTokens && window == WindowMinute:
		return s.TPM
	case metric == MetricTokens && window == WindowHour:
		return s.TPH
	default:
		return s.TPD
	}
}

// Router selects a deployment for a given request and is notified of the
// request lifecycle so it can maintain usage counters and health state.
type Router interface {
	// Pick selects the best available deployment for the given model group.
	// Returns ErrNoAvailableDeployment if the pool is empty or fully cooled
	// down, or *errors.NoEligibleDeploymentError if every candidate would
	// exceed a rate limit.
	Pick(ctx context.Context, model string) (*provider.Deployment, error)

	// PickWithContext selects the best deployment using request context,
	// enabling token-aware eligibility filtering.
	PickWithContext(ctx context.Context, reqCtx *RequestContext) (*provider.Deployment, error)

	// ReportRequestStart records a dispatched request before the provider
	// call. Must be invoked exactly once per dispatch, after selection.
	ReportRequestStart(deployment *provider.Deployment)

	// ReportSuccess records a successful response with its measured token
	// usage. Must not be invoked for failed calls.
	ReportSuccess(deployment *provider.Deployment, metrics *ResponseMetrics)

	// ReportFailure records a failed request and potentially triggers cooldown.
	ReportFailure(deployment *provider.Deployment, err error)

	// AddDeployment registers a new deployment with the router.
	AddDeployment(deployment *provider.Deployment)

	// RemoveDeployment removes a deployment from the router.
	RemoveDeployment(deploymentID string)

	// GetDeployments returns all deployments for a model group.
	GetDeployments(model string) []*provider.Deployment

	// GetStrategy returns the current routing strategy.
	GetStrategy() Strategy
}

// RequestContext contains request-specific information for routing decisions.
type RequestContext struct {
	// Model is the requested model group name.
	Model string

	// EstimatedInputTokens sizes the incoming request for token-metric
	// projection. Zero means unknown; request-count metrics still project +1.
	EstimatedInputTokens int

	// Metadata contains additional request metadata.
	Metadata map[string]string
}

// ResponseMetrics contains metrics from a completed request.
type ResponseMetrics struct {
	// Latency is the total request duration.
	Latency time.Duration

	// TotalTokens is the total tokens used (input + output) as measured
	// from the provider response.
	TotalTokens int

	// InputTokens is the number of input tokens.
	InputTokens int

	// OutputTokens is the number of output tokens.
	OutputTokens int
}

// Config contains router configuration options.
type Config struct {
	// Strategy determines how deployments are selected.
	Strategy Strategy

	// CooldownPeriod is how long to wait before retrying a failed deployment.
	CooldownPeriod time.Duration

	// LedgerTimeout bounds every usage-store round trip. On expiry the
	// router fails open: reads count as zero usage, writes are dropped.
	LedgerTimeout time.Duration
}

// DefaultConfig returns sensible default router configuration.
func DefaultConfig() Config {
	return Config{
		Strategy:       StrategyUsageBased,
		CooldownPeriod: 60 * time.Second,
		LedgerTimeout:  2 * time.Second,
	}
}
