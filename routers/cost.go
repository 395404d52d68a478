package routers

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/modelmux/modelmux/pkg/pricing"
	"github.com/modelmux/modelmux/pkg/provider"
)

// CostMode records which comparison metric an estimate carries. Priced and
// volume metrics are not commensurable; the selector never compares them
// numerically against each other.
type CostMode string

const (
	// CostModePriced means the metric is an estimated dollar cost.
	CostModePriced CostMode = "priced"

	// CostModeVolume means no pricing exists for the deployment and the
	// metric is its current-minute token volume instead. A volume proxy,
	// not a true cost.
	CostModeVolume CostMode = "volume"
)

// CostSource records which layer supplied the resolved price.
type CostSource string

const (
	CostSourceOverride       CostSource = "override"
	CostSourceProviderParams CostSource = "provider_params"
	CostSourceModelInfo      CostSource = "model_info"
	CostSourceRegistry       CostSource = "registry"
	CostSourceNone           CostSource = "none"
)

// CostEstimate is the single comparable metric for one candidate, tagged
// with the mode and source that produced it for diagnostics.
type CostEstimate struct {
	Metric float64
	Mode   CostMode
	Source CostSource
}

// costInfo is a resolved (input, output, source) pricing triple. An
// explicit price of exactly zero is valid and distinct from source none.
type costInfo struct {
	inputCostPerToken  float64
	outputCostPerToken float64
	source             CostSource
}

const (
	costCacheTTL     = 5 * time.Minute
	costCacheCleanup = 10 * time.Minute
)

// CostEstimator resolves per-token pricing for deployments through a
// priority chain (deployment override, model-info metadata, global price
// table) and turns an incoming token estimate into a comparison metric.
// Resolution results are cached per deployment with a short TTL so price
// table refreshes are picked up without re-probing the chain per request.
type CostEstimator struct {
	registry *pricing.Registry
	resolved *gocache.Cache
}

// NewCostEstimator creates an estimator backed by the given price table.
func NewCostEstimator(registry *pricing.Registry) *CostEstimator {
	return &CostEstimator{
		registry: registry,
		resolved: gocache.New(costCacheTTL, costCacheCleanup),
	}
}

// Estimate produces the comparison metric for one candidate. Priced mode
// estimates input plus output cost, assuming output tokens equal input
// tokens (a documented 1:1 approximation, not a measurement). Without any
// pricing the candidate's current-minute token volume is used instead, so
// recently quieter deployments are preferred. Never fails.
func (e *CostEstimator) Estimate(c candidate, inputTokens int) CostEstimate {
	info := e.resolve(c.deployment)
	if info.source == CostSourceNone {
		return CostEstimate{
			Metric: float64(c.usage.TPM),
			Mode:   CostModeVolume,
			Source: CostSourceNone,
		}
	}

	estimatedOutputTokens := inputTokens
	cost := float64(inputTokens)*info.inputCostPerToken +
		float64(estimatedOutputTokens)*info.outputCostPerToken
	return CostEstimate{
		Metric: cost,
		Mode:   CostModePriced,
		Source: info.source,
	}
}

func (e *CostEstimator) resolve(d *provider.Deployment) costInfo {
	if d.ID != "" {
		if cached, ok := e.resolved.Get(d.ID); ok {
			return cached.(costInfo)
		}
	}

	info := e.resolveUncached(d)
	if d.ID != "" {
		e.resolved.Set(d.ID, info, gocache.DefaultExpiration)
	}
	return info
}

// resolveUncached probes the pricing chain. A scope applies when it sets at
// least one of the two costs; the unset half defaults to zero at that scope.
func (e *CostEstimator) resolveUncached(d *provider.Deployment) costInfo {
	for _, scope := range pricingScopes(d) {
		if scope.params.InputCostPerToken == nil && scope.params.OutputCostPerToken == nil {
			continue
		}
		return costInfo{
			inputCostPerToken:  deref(scope.params.InputCostPerToken),
			outputCostPerToken: deref(scope.params.OutputCostPerToken),
			source:             scope.source,
		}
	}

	if price, ok := e.registry.GetPrice(d.ModelName, d.ProviderName); ok {
		if price.InputCostPerToken != nil || price.OutputCostPerToken != nil {
			return costInfo{
				inputCostPerToken:  deref(price.InputCostPerToken),
				outputCostPerToken: deref(price.OutputCostPerToken),
				source:             CostSourceRegistry,
			}
		}
	}

	return costInfo{source: CostSourceNone}
}

type pricingScope struct {
	params *provider.ParamOverrides
	source CostSource
}

func pricingScopes(d *provider.Deployment) []pricingScope {
	scopes := []pricingScope{{params: &d.ParamOverrides, source: CostSourceOverride}}
	if d.ProviderParams != nil {
		scopes = append(scopes, pricingScope{params: d.ProviderParams, source: CostSourceProviderParams})
	}
	if d.ModelInfo != nil {
		scopes = append(scopes, pricingScope{params: &d.ModelInfo.ParamOverrides, source: CostSourceModelInfo})
	}
	return scopes
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
