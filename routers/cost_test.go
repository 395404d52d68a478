package routers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelmux/modelmux/pkg/pricing"
	"github.com/modelmux/modelmux/pkg/provider"
	"github.com/modelmux/modelmux/pkg/router"
)

func newTestEstimator() *CostEstimator {
	return NewCostEstimator(pricing.NewRegistry())
}

func TestCostEstimator_OverrideBeatsRegistry(t *testing.T) {
	e := newTestEstimator()

	// gpt-4o exists in the embedded registry, but the deployment override
	// must win.
	d := &provider.Deployment{
		ID:           "dep-1",
		ModelName:    "gpt-4o",
		ProviderName: "openai",
		ParamOverrides: provider.ParamOverrides{
			InputCostPerToken:  provider.Float64(0.001),
			OutputCostPerToken: provider.Float64(0.002),
		},
	}

	est := e.Estimate(candidate{deployment: d}, 100)

	assert.Equal(t, CostModePriced, est.Mode)
	assert.Equal(t, CostSourceOverride, est.Source)
	// 100 input + 100 assumed output tokens.
	assert.InDelta(t, 100*0.001+100*0.002, est.Metric, 1e-12)
}

func TestCostEstimator_ProviderParamsSourceIsDistinct(t *testing.T) {
	e := newTestEstimator()

	d := &provider.Deployment{
		ID:           "dep-pp",
		ModelName:    "gpt-4o",
		ProviderName: "openai",
		ProviderParams: &provider.ParamOverrides{
			InputCostPerToken:  provider.Float64(0.0001),
			OutputCostPerToken: provider.Float64(0.0002),
		},
	}

	est := e.Estimate(candidate{deployment: d}, 100)

	// Diagnostics must be able to tell a provider-params price apart from
	// a top-level override.
	assert.Equal(t, CostSourceProviderParams, est.Source)
	assert.InDelta(t, 100*0.0001+100*0.0002, est.Metric, 1e-12)
}

func TestCostEstimator_ModelInfoBeatsRegistry(t *testing.T) {
	e := newTestEstimator()

	d := &provider.Deployment{
		ID:           "dep-2",
		ModelName:    "gpt-4o",
		ProviderName: "openai",
		ModelInfo: &provider.ModelInfo{
			ParamOverrides: provider.ParamOverrides{
				InputCostPerToken:  provider.Float64(0.00001),
				OutputCostPerToken: provider.Float64(0.00002),
			},
		},
	}

	est := e.Estimate(candidate{deployment: d}, 1000)

	assert.Equal(t, CostSourceModelInfo, est.Source)
	assert.InDelta(t, 1000*0.00001+1000*0.00002, est.Metric, 1e-12)
}

func TestCostEstimator_RegistryFallback(t *testing.T) {
	e := newTestEstimator()

	d := &provider.Deployment{
		ID:           "dep-3",
		ModelName:    "gpt-4o-mini",
		ProviderName: "openai",
	}

	est := e.Estimate(candidate{deployment: d}, 100)

	require.Equal(t, CostModePriced, est.Mode)
	assert.Equal(t, CostSourceRegistry, est.Source)
	assert.Greater(t, est.Metric, 0.0)
}

func TestCostEstimator_ExplicitZeroIsNotMissing(t *testing.T) {
	e := newTestEstimator()

	// A free-tier deployment with explicit zero pricing must stay in
	// priced mode, not fall back to volume comparison.
	free := &provider.Deployment{
		ID:        "free-tier",
		ModelName: "internal-model",
		ParamOverrides: provider.ParamOverrides{
			InputCostPerToken:  provider.Float64(0),
			OutputCostPerToken: provider.Float64(0),
		},
	}

	est := e.Estimate(candidate{deployment: free, usage: router.UsageSnapshot{TPM: 5000}}, 100)

	assert.Equal(t, CostModePriced, est.Mode)
	assert.Equal(t, CostSourceOverride, est.Source)
	assert.Zero(t, est.Metric)
}

func TestCostEstimator_NoPricingFallsBackToVolume(t *testing.T) {
	e := newTestEstimator()

	d := &provider.Deployment{
		ID:        "unpriced",
		ModelName: "totally-unknown-model",
	}

	est := e.Estimate(candidate{deployment: d, usage: router.UsageSnapshot{TPM: 1234}}, 100)

	assert.Equal(t, CostModeVolume, est.Mode)
	assert.Equal(t, CostSourceNone, est.Source)
	assert.Equal(t, 1234.0, est.Metric)
}

func TestCostEstimator_CachesResolution(t *testing.T) {
	e := newTestEstimator()

	d := &provider.Deployment{
		ID:           "dep-4",
		ModelName:    "gpt-4o",
		ProviderName: "openai",
	}

	first := e.Estimate(candidate{deployment: d}, 100)
	second := e.Estimate(candidate{deployment: d}, 100)

	assert.Equal(t, first, second)
	_, cached := e.resolved.Get("dep-4")
	assert.True(t, cached)
}
