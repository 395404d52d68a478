package routers

import (
	"github.com/modelmux/modelmux/pkg/provider"
	"github.com/modelmux/modelmux/pkg/router"
)

// resolveLimits produces the six rate limits for a deployment from its
// three config scopes: top-level overrides win over provider params, which
// win over model info. A metric not set at any scope resolves to Unlimited.
// Deterministic, no I/O; absence is valid, not an error.
func resolveLimits(d *provider.Deployment) router.RateLimitSet {
	return router.RateLimitSet{
		RPM: resolveLimit(d, func(p *provider.ParamOverrides) *int64 { return p.RPM }),
		RPH: resolveLimit(d, func(p *provider.ParamOverrides) *int64 { return p.RPH }),
		RPD: resolveLimit(d, func(p *provider.ParamOverrides) *int64 { return p.RPD }),
		TPM: resolveLimit(d, func(p *provider.ParamOverrides) *int64 { return p.TPM }),
		TPH: resolveLimit(d, func(p *provider.ParamOverrides) *int64 { return p.TPH }),
		TPD: resolveLimit(d, func(p *provider.ParamOverrides) *int64 { return p.TPD }),
	}
}

func resolveLimit(d *provider.Deployment, field func(*provider.ParamOverrides) *int64) int64 {
	for _, scope := range limitScopes(d) {
		if v := field(scope); v != nil {
			return *v
		}
	}
	return router.Unlimited
}

// limitScopes returns the deployment's config layers in priority order.
func limitScopes(d *provider.Deployment) []*provider.ParamOverrides {
	scopes := make([]*provider.ParamOverrides, 0, 3)
	scopes = append(scopes, &d.ParamOverrides)
	if d.ProviderParams != nil {
		scopes = append(scopes, d.ProviderParams)
	}
	if d.ModelInfo != nil {
		scopes = append(scopes, &d.ModelInfo.ParamOverrides)
	}
	return scopes
}
