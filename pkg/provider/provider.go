// Package provider defines the deployment record the router operates on.
// A deployment is one concrete backend (credentials + endpoint) serving a
// logical model group; N deployments may back the same group.
package provider

// ParamOverrides holds optional limits and pricing declared on a
// deployment's provider parameters. Nil fields mean "not set at this scope".
type ParamOverrides struct {
	RPM *int64 `json:"rpm,omitempty" yaml:"rpm,omitempty"`
	RPH *int64 `json:"rph,omitempty" yaml:"rph,omitempty"`
	RPD *int64 `json:"rpd,omitempty" yaml:"rpd,omitempty"`
	TPM *int64 `json:"tpm,omitempty" yaml:"tpm,omitempty"`
	TPH *int64 `json:"tph,omitempty" yaml:"tph,omitempty"`
	TPD *int64 `json:"tpd,omitempty" yaml:"tpd,omitempty"`

	InputCostPerToken  *float64 `json:"input_cost_per_token,omitempty" yaml:"input_cost_per_token,omitempty"`
	OutputCostPerToken *float64 `json:"output_cost_per_token,omitempty" yaml:"output_cost_per_token,omitempty"`
}

// ModelInfo carries model-level metadata attached to a deployment. It is the
// lowest-priority scope for limits and pricing.
type ModelInfo struct {
	ParamOverrides `yaml:",inline"`

	Mode           string `json:"mode,omitempty" yaml:"mode,omitempty"`
	MaxInputTokens int    `json:"max_input_tokens,omitempty" yaml:"max_input_tokens,omitempty"`
}

// Deployment represents a specific model deployment configuration.
// Limits and pricing may be declared at three scopes: directly on the
// deployment (highest priority), on ProviderParams, or on ModelInfo. The
// router resolves them once per decision; deployments are immutable for the
// duration of a routing decision and mutated only on pool reload.
type Deployment struct {
	ID           string            `json:"id" yaml:"id"`
	ProviderName string            `json:"provider_name" yaml:"provider"`
	ModelName    string            `json:"model_name" yaml:"model"`
	ModelAlias   string            `json:"model_alias,omitempty" yaml:"model_alias,omitempty"`
	BaseURL      string            `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	APIKey       string            `json:"-" yaml:"api_key,omitempty"` // Never serialize
	Metadata     map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`

	// Top-level limit and pricing overrides (highest priority scope).
	ParamOverrides `yaml:",inline"`

	ProviderParams *ParamOverrides `json:"provider_params,omitempty" yaml:"provider_params,omitempty"`
	ModelInfo      *ModelInfo      `json:"model_info,omitempty" yaml:"model_info,omitempty"`
}

// Group returns the logical model group this deployment serves: the alias
// when set, the underlying model name otherwise.
func (d *Deployment) Group() string {
	if d.ModelAlias != "" {
		return d.ModelAlias
	}
	return d.ModelName
}

// Int64 returns a pointer to v, for building layered overrides in code.
func Int64(v int64) *int64 { return &v }

// Float64 returns a pointer to v, for building layered overrides in code.
func Float64(v float64) *float64 { return &v }
