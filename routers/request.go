package routers

import (
	"github.com/modelmux/modelmux/internal/tokenizer"
	"github.com/modelmux/modelmux/pkg/router"
	"github.com/modelmux/modelmux/pkg/types"
)

// NewRequestContext sizes an incoming chat request and wraps it for
// selection. The token estimate feeds the tpm/tph/tpd projections; counting
// failures inside the tokenizer degrade the estimate toward zero rather
// than blocking routing, and request-count projections still apply.
func NewRequestContext(group string, req *types.ChatRequest) *router.RequestContext {
	return &router.RequestContext{
		Model:                group,
		EstimatedInputTokens: tokenizer.EstimatePromptTokens(countingModel(group, req), req),
	}
}

// countingModel picks the model name used to select a token encoding: the
// request's own model when present, the group name otherwise.
func countingModel(group string, req *types.ChatRequest) string {
	if req != nil && req.Model != "" {
		return req.Model
	}
	return group
}
