// Package pricing provides the global model price table consumed by
// cost-based routing. Prices are loaded from an embedded defaults file and
// may be merged with operator-supplied overrides out of band.
package pricing

import (
	_ "embed"
	"fmt"
	"os"
	"sync"

	"github.com/goccy/go-json"
)

//go:embed data/defaults.json
var defaultPrices []byte

// ModelPrice holds per-token pricing for one model. Cost fields are
// pointers: an explicit price of 0 (free tier) is valid and distinct from
// "no price data", and that distinction must survive lookup.
type ModelPrice struct {
	Provider           string   `json:"provider"`
	InputCostPerToken  *float64 `json:"input_cost_per_token"`
	OutputCostPerToken *float64 `json:"output_cost_per_token"`
	Mode               string   `json:"mode"`
}

// Registry is a concurrency-safe model price table.
type Registry struct {
	prices map[string]ModelPrice
	mu     sync.RWMutex
}

// NewRegistry creates a registry preloaded with the embedded defaults.
func NewRegistry() *Registry {
	r := &Registry{
		prices: make(map[string]ModelPrice),
	}
	if err := r.loadBytes(defaultPrices); err != nil {
		// Embedded data is validated at build time; a parse failure here is
		// a packaging bug, not a runtime condition.
		panic(fmt.Sprintf("failed to load default prices: %v", err))
	}
	return r
}

// Load merges prices from a JSON file on disk into the registry.
// Entries with the same key replace the defaults.
func (r *Registry) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return r.loadBytes(data)
}

func (r *Registry) loadBytes(data []byte) error {
	var prices map[string]ModelPrice
	if err := json.Unmarshal(data, &prices); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for k, v := range prices {
		r.prices[k] = v
	}
	return nil
}

// GetPrice looks up pricing for a model. Keys may be stored either as
// "provider/model" or bare "model"; the qualified form wins.
func (r *Registry) GetPrice(model, provider string) (ModelPrice, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key := fmt.Sprintf("%s/%s", provider, model)
	if p, ok := r.prices[key]; ok {
		return p, true
	}

	if p, ok := r.prices[model]; ok {
		return p, true
	}

	return ModelPrice{}, false
}

// Len reports the number of priced models, for diagnostics.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.prices)
}
