package config

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelmux/modelmux/pkg/provider"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const sampleConfig = `
ledger:
  backend: memory
router:
  cooldown_period: 30s
  ledger_timeout: 1s
logging:
  level: debug
  format: text
model_groups:
  - name: gpt-4o
    deployments:
      - id: azure-eastus
        provider: azure
        model: gpt-4o
        base_url: https://eastus.example.com
        api_key: ${TEST_AZURE_KEY}
        rpm: 60
        tpm: 100000
        input_cost_per_token: 0.0000025
        output_cost_per_token: 0.00001
      - provider: openai
        model: gpt-4o
        provider_params:
          rpm: 500
        model_info:
          tpd: 5000000
          input_cost_per_token: 0
          output_cost_per_token: 0
`

func TestLoadFromFile(t *testing.T) {
	t.Setenv("TEST_AZURE_KEY", "sk-test-123")
	path := writeConfig(t, sampleConfig)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Ledger.Backend)
	assert.Equal(t, 30*time.Second, cfg.Router.CooldownPeriod)
	assert.Equal(t, time.Second, cfg.Router.LedgerTimeout)
	assert.Equal(t, "debug", cfg.Logging.Level)

	require.Len(t, cfg.ModelGroups, 1)
	deps := cfg.ModelGroups[0].Deployments
	require.Len(t, deps, 2)

	first := deps[0]
	assert.Equal(t, "azure-eastus", first.ID)
	assert.Equal(t, "sk-test-123", first.APIKey, "env vars expand in place")
	assert.Equal(t, "gpt-4o", first.ModelAlias, "alias defaults to group name")
	require.NotNil(t, first.RPM)
	assert.Equal(t, int64(60), *first.RPM)
	require.NotNil(t, first.InputCostPerToken)
	assert.InDelta(t, 0.0000025, *first.InputCostPerToken, 1e-12)

	second := deps[1]
	assert.NotEmpty(t, second.ID, "missing IDs are assigned")
	require.NotNil(t, second.ProviderParams)
	require.NotNil(t, second.ProviderParams.RPM)
	assert.Equal(t, int64(500), *second.ProviderParams.RPM)
	require.NotNil(t, second.ModelInfo)
	require.NotNil(t, second.ModelInfo.TPD)
	assert.Equal(t, int64(5000000), *second.ModelInfo.TPD)
	// Explicit zero pricing survives as a set value, not a nil.
	require.NotNil(t, second.ModelInfo.InputCostPerToken)
	assert.Zero(t, *second.ModelInfo.InputCostPerToken)
}

func TestLoadFromFile_MissingFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Ledger.Backend = "etcd" },
			wantErr: "unknown ledger backend",
		},
		{
			name:    "redis without addr",
			mutate:  func(c *Config) { c.Ledger.Backend = "redis" },
			wantErr: "requires redis_addr",
		},
		{
			name: "unnamed group",
			mutate: func(c *Config) {
				c.ModelGroups = []ModelGroup{{}}
			},
			wantErr: "has no name",
		},
		{
			name: "deployment without model",
			mutate: func(c *Config) {
				c.ModelGroups = []ModelGroup{{
					Name:        "g",
					Deployments: []*provider.Deployment{{}},
				}}
			},
			wantErr: "without model",
		},
		{
			name: "duplicate deployment id",
			mutate: func(c *Config) {
				c.ModelGroups = []ModelGroup{{
					Name: "g",
					Deployments: []*provider.Deployment{
						{ID: "dup", ModelName: "m1"},
						{ID: "dup", ModelName: "m2"},
					},
				}}
			},
			wantErr: "duplicate deployment id",
		},
		{
			name: "negative rate limit",
			mutate: func(c *Config) {
				c.ModelGroups = []ModelGroup{{
					Name: "g",
					Deployments: []*provider.Deployment{{
						ID: "d", ModelName: "m",
						ParamOverrides: provider.ParamOverrides{RPM: provider.Int64(-1)},
					}},
				}}
			},
			wantErr: "negative rate limit",
		},
		{
			name: "negative cost in model_info",
			mutate: func(c *Config) {
				c.ModelGroups = []ModelGroup{{
					Name: "g",
					Deployments: []*provider.Deployment{{
						ID: "d", ModelName: "m",
						ModelInfo: &provider.ModelInfo{
							ParamOverrides: provider.ParamOverrides{
								InputCostPerToken: provider.Float64(-0.001),
							},
						},
					}},
				}}
			},
			wantErr: "negative cost",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfig_Deployments(t *testing.T) {
	cfg := &Config{ModelGroups: []ModelGroup{
		{Name: "a", Deployments: []*provider.Deployment{{ID: "1", ModelName: "m"}}},
		{Name: "b", Deployments: []*provider.Deployment{{ID: "2", ModelName: "m"}, {ID: "3", ModelName: "m"}}},
	}}

	all := cfg.Deployments()
	require.Len(t, all, 3)
	assert.Equal(t, "1", all[0].ID)
	assert.Equal(t, "3", all[2].ID)
}

func TestManager_Reload(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: info
model_groups:
  - name: main
    deployments:
      - id: d1
        provider: openai
        model: gpt-4o-mini
`)

	m, err := NewManager(path, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.Watch(ctx))

	changed := make(chan *Config, 1)
	m.Subscribe(func(c *Config) { changed <- c })

	assert.Len(t, m.Get().ModelGroups[0].Deployments, 1)

	require.NoError(t, os.WriteFile(path, []byte(`
logging:
  level: warn
model_groups:
  - name: main
    deployments:
      - id: d1
        provider: openai
        model: gpt-4o-mini
      - id: d2
        provider: azure
        model: gpt-4o-mini
`), 0o644))

	select {
	case cfg := <-changed:
		assert.Equal(t, "warn", cfg.Logging.Level)
		assert.Len(t, cfg.ModelGroups[0].Deployments, 2)
		assert.Same(t, cfg, m.Get())
	case <-time.After(5 * time.Second):
		t.Fatal("reload callback never fired")
	}
}

func TestManager_BadReloadKeepsCurrent(t *testing.T) {
	path := writeConfig(t, `
model_groups:
  - name: main
    deployments:
      - id: d1
        provider: openai
        model: gpt-4o
`)

	m, err := NewManager(path, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.Watch(ctx))

	before := m.Get()
	require.NoError(t, os.WriteFile(path, []byte("ledger:\n  backend: bogus\n"), 0o644))

	// The invalid file must be rejected and the previous snapshot kept.
	time.Sleep(time.Second)
	assert.Same(t, before, m.Get())
}
