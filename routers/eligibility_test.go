package routers

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelmux/modelmux/pkg/provider"
	"github.com/modelmux/modelmux/pkg/router"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func limitedDeployment(id string, rpm, tpm int64) *provider.Deployment {
	return &provider.Deployment{
		ID:        id,
		ModelName: "gpt-4o",
		ParamOverrides: provider.ParamOverrides{
			RPM: provider.Int64(rpm),
			TPM: provider.Int64(tpm),
		},
	}
}

func seedUsage(store *fakeStore, d *provider.Deployment, now time.Time, metric router.Metric, window router.Window, value int64) {
	w := usageWindows(now)
	store.set(counterKey(d, metric, window, w.Bucket(window)), value)
}

func TestFilterEligible_StrictGreaterThanBoundary(t *testing.T) {
	store := newFakeStore()
	now := time.Now()

	// Projection lands exactly on the limit: 9 + 1 == 10, still eligible.
	atLimit := limitedDeployment("at-limit", 10, 100000)
	seedUsage(store, atLimit, now, router.MetricRequests, router.WindowMinute, 9)

	// One over: 10 + 1 > 10, excluded.
	overLimit := limitedDeployment("over-limit", 10, 100000)
	seedUsage(store, overLimit, now, router.MetricRequests, router.WindowMinute, 10)

	eligible, excluded := filterEligible(context.Background(), store, testLogger(),
		[]*provider.Deployment{atLimit, overLimit}, 50, now)

	require.Len(t, eligible, 1)
	assert.Equal(t, "at-limit", eligible[0].deployment.ID)
	require.Len(t, excluded, 1)
	assert.Equal(t, "over-limit", excluded[0].deployment.ID)
	assert.Equal(t, []string{"rpm"}, excluded[0].exceeded)
}

func TestFilterEligible_AnySingleMetricExcludes(t *testing.T) {
	store := newFakeStore()
	now := time.Now()

	// Requests are fine; minute tokens are one short of the request size.
	d := limitedDeployment("dep-1", 1000, 100)
	seedUsage(store, d, now, router.MetricTokens, router.WindowMinute, 1)

	eligible, excluded := filterEligible(context.Background(), store, testLogger(),
		[]*provider.Deployment{d}, 100, now)

	assert.Empty(t, eligible)
	require.Len(t, excluded, 1)
	assert.Equal(t, []string{"tpm"}, excluded[0].exceeded)
}

func TestFilterEligible_UnlimitedDeploymentAlwaysEligible(t *testing.T) {
	store := newFakeStore()
	now := time.Now()

	d := &provider.Deployment{ID: "no-limits", ModelName: "gpt-4o"}
	seedUsage(store, d, now, router.MetricRequests, router.WindowMinute, 1_000_000)
	seedUsage(store, d, now, router.MetricTokens, router.WindowDay, 1_000_000_000)

	eligible, excluded := filterEligible(context.Background(), store, testLogger(),
		[]*provider.Deployment{d}, 100000, now)

	assert.Len(t, eligible, 1)
	assert.Empty(t, excluded)
}

func TestFilterEligible_SingleBatchedRead(t *testing.T) {
	store := newFakeStore()
	now := time.Now()

	pool := make([]*provider.Deployment, 0, 20)
	for i := 0; i < 20; i++ {
		pool = append(pool, limitedDeployment(string(rune('a'+i)), 100, 100000))
	}

	eligible, _ := filterEligible(context.Background(), store, testLogger(), pool, 10, now)

	// One round trip for the whole pool, not one per deployment.
	assert.Len(t, eligible, 20)
	assert.Equal(t, 1, store.reads())
}

func TestFilterEligible_ReadFailureFailsOpen(t *testing.T) {
	store := newFakeStore()
	store.failReads = true
	now := time.Now()

	d := limitedDeployment("dep-1", 10, 1000)

	eligible, excluded := filterEligible(context.Background(), store, testLogger(),
		[]*provider.Deployment{d}, 100, now)

	// Ledger down: usage reads as zero, the deployment stays routable.
	require.Len(t, eligible, 1)
	assert.Empty(t, excluded)
	assert.Equal(t, router.UsageSnapshot{}, eligible[0].usage)
}

func TestFilterEligible_MissingIDSkipsTracking(t *testing.T) {
	store := newFakeStore()
	now := time.Now()

	unmetered := &provider.Deployment{
		ModelName: "gpt-4o",
		ParamOverrides: provider.ParamOverrides{
			RPM: provider.Int64(1),
		},
	}
	metered := limitedDeployment("dep-1", 100, 100000)

	eligible, _ := filterEligible(context.Background(), store, testLogger(),
		[]*provider.Deployment{unmetered, metered}, 10, now)

	// The ID-less deployment cannot be metered, so its rpm=1 limit cannot
	// exclude it; it passes through as always eligible.
	require.Len(t, eligible, 2)
	assert.False(t, eligible[0].meterable)
	assert.True(t, eligible[1].meterable)
}

func TestFilterEligible_PreservesInputOrder(t *testing.T) {
	store := newFakeStore()
	now := time.Now()

	a := limitedDeployment("a", 100, 100000)
	b := limitedDeployment("b", 100, 100000)
	c := limitedDeployment("c", 100, 100000)

	eligible, _ := filterEligible(context.Background(), store, testLogger(),
		[]*provider.Deployment{c, a, b}, 10, now)

	require.Len(t, eligible, 3)
	assert.Equal(t, "c", eligible[0].deployment.ID)
	assert.Equal(t, "a", eligible[1].deployment.ID)
	assert.Equal(t, "b", eligible[2].deployment.ID)
}
