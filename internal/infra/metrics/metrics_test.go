//go:build !integration

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	reg := prometheus.NewRegistry()

	require.NoError(t, Register(reg))
	// a second pass finds everything already registered
	require.NoError(t, Register(reg))

	SetBuildInfo("1.2.3", "abc123")
	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["billing_service_info"])
	assert.True(t, names["billing_pg_pool_max_conns"])
}

func TestObservePackageCache(t *testing.T) {
	before := testutil.ToFloat64(packageCacheLookups.WithLabelValues(CachePackageByID, "hit"))

	ObservePackageCache(" BY_ID ", true)
	ObservePackageCache(CachePackageByID, false)

	assert.Equal(t, before+1, testutil.ToFloat64(packageCacheLookups.WithLabelValues(CachePackageByID, "hit")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(packageCacheLookups.WithLabelValues(CachePackageByID, "miss")), 1.0)
}

func TestSetPoolConns(t *testing.T) {
	SetPoolConns(8, 5, 3, 10)

	assert.Equal(t, 3.0, testutil.ToFloat64(pgPoolConns.WithLabelValues("acquired")))
	assert.Equal(t, 10.0, testutil.ToFloat64(pgPoolMaxConns))
}
