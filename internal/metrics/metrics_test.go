package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsUseInjectedRegistry(t *testing.T) {
	// 两个独立注册表不会触发重复注册
	first := New(prometheus.NewRegistry())
	second := New(prometheus.NewRegistry())

	first.RecordActivation("active")
	first.RecordActivation("active")
	second.RecordActivation("blocked")

	assert.Equal(t, 2.0, testutil.ToFloat64(first.ActivationsTotal.WithLabelValues("active")))
	assert.Equal(t, 0.0, testutil.ToFloat64(second.ActivationsTotal.WithLabelValues("active")))
	assert.Equal(t, 1.0, testutil.ToFloat64(second.ActivationsTotal.WithLabelValues("blocked")))
}

func TestRecorders(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordAdminOperation("create", "ok")
	m.RecordAdminOperation("block", "not_found")
	m.SetLicenseCount("bound", 7)
	m.RecordHTTPRequest("GET", "/health", "200", 0.01)
	m.ObserveStoreOperation("memory", "get", 0.001)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.AdminOperationsTotal.WithLabelValues("create", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AdminOperationsTotal.WithLabelValues("block", "not_found")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.Licenses.WithLabelValues("bound")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/health", "200")))

	count, err := testutil.GatherAndCount(reg, "licensegate_store_operation_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNewRegistryIncludesRuntimeCollectors(t *testing.T) {
	reg := NewRegistry()
	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["go_goroutines"])
}
