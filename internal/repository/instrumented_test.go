package repository

import (
	"context"
	"testing"

	"github.com/licensegate/backend/internal/domain"
	"github.com/licensegate/backend/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstrumentedLicenseRepository(t *testing.T) {
	runLicenseRepositoryContract(t, func(t *testing.T) LicenseRepository {
		return NewInstrumentedLicenseRepository(NewMemoryLicenseRepository(), "memory", metrics.New(prometheus.NewRegistry()))
	})
}

func TestInstrumentedLicenseRepositoryObservesEachOperation(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	repo := NewInstrumentedLicenseRepository(NewMemoryLicenseRepository(), "memory", m)
	ctx := context.Background()

	license := domain.NewLicense("A", 1, contractNow)
	require.NoError(t, repo.Put(ctx, &license))
	_, err := repo.Get(ctx, "A")
	require.NoError(t, err)
	_, err = repo.List(ctx)
	require.NoError(t, err)
	_, err = repo.CompareAndApply(ctx, "A", activateWith("H"))
	require.NoError(t, err)
	_, err = repo.Modify(ctx, "A", domain.BlockLicense(contractNow))
	require.NoError(t, err)
	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.Equal(t, 5, testutil.CollectAndCount(m.StoreOperationDuration))
}
