package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/licensegate/backend/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniredisClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisLicenseRepository(t *testing.T) {
	runLicenseRepositoryContract(t, func(t *testing.T) LicenseRepository {
		_, client := newMiniredisClient(t)
		return NewRedisLicenseRepository(client, "test:", 0)
	})
}

func TestRedisLicenseRepositoryKeyLayout(t *testing.T) {
	mr, client := newMiniredisClient(t)
	repo := NewRedisLicenseRepository(client, "lg:", 8)
	ctx := context.Background()

	license := domain.NewLicense("ABC", 30, contractNow)
	require.NoError(t, repo.Put(ctx, &license))
	require.NoError(t, repo.Put(ctx, &license))

	assert.True(t, mr.Exists("lg:license:ABC"))
	members, err := mr.ZMembers("lg:licenses:index")
	require.NoError(t, err)
	assert.Equal(t, []string{"ABC"}, members)

	seq, err := mr.Get("lg:licenses:seq")
	require.NoError(t, err)
	assert.Equal(t, "1", seq, "overwrite must not allocate a new position")
}

func TestRedisLicenseRepositoryCorruptRecord(t *testing.T) {
	mr, client := newMiniredisClient(t)
	repo := NewRedisLicenseRepository(client, "lg:", 8)

	require.NoError(t, mr.Set("lg:license:BAD", "{not json"))
	_, err := repo.Get(context.Background(), "BAD")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
}

func TestRedisLicenseRepositoryRetriesExhausted(t *testing.T) {
	mr, client := newMiniredisClient(t)
	repo := NewRedisLicenseRepository(client, "lg:", 3)
	ctx := context.Background()

	license := domain.NewLicense("HOT", 30, contractNow)
	require.NoError(t, repo.Put(ctx, &license))

	other := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = other.Close() })

	// 每次决策期间另一个连接都改写记录，使 EXEC 失败
	attempts := 0
	_, err := repo.CompareAndApply(ctx, "HOT", func(current *domain.License) (domain.Status, *domain.Mutation) {
		attempts++
		require.NoError(t, other.Set(ctx, "lg:license:HOT", mustGetRaw(t, mr, "lg:license:HOT"), 0).Err())
		return domain.Evaluate(current, "H1", contractNow)
	})
	require.ErrorIs(t, err, ErrConflictRetriesExhausted)
	assert.Equal(t, 3, attempts)

	stored, err := repo.Get(ctx, "HOT")
	require.NoError(t, err)
	assert.Empty(t, stored.HardwareID, "failed attempts must not write")

	status, err := repo.CompareAndApply(ctx, "HOT", activateWith("H1"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, status)
}

func TestRedisLicenseRepositoryListLargeIndex(t *testing.T) {
	_, client := newMiniredisClient(t)
	repo := NewRedisLicenseRepository(client, "lg:", 0)
	ctx := context.Background()

	want := make([]string, listBatchSize+7)
	for i := range want {
		want[i] = fmt.Sprintf("K%04d", i)
		license := domain.NewLicense(want[i], 1, contractNow)
		require.NoError(t, repo.Put(ctx, &license))
	}

	licenses, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, licenseKeys(licenses))
}

func mustGetRaw(t *testing.T, mr *miniredis.Miniredis, key string) string {
	t.Helper()
	v, err := mr.Get(key)
	require.NoError(t, err)
	return v
}
