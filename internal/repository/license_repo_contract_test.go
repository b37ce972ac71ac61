package repository

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/licensegate/backend/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var contractNow = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

// runLicenseRepositoryContract 对任意仓储实现执行相同的行为校验
func runLicenseRepositoryContract(t *testing.T, newRepo func(t *testing.T) LicenseRepository) {
	t.Run("get missing key", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Get(context.Background(), "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("put then get", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		license := domain.NewLicense("ABC", 30, contractNow)
		require.NoError(t, repo.Put(ctx, &license))

		got, err := repo.Get(ctx, "ABC")
		require.NoError(t, err)
		assert.Equal(t, "ABC", got.Key)
		assert.True(t, got.ExpiresAt.Equal(license.ExpiresAt))
		assert.Equal(t, "", got.HardwareID)
		assert.False(t, got.Blocked)
	})

	t.Run("keys are case sensitive", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		license := domain.NewLicense("abc", 1, contractNow)
		require.NoError(t, repo.Put(ctx, &license))

		_, err := repo.Get(ctx, "ABC")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("list keeps insertion order and overwrite keeps position", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		for _, key := range []string{"k3", "k1", "k2"} {
			license := domain.NewLicense(key, 10, contractNow)
			require.NoError(t, repo.Put(ctx, &license))
		}

		_, err := repo.Modify(ctx, "k1", *domain.BindHardware("H1", contractNow))
		require.NoError(t, err)
		_, err = repo.Modify(ctx, "k1", domain.BlockLicense(contractNow))
		require.NoError(t, err)

		recreated := domain.NewLicense("k1", 5, contractNow)
		require.NoError(t, repo.Put(ctx, &recreated))

		licenses, err := repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, licenses, 3)
		assert.Equal(t, []string{"k3", "k1", "k2"}, licenseKeys(licenses))

		// 重新创建会清除绑定与封禁
		assert.Equal(t, "", licenses[1].HardwareID)
		assert.False(t, licenses[1].Blocked)
		assert.True(t, licenses[1].ExpiresAt.Equal(recreated.ExpiresAt))
	})

	t.Run("list on empty store", func(t *testing.T) {
		repo := newRepo(t)
		licenses, err := repo.List(context.Background())
		require.NoError(t, err)
		assert.Empty(t, licenses)
	})

	t.Run("modify missing key", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Modify(context.Background(), "missing", domain.BlockLicense(contractNow))
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("modify applies mutation", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		license := domain.NewLicense("ABC", 30, contractNow)
		require.NoError(t, repo.Put(ctx, &license))

		newExpiry := contractNow.AddDate(0, 0, 90)
		updated, err := repo.Modify(ctx, "ABC", domain.ExtendTo(newExpiry, contractNow.Add(time.Minute)))
		require.NoError(t, err)
		assert.True(t, updated.ExpiresAt.Equal(newExpiry))

		got, err := repo.Get(ctx, "ABC")
		require.NoError(t, err)
		assert.True(t, got.ExpiresAt.Equal(newExpiry))
		assert.True(t, got.UpdatedAt.Equal(contractNow.Add(time.Minute)))
	})

	t.Run("compare and apply on absent key", func(t *testing.T) {
		repo := newRepo(t)
		called := false
		status, err := repo.CompareAndApply(context.Background(), "missing", func(current *domain.License) (domain.Status, *domain.Mutation) {
			called = true
			assert.Nil(t, current)
			return domain.Evaluate(current, "H1", contractNow)
		})
		require.NoError(t, err)
		assert.True(t, called)
		assert.Equal(t, domain.StatusInvalid, status)

		_, err = repo.Get(context.Background(), "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("compare and apply persists binding", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		license := domain.NewLicense("ABC", 30, contractNow)
		require.NoError(t, repo.Put(ctx, &license))

		status, err := repo.CompareAndApply(ctx, "ABC", activateWith("H1"))
		require.NoError(t, err)
		assert.Equal(t, domain.StatusActive, status)

		got, err := repo.Get(ctx, "ABC")
		require.NoError(t, err)
		assert.Equal(t, "H1", got.HardwareID)

		for i := 0; i < 3; i++ {
			status, err = repo.CompareAndApply(ctx, "ABC", func(current *domain.License) (domain.Status, *domain.Mutation) {
				s, mut := domain.Evaluate(current, "H1", contractNow)
				assert.Nil(t, mut, "same device must not produce another write")
				return s, mut
			})
			require.NoError(t, err)
			assert.Equal(t, domain.StatusActive, status)
		}

		status, err = repo.CompareAndApply(ctx, "ABC", activateWith("H2"))
		require.NoError(t, err)
		assert.Equal(t, domain.StatusHWIDMismatch, status)
	})

	t.Run("single binder under concurrent activation", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		license := domain.NewLicense("RACE", 30, contractNow)
		require.NoError(t, repo.Put(ctx, &license))

		n := runtime.GOMAXPROCS(0) * 8
		if n < 32 {
			n = 32
		}

		statuses := make([]domain.Status, n)
		errs := make([]error, n)
		start := make(chan struct{})
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				statuses[i], errs[i] = repo.CompareAndApply(ctx, "RACE", activateWith(fmt.Sprintf("HW-%d", i)))
			}(i)
		}
		close(start)
		wg.Wait()

		winner := -1
		for i := 0; i < n; i++ {
			require.NoError(t, errs[i])
			switch statuses[i] {
			case domain.StatusActive:
				require.Equal(t, -1, winner, "more than one device observed active")
				winner = i
			case domain.StatusHWIDMismatch:
			default:
				t.Fatalf("unexpected status %q", statuses[i])
			}
		}
		require.NotEqual(t, -1, winner, "no device observed active")

		got, err := repo.Get(ctx, "RACE")
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("HW-%d", winner), got.HardwareID)
	})

	t.Run("list never observes a half applied mutation", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		initial := domain.NewLicense("PAIR", 1, contractNow)
		require.NoError(t, repo.Put(ctx, &initial))

		// 每次变更同时改动硬件ID与到期时间，快照中两者必须保持配对
		expiryFor := func(hwid string) time.Time {
			if hwid == "A" {
				return contractNow.AddDate(0, 0, 10)
			}
			return contractNow.AddDate(0, 0, 20)
		}
		flip := func(current *domain.License) (domain.Status, *domain.Mutation) {
			next := "A"
			if current.HardwareID == "A" {
				next = "B"
			}
			exp := expiryFor(next)
			return domain.StatusActive, &domain.Mutation{HardwareID: &next, ExpiresAt: &exp, At: contractNow}
		}

		done := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				_, err := repo.CompareAndApply(ctx, "PAIR", flip)
				assert.NoError(t, err)
			}
			close(done)
		}()

		for {
			licenses, err := repo.List(ctx)
			require.NoError(t, err)
			require.Len(t, licenses, 1)
			got := licenses[0]
			if got.HardwareID != "" {
				assert.True(t, got.ExpiresAt.Equal(expiryFor(got.HardwareID)),
					"hwid %q paired with expiry %s", got.HardwareID, got.ExpiresAt)
			}

			select {
			case <-done:
				wg.Wait()
				return
			default:
			}
		}
	})
}

func activateWith(hwid string) Decider {
	return func(current *domain.License) (domain.Status, *domain.Mutation) {
		return domain.Evaluate(current, hwid, contractNow)
	}
}

func licenseKeys(licenses []domain.License) []string {
	keys := make([]string, len(licenses))
	for i, l := range licenses {
		keys[i] = l.Key
	}
	return keys
}
