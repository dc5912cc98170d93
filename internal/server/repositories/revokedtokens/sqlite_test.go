package revokedtokens

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/server/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLite_RevokeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteRepository(storetest.OpenSQLite(t))
	exp := time.Now().Add(time.Hour)

	revoked, err := repo.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	inserted, err := repo.Revoke(ctx, "jti-1", exp)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.Revoke(ctx, "jti-1", exp)
	require.NoError(t, err)
	assert.False(t, inserted)

	revoked, err = repo.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestSQLite_ConcurrentRevokeOneWinner(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteRepository(storetest.OpenSQLite(t))
	exp := time.Now().Add(time.Hour)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inserted, err := repo.Revoke(ctx, "shared", exp)
			assert.NoError(t, err)
			if inserted {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestSQLite_DeleteExpiredOnlyPurgesPast(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteRepository(storetest.OpenSQLite(t))
	now := time.Now()

	_, err := repo.Revoke(ctx, "old", now.Add(-time.Hour))
	require.NoError(t, err)
	_, err = repo.Revoke(ctx, "live", now.Add(time.Hour))
	require.NoError(t, err)

	n, err := repo.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	revoked, err := repo.IsRevoked(ctx, "old")
	require.NoError(t, err)
	assert.False(t, revoked)

	revoked, err = repo.IsRevoked(ctx, "live")
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestSQLite_Get(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteRepository(storetest.OpenSQLite(t))
	exp := time.Now().Add(time.Hour).Truncate(time.Second)

	_, err := repo.Get(ctx, "jti-1")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	_, err = repo.Revoke(ctx, "jti-1", exp)
	require.NoError(t, err)

	got, err := repo.Get(ctx, "jti-1")
	require.NoError(t, err)
	assert.Equal(t, "jti-1", got.JTI)
	assert.True(t, got.ExpiresAt.Equal(exp))
	assert.WithinDuration(t, time.Now(), got.RevokedAt, 5*time.Second)
}
