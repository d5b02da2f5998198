package service

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/shepherdvovkes/reyestr/internal/cache"
	"github.com/shepherdvovkes/reyestr/internal/config"
)

// setupTestDB opens gorm over a sqlmock connection so service SQL can be
// asserted without a live Postgres.
func setupTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	require.NoError(t, err)

	return db, mock
}

// disabledCache returns a no-op cache so tests exercise the database path.
func disabledCache(t *testing.T) *cache.Cache {
	t.Helper()

	c, err := cache.New(context.Background(), &config.CacheConfig{
		Enabled:       false,
		TaskTTL:       10 * time.Second,
		StatisticsTTL: 30 * time.Second,
		DocumentTTL:   60 * time.Second,
	})
	require.NoError(t, err)
	return c
}
