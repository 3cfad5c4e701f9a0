package intelligence

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/priorauth-labs/caseflow/pkg/models"
)

func TestCacheKeyCohortIdentity(t *testing.T) {
	a := CaseProfile{
		Medication: "Infliximab",
		ICD10Code:  "K50.00",
		Payer:      "Anthem",
		Severity:   models.Severity{Classification: "Moderate to Severe"},
	}
	b := CaseProfile{
		Medication: " infliximab ",
		ICD10Code:  "k50.812", // same ICD-10 family
		Payer:      "anthem",
		Severity:   models.Severity{Classification: "moderate_to_severe"},
	}
	assert.Equal(t, CacheKey(a), CacheKey(b))
	assert.Len(t, CacheKey(a), 64)

	c := a
	c.Payer = "cigna"
	assert.NotEqual(t, CacheKey(a), CacheKey(c))

	d := a
	d.ICD10Code = "K51.90"
	assert.NotEqual(t, CacheKey(a), CacheKey(d))
}

func newMockCache(t *testing.T, ttl time.Duration) (*Cache, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewCache(sqlx.NewDb(db, "pgx"), ttl), mock
}

func TestCacheGetMiss(t *testing.T) {
	cache, mock := newMockCache(t, time.Hour)
	mock.ExpectQuery("SELECT intelligence_data, expires_at FROM strategic_intelligence_cache").
		WillReturnRows(sqlmock.NewRows([]string{"intelligence_data", "expires_at"}))

	insights, hit, err := cache.Get(context.Background(), "key")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Nil(t, insights)
}

func TestCacheGetHitMarksFromCache(t *testing.T) {
	cache, mock := newMockCache(t, time.Hour)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	payload, err := json.Marshal(&models.StrategicInsights{Medication: "infliximab", Confidence: 0.8})
	require.NoError(t, err)
	mock.ExpectQuery("SELECT intelligence_data, expires_at FROM strategic_intelligence_cache").
		WithArgs("key").
		WillReturnRows(sqlmock.NewRows([]string{"intelligence_data", "expires_at"}).
			AddRow(payload, now.Add(time.Hour)))

	insights, hit, err := cache.Get(context.Background(), "key")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, "infliximab", insights.Medication)
	assert.True(t, insights.FromCache)
}

func TestCacheGetExpiredRowDeletedLazily(t *testing.T) {
	cache, mock := newMockCache(t, time.Hour)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	payload, _ := json.Marshal(&models.StrategicInsights{})
	mock.ExpectQuery("SELECT intelligence_data, expires_at FROM strategic_intelligence_cache").
		WillReturnRows(sqlmock.NewRows([]string{"intelligence_data", "expires_at"}).
			AddRow(payload, now.Add(-time.Minute)))
	mock.ExpectExec("DELETE FROM strategic_intelligence_cache WHERE cache_key_hash").
		WithArgs("key").
		WillReturnResult(sqlmock.NewResult(0, 1))

	insights, hit, err := cache.Get(context.Background(), "key")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Nil(t, insights)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCachePutUpserts(t *testing.T) {
	cache, mock := newMockCache(t, time.Hour)
	mock.ExpectExec("INSERT INTO strategic_intelligence_cache").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := cache.Put(context.Background(), "key", "case-1", &models.StrategicInsights{
		Medication: "infliximab", ICD10Family: "K50", Payer: "anthem",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheSweep(t *testing.T) {
	cache, mock := newMockCache(t, time.Hour)
	mock.ExpectExec("DELETE FROM strategic_intelligence_cache WHERE expires_at").
		WillReturnResult(sqlmock.NewResult(0, 3))

	removed, err := cache.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)
}
