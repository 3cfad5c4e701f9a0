package intelligence

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/priorauth-labs/caseflow/pkg/models"
)

// CacheKey derives the cohort key hash. Two cases with the same normalized
// medication, ICD-10 family, payer, and severity classification share one
// cache row regardless of case ID.
func CacheKey(profile CaseProfile) string {
	parts := []string{
		normalizeKeyPart(profile.Medication),
		icd10Family(profile.ICD10Code),
		normalizeKeyPart(profile.Payer),
		normalizeKeyPart(profile.Severity.Classification),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "::")))
	return hex.EncodeToString(sum[:])
}

func normalizeKeyPart(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "_")
}

func icd10Family(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) > 3 {
		return code[:3]
	}
	return code
}

// Cache stores synthesized insights in the strategic_intelligence_cache
// table. Expired rows are deleted lazily on read; Sweep clears the backlog.
type Cache struct {
	db  *sqlx.DB
	ttl time.Duration
	now func() time.Time
}

// NewCache creates an insights cache with the configured TTL.
func NewCache(db *sqlx.DB, ttl time.Duration) *Cache {
	return &Cache{db: db, ttl: ttl, now: time.Now}
}

// Get returns the cached insights for a key, or (nil, false) on miss. A hit
// past its expiry is deleted and reported as a miss.
func (c *Cache) Get(ctx context.Context, key string) (*models.StrategicInsights, bool, error) {
	var payload []byte
	var expiresAt time.Time
	err := c.db.QueryRowContext(ctx,
		`SELECT intelligence_data, expires_at FROM strategic_intelligence_cache
		 WHERE cache_key_hash = $1`,
		key,
	).Scan(&payload, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query intelligence cache: %w", err)
	}

	if c.now().After(expiresAt) {
		if _, derr := c.db.ExecContext(ctx,
			`DELETE FROM strategic_intelligence_cache WHERE cache_key_hash = $1`, key); derr != nil {
			slog.Warn("Failed to delete expired intelligence cache row", "error", derr)
		}
		return nil, false, nil
	}

	var insights models.StrategicInsights
	if err := json.Unmarshal(payload, &insights); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached insights: %w", err)
	}
	insights.FromCache = true
	return &insights, true, nil
}

// Put upserts the insights row for a key. Failures are the caller's to log;
// caching is always best-effort.
func (c *Cache) Put(ctx context.Context, key, caseID string, insights *models.StrategicInsights) error {
	payload, err := json.Marshal(insights)
	if err != nil {
		return fmt.Errorf("marshal insights: %w", err)
	}
	now := c.now().UTC()
	_, err = c.db.ExecContext(ctx,
		`INSERT INTO strategic_intelligence_cache
		   (case_id, cache_key_hash, medication_name, icd10_code, payer_name,
		    cached_at, expires_at, intelligence_data, similar_cases_count, confidence_score)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		 ON CONFLICT (cache_key_hash) DO UPDATE SET
		   case_id = EXCLUDED.case_id,
		   cached_at = EXCLUDED.cached_at,
		   expires_at = EXCLUDED.expires_at,
		   intelligence_data = EXCLUDED.intelligence_data,
		   similar_cases_count = EXCLUDED.similar_cases_count,
		   confidence_score = EXCLUDED.confidence_score`,
		caseID, key, insights.Medication, insights.ICD10Family, insights.Payer,
		now, now.Add(c.ttl), payload, len(insights.SimilarCases), insights.Confidence,
	)
	if err != nil {
		return fmt.Errorf("upsert intelligence cache: %w", err)
	}
	return nil
}

// Sweep deletes all expired rows and returns how many were removed.
func (c *Cache) Sweep(ctx context.Context) (int64, error) {
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM strategic_intelligence_cache WHERE expires_at < $1`, c.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("sweep intelligence cache: %w", err)
	}
	return res.RowsAffected()
}
