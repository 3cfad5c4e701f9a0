// Package policy implements policy loading and the coverage reasoner: it
// evaluates a patient/medication pair against a digitized policy via the
// LLM gateway, validates and remaps returned criterion identifiers,
// backfills missed criteria, and applies the conservative decision model
// that forbids AI-issued denials.
package policy

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/priorauth-labs/caseflow/pkg/config"
	"github.com/priorauth-labs/caseflow/pkg/models"
)

// pdfPlaceholder marks raw text for PDF-only policies that have not been
// extracted yet. The reasoner treats it as present-but-thin context.
const pdfPlaceholder = "[POLICY DOCUMENT AVAILABLE AS PDF - TEXT EXTRACTION PENDING]"

// Repository loads digitized policy criteria and raw policy text by
// (payer, medication) with brand/generic aliasing. The database policy
// cache is preferred; the policies directory is the filesystem fallback.
type Repository struct {
	db          *sqlx.DB
	policiesDir string
	aliases     map[string][]string
	version     string
}

// NewRepository creates a policy repository.
func NewRepository(db *sqlx.DB, policiesDir string, aliases map[string][]string, defaultVersion string) *Repository {
	return &Repository{
		db:          db,
		policiesDir: policiesDir,
		aliases:     aliases,
		version:     defaultVersion,
	}
}

// Load returns the digitized policy for (payer, medication), or nil when no
// structured policy exists. Lookups are case-insensitive with
// space→underscore normalization and brand/generic alias resolution; the
// newest cached entry wins on ties.
func (r *Repository) Load(ctx context.Context, payer, medication string) (*models.DigitizedPolicy, error) {
	payerKey := normalizeName(payer)
	for _, med := range config.AliasesFor(r.aliases, medication) {
		medKey := normalizeName(med)

		if r.db != nil {
			var parsed []byte
			err := r.db.QueryRowContext(ctx,
				`SELECT parsed_criteria FROM policy_cache
				 WHERE lower(payer_name) = $1 AND lower(medication_name) = $2
				   AND parsed_criteria IS NOT NULL
				 ORDER BY cached_at DESC LIMIT 1`,
				payerKey, medKey,
			).Scan(&parsed)
			if err == nil && len(parsed) > 0 {
				var policy models.DigitizedPolicy
				if uerr := json.Unmarshal(parsed, &policy); uerr != nil {
					return nil, fmt.Errorf("unmarshal cached policy %s/%s: %w", payerKey, medKey, uerr)
				}
				return &policy, nil
			}
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("query policy cache: %w", err)
			}
		}

		path := filepath.Join(r.policiesDir, payerKey, medKey+".json")
		data, err := os.ReadFile(path)
		if err == nil {
			var policy models.DigitizedPolicy
			if uerr := json.Unmarshal(data, &policy); uerr != nil {
				return nil, fmt.Errorf("unmarshal policy file %s: %w", path, uerr)
			}
			return &policy, nil
		}
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read policy file %s: %w", path, err)
		}
	}
	return nil, nil
}

// LoadRawText returns the raw policy text, or "" when no textual policy
// exists. Database preferred, filesystem fallback; PDF-only policies yield
// a placeholder marker.
func (r *Repository) LoadRawText(ctx context.Context, payer, medication string) (string, error) {
	payerKey := normalizeName(payer)
	for _, med := range config.AliasesFor(r.aliases, medication) {
		medKey := normalizeName(med)

		if r.db != nil {
			var text sql.NullString
			err := r.db.QueryRowContext(ctx,
				`SELECT policy_text FROM policy_cache
				 WHERE lower(payer_name) = $1 AND lower(medication_name) = $2
				 ORDER BY cached_at DESC LIMIT 1`,
				payerKey, medKey,
			).Scan(&text)
			if err == nil && text.Valid && text.String != "" {
				return text.String, nil
			}
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return "", fmt.Errorf("query policy text: %w", err)
			}
		}

		txtPath := filepath.Join(r.policiesDir, payerKey, medKey+".txt")
		if data, err := os.ReadFile(txtPath); err == nil {
			return string(data), nil
		}

		pdfPath := filepath.Join(r.policiesDir, payerKey, medKey+".pdf")
		if _, err := os.Stat(pdfPath); err == nil {
			slog.Info("Policy available only as PDF, returning placeholder",
				"payer", payerKey, "medication", medKey)
			return pdfPlaceholder, nil
		}
	}
	return "", nil
}

// normalizeName lowercases and replaces spaces with underscores.
func normalizeName(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}
