package policy

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/priorauth-labs/caseflow/pkg/models"
)

func newMockRepo(t *testing.T, policiesDir string, aliases map[string][]string) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewRepository(sqlx.NewDb(db, "pgx"), policiesDir, aliases, "latest"), mock
}

func writePolicyFile(t *testing.T, dir, payer, med string, policy *models.DigitizedPolicy) {
	t.Helper()
	data, err := json.Marshal(policy)
	require.NoError(t, err)
	full := filepath.Join(dir, payer, med+".json")
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, data, 0o644))
}

func TestLoadPrefersDatabaseCache(t *testing.T) {
	repo, mock := newMockRepo(t, t.TempDir(), nil)

	cached, _ := json.Marshal(&models.DigitizedPolicy{PayerName: "anthem", MedicationName: "infliximab"})
	mock.ExpectQuery("SELECT parsed_criteria FROM policy_cache").
		WithArgs("anthem", "infliximab").
		WillReturnRows(sqlmock.NewRows([]string{"parsed_criteria"}).AddRow(cached))

	policy, err := repo.Load(context.Background(), "Anthem", "Infliximab")
	require.NoError(t, err)
	require.NotNil(t, policy)
	assert.Equal(t, "anthem", policy.PayerName)
}

func TestLoadFallsBackToFilesystem(t *testing.T) {
	dir := t.TempDir()
	writePolicyFile(t, dir, "anthem", "infliximab", &models.DigitizedPolicy{
		PayerName: "anthem", MedicationName: "infliximab",
	})
	repo, mock := newMockRepo(t, dir, nil)

	mock.ExpectQuery("SELECT parsed_criteria FROM policy_cache").
		WillReturnRows(sqlmock.NewRows([]string{"parsed_criteria"}))

	policy, err := repo.Load(context.Background(), "Anthem", "Infliximab")
	require.NoError(t, err)
	require.NotNil(t, policy)
	assert.Equal(t, "infliximab", policy.MedicationName)
}

func TestLoadResolvesBrandAlias(t *testing.T) {
	dir := t.TempDir()
	writePolicyFile(t, dir, "anthem", "infliximab", &models.DigitizedPolicy{
		PayerName: "anthem", MedicationName: "infliximab",
	})
	aliases := map[string][]string{"infliximab": {"remicade"}}
	repo, mock := newMockRepo(t, dir, aliases)

	// One cache miss per alias candidate until the file hit.
	mock.ExpectQuery("SELECT parsed_criteria FROM policy_cache").
		WithArgs("anthem", "remicade").
		WillReturnRows(sqlmock.NewRows([]string{"parsed_criteria"}))
	mock.ExpectQuery("SELECT parsed_criteria FROM policy_cache").
		WithArgs("anthem", "infliximab").
		WillReturnRows(sqlmock.NewRows([]string{"parsed_criteria"}))

	policy, err := repo.Load(context.Background(), "Anthem", "Remicade")
	require.NoError(t, err)
	require.NotNil(t, policy)
	assert.Equal(t, "infliximab", policy.MedicationName)
}

func TestLoadMissingPolicyReturnsNil(t *testing.T) {
	repo, mock := newMockRepo(t, t.TempDir(), nil)
	mock.ExpectQuery("SELECT parsed_criteria FROM policy_cache").
		WillReturnRows(sqlmock.NewRows([]string{"parsed_criteria"}))

	policy, err := repo.Load(context.Background(), "anthem", "unknown")
	require.NoError(t, err)
	assert.Nil(t, policy)
}

func TestLoadRawTextFromFile(t *testing.T) {
	dir := t.TempDir()
	full := filepath.Join(dir, "united_health", "adalimumab.txt")
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte("coverage criteria text"), 0o644))
	repo, mock := newMockRepo(t, dir, nil)

	mock.ExpectQuery("SELECT policy_text FROM policy_cache").
		WillReturnRows(sqlmock.NewRows([]string{"policy_text"}))

	// "United Health" normalizes to united_health.
	text, err := repo.LoadRawText(context.Background(), "United Health", "adalimumab")
	require.NoError(t, err)
	assert.Equal(t, "coverage criteria text", text)
}

func TestLoadRawTextPDFPlaceholder(t *testing.T) {
	dir := t.TempDir()
	full := filepath.Join(dir, "anthem", "infliximab.pdf")
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte("%PDF-1.4"), 0o644))
	repo, mock := newMockRepo(t, dir, nil)

	mock.ExpectQuery("SELECT policy_text FROM policy_cache").
		WillReturnRows(sqlmock.NewRows([]string{"policy_text"}))

	text, err := repo.LoadRawText(context.Background(), "anthem", "infliximab")
	require.NoError(t, err)
	assert.Equal(t, pdfPlaceholder, text)
}
