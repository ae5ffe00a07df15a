package repository_test

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jask/moneyimport/internal/database"
	"github.com/jask/moneyimport/internal/database/repository"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, database.RunMigrations(dbPath))
	db, err := database.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func account(name string) repository.Account {
	return repository.Account{ID: repository.AccountID(name), Name: name, Institution: name, AccountType: "checking"}
}

func pending(file, n int, accountName string) []repository.PendingRow {
	rows := make([]repository.PendingRow, n)
	for i := range rows {
		rows[i] = repository.PendingRow{File: file, Transaction: repository.Transaction{
			ID:             uuid.NewString(),
			AccountID:      repository.AccountID(accountName),
			Date:           time.Date(2024, 1, 1+i%28, 0, 0, 0, 0, time.UTC),
			AmountCents:    int64(-100 * (i + 1)),
			RawDescription: fmt.Sprintf("ROW %d", i),
			OriginFormat:   "csv:bofa",
			ScopedHash:     fmt.Sprintf("%s-scoped-%d-%d", accountName, file, i),
			UnscopedHash:   fmt.Sprintf("unscoped-%d-%d", file, i),
		}}
	}
	return rows
}

func commitFor(rows []repository.PendingRow, accounts ...repository.Account) repository.SessionCommit {
	return repository.SessionCommit{
		Session: repository.ImportSession{
			ID:        uuid.NewString(),
			Counts:    repository.SessionCounts{Parsed: len(rows), Persisted: len(rows)},
			CreatedAt: database.Now(),
			Files: []repository.ImportSessionFile{{
				Position: 0, Filename: "a.csv", Format: "csv:bofa", AccountLabel: "Everyday",
				Counts: repository.SessionCounts{Parsed: len(rows), Persisted: len(rows)},
			}},
		},
		Accounts: accounts,
		Rows:     rows,
	}
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func TestCommitAndLookups(t *testing.T) {
	t.Parallel()
	ctx := testContext(t)
	db := openTestDB(t)
	repo := repository.NewSessionRepo(db)

	rows := pending(0, 3, "Everyday")
	c := commitFor(rows, account("Everyday"))
	out, err := repo.Commit(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, 3, out.Inserted)
	assert.Empty(t, out.LateDuplicates)

	hashes := []string{rows[0].Transaction.ScopedHash, rows[2].Transaction.ScopedHash, "missing"}
	existing, err := repo.ExistingScopedHashes(ctx, hashes)
	require.NoError(t, err)
	assert.Len(t, existing, 2)
	assert.NotContains(t, existing, "missing")

	owners, err := repo.UnscopedHashOwners(ctx, []string{rows[1].Transaction.UnscopedHash})
	require.NoError(t, err)
	assert.Equal(t, []string{"Everyday"}, owners[rows[1].Transaction.UnscopedHash])

	s, err := repo.Get(ctx, c.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.SessionCompleted, s.Status)
	assert.Equal(t, 3, s.Counts.Persisted)
	require.Len(t, s.Files, 1)
	assert.Equal(t, "a.csv", s.Files[0].Filename)

	n, err := repo.CountTransactions(ctx, c.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestExistingScopedHashesChunks(t *testing.T) {
	t.Parallel()
	ctx := testContext(t)
	db := openTestDB(t)
	repo := repository.NewSessionRepo(db)

	rows := pending(0, 3, "Everyday")
	_, err := repo.Commit(ctx, commitFor(rows, account("Everyday")))
	require.NoError(t, err)

	hashes := make([]string, 0, 1203)
	for i := 0; i < 1200; i++ {
		hashes = append(hashes, fmt.Sprintf("absent-%d", i))
	}
	for _, r := range rows {
		hashes = append(hashes, r.Transaction.ScopedHash)
	}
	existing, err := repo.ExistingScopedHashes(ctx, hashes)
	require.NoError(t, err)
	assert.Len(t, existing, 3)

	none, err := repo.ExistingScopedHashes(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestCommitLateDuplicateIsNotAnError(t *testing.T) {
	t.Parallel()
	ctx := testContext(t)
	db := openTestDB(t)
	repo := repository.NewSessionRepo(db)
	require.NoError(t, repository.NewAccountRepo(db).Upsert(ctx, account("Everyday")))

	rows := pending(0, 3, "Everyday")
	// another writer stored one of the rows after the preview lookup
	racer := rows[1].Transaction
	racer.ID = uuid.NewString()
	inserted, err := repository.NewTransactionRepo(db).Insert(ctx, racer)
	require.NoError(t, err)
	require.True(t, inserted)

	c := commitFor(rows, account("Everyday"))
	out, err := repo.Commit(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Inserted)
	assert.Equal(t, map[int]int{0: 1}, out.LateDuplicates)

	s, err := repo.Get(ctx, c.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Counts.Persisted)
	assert.Equal(t, 1, s.Counts.DuplicateExisting)
	assert.Equal(t, 2, s.Files[0].Counts.Persisted)
	assert.Equal(t, 1, s.Files[0].Counts.DuplicateExisting)
}

func TestCommitIsAtomic(t *testing.T) {
	t.Parallel()
	ctx := testContext(t)
	db := openTestDB(t)
	repo := repository.NewSessionRepo(db)
	_, err := db.Exec(`CREATE TRIGGER fail_boom BEFORE INSERT ON transactions
		WHEN NEW.raw_description = 'BOOM' BEGIN SELECT RAISE(ABORT, 'injected'); END;`)
	require.NoError(t, err)

	rows := append(pending(0, 5, "Everyday"), pending(1, 5, "Savings")...)
	rows[7].Transaction.RawDescription = "BOOM"
	_, err = repo.Commit(ctx, commitFor(rows, account("Everyday"), account("Savings")))
	require.ErrorContains(t, err, "injected")

	assert.Zero(t, countRows(t, db, "transactions"))
	assert.Zero(t, countRows(t, db, "import_sessions"))
	assert.Zero(t, countRows(t, db, "import_session_files"))
	assert.Zero(t, countRows(t, db, "accounts"))
}

func TestRevertIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := testContext(t)
	db := openTestDB(t)
	repo := repository.NewSessionRepo(db)

	keep := commitFor(pending(0, 2, "Other"), account("Other"))
	_, err := repo.Commit(ctx, keep)
	require.NoError(t, err)

	c := commitFor(pending(0, 50, "Everyday"), account("Everyday"))
	_, err = repo.Commit(ctx, c)
	require.NoError(t, err)
	require.Equal(t, 52, countRows(t, db, "transactions"))

	s, err := repo.Revert(ctx, c.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.SessionReverted, s.Status)
	require.NotNil(t, s.RevertedAt)
	assert.Equal(t, 2, countRows(t, db, "transactions"))

	again, err := repo.Revert(ctx, c.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.SessionReverted, again.Status)
	assert.Equal(t, s.RevertedAt, again.RevertedAt)
	assert.Equal(t, 2, countRows(t, db, "transactions"))

	// the audit record stays
	assert.Equal(t, 2, countRows(t, db, "import_sessions"))
}

func TestRevertUnknownSession(t *testing.T) {
	t.Parallel()
	ctx := testContext(t)
	repo := repository.NewSessionRepo(openTestDB(t))
	_, err := repo.Revert(ctx, "nope")
	require.ErrorIs(t, err, repository.ErrSessionNotFound)
	_, err = repo.Get(ctx, "nope")
	require.ErrorIs(t, err, repository.ErrSessionNotFound)
}

func TestListSessions(t *testing.T) {
	t.Parallel()
	ctx := testContext(t)
	db := openTestDB(t)
	repo := repository.NewSessionRepo(db)

	first := commitFor(pending(0, 1, "A"), account("A"))
	first.Session.CreatedAt = database.Now().Add(-time.Hour)
	second := commitFor(pending(1, 1, "B"), account("B"))
	for _, c := range []repository.SessionCommit{first, second} {
		_, err := repo.Commit(ctx, c)
		require.NoError(t, err)
	}
	list, err := repo.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.Session.ID, list[0].ID)
}
