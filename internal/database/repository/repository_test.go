package repository_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jask/moneyimport/internal/database"
	"github.com/jask/moneyimport/internal/database/repository"
)

func TestMerchantRuleMatch(t *testing.T) {
	t.Parallel()
	ctx := testContext(t)
	db := openTestDB(t)
	require.NoError(t, database.SeedDefaults(ctx, db, []string{"Groceries", "Restaurants"}))

	rules := repository.NewMerchantRuleRepo(db)
	require.NoError(t, rules.Add(ctx, repository.MerchantRule{
		ID: uuid.NewString(), Pattern: "COFFEE SHOP", PatternType: "exact",
		CategoryID: repository.CategoryID("Restaurants"), Confidence: 1, Source: "user",
	}))
	require.NoError(t, rules.Add(ctx, repository.MerchantRule{
		ID: uuid.NewString(), Pattern: "GROCER", PatternType: "contains",
		CategoryID: repository.CategoryID("Groceries"), Confidence: 0.8, Source: "user",
	}))

	mr, err := rules.Match(ctx, "coffee shop")
	require.NoError(t, err)
	require.NotNil(t, mr)
	assert.Equal(t, repository.CategoryID("Restaurants"), mr.CategoryID)

	mr, err = rules.Match(ctx, "POS PURCHASE GROCER 77")
	require.NoError(t, err)
	require.NotNil(t, mr)
	assert.Equal(t, "contains", mr.PatternType)

	mr, err = rules.Match(ctx, "HARDWARE")
	require.NoError(t, err)
	assert.Nil(t, mr)
}

func TestSeedDefaultsIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := testContext(t)
	db := openTestDB(t)
	buckets := []string{"Income", "Groceries"}
	require.NoError(t, database.SeedDefaults(ctx, db, buckets))
	require.NoError(t, database.SeedDefaults(ctx, db, buckets))

	ids, err := repository.NewCategoryRepo(db).IDsByName(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
	assert.Equal(t, repository.CategoryID("Income"), ids["Income"])
}

func TestTransactionInsertSkipsDuplicateHash(t *testing.T) {
	t.Parallel()
	ctx := testContext(t)
	db := openTestDB(t)
	require.NoError(t, repository.NewAccountRepo(db).Upsert(ctx, account("Everyday")))
	txRepo := repository.NewTransactionRepo(db)

	tx := repository.Transaction{
		ID:             uuid.NewString(),
		AccountID:      repository.AccountID("Everyday"),
		Date:           time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
		AmountCents:    -450,
		RawDescription: "COFFEE SHOP 123",
		OriginFormat:   "manual",
		ScopedHash:     "s1",
		UnscopedHash:   "u1",
	}
	inserted, err := txRepo.Insert(ctx, tx)
	require.NoError(t, err)
	assert.True(t, inserted)

	tx.ID = uuid.NewString()
	inserted, err = txRepo.Insert(ctx, tx)
	require.NoError(t, err)
	assert.False(t, inserted)

	got, err := txRepo.List(ctx, repository.TransactionFilters{AccountID: repository.AccountID("Everyday")})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "2024-01-05", got[0].Date.Format(time.DateOnly))
	assert.Nil(t, got[0].SessionID)

	n, err := txRepo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestAccountIDIgnoresCaseAndSpacing(t *testing.T) {
	assert.Equal(t, repository.AccountID("Everyday  Checking"), repository.AccountID(" everyday checking"))
	assert.NotEqual(t, repository.AccountID("Everyday"), repository.AccountID("Savings"))
}
