package database

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"portfolio-holdings/internal/config"
	"portfolio-holdings/internal/date"
	"portfolio-holdings/internal/models"
)

var today = date.MustParse("2024-06-10")

// setupTest opens a fresh, migrated in-memory database.
func setupTest(t *testing.T) *gorm.DB {
	db, err := NewDatabase(config.Database{Driver: "sqlite", DSN: "file::memory:"})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func holding(securityID uint, d date.Date, qty, price int64) models.Holding {
	q, p := decimal.NewFromInt(qty), decimal.NewFromInt(price)
	return models.Holding{SecurityID: securityID, Date: d, Quantity: q, Price: p, Amount: q.Mul(p), Currency: "USD"}
}

func TestNewDatabase_UnsupportedDriver(t *testing.T) {
	_, err := NewDatabase(config.Database{Driver: "oracle"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

func TestAccountRepository(t *testing.T) {
	db := setupTest(t)
	repo := NewAccountRepository(db)
	ctx := context.Background()

	require.NoError(t, db.Create(&models.Account{Name: "Brokerage", Timezone: "America/New_York"}).Error)
	require.NoError(t, db.Create(&models.Account{Name: "IRA"}).Error)

	account, err := repo.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Brokerage", account.Name)
	assert.Equal(t, models.ConnectionManual, account.ConnectionType)

	_, err = repo.Get(ctx, 99)
	assert.ErrorIs(t, err, ErrNotFound)

	ids, err := repo.IDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint{1, 2}, ids)
}

func TestTradeRepository_OrderedByDate(t *testing.T) {
	db := setupTest(t)
	repo := NewTradeRepository(db)

	for _, tr := range []models.Trade{
		{AccountID: 1, SecurityID: 1, Date: today.Add(-1), Quantity: decimal.NewFromInt(5), Price: decimal.NewFromInt(10)},
		{AccountID: 1, SecurityID: 1, Date: today.Add(-3), Quantity: decimal.NewFromInt(20), Price: decimal.NewFromInt(10)},
		{AccountID: 2, SecurityID: 1, Date: today.Add(-2), Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(10)},
	} {
		require.NoError(t, db.Create(&tr).Error)
	}

	trades, err := repo.Trades(context.Background(), 1)

	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, today.Add(-3), trades[0].Date)
	assert.True(t, decimal.NewFromInt(20).Equal(trades[0].Quantity))
	assert.Equal(t, today.Add(-1), trades[1].Date)
}

func TestPriceRepository(t *testing.T) {
	db := setupTest(t)
	repo := NewPriceRepository(db)
	ctx := context.Background()

	for _, p := range []models.SecurityPrice{
		{SecurityID: 1, Date: today.Add(-5), Price: decimal.RequireFromString("98.5"), Currency: "USD"},
		{SecurityID: 1, Date: today.Add(-2), Price: decimal.RequireFromString("101.25"), Currency: "USD"},
		{SecurityID: 2, Date: today.Add(-1), Price: decimal.NewFromInt(7), Currency: "EUR"},
	} {
		require.NoError(t, db.Create(&p).Error)
	}

	t.Run("Exact", func(t *testing.T) {
		p, ok, err := repo.Price(ctx, 1, today.Add(-2))
		require.NoError(t, err)
		assert.True(t, ok)
		assert.True(t, decimal.RequireFromString("101.25").Equal(p.Price))
		assert.Equal(t, today.Add(-2), p.Date)
	})

	t.Run("ExactMissing", func(t *testing.T) {
		_, ok, err := repo.Price(ctx, 1, today.Add(-3))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("LatestBefore", func(t *testing.T) {
		p, ok, err := repo.LatestBefore(ctx, 1, today.Add(-2))
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, today.Add(-5), p.Date, "strictly before")

		p, ok, err = repo.LatestBefore(ctx, 1, today)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, today.Add(-2), p.Date)
	})

	t.Run("LatestBeforeNone", func(t *testing.T) {
		_, ok, err := repo.LatestBefore(ctx, 2, today.Add(-1))
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestPositionRepository(t *testing.T) {
	db := setupTest(t)
	repo := NewPositionRepository(db)

	for _, p := range []models.CustodianPosition{
		{AccountID: 1, SecurityID: 1, AsOf: today.Add(-1), Quantity: decimal.NewFromInt(4)},
		{AccountID: 1, SecurityID: 1, AsOf: today, Quantity: decimal.NewFromInt(5)},
		{AccountID: 2, SecurityID: 1, AsOf: today, Quantity: decimal.NewFromInt(9)},
	} {
		require.NoError(t, db.Create(&p).Error)
	}

	positions, err := repo.Positions(context.Background(), 1)

	require.NoError(t, err)
	require.Len(t, positions, 2)
	assert.Equal(t, today, positions[0].AsOf)
}

func TestSecurityRepository_ByIDs(t *testing.T) {
	db := setupTest(t)
	repo := NewSecurityRepository(db)
	require.NoError(t, db.Create(&models.Security{Ticker: "VOO", Currency: "USD"}).Error)
	require.NoError(t, db.Create(&models.Security{Ticker: "PRIV", Offline: true}).Error)

	got, err := repo.ByIDs(context.Background(), []uint{1, 2, 3})

	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, "VOO", got[1].Ticker)
	assert.True(t, got[2].Offline)

	empty, err := repo.ByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestHoldingRepository_Sync(t *testing.T) {
	ctx := context.Background()

	t.Run("UpsertsByKey", func(t *testing.T) {
		db := setupTest(t)
		repo := NewHoldingRepository(db, 2)

		first := []models.Holding{holding(1, today.Add(-1), 10, 100), holding(1, today, 10, 101)}
		require.NoError(t, repo.Sync(ctx, 7, first, []uint{1}))

		second := []models.Holding{holding(1, today.Add(-1), 10, 100), holding(1, today, 12, 102)}
		require.NoError(t, repo.Sync(ctx, 7, second, []uint{1}))

		stored, err := repo.List(ctx, 7, date.Date{})
		require.NoError(t, err)
		require.Len(t, stored, 2, "no duplicates")
		assert.True(t, decimal.NewFromInt(12).Equal(stored[1].Quantity))
		assert.True(t, decimal.NewFromInt(1224).Equal(stored[1].Amount))
		assert.Equal(t, uint(7), stored[1].AccountID)
	})

	t.Run("TrimsRowsOutsideNewRange", func(t *testing.T) {
		db := setupTest(t)
		repo := NewHoldingRepository(db, 0)

		old := []models.Holding{holding(1, today.Add(-3), 1, 1), holding(1, today.Add(-2), 1, 1), holding(1, today.Add(-1), 1, 1)}
		require.NoError(t, repo.Sync(ctx, 1, old, []uint{1}))
		require.NoError(t, repo.Sync(ctx, 1, []models.Holding{holding(1, today.Add(-1), 1, 1), holding(1, today, 1, 1)}, []uint{1}))

		stored, err := repo.List(ctx, 1, date.Date{})
		require.NoError(t, err)
		require.Len(t, stored, 2)
		assert.Equal(t, today.Add(-1), stored[0].Date)
		assert.Equal(t, today, stored[1].Date)
	})

	t.Run("PurgesSecuritiesNotKept", func(t *testing.T) {
		db := setupTest(t)
		repo := NewHoldingRepository(db, 0)

		require.NoError(t, repo.Sync(ctx, 1, []models.Holding{holding(1, today, 1, 1), holding(2, today, 2, 2)}, []uint{1, 2}))
		require.NoError(t, repo.Sync(ctx, 2, []models.Holding{holding(2, today, 3, 3)}, []uint{2}))
		require.NoError(t, repo.Sync(ctx, 1, []models.Holding{holding(1, today, 1, 1)}, []uint{1}))

		stored, err := repo.List(ctx, 1, date.Date{})
		require.NoError(t, err)
		require.Len(t, stored, 1)
		assert.Equal(t, uint(1), stored[0].SecurityID)

		other, err := repo.List(ctx, 2, date.Date{})
		require.NoError(t, err)
		assert.Len(t, other, 1, "other accounts untouched")
	})

	t.Run("EmptySetDeletesEverything", func(t *testing.T) {
		db := setupTest(t)
		repo := NewHoldingRepository(db, 0)

		require.NoError(t, repo.Sync(ctx, 1, []models.Holding{holding(1, today, 1, 1)}, []uint{1}))
		require.NoError(t, repo.Sync(ctx, 1, nil, nil))

		stored, err := repo.List(ctx, 1, date.Date{})
		require.NoError(t, err)
		assert.Empty(t, stored)
	})

	t.Run("RollsBackOnFailure", func(t *testing.T) {
		db := setupTest(t)
		repo := NewHoldingRepository(db, 1)
		require.NoError(t, repo.Sync(ctx, 1, []models.Holding{holding(1, today, 1, 1), holding(3, today, 3, 3)}, []uint{1, 3}))
		require.NoError(t, db.Exec("CREATE TRIGGER fail_insert BEFORE INSERT ON holdings WHEN NEW.security_id = 2 BEGIN SELECT RAISE(ABORT, 'boom'); END").Error)

		err := repo.Sync(ctx, 1, []models.Holding{holding(1, today, 9, 1), holding(2, today, 5, 5)}, []uint{1, 2})
		require.Error(t, err)

		stored, err := repo.List(ctx, 1, date.Date{})
		require.NoError(t, err)
		require.Len(t, stored, 2, "previous holdings still visible")
		assert.True(t, decimal.NewFromInt(1).Equal(stored[0].Quantity), "first batch rolled back")
		assert.Equal(t, uint(3), stored[1].SecurityID)
	})
}

func TestHoldingRepository_ListAndBalances(t *testing.T) {
	db := setupTest(t)
	repo := NewHoldingRepository(db, 0)
	ctx := context.Background()

	require.NoError(t, repo.Sync(ctx, 1, []models.Holding{
		holding(1, today.Add(-1), 10, 100),
		holding(2, today.Add(-1), 3, 50),
		holding(1, today, 10, 110),
		holding(2, today, 4, 50),
	}, []uint{1, 2}))

	onDay, err := repo.List(ctx, 1, today)
	require.NoError(t, err)
	require.Len(t, onDay, 2)
	assert.Equal(t, uint(1), onDay[0].SecurityID)
	assert.Equal(t, uint(2), onDay[1].SecurityID)

	balances, err := repo.DailyBalances(ctx, 1)
	require.NoError(t, err)
	require.Len(t, balances, 2)
	assert.Equal(t, today.Add(-1), balances[0].Date)
	assert.True(t, decimal.NewFromInt(1150).Equal(balances[0].Amount), balances[0].Amount.String())
	assert.True(t, decimal.NewFromInt(1300).Equal(balances[1].Amount), balances[1].Amount.String())
}
