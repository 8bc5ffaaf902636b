package pricing

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"portfolio-holdings/internal/date"
	"portfolio-holdings/internal/models"
)

// MockStore is a mock implementation of the Store interface.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Price(ctx context.Context, securityID uint, d date.Date) (models.SecurityPrice, bool, error) {
	args := m.Called(securityID, d)
	return args.Get(0).(models.SecurityPrice), args.Bool(1), args.Error(2)
}

func (m *MockStore) LatestBefore(ctx context.Context, securityID uint, d date.Date) (models.SecurityPrice, bool, error) {
	args := m.Called(securityID, d)
	return args.Get(0).(models.SecurityPrice), args.Bool(1), args.Error(2)
}

// MockProvider is a mock implementation of the Provider interface.
type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) FetchPrices(ctx context.Context, security models.Security, from, to date.Date) ([]models.SecurityPrice, error) {
	args := m.Called(security.ID, from, to)
	return args.Get(0).([]models.SecurityPrice), args.Error(1)
}

var (
	today = date.MustParse("2024-06-10")
	from  = today.Add(-10)
	none  = models.SecurityPrice{}
)

func price(securityID uint, d date.Date, v string) models.SecurityPrice {
	return models.SecurityPrice{SecurityID: securityID, Date: d, Price: decimal.RequireFromString(v), Currency: "USD"}
}

func securities() map[uint]models.Security {
	return map[uint]models.Security{
		1: {Ticker: "VOO", Currency: "USD"},
		2: {Ticker: "PRIV", Offline: true},
	}
}

func newCache(store Store, provider Provider, trades []models.Trade) *Cache {
	secs := securities()
	for id, s := range secs {
		s.ID = id
		secs[id] = s
	}
	return NewCache(store, provider, secs, trades, from, today, zap.NewNop())
}

func TestCache_StoredExact(t *testing.T) {
	store := new(MockStore)
	store.On("Price", uint(1), today).Return(price(1, today, "500"), true, nil).Once()

	c := newCache(store, nil, nil)

	for i := 0; i < 3; i++ {
		p, ok, err := c.Price(context.Background(), 1, today)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.True(t, decimal.NewFromInt(500).Equal(p.Price))
		assert.Equal(t, models.PriceSourceStored, p.Source)
	}
	store.AssertExpectations(t) // a single store hit thanks to memoization
}

func TestCache_StoredCarryForward(t *testing.T) {
	store := new(MockStore)
	store.On("Price", uint(1), today).Return(none, false, nil)
	store.On("LatestBefore", uint(1), today).Return(price(1, today.Add(-3), "100"), true, nil)
	provider := new(MockProvider)

	c := newCache(store, provider, nil)
	p, ok, err := c.Price(context.Background(), 1, today)

	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, decimal.NewFromInt(100).Equal(p.Price))
	assert.Equal(t, today.Add(-3), p.Date)
	provider.AssertNotCalled(t, "FetchPrices", mock.Anything, mock.Anything, mock.Anything)
}

func TestCache_ProviderFetchedOncePerSecurity(t *testing.T) {
	store := new(MockStore)
	store.On("Price", uint(1), mock.Anything).Return(none, false, nil)
	store.On("LatestBefore", uint(1), mock.Anything).Return(none, false, nil)
	provider := new(MockProvider)
	provider.On("FetchPrices", uint(1), from, today).Return([]models.SecurityPrice{
		price(1, today.Add(-4), "470"),
		price(1, today.Add(-2), "480"),
	}, nil).Once()

	c := newCache(store, provider, nil)
	ctx := context.Background()

	testCases := []struct {
		day  date.Date
		want string
		ok   bool
	}{
		{day: today.Add(-5), ok: false},
		{day: today.Add(-4), want: "470", ok: true},
		{day: today.Add(-3), want: "470", ok: true}, // carried forward inside the provider series
		{day: today.Add(-2), want: "480", ok: true},
		{day: today, want: "480", ok: true},
	}
	for _, tc := range testCases {
		p, ok, err := c.Price(ctx, 1, tc.day)
		require.NoError(t, err)
		assert.Equal(t, tc.ok, ok, tc.day.String())
		if tc.ok {
			assert.True(t, decimal.RequireFromString(tc.want).Equal(p.Price), tc.day.String())
			assert.Equal(t, models.PriceSourceProvider, p.Source)
		}
	}
	provider.AssertExpectations(t)
}

func TestCache_ProviderFailureFallsBackToTrades(t *testing.T) {
	store := new(MockStore)
	store.On("Price", uint(1), mock.Anything).Return(none, false, nil)
	store.On("LatestBefore", uint(1), mock.Anything).Return(none, false, nil)
	provider := new(MockProvider)
	provider.On("FetchPrices", uint(1), from, today).Return([]models.SecurityPrice(nil), errors.New("503 upstream")).Once()

	trades := []models.Trade{
		{SecurityID: 1, Date: today.Add(-3), Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(90), Currency: "USD"},
		{SecurityID: 1, Date: today.Add(-1), Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(95), Currency: "USD"},
	}
	c := newCache(store, provider, trades)
	ctx := context.Background()

	_, ok, err := c.Price(ctx, 1, today.Add(-4))
	require.NoError(t, err)
	assert.False(t, ok, "no trade on or before")

	p, ok, err := c.Price(ctx, 1, today.Add(-2))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, decimal.NewFromInt(90).Equal(p.Price))
	assert.Equal(t, models.PriceSourceTrade, p.Source)

	p, ok, err = c.Price(ctx, 1, today)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, decimal.NewFromInt(95).Equal(p.Price))

	provider.AssertExpectations(t)
}

func TestCache_OfflineSecuritySkipsProvider(t *testing.T) {
	store := new(MockStore)
	store.On("Price", uint(2), today).Return(none, false, nil)
	store.On("LatestBefore", uint(2), today).Return(none, false, nil)
	provider := new(MockProvider)
	trades := []models.Trade{{SecurityID: 2, Date: today.Add(-7), Quantity: decimal.NewFromInt(3), Price: decimal.NewFromInt(250)}}

	c := newCache(store, provider, trades)
	p, ok, err := c.Price(context.Background(), 2, today)

	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, decimal.NewFromInt(250).Equal(p.Price))
	provider.AssertNotCalled(t, "FetchPrices", mock.Anything, mock.Anything, mock.Anything)
}

func TestCache_Unresolvable(t *testing.T) {
	store := new(MockStore)
	store.On("Price", uint(3), today).Return(none, false, nil).Once()
	store.On("LatestBefore", uint(3), today).Return(none, false, nil).Once()

	c := newCache(store, new(MockProvider), nil)

	for i := 0; i < 2; i++ {
		_, ok, err := c.Price(context.Background(), 3, today)
		require.NoError(t, err)
		assert.False(t, ok)
	}
	store.AssertExpectations(t)
}

func TestCache_IgnoresNonPositiveStoredPrice(t *testing.T) {
	store := new(MockStore)
	store.On("Price", uint(1), today).Return(price(1, today, "0"), true, nil)
	store.On("LatestBefore", uint(1), today).Return(price(1, today.Add(-1), "42"), true, nil)

	c := newCache(store, nil, nil)
	p, ok, err := c.Price(context.Background(), 1, today)

	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, decimal.NewFromInt(42).Equal(p.Price))
}

func TestCache_StoreErrorPropagates(t *testing.T) {
	store := new(MockStore)
	store.On("Price", uint(1), today).Return(none, false, errors.New("database is locked"))

	c := newCache(store, nil, nil)
	_, ok, err := c.Price(context.Background(), 1, today)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")
	assert.False(t, ok)
}
